package server

import (
	"bufio"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	defaultLogLines = 100
	maxLogLines     = 10000
)

// LogHandlers serves the tail of the rotating log file
type LogHandlers struct {
	logFile string
	log     zerolog.Logger
}

// NewLogHandlers creates a new log handlers instance. An empty logFile disables the endpoint.
func NewLogHandlers(log zerolog.Logger, logFile string) *LogHandlers {
	return &LogHandlers{
		logFile: logFile,
		log:     log.With().Str("handler", "logs").Logger(),
	}
}

// LogContentResponse represents log content
type LogContentResponse struct {
	Lines  []string `json:"lines"`
	Total  int      `json:"total"`
	Status string   `json:"status"`
}

// HandleGetLogs returns the last lines of the log file
// GET /api/system/logs?lines=200&level=error&search=SHOP
func (h *LogHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	if h.logFile == "" {
		writeError(w, h.log, http.StatusNotFound, "file logging is disabled")
		return
	}

	lines := defaultLogLines
	if v := r.URL.Query().Get("lines"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, h.log, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = parsed
		if lines > maxLogLines {
			lines = maxLogLines
		}
	}
	level := strings.ToLower(r.URL.Query().Get("level"))
	search := r.URL.Query().Get("search")

	tail, err := tailFile(h.logFile, lines, func(line string) bool {
		return matchesLogFilter(line, level, search)
	})
	if errors.Is(err, fs.ErrNotExist) {
		writeJSON(w, h.log, http.StatusOK, LogContentResponse{Lines: []string{}, Status: "ok"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read log file")
		writeError(w, h.log, http.StatusInternalServerError, "failed to read logs")
		return
	}

	writeJSON(w, h.log, http.StatusOK, LogContentResponse{
		Lines:  tail,
		Total:  len(tail),
		Status: "ok",
	})
}

// matchesLogFilter checks a JSON log line against level and substring filters
func matchesLogFilter(line, level, search string) bool {
	if level != "" && !strings.Contains(line, `"level":"`+level+`"`) {
		return false
	}
	if search != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(search)) {
		return false
	}
	return true
}

// tailFile returns up to n of the last lines in path that satisfy keep
func tailFile(path string, n int, keep func(string) bool) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !keep(line) {
			continue
		}
		if len(ring) == n {
			ring = append(ring[1:], line)
			continue
		}
		ring = append(ring, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ring, nil
}
