package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "tradeguard",
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	writeJSON(w, log, status, map[string]string{"error": message})
}
