package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/tradeguard/internal/events"
)

const (
	streamBufferSize = 100
	streamHeartbeat  = 30 * time.Second
	streamWriteLimit = 5 * time.Second
)

// StreamMessage is the JSON frame sent to websocket clients
type StreamMessage struct {
	Data      map[string]interface{} `json:"data,omitempty"`
	Type      string                 `json:"type"`
	Module    string                 `json:"module,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Message   string                 `json:"message,omitempty"`
}

// EventsStreamHandler streams engine events to websocket clients
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// parseTypes returns the requested event types, or every type when the filter is empty
func parseTypes(filter string) []events.EventType {
	if filter == "" {
		return events.AllEventTypes
	}
	var types []events.EventType
	for _, t := range strings.Split(filter, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, events.EventType(strings.ToUpper(t)))
		}
	}
	return types
}

// ServeHTTP handles GET /api/events/stream?types=ORDER_PLACED,EXIT_TRIGGERED
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	typesFilter := r.URL.Query().Get("types")
	h.log.Info().Str("types_filter", typesFilter).Msg("Client connected to event stream")

	// Clients never send; CloseRead handles control frames and cancels ctx on disconnect
	ctx := conn.CloseRead(r.Context())

	eventChan := make(chan *events.Event, streamBufferSize)
	unsubscribe := h.eventBus.SubscribeMany(parseTypes(typesFilter), func(event *events.Event) {
		// Non-blocking send (drop if channel full)
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("Event channel full, dropping event")
		}
	})
	defer unsubscribe()

	if err := h.write(ctx, conn, StreamMessage{
		Type:      "connected",
		Message:   "Connected to event stream",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event := <-eventChan:
			msg := StreamMessage{
				Type:      string(event.Type),
				Module:    event.Module,
				Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
				Data:      event.Data,
			}
			if err := h.write(ctx, conn, msg); err != nil {
				h.log.Debug().Err(err).Msg("Failed to write event, closing stream")
				return
			}

		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, streamWriteLimit)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Heartbeat failed, closing stream")
				return
			}
		}
	}
}

func (h *EventsStreamHandler) write(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteLimit)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}
