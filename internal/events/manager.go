package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Manager publishes typed event payloads onto the bus and writes each one to the log
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus for subscribers
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes raw data. A nil manager is a no-op.
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	if m == nil {
		return
	}
	m.bus.Emit(eventType, module, data)

	var entry *zerolog.Event
	switch eventType {
	case ErrorOccurred, JobFailed:
		entry = m.log.Warn()
	default:
		entry = m.log.Info()
	}
	entry.
		Str("event_type", string(eventType)).
		Str("module", module).
		Fields(data).
		Msg("Event emitted")
}

// EmitTyped flattens data into the map carried on the bus
func (m *Manager) EmitTyped(module string, data EventData) {
	if m == nil || data == nil {
		return
	}
	fields, err := toMap(data)
	if err != nil {
		m.log.Error().Err(err).Str("event_type", string(data.EventType())).Msg("Dropping unencodable event")
		return
	}
	m.Emit(data.EventType(), module, fields)
}

// EmitError publishes ERROR_OCCURRED with optional context
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	if err == nil {
		return
	}
	m.EmitTyped(module, &ErrorEventData{Error: err.Error(), Context: context})
}

func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// DecodeData is the inverse of EmitTyped for subscribers that want the typed payload
func DecodeData(event *Event, v EventData) error {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
