package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeguard/internal/events"
)

// BrokerStatus reports whether the broker session is usable
type BrokerStatus interface {
	IsConnected() bool
}

// StatusMonitor periodically checks broker connectivity and emits events on changes
type StatusMonitor struct {
	eventManager *events.Manager
	broker       BrokerStatus
	brokerName   string
	log          zerolog.Logger

	mu        sync.Mutex
	checked   bool
	lastState bool
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(eventManager *events.Manager, broker BrokerStatus, brokerName string, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		eventManager: eventManager,
		broker:       broker,
		brokerName:   brokerName,
		log:          log.With().Str("component", "status_monitor").Logger(),
	}
}

// Start begins periodic status monitoring until ctx is cancelled
func (m *StatusMonitor) Start(ctx context.Context, interval time.Duration) {
	go m.monitor(ctx, interval)
}

func (m *StatusMonitor) monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check compares the broker state with the last observation.
// The first observation is always emitted.
func (m *StatusMonitor) Check() {
	if m.broker == nil {
		return
	}
	connected := m.broker.IsConnected()

	m.mu.Lock()
	changed := !m.checked || connected != m.lastState
	m.checked = true
	m.lastState = connected
	m.mu.Unlock()

	if !changed {
		return
	}

	data := &events.BrokerStatusChangedData{Broker: m.brokerName, Connected: connected}
	if !connected {
		data.Reason = "not authorized"
		m.log.Warn().Str("broker", m.brokerName).Msg("Broker session unavailable")
	} else {
		m.log.Info().Str("broker", m.brokerName).Msg("Broker session available")
	}
	m.eventManager.EmitTyped("status_monitor", data)
}
