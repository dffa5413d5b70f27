// Package events provides event management functionality.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Order lifecycle
	OrderPlaced    EventType = "ORDER_PLACED"
	OrderSubmitted EventType = "ORDER_SUBMITTED"
	OrderRejected  EventType = "ORDER_REJECTED"
	OrderCancelled EventType = "ORDER_CANCELLED"
	TradeExecuted  EventType = "TRADE_EXECUTED"
	RiskRejected   EventType = "RISK_REJECTED"

	// Positions
	PositionOpened EventType = "POSITION_OPENED"
	PositionClosed EventType = "POSITION_CLOSED"
	ExitTriggered  EventType = "EXIT_TRIGGERED"

	// Periodic work
	MonitorPassCompleted EventType = "MONITOR_PASS_COMPLETED"
	SnapshotRecorded     EventType = "SNAPSHOT_RECORDED"
	BackupCompleted      EventType = "BACKUP_COMPLETED"
	JobCompleted         EventType = "JOB_COMPLETED"
	JobFailed            EventType = "JOB_FAILED"

	// Configuration and system
	SettingsChanged     EventType = "SETTINGS_CHANGED"
	BrokerStatusChanged EventType = "BROKER_STATUS_CHANGED"
	ErrorOccurred       EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every event type the engine emits
var AllEventTypes = []EventType{
	OrderPlaced,
	OrderSubmitted,
	OrderRejected,
	OrderCancelled,
	TradeExecuted,
	RiskRejected,
	PositionOpened,
	PositionClosed,
	ExitTriggered,
	MonitorPassCompleted,
	SnapshotRecorded,
	BackupCompleted,
	JobCompleted,
	JobFailed,
	SettingsChanged,
	BrokerStatusChanged,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Type      EventType              `json:"type"`
	Module    string                 `json:"module"`
}
