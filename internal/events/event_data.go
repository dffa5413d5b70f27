package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// OrderData contains data for order lifecycle events
type OrderData struct {
	Type          EventType `json:"-"`
	OrderID       string    `json:"order_id"`
	AccountID     string    `json:"account_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	OrderType     string    `json:"order_type"`
	Status        string    `json:"status"`
	BrokerOrderID string    `json:"broker_order_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Quantity      int64     `json:"quantity"`
	IsPaper       bool      `json:"is_paper"`
}

// EventType returns the event type carried in Type
func (d *OrderData) EventType() EventType {
	return d.Type
}

// TradeExecutedData contains data for TradeExecuted events
type TradeExecutedData struct {
	OrderID         string  `json:"order_id"`
	AccountID       string  `json:"account_id"`
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"`
	Source          string  `json:"source,omitempty"`
	Quantity        int64   `json:"quantity"`
	FilledQuantity  int64   `json:"filled_quantity"`
	Price           float64 `json:"price"`
	Commission      float64 `json:"commission"`
	PositionQty     int64   `json:"position_quantity"`
	OrderCompleted  bool    `json:"order_completed"`
	PositionChanged bool    `json:"position_changed"`
}

// EventType returns the event type for TradeExecutedData
func (d *TradeExecutedData) EventType() EventType {
	return TradeExecuted
}

// RiskRejectedData contains data for RiskRejected events
type RiskRejectedData struct {
	AccountID string  `json:"account_id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Reason    string  `json:"reason"`
	Message   string  `json:"message"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
}

// EventType returns the event type for RiskRejectedData
func (d *RiskRejectedData) EventType() EventType {
	return RiskRejected
}

// PositionData contains data for PositionOpened and PositionClosed events
type PositionData struct {
	Type         EventType `json:"-"`
	AccountID    string    `json:"account_id"`
	Symbol       string    `json:"symbol"`
	PositionID   int64     `json:"position_id"`
	Quantity     int64     `json:"quantity"`
	AverageCost  float64   `json:"average_cost"`
	RealizedPnL  float64   `json:"realized_pnl"`
	CurrentPrice float64   `json:"current_price"`
}

// EventType returns the event type carried in Type
func (d *PositionData) EventType() EventType {
	return d.Type
}

// ExitTriggeredData contains data for ExitTriggered events
type ExitTriggeredData struct {
	AccountID    string  `json:"account_id"`
	Symbol       string  `json:"symbol"`
	Trigger      string  `json:"trigger"` // "stop_loss" or "take_profit"
	OrderID      string  `json:"order_id,omitempty"`
	Error        string  `json:"error,omitempty"`
	Quantity     int64   `json:"quantity"`
	CurrentPrice float64 `json:"current_price"`
	Level        float64 `json:"level"`
}

// EventType returns the event type for ExitTriggeredData
func (d *ExitTriggeredData) EventType() EventType {
	return ExitTriggered
}

// MonitorPassData contains data for MonitorPassCompleted events
type MonitorPassData struct {
	AccountID string  `json:"account_id"`
	Checked   int     `json:"checked"`
	Triggered int     `json:"triggered"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	Duration  float64 `json:"duration_seconds"`
}

// EventType returns the event type for MonitorPassData
func (d *MonitorPassData) EventType() EventType {
	return MonitorPassCompleted
}

// SnapshotRecordedData contains data for SnapshotRecorded events
type SnapshotRecordedData struct {
	AccountID    string  `json:"account_id"`
	SnapshotDate string  `json:"snapshot_date"`
	TotalValue   float64 `json:"total_value"`
	CashBalance  float64 `json:"cash_balance"`
	DailyPnLPct  float64 `json:"daily_pnl_pct"`
}

// EventType returns the event type for SnapshotRecordedData
func (d *SnapshotRecordedData) EventType() EventType {
	return SnapshotRecorded
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string  `json:"key"`
	SizeBytes int64   `json:"size_bytes"`
	Duration  float64 `json:"duration_seconds"`
	Rotated   int     `json:"rotated"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobName  string  `json:"job_name"`
	Status   string  `json:"status"` // "completed" or "failed"
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration_seconds"`
}

// EventType returns the event type for JobStatusData, determined by Status
func (d *JobStatusData) EventType() EventType {
	if d.Status == "failed" {
		return JobFailed
	}
	return JobCompleted
}

// SettingsChangedData contains data for SettingsChanged events
type SettingsChangedData struct {
	AccountID string                 `json:"account_id"`
	Changes   map[string]interface{} `json:"changes"`
}

// EventType returns the event type for SettingsChangedData
func (d *SettingsChangedData) EventType() EventType {
	return SettingsChanged
}

// BrokerStatusChangedData contains data for BrokerStatusChanged events
type BrokerStatusChangedData struct {
	Broker    string `json:"broker"`
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

// EventType returns the event type for BrokerStatusChangedData
func (d *BrokerStatusChangedData) EventType() EventType {
	return BrokerStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
