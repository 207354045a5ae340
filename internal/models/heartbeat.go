package models

import "time"

// Status constants
const (
	StatusDown    = 0
	StatusUp      = 1
	StatusPending = 2
)

// Heartbeat represents a monitor check result
type Heartbeat struct {
	ID        int       `json:"id" gorm:"primaryKey;autoIncrement"`
	MonitorID int       `json:"monitor_id" gorm:"not null;index:idx_monitor_time"`
	Status    int       `json:"status" gorm:"not null"` // 0=down, 1=up, 2=pending
	Ping      int       `json:"ping"`                   // milliseconds, only set when up
	Important bool      `json:"important" gorm:"default:false"`
	Message   string    `json:"message"`
	Retries   int       `json:"retries" gorm:"default:0"`
	Duration  int       `json:"duration"` // milliseconds the check took
	Time      time.Time `json:"time" gorm:"not null;index:idx_monitor_time,sort:desc;index:idx_time"`
}

// TableName specifies the table name for Heartbeat
func (Heartbeat) TableName() string {
	return "heartbeats"
}

// StatusText returns the display name of a status.
func StatusText(status int) string {
	switch status {
	case StatusUp:
		return "UP"
	case StatusDown:
		return "DOWN"
	case StatusPending:
		return "PENDING"
	default:
		return "UNKNOWN"
	}
}

// HeartbeatCounts summarises the heartbeats of a monitor over a period.
type HeartbeatCounts struct {
	Day         time.Time `json:"-" gorm:"column:day"`
	Total       int       `json:"total" gorm:"column:total"`
	Up          int       `json:"up" gorm:"column:up"`
	Down        int       `json:"down" gorm:"column:down"`
	Pending     int       `json:"pending" gorm:"column:pending"`
	AveragePing float64   `json:"average_ping" gorm:"column:average_ping"`
}
