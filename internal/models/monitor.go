package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Monitor represents a monitor configuration
type Monitor struct {
	ID             int                    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name           string                 `json:"name" gorm:"not null" validate:"required"`
	Type           string                 `json:"type" gorm:"not null;index" validate:"required"`
	Hostname       string                 `json:"hostname" validate:"required"`
	Interval       int                    `json:"interval" gorm:"default:60" validate:"gte=1"`      // seconds
	Timeout        int                    `json:"timeout" gorm:"default:0" validate:"gte=0"`        // seconds, 0 = derived from interval
	RetryInterval  int                    `json:"retry_interval" gorm:"default:0" validate:"gte=0"` // seconds, 0 = same as interval
	MaxRetries     int                    `json:"max_retries" gorm:"default:0" validate:"gte=0"`
	ResendInterval int                    `json:"resend_interval" gorm:"default:0" validate:"gte=0"` // 0 = alert once per downtime
	Active         bool                   `json:"active" gorm:"default:true;index"`
	Config         map[string]interface{} `json:"config" gorm:"-"`
	ConfigRaw      string                 `json:"-" gorm:"column:config;type:text"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`

	Notifications []Notification `json:"-" gorm:"many2many:monitor_notifications"`
}

// TableName specifies the table name for Monitor
func (Monitor) TableName() string {
	return "monitors"
}

// BeforeSave marshals the Config map to JSON before saving (GORM hook)
func (m *Monitor) BeforeSave(tx *gorm.DB) error {
	if m.Config != nil {
		configJSON, err := json.Marshal(m.Config)
		if err != nil {
			return err
		}
		m.ConfigRaw = string(configJSON)
	}
	return nil
}

// AfterFind unmarshals the Config JSON after loading (GORM hook)
func (m *Monitor) AfterFind(tx *gorm.DB) error {
	if m.ConfigRaw != "" {
		return json.Unmarshal([]byte(m.ConfigRaw), &m.Config)
	}
	return nil
}

// IntervalDuration returns the check interval.
func (m *Monitor) IntervalDuration() time.Duration {
	return time.Duration(m.Interval) * time.Second
}

// RetryIntervalDuration returns the delay between checks while the monitor is
// pending. It falls back to the regular interval.
func (m *Monitor) RetryIntervalDuration() time.Duration {
	if m.RetryInterval > 0 {
		return time.Duration(m.RetryInterval) * time.Second
	}
	return m.IntervalDuration()
}

// ConfigString returns a string option from Config or the fallback.
func (m *Monitor) ConfigString(key, fallback string) string {
	if v, ok := m.Config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
