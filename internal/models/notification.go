package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Notification represents a notification configuration
type Notification struct {
	ID        int                    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string                 `json:"name" gorm:"not null"`
	Type      string                 `json:"type" gorm:"not null"` // webhook, ...
	Config    map[string]interface{} `json:"config" gorm:"-"`
	ConfigRaw string                 `json:"-" gorm:"column:config;type:text"`
	IsDefault bool                   `json:"is_default" gorm:"default:false"`
	Active    bool                   `json:"active" gorm:"default:true"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// BeforeSave marshals the Config map to JSON before saving (GORM hook)
func (n *Notification) BeforeSave(tx *gorm.DB) error {
	if n.Config != nil {
		configJSON, err := json.Marshal(n.Config)
		if err != nil {
			return err
		}
		n.ConfigRaw = string(configJSON)
	}
	return nil
}

// AfterFind unmarshals the Config JSON after loading (GORM hook)
func (n *Notification) AfterFind(tx *gorm.DB) error {
	if n.ConfigRaw != "" {
		return json.Unmarshal([]byte(n.ConfigRaw), &n.Config)
	}
	return nil
}

// MonitorNotification links monitors to notifications
type MonitorNotification struct {
	MonitorID      int `gorm:"primaryKey"`
	NotificationID int `gorm:"primaryKey"`
}

// TableName specifies the table name for MonitorNotification
func (MonitorNotification) TableName() string {
	return "monitor_notifications"
}
