package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/meshwatch/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store reads and writes monitors, heartbeats and notifications.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ListActiveMonitors returns every monitor that should be checked.
func (s *Store) ListActiveMonitors(ctx context.Context) ([]*models.Monitor, error) {
	var monitors []*models.Monitor
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&monitors).Error; err != nil {
		return nil, fmt.Errorf("failed to list active monitors: %w", err)
	}
	return monitors, nil
}

// ListMonitors returns all monitors, active or not.
func (s *Store) ListMonitors(ctx context.Context) ([]*models.Monitor, error) {
	var monitors []*models.Monitor
	if err := s.db.WithContext(ctx).Order("id").Find(&monitors).Error; err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	return monitors, nil
}

// GetMonitor returns a monitor by id or ErrNotFound.
func (s *Store) GetMonitor(ctx context.Context, id int) (*models.Monitor, error) {
	var monitor models.Monitor
	err := s.db.WithContext(ctx).First(&monitor, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor %d: %w", id, err)
	}
	return &monitor, nil
}

// SaveHeartbeat inserts a heartbeat and fills in its id.
func (s *Store) SaveHeartbeat(ctx context.Context, heartbeat *models.Heartbeat) error {
	if err := s.db.WithContext(ctx).Create(heartbeat).Error; err != nil {
		return fmt.Errorf("failed to save heartbeat: %w", err)
	}
	return nil
}

// LatestHeartbeat returns the newest heartbeat of a monitor, or nil when it
// has never been checked.
func (s *Store) LatestHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error) {
	var heartbeats []models.Heartbeat
	err := s.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("time DESC").
		Limit(1).
		Find(&heartbeats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get latest heartbeat: %w", err)
	}
	if len(heartbeats) == 0 {
		return nil, nil
	}
	return &heartbeats[0], nil
}

// LatestHeartbeats returns the newest heartbeat of each listed monitor.
// Monitors that were never checked are absent from the map.
func (s *Store) LatestHeartbeats(ctx context.Context, monitorIDs []int) (map[int]models.Heartbeat, error) {
	latest := make(map[int]models.Heartbeat, len(monitorIDs))
	if len(monitorIDs) == 0 {
		return latest, nil
	}

	var heartbeats []models.Heartbeat
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (monitor_id) *
		FROM heartbeats
		WHERE monitor_id IN ?
		ORDER BY monitor_id, time DESC
	`, monitorIDs).Scan(&heartbeats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get latest heartbeats: %w", err)
	}

	for _, hb := range heartbeats {
		latest[hb.MonitorID] = hb
	}
	return latest, nil
}

// ListHeartbeats returns up to limit heartbeats of a monitor, newest first.
func (s *Store) ListHeartbeats(ctx context.Context, monitorID, limit int) ([]models.Heartbeat, error) {
	heartbeats := []models.Heartbeat{}
	err := s.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("time DESC").
		Limit(limit).
		Find(&heartbeats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}
	return heartbeats, nil
}

// DeleteHeartbeatsBefore removes unimportant heartbeats older than cutoff
// and reports how many were deleted. Important beats record status changes
// and are kept.
func (s *Store) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("time < ? AND important = ?", cutoff, false).
		Delete(&models.Heartbeat{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete heartbeats: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// NotificationsForMonitor returns the active notifications linked to a
// monitor.
func (s *Store) NotificationsForMonitor(ctx context.Context, monitorID int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Joins("JOIN monitor_notifications mn ON mn.notification_id = notifications.id").
		Where("mn.monitor_id = ? AND notifications.active = ?", monitorID, true).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications for monitor %d: %w", monitorID, err)
	}
	return notifications, nil
}

// DefaultNotifications returns the active notifications used by monitors
// without their own.
func (s *Store) DefaultNotifications(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Where("is_default = ? AND active = ?", true, true).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load default notifications: %w", err)
	}
	return notifications, nil
}

const countColumns = `COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN status = 1 THEN 1 ELSE 0 END), 0) AS up,
	COALESCE(SUM(CASE WHEN status = 0 THEN 1 ELSE 0 END), 0) AS down,
	COALESCE(SUM(CASE WHEN status = 2 THEN 1 ELSE 0 END), 0) AS pending,
	COALESCE(AVG(CASE WHEN status = 1 THEN ping END), 0) AS average_ping`

// CountHeartbeats summarises a monitor's heartbeats in [start, end].
func (s *Store) CountHeartbeats(ctx context.Context, monitorID int, start, end time.Time) (models.HeartbeatCounts, error) {
	var counts models.HeartbeatCounts
	err := s.db.WithContext(ctx).
		Model(&models.Heartbeat{}).
		Select(countColumns).
		Where("monitor_id = ? AND time >= ? AND time <= ?", monitorID, start, end).
		Scan(&counts).Error
	if err != nil {
		return counts, fmt.Errorf("failed to count heartbeats: %w", err)
	}
	return counts, nil
}

// CountHeartbeatsByDay is CountHeartbeats grouped by UTC day, oldest first.
// Days without heartbeats are omitted.
func (s *Store) CountHeartbeatsByDay(ctx context.Context, monitorID int, start, end time.Time) ([]models.HeartbeatCounts, error) {
	days := []models.HeartbeatCounts{}
	err := s.db.WithContext(ctx).
		Model(&models.Heartbeat{}).
		Select("date_trunc('day', time AT TIME ZONE 'UTC') AS day, "+countColumns).
		Where("monitor_id = ? AND time >= ? AND time <= ?", monitorID, start, end).
		Group("day").
		Order("day").
		Scan(&days).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count heartbeats by day: %w", err)
	}
	return days, nil
}
