package uptime

import (
	"context"
	"fmt"
	"time"

	"github.com/fuomag9/meshwatch/internal/models"
)

// Counter aggregates stored heartbeats
type Counter interface {
	CountHeartbeats(ctx context.Context, monitorID int, start, end time.Time) (models.HeartbeatCounts, error)
	CountHeartbeatsByDay(ctx context.Context, monitorID int, start, end time.Time) ([]models.HeartbeatCounts, error)
}

// Calculator calculates uptime statistics for monitors
type Calculator struct {
	counter Counter
	now     func() time.Time
}

// NewCalculator creates a new uptime calculator
func NewCalculator(counter Counter) *Calculator {
	return &Calculator{counter: counter, now: time.Now}
}

// Stats represents uptime statistics for a monitor
type Stats struct {
	MonitorID        int     `json:"monitor_id"`
	UptimePercentage float64 `json:"uptime_percentage"`
	TotalChecks      int     `json:"total_checks"`
	UpChecks         int     `json:"up_checks"`
	DownChecks       int     `json:"down_checks"`
	PendingChecks    int     `json:"pending_checks"`
	AveragePing      float64 `json:"average_ping"`
	StartTime        string  `json:"start_time"`
	EndTime          string  `json:"end_time"`
}

// DailyPoint represents uptime for a single day
type DailyPoint struct {
	Date             string  `json:"date"`
	UptimePercentage float64 `json:"uptime_percentage"`
	TotalChecks      int     `json:"total_checks"`
	UpChecks         int     `json:"up_checks"`
}

// ForPeriod calculates uptime over the last d
func (c *Calculator) ForPeriod(ctx context.Context, monitorID int, d time.Duration) (*Stats, error) {
	end := c.now().UTC()
	return c.ForRange(ctx, monitorID, end.Add(-d), end)
}

// ForRange calculates uptime between two times
func (c *Calculator) ForRange(ctx context.Context, monitorID int, start, end time.Time) (*Stats, error) {
	counts, err := c.counter.CountHeartbeats(ctx, monitorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate uptime for monitor %d: %w", monitorID, err)
	}

	return &Stats{
		MonitorID:        monitorID,
		UptimePercentage: Percentage(counts.Up, counts.Total),
		TotalChecks:      counts.Total,
		UpChecks:         counts.Up,
		DownChecks:       counts.Down,
		PendingChecks:    counts.Pending,
		AveragePing:      counts.AveragePing,
		StartTime:        start.Format(time.RFC3339),
		EndTime:          end.Format(time.RFC3339),
	}, nil
}

// DailyHistory returns one point per day with heartbeats in the last days days
func (c *Calculator) DailyHistory(ctx context.Context, monitorID, days int) ([]DailyPoint, error) {
	end := c.now().UTC()
	start := end.AddDate(0, 0, -days)

	buckets, err := c.counter.CountHeartbeatsByDay(ctx, monitorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate daily uptime for monitor %d: %w", monitorID, err)
	}

	points := make([]DailyPoint, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, DailyPoint{
			Date:             b.Day.Format("2006-01-02"),
			UptimePercentage: Percentage(b.Up, b.Total),
			TotalChecks:      b.Total,
			UpChecks:         b.Up,
		})
	}
	return points, nil
}

// Percentage returns up/total as a percentage, 0 when nothing was checked.
// Pending beats count against uptime.
func Percentage(up, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(up) / float64(total) * 100
}
