package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/meshwatch/internal/models"
)

// Store is where the dispatcher looks up who to alert
type Store interface {
	NotificationsForMonitor(ctx context.Context, monitorID int) ([]models.Notification, error)
	DefaultNotifications(ctx context.Context) ([]models.Notification, error)
}

// Dispatcher handles sending notifications
type Dispatcher struct {
	store  Store
	logger *zap.Logger
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(store Store, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, logger: logger}
}

// Notify alerts every notification linked to monitor about heartbeat. When
// the monitor has none, the default notifications are used.
func (d *Dispatcher) Notify(ctx context.Context, monitor *models.Monitor, heartbeat *models.Heartbeat) error {
	notifications, err := d.store.NotificationsForMonitor(ctx, monitor.ID)
	if err != nil {
		return fmt.Errorf("failed to get monitor notifications: %w", err)
	}

	if len(notifications) == 0 {
		notifications, err = d.store.DefaultNotifications(ctx)
		if err != nil {
			return fmt.Errorf("failed to get default notifications: %w", err)
		}
	}

	return d.send(ctx, notifications, NewMessage(monitor, heartbeat))
}

// send delivers msg to all notifications concurrently
func (d *Dispatcher) send(ctx context.Context, notifications []models.Notification, msg *Message) error {
	errCh := make(chan error, len(notifications))
	for i := range notifications {
		go func(n *models.Notification) {
			err := d.sendNotification(ctx, n, msg)
			if err != nil {
				d.logger.Warn("notification_send_failed",
					zap.Int("notification_id", n.ID),
					zap.String("notification_type", n.Type),
					zap.String("notification_name", n.Name),
					zap.Error(err),
				)
				err = fmt.Errorf("%s (%s): %w", n.Name, n.Type, err)
			}
			errCh <- err
		}(&notifications[i])
	}

	var errs []error
	for range notifications {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to send %d/%d notifications: %w", len(errs), len(notifications), errors.Join(errs...))
	}
	return nil
}

// sendNotification sends a notification using the appropriate provider
func (d *Dispatcher) sendNotification(ctx context.Context, notif *models.Notification, msg *Message) error {
	if !notif.Active {
		return nil
	}

	provider, ok := GetProvider(notif.Type)
	if !ok {
		return fmt.Errorf("unknown notification provider: %s", notif.Type)
	}

	return provider.Send(ctx, notif, msg)
}

// TestNotification sends a test message through one notification
func (d *Dispatcher) TestNotification(ctx context.Context, notif *models.Notification) error {
	msg := &Message{
		Title:       "Test Notification",
		Body:        "This is a test notification from meshwatch.",
		MonitorName: "Test Monitor",
		Status:      "up",
		Time:        time.Now().UTC().Format(time.RFC3339),
	}

	return d.sendNotification(ctx, notif, msg)
}
