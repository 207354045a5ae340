package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fuomag9/meshwatch/internal/models"
)

// Provider delivers alerts through one channel
type Provider interface {
	// Name returns the unique identifier for this provider
	Name() string

	// Send delivers message using the notification's config
	Send(ctx context.Context, notification *models.Notification, message *Message) error

	// Validate validates the provider configuration
	Validate(config map[string]interface{}) error
}

// Message is the provider-neutral content of an alert
type Message struct {
	Title       string
	Body        string
	MonitorID   int
	MonitorName string
	Hostname    string
	Status      string // "up", "down", "pending"
	Ping        int    // milliseconds
	Time        string
	Important   bool
}

// NewMessage builds the alert for a heartbeat of monitor.
func NewMessage(monitor *models.Monitor, heartbeat *models.Heartbeat) *Message {
	status := strings.ToLower(models.StatusText(heartbeat.Status))
	return &Message{
		Title:       fmt.Sprintf("[%s] %s is %s", monitor.Type, monitor.Name, models.StatusText(heartbeat.Status)),
		Body:        heartbeat.Message,
		MonitorID:   monitor.ID,
		MonitorName: monitor.Name,
		Hostname:    monitor.Hostname,
		Status:      status,
		Ping:        heartbeat.Ping,
		Time:        heartbeat.Time.UTC().Format(time.RFC3339),
		Important:   heartbeat.Important,
	}
}

var (
	providers = make(map[string]Provider)
	mu        sync.RWMutex
)

// RegisterProvider registers a new notification provider
func RegisterProvider(provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[provider.Name()] = provider
}

// GetProvider returns a provider by name
func GetProvider(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	provider, ok := providers[name]
	return provider, ok
}

// ProviderNames returns the registered provider names, sorted.
func ProviderNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatMessage renders a message as plain text
func FormatMessage(msg *Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", msg.Title)
	if msg.Body != "" {
		b.WriteString(msg.Body + "\n\n")
	}
	fmt.Fprintf(&b, "Monitor: %s\n", msg.MonitorName)
	if msg.Hostname != "" {
		fmt.Fprintf(&b, "Host: %s\n", msg.Hostname)
	}
	if msg.Ping > 0 {
		fmt.Fprintf(&b, "Latency: %dms\n", msg.Ping)
	}
	fmt.Fprintf(&b, "Time: %s\n", msg.Time)
	return b.String()
}
