package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fuomag9/meshwatch/internal/models"
)

// MonitorType interface that all monitor types must implement
type MonitorType interface {
	// Name returns the monitor type name (e.g., "tailscale-ping", "ping")
	Name() string

	// Check performs exactly one check. On success it fills heartbeat
	// (status, ping, message); on failure it returns an error, usually a
	// *CheckError, and leaves heartbeat untouched.
	Check(ctx context.Context, monitor *models.Monitor, heartbeat *models.Heartbeat) error

	// Validate validates the type specific monitor configuration
	Validate(monitor *models.Monitor) error
}

var (
	monitorTypes = make(map[string]MonitorType)
	registryMu   sync.RWMutex

	validate = validator.New()
)

// RegisterMonitorType registers a monitor type, replacing any previous
// registration under the same name.
func RegisterMonitorType(mt MonitorType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	monitorTypes[mt.Name()] = mt
}

// GetMonitorType returns a monitor type by name
func GetMonitorType(name string) (MonitorType, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	mt, ok := monitorTypes[name]
	return mt, ok
}

// MonitorTypeNames returns the sorted names of all registered monitor types
func MonitorTypeNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(monitorTypes))
	for name := range monitorTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateMonitor checks the generic monitor fields and then the type
// specific configuration.
func ValidateMonitor(m *models.Monitor) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid monitor: %w", err)
	}
	mt, ok := GetMonitorType(m.Type)
	if !ok {
		return fmt.Errorf("unknown monitor type: %s", m.Type)
	}
	return mt.Validate(m)
}

// DeriveTimeout returns the hard deadline for a check running every
// interval seconds: 80% of the interval, leaving slack before the next run.
func DeriveTimeout(interval int) time.Duration {
	return time.Duration(interval) * 800 * time.Millisecond
}

// CheckTimeout returns the deadline applied by the executor around a check.
func CheckTimeout(m *models.Monitor) time.Duration {
	if m.Timeout > 0 {
		return time.Duration(m.Timeout) * time.Second
	}
	return DeriveTimeout(m.Interval)
}
