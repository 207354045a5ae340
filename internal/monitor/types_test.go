package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fuomag9/meshwatch/internal/models"
)

func TestCheckTimeout(t *testing.T) {
	assert.Equal(t, 8*time.Second, CheckTimeout(&models.Monitor{Interval: 10}))
	assert.Equal(t, 3*time.Second, CheckTimeout(&models.Monitor{Interval: 10, Timeout: 3}))
}

func TestValidateMonitor(t *testing.T) {
	ok := &models.Monitor{Name: "node1", Type: "tailscale-ping", Hostname: "node1", Interval: 20}
	assert.NoError(t, ValidateMonitor(ok))

	missingName := *ok
	missingName.Name = ""
	assert.ErrorContains(t, ValidateMonitor(&missingName), "invalid monitor")

	badInterval := *ok
	badInterval.Interval = 0
	assert.Error(t, ValidateMonitor(&badInterval))

	unknown := *ok
	unknown.Type = "gopher"
	assert.ErrorContains(t, ValidateMonitor(&unknown), "unknown monitor type")

	badPing := &models.Monitor{Name: "p", Type: "ping", Hostname: "10.0.0.1", Interval: 20,
		Config: map[string]interface{}{"packet_count": float64(500)}}
	assert.ErrorContains(t, ValidateMonitor(badPing), "packet count")

	dockerByConfig := &models.Monitor{Name: "d", Type: "docker", Hostname: "web", Interval: 20,
		Config: map[string]interface{}{"docker_host": 12}}
	assert.ErrorContains(t, ValidateMonitor(dockerByConfig), "docker_host")
}

func TestMonitorTypeNames(t *testing.T) {
	names := MonitorTypeNames()
	assert.Subset(t, names, []string{"docker", "ping", "tailscale-ping"})
	assert.IsNonDecreasing(t, names)
}
