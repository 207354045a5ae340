package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/meshwatch/internal/models"
)

func TestPingMonitor_Validate(t *testing.T) {
	p := &PingMonitor{}

	assert.Error(t, p.Validate(&models.Monitor{}))
	assert.NoError(t, p.Validate(&models.Monitor{Hostname: "100.64.0.2"}))

	cases := []map[string]interface{}{
		{"packet_count": "four"},
		{"packet_count": float64(0)},
		{"packet_size": float64(70000)},
	}
	for _, cfg := range cases {
		assert.Error(t, p.Validate(&models.Monitor{Hostname: "h", Config: cfg}), "%v", cfg)
	}
	assert.NoError(t, p.Validate(&models.Monitor{Hostname: "h", Config: map[string]interface{}{"packet_count": float64(2)}}))
}

func TestConfigInt(t *testing.T) {
	m := &models.Monitor{Config: map[string]interface{}{"packet_count": float64(3), "packet_size": "big"}}
	assert.Equal(t, 3, configInt(m, "packet_count", 4))
	assert.Equal(t, 56, configInt(m, "packet_size", 56))
	assert.Equal(t, 9, configInt(&models.Monitor{}, "missing", 9))
}

func TestDockerMonitor_Validate(t *testing.T) {
	d := &DockerMonitor{}

	assert.Error(t, d.Validate(&models.Monitor{}))
	assert.NoError(t, d.Validate(&models.Monitor{Hostname: "postgres"}))
	assert.NoError(t, d.Validate(&models.Monitor{Config: map[string]interface{}{"container": "redis"}}))
	assert.Error(t, d.Validate(&models.Monitor{Hostname: "redis", Config: map[string]interface{}{"docker_host": 5}}))
}

func TestDockerMonitor_DaemonUnavailable(t *testing.T) {
	d := &DockerMonitor{}
	m := &models.Monitor{Hostname: "redis", Interval: 5, Config: map[string]interface{}{
		"docker_host": "unix:///nonexistent/docker.sock",
	}}

	err := d.Check(context.Background(), m, &models.Heartbeat{})
	require.Error(t, err)
	assert.Equal(t, KindExecution, KindOf(err))
}

func TestBuiltinTypesRegistered(t *testing.T) {
	for _, name := range []string{"tailscale-ping", "ping", "docker"} {
		_, ok := GetMonitorType(name)
		assert.True(t, ok, name)
	}
}
