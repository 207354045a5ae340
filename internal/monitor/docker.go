package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/client"

	"github.com/fuomag9/meshwatch/internal/models"
)

// DockerMonitor checks if a Docker container is running
type DockerMonitor struct{}

func init() {
	RegisterMonitorType(&DockerMonitor{})
}

func (d *DockerMonitor) Name() string {
	return "docker"
}

func (d *DockerMonitor) Check(ctx context.Context, monitor *models.Monitor, heartbeat *models.Heartbeat) error {
	containerName := monitor.ConfigString("container", monitor.Hostname)

	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if dockerHost := monitor.ConfigString("docker_host", ""); dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return newCheckError(KindExecution, "failed to create Docker client", err)
	}
	defer cli.Close()

	start := time.Now()
	containerJSON, err := cli.ContainerInspect(ctx, containerName)
	ping := time.Since(start).Milliseconds()

	if err != nil {
		if client.IsErrNotFound(err) {
			return newCheckError(KindUnreachable, fmt.Sprintf("container %s not found", containerName), err)
		}
		return newCheckError(KindExecution, "failed to inspect container", err)
	}

	if !containerJSON.State.Running {
		return newCheckError(KindUnreachable, fmt.Sprintf("container is %s", containerJSON.State.Status), nil)
	}

	message := fmt.Sprintf("Container is running - %dms", ping)
	if containerJSON.State.Health != nil {
		health := string(containerJSON.State.Health.Status)
		if health != "healthy" && health != "" {
			return newCheckError(KindUnreachable, fmt.Sprintf("container is not healthy (health: %s)", health), nil)
		}
		message = fmt.Sprintf("Container is running and healthy - %dms", ping)
	}

	heartbeat.Status = models.StatusUp
	heartbeat.Ping = int(ping)
	heartbeat.Message = message
	return nil
}

func (d *DockerMonitor) Validate(monitor *models.Monitor) error {
	if monitor.ConfigString("container", monitor.Hostname) == "" {
		return fmt.Errorf("container name or ID is required")
	}

	if host, ok := monitor.Config["docker_host"]; ok {
		if _, ok := host.(string); !ok {
			return fmt.Errorf("docker_host must be a string")
		}
	}

	return nil
}
