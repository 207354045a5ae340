package monitor

import (
	"context"
	"fmt"

	"github.com/go-ping/ping"

	"github.com/fuomag9/meshwatch/internal/models"
)

// PingMonitor performs ICMP ping checks
type PingMonitor struct{}

func init() {
	RegisterMonitorType(&PingMonitor{})
}

func (p *PingMonitor) Name() string {
	return "ping"
}

func (p *PingMonitor) Check(ctx context.Context, monitor *models.Monitor, heartbeat *models.Heartbeat) error {
	count := configInt(monitor, "packet_count", 4)
	size := configInt(monitor, "packet_size", 56)

	pinger, err := ping.NewPinger(monitor.Hostname)
	if err != nil {
		return newCheckError(KindExecution, "failed to create pinger", err)
	}

	pinger.Count = count
	pinger.Size = size
	pinger.Timeout = CheckTimeout(monitor)
	pinger.SetPrivileged(false) // unprivileged (UDP) unless asked otherwise
	if priv, ok := monitor.Config["privileged"].(bool); ok && priv {
		pinger.SetPrivileged(true)
	}

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return newCheckError(KindTimeout, fmt.Sprintf("no reply from %s", monitor.Hostname), ctx.Err())
	case err := <-done:
		if err != nil {
			return newCheckError(KindExecution, "ping failed", err)
		}
	}

	stats := pinger.Statistics()

	if stats.PacketsRecv == 0 {
		return newCheckError(KindTimeout, fmt.Sprintf("no packets received from %s (100%% packet loss)", monitor.Hostname), nil)
	}

	// more than half of the packets lost counts as down
	if stats.PacketLoss > 50 {
		return newCheckError(KindUnreachable, fmt.Sprintf("high packet loss: %.1f%% - %dms avg", stats.PacketLoss, stats.AvgRtt.Milliseconds()), nil)
	}

	heartbeat.Status = models.StatusUp
	heartbeat.Ping = int(stats.AvgRtt.Milliseconds())
	heartbeat.Message = fmt.Sprintf("Ping OK - %dms avg (loss: %.1f%%)", stats.AvgRtt.Milliseconds(), stats.PacketLoss)
	return nil
}

func (p *PingMonitor) Validate(monitor *models.Monitor) error {
	if monitor.Hostname == "" {
		return fmt.Errorf("host is required")
	}

	if count, ok := monitor.Config["packet_count"]; ok {
		c, ok := count.(float64)
		if !ok {
			return fmt.Errorf("packet_count must be a number")
		}
		if c < 1 || c > 100 {
			return fmt.Errorf("packet count must be between 1 and 100")
		}
	}

	if size, ok := monitor.Config["packet_size"]; ok {
		s, ok := size.(float64)
		if !ok {
			return fmt.Errorf("packet_size must be a number")
		}
		if s < 1 || s > 65500 {
			return fmt.Errorf("packet size must be between 1 and 65500")
		}
	}

	return nil
}

// configInt reads a JSON number option from the monitor config
func configInt(monitor *models.Monitor, key string, fallback int) int {
	if v, ok := monitor.Config[key].(float64); ok {
		return int(v)
	}
	return fallback
}
