package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fuomag9/meshwatch/internal/models"
)

// TailscalePingMonitor checks reachability of a tailnet node with
// `tailscale ping`.
type TailscalePingMonitor struct {
	Binary string
	Runner CommandRunner
}

func init() {
	RegisterMonitorType(NewTailscalePingMonitor("tailscale"))
}

// NewTailscalePingMonitor creates the probe running the given tailscale binary
func NewTailscalePingMonitor(binary string) *TailscalePingMonitor {
	return &TailscalePingMonitor{
		Binary: binary,
		Runner: ExecRunner{},
	}
}

func (t *TailscalePingMonitor) Name() string {
	return "tailscale-ping"
}

func (t *TailscalePingMonitor) Validate(monitor *models.Monitor) error {
	if strings.TrimSpace(monitor.Hostname) == "" {
		return fmt.Errorf("hostname is required")
	}
	if strings.ContainsAny(monitor.Hostname, " \t\n") {
		return fmt.Errorf("hostname must not contain whitespace")
	}
	if monitor.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	return nil
}

func (t *TailscalePingMonitor) Check(ctx context.Context, monitor *models.Monitor, heartbeat *models.Heartbeat) error {
	output, err := t.runPing(ctx, monitor.Hostname, monitor.Interval)
	if err == nil {
		err = parseTailscaleOutput(output, heartbeat)
	}
	if err != nil {
		return fmt.Errorf("error checking tailscale ping: %w", err)
	}
	return nil
}

// runPing sends a single ping and returns stdout.
func (t *TailscalePingMonitor) runPing(ctx context.Context, hostname string, interval int) (string, error) {
	timeout := DeriveTimeout(interval)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, err := t.Runner.Run(ctx, t.Binary, "ping", "--c", "1", hostname)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", newCheckError(KindTimeout, fmt.Sprintf("no reply from %s within %s", hostname, timeout), ctx.Err())
	}
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		return "", newCheckError(KindExecution, fmt.Sprintf("error in output: %s", msg), nil)
	}
	// tailscale exits non-zero on a timed out ping but still explains why
	// on stdout, so output wins over the exit status.
	if len(bytes.TrimSpace(stdout)) == 0 {
		if err != nil {
			return "", newCheckError(KindExecution, fmt.Sprintf("failed to run %s", t.Binary), err)
		}
		return "", newCheckError(KindExecution, "no output from tailscale ping", nil)
	}
	return string(stdout), nil
}

// outputRule maps a substring of a `tailscale ping` output line to its
// outcome. A nil error from apply means the check succeeded.
type outputRule struct {
	substr string
	apply  func(line string, heartbeat *models.Heartbeat) error
}

// tailscaleOutputRules are evaluated in order for each line; the first
// matching rule decides the check.
//
//	"pong from"             -> UP, ping parsed from " in <latency>"
//	"timed out"             -> KindTimeout
//	"no matching peer"      -> KindUnreachable (unknown node or ACL denied)
//	"is local Tailscale IP" -> KindConfiguration (pinging ourselves)
//	any other non-empty     -> KindUnexpectedOutput
var tailscaleOutputRules = []outputRule{
	{"pong from", applyPong},
	{"timed out", func(line string, _ *models.Heartbeat) error {
		return newCheckError(KindTimeout, fmt.Sprintf(`ping timed out: "%s"`, line), nil)
	}},
	{"no matching peer", func(line string, _ *models.Heartbeat) error {
		return newCheckError(KindUnreachable, fmt.Sprintf(`nonexistent or inaccessible due to ACLs: "%s"`, line), nil)
	}},
	{"is local Tailscale IP", func(line string, _ *models.Heartbeat) error {
		return newCheckError(KindConfiguration, fmt.Sprintf(`tailscale ping only works against other machines: "%s"`, line), nil)
	}},
}

func parseTailscaleOutput(output string, heartbeat *models.Heartbeat) error {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		for _, rule := range tailscaleOutputRules {
			if strings.Contains(line, rule.substr) {
				return rule.apply(line, heartbeat)
			}
		}
		return newCheckError(KindUnexpectedOutput, fmt.Sprintf(`unexpected output: "%s"`, line), nil)
	}
	return newCheckError(KindExecution, "no output from tailscale ping", nil)
}

func applyPong(line string, heartbeat *models.Heartbeat) error {
	idx := strings.Index(line, " in ")
	if idx < 0 {
		return newCheckError(KindUnexpectedOutput, fmt.Sprintf(`no latency in reply: "%s"`, line), nil)
	}
	fields := strings.Fields(line[idx+len(" in "):])
	if len(fields) == 0 {
		return newCheckError(KindUnexpectedOutput, fmt.Sprintf(`no latency in reply: "%s"`, line), nil)
	}
	ping, err := parseLatency(fields[0])
	if err != nil {
		return newCheckError(KindUnexpectedOutput, fmt.Sprintf(`bad latency in reply: "%s"`, line), err)
	}

	heartbeat.Status = models.StatusUp
	heartbeat.Ping = ping
	heartbeat.Message = "OK"
	return nil
}

// parseLatency turns a latency token such as "23ms", "1.5ms" or "1.2s" into
// whole milliseconds, truncating fractions. A bare number is milliseconds.
func parseLatency(token string) (int, error) {
	if d, err := time.ParseDuration(token); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative latency %s", token)
		}
		return int(d.Milliseconds()), nil
	}
	ms, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid latency %q", token)
	}
	if ms < 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("invalid latency %q", token)
	}
	return int(ms), nil
}
