package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fuomag9/meshwatch/internal/logging"
	"github.com/fuomag9/meshwatch/internal/models"
	"github.com/fuomag9/meshwatch/internal/monitor"
)

// errCheckFailed makes the process exit non-zero after the result has
// been printed.
var errCheckFailed = errors.New("check failed")

type checkResult struct {
	Heartbeat *models.Heartbeat `json:"heartbeat"`
	Status    string            `json:"status"`
	Kind      string            `json:"error_kind,omitempty"`
}

func buildCheckCmd() *cobra.Command {
	var (
		monitorType string
		hostname    string
		interval    int
		timeout     int
		binary      string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one check and print the heartbeat as JSON",
		Long: "Run a single check without a database. The heartbeat is printed on stdout " +
			"and the exit status is 1 when the check failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewConsoleLogger(logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if binary != "" {
				monitor.RegisterMonitorType(monitor.NewTailscalePingMonitor(binary))
			}

			m := &models.Monitor{
				Name:     hostname,
				Type:     monitorType,
				Hostname: hostname,
				Interval: interval,
				Timeout:  timeout,
				Active:   true,
			}
			return runCheck(cmd, logger, m, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&monitorType, "type", "tailscale-ping", "Monitor type")
	cmd.Flags().StringVar(&hostname, "hostname", "", "Peer to check")
	cmd.Flags().IntVar(&interval, "interval", 60, "Check interval in seconds, used to derive the timeout")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Timeout in seconds (0 derives it from --interval)")
	cmd.Flags().StringVar(&binary, "tailscale-binary", os.Getenv("TAILSCALE_BINARY"), "Path to the tailscale CLI")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("hostname")

	return cmd
}

func runCheck(cmd *cobra.Command, logger *zap.Logger, m *models.Monitor, out io.Writer) error {
	if err := monitor.ValidateMonitor(m); err != nil {
		return err
	}

	heartbeat, checkErr := monitor.RunCheck(cmd.Context(), m)

	result := checkResult{Heartbeat: heartbeat, Status: models.StatusText(heartbeat.Status)}
	if checkErr != nil {
		result.Kind = monitor.KindOf(checkErr).String()
		logger.Debug("check_failed", zap.String("kind", result.Kind), zap.Error(checkErr))
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if checkErr != nil {
		return errCheckFailed
	}
	return nil
}
