package api

import (
	"database/sql"
	"os/exec"
	"time"

	"github.com/heptiolabs/healthcheck"
)

// NewHealth builds the /live and /ready checks. db may be nil when the
// process runs without a database.
func NewHealth(db *sql.DB, tailscaleBinary string) healthcheck.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))

	if db != nil {
		health.AddReadinessCheck("database", healthcheck.DatabasePingCheck(db, time.Second))
	}
	health.AddReadinessCheck("tailscale-binary", func() error {
		_, err := exec.LookPath(tailscaleBinary)
		return err
	})

	return health
}
