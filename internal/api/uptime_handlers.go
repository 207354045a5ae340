package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/meshwatch/internal/uptime"
)

var uptimePeriods = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// HandleGetMonitorUptime returns uptime statistics for a monitor over
// ?period= (24h, 7d, 30d or 90d; default 24h)
func HandleGetMonitorUptime(store Store, logger *zap.Logger) http.HandlerFunc {
	calculator := uptime.NewCalculator(store)
	return func(w http.ResponseWriter, r *http.Request) {
		period := r.URL.Query().Get("period")
		if period == "" {
			period = "24h"
		}
		d, ok := uptimePeriods[period]
		if !ok {
			http.Error(w, "Invalid period", http.StatusBadRequest)
			return
		}

		mon, ok := loadMonitor(w, r, store, logger)
		if !ok {
			return
		}

		stats, err := calculator.ForPeriod(r.Context(), mon.ID, d)
		if err != nil {
			logger.Error("uptime_failed", zap.Int("monitor_id", mon.ID), zap.Error(err))
			http.Error(w, "Failed to calculate uptime", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

// HandleGetMonitorUptimeHistory returns daily uptime for the last ?days=
// days (default 30, at most 365)
func HandleGetMonitorUptimeHistory(store Store, logger *zap.Logger) http.HandlerFunc {
	calculator := uptime.NewCalculator(store)
	return func(w http.ResponseWriter, r *http.Request) {
		days := 30
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 365 {
				http.Error(w, "Invalid days", http.StatusBadRequest)
				return
			}
			days = n
		}

		mon, ok := loadMonitor(w, r, store, logger)
		if !ok {
			return
		}

		history, err := calculator.DailyHistory(r.Context(), mon.ID, days)
		if err != nil {
			logger.Error("uptime_history_failed", zap.Int("monitor_id", mon.ID), zap.Error(err))
			http.Error(w, "Failed to get uptime history", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, history)
	}
}
