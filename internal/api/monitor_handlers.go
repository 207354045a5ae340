package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fuomag9/meshwatch/internal/database"
	"github.com/fuomag9/meshwatch/internal/models"
	"github.com/fuomag9/meshwatch/internal/monitor"
	"github.com/fuomag9/meshwatch/internal/uptime"
)

const (
	defaultHeartbeatLimit = 100
	maxHeartbeatLimit     = 1000
)

// Store is the read side of persistence the API serves from
type Store interface {
	uptime.Counter
	ListMonitors(ctx context.Context) ([]*models.Monitor, error)
	GetMonitor(ctx context.Context, id int) (*models.Monitor, error)
	LatestHeartbeats(ctx context.Context, monitorIDs []int) (map[int]models.Heartbeat, error)
	ListHeartbeats(ctx context.Context, monitorID, limit int) ([]models.Heartbeat, error)
}

// MonitorWithStatus includes monitor data with its last heartbeat
type MonitorWithStatus struct {
	*models.Monitor
	LastHeartbeat *models.Heartbeat `json:"last_heartbeat,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// loadMonitor resolves the {id} URL parameter, writing the error response
// itself when it fails.
func loadMonitor(w http.ResponseWriter, r *http.Request, store Store, logger *zap.Logger) (*models.Monitor, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid monitor ID", http.StatusBadRequest)
		return nil, false
	}

	mon, err := store.GetMonitor(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "Monitor not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logger.Error("monitor_fetch_failed", zap.Int("monitor_id", id), zap.Error(err))
		http.Error(w, "Failed to fetch monitor", http.StatusInternalServerError)
		return nil, false
	}
	return mon, true
}

// HandleGetMonitorTypes lists the registered monitor types
func HandleGetMonitorTypes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, monitor.MonitorTypeNames())
	}
}

// HandleGetMonitors returns all monitors with their last heartbeat
func HandleGetMonitors(store Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monitors, err := store.ListMonitors(r.Context())
		if err != nil {
			logger.Error("monitor_list_failed", zap.Error(err))
			http.Error(w, "Failed to fetch monitors", http.StatusInternalServerError)
			return
		}

		ids := make([]int, 0, len(monitors))
		for _, mon := range monitors {
			ids = append(ids, mon.ID)
		}

		latest, err := store.LatestHeartbeats(r.Context(), ids)
		if err != nil {
			// the list is still useful without status
			logger.Warn("latest_heartbeats_failed", zap.Error(err))
		}

		result := make([]MonitorWithStatus, len(monitors))
		for i, mon := range monitors {
			result[i] = MonitorWithStatus{Monitor: mon}
			if hb, ok := latest[mon.ID]; ok {
				result[i].LastHeartbeat = &hb
			}
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// HandleGetMonitor returns a single monitor by ID
func HandleGetMonitor(store Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mon, ok := loadMonitor(w, r, store, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, mon)
	}
}

// HandleGetHeartbeats returns recent heartbeats of a monitor, newest first
func HandleGetHeartbeats(store Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mon, ok := loadMonitor(w, r, store, logger)
		if !ok {
			return
		}

		limit := defaultHeartbeatLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxHeartbeatLimit)
		}

		heartbeats, err := store.ListHeartbeats(r.Context(), mon.ID, limit)
		if err != nil {
			logger.Error("heartbeat_list_failed", zap.Int("monitor_id", mon.ID), zap.Error(err))
			http.Error(w, "Failed to fetch heartbeats", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, heartbeats)
	}
}

// HandleCheckMonitor runs one check of a monitor right away and returns
// the resulting heartbeat. The result is not stored and does not affect the
// monitor's retry state.
func HandleCheckMonitor(store Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mon, ok := loadMonitor(w, r, store, logger)
		if !ok {
			return
		}

		heartbeat, err := monitor.RunCheck(r.Context(), mon)
		resp := struct {
			Heartbeat *models.Heartbeat `json:"heartbeat"`
			Kind      string            `json:"error_kind,omitempty"`
		}{Heartbeat: heartbeat}
		if err != nil {
			resp.Kind = monitor.KindOf(err).String()
			logger.Info("manual_check_failed", zap.Int("monitor_id", mon.ID), zap.String("kind", resp.Kind), zap.Error(err))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
