package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/fuomag9/meshwatch/internal/models"
)

// Store is the persistence the executor needs
type Store interface {
	ListActiveMonitors(ctx context.Context) ([]*models.Monitor, error)
	LatestHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error)
	SaveHeartbeat(ctx context.Context, heartbeat *models.Heartbeat) error
}

// Notifier delivers alerts for important heartbeats
type Notifier interface {
	Notify(ctx context.Context, monitor *models.Monitor, heartbeat *models.Heartbeat) error
}

// Broadcaster pushes heartbeats to live clients
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// ExecutorOptions configures optional collaborators of the executor
type ExecutorOptions struct {
	Notifier            Notifier
	Hub                 Broadcaster
	Metrics             *Metrics
	MaxConcurrentChecks int
}

// Executor manages monitor execution
type Executor struct {
	logger   *zap.Logger
	store    Store
	notifier Notifier
	hub      Broadcaster
	metrics  *Metrics
	pool     *ants.Pool

	ctx      context.Context
	monitors map[int]*monitorJob
	mu       sync.Mutex
	alerts   sync.WaitGroup

	newBackOff func() backoff.BackOff
}

// monitorJob is the check loop of one monitor. Its state is only touched
// by the loop goroutine.
type monitorJob struct {
	monitor  *models.Monitor
	executor *Executor
	cancel   context.CancelFunc
	done     chan struct{}
	state    checkState
}

// NewExecutor creates a new monitor executor
func NewExecutor(logger *zap.Logger, store Store, opts ExecutorOptions) (*Executor, error) {
	size := opts.MaxConcurrentChecks
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create check pool: %w", err)
	}
	return &Executor{
		logger:   logger,
		store:    store,
		notifier: opts.Notifier,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		pool:     pool,
		ctx:      context.Background(),
		monitors: make(map[int]*monitorJob),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return backoff.WithMaxRetries(b, 3)
		},
	}, nil
}

// Start loads all active monitors and starts monitoring. Jobs stop when ctx
// is cancelled or Stop is called.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()

	monitors, err := e.store.ListActiveMonitors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load monitors: %w", err)
	}

	e.logger.Info("starting_monitors", zap.Int("count", len(monitors)))

	for _, monitor := range monitors {
		if err := e.StartMonitor(monitor); err != nil {
			e.logger.Warn("monitor_not_started",
				zap.Int("monitor_id", monitor.ID),
				zap.String("monitor_name", monitor.Name),
				zap.Error(err),
			)
		}
	}

	return nil
}

// StartMonitor starts (or restarts) monitoring for a specific monitor
func (e *Executor) StartMonitor(monitor *models.Monitor) error {
	if err := ValidateMonitor(monitor); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if job, exists := e.monitors[monitor.ID]; exists {
		job.stopAndWait()
		delete(e.monitors, monitor.ID)
		// labels carry the name, drop the old series
		e.metrics.forget(job.monitor)
	}

	// Pick up where the previous run left off
	state := checkState{lastStatus: noStatus}
	last, err := e.store.LatestHeartbeat(e.ctx, monitor.ID)
	if err != nil {
		e.logger.Warn("last_heartbeat_unavailable", zap.Int("monitor_id", monitor.ID), zap.Error(err))
	} else if last != nil {
		state.lastStatus = last.Status
		state.retries = last.Retries
	}

	ctx, cancel := context.WithCancel(e.ctx)
	job := &monitorJob{
		monitor:  monitor,
		executor: e,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    state,
	}
	e.monitors[monitor.ID] = job

	go job.run(ctx)

	e.logger.Info("monitor_started",
		zap.Int("monitor_id", monitor.ID),
		zap.String("monitor_name", monitor.Name),
		zap.String("type", monitor.Type),
		zap.Int("interval_s", monitor.Interval),
	)
	return nil
}

// Sync reconciles the running jobs with the active monitors in the store:
// new monitors are started, edited ones restarted, and removed or paused
// ones stopped.
func (e *Executor) Sync(ctx context.Context) error {
	monitors, err := e.store.ListActiveMonitors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load monitors: %w", err)
	}

	wanted := make(map[int]bool, len(monitors))
	for _, monitor := range monitors {
		wanted[monitor.ID] = true

		e.mu.Lock()
		job, running := e.monitors[monitor.ID]
		unchanged := running && job.monitor.UpdatedAt.Equal(monitor.UpdatedAt)
		e.mu.Unlock()
		if unchanged {
			continue
		}

		if err := e.StartMonitor(monitor); err != nil {
			e.logger.Warn("monitor_not_started", zap.Int("monitor_id", monitor.ID), zap.Error(err))
		}
	}

	e.mu.Lock()
	var stale []int
	for id := range e.monitors {
		if !wanted[id] {
			stale = append(stale, id)
		}
	}
	e.mu.Unlock()

	for _, id := range stale {
		e.StopMonitor(id)
	}
	return nil
}

// StopMonitor stops monitoring for a specific monitor
func (e *Executor) StopMonitor(monitorID int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if job, exists := e.monitors[monitorID]; exists {
		job.stopAndWait()
		delete(e.monitors, monitorID)
		e.metrics.forget(job.monitor)
		e.logger.Info("monitor_stopped", zap.Int("monitor_id", monitorID))
	}
}

// IsRunning reports whether a monitor is being checked
func (e *Executor) IsRunning(monitorID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.monitors[monitorID]
	return ok
}

// Stop stops all monitors and waits for pending alerts
func (e *Executor) Stop() {
	e.mu.Lock()
	for id, job := range e.monitors {
		job.stopAndWait()
		delete(e.monitors, id)
	}
	e.mu.Unlock()

	e.alerts.Wait()
	e.pool.Release()
	e.logger.Info("all_monitors_stopped")
}

func (job *monitorJob) stopAndWait() {
	job.cancel()
	<-job.done
}

// run checks the monitor until its context ends. The next check is only
// scheduled once the previous one finished, so checks never overlap.
func (job *monitorJob) run(ctx context.Context) {
	defer close(job.done)

	for {
		next, ok := job.runCheck(ctx)
		if !ok {
			return
		}

		timer := time.NewTimer(next)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// runCheck performs a single monitor check and returns the delay before
// the next one. ok is false when the job was stopped mid-check.
func (job *monitorJob) runCheck(ctx context.Context) (next time.Duration, ok bool) {
	e := job.executor
	monitor := job.monitor

	result, checkErr := e.execute(ctx, monitor)
	if ctx.Err() != nil {
		// stopped, the result is not trustworthy
		return 0, false
	}

	out := evaluate(monitor, job.state, checkErr)
	job.state = out.state

	heartbeat := &models.Heartbeat{
		MonitorID: monitor.ID,
		Time:      result.Time,
		Duration:  result.Duration,
		Status:    out.status,
		Important: out.important,
		Retries:   out.retries,
		Message:   result.Message,
	}
	if out.status == models.StatusUp {
		heartbeat.Ping = result.Ping
	}

	e.metrics.observe(monitor, heartbeat, checkErr, time.Duration(result.Duration)*time.Millisecond)

	if err := e.saveHeartbeat(ctx, heartbeat); err != nil {
		e.logger.Error("heartbeat_save_failed", zap.Int("monitor_id", monitor.ID), zap.Error(err))
	}

	if e.hub != nil {
		if err := e.hub.Broadcast("heartbeat", heartbeat); err != nil {
			e.logger.Warn("heartbeat_broadcast_failed", zap.Int("monitor_id", monitor.ID), zap.Error(err))
		}
	}

	if out.notify && e.notifier != nil {
		e.sendAlert(monitor, heartbeat)
	}

	fields := []zap.Field{
		zap.Int("monitor_id", monitor.ID),
		zap.String("monitor_name", monitor.Name),
		zap.String("status", models.StatusText(heartbeat.Status)),
		zap.Int("ping_ms", heartbeat.Ping),
		zap.Duration("next", out.next),
	}
	if checkErr != nil {
		fields = append(fields,
			zap.String("kind", KindOf(checkErr).String()),
			zap.Int("retries", out.retries),
			zap.Error(checkErr),
		)
		e.logger.Warn("check_failed", fields...)
	} else {
		e.logger.Debug("check_ok", fields...)
	}

	return out.next, true
}

// execute runs the check on the worker pool and waits for it.
func (e *Executor) execute(ctx context.Context, monitor *models.Monitor) (*models.Heartbeat, error) {
	type checkResult struct {
		heartbeat *models.Heartbeat
		err       error
	}
	done := make(chan checkResult, 1)

	task := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- checkResult{
					heartbeat: failedHeartbeat(monitor, time.Now(), 0, fmt.Errorf("check panicked: %v", r)),
					err:       newCheckError(KindExecution, fmt.Sprintf("check panicked: %v", r), nil),
				}
			}
		}()
		hb, err := RunCheck(ctx, monitor)
		done <- checkResult{heartbeat: hb, err: err}
	}

	if err := e.pool.Submit(task); err != nil {
		cerr := newCheckError(KindExecution, "failed to schedule check", err)
		return failedHeartbeat(monitor, time.Now(), 0, cerr), cerr
	}
	res := <-done
	return res.heartbeat, res.err
}

func (e *Executor) saveHeartbeat(ctx context.Context, heartbeat *models.Heartbeat) error {
	op := func() error {
		return e.store.SaveHeartbeat(ctx, heartbeat)
	}
	return backoff.Retry(op, backoff.WithContext(e.newBackOff(), ctx))
}

// sendAlert notifies in the background so slow providers never delay the
// next check.
func (e *Executor) sendAlert(monitor *models.Monitor, heartbeat *models.Heartbeat) {
	e.alerts.Add(1)
	go func() {
		defer e.alerts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.notifier.Notify(ctx, monitor, heartbeat); err != nil {
			e.logger.Error("notification_failed", zap.Int("monitor_id", monitor.ID), zap.Error(err))
			return
		}
		e.logger.Info("notification_sent",
			zap.Int("monitor_id", monitor.ID),
			zap.String("status", models.StatusText(heartbeat.Status)),
		)
	}()
}

// RunCheck runs one check of monitor with the deadline of CheckTimeout. It
// always returns a heartbeat: filled by the probe on success, DOWN with the
// failure message otherwise. Nothing is persisted.
func RunCheck(ctx context.Context, monitor *models.Monitor) (*models.Heartbeat, error) {
	start := time.Now()

	monitorType, ok := GetMonitorType(monitor.Type)
	if !ok {
		err := newCheckError(KindConfiguration, fmt.Sprintf("unknown monitor type: %s", monitor.Type), nil)
		return failedHeartbeat(monitor, start, 0, err), err
	}

	checkCtx, cancel := context.WithTimeout(ctx, CheckTimeout(monitor))
	defer cancel()

	heartbeat := &models.Heartbeat{MonitorID: monitor.ID, Time: start}
	err := monitorType.Check(checkCtx, monitor, heartbeat)
	took := int(time.Since(start).Milliseconds())

	if err == nil && heartbeat.Status != models.StatusUp {
		err = newCheckError(KindUnexpectedOutput, "check returned without a result", nil)
	}
	if err != nil {
		if errors.Is(checkCtx.Err(), context.DeadlineExceeded) && KindOf(err) == KindExecution {
			err = newCheckError(KindTimeout, fmt.Sprintf("check exceeded %s", CheckTimeout(monitor)), err)
		}
		return failedHeartbeat(monitor, start, took, err), err
	}

	heartbeat.Duration = took
	return heartbeat, nil
}

// failedHeartbeat builds a fresh DOWN heartbeat, discarding anything a probe
// may have written before failing.
func failedHeartbeat(monitor *models.Monitor, at time.Time, took int, err error) *models.Heartbeat {
	return &models.Heartbeat{
		MonitorID: monitor.ID,
		Time:      at,
		Duration:  took,
		Status:    models.StatusDown,
		Message:   err.Error(),
	}
}
