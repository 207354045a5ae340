package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fuomag9/meshwatch/internal/models"
)

// --- fakes ---

type fakeStore struct {
	mu         sync.Mutex
	monitors   []*models.Monitor
	last       *models.Heartbeat
	saved      []models.Heartbeat
	saveErrors int
}

func (f *fakeStore) ListActiveMonitors(ctx context.Context) ([]*models.Monitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.monitors, nil
}

func (f *fakeStore) LatestHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error) {
	return f.last, nil
}

func (f *fakeStore) SaveHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErrors > 0 {
		f.saveErrors--
		return errors.New("connection reset")
	}
	f.saved = append(f.saved, *hb)
	return nil
}

func (f *fakeStore) heartbeats() []models.Heartbeat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Heartbeat(nil), f.saved...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Heartbeat
}

func (f *fakeNotifier) Notify(ctx context.Context, m *models.Monitor, hb *models.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *hb)
	return nil
}

type fakeHub struct {
	n atomic.Int32
}

func (f *fakeHub) Broadcast(msgType string, payload interface{}) error {
	f.n.Add(1)
	return nil
}

// scriptedProbe answers checks from a list of errors; nil means a pong.
type scriptedProbe struct {
	name    string
	mu      sync.Mutex
	results []error
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (p *scriptedProbe) Name() string { return p.name }
func (p *scriptedProbe) Validate(m *models.Monitor) error { return nil }

func (p *scriptedProbe) Check(ctx context.Context, m *models.Monitor, hb *models.Heartbeat) error {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	if n > p.maxInFlight.Load() {
		p.maxInFlight.Store(n)
	}
	p.calls.Add(1)

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	var err error
	if len(p.results) > 0 {
		err = p.results[0]
		p.results = p.results[1:]
	}
	p.mu.Unlock()

	if err != nil {
		hb.Message = "partial"
		hb.Ping = 99
		return err
	}
	hb.Status = models.StatusUp
	hb.Ping = 12
	hb.Message = "OK"
	return nil
}

func newTestExecutor(t *testing.T, store *fakeStore, opts ExecutorOptions) *Executor {
	t.Helper()
	e, err := NewExecutor(zap.NewNop(), store, opts)
	require.NoError(t, err)
	e.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}
	return e
}

func newJob(e *Executor, m *models.Monitor) *monitorJob {
	return &monitorJob{monitor: m, executor: e, state: checkState{lastStatus: noStatus}}
}

// --- tests ---

func TestRunCheck_UnknownType(t *testing.T) {
	m := &models.Monitor{ID: 7, Type: "carrier-pigeon", Interval: 10}
	hb, err := RunCheck(context.Background(), m)

	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Equal(t, models.StatusDown, hb.Status)
	assert.Equal(t, 7, hb.MonitorID)
	assert.Contains(t, hb.Message, "carrier-pigeon")
}

func TestRunCheck_FailureDiscardsPartialHeartbeat(t *testing.T) {
	probe := &scriptedProbe{name: "test-partial", results: []error{newCheckError(KindUnreachable, "gone", nil)}}
	RegisterMonitorType(probe)

	hb, err := RunCheck(context.Background(), &models.Monitor{ID: 1, Type: probe.name, Interval: 10})
	require.Error(t, err)
	assert.Equal(t, models.StatusDown, hb.Status)
	assert.Zero(t, hb.Ping)
	assert.Equal(t, "gone", hb.Message)
}

func TestRunCheck_DeadlineBecomesTimeout(t *testing.T) {
	probe := &scriptedProbe{name: "test-slow", delay: 5 * time.Second}
	RegisterMonitorType(probe)

	m := &models.Monitor{ID: 1, Type: probe.name, Interval: 1} // 800ms budget
	hb, err := RunCheck(context.Background(), m)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, models.StatusDown, hb.Status)
}

func TestExecutor_RetryCycle(t *testing.T) {
	probe := &scriptedProbe{name: "test-retry", results: []error{
		nil,
		newCheckError(KindTimeout, "node1: timed out", nil),
		newCheckError(KindTimeout, "node1: timed out", nil),
		nil,
	}}
	RegisterMonitorType(probe)

	store := &fakeStore{}
	notifier := &fakeNotifier{}
	hub := &fakeHub{}
	reg := prometheus.NewRegistry()
	e := newTestExecutor(t, store, ExecutorOptions{Notifier: notifier, Hub: hub, Metrics: NewMetrics(reg)})
	defer e.Stop()

	m := &models.Monitor{ID: 3, Name: "node1", Type: probe.name, Hostname: "node1", Interval: 60, RetryInterval: 5, MaxRetries: 1}
	job := newJob(e, m)
	ctx := context.Background()

	next, ok := job.runCheck(ctx)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, next)

	next, _ = job.runCheck(ctx)
	assert.Equal(t, 5*time.Second, next)

	next, _ = job.runCheck(ctx)
	assert.Equal(t, 60*time.Second, next)

	job.runCheck(ctx)
	e.alerts.Wait()

	saved := store.heartbeats()
	require.Len(t, saved, 4)

	assert.Equal(t, models.StatusUp, saved[0].Status)
	assert.Equal(t, 12, saved[0].Ping)
	assert.Equal(t, "OK", saved[0].Message)
	assert.True(t, saved[0].Important)

	assert.Equal(t, models.StatusPending, saved[1].Status)
	assert.Zero(t, saved[1].Ping)
	assert.Equal(t, "node1: timed out", saved[1].Message)
	assert.Equal(t, 1, saved[1].Retries)

	assert.Equal(t, models.StatusDown, saved[2].Status)
	assert.Zero(t, saved[2].Ping)
	assert.True(t, saved[2].Important)

	assert.Equal(t, models.StatusUp, saved[3].Status)
	assert.True(t, saved[3].Important)

	notifier.mu.Lock()
	var alerted []int
	for _, hb := range notifier.sent {
		alerted = append(alerted, hb.Status)
	}
	notifier.mu.Unlock()
	// alerts are delivered concurrently, order is not guaranteed
	assert.ElementsMatch(t, []int{models.StatusDown, models.StatusUp}, alerted)

	assert.Equal(t, int32(4), hub.n.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.failures.WithLabelValues(probe.name, "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.up.WithLabelValues("3", "node1", probe.name)))
}

func TestExecutor_SaveRetriedWithBackoff(t *testing.T) {
	probe := &scriptedProbe{name: "test-save"}
	RegisterMonitorType(probe)

	store := &fakeStore{saveErrors: 2}
	e := newTestExecutor(t, store, ExecutorOptions{})
	defer e.Stop()

	job := newJob(e, &models.Monitor{ID: 1, Type: probe.name, Interval: 10})
	job.runCheck(context.Background())

	assert.Len(t, store.heartbeats(), 1)
}

func TestExecutor_SeedsStateFromLastHeartbeat(t *testing.T) {
	probe := &scriptedProbe{name: "test-seed", results: []error{errors.New("still broken")}}
	RegisterMonitorType(probe)

	store := &fakeStore{last: &models.Heartbeat{Status: models.StatusDown}}
	notifier := &fakeNotifier{}
	e := newTestExecutor(t, store, ExecutorOptions{Notifier: notifier})

	m := &models.Monitor{ID: 9, Name: "n", Type: probe.name, Hostname: "n", Interval: 60}
	require.NoError(t, e.StartMonitor(m))
	require.Eventually(t, func() bool { return len(store.heartbeats()) == 1 }, 2*time.Second, 10*time.Millisecond)
	e.Stop()

	hb := store.heartbeats()[0]
	assert.Equal(t, models.StatusDown, hb.Status)
	assert.False(t, hb.Important, "DOWN after DOWN is not a transition")
	assert.Empty(t, notifier.sent)
}

func TestExecutor_StartAndStop(t *testing.T) {
	probe := &scriptedProbe{name: "test-start"}
	RegisterMonitorType(probe)

	store := &fakeStore{monitors: []*models.Monitor{
		{ID: 1, Name: "a", Type: probe.name, Hostname: "a", Interval: 60, Active: true},
		{ID: 2, Name: "", Type: probe.name, Hostname: "b", Interval: 60, Active: true}, // invalid, skipped
	}}
	e := newTestExecutor(t, store, ExecutorOptions{})

	require.NoError(t, e.Start(context.Background()))
	assert.True(t, e.IsRunning(1))
	assert.False(t, e.IsRunning(2))

	require.Eventually(t, func() bool { return len(store.heartbeats()) == 1 }, 2*time.Second, 10*time.Millisecond)

	e.StopMonitor(1)
	assert.False(t, e.IsRunning(1))
	e.Stop()
}

func TestExecutor_Sync(t *testing.T) {
	probe := &scriptedProbe{name: "test-sync"}
	RegisterMonitorType(probe)

	edited := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{monitors: []*models.Monitor{
		{ID: 1, Name: "a", Type: probe.name, Hostname: "a", Interval: 60, Active: true},
	}}
	e := newTestExecutor(t, store, ExecutorOptions{})
	defer e.Stop()

	require.NoError(t, e.Sync(context.Background()))
	assert.True(t, e.IsRunning(1))

	store.mu.Lock()
	store.monitors = []*models.Monitor{
		{ID: 2, Name: "b", Type: probe.name, Hostname: "b", Interval: 60, Active: true},
		{ID: 3, Name: "c", Type: probe.name, Hostname: "c", Interval: 60, Active: true, UpdatedAt: edited},
	}
	store.mu.Unlock()

	require.NoError(t, e.Sync(context.Background()))
	assert.False(t, e.IsRunning(1), "removed monitors are stopped")
	assert.True(t, e.IsRunning(2))
	assert.True(t, e.IsRunning(3))

	e.mu.Lock()
	job := e.monitors[3]
	e.mu.Unlock()

	require.NoError(t, e.Sync(context.Background()))
	e.mu.Lock()
	assert.Same(t, job, e.monitors[3], "unchanged monitors keep their job")
	e.mu.Unlock()
}

func TestExecutor_RestartDropsStaleMetrics(t *testing.T) {
	probe := &scriptedProbe{name: "test-rename"}
	RegisterMonitorType(probe)

	reg := prometheus.NewRegistry()
	store := &fakeStore{}
	e := newTestExecutor(t, store, ExecutorOptions{Metrics: NewMetrics(reg)})
	defer e.Stop()

	require.NoError(t, e.StartMonitor(&models.Monitor{ID: 5, Name: "old-name", Type: probe.name, Hostname: "h", Interval: 60}))
	require.Eventually(t, func() bool { return len(store.heartbeats()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(e.metrics.up))

	require.NoError(t, e.StartMonitor(&models.Monitor{ID: 5, Name: "new-name", Type: probe.name, Hostname: "h", Interval: 60}))
	require.Eventually(t, func() bool { return len(store.heartbeats()) == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(e.metrics.up))
	assert.Equal(t, 1, testutil.CollectAndCount(e.metrics.ping))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.up.WithLabelValues("5", "new-name", probe.name)))
}

func TestExecutor_ChecksOfOneMonitorNeverOverlap(t *testing.T) {
	probe := &scriptedProbe{name: "test-overlap", delay: 300 * time.Millisecond}
	RegisterMonitorType(probe)

	store := &fakeStore{}
	e := newTestExecutor(t, store, ExecutorOptions{MaxConcurrentChecks: 4})

	m := &models.Monitor{ID: 1, Name: "a", Type: probe.name, Hostname: "a", Interval: 1}
	require.NoError(t, e.StartMonitor(m))
	require.Eventually(t, func() bool { return probe.calls.Load() >= 2 }, 4*time.Second, 20*time.Millisecond)
	e.Stop()

	assert.Equal(t, int32(1), probe.maxInFlight.Load())
}

func TestExecutor_StopCancelsRunningCheck(t *testing.T) {
	probe := &scriptedProbe{name: "test-cancel", delay: 10 * time.Second}
	RegisterMonitorType(probe)

	store := &fakeStore{}
	e := newTestExecutor(t, store, ExecutorOptions{})

	m := &models.Monitor{ID: 1, Name: "a", Type: probe.name, Hostname: "a", Interval: 60}
	require.NoError(t, e.StartMonitor(m))
	require.Eventually(t, func() bool { return probe.inFlight.Load() == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	e.Stop()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, store.heartbeats(), "a cancelled check is not recorded")
}
