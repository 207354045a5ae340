package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePruner struct {
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 12, f.err
}

type fakeSyncer struct {
	calls int
}

func (f *fakeSyncer) Sync(ctx context.Context) error {
	f.calls++
	return nil
}

func TestCleanupOldHeartbeats_UsesRetention(t *testing.T) {
	pruner := &fakePruner{}
	s := NewScheduler(zap.NewNop(), pruner, nil, 90)
	now := time.Date(2026, 6, 1, 3, 14, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.cleanupOldHeartbeats(context.Background())

	require.Len(t, pruner.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 3, 3, 3, 14, 0, 0, time.UTC), pruner.cutoffs[0])
}

func TestCleanupOldHeartbeats_Disabled(t *testing.T) {
	pruner := &fakePruner{}
	s := NewScheduler(zap.NewNop(), pruner, nil, 0)
	s.cleanupOldHeartbeats(context.Background())
	assert.Empty(t, pruner.cutoffs)
}

func TestCleanupOldHeartbeats_ErrorIsLogged(t *testing.T) {
	pruner := &fakePruner{err: errors.New("db gone")}
	s := NewScheduler(zap.NewNop(), pruner, nil, 30)
	assert.NotPanics(t, func() { s.cleanupOldHeartbeats(context.Background()) })
}

func TestScheduler_StartRegistersJobs(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewScheduler(zap.NewNop(), &fakePruner{}, syncer, 90)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 2)

	s.syncMonitors(context.Background())
	assert.Equal(t, 1, syncer.calls)
}
