package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeleter struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakeDeleter) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func (f *fakeDeleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

type everySchedule struct{ d time.Duration }

func (e everySchedule) Next(t time.Time) time.Time { return t.Add(e.d) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 3 * * *", false},
		{"*/15 * * * *", false},
		{"@daily", false},
		{"0 0 3 * * *", true},
		{"not a schedule", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCron(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewPruner_InvalidCron(t *testing.T) {
	_, err := NewPruner(&fakeDeleter{}, time.Hour, "bogus", quietLogger())
	assert.Error(t, err)
}

func TestPruner_PruneOnce(t *testing.T) {
	repo := &fakeDeleter{deleted: 4}
	p, err := NewPruner(repo, 48*time.Hour, "0 3 * * *", quietLogger())
	require.NoError(t, err)

	now := time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	deleted, err := p.PruneOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	require.Len(t, repo.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), repo.cutoffs[0])
}

func TestPruner_PruneOnceError(t *testing.T) {
	repo := &fakeDeleter{err: errors.New("database is locked")}
	p, err := NewPruner(repo, time.Hour, "@hourly", quietLogger())
	require.NoError(t, err)

	_, err = p.PruneOnce(context.Background())
	assert.Error(t, err)
}

func TestPruner_ZeroRetentionKeepsEverything(t *testing.T) {
	repo := &fakeDeleter{}
	p, err := NewPruner(repo, 0, "@hourly", quietLogger())
	require.NoError(t, err)

	deleted, err := p.PruneOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Zero(t, repo.calls())
}

func TestPruner_StartStop(t *testing.T) {
	repo := &fakeDeleter{}
	p, err := NewPruner(repo, time.Hour, "@hourly", quietLogger())
	require.NoError(t, err)
	p.schedule = everySchedule{d: 10 * time.Millisecond}

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "second start is rejected")

	require.Eventually(t, func() bool { return repo.calls() >= 2 }, 2*time.Second, 5*time.Millisecond)

	p.Stop()
	calls := repo.calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, repo.calls(), "no prunes after Stop")

	require.NoError(t, p.Start(context.Background()), "restart after Stop")
	p.Stop()
}
