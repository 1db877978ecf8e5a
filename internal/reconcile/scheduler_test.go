package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/pantrysync/internal/domain"
	"github.com/vbonduro/pantrysync/internal/photostore"
)

type stubOwners struct {
	owners []string
	err    error
}

func (s stubOwners) ListPendingOwners(context.Context) ([]string, error) {
	return s.owners, s.err
}

func TestSchedulerRunOnceReconcilesPendingOwners(t *testing.T) {
	f := newFixture(t)
	a := f.addPending(t, "u1", domain.CollectionItems, "", "milk")
	b := f.addPending(t, "u2", domain.CollectionRecipes, "", "stew")

	s := NewScheduler(f.engine(nil, nil), f.records, time.Minute, slog.Default())
	visited, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, visited)

	assert.NotEmpty(t, f.reload(t, a).Media.RemoteURL)
	assert.NotEmpty(t, f.reload(t, b).Media.RemoteURL)

	visited, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, visited)
}

func TestSchedulerOwnerWithBadRecordDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	stuck := f.addPending(t, "alice", domain.CollectionItems, "", "milk")
	good := f.addPending(t, "bob", domain.CollectionItems, "", "bread")
	f.remote.failKeys[photostore.Key("alice", domain.CategoryItems, stuck.ID)] = true

	s := NewScheduler(f.engine(nil, nil), f.records, time.Minute, slog.Default())
	visited, err := s.RunOnce(context.Background())
	assert.Equal(t, 2, visited)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)

	assert.NotEmpty(t, f.reload(t, good).Media.RemoteURL)
	assert.Empty(t, f.reload(t, stuck).Media.RemoteURL)
}

func TestSchedulerStopsAfterConsecutiveUnavailableOwners(t *testing.T) {
	f := newFixture(t)
	for _, owner := range []string{"u1", "u2", "u3", "u4", "u5"} {
		f.addPending(t, owner, domain.CollectionItems, "", "milk")
	}
	f.remote.failAll = true

	s := NewScheduler(f.engine(nil, nil), f.records, time.Minute, slog.Default())
	visited, err := s.RunOnce(context.Background())
	assert.Equal(t, maxConsecutiveUnavailable, visited)
	assert.Equal(t, maxConsecutiveUnavailable, f.remote.puts)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestSchedulerListError(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.engine(nil, nil), stubOwners{err: errors.New("db closed")}, time.Minute, slog.Default())
	visited, err := s.RunOnce(context.Background())
	assert.Zero(t, visited)
	assert.Error(t, err)
}

func TestSchedulerRunDisabled(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.engine(nil, nil), f.records, 0, slog.Default())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled scheduler did not return")
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	rec := f.addPending(t, "u1", domain.CollectionItems, "", "milk")
	s := NewScheduler(f.engine(nil, nil), f.records, 10*time.Millisecond, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := f.records.GetByID(context.Background(), "u1", domain.CollectionItems, rec.ID)
		return err == nil && got != nil && got.Media.RemoteURL != ""
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
