package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

func TestScheduler_RunsStagesInOrder(t *testing.T) {
	s := NewScheduler()

	var order []m.Stage

	stages := []Stage{
		{Name: m.StageCollect, Run: func(_ context.Context, p Progress) error {
			order = append(order, m.StageCollect)
			p.AddFiles(3)
			return nil
		}},
		{Name: m.StageBuild, Run: func(_ context.Context, p Progress) error {
			order = append(order, m.StageBuild)
			p.AddChangesets(2)
			return nil
		}},
	}

	require.NoError(t, s.Run(context.Background(), stages))
	require.Equal(t, []m.Stage{m.StageCollect, m.StageBuild}, order)

	snap := s.Snapshot()
	require.Equal(t, m.StageDone, snap.Stage)
	require.Equal(t, 3, snap.Files)
	require.Equal(t, 2, snap.Changesets)
}

func TestScheduler_StageErrorMarksFailed(t *testing.T) {
	s := NewScheduler()

	stages := []Stage{
		{Name: m.StageCollect, Run: func(context.Context, Progress) error {
			return ErrAborted
		}},
		{Name: m.StageBuild, Run: func(context.Context, Progress) error {
			t.Fatal("second stage must not run")
			return nil
		}},
	}

	err := s.Run(context.Background(), stages)
	require.ErrorIs(t, err, ErrAborted)
	require.Equal(t, m.StageFailed, s.Snapshot().Stage)
}

func TestScheduler_AbortStopsAtNextCheckpoint(t *testing.T) {
	s := NewScheduler()

	stages := []Stage{
		{Name: m.StageCollect, Run: func(ctx context.Context, p Progress) error {
			s.Abort()
			return p.Checkpoint(ctx)
		}},
	}

	err := s.Run(context.Background(), stages)
	require.ErrorIs(t, err, ErrAborted)
}

func TestScheduler_SuspendBlocksCheckpointUntilResume(t *testing.T) {
	s := NewScheduler()
	s.Suspend()

	resumed := make(chan struct{})

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		stages := []Stage{
			{Name: m.StageCollect, Run: func(ctx context.Context, p Progress) error {
				return p.Checkpoint(ctx)
			}},
		}

		// Run's first checkpoint blocks until Resume below.
		runErr = s.Run(context.Background(), stages)
		close(resumed)
	}()

	select {
	case <-resumed:
		t.Fatal("worker ran while suspended")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, s.Snapshot().Suspended)

	s.Resume()
	wg.Wait()

	require.NoError(t, runErr)
	require.False(t, s.Snapshot().Suspended)
}

func TestScheduler_AbortReleasesSuspendedWorker(t *testing.T) {
	s := NewScheduler()
	s.Suspend()

	done := make(chan error, 1)

	go func() {
		stages := []Stage{
			{Name: m.StageCollect, Run: func(ctx context.Context, p Progress) error {
				return p.Checkpoint(ctx)
			}},
		}
		done <- s.Run(context.Background(), stages)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Abort()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrAborted)
	case <-time.After(time.Second):
		t.Fatal("abort did not release the suspended worker")
	}
}

func TestScheduler_CheckpointHonorsContext(t *testing.T) {
	s := NewScheduler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Checkpoint(ctx)
	require.ErrorIs(t, err, ErrAborted)
}

func TestScheduler_SnapshotIsACopy(t *testing.T) {
	s := NewScheduler()
	s.AddRevisions(5)

	snap := s.Snapshot()
	snap.Revisions = 99

	require.Equal(t, 5, s.Snapshot().Revisions)
}

func TestScheduler_ActiveTimeAdvancesWhileRunning(t *testing.T) {
	s := NewScheduler()

	stages := []Stage{
		{Name: m.StageCollect, Run: func(context.Context, Progress) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		}},
	}

	require.NoError(t, s.Run(context.Background(), stages))

	active := s.Snapshot().Active
	require.GreaterOrEqual(t, active, 20*time.Millisecond)

	// Idle after the run: active time no longer advances.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, active, s.Snapshot().Active)
}
