package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

// Progress receives live counter and status updates from pipeline stages and
// gates their forward progress. Checkpoint is called at item and revision
// boundaries: it blocks while the scheduler is suspended and fails once an
// abort was requested, which is the only way the pipeline ever stops early.
type Progress interface {
	Checkpoint(ctx context.Context) error
	SetStatus(status string)
	AddFiles(n int)
	AddRevisions(n int)
	AddChangesets(n int)
	AddCommits(n int)
	AddTags(n int)
	AddIgnored(n int)
}

// Stage is one pipelined work unit owned by the scheduler.
type Stage struct {
	Name m.Stage
	Run  func(ctx context.Context, progress Progress) error
}

// Scheduler sequences the pipeline stages on a single worker and exposes
// cooperative abort, suspend/resume, and advisory status snapshots for
// polling collaborators. Snapshots are copied under the scheduler's lock;
// pollers never observe partially updated counters.
type Scheduler struct {
	mu        sync.Mutex
	cond      *sync.Cond
	snap      m.ProgressSnapshot
	aborted   bool
	spanStart time.Time
	accum     time.Duration
	running   bool
}

// NewScheduler constructs an idle Scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	s.snap.Stage = m.StageIdle

	return s
}

// Run executes the stages in order on the calling goroutine. It is the
// single writer of all pipeline state; everything else only polls.
func (s *Scheduler) Run(ctx context.Context, stages []Stage) error {
	s.mu.Lock()
	s.running = true
	s.spanStart = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stopSpanLocked()
		s.running = false
		s.mu.Unlock()
	}()

	for _, stage := range stages {
		if err := s.Checkpoint(ctx); err != nil {
			s.setStage(m.StageFailed)
			return err
		}

		s.setStage(stage.Name)
		slog.Info("stage started", "stage", stage.Name)

		if err := stage.Run(ctx, s); err != nil {
			s.setStage(m.StageFailed)

			return fmt.Errorf("%s: %w", stage.Name, err)
		}
	}

	s.setStage(m.StageDone)

	return nil
}

// Abort requests a cooperative stop. The worker finishes its current unit
// and refuses new ones at the next checkpoint.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aborted = true
	s.cond.Broadcast()
}

// Suspend pauses the worker between units. Active-time accounting stops
// until Resume.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Suspended {
		return
	}

	s.snap.Suspended = true
	s.stopSpanLocked()
}

// Resume releases a suspended worker.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.snap.Suspended {
		return
	}

	s.snap.Suspended = false

	if s.running {
		s.spanStart = time.Now()
	}

	s.cond.Broadcast()
}

// Snapshot returns an advisory copy of the current status.
func (s *Scheduler) Snapshot() m.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap
	snap.Active = s.activeLocked()

	return snap
}

// Checkpoint implements Progress.
func (s *Scheduler) Checkpoint(ctx context.Context) error {
	s.mu.Lock()

	for s.snap.Suspended && !s.aborted && ctx.Err() == nil {
		s.cond.Wait()
	}

	aborted := s.aborted
	s.mu.Unlock()

	if aborted {
		return ErrAborted
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}

	return nil
}

// SetStatus implements Progress.
func (s *Scheduler) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Status = status
}

// AddFiles implements Progress.
func (s *Scheduler) AddFiles(n int) { s.add(func(p *m.ProgressSnapshot) { p.Files += n }) }

// AddRevisions implements Progress.
func (s *Scheduler) AddRevisions(n int) { s.add(func(p *m.ProgressSnapshot) { p.Revisions += n }) }

// AddChangesets implements Progress.
func (s *Scheduler) AddChangesets(n int) { s.add(func(p *m.ProgressSnapshot) { p.Changesets += n }) }

// AddCommits implements Progress.
func (s *Scheduler) AddCommits(n int) { s.add(func(p *m.ProgressSnapshot) { p.Commits += n }) }

// AddTags implements Progress.
func (s *Scheduler) AddTags(n int) { s.add(func(p *m.ProgressSnapshot) { p.Tags += n }) }

// AddIgnored implements Progress.
func (s *Scheduler) AddIgnored(n int) { s.add(func(p *m.ProgressSnapshot) { p.Ignored += n }) }

func (s *Scheduler) add(f func(*m.ProgressSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f(&s.snap)
}

func (s *Scheduler) setStage(stage m.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Stage = stage
}

func (s *Scheduler) stopSpanLocked() {
	if !s.spanStart.IsZero() {
		s.accum += time.Since(s.spanStart)
		s.spanStart = time.Time{}
	}
}

func (s *Scheduler) activeLocked() time.Duration {
	active := s.accum
	if s.running && !s.spanStart.IsZero() {
		active += time.Since(s.spanStart)
	}

	return active
}

// NopProgress is a Progress that counts nothing and never blocks; stages run
// standalone with it in tests and in the verifier.
type NopProgress struct{}

// Checkpoint implements Progress.
func (NopProgress) Checkpoint(ctx context.Context) error { return ctx.Err() }

// SetStatus implements Progress.
func (NopProgress) SetStatus(string) {}

// AddFiles implements Progress.
func (NopProgress) AddFiles(int) {}

// AddRevisions implements Progress.
func (NopProgress) AddRevisions(int) {}

// AddChangesets implements Progress.
func (NopProgress) AddChangesets(int) {}

// AddCommits implements Progress.
func (NopProgress) AddCommits(int) {}

// AddTags implements Progress.
func (NopProgress) AddTags(int) {}

// AddIgnored implements Progress.
func (NopProgress) AddIgnored(int) {}
