package model

import "time"

// Stage names the pipeline stage currently holding the worker.
type Stage string

// Pipeline stages in execution order.
const (
	StageIdle    Stage = "idle"
	StageCollect Stage = "collecting"
	StageBuild   Stage = "grouping"
	StageExport  Stage = "exporting"
	StageDone    Stage = "done"
	StageFailed  Stage = "failed"
)

// ProgressSnapshot is an advisory point-in-time copy of the scheduler's
// counters. Pollers read snapshots; they never see partially updated state
// because the scheduler copies under its own lock.
type ProgressSnapshot struct {
	Stage      Stage
	Status     string
	Files      int
	Revisions  int
	Changesets int
	Commits    int
	Tags       int
	Ignored    int
	Active     time.Duration
	Suspended  bool
}
