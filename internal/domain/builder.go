package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

// BuilderOptions configure changeset grouping.
type BuilderOptions struct {
	// AnyComment is the delta within which consecutive revisions merge
	// unconditionally. Zero degenerates to merging exact-timestamp ties
	// only.
	AnyComment time.Duration
	// SameComment is the (larger) delta within which revisions merge when
	// both user and comment match the changeset's.
	SameComment time.Duration
	// From marks changesets at or before this instant state-only: they
	// rebuild working-tree state on a resumed export without committing.
	// Zero means commit everything.
	From time.Time
	// To stops the builder once a changeset would start past it. Zero
	// means no upper bound.
	To time.Time
}

// Builder groups the sorted global revision log into atomic changesets.
type Builder struct {
	opts BuilderOptions
}

// NewBuilder constructs a Builder.
func NewBuilder(opts BuilderOptions) *Builder {
	return &Builder{opts: opts}
}

// Build scans the log in order and emits changesets. The revision order
// inside each changeset is exactly the log order, so same-item revisions are
// never separated out of chronological order.
func (b *Builder) Build(ctx context.Context, h *History, progress Progress) ([]m.Changeset, error) {
	var (
		sets    []m.Changeset
		current *m.Changeset
		lastAt  time.Time
	)

	for _, rev := range h.Revisions {
		if err := progress.Checkpoint(ctx); err != nil {
			return nil, err
		}

		if current != nil && b.extends(current, lastAt, rev) {
			b.fold(current, rev)
			lastAt = rev.Time

			continue
		}

		if current != nil {
			sets = append(sets, *current)
			progress.AddChangesets(1)
		}

		if !b.opts.To.IsZero() && rev.Time.After(b.opts.To) {
			// Past the upper bound: the changeset that contained the
			// boundary revision was the last one emitted.
			current = nil

			break
		}

		cs := b.open(rev)
		current = &cs
		lastAt = rev.Time
	}

	if current != nil {
		sets = append(sets, *current)
		progress.AddChangesets(1)
	}

	b.markStateOnly(sets)

	progress.SetStatus(fmt.Sprintf("grouped %d changesets", len(sets)))
	slog.Info("changesets built", "count", len(sets))

	return sets, nil
}

// extends decides whether rev belongs to the open changeset. The delta is
// measured from the last revision currently in the changeset, not from its
// first, so long bursts of activity stay together.
func (b *Builder) extends(cs *m.Changeset, lastAt time.Time, rev m.Revision) bool {
	delta := rev.Time.Sub(lastAt)
	if delta < 0 {
		return false
	}

	if delta <= b.opts.AnyComment {
		return true
	}

	// The wider window requires an exact user and comment match against
	// the changeset's combined comment. Mixed comments still end up in one
	// changeset when they fall inside the unconditional window above.
	if delta <= b.opts.SameComment && rev.User == cs.User && rev.Comment == cs.Comment {
		return true
	}

	return false
}

func (b *Builder) open(rev m.Revision) m.Changeset {
	return m.Changeset{
		Time:      rev.Time,
		User:      rev.User,
		Comment:   rev.Comment,
		Revisions: []m.Revision{rev},
	}
}

func (b *Builder) fold(cs *m.Changeset, rev m.Revision) {
	cs.Revisions = append(cs.Revisions, rev)

	if cs.Comment == "" {
		cs.Comment = rev.Comment
	}
}

// markStateOnly flags the resumption prefix. A changeset starting at or
// before From was already committed by the run that ended there; replaying it
// state-only reproduces the working tree without duplicating its commit.
func (b *Builder) markStateOnly(sets []m.Changeset) {
	if b.opts.From.IsZero() {
		return
	}

	for i := range sets {
		if !sets[i].Time.After(b.opts.From) {
			sets[i].StateOnly = true
		}
	}
}
