package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

func logAt(sec int, user, comment string) m.Revision {
	return m.Revision{
		Item:    "phys-0001",
		Time:    time.Date(2001, 3, 1, 12, 0, sec, 0, time.UTC),
		User:    user,
		Comment: comment,
		Action:  m.Action{Kind: m.ActionEdit},
		Path:    "$/a.txt",
	}
}

func buildLog(t *testing.T, opts BuilderOptions, revs ...m.Revision) []m.Changeset {
	t.Helper()

	h := &History{Revisions: revs}

	sets, err := NewBuilder(opts).Build(context.Background(), h, NopProgress{})
	require.NoError(t, err)

	return sets
}

func TestBuild_MergesWithinAnyCommentWindow(t *testing.T) {
	sets := buildLog(t, BuilderOptions{AnyComment: 30 * time.Second},
		logAt(0, "alice", "one"),
		logAt(20, "bob", "two"),
		logAt(40, "carol", "three"),
	)

	// Mixed users and comments merge inside the unconditional window; the
	// delta is measured from the previous revision, so a 20s chain never
	// breaks.
	require.Len(t, sets, 1)
	require.Len(t, sets[0].Revisions, 3)
	require.Equal(t, "alice", sets[0].User)
	require.Equal(t, "one", sets[0].Comment)
}

func TestBuild_SameCommentWindowNeedsExactMatch(t *testing.T) {
	opts := BuilderOptions{AnyComment: 30 * time.Second, SameComment: 600 * time.Second}

	sets := buildLog(t, opts,
		logAt(0, "alice", "refactor"),
		logAt(120, "alice", "refactor"),
	)
	require.Len(t, sets, 1)

	sets = buildLog(t, opts,
		logAt(0, "alice", "refactor"),
		logAt(120, "bob", "refactor"),
	)
	require.Len(t, sets, 2)

	sets = buildLog(t, opts,
		logAt(0, "alice", "refactor"),
		logAt(120, "alice", "cleanup"),
	)
	require.Len(t, sets, 2)
}

func TestBuild_ZeroAnyCommentMergesExactTiesOnly(t *testing.T) {
	sets := buildLog(t, BuilderOptions{},
		logAt(0, "alice", "a"),
		logAt(0, "bob", "b"),
		logAt(1, "alice", "a"),
	)

	require.Len(t, sets, 2)
	require.Len(t, sets[0].Revisions, 2)
	require.Len(t, sets[1].Revisions, 1)
}

func TestBuild_EmptyCombinedCommentTakesFirstNonEmpty(t *testing.T) {
	sets := buildLog(t, BuilderOptions{AnyComment: 30 * time.Second},
		logAt(0, "alice", ""),
		logAt(10, "alice", "late comment"),
	)

	require.Len(t, sets, 1)
	require.Equal(t, "late comment", sets[0].Comment)
}

func TestBuild_ToBoundStopsAfterContainingChangeset(t *testing.T) {
	to := time.Date(2001, 3, 1, 12, 0, 30, 0, time.UTC)

	sets := buildLog(t, BuilderOptions{To: to},
		logAt(0, "alice", "in"),
		logAt(30, "alice", "boundary"),
		logAt(90, "alice", "out"),
	)

	require.Len(t, sets, 2)
	require.Equal(t, "boundary", sets[1].Comment)
}

func TestBuild_FromBoundMarksPrefixStateOnly(t *testing.T) {
	from := time.Date(2001, 3, 1, 12, 0, 30, 0, time.UTC)

	sets := buildLog(t, BuilderOptions{From: from},
		logAt(0, "alice", "before"),
		logAt(30, "alice", "boundary"),
		logAt(90, "alice", "after"),
	)

	require.Len(t, sets, 3)
	require.True(t, sets[0].StateOnly)
	require.True(t, sets[1].StateOnly)
	require.False(t, sets[2].StateOnly)
}

func TestBuild_AbortsAtCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &History{Revisions: []m.Revision{logAt(0, "alice", "x")}}

	_, err := NewBuilder(BuilderOptions{}).Build(ctx, h, NopProgress{})
	require.Error(t, err)
}
