package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeTagName(t *testing.T) {
	require.Equal(t, "release_1.0", sanitizeTagName("release 1.0"))
	require.Equal(t, "a_b_c", sanitizeTagName("a~b^c"))
	require.Equal(t, "build", sanitizeTagName("build..."))
	require.Equal(t, "unnamed", sanitizeTagName("   "))
	require.Equal(t, "v1.0", sanitizeTagName("v1.0"))
}

func TestEnsureMessage(t *testing.T) {
	require.Equal(t, "(no comment)", ensureMessage(""))
	require.Equal(t, "(no comment)", ensureMessage("  \n"))
	require.Equal(t, "fixed the build", ensureMessage("fixed the build"))
}

func TestCommitEnv(t *testing.T) {
	when := time.Date(2001, 3, 1, 9, 0, 0, 0, time.UTC)
	env := commitEnv("alice", "alice@localhost", when)

	require.Contains(t, env, "GIT_AUTHOR_NAME=alice")
	require.Contains(t, env, "GIT_AUTHOR_EMAIL=alice@localhost")
	require.Contains(t, env, "GIT_AUTHOR_DATE=2001-03-01T09:00:00Z")
	require.Contains(t, env, "GIT_COMMITTER_DATE=2001-03-01T09:00:00Z")
}

func TestStageable_DropsPathsNeitherOnDiskNorTracked(t *testing.T) {
	onDisk := map[string]bool{"kept.txt": true}
	exists := func(p string) bool { return onDisk[p] }

	// A file created and removed within one changeset leaves nothing for
	// git add to match.
	keep := stageable([]string{"kept.txt", "ghost.txt"}, nil, exists)
	require.Equal(t, []string{"kept.txt"}, keep)
}

func TestStageable_KeepsTrackedDeletions(t *testing.T) {
	exists := func(string) bool { return false }
	tracked := []string{"gone.txt", "sub/f.txt"}

	// "sub" is tracked only through the files under it; its removal still
	// needs staging.
	keep := stageable([]string{"gone.txt", "sub", "ghost.txt"}, tracked, exists)
	require.Equal(t, []string{"gone.txt", "sub"}, keep)
}

func TestRecordingBackend_AssignsSequentialIDs(t *testing.T) {
	r := &RecordingBackend{}
	ctx := context.Background()
	when := time.Date(2001, 3, 1, 9, 0, 0, 0, time.UTC)

	id1, err := r.StageAndCommit(ctx, []string{"a.txt"}, "alice", "alice@localhost", "first", when)
	require.NoError(t, err)

	id2, err := r.StageAndCommit(ctx, []string{"b.txt"}, "bob", "bob@localhost", "", when)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	require.Len(t, r.Commits, 2)
	require.Equal(t, "(no comment)", r.Commits[1].Message)

	require.NoError(t, r.Tag(ctx, id2, "release 1", false, ""))
	require.Len(t, r.Tags, 1)
	require.Equal(t, "release_1", r.Tags[0].Name)
	require.Equal(t, id2, r.Tags[0].Commit)
}
