package domain

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"vss2git.dev/pkg/vss2git/internal/adapter"
	"vss2git.dev/pkg/vss2git/internal/controller"
)

func runPipeline(t *testing.T, src adapter.Source, opts MigrationOptions) (*adapter.RecordingBackend, afero.Fs) {
	t.Helper()

	backend := &adapter.RecordingBackend{}
	fs := afero.NewMemMapFs()

	mig, err := NewMigration(src, backend, &controller.AutoUI{Choice: controller.ChoiceAbort}, fs, opts)
	require.NoError(t, err)

	for _, stage := range mig.Stages() {
		require.NoError(t, stage.Run(context.Background(), NopProgress{}))
	}

	return backend, fs
}

func fileContent(t *testing.T, fs afero.Fs, relPath string) string {
	t.Helper()

	b, err := afero.ReadFile(fs, "/"+relPath)
	require.NoError(t, err)

	return string(b)
}

func fileAbsent(t *testing.T, fs afero.Fs, relPath string) {
	t.Helper()

	exists, err := afero.Exists(fs, "/"+relPath)
	require.NoError(t, err)
	require.False(t, exists, "%s should not exist", relPath)
}

func TestPipeline_RoundTripContentAndMetadata(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "initial import", "$/src/main.c", []byte("v1"))
	require.NoError(t, src.Edit(day(2), "Bob Smith", "fix build", "$/src/main.c", []byte("v2")))

	backend, fs := runPipeline(t, src, MigrationOptions{EmailDomain: "example.com"})

	require.Equal(t, "v2", fileContent(t, fs, "src/main.c"))
	require.Len(t, backend.Commits, 2)

	first := backend.Commits[0]
	require.Equal(t, "alice", first.Author)
	require.Equal(t, "alice@example.com", first.Email)
	require.Equal(t, "initial import", first.Message)
	require.Equal(t, day(1), first.When)
	require.Contains(t, first.Paths, "src/main.c")

	second := backend.Commits[1]
	require.Equal(t, "Bob Smith", second.Author)
	require.Equal(t, "bob.smith@example.com", second.Email)
	require.Equal(t, "fix build", second.Message)
}

func TestPipeline_EmptyCommentAndUserFallBack(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "", "", "$/a.txt", []byte("x"))

	backend, _ := runPipeline(t, src, MigrationOptions{DefaultComment: "migrated"})

	require.Len(t, backend.Commits, 1)
	require.Equal(t, "unknown", backend.Commits[0].Author)
	require.Equal(t, "migrated", backend.Commits[0].Message)
}

func TestPipeline_SharedEditPropagates(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/a/f.txt", []byte("orig"))
	require.NoError(t, src.Share(day(2), "alice", "", "$/a/f.txt", "$/b/f.txt"))
	require.NoError(t, src.Edit(day(3), "alice", "", "$/b/f.txt", []byte("edited")))

	backend, fs := runPipeline(t, src, MigrationOptions{})

	require.Equal(t, "edited", fileContent(t, fs, "a/f.txt"))
	require.Equal(t, "edited", fileContent(t, fs, "b/f.txt"))

	// The edit commit stages every live path of the shared item.
	last := backend.Commits[len(backend.Commits)-1]
	require.ElementsMatch(t, []string{"a/f.txt", "b/f.txt"}, last.Paths)
}

func TestPipeline_BranchBreaksTheShare(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/a/f.txt", []byte("orig"))
	require.NoError(t, src.Share(day(2), "alice", "", "$/a/f.txt", "$/b/f.txt"))
	require.NoError(t, src.Branch(day(3), "alice", "", "$/b/f.txt"))
	require.NoError(t, src.Edit(day(4), "alice", "", "$/a/f.txt", []byte("diverged")))

	_, fs := runPipeline(t, src, MigrationOptions{})

	require.Equal(t, "diverged", fileContent(t, fs, "a/f.txt"))
	require.Equal(t, "orig", fileContent(t, fs, "b/f.txt"))
}

func TestPipeline_PinFreezesUnpinCatchesUp(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/f.txt", []byte("v1"))
	require.NoError(t, src.Pin(day(2), "alice", "", "$/f.txt", 1))
	require.NoError(t, src.Edit(day(3), "alice", "", "$/f.txt", []byte("v2")))

	_, fs := runPipeline(t, src, MigrationOptions{})
	require.Equal(t, "v1", fileContent(t, fs, "f.txt"))

	require.NoError(t, src.Unpin(day(4), "alice", "", "$/f.txt"))

	_, fs = runPipeline(t, src, MigrationOptions{})
	require.Equal(t, "v2", fileContent(t, fs, "f.txt"))
}

func TestPipeline_DeleteThenRecover(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/f.txt", []byte("keep me"))
	require.NoError(t, src.Delete(day(2), "alice", "", "$/f.txt"))

	backend, fs := runPipeline(t, src, MigrationOptions{})
	fileAbsent(t, fs, "f.txt")

	deleteCommit := backend.Commits[len(backend.Commits)-1]
	require.Contains(t, deleteCommit.Paths, "f.txt")

	require.NoError(t, src.Recover(day(3), "alice", "", "$/f.txt"))

	_, fs = runPipeline(t, src, MigrationOptions{})
	require.Equal(t, "keep me", fileContent(t, fs, "f.txt"))
}

func TestPipeline_DestroyIsPermanent(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/f.txt", []byte("x"))
	src.AddFile(day(1), "alice", "", "$/other.txt", []byte("y"))
	require.NoError(t, src.Destroy(day(2), "alice", "", "$/f.txt"))

	_, fs := runPipeline(t, src, MigrationOptions{})

	fileAbsent(t, fs, "f.txt")
	require.Equal(t, "y", fileContent(t, fs, "other.txt"))
}

func TestPipeline_RenameKeepsIdentity(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/old.txt", []byte("v1"))
	require.NoError(t, src.Rename(day(2), "alice", "", "$/old.txt", "new.txt"))
	require.NoError(t, src.Edit(day(3), "alice", "", "$/new.txt", []byte("v2")))

	_, fs := runPipeline(t, src, MigrationOptions{})

	fileAbsent(t, fs, "old.txt")
	require.Equal(t, "v2", fileContent(t, fs, "new.txt"))
}

func TestPipeline_MoveRelocatesFile(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddProject(day(1), "alice", "", "$/dst")
	src.AddFile(day(1), "alice", "", "$/src/f.txt", []byte("x"))
	require.NoError(t, src.Move(day(2), "alice", "", "$/src/f.txt", "$/dst/f.txt"))

	_, fs := runPipeline(t, src, MigrationOptions{})

	fileAbsent(t, fs, "src/f.txt")
	require.Equal(t, "x", fileContent(t, fs, "dst/f.txt"))
}

func TestPipeline_SameInstantMoveSupersedesDelete(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/dst/f.txt", []byte("old"))
	src.AddFile(day(1), "alice", "", "$/src/f.txt", []byte("new"))

	// One instant: the stale copy is deleted while the replacement moves
	// onto its path. The move wins; the delete only concerns the item it
	// superseded.
	require.NoError(t, src.Delete(day(2), "alice", "", "$/dst/f.txt"))
	require.NoError(t, src.Move(day(2), "alice", "", "$/src/f.txt", "$/dst/f.txt"))

	_, fs := runPipeline(t, src, MigrationOptions{})

	fileAbsent(t, fs, "src/f.txt")
	require.Equal(t, "new", fileContent(t, fs, "dst/f.txt"))
}

func TestPipeline_MoveRelocatesProjectSubtree(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/top/nest/f.txt", []byte("x"))
	require.NoError(t, src.Move(day(2), "alice", "", "$/top/nest", "$/nest"))
	require.NoError(t, src.Edit(day(3), "alice", "", "$/nest/f.txt", []byte("y")))

	_, fs := runPipeline(t, src, MigrationOptions{})

	fileAbsent(t, fs, "top/nest/f.txt")
	require.Equal(t, "y", fileContent(t, fs, "nest/f.txt"))
}

func TestPipeline_LabelsBecomeTagsOnLastCommit(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/f.txt", []byte("x"))
	require.NoError(t, src.Label(day(2), "alice", "ship it", "$/", "Release 1.0"))

	backend, _ := runPipeline(t, src, MigrationOptions{AnnotatedTags: true})

	require.Len(t, backend.Commits, 1)
	require.Len(t, backend.Tags, 1)
	require.Equal(t, backend.Commits[0].ID, backend.Tags[0].Commit)
	require.Equal(t, "Release_1.0", backend.Tags[0].Name)
	require.True(t, backend.Tags[0].Annotated)
	require.Equal(t, "ship it", backend.Tags[0].Message)
}

func TestPipeline_LabelBeforeAnyCommitIsSkipped(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddProject(day(1), "alice", "", "$/empty")
	require.NoError(t, src.Label(day(2), "alice", "", "$/", "too-early"))

	backend, _ := runPipeline(t, src, MigrationOptions{})

	require.Empty(t, backend.Commits)
	require.Empty(t, backend.Tags)
}

func TestPipeline_ExportRootFlattensProject(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/proj/sub/f.txt", []byte("x"))

	_, fs := runPipeline(t, src, MigrationOptions{Project: "$/proj", ExportRoot: true})
	require.Equal(t, "x", fileContent(t, fs, "sub/f.txt"))

	_, fs = runPipeline(t, src, MigrationOptions{Project: "$/proj"})
	require.Equal(t, "x", fileContent(t, fs, "proj/sub/f.txt"))
}

func TestPipeline_DryRunBuildsStateWithoutCommits(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/f.txt", []byte("x"))
	require.NoError(t, src.Label(day(2), "alice", "", "$/", "v1"))

	backend, fs := runPipeline(t, src, MigrationOptions{DryRun: true})

	require.Empty(t, backend.Commits)
	require.Empty(t, backend.Tags)
	require.Equal(t, "x", fileContent(t, fs, "f.txt"))
}

func TestPipeline_DateBoundedExportResumesWithoutDuplicates(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "one", "$/f.txt", []byte("v1"))
	require.NoError(t, src.Edit(day(2), "alice", "two", "$/f.txt", []byte("v2")))
	require.NoError(t, src.Edit(day(3), "alice", "three", "$/f.txt", []byte("v3")))
	require.NoError(t, src.Edit(day(4), "alice", "four", "$/f.txt", []byte("v4")))

	full, fullFs := runPipeline(t, src, MigrationOptions{})
	require.Len(t, full.Commits, 4)

	split := day(2)

	first, _ := runPipeline(t, src, MigrationOptions{To: split})
	second, secondFs := runPipeline(t, src, MigrationOptions{From: split})

	var resumed []adapter.RecordedCommit
	resumed = append(resumed, first.Commits...)
	resumed = append(resumed, second.Commits...)

	require.Len(t, resumed, len(full.Commits))

	for i, c := range full.Commits {
		require.Equal(t, c.Message, resumed[i].Message, "commit %d", i)
		require.Equal(t, c.When, resumed[i].When, "commit %d", i)
		require.Equal(t, c.Paths, resumed[i].Paths, "commit %d", i)
	}

	require.Equal(t, fileContent(t, fullFs, "f.txt"), fileContent(t, secondFs, "f.txt"))
}

func TestPipeline_ResumingAtTheBoundaryIsIdempotent(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "one", "$/f.txt", []byte("v1"))
	require.NoError(t, src.Edit(day(2), "alice", "two", "$/f.txt", []byte("v2")))

	// Exporting up to t then resuming from t must not duplicate the
	// boundary changeset: To is inclusive, and From replays it state-only.
	boundary := day(2)

	first, _ := runPipeline(t, src, MigrationOptions{To: boundary})
	require.Len(t, first.Commits, 2)

	second, _ := runPipeline(t, src, MigrationOptions{From: boundary})
	require.Empty(t, second.Commits)
}

func TestPipeline_ExclusionNeverReachesTheBackend(t *testing.T) {
	src := adapter.NewMemSource()
	src.AddFile(day(1), "alice", "", "$/keep.c", []byte("k"))
	src.AddFile(day(2), "alice", "", "$/noise.obj", []byte("n"))

	backend, fs := runPipeline(t, src, MigrationOptions{Exclude: []string{"*.obj"}})

	fileAbsent(t, fs, "noise.obj")

	for _, c := range backend.Commits {
		require.NotContains(t, c.Paths, "noise.obj")
	}
}
