package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// GitBackend is the target-repository capability the exporter drives. The
// exporter stages whatever the working tree holds for the touched paths and
// asks for one commit per changeset; tags reference commits by id.
type GitBackend interface {
	Init(ctx context.Context) error
	// StageAndCommit stages the given work-tree-relative paths (additions,
	// modifications and deletions alike) and writes one commit. It returns
	// the new commit id.
	StageAndCommit(ctx context.Context, paths []string, author, email, message string, when time.Time) (string, error)
	Tag(ctx context.Context, commit, name string, annotated bool, message string) error
}

// ExecGit implements GitBackend by invoking the git binary against a local
// work tree.
type ExecGit struct {
	workDir string
}

// NewExecGit creates a backend operating on the given work tree directory.
func NewExecGit(workDir string) *ExecGit {
	return &ExecGit{workDir: workDir}
}

// Init implements GitBackend. Re-running on an existing repository is
// harmless, which is what resumable exports rely on.
func (g *ExecGit) Init(ctx context.Context) error {
	if _, err := g.run(ctx, nil, "init", "--quiet"); err != nil {
		return fmt.Errorf("git init: %w", err)
	}

	return nil
}

// StageAndCommit implements GitBackend.
func (g *ExecGit) StageAndCommit(ctx context.Context, paths []string, author, email, message string, when time.Time) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("stage and commit: no paths touched")
	}

	tracked, err := g.trackedFiles(ctx, paths)
	if err != nil {
		return "", err
	}

	keep := stageable(paths, tracked, func(p string) bool {
		_, err := os.Stat(filepath.Join(g.workDir, filepath.FromSlash(p)))

		return err == nil
	})

	if len(keep) > 0 {
		args := append([]string{"add", "--all", "--"}, keep...)
		if _, err := g.run(ctx, nil, args...); err != nil {
			return "", fmt.Errorf("git add: %w", err)
		}
	}

	env := commitEnv(author, email, when)
	if _, err := g.run(ctx, env,
		"commit", "--quiet", "--allow-empty", "-m", ensureMessage(message)); err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}

	id, err := g.run(ctx, nil, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}

	return strings.TrimSpace(id), nil
}

// Tag implements GitBackend.
func (g *ExecGit) Tag(ctx context.Context, commit, name string, annotated bool, message string) error {
	args := []string{"tag"}
	if annotated {
		args = append(args, "-a", "-m", ensureMessage(message))
	}

	args = append(args, sanitizeTagName(name), commit)

	if _, err := g.run(ctx, nil, args...); err != nil {
		return fmt.Errorf("git tag %s: %w", name, err)
	}

	return nil
}

// trackedFiles lists the index entries matching the given pathspecs.
func (g *ExecGit) trackedFiles(ctx context.Context, paths []string) ([]string, error) {
	out, err := g.run(ctx, nil, append([]string{"ls-files", "-z", "--"}, paths...)...)
	if err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var tracked []string

	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			tracked = append(tracked, p)
		}
	}

	return tracked, nil
}

// stageable filters touched paths down to pathspecs git add can match: still
// present in the work tree, or tracked (directly or as a directory of tracked
// files) so a removal can be staged. A file created and removed within one
// changeset matches neither, and an unmatched pathspec fails the whole add.
func stageable(paths, tracked []string, exists func(string) bool) []string {
	var keep []string

	for _, p := range paths {
		if exists(p) || trackedMatches(tracked, p) {
			keep = append(keep, p)
		}
	}

	return keep
}

func trackedMatches(tracked []string, path string) bool {
	for _, t := range tracked {
		if t == path || strings.HasPrefix(t, path+"/") {
			return true
		}
	}

	return false
}

func (g *ExecGit) run(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.workDir
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("running git", "args", args, "dir", g.workDir)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

func commitEnv(author, email string, when time.Time) []string {
	date := when.Format(time.RFC3339)

	return []string{
		"GIT_AUTHOR_NAME=" + author,
		"GIT_AUTHOR_EMAIL=" + email,
		"GIT_AUTHOR_DATE=" + date,
		"GIT_COMMITTER_NAME=" + author,
		"GIT_COMMITTER_EMAIL=" + email,
		"GIT_COMMITTER_DATE=" + date,
	}
}

func ensureMessage(message string) string {
	if strings.TrimSpace(message) == "" {
		return "(no comment)"
	}

	return message
}

// sanitizeTagName maps a label to a valid git ref name.
func sanitizeTagName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r <= ' ', r == '~', r == '^', r == ':', r == '?', r == '*', r == '[', r == '\\':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), "._/")
	if out == "" {
		out = "unnamed"
	}

	return out
}

// RecordingBackend is a GitBackend that records commits and tags instead of
// writing a repository. Dry runs use it so the pipeline exercises the full
// commit path without touching disk; tests assert against its log.
type RecordingBackend struct {
	Commits []RecordedCommit
	Tags    []RecordedTag
}

// RecordedCommit is one captured StageAndCommit call.
type RecordedCommit struct {
	ID      string
	Paths   []string
	Author  string
	Email   string
	Message string
	When    time.Time
}

// RecordedTag is one captured Tag call.
type RecordedTag struct {
	Commit    string
	Name      string
	Annotated bool
	Message   string
}

// Init implements GitBackend.
func (r *RecordingBackend) Init(context.Context) error { return nil }

// StageAndCommit implements GitBackend.
func (r *RecordingBackend) StageAndCommit(_ context.Context, paths []string, author, email, message string, when time.Time) (string, error) {
	id := fmt.Sprintf("commit-%04d", len(r.Commits)+1)
	r.Commits = append(r.Commits, RecordedCommit{
		ID:      id,
		Paths:   append([]string(nil), paths...),
		Author:  author,
		Email:   email,
		Message: ensureMessage(message),
		When:    when,
	})

	return id, nil
}

// Tag implements GitBackend.
func (r *RecordingBackend) Tag(_ context.Context, commit, name string, annotated bool, message string) error {
	r.Tags = append(r.Tags, RecordedTag{
		Commit:    commit,
		Name:      sanitizeTagName(name),
		Annotated: annotated,
		Message:   message,
	})

	return nil
}
