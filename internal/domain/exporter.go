package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"vss2git.dev/pkg/vss2git/internal/adapter"
	"vss2git.dev/pkg/vss2git/internal/controller"
	m "vss2git.dev/pkg/vss2git/internal/model"
)

// ExportOptions configure the replay and commit pass.
type ExportOptions struct {
	// Project is the exported source subtree.
	Project m.Path
	// ExportRoot maps the project subtree onto the repository root instead
	// of nesting it under its source path.
	ExportRoot bool
	// EmailDomain forms author emails from revision user names.
	EmailDomain string
	// DefaultComment replaces empty commit and tag messages.
	DefaultComment string
	// AnnotatedTags writes annotated instead of lightweight tags.
	AnnotatedTags bool
}

// Exporter replays changesets against a WorkTree and drives the target
// backend. One exporter instance performs one export pass; the work tree it
// owns lives for the whole pass.
type Exporter struct {
	wt         *WorkTree
	backend    adapter.GitBackend
	ui         controller.UI
	trans      *adapter.Transcoder
	opts       ExportOptions
	lastCommit string
}

// NewExporter constructs an Exporter replaying into wt.
func NewExporter(wt *WorkTree, backend adapter.GitBackend, ui controller.UI, trans *adapter.Transcoder, opts ExportOptions) *Exporter {
	return &Exporter{
		wt:      wt,
		backend: backend,
		ui:      ui,
		trans:   trans,
		opts:    opts,
	}
}

// PathMapper returns the logical-to-work-tree path policy for the options.
func PathMapper(opts ExportOptions) func(m.Path) (string, bool) {
	root := m.RootProject
	if opts.ExportRoot {
		root = opts.Project
	}

	return func(p m.Path) (string, bool) {
		return p.Rel(root)
	}
}

// ChangesetSeq is a sequential view of built changesets, typically a
// disk-backed spool written by the grouping stage.
type ChangesetSeq interface {
	Len() uint64
	Range(f func(index uint64, cs m.Changeset) error) error
}

// Export replays every changeset in order. State-only changesets rebuild the
// working tree without committing; the rest each produce one commit, then
// their label revisions become tags on it.
func (e *Exporter) Export(ctx context.Context, h *History, sets ChangesetSeq, progress Progress) error {
	err := sets.Range(func(_ uint64, cs m.Changeset) error {
		if err := progress.Checkpoint(ctx); err != nil {
			return err
		}

		labels, err := e.replay(ctx, h, &cs, progress)
		if err != nil {
			return err
		}

		touched := e.wt.Touched()

		if cs.StateOnly {
			return nil
		}

		if len(touched) > 0 {
			if err := e.commit(ctx, &cs, touched, progress); err != nil {
				return err
			}
		}

		return e.tag(ctx, labels, progress)
	})
	if err != nil {
		return err
	}

	progress.SetStatus(fmt.Sprintf("exported %d changesets", sets.Len()))

	return nil
}

// replay applies one changeset's revisions in dependency-safe order and
// returns its label revisions for post-commit tagging.
func (e *Exporter) replay(ctx context.Context, h *History, cs *m.Changeset, progress Progress) ([]m.Revision, error) {
	var labels []m.Revision

	for _, rev := range replayOrder(cs.Revisions) {
		if err := progress.Checkpoint(ctx); err != nil {
			return nil, err
		}

		if rev.Action.Kind == m.ActionLabel {
			labels = append(labels, rev)
			continue
		}

		for {
			err := e.apply(h, rev)
			if err == nil {
				break
			}

			choice := e.ui.ReportError(fmt.Sprintf("apply %s at %s: %v", rev.Action.Kind, rev.Path, err))
			if choice == controller.ChoiceAbort {
				return nil, fmt.Errorf("apply %s at %s: %w", rev.Action.Kind, rev.Path, ErrAborted)
			}

			if choice == controller.ChoiceIgnore {
				slog.Warn("revision ignored", "kind", rev.Action.Kind.String(), "path", rev.Path, "error", err)
				progress.AddIgnored(1)

				break
			}
		}
	}

	return labels, nil
}

// replayOrder resolves same-timestamp ties by action rank. The rank of each
// revision is clamped to the highest rank already seen for its item, so a
// stable sort can never reorder two revisions of one item.
func replayOrder(revs []m.Revision) []m.Revision {
	ranks := make([]int, len(revs))
	floor := map[m.ItemID]int{}

	for i, rev := range revs {
		rank := rev.Action.ApplyRank()
		if prev, ok := floor[rev.Item]; ok && prev > rank {
			rank = prev
		}

		floor[rev.Item] = rank
		ranks[i] = rank
	}

	idx := make([]int, len(revs))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return ranks[idx[a]] < ranks[idx[b]]
	})

	out := make([]m.Revision, len(revs))
	for i, j := range idx {
		out[i] = revs[j]
	}

	return out
}

// apply mutates the work tree with one revision. The switch is exhaustive
// over the closed action set.
func (e *Exporter) apply(h *History, rev m.Revision) error {
	w := e.wt

	switch rev.Action.Kind {
	case m.ActionAdd:
		isDir := false
		if it := h.Item(rev.Item); it != nil {
			isDir = it.IsProject()
		}

		w.Bind(rev.Path, rev.Item, isDir)

		if isDir {
			return w.MkDir(rev.Path)
		}

		w.items[rev.Item].version = rev.Version

		return e.writeVersion(h, rev.Item, rev.Path, rev.Version)

	case m.ActionEdit:
		it, ok := w.items[rev.Item]
		if !ok {
			return fmt.Errorf("edit of unknown item %s", rev.Item)
		}

		it.version = rev.Version

		content, err := e.fetch(h, rev.Item, rev.Version)
		if err != nil {
			return err
		}

		for _, p := range it.paths {
			tp := w.paths[p]
			if tp == nil || tp.deleted || tp.hasPin {
				continue
			}

			if err := w.Write(p, content); err != nil {
				return err
			}
		}

		return nil

	case m.ActionDelete:
		tp := w.path(rev.Path)
		if tp == nil {
			return fmt.Errorf("delete of unknown path %s", rev.Path)
		}

		if tp.item != rev.Item {
			// A move earlier in the changeset rebound this path; the
			// delete targets the item it superseded.
			return nil
		}

		tp.deleted = true

		return w.Remove(rev.Path)

	case m.ActionRecover:
		tp := w.path(rev.Path)
		if tp == nil {
			return fmt.Errorf("recover of unknown path %s", rev.Path)
		}

		if tp.item != rev.Item {
			return nil
		}

		tp.deleted = false

		return e.rematerialize(h, rev.Path)

	case m.ActionDestroy:
		if tp := w.path(rev.Path); tp != nil && tp.item != rev.Item {
			// Same supersession rule as delete: the destroyed item no
			// longer lives at this path.
			return nil
		}

		if err := w.Remove(rev.Path); err != nil {
			return err
		}

		for p := range w.paths {
			if p.IsUnder(rev.Path) && p != rev.Path {
				w.Unbind(p)
			}
		}

		w.Unbind(rev.Path)

		return nil

	case m.ActionRename:
		oldPath := rev.Path
		newPath := oldPath.Dir().Join(rev.Action.NewName)

		return w.Relocate(oldPath, newPath)

	case m.ActionMoveFrom:
		// The MoveTo half performs the relocation; this half only fires
		// when the destination lies outside the collected subtree.
		if tp := w.path(rev.Path); tp != nil && tp.item == rev.Item {
			return w.Relocate(rev.Path, rev.Action.Other)
		}

		return nil

	case m.ActionMoveTo:
		oldPath := rev.Action.Other
		if tp := w.path(oldPath); tp != nil && tp.item == rev.Item {
			if err := w.Relocate(oldPath, rev.Path); err != nil {
				return err
			}

			if _, ok := w.mapper(oldPath); !ok {
				// The subtree was tracked but never materialized;
				// entering the exported subtree makes it real.
				return e.rematerialize(h, rev.Path)
			}

			return nil
		}

		// Moved in from outside the collected subtree.
		isDir := false
		if it := h.Item(rev.Item); it != nil {
			isDir = it.IsProject()
		}

		w.Bind(rev.Path, rev.Item, isDir)

		if isDir {
			return w.MkDir(rev.Path)
		}

		w.items[rev.Item].version = rev.Version

		return e.writeVersion(h, rev.Item, rev.Path, rev.Version)

	case m.ActionShare:
		it, ok := w.items[rev.Item]
		if !ok {
			return fmt.Errorf("share of unknown item %s", rev.Item)
		}

		w.Bind(rev.Path, rev.Item, false)

		return e.writeVersion(h, rev.Item, rev.Path, it.version)

	case m.ActionBranch:
		tp := w.path(rev.Path)
		if tp == nil {
			return fmt.Errorf("branch of unknown path %s", rev.Path)
		}

		// Leave the shared set; content on disk is already the branch
		// point and stays in place.
		if it, ok := w.items[tp.item]; ok {
			it.paths = removePath(it.paths, rev.Path)
			if len(it.paths) == 0 {
				delete(w.items, tp.item)
			}
		}

		w.Bind(rev.Path, rev.Item, false)
		w.items[rev.Item].version = rev.Version

		return nil

	case m.ActionPin:
		tp := w.path(rev.Path)
		if tp == nil {
			return fmt.Errorf("pin of unknown path %s", rev.Path)
		}

		tp.hasPin = true
		tp.pinned = rev.Action.Version

		return e.writeVersion(h, tp.item, rev.Path, tp.pinned)

	case m.ActionUnpin:
		tp := w.path(rev.Path)
		if tp == nil {
			return fmt.Errorf("unpin of unknown path %s", rev.Path)
		}

		tp.hasPin = false

		it, ok := w.items[tp.item]
		if !ok {
			return fmt.Errorf("unpin of unknown item %s", tp.item)
		}

		// Catch up to the item's current version even when no edit
		// follows.
		return e.writeVersion(h, tp.item, rev.Path, it.version)

	case m.ActionLabel:
		return nil
	}

	return fmt.Errorf("unhandled action kind %d", rev.Action.Kind)
}

// rematerialize rewrites the content of every live file at or under root,
// respecting pins.
func (e *Exporter) rematerialize(h *History, root m.Path) error {
	w := e.wt

	tp := w.path(root)
	if tp != nil && tp.isDir {
		if err := w.MkDir(root); err != nil {
			return err
		}
	}

	for p, pathState := range w.paths {
		if !p.IsUnder(root) || pathState.isDir || pathState.deleted {
			continue
		}

		it, ok := w.items[pathState.item]
		if !ok {
			continue
		}

		version := it.version
		if pathState.hasPin {
			version = pathState.pinned
		}

		if err := e.writeVersion(h, pathState.item, p, version); err != nil {
			return err
		}
	}

	return nil
}

func (e *Exporter) writeVersion(h *History, id m.ItemID, p m.Path, version int) error {
	content, err := e.fetch(h, id, version)
	if err != nil {
		return err
	}

	return e.wt.Write(p, content)
}

func (e *Exporter) fetch(h *History, id m.ItemID, version int) ([]byte, error) {
	content, err := h.Content(id, version)
	if err != nil {
		return nil, err
	}

	return e.trans.Content(content), nil
}

// commit writes one commit for the changeset, honoring the error contract on
// backend failures.
func (e *Exporter) commit(ctx context.Context, cs *m.Changeset, touched []string, progress Progress) error {
	message := cs.Comment
	if strings.TrimSpace(message) == "" {
		message = e.opts.DefaultComment
	}

	author := cs.User
	if author == "" {
		author = "unknown"
	}

	email := authorEmail(author, e.opts.EmailDomain)

	for {
		id, err := e.backend.StageAndCommit(ctx, touched, author, email, message, cs.Time)
		if err == nil {
			e.lastCommit = id
			progress.AddCommits(1)
			progress.SetStatus(fmt.Sprintf("committed %s %s", cs.Time.Format("2006-01-02 15:04:05"), firstLine(message)))
			slog.Debug("changeset committed", "commit", id, "paths", len(touched), "when", cs.Time)

			return nil
		}

		choice := e.ui.ReportError(fmt.Sprintf("commit changeset at %s: %v", cs.Time, err))
		if choice == controller.ChoiceAbort {
			return fmt.Errorf("commit changeset: %w", ErrAborted)
		}

		if choice == controller.ChoiceIgnore {
			progress.AddIgnored(1)

			return nil
		}
	}
}

// tag requests one tag per label revision at the changeset's commit.
func (e *Exporter) tag(ctx context.Context, labels []m.Revision, progress Progress) error {
	for _, rev := range labels {
		if e.lastCommit == "" {
			slog.Warn("label before first commit skipped", "name", rev.Action.Name)
			continue
		}

		message := rev.Comment
		if strings.TrimSpace(message) == "" {
			message = rev.Action.Name
		}

		for {
			err := e.backend.Tag(ctx, e.lastCommit, rev.Action.Name, e.opts.AnnotatedTags, message)
			if err == nil {
				progress.AddTags(1)
				break
			}

			choice := e.ui.ReportError(fmt.Sprintf("tag %s: %v", rev.Action.Name, err))
			if choice == controller.ChoiceAbort {
				return fmt.Errorf("tag %s: %w", rev.Action.Name, ErrAborted)
			}

			if choice == controller.ChoiceIgnore {
				progress.AddIgnored(1)
				break
			}
		}
	}

	return nil
}

func authorEmail(user, domain string) string {
	local := strings.ToLower(strings.TrimSpace(user))
	local = strings.ReplaceAll(local, " ", ".")

	if domain == "" {
		domain = "localhost"
	}

	return local + "@" + domain
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}
