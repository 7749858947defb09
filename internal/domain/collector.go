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
	"vss2git.dev/pkg/vss2git/pkg"
)

// Collector walks a source subtree and produces the global chronological
// revision log. Exclusion is evaluated against the live logical path at the
// time each revision happened, which the collector tracks with a path table
// swept in timestamp order.
type Collector struct {
	src     adapter.Source
	matcher pkg.Matcher
	ui      controller.UI
	trans   *adapter.Transcoder
}

// NewCollector constructs a Collector.
func NewCollector(src adapter.Source, matcher pkg.Matcher, ui controller.UI, trans *adapter.Transcoder) *Collector {
	return &Collector{
		src:     src,
		matcher: matcher,
		ui:      ui,
		trans:   trans,
	}
}

// Collect walks the subtree rooted at root and returns its full history.
// Cancellation and the Abort choice are honored at item boundaries.
func (c *Collector) Collect(ctx context.Context, root m.Path, progress Progress) (*History, error) {
	rootItem, err := c.src.Open(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project %q: %w", root, err)
	}

	if !rootItem.IsProject() {
		return nil, fmt.Errorf("resolve project %q: %w", root, adapter.ErrNotAProject)
	}

	h := &History{items: map[m.ItemID]adapter.Item{}}

	if err := c.walk(ctx, rootItem, h, progress); err != nil {
		return nil, err
	}

	c.sortLog(h)
	c.resolvePaths(h, progress)

	progress.SetStatus(fmt.Sprintf("collected %d revisions", len(h.Revisions)))
	slog.Info("history collected", "root", root, "revisions", len(h.Revisions))

	return h, nil
}

// walk gathers revisions item by item, depth first over projects.
func (c *Collector) walk(ctx context.Context, it adapter.Item, h *History, progress Progress) error {
	if err := progress.Checkpoint(ctx); err != nil {
		return err
	}

	if err := c.gather(it, h, progress); err != nil {
		return err
	}

	for _, f := range it.Files() {
		if err := progress.Checkpoint(ctx); err != nil {
			return err
		}

		progress.AddFiles(1)

		if err := c.gather(f, h, progress); err != nil {
			return err
		}
	}

	for _, p := range it.Projects() {
		if err := c.walk(ctx, p, h, progress); err != nil {
			return err
		}
	}

	return nil
}

// gather appends one item's revisions, applying the Abort/Retry/Ignore
// contract to read failures. Ignore drops the item's remaining history.
func (c *Collector) gather(it adapter.Item, h *History, progress Progress) error {
	for {
		revs, err := it.Revisions()
		if err == nil {
			if _, seen := h.items[it.ID()]; seen {
				// Shared items are reachable through every sharing
				// project; their history counts once.
				return nil
			}

			h.items[it.ID()] = it

			for _, rev := range revs {
				rev.User = c.trans.Comment(rev.User)
				rev.Comment = c.trans.Comment(rev.Comment)
				h.Revisions = append(h.Revisions, rev)
			}

			progress.AddRevisions(len(revs))
			progress.SetStatus(fmt.Sprintf("collected %s", it.Path()))

			return nil
		}

		switch c.ui.ReportError(fmt.Sprintf("cannot read history of %s: %v", it.Path(), err)) {
		case controller.ChoiceAbort:
			return fmt.Errorf("reading %s: %w", it.Path(), ErrAborted)
		case controller.ChoiceIgnore:
			slog.Warn("item history skipped", "path", it.Path(), "error", err)

			return nil
		case controller.ChoiceRetry:
			// loop and re-read
		}
	}
}

// sortLog orders the log by timestamp. The sort is stable and the input is
// appended item by item in version order, so revisions of one item never
// reorder relative to each other.
func (c *Collector) sortLog(h *History) {
	sort.SliceStable(h.Revisions, func(i, j int) bool {
		return h.Revisions[i].Time.Before(h.Revisions[j].Time)
	})
}

// resolvePaths sweeps the sorted log once, maintaining the live path table.
// It fills the logical path of revisions that carry none, rewrites subtree
// paths as projects rename and move, drops excluded revisions, and assigns
// the global sequence numbers.
func (c *Collector) resolvePaths(h *History, progress Progress) {
	live := map[m.ItemID][]m.Path{}
	excluded := map[m.ItemID]bool{}
	kept := h.Revisions[:0]
	seq := 0

	for _, rev := range h.Revisions {
		rev = c.applyToTable(live, rev)

		if excluded[rev.Item] {
			continue
		}

		if c.matcher != nil && c.matcher.Match(string(rev.Path)) {
			excluded[rev.Item] = true

			slog.Debug("excluded", "path", rev.Path, "item", rev.Item)

			continue
		}

		rev.Seq = seq
		seq++
		kept = append(kept, rev)
	}

	h.Revisions = kept
}

// applyToTable updates the live path table with one revision and returns the
// revision with its resolved path.
func (c *Collector) applyToTable(live map[m.ItemID][]m.Path, rev m.Revision) m.Revision {
	paths := live[rev.Item]

	switch rev.Action.Kind {
	case m.ActionAdd:
		live[rev.Item] = []m.Path{rev.Path}

	case m.ActionShare:
		live[rev.Item] = append(paths, rev.Path)

	case m.ActionBranch:
		live[rev.Item] = []m.Path{rev.Path}
		live[rev.Action.FromItem] = removePath(live[rev.Action.FromItem], rev.Path)

	case m.ActionRename:
		oldPath := rev.Path
		newPath := oldPath.Dir().Join(rev.Action.NewName)
		c.rewriteSubtree(live, oldPath, newPath)

	case m.ActionMoveTo:
		c.rewriteSubtree(live, rev.Action.Other, rev.Path)

	case m.ActionMoveFrom:
		// The MoveTo half already relocated the subtree; an unpaired
		// MoveFrom (destination outside the exported subtree) drops the
		// path here.
		if containsPath(paths, rev.Path) {
			live[rev.Item] = removePath(paths, rev.Path)
		}

	case m.ActionDestroy:
		live[rev.Item] = removePath(paths, pathOrPrimary(rev, paths))

	default:
		// Content-scoped revisions leave the table unchanged.
	}

	if rev.Path == "" {
		rev.Path = pathOrPrimary(rev, live[rev.Item])
	}

	return rev
}

// rewriteSubtree relocates every live path at or under oldRoot.
func (c *Collector) rewriteSubtree(live map[m.ItemID][]m.Path, oldRoot, newRoot m.Path) {
	if oldRoot == "" || newRoot == "" {
		return
	}

	for id, paths := range live {
		for i, p := range paths {
			if p.IsUnder(oldRoot) {
				paths[i] = p.Rebase(oldRoot, newRoot)
			}
		}

		live[id] = paths
	}
}

func pathOrPrimary(rev m.Revision, paths []m.Path) m.Path {
	if rev.Path != "" {
		return rev.Path
	}

	if len(paths) > 0 {
		return paths[0]
	}

	return ""
}

func containsPath(paths []m.Path, p m.Path) bool {
	for _, q := range paths {
		if strings.EqualFold(string(q), string(p)) {
			return true
		}
	}

	return false
}

func removePath(paths []m.Path, p m.Path) []m.Path {
	out := paths[:0]
	for _, q := range paths {
		if !strings.EqualFold(string(q), string(p)) {
			out = append(out, q)
		}
	}

	return out
}
