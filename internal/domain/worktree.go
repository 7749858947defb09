package domain

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

// WorkTree is the exporter's live model of the target repository's file
// tree. It owns the shared-identity sets (item id to live path set) and the
// per-path pin and delete flags, and materializes content through an afero
// filesystem so tests replay entire migrations in memory.
//
// Only the single export worker mutates it; that discipline is what keeps
// shared-edit propagation deterministic without any locking here.
//
// Filesystem access always uses "/"-rooted paths, which both MemMapFs and a
// BasePathFs over the real work tree resolve identically; the touched set
// keeps the work-tree-relative spelling git staging wants.
type WorkTree struct {
	fs      afero.Fs
	mapper  func(m.Path) (string, bool)
	items   map[m.ItemID]*treeItem
	paths   map[m.Path]*treePath
	touched map[string]bool
}

// treeItem is the physical-identity side: current content version and the
// shared-identity set referencing it.
type treeItem struct {
	version int
	paths   []m.Path
}

// treePath is one live logical path. It back-references its item by id only.
type treePath struct {
	item    m.ItemID
	deleted bool
	pinned  int
	hasPin  bool
	isDir   bool
}

// NewWorkTree creates a working tree writing through fs. mapper translates a
// logical source path to a work-tree-relative path; it returns false for
// paths outside the exported subtree, which are tracked in the model but
// never materialized.
func NewWorkTree(fs afero.Fs, mapper func(m.Path) (string, bool)) *WorkTree {
	return &WorkTree{
		fs:      fs,
		mapper:  mapper,
		items:   map[m.ItemID]*treeItem{},
		paths:   map[m.Path]*treePath{},
		touched: map[string]bool{},
	}
}

func abs(rel string) string {
	return "/" + strings.TrimPrefix(rel, "/")
}

func rel(absPath string) string {
	return strings.TrimPrefix(absPath, "/")
}

// Touched returns the work-tree-relative paths written or removed since the
// last call, sorted for deterministic staging, and resets the set.
func (w *WorkTree) Touched() []string {
	out := make([]string, 0, len(w.touched))
	for p := range w.touched {
		out = append(out, p)
	}

	sort.Strings(out)
	w.touched = map[string]bool{}

	return out
}

func (w *WorkTree) item(id m.ItemID) *treeItem {
	it, ok := w.items[id]
	if !ok {
		it = &treeItem{}
		w.items[id] = it
	}

	return it
}

func (w *WorkTree) path(p m.Path) *treePath {
	return w.paths[p]
}

// Bind makes p a live path of the item, creating states as needed.
func (w *WorkTree) Bind(p m.Path, id m.ItemID, isDir bool) *treePath {
	it := w.item(id)
	if !containsPath(it.paths, p) {
		it.paths = append(it.paths, p)
	}

	tp, ok := w.paths[p]
	if !ok {
		tp = &treePath{}
		w.paths[p] = tp
	}

	tp.item = id
	tp.isDir = isDir
	tp.deleted = false

	return tp
}

// Unbind removes p from its item's shared-identity set and from the model.
func (w *WorkTree) Unbind(p m.Path) {
	tp, ok := w.paths[p]
	if !ok {
		return
	}

	if it, ok := w.items[tp.item]; ok {
		it.paths = removePath(it.paths, p)
		if len(it.paths) == 0 {
			delete(w.items, tp.item)
		}
	}

	delete(w.paths, p)
}

// SharedPaths returns the item's live paths.
func (w *WorkTree) SharedPaths(id m.ItemID) []m.Path {
	if it, ok := w.items[id]; ok {
		return append([]m.Path(nil), it.paths...)
	}

	return nil
}

// Exists reports whether p is a live, non-deleted path.
func (w *WorkTree) Exists(p m.Path) bool {
	tp, ok := w.paths[p]

	return ok && !tp.deleted
}

// Write materializes content at p.
func (w *WorkTree) Write(p m.Path, content []byte) error {
	relPath, ok := w.mapper(p)
	if !ok || relPath == "" {
		return nil
	}

	target := abs(relPath)

	if err := w.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", relPath, err)
	}

	if err := afero.WriteFile(w.fs, target, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}

	w.touched[relPath] = true

	return nil
}

// MkDir materializes a directory at p.
func (w *WorkTree) MkDir(p m.Path) error {
	relPath, ok := w.mapper(p)
	if !ok || relPath == "" {
		return nil
	}

	if err := w.fs.MkdirAll(abs(relPath), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", relPath, err)
	}

	return nil
}

// Remove deletes the materialized file or directory tree at p. The model
// entry is left to the caller; soft deletes keep it, destroys unbind it.
func (w *WorkTree) Remove(p m.Path) error {
	relPath, ok := w.mapper(p)
	if !ok || relPath == "" {
		return nil
	}

	return w.removeRel(relPath)
}

func (w *WorkTree) removeRel(relPath string) error {
	target := abs(relPath)

	info, err := w.fs.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("stat %s: %w", relPath, err)
	}

	if err := w.markTreeTouched(relPath, info); err != nil {
		return err
	}

	if err := w.fs.RemoveAll(target); err != nil {
		return fmt.Errorf("remove %s: %w", relPath, err)
	}

	return nil
}

// Relocate moves the materialized tree at oldPath to newPath and rewrites
// every model path at or under oldPath, keeping shared-identity sets intact.
func (w *WorkTree) Relocate(oldPath, newPath m.Path) error {
	// Rewrite the model first: disk presence varies with the export
	// subtree, the model never does.
	type rebind struct {
		old, new m.Path
	}

	var rebinds []rebind

	for p := range w.paths {
		if p.IsUnder(oldPath) {
			rebinds = append(rebinds, rebind{old: p, new: p.Rebase(oldPath, newPath)})
		}
	}

	for _, r := range rebinds {
		tp := w.paths[r.old]
		delete(w.paths, r.old)
		w.paths[r.new] = tp

		if it, ok := w.items[tp.item]; ok {
			for i, q := range it.paths {
				if strings.EqualFold(string(q), string(r.old)) {
					it.paths[i] = r.new
				}
			}
		}
	}

	oldRel, oldOK := w.mapper(oldPath)
	newRel, newOK := w.mapper(newPath)

	switch {
	case oldOK && newOK:
		return w.moveTree(oldRel, newRel)
	case oldOK:
		// Moved out of the exported subtree.
		return w.removeRel(oldRel)
	default:
		// Moved in, or fully outside: the caller re-materializes what
		// should exist.
		return nil
	}
}

// moveTree moves a file or directory, file by file so every touched path is
// recorded for staging.
func (w *WorkTree) moveTree(oldRel, newRel string) error {
	oldAbs := abs(oldRel)

	info, err := w.fs.Stat(oldAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("stat %s: %w", oldRel, err)
	}

	if !info.IsDir() {
		return w.moveFile(oldRel, newRel)
	}

	var files []string

	err = afero.Walk(w.fs, oldAbs, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !fi.IsDir() {
			files = append(files, rel(walkPath))
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", oldRel, err)
	}

	for _, f := range files {
		rest := strings.TrimPrefix(strings.TrimPrefix(f, oldRel), "/")

		if err := w.moveFile(f, path.Join(newRel, rest)); err != nil {
			return err
		}
	}

	if err := w.fs.RemoveAll(oldAbs); err != nil {
		return fmt.Errorf("remove %s: %w", oldRel, err)
	}

	if err := w.fs.MkdirAll(abs(newRel), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", newRel, err)
	}

	return nil
}

func (w *WorkTree) moveFile(oldRel, newRel string) error {
	content, err := afero.ReadFile(w.fs, abs(oldRel))
	if err != nil {
		return fmt.Errorf("read %s: %w", oldRel, err)
	}

	if err := w.fs.MkdirAll(path.Dir(abs(newRel)), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", newRel, err)
	}

	if err := afero.WriteFile(w.fs, abs(newRel), content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", newRel, err)
	}

	if err := w.fs.Remove(abs(oldRel)); err != nil {
		return fmt.Errorf("remove %s: %w", oldRel, err)
	}

	w.touched[oldRel] = true
	w.touched[newRel] = true

	return nil
}

func (w *WorkTree) markTreeTouched(relPath string, info os.FileInfo) error {
	if !info.IsDir() {
		w.touched[relPath] = true
		return nil
	}

	return afero.Walk(w.fs, abs(relPath), func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !fi.IsDir() {
			w.touched[rel(walkPath)] = true
		}

		return nil
	})
}
