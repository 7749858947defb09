package adapter

import (
	"fmt"
	"time"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

// MemSource is an in-memory Source. It is populated through a chronological
// builder API, either by the journal loader or directly by tests scripting
// historical scenarios. The builder mirrors what a legacy archive records:
// every call appends revisions to the affected item and keeps the live
// path-to-item mapping current.
type MemSource struct {
	items  map[m.ItemID]*memItem
	byPath map[m.Path]*memItem
	root   *memItem
	nextID int
}

type memItem struct {
	id        m.ItemID
	path      m.Path
	isProject bool
	version   int
	revisions []m.Revision
	contents  map[int][]byte
	children  []*memItem
	deleted   map[m.Path]bool
}

// NewMemSource creates an empty archive holding only the root project.
func NewMemSource() *MemSource {
	s := &MemSource{
		items:  map[m.ItemID]*memItem{},
		byPath: map[m.Path]*memItem{},
	}
	s.root = s.newItem(m.RootProject, true)

	return s
}

// Open implements Source.
func (s *MemSource) Open(path m.Path) (Item, error) {
	it, ok := s.byPath[path]
	if !ok {
		return nil, fmt.Errorf("%q: %w", path, ErrPathNotFound)
	}

	return it, nil
}

// OpenProject resolves a path and requires it to be a project.
func (s *MemSource) OpenProject(path m.Path) (Item, error) {
	it, err := s.Open(path)
	if err != nil {
		return nil, err
	}

	if !it.IsProject() {
		return nil, fmt.Errorf("%q: %w", path, ErrNotAProject)
	}

	return it, nil
}

func (s *MemSource) newItem(path m.Path, isProject bool) *memItem {
	s.nextID++
	it := &memItem{
		id:        m.ItemID(fmt.Sprintf("phys-%04d", s.nextID)),
		path:      path,
		isProject: isProject,
		contents:  map[int][]byte{},
		deleted:   map[m.Path]bool{},
	}
	s.items[it.id] = it
	s.byPath[path] = it

	return it
}

func (s *MemSource) ensureProject(at time.Time, user string, path m.Path) *memItem {
	if it, ok := s.byPath[path]; ok {
		return it
	}

	parent := s.ensureProject(at, user, path.Dir())
	it := s.newItem(path, true)
	parent.children = append(parent.children, it)
	it.record(m.Revision{
		Time: at,
		User: user,
		Path: path,
		Action: m.Action{
			Kind: m.ActionAdd,
		},
	})

	return it
}

func (it *memItem) record(rev m.Revision) {
	rev.Item = it.id
	if rev.Version == 0 {
		rev.Version = it.version
	}

	it.revisions = append(it.revisions, rev)
}

// AddProject records the creation of a project, creating missing parents.
func (s *MemSource) AddProject(at time.Time, user, comment string, path m.Path) {
	if _, ok := s.byPath[path]; ok {
		return
	}

	parent := s.ensureProject(at, user, path.Dir())
	it := s.newItem(path, true)
	parent.children = append(parent.children, it)
	it.record(m.Revision{
		Time:    at,
		User:    user,
		Comment: comment,
		Path:    path,
		Action:  m.Action{Kind: m.ActionAdd},
	})
}

// AddFile records the creation of a file with its initial content.
func (s *MemSource) AddFile(at time.Time, user, comment string, path m.Path, content []byte) {
	parent := s.ensureProject(at, user, path.Dir())
	it := s.newItem(path, false)
	parent.children = append(parent.children, it)
	it.version = 1
	it.contents[1] = append([]byte(nil), content...)
	it.record(m.Revision{
		Time:    at,
		User:    user,
		Comment: comment,
		Version: 1,
		Path:    path,
		Action:  m.Action{Kind: m.ActionAdd},
	})
}

// Edit records a new content version of the file at path.
func (s *MemSource) Edit(at time.Time, user, comment string, path m.Path, content []byte) error {
	it, ok := s.byPath[path]
	if !ok || it.isProject {
		return fmt.Errorf("edit %q: %w", path, ErrPathNotFound)
	}

	it.version++
	it.contents[it.version] = append([]byte(nil), content...)
	it.record(m.Revision{
		Time:    at,
		User:    user,
		Comment: comment,
		Version: it.version,
		Path:    path,
		Action:  m.Action{Kind: m.ActionEdit},
	})

	return nil
}

// Rename records a rename of the item at path to newName within the same
// project. Live paths of the item and of its whole subtree are rewritten.
func (s *MemSource) Rename(at time.Time, user, comment string, path m.Path, newName string) error {
	it, ok := s.byPath[path]
	if !ok {
		return fmt.Errorf("rename %q: %w", path, ErrPathNotFound)
	}

	newPath := path.Dir().Join(newName)
	it.record(m.Revision{
		Time:    at,
		User:    user,
		Comment: comment,
		Path:    path,
		Action: m.Action{
			Kind:    m.ActionRename,
			OldName: path.Base(),
			NewName: newName,
		},
	})
	s.relocate(it, path, newPath)

	return nil
}

// Move records a move of the item at oldPath to newPath, emitting the paired
// MoveTo/MoveFrom halves on the moved item.
func (s *MemSource) Move(at time.Time, user, comment string, oldPath, newPath m.Path) error {
	it, ok := s.byPath[oldPath]
	if !ok {
		return fmt.Errorf("move %q: %w", oldPath, ErrPathNotFound)
	}

	newParent := s.ensureProject(at, user, newPath.Dir())

	it.record(m.Revision{
		Time:    at,
		User:    user,
		Comment: comment,
		Path:    newPath,
		Action:  m.Action{Kind: m.ActionMoveTo, Other: oldPath},
	})
	it.record(m.Revision{
		Time:    at,
		User:    user,
		Comment: comment,
		Path:    oldPath,
		Action:  m.Action{Kind: m.ActionMoveFrom, Other: newPath},
	})

	oldParent := s.byPath[oldPath.Dir()]
	if oldParent != nil {
		oldParent.removeChild(it)
	}

	newParent.children = append(newParent.children, it)
	s.relocate(it, oldPath, newPath)

	return nil
}

// Share records that target becomes a second live path of the item at source.
func (s *MemSource) Share(at time.Time, user, comment string, source, target m.Path) error {
	it, ok := s.byPath[source]
	if !ok || it.isProject {
		return fmt.Errorf("share %q: %w", source, ErrPathNotFound)
	}

	parent := s.ensureProject(at, user, target.Dir())
	parent.children = append(parent.children, it)
	s.byPath[target] = it
	it.record(m.Revision{
		Time:    at,
		User:    user,
		Comment: comment,
		Path:    target,
		Action:  m.Action{Kind: m.ActionShare, Other: source},
	})

	return nil
}

// Branch breaks the share at path: the path becomes a new independent item
// that inherits the shared content history up to the branch point.
func (s *MemSource) Branch(at time.Time, user, comment string, path m.Path) error {
	old, ok := s.byPath[path]
	if !ok || old.isProject {
		return fmt.Errorf("branch %q: %w", path, ErrPathNotFound)
	}

	branched := s.newItem(path, false)
	branched.version = old.version
	for v, b := range old.contents {
		if v <= old.version {
			branched.contents[v] = b
		}
	}

	branched.record(m.Revision{
		Time:    at,
		User:    user,
		Comment: comment,
		Version: old.version,
		Path:    path,
		Action:  m.Action{Kind: m.ActionBranch, FromItem: old.id},
	})

	parent := s.byPath[path.Dir()]
	if parent != nil {
		parent.removeChild(old)
		parent.children = append(parent.children, branched)
	}

	return nil
}

// Pin freezes the path's content at the given version.
func (s *MemSource) Pin(at time.Time, user, comment string, path m.Path, version int) error {
	return s.pathRevision(at, user, comment, path, m.Action{Kind: m.ActionPin, Version: version})
}

// Unpin releases a pinned path back to the item's current version.
func (s *MemSource) Unpin(at time.Time, user, comment string, path m.Path) error {
	return s.pathRevision(at, user, comment, path, m.Action{Kind: m.ActionUnpin})
}

// Delete records a reversible deletion of the path.
func (s *MemSource) Delete(at time.Time, user, comment string, path m.Path) error {
	if it, ok := s.byPath[path]; ok {
		it.deleted[path] = true
	}

	return s.pathRevision(at, user, comment, path, m.Action{Kind: m.ActionDelete})
}

// Recover reverses a prior deletion of the path.
func (s *MemSource) Recover(at time.Time, user, comment string, path m.Path) error {
	if it, ok := s.byPath[path]; ok {
		delete(it.deleted, path)
	}

	return s.pathRevision(at, user, comment, path, m.Action{Kind: m.ActionRecover})
}

// Destroy permanently removes the path. The item stays enumerable through its
// parent so its history remains collectable, matching what a project's own
// recorded history preserves.
func (s *MemSource) Destroy(at time.Time, user, comment string, path m.Path) error {
	err := s.pathRevision(at, user, comment, path, m.Action{Kind: m.ActionDestroy})
	if err != nil {
		return err
	}

	delete(s.byPath, path)

	return nil
}

// Label records a tag request on the item at path.
func (s *MemSource) Label(at time.Time, user, comment string, path m.Path, name string) error {
	return s.pathRevision(at, user, comment, path, m.Action{Kind: m.ActionLabel, Name: name})
}

func (s *MemSource) pathRevision(at time.Time, user, comment string, path m.Path, action m.Action) error {
	it, ok := s.byPath[path]
	if !ok {
		return fmt.Errorf("%s %q: %w", action.Kind, path, ErrPathNotFound)
	}

	it.record(m.Revision{
		Time:    at,
		User:    user,
		Comment: comment,
		Path:    path,
		Action:  action,
	})

	return nil
}

// relocate rewrites the live path of the item and every descendant.
func (s *MemSource) relocate(it *memItem, oldPath, newPath m.Path) {
	if s.byPath[oldPath] == it {
		delete(s.byPath, oldPath)
	}

	s.byPath[newPath] = it
	it.path = newPath

	if !it.isProject {
		return
	}

	for _, child := range it.children {
		childOld := oldPath.Join(child.path.Base())
		childNew := newPath.Join(child.path.Base())
		s.relocate(child, childOld, childNew)
	}
}

func (it *memItem) removeChild(child *memItem) {
	for i, c := range it.children {
		if c == child {
			it.children = append(it.children[:i], it.children[i+1:]...)
			return
		}
	}
}

// ID implements Item.
func (it *memItem) ID() m.ItemID { return it.id }

// Path implements Item.
func (it *memItem) Path() m.Path { return it.path }

// IsProject implements Item.
func (it *memItem) IsProject() bool { return it.isProject }

// Revisions implements Item.
func (it *memItem) Revisions() ([]m.Revision, error) {
	return append([]m.Revision(nil), it.revisions...), nil
}

// Content implements Item.
func (it *memItem) Content(version int) ([]byte, error) {
	if it.isProject {
		return nil, fmt.Errorf("%q is a project and has no content", it.path)
	}

	b, ok := it.contents[version]
	if !ok {
		return nil, fmt.Errorf("%q has no content for version %d", it.path, version)
	}

	return b, nil
}

// Files implements Item.
func (it *memItem) Files() []Item {
	var out []Item
	for _, c := range it.children {
		if !c.isProject {
			out = append(out, c)
		}
	}

	return out
}

// Projects implements Item.
func (it *memItem) Projects() []Item {
	var out []Item
	for _, c := range it.children {
		if c.isProject {
			out = append(out, c)
		}
	}

	return out
}
