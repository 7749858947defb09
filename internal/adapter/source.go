// Package adapter provides the pipeline's external collaborators: the
// read-only source archive model, the target git backend, and the legacy
// codepage transcoder.
package adapter

import (
	"errors"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

// ErrPathNotFound is returned when a logical path does not resolve to an
// item in the source archive.
var ErrPathNotFound = errors.New("path not found in source archive")

// ErrNotAProject is returned when a path resolves to a file where a project
// was required.
var ErrNotAProject = errors.New("path is not a project")

// Source is the read-only logical object model of a legacy archive. The
// on-disk binary decoding lives behind this interface; the pipeline only
// ever walks items and fetches historical byte content.
type Source interface {
	// Open resolves a logical path to an item.
	Open(path m.Path) (Item, error)
}

// Item is one file or project of the source archive, with its full recorded
// history.
type Item interface {
	ID() m.ItemID
	// Path is the item's current (final) logical path.
	Path() m.Path
	IsProject() bool
	// Revisions returns the item's history ordered by version. It fails
	// when the item's recorded history cannot be read.
	Revisions() ([]m.Revision, error)
	// Content returns the item's byte content at the given version.
	// Projects have no content.
	Content(version int) ([]byte, error)
	// Files and Projects enumerate children; both are empty for files.
	Files() []Item
	Projects() []Item
}
