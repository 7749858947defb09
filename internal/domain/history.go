// Package domain implements the three-stage migration pipeline: collecting
// the global revision log, grouping it into changesets, and replaying the
// changesets against a working tree committed to the target backend.
package domain

import (
	"errors"
	"fmt"

	"vss2git.dev/pkg/vss2git/internal/adapter"
	m "vss2git.dev/pkg/vss2git/internal/model"
)

// ErrAborted is returned by any stage once the operator or scheduler has
// requested a cooperative stop.
var ErrAborted = errors.New("migration aborted")

// History is the collector's output: the global chronological revision log
// plus the item handles needed to fetch historical byte content during
// replay.
type History struct {
	Revisions []m.Revision

	items map[m.ItemID]adapter.Item
}

// Content fetches the byte content of an item at a historical version.
func (h *History) Content(id m.ItemID, version int) ([]byte, error) {
	it, ok := h.items[id]
	if !ok {
		return nil, fmt.Errorf("no item handle for %s", id)
	}

	b, err := it.Content(version)
	if err != nil {
		return nil, fmt.Errorf("content of %s v%d: %w", id, version, err)
	}

	return b, nil
}

// Item returns the handle collected for an item id, or nil.
func (h *History) Item(id m.ItemID) adapter.Item {
	return h.items[id]
}
