package model

import "time"

// Revision is one immutable recorded change of an item.
//
// Version is monotonic per item; Seq is the global stable tie-break assigned
// by the collector after sorting, so two revisions with equal timestamps keep
// a deterministic order everywhere downstream. Path is the logical path valid
// at the revision's time, resolved by the collector's path table.
type Revision struct {
	Item    ItemID
	Version int
	Time    time.Time
	User    string
	Comment string
	Action  Action
	Path    Path
	Seq     int
}
