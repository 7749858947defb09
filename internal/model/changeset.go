package model

import "time"

// Changeset is a contiguous slice of the global revision log grouped under
// one target commit. StateOnly changesets mutate the working tree during a
// resumed export but never reach the backend.
type Changeset struct {
	Time      time.Time
	User      string
	Comment   string
	Revisions []Revision
	StateOnly bool
}
