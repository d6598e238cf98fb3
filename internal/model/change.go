package model

import "time"

// ChangeKind is the kind of row change delivered by the realtime feed.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// ChangeEvent is a single row change on a table. New is set for inserts
// and updates, Old for updates and deletes.
type ChangeEvent struct {
	Kind            ChangeKind `json:"eventType"`
	Table           string     `json:"table"`
	New             *Todo      `json:"new,omitempty"`
	Old             *Todo      `json:"old,omitempty"`
	CommitTimestamp time.Time  `json:"commit_timestamp"`
}

// Owner returns the user that owns the changed row: the new row's owner
// for inserts and updates, the old row's owner for deletes. It returns ""
// when the relevant row is missing.
func (e ChangeEvent) Owner() string {
	switch e.Kind {
	case ChangeInsert, ChangeUpdate:
		if e.New != nil {
			return e.New.UserID
		}
	case ChangeDelete:
		if e.Old != nil {
			return e.Old.UserID
		}
	}
	return ""
}

// VisibleTo reports whether userID may see the event under row-level
// security: either side of the change must be owned by userID.
func (e ChangeEvent) VisibleTo(userID string) bool {
	if userID == "" {
		return false
	}
	if e.New != nil && e.New.UserID == userID {
		return true
	}
	return e.Old != nil && e.Old.UserID == userID
}
