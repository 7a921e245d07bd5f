package capacity

import "fmt"

// Identity is the persisted identity of a usage record. A record starts out
// Unsaved and becomes Saved once the backend has assigned it an id; it never
// goes back.
type Identity struct {
	id int64
}

// Unsaved returns the identity of a record the backend has not stored yet.
func Unsaved() Identity {
	return Identity{}
}

// Saved returns the identity for a backend-assigned id. Non-positive ids
// yield Unsaved.
func Saved(id int64) Identity {
	if id <= 0 {
		return Unsaved()
	}
	return Identity{id: id}
}

// IsSaved reports whether the backend has assigned an id.
func (i Identity) IsSaved() bool {
	return i.id > 0
}

// ID returns the backend id and whether it is set.
func (i Identity) ID() (int64, bool) {
	return i.id, i.id > 0
}

// WireID returns the id sent to the backend: 0 asks it to create the row.
func (i Identity) WireID() int64 {
	return i.id
}

// Promote applies the id returned by an upsert. A zero response keeps the
// current identity so a saved record never regresses to Unsaved.
func (i Identity) Promote(returned int64) Identity {
	if returned > 0 {
		return Saved(returned)
	}
	return i
}

func (i Identity) String() string {
	if !i.IsSaved() {
		return "unsaved"
	}
	return fmt.Sprintf("saved(%d)", i.id)
}
