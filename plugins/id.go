package plugins

import (
	"strconv"
)

// ID is the opaque handle of an installed module. Ids are assigned monotonically
// starting at 1 and are never reused while the registry lives.
type ID uint64

// InvalidID is never assigned to a context
const InvalidID ID = 0

// Valid reports whether id could have been assigned by an Allocator
func (id ID) Valid() bool {
	return id != InvalidID
}

// String renders the id as "#<n>"
func (id ID) String() string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// Allocator hands out monotonically increasing ids.
// It is not safe for concurrent use; the registry serializes it under its lock.
type Allocator struct {
	last ID
}

// Next returns a fresh id
func (a *Allocator) Next() ID {
	a.last++
	return a.last
}

// Last returns the most recently allocated id, or InvalidID if none was allocated
func (a *Allocator) Last() ID {
	return a.last
}
