// Package engine drives the poll cycle: it walks the resource graph on a
// fixed cadence, merges results into immutable snapshots, and classifies
// failures so consumers can tell a dead session from a network hiccup.
package engine

import (
	"time"

	"pointtbridge/internal/pointt"
)

// ErrorKind classifies the failure recorded on a snapshot.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorTransient
	ErrorPartial
	ErrorAuth
)

// String returns the kind name for logging and the status API.
func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorTransient:
		return "transient"
	case ErrorPartial:
		return "partial"
	case ErrorAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Snapshot is a fully merged view of all polled resource values as of one
// completed cycle. It is immutable once published: the coordinator swaps in
// a fresh instance instead of mutating, so readers never see a torn or
// half-merged state.
type Snapshot struct {
	Values    map[string]pointt.Value
	AsOf      time.Time
	LastError ErrorKind
}

// Get returns the value fetched for one resource path.
func (s *Snapshot) Get(path string) (pointt.Value, bool) {
	if s == nil {
		return nil, false
	}
	value, ok := s.Values[path]
	return value, ok
}

// Len returns the number of resource paths in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Values)
}

// withError returns a copy of the snapshot carrying the given error kind,
// keeping values and timestamp of the last good cycle. A nil snapshot stays
// nil: until one cycle completes there is nothing to serve, marked or not.
func (s *Snapshot) withError(kind ErrorKind) *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		Values:    s.Values,
		AsOf:      s.AsOf,
		LastError: kind,
	}
}
