package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pointtbridge/internal/pointt"
)

func TestSnapshot_NilSafeAccessors(t *testing.T) {
	var s *Snapshot

	value, ok := s.Get("/gateway")
	assert.Nil(t, value)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestSnapshot_Get(t *testing.T) {
	s := &Snapshot{Values: map[string]pointt.Value{
		"/gateway": {"id": "/gateway"},
	}}

	value, ok := s.Get("/gateway")
	assert.True(t, ok)
	assert.Equal(t, "/gateway", value["id"])

	_, ok = s.Get("/energy")
	assert.False(t, ok)
}

func TestSnapshot_WithErrorKeepsData(t *testing.T) {
	asOf := time.Now().Add(-time.Minute)
	s := &Snapshot{
		Values: map[string]pointt.Value{"/gateway": {"id": "/gateway"}},
		AsOf:   asOf,
	}

	marked := s.withError(ErrorTransient)
	assert.Equal(t, ErrorTransient, marked.LastError)
	assert.Equal(t, asOf, marked.AsOf)
	assert.Equal(t, 1, marked.Len())
	assert.Equal(t, ErrorNone, s.LastError, "original untouched")

	var none *Snapshot
	assert.Nil(t, none.withError(ErrorAuth), "nothing published before the first completed cycle")
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "none", ErrorNone.String())
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "partial", ErrorPartial.String())
	assert.Equal(t, "auth", ErrorAuth.String())
}
