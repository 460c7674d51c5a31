package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("snapshot", "2025-01-02")
	assert.Equal(t, "snapshot 2025-01-02 not found", err.Error())
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", err)))
}

func TestSchemaMismatchError(t *testing.T) {
	err := NewSchemaMismatchError("snapshot_2025-01-02.csv", "cin", "missing")
	assert.Contains(t, err.Error(), "cin")
	assert.True(t, IsSchemaMismatch(err))
	assert.False(t, IsNotFound(err))
}

func TestPersistError(t *testing.T) {
	cause := New("disk full")
	err := NewPersistError("artifact", "2025-01-02", cause)
	assert.True(t, IsPartialPersist(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "artifact")
}

func TestWrapHelpers(t *testing.T) {
	assert.NoError(t, WrapIO("open", "x.csv", nil))

	wrapped := WrapIO("open", "x.csv", ErrNotFound)
	assert.True(t, IsNotFound(wrapped))
	assert.Contains(t, wrapped.Error(), "open x.csv")

	dbErr := WrapDB("upsert", New("locked"))
	assert.Contains(t, dbErr.Error(), "database upsert")
}
