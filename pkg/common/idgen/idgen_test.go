package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionID(t *testing.T) {
	t.Parallel()

	id := NewSessionID()
	assert.True(t, strings.HasPrefix(id, "s-"))
	assert.Len(t, id, 38) // "s-" + 36-char canonical UUID
}

func TestNewRequestID(t *testing.T) {
	t.Parallel()

	id := NewRequestID()
	assert.True(t, strings.HasPrefix(id, "r-"))
	assert.Len(t, id, 38)
}

func TestIDsAreUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 1000 {
		id := NewSessionID()
		_, dup := seen[id]
		assert.False(t, dup, "generated a duplicate session id: %s", id)
		seen[id] = struct{}{}
	}
}
