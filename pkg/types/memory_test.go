package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryTypeValid(t *testing.T) {
	assert.True(t, Episodic.Valid())
	assert.True(t, Semantic.Valid())
	assert.True(t, Procedural.Valid())
	assert.False(t, MemoryType("dream").Valid())
	assert.False(t, MemoryType("").Valid())
}
