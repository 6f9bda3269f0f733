package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	first, second := New(), New()
	assert.Len(t, first, 36)
	assert.NotEqual(t, first, second)
}

func TestSequential(t *testing.T) {
	defer func(prev func() string) { NewFunc = prev }(NewFunc)
	NewFunc = Sequential("boot")
	assert.Equal(t, "boot-1", New())
	assert.Equal(t, "boot-2", New())
	assert.Equal(t, "evt-1", Sequential("evt")())
}
