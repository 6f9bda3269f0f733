package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// NewFunc generates identifiers; tests replace it with Sequential.
var NewFunc = uuid.NewString

// New returns a new identifier.
func New() string { return NewFunc() }

// Sequential returns a generator of prefix-1, prefix-2, ...
func Sequential(prefix string) func() string {
	var next atomic.Uint64
	return func() string {
		return prefix + "-" + strconv.FormatUint(next.Add(1), 10)
	}
}
