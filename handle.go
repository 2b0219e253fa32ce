package prism

import (
	"fmt"
	"sync/atomic"
)

// Handle is an opaque reference to a layer owned by the remote compositor.
//
// A Handle carries no client-visible state.
// Two controls refer to the same remote layer
// if and only if they hold the identical *Handle,
// so handles compare by pointer identity, never by value.
// The session keeps its own registry mapping handles to wire IDs.
type Handle struct {
	// Used only for log output.
	// Distinct handles may never share a seq,
	// but equality is still pointer equality.
	seq uint64
}

var handleSeq atomic.Uint64

// NewHandle mints a distinct layer handle.
//
// Handles are normally created by the session's surface factory;
// NewHandle exists so session implementations and test doubles
// can produce them.
func NewHandle() *Handle {
	return &Handle{seq: handleSeq.Add(1)}
}

// String returns an opaque representation of h for diagnostics.
func (h *Handle) String() string {
	if h == nil {
		return "layer(nil)"
	}
	return fmt.Sprintf("layer(%#x)", h.seq)
}
