package pconn

import (
	"fmt"

	"github.com/prism-engine/prism"
)

// UnknownHandleError is returned when a forwarded command names a
// handle this session never minted (or already destroyed).
type UnknownHandleError struct {
	Handle *prism.Handle
}

func (e UnknownHandleError) Error() string {
	return fmt.Sprintf("handle %v is not registered with this session", e.Handle)
}

// SessionClosedError is returned from every forwarded command
// after [*Conn.Close].
type SessionClosedError struct{}

func (SessionClosedError) Error() string {
	return "compositor session is closed"
}

// RemoteError is a non-success status from the compositor on a
// request/response exchange. The session passes it through without
// interpretation.
type RemoteError struct {
	Op   string
	Code uint32
}

func (e RemoteError) Error() string {
	return fmt.Sprintf("compositor rejected %s: status %d", e.Op, e.Code)
}
