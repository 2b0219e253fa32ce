package prism

// UninitializedError is returned from every [Control] method that
// requires a live session, when the control's handle or connection
// reference has been cleared by teardown (or was never populated).
type UninitializedError struct {
	// Which of the two required references were present
	// at the time of the failed operation.
	HaveHandle bool
	HaveConn   bool
}

func (e UninitializedError) Error() string {
	switch {
	case !e.HaveHandle && !e.HaveConn:
		return "surface control not initialized: no handle, no connection"
	case !e.HaveHandle:
		return "surface control not initialized: no handle"
	default:
		return "surface control not initialized: no connection"
	}
}
