package sandbox

import "fmt"

// Error reports a failure of one sandboxed entry-point invocation.
type Error struct {
	PluginID  string
	Entry     string
	Message   string
	Cause     error
	IsTimeout bool
	IsCrash   bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sandbox %s: %s: %s: %v", e.PluginID, e.Entry, e.Message, e.Cause)
	}
	return fmt.Sprintf("sandbox %s: %s: %s", e.PluginID, e.Entry, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
