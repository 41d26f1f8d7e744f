package webwindow

import "errors"

var (
	// ErrDuplicateID is returned when creating a window with an id that is
	// already held by a live window.
	ErrDuplicateID = errors.New("window id already in use")

	// ErrOutOfRange is returned when a requested window id is outside the
	// valid id space (1..MaxWindows).
	ErrOutOfRange = errors.New("window id out of range")

	// ErrUnknownWindow means an operation referenced a window id that is not
	// in the session registry.
	ErrUnknownWindow = errors.New("unknown window")

	// ErrTimeout is returned by Script when the deadline elapses before the
	// client responds.
	ErrTimeout = errors.New("script timed out")

	// ErrDisconnected is returned when the target client disconnected while
	// a call was outstanding, or the window was destroyed underneath it.
	ErrDisconnected = errors.New("client disconnected")

	// ErrScript means the client executed the script but it threw; the
	// returned data carries the client-side error text.
	ErrScript = errors.New("script failed on client")

	// ErrInvalidArgument means a mandatory argument was empty or nil. It is
	// reported before any I/O happens.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMultiClient is returned by single-client-only operations while more
	// than one client may be attached.
	ErrMultiClient = errors.New("operation is single-client only")

	// ErrNoClient means the window has no connected client to target.
	ErrNoClient = errors.New("no connected client")

	// ErrEngineClosed means the engine has been shut down.
	ErrEngineClosed = errors.New("engine closed")
)
