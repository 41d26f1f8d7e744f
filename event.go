package webwindow

import "strconv"

// EventType classifies an inbound client occurrence.
type EventType int

const (
	EventDisconnected EventType = iota
	EventConnected
	EventMouseClick
	EventNavigation
	EventCallback
)

func (t EventType) String() string {
	switch t {
	case EventDisconnected:
		return "disconnected"
	case EventConnected:
		return "connected"
	case EventMouseClick:
		return "mouse-click"
	case EventNavigation:
		return "navigation"
	case EventCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Event is the immutable snapshot handed to a handler. It is built once by
// the dispatcher immediately before handler invocation and never mutated
// afterwards.
type Event struct {
	Window       *Window
	Type         EventType
	Element      string
	Number       uint32 // correlation number of this occurrence
	BindID       uint64
	ClientID     uint64
	ConnectionID string
	Cookies      string

	args []string
}

// ArgCount returns the number of arguments the client sent with the event.
func (e *Event) ArgCount() int {
	return len(e.args)
}

// String returns the argument at index i as a string, or "" if out of range.
func (e *Event) String(i int) string {
	if i < 0 || i >= len(e.args) {
		return ""
	}
	return e.args[i]
}

// Int returns the argument at index i parsed as an integer, or 0.
func (e *Event) Int(i int) int64 {
	n, err := strconv.ParseInt(e.String(i), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Bool returns the argument at index i parsed as a boolean. "true" and any
// non-zero number are true.
func (e *Event) Bool(i int) bool {
	s := e.String(i)
	if s == "true" {
		return true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n != 0
}

// Size returns the byte length of the argument at index i.
func (e *Event) Size(i int) int {
	return len(e.String(i))
}

// ReturnString answers the callback this event originated from. Valid only
// for callback events; at most one answer is delivered per event number.
func (e *Event) ReturnString(s string) error {
	return e.Window.eng.SetResponse(e.Number, s)
}

// ReturnInt answers the callback with a textual integer encoding.
func (e *Event) ReturnInt(n int64) error {
	return e.Window.eng.SetResponse(e.Number, strconv.FormatInt(n, 10))
}

// ReturnBool answers the callback with "true" or "false".
func (e *Event) ReturnBool(b bool) error {
	return e.Window.eng.SetResponse(e.Number, strconv.FormatBool(b))
}

// Handler processes one event. For callback events a non-nil return value
// answers the originating client call unless the engine runs in
// async-response mode or the handler already answered via Return*.
type Handler func(e *Event) any
