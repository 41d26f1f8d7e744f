package webwindow

import "testing"

func TestEventArgAccessors(t *testing.T) {
	ev := &Event{args: []string{"hello", "42", "true", "0"}}

	if ev.ArgCount() != 4 {
		t.Fatalf("ArgCount = %d", ev.ArgCount())
	}
	if ev.String(0) != "hello" || ev.String(99) != "" || ev.String(-1) != "" {
		t.Fatal("String accessor wrong")
	}
	if ev.Int(1) != 42 || ev.Int(0) != 0 {
		t.Fatal("Int accessor wrong")
	}
	if !ev.Bool(2) || ev.Bool(3) || ev.Bool(0) {
		t.Fatal("Bool accessor wrong")
	}
	if ev.Size(0) != 5 || ev.Size(99) != 0 {
		t.Fatal("Size accessor wrong")
	}
}

func TestEventTypeString(t *testing.T) {
	for typ, want := range map[EventType]string{
		EventDisconnected: "disconnected",
		EventConnected:    "connected",
		EventMouseClick:   "mouse-click",
		EventNavigation:   "navigation",
		EventCallback:     "callback",
		EventType(99):     "unknown",
	} {
		if got := typ.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", typ, got, want)
		}
	}
}
