package webwindow

import (
	"errors"
	"testing"
	"time"
)

func TestCorrelatorOutOfOrderResolution(t *testing.T) {
	co := newCorrelator()
	a := co.issue(1, 1, 64)
	b := co.issue(1, 1, 64)

	// The second request completes first; each caller must still get its
	// own payload.
	co.resolve(b.id, true, []byte("second"))
	co.resolve(a.id, true, []byte("first"))

	if res := <-a.ch; res.err != nil || res.data != "first" {
		t.Fatalf("call a: %+v", res)
	}
	if res := <-b.ch; res.err != nil || res.data != "second" {
		t.Fatalf("call b: %+v", res)
	}
}

func TestCorrelatorTruncatesToCapacity(t *testing.T) {
	co := newCorrelator()
	p := co.issue(1, 1, 4)
	co.resolve(p.id, true, []byte("0123456789"))
	if res := <-p.ch; res.data != "0123" {
		t.Fatalf("data = %q, want truncated %q", res.data, "0123")
	}
}

func TestCorrelatorClientFailureMapsToErrScript(t *testing.T) {
	co := newCorrelator()
	p := co.issue(1, 1, 64)
	co.resolve(p.id, false, []byte("ReferenceError: x is not defined"))
	res := <-p.ch
	if !errors.Is(res.err, ErrScript) {
		t.Fatalf("err = %v, want ErrScript", res.err)
	}
	if res.data != "ReferenceError: x is not defined" {
		t.Fatalf("data = %q", res.data)
	}
}

func TestCorrelatorLateResponseDropped(t *testing.T) {
	co := newCorrelator()
	p := co.issue(1, 1, 64)
	co.abandon(p.id)
	co.resolve(p.id, true, []byte("too late"))

	select {
	case res := <-p.ch:
		t.Fatalf("abandoned call resolved: %+v", res)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCorrelatorFailClient(t *testing.T) {
	co := newCorrelator()
	mine := co.issue(7, 1, 64)
	other := co.issue(8, 1, 64)

	co.failClient(7, ErrDisconnected)

	if res := <-mine.ch; !errors.Is(res.err, ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", res.err)
	}
	co.resolve(other.id, true, []byte("ok"))
	if res := <-other.ch; res.err != nil || res.data != "ok" {
		t.Fatalf("unrelated call disturbed: %+v", res)
	}
}

func TestCorrelatorAnswerOnce(t *testing.T) {
	co := newCorrelator()
	link := &fakeLink{}
	c := &Client{ID: 1, link: link}
	num, rec := co.track(c, 1, 99, true)
	if rec == nil {
		t.Fatal("callback occurrence got no record")
	}

	if err := co.answer(num, true, "result"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	// The number is consumed by the first answer.
	if err := co.answer(num, true, "again"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("second answer by number: %v", err)
	}
	// A caller still holding the record gets a silent no-op.
	if err := co.answerRecord(num, rec, true, "again"); err != nil {
		t.Fatalf("second answer by record: %v", err)
	}

	frames := link.take()
	if len(frames) != 1 {
		t.Fatalf("delivered %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.cmd != cmdCallFunc || f.id != 99 {
		t.Fatalf("frame = %+v", f)
	}
	ok, data, err := decodeResult(f.payload)
	if err != nil || !ok || string(data) != "result" {
		t.Fatalf("answer payload: ok=%v data=%q err=%v", ok, data, err)
	}
}

func TestCorrelatorAnswerUnknownNumber(t *testing.T) {
	co := newCorrelator()
	if err := co.answer(424242, true, "x"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestCorrelatorNonCallbackNotAnswerable(t *testing.T) {
	co := newCorrelator()
	num, rec := co.track(&Client{ID: 1, link: &fakeLink{}}, 1, 0, false)
	if rec != nil {
		t.Fatal("non-callback occurrence got a record")
	}
	if err := co.answer(num, true, "x"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
