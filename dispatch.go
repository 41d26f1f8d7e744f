package webwindow

import (
	"fmt"
	"log"
)

// dispatch is the single entry point for inbound occurrences. It enriches
// the occurrence into a canonical Event, resolves the handler (exact bind
// first, wildcard fallback) and hands it to the window's execution mode.
// It never blocks the caller: blocking mode enqueues, non-blocking mode
// spawns.
func (e *Engine) dispatch(w *Window, c *Client, t EventType, element string, wireID uint32, args []string) {
	num, rec := e.calls.track(c, w.id, wireID, t == EventCallback)

	b, ok := e.binds.resolve(w.id, element)
	if !ok {
		// Unbound elements are expected (passive navigation, unhandled
		// clicks). A callback must still be answered or the client would
		// wait forever.
		if rec != nil {
			_ = e.calls.answerRecord(num, rec, false, "no handler bound")
		}
		return
	}

	ev := &Event{
		Window:       w,
		Type:         t,
		Element:      element,
		Number:       num,
		BindID:       b.id,
		ClientID:     c.ID,
		ConnectionID: c.ConnectionID,
		Cookies:      c.Cookies,
		args:         args,
	}

	job := dispatchJob{binding: b, event: ev, record: rec}
	if w.blockingMode() {
		w.enqueue(job)
		return
	}
	go e.runHandler(job)
}

type dispatchJob struct {
	binding *binding
	event   *Event
	record  *eventRecord
}

// runHandler invokes one handler with panic isolation. A panic is logged
// and converted into an error answer for any associated callback, so the
// dispatcher survives and the client is not left hanging.
func (e *Engine) runHandler(job dispatchJob) {
	ev, rec := job.event, job.record

	defer func() {
		if r := recover(); r != nil {
			log.Printf("webwindow: handler panic on window %d element %q: %v", ev.Window.id, ev.Element, r)
			if rec != nil && !rec.settled() {
				_ = e.calls.answerRecord(ev.Number, rec, false, fmt.Sprintf("handler failed: %v", r))
			}
		}
	}()

	ret := job.binding.handler(ev)

	if rec == nil {
		return
	}
	if e.cfg.AsyncResponse {
		// The handler may answer later via the Return* operations; only a
		// non-nil return settles the callback now.
		if ret != nil && !rec.settled() {
			_ = e.calls.answerRecord(ev.Number, rec, true, fmt.Sprint(ret))
		}
		return
	}
	if rec.settled() {
		return
	}
	data := ""
	if ret != nil {
		data = fmt.Sprint(ret)
	}
	_ = e.calls.answerRecord(ev.Number, rec, true, data)
}

// enqueue hands a job to the window's serialized worker, starting it on
// first use. Events for a blocking window dispatch strictly in arrival
// order and never overlap. A full queue blocks the sender until the worker
// catches up; the per-client read loop absorbs the backpressure.
func (w *Window) enqueue(job dispatchJob) {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	if w.queue == nil {
		w.queue = make(chan dispatchJob, defaultQueueDepth)
		go w.eng.serveQueue(w.queue, w.done)
	}
	q, done := w.queue, w.done
	w.mu.Unlock()

	select {
	case q <- job:
	case <-done:
	}
}

func (e *Engine) serveQueue(q <-chan dispatchJob, done <-chan struct{}) {
	for {
		select {
		case job := <-q:
			e.runHandler(job)
		case <-done:
			return
		}
	}
}
