package webwindow

import (
	"log"
	"sync"
	"sync/atomic"
)

// scriptResult is the terminal state of one pending call.
type scriptResult struct {
	data string
	err  error
}

// pendingCall correlates an outbound script request with its eventual
// response. The channel is buffered so resolution never blocks the
// transport read loop.
type pendingCall struct {
	id       uint32
	clientID uint64
	windowID int
	capacity int
	ch       chan scriptResult
}

// eventRecord keeps a callback event answerable after dispatch: it remembers
// which client asked and the wire correlation id to echo back. At most one
// answer is ever delivered.
type eventRecord struct {
	client   *Client
	windowID int
	wireID   uint32
	callback bool

	mu       sync.Mutex
	answered bool
}

// correlator owns all pending-call and callback-answer state. Resolution is
// keyed strictly by correlation number, never by arrival order, so it stays
// correct under out-of-order completions.
type correlator struct {
	mu        sync.Mutex
	calls     map[uint32]*pendingCall
	events    map[uint32]*eventRecord
	nextCall  atomic.Uint32
	nextEvent atomic.Uint32
}

func newCorrelator() *correlator {
	return &correlator{
		calls:  make(map[uint32]*pendingCall),
		events: make(map[uint32]*eventRecord),
	}
}

// issue allocates a correlation number and registers the pending call.
func (co *correlator) issue(clientID uint64, windowID int, capacity int) *pendingCall {
	p := &pendingCall{
		id:       co.nextCall.Add(1),
		clientID: clientID,
		windowID: windowID,
		capacity: capacity,
		ch:       make(chan scriptResult, 1),
	}
	co.mu.Lock()
	co.calls[p.id] = p
	co.mu.Unlock()
	return p
}

// resolve completes the pending call with the given correlation number.
// Payloads above the call's buffer capacity are truncated, mirroring the
// fixed-size response buffers of the native interface. Unknown numbers are
// dropped: late responses after a timeout are expected.
func (co *correlator) resolve(id uint32, ok bool, data []byte) {
	co.mu.Lock()
	p, found := co.calls[id]
	if found {
		delete(co.calls, id)
	}
	co.mu.Unlock()
	if !found {
		return
	}

	if p.capacity > 0 && len(data) > p.capacity {
		data = data[:p.capacity]
	}
	res := scriptResult{data: string(data)}
	if !ok {
		res.err = ErrScript
	}
	p.ch <- res
}

// abandon drops a pending call whose caller gave up (timeout path).
func (co *correlator) abandon(id uint32) {
	co.mu.Lock()
	delete(co.calls, id)
	co.mu.Unlock()
}

// failClient resolves every outstanding call against the client as an error
// and forgets its unanswered callback records.
func (co *correlator) failClient(clientID uint64, err error) {
	co.fail(func(p *pendingCall) bool { return p.clientID == clientID },
		func(r *eventRecord) bool { return r.client != nil && r.client.ID == clientID }, err)
}

// failWindow does the same for every client of a destroyed window, so
// pending calls resolve as errors instead of leaking forever.
func (co *correlator) failWindow(windowID int, err error) {
	co.fail(func(p *pendingCall) bool { return p.windowID == windowID },
		func(r *eventRecord) bool { return r.windowID == windowID }, err)
}

func (co *correlator) fail(callMatch func(*pendingCall) bool, recMatch func(*eventRecord) bool, err error) {
	co.mu.Lock()
	var failed []*pendingCall
	for id, p := range co.calls {
		if callMatch(p) {
			delete(co.calls, id)
			failed = append(failed, p)
		}
	}
	for num, r := range co.events {
		if recMatch(r) {
			delete(co.events, num)
		}
	}
	co.mu.Unlock()

	for _, p := range failed {
		p.ch <- scriptResult{err: err}
	}
}

// track assigns the process-unique event number for an inbound occurrence.
// Callback occurrences stay registered until answered; everything else just
// consumes a number.
func (co *correlator) track(c *Client, windowID int, wireID uint32, callback bool) (uint32, *eventRecord) {
	num := co.nextEvent.Add(1)
	if !callback {
		return num, nil
	}
	rec := &eventRecord{
		client:   c,
		windowID: windowID,
		wireID:   wireID,
		callback: true,
	}
	co.mu.Lock()
	co.events[num] = rec
	co.mu.Unlock()
	return num, rec
}

// answer delivers the response for an event number back to the originating
// client. A second answer for the same number is a warned no-op; an unknown
// number reports ErrInvalidArgument.
func (co *correlator) answer(num uint32, ok bool, data string) error {
	co.mu.Lock()
	rec, found := co.events[num]
	co.mu.Unlock()
	if !found {
		return ErrInvalidArgument
	}
	return co.answerRecord(num, rec, ok, data)
}

func (co *correlator) answerRecord(num uint32, rec *eventRecord, ok bool, data string) error {
	rec.mu.Lock()
	if rec.answered {
		rec.mu.Unlock()
		log.Printf("webwindow: event %d already answered, ignoring", num)
		return nil
	}
	rec.answered = true
	rec.mu.Unlock()

	co.mu.Lock()
	delete(co.events, num)
	co.mu.Unlock()

	f := frame{cmd: cmdCallFunc, id: rec.wireID, payload: encodeResult(ok, []byte(data))}
	if err := rec.client.link.deliver(encodeFrame(f)); err != nil {
		log.Printf("webwindow: delivering answer for event %d: %v", num, err)
		return err
	}
	return nil
}

// settled reports whether the record has already been answered.
func (r *eventRecord) settled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answered
}
