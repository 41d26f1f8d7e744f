package webwindow

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// clientLink delivers encoded frames to one connected client in call order.
// The transport owns the real implementation; tests substitute in-memory ones.
type clientLink interface {
	deliver(data []byte) error
	kill()
}

// Client is one physical browser connection to a window. The client id is
// process-unique and, with cookie identification, stable across reconnects;
// the connection id changes on every connect.
type Client struct {
	ID           uint64
	ConnectionID string
	Token        string
	Cookies      string
	WindowID     int

	link clientLink
}

// registry tracks live windows and allocates window and client identities.
// A destroyed window's id is retired: automatic allocation never hands it
// out again, only explicit re-creation with that id brings it back.
type registry struct {
	mu         sync.Mutex
	windows    map[int]*Window
	retired    map[int]bool
	maxWindows int
	createdAny bool

	nextClient atomic.Uint64
}

func newRegistry(maxWindows int) *registry {
	return &registry{
		windows:    make(map[int]*Window),
		retired:    make(map[int]bool),
		maxWindows: maxWindows,
	}
}

// create registers a new window. explicit == 0 allocates the lowest unused
// id starting from 1; otherwise the id must be free and inside the id space.
func (r *registry) create(eng *Engine, explicit int) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := explicit
	switch {
	case explicit == 0:
		id = r.lowestFreeLocked()
		if id == 0 {
			return nil, fmt.Errorf("creating window: %w", ErrOutOfRange)
		}
	case explicit < 0 || explicit > r.maxWindows:
		return nil, fmt.Errorf("window id %d: %w", explicit, ErrOutOfRange)
	default:
		if _, ok := r.windows[explicit]; ok {
			return nil, fmt.Errorf("window id %d: %w", explicit, ErrDuplicateID)
		}
		// Explicit re-creation is the one way a destroyed id comes back.
		delete(r.retired, explicit)
	}

	w := newWindow(eng, id)
	r.windows[id] = w
	r.createdAny = true
	return w, nil
}

func (r *registry) lowestFreeLocked() int {
	for id := 1; id <= r.maxWindows; id++ {
		if _, ok := r.windows[id]; ok {
			continue
		}
		if r.retired[id] {
			continue
		}
		return id
	}
	return 0
}

// freeID reports the lowest unused window id without reserving it.
func (r *registry) freeID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lowestFreeLocked()
}

func (r *registry) get(id int) (*Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	return w, ok
}

// remove drops the window from the table and retires its id. Reports whether
// the registry had ever held a window and is now empty, which is the Wait
// release condition.
func (r *registry) remove(id int) (idle bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[id]; ok {
		delete(r.windows, id)
		r.retired[id] = true
	}
	return r.createdAny && len(r.windows) == 0
}

func (r *registry) all() []*Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Window, 0, len(r.windows))
	for _, w := range r.windows {
		out = append(out, w)
	}
	return out
}

// registerClient attaches a transport connection to a window. An unknown
// window id is logged and dropped, never raised: connects racing a destroy
// are expected.
func (e *Engine) registerClient(windowID int, link clientLink, cookies string) (*Client, error) {
	w, ok := e.reg.get(windowID)
	if !ok {
		log.Printf("webwindow: dropping connect for unknown window %d", windowID)
		return nil, fmt.Errorf("window %d: %w", windowID, ErrUnknownWindow)
	}

	token := cookieValue(cookies, tokenCookieName)
	var id uint64
	if e.cfg.CookieIdentification && token != "" {
		if known, ok := e.tokens.clientID(token); ok {
			id = known
		}
	}
	if id == 0 {
		id = e.reg.nextClient.Add(1)
		if token == "" {
			token = uuid.NewString()
		}
		if e.cfg.CookieIdentification {
			e.tokens.remember(token, id)
		}
	}

	c := &Client{
		ID:           id,
		ConnectionID: uuid.NewString(),
		Token:        token,
		Cookies:      cookies,
		WindowID:     windowID,
	}
	c.link = link

	if err := w.attach(c); err != nil {
		return nil, err
	}
	return c, nil
}

// unregisterClient detaches a client, fails its outstanding calls and drops
// its unanswered callback records, then dispatches the disconnect event.
func (e *Engine) unregisterClient(c *Client) {
	w, ok := e.reg.get(c.WindowID)
	if !ok {
		return
	}
	if !w.detach(c) {
		return
	}
	e.calls.failClient(c.ID, ErrDisconnected)
	e.dispatch(w, c, EventDisconnected, "", 0, nil)
}
