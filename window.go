package webwindow

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"
)

// Window is one logical application session group. It may have zero or more
// connected clients and outlives all of them: "closed" (clients gone, object
// retained) is distinct from "destroyed" (deregistered, resources released).
type Window struct {
	id  int
	eng *Engine

	mu         sync.Mutex
	clients    map[uint64]*Client
	waiters    []chan struct{}
	rootFolder string
	public     bool
	runtime    Runtime
	port       int
	blocking   *bool
	content    windowContent
	queue      chan dispatchJob
	done       chan struct{}
	srv        *windowServer
	monitor    chan struct{}
	destroyed  bool
}

func newWindow(eng *Engine, id int) *Window {
	return &Window{
		id:      id,
		eng:     eng,
		clients: make(map[uint64]*Client),
		done:    make(chan struct{}),
	}
}

// ID returns the window's registry id.
func (w *Window) ID() int { return w.id }

// Bind registers a handler for an element. The empty element is the
// wildcard catching every event on this window. Rebinding the same element
// replaces the previous handler. Returns the process-wide unique bind id.
func (w *Window) Bind(element string, h Handler) uint64 {
	return w.eng.binds.bind(w.id, element, h)
}

// Show resolves content (inline markup, a local file path, or a URL),
// ensures the window's server is running, and opens the serving URL through
// the configured launcher. With WaitForConnection set it blocks until the
// first client attaches.
func (w *Window) Show(content string) error {
	return w.ShowBrowser(content, AnyBrowser)
}

// ShowBrowser is Show with an explicit browser choice for the launcher.
func (w *Window) ShowBrowser(content string, browser Browser) error {
	url, err := w.StartServer(content)
	if err != nil {
		return err
	}

	if launcher := w.eng.cfg.Launcher; launcher != nil && browser != NoBrowser {
		if err := launcher.Open(url, browser); err != nil {
			return fmt.Errorf("opening browser: %w", err)
		}
	}

	// Already-connected clients get refreshed instead of reopened. In
	// multi-client mode this refreshes every client.
	w.Navigate(url)

	if w.eng.cfg.WaitForConnection && !w.IsShown() {
		if !w.waitForClient(w.eng.connectTimeout()) {
			return fmt.Errorf("waiting for client on window %d: %w", w.id, ErrTimeout)
		}
	}
	return nil
}

// StartServer resolves content and starts the window's server without
// opening any UI. Returns the serving URL.
func (w *Window) StartServer(content string) (string, error) {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return "", fmt.Errorf("window %d: %w", w.id, ErrUnknownWindow)
	}
	w.content = resolveContent(content)
	w.mu.Unlock()

	url, err := w.ensureServer()
	if err != nil {
		return "", err
	}
	w.startMonitor()
	return url, nil
}

// Close disconnects every client but keeps the window registered. Clients
// are told to close first, so the UI can shut down cleanly.
func (w *Window) Close() {
	for _, c := range w.snapshot() {
		_ = c.link.deliver(encodeFrame(frame{cmd: cmdClose}))
		c.link.kill()
	}
}

// Destroy closes the window and releases everything it owns: bind entries,
// pending calls, the monitor and the server. Destroying an already-destroyed
// window is a no-op.
func (w *Window) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	monitor := w.monitor
	w.monitor = nil
	srv := w.srv
	w.srv = nil
	// Stops the serialized worker and unblocks any enqueue waiting on a
	// full queue.
	close(w.done)
	w.mu.Unlock()

	w.Close()
	w.eng.calls.failWindow(w.id, ErrDisconnected)
	w.eng.binds.dropWindow(w.id)
	if monitor != nil {
		close(monitor)
	}
	if srv != nil {
		srv.shutdown()
	}
	w.eng.windowRemoved(w.eng.reg.remove(w.id))
}

// Script runs JavaScript on the window's client and waits for the response.
// timeout 0 waits forever; bufSize 0 uses the engine default. Responses
// larger than bufSize are truncated — size the buffer for the expected
// payload. In multi-client mode the window-level call is unsupported; use
// ScriptClient with the client id from an event.
func (w *Window) Script(code string, timeout time.Duration, bufSize int) (string, error) {
	c, err := w.soleClient()
	if err != nil {
		return "", err
	}
	return w.scriptTo(c, code, timeout, bufSize)
}

// ScriptClient runs JavaScript on one specific client.
func (w *Window) ScriptClient(clientID uint64, code string, timeout time.Duration, bufSize int) (string, error) {
	c, ok := w.client(clientID)
	if !ok {
		return "", fmt.Errorf("client %d: %w", clientID, ErrNoClient)
	}
	return w.scriptTo(c, code, timeout, bufSize)
}

func (w *Window) scriptTo(c *Client, code string, timeout time.Duration, bufSize int) (string, error) {
	if bufSize <= 0 {
		bufSize = w.eng.cfg.ResponseBufferBytes
	}
	p := w.eng.calls.issue(c.ID, w.id, bufSize)
	f := frame{cmd: cmdScript, id: p.id, payload: []byte(code)}
	if err := c.link.deliver(encodeFrame(f)); err != nil {
		w.eng.calls.abandon(p.id)
		return "", fmt.Errorf("sending script: %w", ErrDisconnected)
	}

	if timeout <= 0 {
		res := <-p.ch
		return res.data, res.err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-p.ch:
		return res.data, res.err
	case <-timer.C:
		w.eng.calls.abandon(p.id)
		return "", ErrTimeout
	}
}

// Run executes JavaScript on every client with no response expected.
func (w *Window) Run(code string) {
	w.broadcast(frame{cmd: cmdScriptFast, payload: []byte(code)})
}

// SendRaw delivers a binary payload to the named receiving function on
// every client. Fire-and-forget: no acknowledgement, no timeout. An empty
// payload is rejected before any transport activity.
func (w *Window) SendRaw(fn string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("raw payload for %q is empty: %w", fn, ErrInvalidArgument)
	}
	w.broadcast(frame{cmd: cmdSendRaw, payload: encodeRawPayload(fn, data)})
	return nil
}

// SendRawClient delivers a binary payload to one specific client.
func (w *Window) SendRawClient(clientID uint64, fn string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("raw payload for %q is empty: %w", fn, ErrInvalidArgument)
	}
	c, ok := w.client(clientID)
	if !ok {
		return fmt.Errorf("client %d: %w", clientID, ErrNoClient)
	}
	return c.link.deliver(encodeFrame(frame{cmd: cmdSendRaw, payload: encodeRawPayload(fn, data)}))
}

// Navigate points every client at a URL.
func (w *Window) Navigate(url string) {
	w.broadcast(frame{cmd: cmdNavigation, payload: []byte(url)})
}

// GetURL returns the window's serving URL, or "" before StartServer/Show.
func (w *Window) GetURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.srv == nil {
		return ""
	}
	return w.srv.url
}

// IsShown reports whether any client is connected.
func (w *Window) IsShown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients) > 0
}

// SetRootFolder sets the web-server root folder for this window.
func (w *Window) SetRootFolder(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("root folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root folder %q is not a directory: %w", path, ErrInvalidArgument)
	}
	w.mu.Lock()
	w.rootFolder = path
	w.mu.Unlock()
	w.startMonitor()
	return nil
}

// SetPublic allows the window's server to be reached from a public network.
// Takes effect on the next StartServer/Show.
func (w *Window) SetPublic(public bool) {
	w.mu.Lock()
	w.public = public
	w.mu.Unlock()
}

// SetRuntime chooses how .js/.ts files under the root folder are executed
// when served.
func (w *Window) SetRuntime(rt Runtime) {
	w.mu.Lock()
	w.runtime = rt
	w.mu.Unlock()
}

// SetPort pins the server to a network port. Must be called before the
// server starts.
func (w *Window) SetPort(port int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.srv != nil {
		return fmt.Errorf("window %d server already running: %w", w.id, ErrInvalidArgument)
	}
	w.port = port
	return nil
}

// SetEventBlocking overrides the process-wide handler execution mode for
// this window: true serializes handlers in arrival order, false runs them
// concurrently. A serialized window that falls behind applies backpressure
// to its clients' read loops instead of dropping events.
func (w *Window) SetEventBlocking(blocking bool) {
	w.mu.Lock()
	w.blocking = &blocking
	w.mu.Unlock()
}

func (w *Window) blockingMode() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.blocking != nil {
		return *w.blocking
	}
	return w.eng.cfg.EventBlocking
}

// attach adds a client. Single-client mode displaces any existing client:
// a browser refresh may open the new connection before the old one dies.
func (w *Window) attach(c *Client) error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return fmt.Errorf("window %d: %w", w.id, ErrUnknownWindow)
	}
	var displaced []*Client
	if !w.eng.cfg.MultiClient {
		for id, old := range w.clients {
			delete(w.clients, id)
			displaced = append(displaced, old)
		}
	}
	w.clients[c.ID] = c
	waiters := w.waiters
	w.waiters = nil
	w.mu.Unlock()

	for _, old := range displaced {
		old.link.kill()
		// The displaced connection can never answer again, so its pending
		// calls resolve as errors now rather than leaking. A cookie-identified
		// reconnect keeps the same client id; correlation state for that id
		// now belongs to the new connection and stays untouched.
		if old.ID != c.ID {
			w.eng.calls.failClient(old.ID, ErrDisconnected)
		}
	}
	for _, ch := range waiters {
		close(ch)
	}
	return nil
}

// detach removes the client if it is still the registered one. Reports
// whether a removal happened, so a displaced client does not produce a
// second disconnect event.
func (w *Window) detach(c *Client) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.clients[c.ID]; ok && cur == c {
		delete(w.clients, c.ID)
		return true
	}
	return false
}

func (w *Window) client(id uint64) (*Client, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.clients[id]
	return c, ok
}

// soleClient returns the single attached client. Window-level script calls
// are single-client only.
func (w *Window) soleClient() (*Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.clients) == 0 {
		return nil, fmt.Errorf("window %d: %w", w.id, ErrNoClient)
	}
	if len(w.clients) > 1 {
		return nil, fmt.Errorf("window %d has %d clients: %w", w.id, len(w.clients), ErrMultiClient)
	}
	for _, c := range w.clients {
		return c, nil
	}
	return nil, ErrNoClient
}

func (w *Window) snapshot() []*Client {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Client, 0, len(w.clients))
	for _, c := range w.clients {
		out = append(out, c)
	}
	return out
}

func (w *Window) broadcast(f frame) {
	data := encodeFrame(f)
	for _, c := range w.snapshot() {
		if err := c.link.deliver(data); err != nil {
			log.Printf("webwindow: window %d broadcast to client %s: %v",
				w.id, strconv.FormatUint(c.ID, 10), err)
		}
	}
}

// waitForClient blocks until a client attaches or the timeout elapses.
func (w *Window) waitForClient(timeout time.Duration) bool {
	ch := make(chan struct{})
	w.mu.Lock()
	if len(w.clients) > 0 {
		w.mu.Unlock()
		return true
	}
	w.waiters = append(w.waiters, ch)
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
