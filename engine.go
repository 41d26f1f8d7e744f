package webwindow

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Engine is the explicitly constructed engine handle. All state — the
// session registry, bind table and call correlator — hangs off it; there is
// no process-global library state. Create one per process, hand windows out
// of it, and call Wait from the main goroutine.
type Engine struct {
	cfg    EngineConfig
	reg    *registry
	binds  *bindTable
	calls  *correlator
	tokens *tokenStore

	connTimeout atomic.Int64 // nanoseconds; adjustable via SetTimeout

	mu          sync.Mutex
	fileHandler FileHandler

	waitCh   chan struct{}
	waitOnce sync.Once
	closed   atomic.Bool
}

// New creates an engine. The configuration is captured at this point;
// process-wide toggles changed afterwards are not picked up.
func New(cfg EngineConfig) (*Engine, error) {
	cfg = cfg.withDefaults()
	tokens, err := openTokenStore(cfg.TokenStorePath)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}
	e := &Engine{
		cfg:    cfg,
		reg:    newRegistry(cfg.MaxWindows),
		binds:  newBindTable(),
		calls:  newCorrelator(),
		tokens: tokens,
		waitCh: make(chan struct{}),
	}
	e.connTimeout.Store(int64(cfg.ConnectTimeout))
	return e, nil
}

// NewWindow creates a window with the lowest free id (starting at 1).
func (e *Engine) NewWindow() (*Window, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	return e.reg.create(e, 0)
}

// NewWindowID creates a window with a caller-chosen id. The id must be
// inside the valid id space and not held by a live window.
func (e *Engine) NewWindowID(id int) (*Window, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if id == 0 {
		return nil, fmt.Errorf("window id 0: %w", ErrOutOfRange)
	}
	return e.reg.create(e, id)
}

// GetFreeID reports the lowest unused window id without reserving it.
func (e *Engine) GetFreeID() int {
	return e.reg.freeID()
}

// Window looks up a live window by id.
func (e *Engine) Window(id int) (*Window, bool) {
	return e.reg.get(id)
}

// SetFileHandler installs the process-wide custom content handler. It is
// consulted synchronously from the transport's request path before
// filesystem resolution; returning nil falls through.
func (e *Engine) SetFileHandler(h FileHandler) {
	e.mu.Lock()
	e.fileHandler = h
	e.mu.Unlock()
}

func (e *Engine) getFileHandler() FileHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fileHandler
}

// SetTimeout adjusts how long Show waits for the first client connection.
// Zero restores the default.
func (e *Engine) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultConnectTimeout
	}
	e.connTimeout.Store(int64(d))
}

func (e *Engine) connectTimeout() time.Duration {
	return time.Duration(e.connTimeout.Load())
}

// SetResponse answers the callback identified by an event number. This is
// the deferred-answer path for async-response mode; handlers normally use
// the Event Return* helpers or just return a value.
func (e *Engine) SetResponse(num uint32, value string) error {
	return e.calls.answer(num, true, value)
}

// Wait parks the calling goroutine until every window that was created has
// been destroyed, or Exit is called. Intended to be called exactly once,
// from the host application's main goroutine.
func (e *Engine) Wait() {
	<-e.waitCh
}

// Exit closes all windows and releases Wait. Safe to call from any handler
// or goroutine; subsequent calls are no-ops.
func (e *Engine) Exit() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	for _, w := range e.reg.all() {
		w.Close()
	}
	e.release()
}

// Clean shuts the engine down completely: Exit, destroy every window and
// close the token store. The engine is unusable afterwards.
func (e *Engine) Clean() {
	e.Exit()
	for _, w := range e.reg.all() {
		w.Destroy()
	}
	if e.tokens != nil {
		_ = e.tokens.Close()
	}
}

// IsRunning reports whether the engine still has live windows and has not
// been shut down.
func (e *Engine) IsRunning() bool {
	if e.closed.Load() {
		return false
	}
	return len(e.reg.all()) > 0
}

func (e *Engine) release() {
	e.waitOnce.Do(func() { close(e.waitCh) })
}

// windowRemoved is called by Destroy after deregistration; the last window
// going away releases Wait.
func (e *Engine) windowRemoved(idle bool) {
	if idle {
		e.release()
	}
}
