package webwindow

import "time"

// Default limits. The id space mirrors the fixed table size of the reference
// engine: ids 1..255 are valid, 0 means "allocate for me".
const (
	defaultMaxWindows     = 255
	defaultConnectTimeout = 30 * time.Second
	defaultBufferBytes    = 8 * 1024
	defaultQueueDepth     = 1024
	monitorInterval       = 500 * time.Millisecond
)

// Browser identifies a web browser family for the launcher collaborator.
type Browser int

const (
	NoBrowser Browser = iota
	AnyBrowser
	Chrome
	Firefox
	Edge
	Safari
	Chromium
	Opera
	Brave
	Vivaldi
	Epic
	Yandex
	ChromiumBased
)

// BrowserLauncher opens a serving URL in a browser. Browser discovery and
// process management live outside the engine; a nil launcher turns Show into
// StartServer (server-only, no UI).
type BrowserLauncher interface {
	Open(url string, browser Browser) error
}

// FileHandler serves custom content for a request path on a window's server.
// The returned bytes are a complete HTTP response (status line, headers,
// body) written to the client verbatim. Returning nil falls back to normal
// filesystem resolution.
type FileHandler func(windowID int, path string) []byte

// EngineConfig holds process-wide engine configuration. The zero value is
// usable; unset fields get defaults in New. Settings are read at window
// creation and connect time, so set them before creating windows.
type EngineConfig struct {
	Host string // listen host for window servers, default 127.0.0.1

	MaxWindows int // window id space upper bound, default 255

	// ConnectTimeout bounds how long Show waits for the first client when
	// WaitForConnection is set. Zero means the default (30s).
	ConnectTimeout time.Duration

	// ResponseBufferBytes is the default Script response capacity when the
	// caller passes 0. Defaults to 8 KiB.
	ResponseBufferBytes int

	// MultiClient allows more than one client to attach to the same window.
	MultiClient bool

	// CookieIdentification keys client identity on an auth-token cookie, so
	// a reconnecting browser keeps its client id.
	CookieIdentification bool

	// TokenStorePath persists auth tokens in a SQLite database so client
	// identity survives engine restarts. Empty means in-memory only.
	// Implies CookieIdentification when set.
	TokenStorePath string

	// AsyncResponse lets a callback handler defer its answer: the dispatcher
	// will not settle the callback when the handler returns, leaving the
	// event number answerable via the Return* operations.
	AsyncResponse bool

	// EventBlocking serializes handler execution per window (process-wide
	// default; Window.SetEventBlocking overrides per window).
	EventBlocking bool

	// WaitForConnection makes Show block until the first client connects
	// (or ConnectTimeout elapses).
	WaitForConnection bool

	// FolderMonitor refreshes connected clients when a file under the
	// window's root folder changes.
	FolderMonitor bool

	// Launcher opens URLs in a browser. Nil means server-only operation.
	Launcher BrowserLauncher
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.MaxWindows <= 0 {
		c.MaxWindows = defaultMaxWindows
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ResponseBufferBytes <= 0 {
		c.ResponseBufferBytes = defaultBufferBytes
	}
	if c.TokenStorePath != "" {
		c.CookieIdentification = true
	}
	return c
}
