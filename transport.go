package webwindow

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// maxFrameBytes is the maximum size of a single WebSocket message (64 KB).
const maxFrameBytes = 64 * 1024

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendDepth    = 64
)

// windowServer is one window's HTTP+WebSocket endpoint.
type windowServer struct {
	ln  net.Listener
	srv *http.Server
	url string
}

func (s *windowServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

// ensureServer starts the window's server on first use and returns the
// serving URL.
func (w *Window) ensureServer() (string, error) {
	w.mu.Lock()
	if w.srv != nil {
		url := w.srv.url
		w.mu.Unlock()
		return url, nil
	}
	host := w.eng.cfg.Host
	if w.public {
		host = "0.0.0.0"
	}
	port := w.port
	w.mu.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return "", fmt.Errorf("listening for window %d: %w", w.id, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webwindow.js", w.serveBridge)
	mux.HandleFunc("/ws", w.handleWS)
	mux.HandleFunc("/", w.serveContent)

	srv := &http.Server{Handler: mux}
	addr := ln.Addr().(*net.TCPAddr)
	urlHost := host
	if host == "0.0.0.0" {
		urlHost = "127.0.0.1"
	}
	ws := &windowServer{
		ln:  ln,
		srv: srv,
		url: fmt.Sprintf("http://%s:%d/", urlHost, addr.Port),
	}

	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		_ = ln.Close()
		return "", fmt.Errorf("window %d: %w", w.id, ErrUnknownWindow)
	}
	if w.srv != nil {
		// Lost the race to another StartServer call.
		url := w.srv.url
		w.mu.Unlock()
		_ = ln.Close()
		return url, nil
	}
	w.srv = ws
	w.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("webwindow: window %d server: %v", w.id, err)
		}
	}()
	return ws.url, nil
}

// handleWS upgrades the connection, registers the client and pumps frames
// until the connection dies. The engine side of every inbound frame is
// non-blocking: dispatch hands work off per the window's execution mode.
func (w *Window) handleWS(rw http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	w.mu.Lock()
	if w.public {
		opts.OriginPatterns = []string{"*"}
	}
	w.mu.Unlock()

	conn, err := websocket.Accept(rw, r, opts)
	if err != nil {
		log.Printf("webwindow: window %d accept: %v", w.id, err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	link := newWSLink(conn)
	c, err := w.eng.registerClient(w.id, link, r.Header.Get("Cookie"))
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "unknown window")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-link.done
		cancel()
	}()
	go link.writeLoop(ctx)

	w.eng.dispatch(w, c, EventConnected, "", 0, nil)
	w.readLoop(ctx, c, conn)

	link.kill()
	w.eng.unregisterClient(c)
}

func (w *Window) readLoop(ctx context.Context, c *Client, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		f, err := decodeFrame(data)
		if err != nil {
			log.Printf("webwindow: window %d client %d: %v", w.id, c.ID, err)
			continue
		}

		switch f.cmd {
		case cmdScript:
			ok, payload, err := decodeResult(f.payload)
			if err != nil {
				log.Printf("webwindow: window %d script response %d: %v", w.id, f.id, err)
				continue
			}
			w.eng.calls.resolve(f.id, ok, payload)
		case cmdCallFunc:
			element, args := decodeCall(f.payload)
			w.eng.dispatch(w, c, EventCallback, element, f.id, args)
		case cmdClick:
			w.eng.dispatch(w, c, EventMouseClick, string(f.payload), 0, nil)
		case cmdNavigation:
			w.eng.dispatch(w, c, EventNavigation, "", 0, []string{string(f.payload)})
		default:
			log.Printf("webwindow: window %d client %d: unexpected command 0x%02X", w.id, c.ID, byte(f.cmd))
		}
	}
}

// wsLink is the transport-side clientLink. A single writer goroutine drains
// the send queue, so frames to one client go out in call order.
type wsLink struct {
	conn  *websocket.Conn
	sendq chan []byte
	done  chan struct{}
	once  sync.Once
}

func newWSLink(conn *websocket.Conn) *wsLink {
	return &wsLink{
		conn:  conn,
		sendq: make(chan []byte, wsSendDepth),
		done:  make(chan struct{}),
	}
}

func (l *wsLink) deliver(data []byte) error {
	select {
	case l.sendq <- data:
		return nil
	case <-l.done:
		return ErrDisconnected
	}
}

func (l *wsLink) kill() {
	l.once.Do(func() { close(l.done) })
}

func (l *wsLink) writeLoop(ctx context.Context) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case data := <-l.sendq:
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := l.conn.Write(wctx, websocket.MessageBinary, data)
			cancel()
			if err != nil {
				l.kill()
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := l.conn.Ping(pctx)
			cancel()
			if err != nil {
				l.kill()
				return
			}
		case <-l.done:
			_ = l.conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
