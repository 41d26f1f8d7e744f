package webwindow

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestResolveContent(t *testing.T) {
	cases := []struct {
		in   string
		kind contentKind
	}{
		{"", contentNone},
		{"<html><body>hi</body></html>", contentHTML},
		{"  <div>leading space</div>", contentHTML},
		{"http://example.test/app", contentURL},
		{"https://example.test/app", contentURL},
		{"index.html", contentFile},
		{"/srv/app/index.html", contentFile},
	}
	for _, c := range cases {
		if got := resolveContent(c.in); got.kind != c.kind {
			t.Errorf("resolveContent(%q).kind = %d, want %d", c.in, got.kind, c.kind)
		}
	}
}

func TestSecurePathNeverEscapesBase(t *testing.T) {
	base := t.TempDir()
	for _, req := range []string{"/index.html", "/../../../etc/passwd", "/a/../../b", "/./x"} {
		full, ok := securePath(base, req)
		if !ok {
			continue
		}
		abs, _ := filepath.Abs(full)
		absBase, _ := filepath.Abs(base)
		if abs != absBase && !strings.HasPrefix(abs, absBase+string(filepath.Separator)) {
			t.Errorf("securePath(%q) escaped to %q", req, full)
		}
	}
}

func TestInjectBridge(t *testing.T) {
	out := string(injectBridge([]byte("<html><head><title>t</title></head><body>x</body></html>")))
	if !strings.Contains(out, `src="/webwindow.js"`) {
		t.Fatalf("bridge tag missing: %s", out)
	}
	if strings.Index(out, "/webwindow.js") > strings.Index(out, "</head>") {
		t.Fatal("bridge tag not inside head")
	}

	// A headless fragment still gets the tag.
	out = string(injectBridge([]byte("plain text, not even html")))
	if !strings.Contains(out, "/webwindow.js") {
		t.Fatal("bridge tag missing from fallback path")
	}
}

func TestServeInlineHTML(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	w, _ := e.NewWindow()
	url, err := w.StartServer("<html><head></head><body>hello</body></html>")
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(string(body), "hello") || !strings.Contains(string(body), "/webwindow.js") {
		t.Fatalf("body = %q", body)
	}
}

func TestServeRootFolder(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html><body>root</body></html>"), 0o644)
	os.WriteFile(filepath.Join(dir, "app.css"), []byte("body{}"), 0o644)

	e := newTestEngine(t, EngineConfig{})
	w, _ := e.NewWindow()
	if err := w.SetRootFolder(dir); err != nil {
		t.Fatalf("SetRootFolder: %v", err)
	}
	url, err := w.StartServer("")
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}

	resp, err := http.Get(url + "app.css")
	if err != nil {
		t.Fatalf("GET css: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "body{}" {
		t.Fatalf("css body = %q", body)
	}

	resp, err = http.Get(url + "missing.txt")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing file status = %d", resp.StatusCode)
	}
}

func TestCustomFileHandler(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	e.SetFileHandler(func(windowID int, path string) []byte {
		if path != "/custom" {
			return nil
		}
		return []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok")
	})

	w, _ := e.NewWindow()
	url, err := w.StartServer("<html><body>fallback</body></html>")
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}

	resp, err := http.Get(url + "custom")
	if err != nil {
		t.Fatalf("GET custom: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" || resp.Header.Get("Content-Type") != "text/plain" {
		t.Fatalf("body=%q ct=%q", body, resp.Header.Get("Content-Type"))
	}

	// nil from the handler falls through to normal resolution.
	resp, err = http.Get(url)
	if err != nil {
		t.Fatalf("GET root: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "fallback") {
		t.Fatalf("fallback body = %q", body)
	}
}

func TestCookieIssuedUnderCookieIdentification(t *testing.T) {
	e := newTestEngine(t, EngineConfig{CookieIdentification: true})
	w, _ := e.NewWindow()
	url, err := w.StartServer("<html><body>hi</body></html>")
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == tokenCookieName {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatal("no auth token cookie issued")
	}

	// A request already carrying the cookie gets no second one.
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: token})
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with cookie: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	for _, c := range resp.Cookies() {
		if c.Name == tokenCookieName {
			t.Fatal("token reissued to a client that already has one")
		}
	}
}

func TestBrotliEncodingNegotiated(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	w, _ := e.NewWindow()
	url, err := w.StartServer("<html><head></head><body>compressed</body></html>")
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Accept-Encoding", "br")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Encoding") != "br" {
		t.Fatalf("Content-Encoding = %q", resp.Header.Get("Content-Encoding"))
	}
	body, err := io.ReadAll(brotli.NewReader(resp.Body))
	if err != nil {
		t.Fatalf("brotli decode: %v", err)
	}
	if !strings.Contains(string(body), "compressed") {
		t.Fatalf("decoded body = %q", body)
	}
}
