package webwindow

import (
	"bytes"
	"compress/gzip"
	"io/fs"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const tokenCookieName = "webwindow_token"

type contentKind int

const (
	contentNone contentKind = iota
	contentHTML             // inline markup
	contentFile             // local file path
	contentURL              // remote URL, clients are redirected
)

type windowContent struct {
	kind  contentKind
	value string
}

// resolveContent classifies Show/StartServer content: inline markup starts
// with '<', URLs carry a scheme, everything else is a file path.
func resolveContent(content string) windowContent {
	trimmed := strings.TrimSpace(content)
	switch {
	case trimmed == "":
		return windowContent{kind: contentNone}
	case strings.HasPrefix(trimmed, "<"):
		return windowContent{kind: contentHTML, value: content}
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		return windowContent{kind: contentURL, value: trimmed}
	default:
		return windowContent{kind: contentFile, value: content}
	}
}

// serveContent resolves a request against, in order: the process-wide
// custom file handler, the window's inline/URL content, then the
// filesystem under the window's base folder.
func (w *Window) serveContent(rw http.ResponseWriter, r *http.Request) {
	if h := w.eng.getFileHandler(); h != nil {
		if resp := h(w.id, r.URL.Path); resp != nil {
			writeRawResponse(rw, resp)
			return
		}
	}

	w.mu.Lock()
	content := w.content
	root := w.rootFolder
	rt := w.runtime
	w.mu.Unlock()

	if r.URL.Path == "/" {
		switch content.kind {
		case contentHTML:
			w.writeHTML(rw, r, []byte(content.value))
			return
		case contentURL:
			http.Redirect(rw, r, content.value, http.StatusFound)
			return
		case contentFile:
			w.serveFile(rw, r, content.value, rt)
			return
		default:
			http.NotFound(rw, r)
			return
		}
	}

	base := w.baseFolder(root, content)
	if base == "" {
		http.NotFound(rw, r)
		return
	}
	path, ok := securePath(base, r.URL.Path)
	if !ok {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	w.serveFile(rw, r, path, rt)
}

// baseFolder is the filesystem root for non-"/" requests: the explicit root
// folder if set, the content file's directory otherwise.
func (w *Window) baseFolder(root string, content windowContent) string {
	if root != "" {
		return root
	}
	if content.kind == contentFile {
		return filepath.Dir(content.value)
	}
	return ""
}

// securePath resolves a request path under base, rejecting traversal out of
// the served tree.
func securePath(base, reqPath string) (string, bool) {
	cleaned := filepath.Clean("/" + reqPath)
	full := filepath.Join(base, cleaned)
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", false
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", false
	}
	if absFull != absBase && !strings.HasPrefix(absFull, absBase+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func (w *Window) serveFile(rw http.ResponseWriter, r *http.Request, path string, rt Runtime) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "index.html")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(rw, r)
			return
		}
		http.Error(rw, "read error", http.StatusInternalServerError)
		return
	}

	ext := strings.ToLower(filepath.Ext(path))
	if rt != RuntimeNone && (ext == ".js" || ext == ".ts") {
		out, err := runScriptFile(rt, path)
		if err != nil {
			log.Printf("webwindow: window %d runtime %s on %s: %v", w.id, rt, path, err)
			http.Error(rw, "script runtime error", http.StatusInternalServerError)
			return
		}
		writeCompressed(rw, r, out, runtimeContentType(out))
		return
	}

	if ext == ".html" || ext == ".htm" {
		w.writeHTML(rw, r, data)
		return
	}

	ctype := mime.TypeByExtension(ext)
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if compressible(ctype) {
		writeCompressed(rw, r, data, ctype)
		return
	}
	rw.Header().Set("Content-Type", ctype)
	_, _ = rw.Write(data)
}

// writeHTML serves an HTML document with the client bridge injected and,
// under cookie identification, an auth-token cookie.
func (w *Window) writeHTML(rw http.ResponseWriter, r *http.Request, doc []byte) {
	if w.eng.cfg.CookieIdentification {
		if _, err := r.Cookie(tokenCookieName); err != nil {
			http.SetCookie(rw, &http.Cookie{
				Name:     tokenCookieName,
				Value:    w.eng.tokens.issue(),
				Path:     "/",
				HttpOnly: true,
			})
		}
	}
	writeCompressed(rw, r, injectBridge(doc), "text/html; charset=utf-8")
}

// serveBridge serves the embedded client bridge script.
func (w *Window) serveBridge(rw http.ResponseWriter, r *http.Request) {
	writeCompressed(rw, r, bridgeScript(), "application/javascript; charset=utf-8")
}

// injectBridge parses the document and appends a <script src="/webwindow.js">
// node to <head> (or <body> when there is no head). On a parse failure the
// tag is appended textually rather than dropping the document.
func injectBridge(doc []byte) []byte {
	const tag = `<script src="/webwindow.js"></script>`

	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return append(doc, []byte(tag)...)
	}

	target := findElement(root, atom.Head)
	if target == nil {
		target = findElement(root, atom.Body)
	}
	if target == nil {
		return append(doc, []byte(tag)...)
	}

	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr:     []html.Attribute{{Key: "src", Val: "/webwindow.js"}},
	}
	target.AppendChild(script)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return append(doc, []byte(tag)...)
	}
	return buf.Bytes()
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func compressible(ctype string) bool {
	switch {
	case strings.HasPrefix(ctype, "text/"),
		strings.Contains(ctype, "javascript"),
		strings.Contains(ctype, "json"),
		strings.Contains(ctype, "svg"),
		strings.Contains(ctype, "xml"):
		return true
	}
	return false
}

// writeCompressed writes the body brotli- or gzip-encoded when the client
// accepts it, identity otherwise.
func writeCompressed(rw http.ResponseWriter, r *http.Request, data []byte, ctype string) {
	rw.Header().Set("Content-Type", ctype)
	accept := r.Header.Get("Accept-Encoding")

	switch {
	case strings.Contains(accept, "br"):
		rw.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(rw)
		_, _ = bw.Write(data)
		_ = bw.Close()
	case strings.Contains(accept, "gzip"):
		rw.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(rw)
		_, _ = gw.Write(data)
		_ = gw.Close()
	default:
		_, _ = rw.Write(data)
	}
}

// writeRawResponse hands a custom handler's complete HTTP response bytes to
// the client verbatim via connection hijack.
func writeRawResponse(rw http.ResponseWriter, resp []byte) {
	hj, ok := rw.(http.Hijacker)
	if !ok {
		// Fall back to a plain body when hijacking is unavailable (tests).
		_, _ = rw.Write(resp)
		return
	}
	conn, buf, err := hj.Hijack()
	if err != nil {
		log.Printf("webwindow: hijacking for custom response: %v", err)
		return
	}
	defer conn.Close()
	_, _ = buf.Write(resp)
	_ = buf.Flush()
}

// startMonitor polls the window's base folder and refreshes clients when
// anything under it changes. Idempotent; stops when the window is destroyed.
func (w *Window) startMonitor() {
	if !w.eng.cfg.FolderMonitor {
		return
	}
	w.mu.Lock()
	base := w.baseFolder(w.rootFolder, w.content)
	if base == "" || w.monitor != nil || w.destroyed {
		w.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	w.monitor = stop
	w.mu.Unlock()

	go w.monitorFolder(base, stop)
}

func (w *Window) monitorFolder(base string, stop <-chan struct{}) {
	last := folderSignature(base)
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sig := folderSignature(base)
			if sig != last {
				last = sig
				w.Navigate(w.GetURL())
			}
		}
	}
}

// folderSignature condenses the tree's names, sizes and mtimes into a
// comparable string.
func folderSignature(base string) string {
	var b strings.Builder
	_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		b.WriteString(path)
		b.WriteByte('|')
		b.WriteString(info.ModTime().String())
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(info.Size(), 10))
		b.WriteByte('\n')
		return nil
	})
	return b.String()
}
