package webwindow

import (
	"log"
	"sync"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// bridgeJS is the client side of the wire protocol: it opens the WebSocket,
// evaluates script frames, reports clicks/navigation, exposes
// webwindow.call() for bound functions and routes raw payloads to named
// receiver functions. The frame layout must match protocol.go.
const bridgeJS = `
(function() {

var SIG = 0xDD;
var CMD_SCRIPT = 0xFE, CMD_SCRIPT_FAST = 0xFD, CMD_CLICK = 0xFC,
	CMD_NAV = 0xFB, CMD_CLOSE = 0xFA, CMD_CALL = 0xF9, CMD_RAW = 0xF8;

var enc = new TextEncoder();
var dec = new TextDecoder();
var ws = null;
var nextCall = 1;
var pending = {};
var closing = false;

function frame(cmd, id, payload) {
	var body = payload instanceof Uint8Array ? payload : enc.encode(payload || '');
	var buf = new Uint8Array(6 + body.length);
	buf[0] = SIG;
	buf[1] = cmd;
	new DataView(buf.buffer).setUint32(2, id >>> 0, false);
	buf.set(body, 6);
	return buf;
}

function send(cmd, id, payload) {
	if (ws && ws.readyState === 1) ws.send(frame(cmd, id, payload));
}

function result(ok, data) {
	var body = enc.encode(String(data === undefined ? '' : data));
	var buf = new Uint8Array(1 + body.length);
	buf[0] = ok ? 1 : 0;
	buf.set(body, 1);
	return buf;
}

function onFrame(buf) {
	var u8 = new Uint8Array(buf);
	if (u8.length < 6 || u8[0] !== SIG) return;
	var cmd = u8[1];
	var id = new DataView(buf).getUint32(2, false);
	var payload = u8.subarray(6);

	if (cmd === CMD_SCRIPT) {
		var out, ok = true;
		try {
			out = eval(dec.decode(payload));
		} catch (err) {
			ok = false;
			out = String(err);
		}
		send(CMD_SCRIPT, id, result(ok, out));
	} else if (cmd === CMD_SCRIPT_FAST) {
		try { eval(dec.decode(payload)); } catch (err) {}
	} else if (cmd === CMD_NAV) {
		closing = true;
		location.href = dec.decode(payload);
	} else if (cmd === CMD_CLOSE) {
		closing = true;
		ws.close();
		window.close();
	} else if (cmd === CMD_CALL) {
		var p = pending[id];
		if (p) {
			delete pending[id];
			if (payload[0] === 1) p.resolve(dec.decode(payload.subarray(1)));
			else p.reject(new Error(dec.decode(payload.subarray(1))));
		}
	} else if (cmd === CMD_RAW) {
		var sep = payload.indexOf(0);
		if (sep < 0) return;
		var fn = window[dec.decode(payload.subarray(0, sep))];
		if (typeof fn === 'function') fn(payload.slice(sep + 1).buffer);
	}
}

function connect() {
	var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
	ws = new WebSocket(proto + location.host + '/ws');
	ws.binaryType = 'arraybuffer';
	ws.onmessage = function(ev) { onFrame(ev.data); };
	ws.onclose = function() {
		for (var id in pending) pending[id].reject(new Error('disconnected'));
		pending = {};
		if (!closing) setTimeout(connect, 500);
	};
}

document.addEventListener('click', function(ev) {
	var el = ev.target.closest('[id]');
	if (el && el.id) send(CMD_CLICK, 0, el.id);
	var a = ev.target.closest('a[href]');
	if (a) send(CMD_NAV, 0, a.href);
}, true);

window.webwindow = {
	call: function(element) {
		var args = Array.prototype.slice.call(arguments, 1).map(String);
		var id = nextCall++;
		var parts = [element].concat(args);
		var bufs = parts.map(function(p) { return enc.encode(p); });
		var total = bufs.reduce(function(n, b) { return n + b.length; }, 0) + bufs.length - 1;
		var body = new Uint8Array(total);
		var off = 0;
		for (var i = 0; i < bufs.length; i++) {
			if (i > 0) body[off++] = 0;
			body.set(bufs[i], off);
			off += bufs[i].length;
		}
		return new Promise(function(resolve, reject) {
			pending[id] = { resolve: resolve, reject: reject };
			send(CMD_CALL, id, body);
		});
	}
};

connect();

})();
`

var (
	bridgeOnce sync.Once
	bridgeMin  []byte
)

// bridgeScript returns the bridge, minified once with esbuild. On a minify
// error the unminified source is served instead.
func bridgeScript() []byte {
	bridgeOnce.Do(func() {
		res := esbuild.Transform(bridgeJS, esbuild.TransformOptions{
			MinifyWhitespace:  true,
			MinifyIdentifiers: true,
			MinifySyntax:      true,
			Target:            esbuild.ES2017,
		})
		if len(res.Errors) > 0 {
			log.Printf("webwindow: minifying bridge script: %v", res.Errors[0].Text)
			bridgeMin = []byte(bridgeJS)
			return
		}
		bridgeMin = res.Code
	})
	return bridgeMin
}
