package webwindow

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	in := frame{cmd: cmdScript, id: 0xDEADBEEF, payload: []byte("document.title")}
	out, err := decodeFrame(encodeFrame(in))
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if out.cmd != in.cmd || out.id != in.id || !bytes.Equal(out.payload, in.payload) {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	if _, err := decodeFrame([]byte{frameSignature, 0xFE}); err == nil {
		t.Fatal("short frame accepted")
	}
	if _, err := decodeFrame([]byte{0x00, 0xFE, 0, 0, 0, 1}); err == nil {
		t.Fatal("bad signature accepted")
	}
}

func TestResultCodec(t *testing.T) {
	ok, data, err := decodeResult(encodeResult(true, []byte("42")))
	if err != nil || !ok || string(data) != "42" {
		t.Fatalf("got ok=%v data=%q err=%v", ok, data, err)
	}
	ok, data, err = decodeResult(encodeResult(false, []byte("boom")))
	if err != nil || ok || string(data) != "boom" {
		t.Fatalf("got ok=%v data=%q err=%v", ok, data, err)
	}
	if _, _, err := decodeResult(nil); err == nil {
		t.Fatal("empty result accepted")
	}
}

func TestCallCodec(t *testing.T) {
	element, args := decodeCall(encodeCall("sum", []string{"1", "", "three"}))
	if element != "sum" {
		t.Fatalf("element = %q", element)
	}
	if len(args) != 3 || args[0] != "1" || args[1] != "" || args[2] != "three" {
		t.Fatalf("args = %q", args)
	}

	element, args = decodeCall(encodeCall("noargs", nil))
	if element != "noargs" || len(args) != 0 {
		t.Fatalf("element = %q args = %q", element, args)
	}
}

func TestRawPayloadKeepsEmbeddedNULs(t *testing.T) {
	blob := []byte{0x01, 0x00, 0x02, 0x00, 0x03}
	fn, data, err := decodeRawPayload(encodeRawPayload("recv", blob))
	if err != nil {
		t.Fatalf("decodeRawPayload: %v", err)
	}
	if fn != "recv" || !bytes.Equal(data, blob) {
		t.Fatalf("fn = %q data = %v", fn, data)
	}
	if _, _, err := decodeRawPayload([]byte("no separator")); err == nil {
		t.Fatal("payload without separator accepted")
	}
}
