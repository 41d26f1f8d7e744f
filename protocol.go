package webwindow

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire framing shared by the engine and the client bridge. Every WebSocket
// message is one binary frame:
//
//	[0]   signature (0xDD)
//	[1]   command
//	[2:6] correlation number, big endian
//	[6:]  payload
//
// The correlation number ties a response to the request that produced it.
// For engine-to-client script frames the engine allocates it; for
// client-to-engine callback frames the bridge allocates it and the engine
// echoes it back on the answer frame.
const (
	frameSignature = 0xDD
	frameHeaderLen = 6
)

type command byte

const (
	cmdScript     command = 0xFE // engine->client: run script, respond; client->engine: script result
	cmdScriptFast command = 0xFD // engine->client: run script, no response
	cmdClick      command = 0xFC // client->engine: element clicked
	cmdNavigation command = 0xFB // both directions: URL change
	cmdClose      command = 0xFA // engine->client: close the UI
	cmdCallFunc   command = 0xF9 // client->engine: bound function call; engine->client: its answer
	cmdSendRaw    command = 0xF8 // engine->client: raw bytes for a named receiver
)

var errBadFrame = errors.New("malformed frame")

type frame struct {
	cmd     command
	id      uint32
	payload []byte
}

func encodeFrame(f frame) []byte {
	buf := make([]byte, frameHeaderLen+len(f.payload))
	buf[0] = frameSignature
	buf[1] = byte(f.cmd)
	binary.BigEndian.PutUint32(buf[2:6], f.id)
	copy(buf[frameHeaderLen:], f.payload)
	return buf
}

func decodeFrame(data []byte) (frame, error) {
	if len(data) < frameHeaderLen {
		return frame{}, fmt.Errorf("%w: %d bytes", errBadFrame, len(data))
	}
	if data[0] != frameSignature {
		return frame{}, fmt.Errorf("%w: bad signature 0x%02X", errBadFrame, data[0])
	}
	return frame{
		cmd:     command(data[1]),
		id:      binary.BigEndian.Uint32(data[2:6]),
		payload: data[frameHeaderLen:],
	}, nil
}

// encodeResult builds the payload of a script or callback answer:
// a status byte (1 = ok) followed by the data.
func encodeResult(ok bool, data []byte) []byte {
	buf := make([]byte, 1+len(data))
	if ok {
		buf[0] = 1
	}
	copy(buf[1:], data)
	return buf
}

func decodeResult(payload []byte) (ok bool, data []byte, err error) {
	if len(payload) < 1 {
		return false, nil, fmt.Errorf("%w: empty result", errBadFrame)
	}
	return payload[0] == 1, payload[1:], nil
}

// encodeCall builds a callback payload: the element name and each argument,
// NUL separated. The bridge uses the same layout.
func encodeCall(element string, args []string) []byte {
	parts := make([][]byte, 0, 1+len(args))
	parts = append(parts, []byte(element))
	for _, a := range args {
		parts = append(parts, []byte(a))
	}
	return bytes.Join(parts, []byte{0})
}

func decodeCall(payload []byte) (element string, args []string) {
	parts := bytes.Split(payload, []byte{0})
	element = string(parts[0])
	for _, p := range parts[1:] {
		args = append(args, string(p))
	}
	return element, args
}

// encodeRawPayload builds a raw-send payload: the receiving function name,
// a NUL separator, then the bytes verbatim. The payload may itself contain
// NULs, so decoding splits on the first separator only.
func encodeRawPayload(fn string, data []byte) []byte {
	buf := make([]byte, 0, len(fn)+1+len(data))
	buf = append(buf, fn...)
	buf = append(buf, 0)
	return append(buf, data...)
}

func decodeRawPayload(payload []byte) (fn string, data []byte, err error) {
	i := bytes.IndexByte(payload, 0)
	if i < 0 {
		return "", nil, fmt.Errorf("%w: raw payload without separator", errBadFrame)
	}
	return string(payload[:i]), payload[i+1:], nil
}
