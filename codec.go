/************************************************************************************
 *
 * wireclient, a Go core for a chat-platform REST + gateway client
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2025 Marouane Souiri
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package wireclient

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"

	"github.com/bytedance/sonic"
	"github.com/nolan-vance/wireclient/internal/etf"
)

// Opcode is a gateway operation code.
type Opcode int

const (
	OpDispatch            Opcode = 0
	OpHeartbeat           Opcode = 1
	OpIdentify            Opcode = 2
	OpPresenceUpdate      Opcode = 3
	OpVoiceStateUpdate    Opcode = 4
	OpResume              Opcode = 6
	OpReconnect           Opcode = 7
	OpRequestGuildMembers Opcode = 8
	OpInvalidSession      Opcode = 9
	OpHello               Opcode = 10
	OpHeartbeatACK        Opcode = 11
)

// Encoding names the gateway's wire payload format.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingETF  Encoding = "etf"
)

// Frame is the decoded shape of one gateway payload:
// {op, seq?, event_name?, data}.
type Frame struct {
	Op        Opcode
	Seq       int64
	HasSeq    bool
	EventName string
	Data      []byte // raw encoded `d`, re-decoded by the caller into a typed payload
}

type wireFrame struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// FrameCodec encodes outgoing packets and decodes incoming frames for
// exactly one wire encoding.
type FrameCodec interface {
	Encode(op Opcode, data any) ([]byte, error)
	Decode(raw []byte) (*Frame, error)
	Name() Encoding
}

// jsonCodec is the mandatory default encoding, backed by sonic so the REST
// and gateway paths share one JSON library.
type jsonCodec struct{}

func (jsonCodec) Name() Encoding { return EncodingJSON }

func (jsonCodec) Encode(op Opcode, data any) ([]byte, error) {
	payload, err := sonic.Marshal(data)
	if err != nil {
		return nil, &CodecError{Encoding: "json", Err: err}
	}
	w := wireFrame{Op: op, D: payload}
	out, err := sonic.Marshal(w)
	if err != nil {
		return nil, &CodecError{Encoding: "json", Err: err}
	}
	return out, nil
}

func (jsonCodec) Decode(raw []byte) (*Frame, error) {
	var w wireFrame
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return nil, &CodecError{Encoding: "json", Err: err}
	}
	f := &Frame{Op: w.Op, EventName: w.T, Data: w.D}
	if w.S != nil {
		f.Seq, f.HasSeq = *w.S, true
	}
	return f, nil
}

// etfCodec delegates to a caller-installed etf.Codec.
type etfCodec struct {
	codec etf.Codec
}

func (etfCodec) Name() Encoding { return EncodingETF }

func (c etfCodec) Encode(op Opcode, data any) ([]byte, error) {
	inner, err := c.codec.EncodeETF(data)
	if err != nil {
		return nil, &CodecError{Encoding: "etf", Err: err}
	}
	w := struct {
		Op Opcode `etf:"op"`
		D  []byte `etf:"d"`
	}{Op: op, D: inner}
	out, err := c.codec.EncodeETF(w)
	if err != nil {
		return nil, &CodecError{Encoding: "etf", Err: err}
	}
	return out, nil
}

func (c etfCodec) Decode(raw []byte) (*Frame, error) {
	var w struct {
		Op Opcode `etf:"op"`
		D  []byte `etf:"d"`
		S  *int64 `etf:"s"`
		T  string `etf:"t"`
	}
	if err := c.codec.DecodeETF(raw, &w); err != nil {
		return nil, &CodecError{Encoding: "etf", Err: err}
	}
	f := &Frame{Op: w.Op, EventName: w.T, Data: w.D}
	if w.S != nil {
		f.Seq, f.HasSeq = *w.S, true
	}
	return f, nil
}

// NewFrameCodec builds the codec for the requested encoding. Requesting
// EncodingETF without an installed etf.Codec returns ErrInvalidEncoding at
// construction time rather than failing on first use.
func NewFrameCodec(encoding Encoding, etfCodec_ etf.Codec) (FrameCodec, error) {
	switch encoding {
	case EncodingJSON, "":
		return jsonCodec{}, nil
	case EncodingETF:
		if etfCodec_ == nil {
			return nil, ErrInvalidEncoding
		}
		return etfCodec{codec: etfCodec_}, nil
	default:
		return nil, ErrInvalidEncoding
	}
}

// ZlibSuffix is the 4-byte trailer that marks the end of one logical
// zlib-stream message in the raw compressed byte stream.
var ZlibSuffix = []byte{0x00, 0x00, 0xFF, 0xFF}

// HasZlibSuffix reports whether frame ends with the zlib-stream boundary
// marker. The inflater below doesn't gate decompression on this check
// directly (compress/zlib's Reader already blocks for more input rather
// than than observing a false end-of-stream — see zlibBridge), but it is
// the wire-level signal most gateway implementations treat as authoritative,
// so it is exposed for callers that want to assert framing behavior
// independently of the decompressor.
func HasZlibSuffix(frame []byte) bool {
	return len(frame) >= 4 && bytes.Equal(frame[len(frame)-4:], ZlibSuffix)
}

// FrameSource supplies successive raw websocket frames (already
// concatenated across any WebSocket-level fragmentation) to the zlib-stream
// inflater. The live WebSocketTransport implements it off the live socket;
// tests can supply a canned, pre-recorded sequence.
type FrameSource interface {
	NextFrame() ([]byte, error)
}

// zlibBridge adapts a FrameSource into an io.Reader so compress/zlib can
// pull exactly as many raw bytes as it needs. By letting the zlib
// decompressor pull frames on demand rather than pushing them in from
// outside, a blocking FrameSource (the live socket) behaves correctly —
// the decompressor blocks for the next frame instead of ever observing a
// spurious end-of-stream mid-message.
type zlibBridge struct {
	source FrameSource
	buf    bytes.Buffer
}

func (z *zlibBridge) Read(p []byte) (int, error) {
	if z.buf.Len() == 0 {
		frame, err := z.source.NextFrame()
		if err != nil {
			return 0, err
		}
		z.buf.Write(frame)
	}
	return z.buf.Read(p)
}

// Inflater reassembles zlib-stream compressed gateway messages. One
// Inflater is created per connection and discarded on reconnect, since the
// compression dictionary must never span sessions.
type Inflater struct {
	bridge *zlibBridge
	zr     io.ReadCloser
	dec    *json.Decoder
}

// NewInflater constructs an Inflater over source. It blocks on the first
// call to NextMessage until enough bytes have arrived to parse the zlib
// header.
func NewInflater(source FrameSource) *Inflater {
	bridge := &zlibBridge{source: source}
	return &Inflater{bridge: bridge}
}

// NextMessage blocks until one complete decompressed JSON document is
// available and returns its raw bytes, ready to hand to FrameCodec.Decode.
func (inf *Inflater) NextMessage() ([]byte, error) {
	if inf.zr == nil {
		zr, err := zlib.NewReader(inf.bridge)
		if err != nil {
			return nil, &CodecError{Encoding: "zlib-stream", Err: err}
		}
		inf.zr = zr
		inf.dec = json.NewDecoder(zr)
	}
	var raw json.RawMessage
	if err := inf.dec.Decode(&raw); err != nil {
		return nil, &CodecError{Encoding: "zlib-stream", Err: err}
	}
	return raw, nil
}

// Close releases the underlying zlib reader.
func (inf *Inflater) Close() error {
	if inf.zr != nil {
		return inf.zr.Close()
	}
	return nil
}
