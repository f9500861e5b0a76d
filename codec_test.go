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
	"testing"
)

func TestJSONCodec_EncodeDecodeRoundTrip(t *testing.T) {
	codec, err := NewFrameCodec(EncodingJSON, nil)
	if err != nil {
		t.Fatalf("NewFrameCodec() error: %v", err)
	}

	raw, err := codec.Encode(OpHeartbeat, 42)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	f, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if f.Op != OpHeartbeat {
		t.Fatalf("Op = %v, want OpHeartbeat", f.Op)
	}
	if string(f.Data) != "42" {
		t.Fatalf("Data = %s, want 42", f.Data)
	}
}

func TestJSONCodec_DecodePreservesSeqAndEventName(t *testing.T) {
	codec, _ := NewFrameCodec(EncodingJSON, nil)
	raw := []byte(`{"op":0,"d":{"foo":"bar"},"s":7,"t":"MESSAGE_CREATE"}`)

	f, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !f.HasSeq || f.Seq != 7 {
		t.Fatalf("Seq = (%d, hasSeq=%v), want (7, true)", f.Seq, f.HasSeq)
	}
	if f.EventName != "MESSAGE_CREATE" {
		t.Fatalf("EventName = %q", f.EventName)
	}
}

func TestNewFrameCodec_ETFWithoutCodecIsAnError(t *testing.T) {
	if _, err := NewFrameCodec(EncodingETF, nil); err != ErrInvalidEncoding {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
}

// canned is a FrameSource backed by a fixed slice of frames, used to drive
// the Inflater without a live socket.
type canned struct {
	frames [][]byte
	i      int
}

func (c *canned) NextFrame() ([]byte, error) {
	if c.i >= len(c.frames) {
		return nil, bytes.ErrTooLarge // any terminal error; Inflater just needs it non-nil
	}
	f := c.frames[c.i]
	c.i++
	return f, nil
}

func TestInflater_ReassemblesZlibStreamMessages(t *testing.T) {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	messages := []string{`{"op":10,"d":{"heartbeat_interval":41250}}`, `{"op":11}`}
	for _, m := range messages {
		if _, err := zw.Write([]byte(m)); err != nil {
			t.Fatalf("zlib write error: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close error: %v", err)
	}

	source := &canned{frames: [][]byte{compressed.Bytes()}}
	inf := NewInflater(source)

	for i, want := range messages {
		got, err := inf.NextMessage()
		if err != nil {
			t.Fatalf("NextMessage() #%d error: %v", i, err)
		}
		if string(got) != want {
			t.Fatalf("NextMessage() #%d = %s, want %s", i, got, want)
		}
	}
}
