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
	"io"
	"net"
	"testing"
)

func TestClassifyClose_Fatal(t *testing.T) {
	fatal, clearSession, _ := classifyClose(4004)
	if !fatal || clearSession {
		t.Fatalf("4004: fatal=%v clearSession=%v, want fatal=true", fatal, clearSession)
	}
}

func TestClassifyClose_SessionClearing(t *testing.T) {
	fatal, clearSession, _ := classifyClose(4009)
	if fatal || !clearSession {
		t.Fatalf("4009: fatal=%v clearSession=%v, want clearSession=true", fatal, clearSession)
	}
}

func TestClassifyClose_Recoverable(t *testing.T) {
	fatal, clearSession, reason := classifyClose(4001)
	if fatal || clearSession {
		t.Fatalf("4001: fatal=%v clearSession=%v, want neither", fatal, clearSession)
	}
	if reason != "recoverable" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestClassifyClose_NormalOutsideGatewayRange(t *testing.T) {
	fatal, clearSession, reason := classifyClose(1000)
	if fatal || clearSession {
		t.Fatalf("1000: fatal=%v clearSession=%v, want neither", fatal, clearSession)
	}
	if reason != "normal" {
		t.Fatalf("reason = %q, want normal", reason)
	}
}

func TestSession_BuildConnectURL_DefaultsAndQuery(t *testing.T) {
	s, err := NewSession(SessionConfig{Token: "t", Compress: true})
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	u := s.buildConnectURL()
	if u == "" {
		t.Fatal("buildConnectURL() returned empty string")
	}
	wantSubstrings := []string{"v=" + gatewayVersion, "encoding=json", "compress=zlib-stream"}
	for _, want := range wantSubstrings {
		if !containsSub(u, want) {
			t.Fatalf("buildConnectURL() = %q, missing %q", u, want)
		}
	}
}

func TestSession_BuildConnectURL_PrefersResumeURL(t *testing.T) {
	s, _ := NewSession(SessionConfig{Token: "t"})
	s.resumeURL = "wss://resume.example.invalid/"
	u := s.buildConnectURL()
	if !containsSub(u, "resume.example.invalid") {
		t.Fatalf("buildConnectURL() = %q, want it to use resumeURL", u)
	}
}

// newSendableSession wires a Session with a recordingCodec (capturing the
// map passed to Encode) and a transport backed by a net.Pipe, so sendOp's
// SendText call has a live connection to write to instead of failing with
// ErrNotConnected.
func newSendableSession(t *testing.T) (*Session, *map[string]any) {
	t.Helper()
	s, err := NewSession(SessionConfig{Token: "t"})
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	var sent map[string]any
	s.codec = recordingCodec{encoded: &sent}

	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	go io.Copy(io.Discard, server)
	s.transport = &WebSocketTransport{conn: client, logger: s.logger, closed: make(chan struct{})}
	return s, &sent
}

func TestSession_RequestGuildMembers_OmitsAbsentFields(t *testing.T) {
	s, sentPtr := newSendableSession(t)

	if err := s.RequestGuildMembers(123, 0, RequestGuildMembersOptions{
		Query: Present("al"),
	}); err != nil {
		t.Fatalf("RequestGuildMembers() error: %v", err)
	}

	sent := *sentPtr
	if sent["guild_id"] != "123" || sent["limit"] != 0 {
		t.Fatalf("required fields missing/altered: %+v", sent)
	}
	if _, ok := sent["query"]; !ok {
		t.Fatal("expected the Present query field to be sent")
	}
	for _, absentKey := range []string{"presences", "user_ids", "nonce"} {
		if _, ok := sent[absentKey]; ok {
			t.Fatalf("expected %q to be omitted (Absent), got %+v", absentKey, sent)
		}
	}
}

func TestSession_UpdateVoiceState_NilChannelMeansLeave(t *testing.T) {
	s, sentPtr := newSendableSession(t)

	if err := s.UpdateVoiceState(1, nil, true, false); err != nil {
		t.Fatalf("UpdateVoiceState() error: %v", err)
	}
	sent := *sentPtr
	if sent["channel_id"] != nil {
		t.Fatalf("channel_id = %+v, want nil for a leave request", sent["channel_id"])
	}
	if sent["self_mute"] != true || sent["self_deaf"] != false {
		t.Fatalf("self_mute/self_deaf not passed through: %+v", sent)
	}
}

func TestSession_PresenceUpdate_OmitsAbsentFields(t *testing.T) {
	s, sentPtr := newSendableSession(t)

	if err := s.PresenceUpdate("online", false, Field[any]{}, Field[int64]{}); err != nil {
		t.Fatalf("PresenceUpdate() error: %v", err)
	}
	sent := *sentPtr
	if sent["status"] != "online" {
		t.Fatalf("status = %+v", sent["status"])
	}
	for _, absentKey := range []string{"game", "since"} {
		if _, ok := sent[absentKey]; ok {
			t.Fatalf("expected %q to be omitted (Absent), got %+v", absentKey, sent)
		}
	}
}

// recordingCodec is a FrameCodec test double that captures the data payload
// passed to Encode (as a map, the shape every gateway send in session.go
// actually builds) instead of touching a transport.
type recordingCodec struct {
	encoded *map[string]any
}

func (recordingCodec) Name() Encoding { return EncodingJSON }

func (c recordingCodec) Encode(op Opcode, data any) ([]byte, error) {
	*c.encoded = data.(map[string]any)
	return []byte("{}"), nil
}

func (recordingCodec) Decode(raw []byte) (*Frame, error) {
	return &Frame{}, nil
}

func containsSub(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
