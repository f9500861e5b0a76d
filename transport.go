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
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// TransportEventKind names the events WebSocketTransport emits.
type TransportEventKind string

const (
	TransportOpen    TransportEventKind = "open"
	TransportMessage TransportEventKind = "message"
	TransportClose   TransportEventKind = "close"
)

// TransportEvent is one occurrence on the connection's lifetime, delivered
// to the handler installed at Dial time.
type TransportEvent struct {
	Kind TransportEventKind
	Data []byte // populated for TransportMessage
	Code int    // populated for TransportClose
	Err  error  // populated for TransportClose on an abnormal fault
}

// TransportHandler receives transport events. TransportOpen is delivered
// synchronously from Dial; message and close events follow in arrival order
// from whichever goroutine reads the socket (the internal read loop, or the
// caller of NextFrame on a compressed transport).
type TransportHandler func(TransportEvent)

// WebSocketTransport is the raw transport: dial, send, close, and a read
// loop that classifies every frame into TransportEvent. It knows nothing
// about gateway opcodes or sessions — that belongs to session.go — keeping
// socket plumbing separate from payload interpretation as an independently
// reusable type.
type WebSocketTransport struct {
	mu      sync.Mutex
	conn    net.Conn
	logger  Logger
	handler TransportHandler

	// externalReader is true when a single external consumer (the zlib-stream
	// Inflater, via NextFrame) pumps the socket instead of the transport's own
	// readLoop. Running both concurrently would race two goroutines over the
	// same net.Conn and split a logical message's bytes between them.
	externalReader bool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewWebSocketTransport constructs an unconnected transport. handler is
// invoked from the read loop goroutine started by Dial.
func NewWebSocketTransport(logger Logger, handler TransportHandler) *WebSocketTransport {
	if logger == nil {
		logger = NewLogger()
	}
	return &WebSocketTransport{logger: logger, handler: handler, closed: make(chan struct{})}
}

// NewCompressedWebSocketTransport constructs a transport whose frames are
// pulled exclusively by an Inflater through NextFrame, rather than by the
// transport's own readLoop goroutine. Use this whenever the session expects
// zlib-stream compression so exactly one goroutine ever reads the socket.
func NewCompressedWebSocketTransport(logger Logger, handler TransportHandler) *WebSocketTransport {
	t := NewWebSocketTransport(logger, handler)
	t.externalReader = true
	return t
}

// Dial opens the connection (ws:// or wss://, TLS 1.2+ enforced for wss)
// and starts the read loop. It emits TransportOpen synchronously before
// returning so callers never race the first message against setup.
func (t *WebSocketTransport) Dial(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &TransportError{Op: "parse url", Err: err}
	}

	dialer := ws.Dialer{}
	if u.Scheme == "wss" {
		dialer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, _, _, err := dialer.Dial(ctx, rawURL)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.handler(TransportEvent{Kind: TransportOpen})
	if !t.externalReader {
		go t.readLoop()
	}
	return nil
}

// NextFrame implements FrameSource over the live socket, so an Inflater
// (codec.go) can pull zlib-stream frames directly off this transport for
// compressed connections. Only valid on a transport built with
// NewCompressedWebSocketTransport, where it is the sole reader of the
// socket; it emits TransportClose itself since the internal readLoop never
// runs to do so.
func (t *WebSocketTransport) NextFrame() ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, &TransportError{Op: "next frame", Err: ErrNotConnected}
	}
	for {
		msg, op, err := wsutil.ReadServerData(conn)
		if err != nil {
			t.emitClose(0, err)
			return nil, &TransportError{Op: "read frame", Err: err}
		}
		switch op {
		case ws.OpBinary:
			return msg, nil
		case ws.OpPing:
			_ = wsutil.WriteClientMessage(conn, ws.OpPong, msg)
		case ws.OpClose:
			code := 1000
			if len(msg) >= 2 {
				code = int(msg[0])<<8 | int(msg[1])
			}
			t.emitClose(code, nil)
			return nil, &TransportError{Op: "read frame", Err: ErrConnectionClosed}
		default:
			continue
		}
	}
}

// readLoop classifies every inbound frame and hands it to handler. It
// survives benign I/O conditions (pings, unexpected text/binary mixing) by
// logging and continuing, and terminates only on a read error or close
// frame.
func (t *WebSocketTransport) readLoop() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	for {
		msg, op, err := wsutil.ReadServerData(conn)
		if err != nil {
			t.emitClose(0, err)
			return
		}

		switch op {
		case ws.OpText, ws.OpBinary:
			t.handler(TransportEvent{Kind: TransportMessage, Data: msg})

		case ws.OpPing:
			if werr := wsutil.WriteClientMessage(conn, ws.OpPong, msg); werr != nil {
				t.logger.WithField("error", werr).Debug("pong write failed")
			}

		case ws.OpClose:
			code := 1000
			if len(msg) >= 2 {
				code = int(msg[0])<<8 | int(msg[1])
			}
			t.emitClose(code, nil)
			return

		default:
			t.logger.WithField("opcode", op).Debug("ignoring unhandled frame opcode")
		}
	}
}

func (t *WebSocketTransport) emitClose(code int, err error) {
	t.closeOnce.Do(func() { close(t.closed) })
	t.handler(TransportEvent{Kind: TransportClose, Code: code, Err: err})
}

// SendText writes a text frame (used for the gateway's default JSON encoding).
func (t *WebSocketTransport) SendText(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return &TransportError{Op: "send text", Err: ErrNotConnected}
	}
	if err := wsutil.WriteClientMessage(conn, ws.OpText, data); err != nil {
		return &TransportError{Op: "send text", Err: err}
	}
	return nil
}

// SendBinary writes a binary frame (used by the ETF encoding).
func (t *WebSocketTransport) SendBinary(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return &TransportError{Op: "send binary", Err: ErrNotConnected}
	}
	if err := wsutil.WriteClientMessage(conn, ws.OpBinary, data); err != nil {
		return &TransportError{Op: "send binary", Err: err}
	}
	return nil
}

// Close sends a close frame (default code 1000, "normal closure") and tears
// down the socket. Safe to call more than once.
func (t *WebSocketTransport) Close(code int, reason string) error {
	if code == 0 {
		code = 1000
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	body := ws.NewCloseFrameBody(ws.StatusCode(code), reason)
	_ = wsutil.WriteClientMessage(conn, ws.OpClose, body)
	t.closeOnce.Do(func() { close(t.closed) })
	return conn.Close()
}

// Done returns a channel closed once the connection has terminated, either
// by a received close frame or by a local Close call.
func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.closed
}
