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
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// GatewayIntent is the bitmask of event categories a session subscribes to
//. Individual intent bit constants are intentionally left to
// the caller (or a thin endpoints.go-style helper): the bits themselves are
// Discord API surface, not core engineering.
type GatewayIntent uint64

const (
	gatewayVersion  = "10"
	defaultGatewayURL = "wss://gateway.discord.gg"
)

// SessionState is the gateway engine's connection state.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateResuming
	StateReady
	StateReconnecting
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateResuming:
		return "resuming"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close codes are classified into three tiers: fatal codes must not
// reconnect, session-clearing codes must reconnect with a fresh Identify
// (no Resume), and every other 4000-4014 code is a recoverable Resume
// candidate.
var (
	fatalCloseCodes          = map[int]string{4003: "authentication failed", 4004: "invalid token", 4011: "sharding required"}
	sessionClearingCloseCodes = map[int]string{4007: "invalid seq", 4009: "session timed out"}
)

func classifyClose(code int) (fatal bool, clearSession bool, reason string) {
	if reason, ok := fatalCloseCodes[code]; ok {
		return true, false, reason
	}
	if reason, ok := sessionClearingCloseCodes[code]; ok {
		return false, true, reason
	}
	if code >= 4000 && code <= 4014 {
		return false, false, "recoverable"
	}
	return false, false, "normal"
}

// IdentifyProperties fills the Identify payload's "properties" object.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// SessionConfig configures a single Session.
type SessionConfig struct {
	Token       string
	Intents     GatewayIntent
	ShardID     int
	ShardCount  int
	Compress    bool
	Encoding    Encoding
	Properties  IdentifyProperties
	GatewayURL  string // override, e.g. the cached Gateway Bot URL
	Logger      Logger
	Emitter     *Emitter
	IdentifyLim *rate.Limiter // per-shard Identify throttle
	Metrics     *Metrics
}

// Session is the gateway engine for one shard: it owns the transport, the
// frame codec, the heartbeat loop, and the Identify/Resume state machine,
// and dispatches every Dispatch payload through an Emitter. The connection
// is built from the pluggable FrameCodec/WebSocketTransport primitives in
// this module rather than a single hard-coded JSON connection.
type Session struct {
	cfg       SessionConfig
	logger    Logger
	emitter   *Emitter
	codec     FrameCodec
	transport *WebSocketTransport
	inflater  *Inflater

	mu        sync.Mutex
	state     SessionState
	sessionID string
	resumeURL string
	seq       atomic.Int64

	latency           atomic.Int64
	lastHeartbeatSent atomic.Int64
	lastHeartbeatACK  atomic.Bool
	heartbeatStop     chan struct{}

	closed chan struct{}
}

// NewSession constructs a Session. The codec defaults to JSON when
// cfg.Encoding is empty.
func NewSession(cfg SessionConfig) (*Session, error) {
	codec, err := NewFrameCodec(cfg.Encoding, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = NewLogger()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = NewEmitter(cfg.Logger)
	}
	if cfg.IdentifyLim == nil {
		cfg.IdentifyLim = rate.NewLimiter(rate.Every(5*time.Second), 1)
	}
	return &Session{
		cfg:     cfg,
		logger:  cfg.Logger.WithField("shard_id", cfg.ShardID),
		emitter: cfg.Emitter,
		codec:   codec,
		closed:  make(chan struct{}),
	}, nil
}

// State returns the engine's current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Latency returns the last measured heartbeat round-trip in milliseconds.
func (s *Session) Latency() int64 { return s.latency.Load() }

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.WithField("state", st.String()).Debug("session state transition")
}

// Connect dials the gateway (or a cached resume URL) and drives the engine
// until the connection closes or ctx is cancelled. It blocks the caller;
// ShardManager runs it on a dedicated goroutine per shard.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	connURL := s.buildConnectURL()
	if s.cfg.Compress {
		s.transport = NewCompressedWebSocketTransport(s.logger, s.handleTransportEvent)
		s.inflater = NewInflater(s.transport)
	} else {
		s.transport = NewWebSocketTransport(s.logger, s.handleTransportEvent)
	}

	if err := s.transport.Dial(ctx, connURL); err != nil {
		return err
	}
	s.setState(StateAwaitingHello)

	if s.cfg.Compress {
		go s.compressedReadLoop()
	}

	select {
	case <-s.transport.Done():
	case <-ctx.Done():
		_ = s.transport.Close(1000, "")
	}
	return nil
}

func (s *Session) buildConnectURL() string {
	base := s.resumeURL
	if base == "" {
		base = s.cfg.GatewayURL
	}
	if base == "" {
		base = defaultGatewayURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	if q.Get("v") == "" {
		q.Set("v", gatewayVersion)
	}
	if q.Get("encoding") == "" {
		q.Set("encoding", string(s.codec.Name()))
	}
	if s.cfg.Compress && q.Get("compress") == "" {
		q.Set("compress", "zlib-stream")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// compressedReadLoop decodes one reassembled message at a time from the
// Inflater and feeds it through the same handling path as an uncompressed
// text frame.
func (s *Session) compressedReadLoop() {
	for {
		raw, err := s.inflater.NextMessage()
		if err != nil {
			s.logger.WithField("error", err).Error("zlib-stream decode failed")
			_ = s.transport.Close(1000, "")
			return
		}
		s.handleFrame(raw)
	}
}

func (s *Session) handleTransportEvent(ev TransportEvent) {
	switch ev.Kind {
	case TransportOpen:
		s.logger.Info("connected")
		s.lastHeartbeatACK.Store(true)
		s.latency.Store(0)

	case TransportMessage:
		if s.cfg.Compress {
			return // compressedReadLoop owns message decoding for this mode
		}
		s.handleFrame(ev.Data)

	case TransportClose:
		s.onClose(ev.Code, ev.Err)
	}
}

func (s *Session) handleFrame(raw []byte) {
	frame, err := s.codec.Decode(raw)
	if err != nil {
		s.logger.WithField("error", err).Error("frame decode failed")
		return
	}
	s.handlePayload(frame)
}

func (s *Session) onClose(code int, err error) {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	if err != nil {
		s.logger.WithField("error", err).Error("transport closed abnormally")
		s.setState(StateReconnecting)
		return
	}

	fatal, clearSession, reason := classifyClose(code)
	s.logger.WithField("code", code).WithField("reason", reason).Info("gateway closed")

	if fatal {
		s.setState(StateClosed)
		s.emitter.Emit("error", &GatewayFatalError{Code: code, Reason: reason})
		close(s.closed)
		return
	}
	if clearSession {
		s.mu.Lock()
		s.sessionID, s.resumeURL = "", ""
		s.seq.Store(0)
		s.mu.Unlock()
	}
	s.setState(StateReconnecting)
}

// handlePayload updates seq, fans out Dispatch events, and reacts to every
// other opcode as the gateway state machine requires.
func (s *Session) handlePayload(f *Frame) {
	if f.HasSeq && f.Seq > 0 {
		s.seq.Store(f.Seq)
	}

	switch f.Op {
	case OpDispatch:
		s.emitter.Emit("dispatch", f)
		s.emitter.Emit(f.EventName, f.Data)

		switch f.EventName {
		case "READY":
			var ready struct {
				SessionID        string `json:"session_id"`
				ResumeGatewayURL string `json:"resume_gateway_url"`
			}
			_ = json.Unmarshal(f.Data, &ready)
			s.mu.Lock()
			s.sessionID = ready.SessionID
			s.resumeURL = ready.ResumeGatewayURL
			s.mu.Unlock()
			s.setState(StateReady)
			s.logger.Info("ready")

		case "RESUMED":
			s.setState(StateReady)
			s.logger.Info("resumed")
		}

	case OpReconnect:
		s.logger.Info("reconnect requested by gateway")
		_ = s.transport.Close(1000, "")

	case OpInvalidSession:
		var resumable bool
		_ = json.Unmarshal(f.Data, &resumable)
		time.Sleep(time.Duration(100+s.cfg.ShardID%500) * time.Millisecond)
		if resumable {
			s.sendResume()
		} else {
			s.mu.Lock()
			s.sessionID = ""
			s.mu.Unlock()
			s.seq.Store(0)
			s.sendIdentify()
		}

	case OpHello:
		var hello struct {
			HeartbeatInterval float64 `json:"heartbeat_interval"`
		}
		_ = json.Unmarshal(f.Data, &hello)
		interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
		s.heartbeatStop = make(chan struct{})
		go s.heartbeatLoop(interval)

		s.mu.Lock()
		canResume := s.sessionID != "" && s.seq.Load() > 0
		s.mu.Unlock()
		if canResume {
			s.setState(StateResuming)
			s.sendResume()
		} else {
			s.setState(StateIdentifying)
			s.sendIdentify()
		}

	case OpHeartbeatACK:
		s.lastHeartbeatACK.Store(true)
		if sent := s.lastHeartbeatSent.Load(); sent > 0 {
			rtt := time.Since(time.Unix(0, sent)).Milliseconds()
			s.latency.Store(rtt)
			s.cfg.Metrics.SetHeartbeatLatency(float64(rtt))
		}

	case OpHeartbeat:
		s.sendHeartbeat()
	}
}

func (s *Session) sendIdentify() error {
	s.cfg.IdentifyLim.Wait(context.Background())
	payload := map[string]any{
		"token": s.cfg.Token,
		"properties": map[string]string{
			"os": s.cfg.Properties.OS, "browser": s.cfg.Properties.Browser, "device": s.cfg.Properties.Device,
		},
		"shards":  [2]int{s.cfg.ShardID, s.cfg.ShardCount},
		"intents": s.cfg.Intents,
	}
	return s.sendOp(OpIdentify, payload)
}

func (s *Session) sendResume() error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	payload := map[string]any{
		"token": s.cfg.Token, "session_id": sessionID, "seq": s.seq.Load(),
	}
	return s.sendOp(OpResume, payload)
}

func (s *Session) sendHeartbeat() error {
	return s.sendOp(OpHeartbeat, s.seq.Load())
}

// RequestGuildMembersOptions carries the optional fields of a Request Guild
// Members send (op 8). Each uses the Absent|Null|Present sentinel (Field[T],
// option.go) so a field the caller never set is dropped from the payload by
// BuildJSONBody rather than marshaled as a zero value.
type RequestGuildMembersOptions struct {
	Query     Field[string]
	Presences Field[bool]
	UserIDs   Field[[]Snowflake]
	Nonce     Field[string]
}

// RequestGuildMembers sends the Request Guild Members opcode (op 8) for
// guildID, asking for up to limit members. guild_id and limit are always
// sent; every Field left Absent in opts is omitted instead of sent as a
// zero value.
func (s *Session) RequestGuildMembers(guildID Snowflake, limit int, opts RequestGuildMembersOptions) error {
	payload := BuildJSONBody(map[string]any{
		"guild_id":  guildID.String(),
		"limit":     limit,
		"query":     opts.Query,
		"presences": opts.Presences,
		"user_ids":  opts.UserIDs,
		"nonce":     opts.Nonce,
	})
	return s.sendOp(OpRequestGuildMembers, payload)
}

// UpdateVoiceState sends the Voice State Update opcode (op 4). A nil
// channelID requests leaving voice entirely, matching Discord's own
// null-channel_id convention.
func (s *Session) UpdateVoiceState(guildID Snowflake, channelID *Snowflake, selfMute, selfDeaf bool) error {
	var channelVal any
	if channelID != nil {
		channelVal = channelID.String()
	}
	payload := map[string]any{
		"guild_id":   guildID.String(),
		"channel_id": channelVal,
		"self_mute":  selfMute,
		"self_deaf":  selfDeaf,
	}
	return s.sendOp(OpVoiceStateUpdate, payload)
}

// PresenceUpdate sends the Presence Update opcode (op 3). Activity object
// modelling is out of scope for this core (spec §1's domain-object
// non-goal), so game carries whatever activity payload the caller built;
// since is the idle-since unix-ms timestamp. Both are Field sentinels, so
// leaving either Absent drops the key instead of sending a zero value.
func (s *Session) PresenceUpdate(status string, afk bool, game Field[any], since Field[int64]) error {
	payload := BuildJSONBody(map[string]any{
		"status": status,
		"afk":    afk,
		"game":   game,
		"since":  since,
	})
	return s.sendOp(OpPresenceUpdate, payload)
}

func (s *Session) sendOp(op Opcode, data any) error {
	raw, err := s.codec.Encode(op, data)
	if err != nil {
		return err
	}
	if s.codec.Name() == EncodingETF {
		return s.transport.SendBinary(raw)
	}
	return s.transport.SendText(raw)
}

// heartbeatLoop sends a jittered first beat, then a steady ticker,
// terminating the connection if an ACK is missed before the next tick is
// due.
func (s *Session) heartbeatLoop(interval time.Duration) {
	jitter := time.Duration(rand.Float64() * float64(interval))
	select {
	case <-time.After(jitter):
	case <-s.heartbeatStop:
		return
	}

	if err := s.sendHeartbeat(); err != nil {
		s.logger.WithField("error", err).Error("first heartbeat failed")
		return
	}
	s.lastHeartbeatACK.Store(false)
	s.lastHeartbeatSent.Store(time.Now().UnixNano())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.heartbeatStop:
			return
		case <-ticker.C:
			if !s.lastHeartbeatACK.Load() {
				s.logger.Error("heartbeat ack missed, forcing reconnect")
				_ = s.transport.Close(1000, "")
				return
			}
			s.lastHeartbeatACK.Store(false)
			s.lastHeartbeatSent.Store(time.Now().UnixNano())
			if err := s.sendHeartbeat(); err != nil {
				s.logger.WithField("error", err).Error("heartbeat send failed")
				_ = s.transport.Close(1000, "")
				return
			}
		}
	}
}

// Shutdown closes the underlying transport. Safe to call once the session
// has already closed on its own.
func (s *Session) Shutdown() error {
	if s.transport == nil {
		return nil
	}
	return s.transport.Close(1000, "")
}

// Done returns a channel closed once the session has reached StateClosed
// (a fatal close code) — not emitted for a recoverable close, which the
// owning ShardManager reconnects instead.
func (s *Session) Done() <-chan struct{} { return s.closed }

// ShardManagerConfig configures a ShardManager.
type ShardManagerConfig struct {
	TotalShards int
	ShardIDs    []int // when non-empty, only these ids are started (clustering)
	Token       string
	Intents     GatewayIntent
	Compress    bool
	Encoding    Encoding
	Properties  IdentifyProperties
	GatewayURL  string
	Logger      Logger
	Emitter     *Emitter
	Metrics     *Metrics
}

// ShardManager owns one Session per managed shard, reconnecting each with
// exponential backoff on a recoverable close. Each shard gets its own
// Identify rate limiter, matching Discord's per-shard (not per-process)
// Identify quota.
type ShardManager struct {
	cfg      ShardManagerConfig
	logger   Logger
	sessions []*Session
	mu       sync.Mutex
}

// NewShardManager constructs a ShardManager.
func NewShardManager(cfg ShardManagerConfig) *ShardManager {
	if cfg.Logger == nil {
		cfg.Logger = NewLogger()
	}
	return &ShardManager{cfg: cfg, logger: cfg.Logger}
}

// Start launches one Session per managed shard and begins its connect/
// reconnect loop on its own goroutine. totalShards overrides cfg.TotalShards
// when the caller fetched the recommended count from the REST gateway
// endpoint.
func (sm *ShardManager) Start(ctx context.Context, totalShards int) error {
	shardIDs := sm.cfg.ShardIDs
	if len(shardIDs) == 0 {
		shardIDs = make([]int, totalShards)
		for i := range totalShards {
			shardIDs[i] = i
		}
	}

	sm.logger.WithField("total_shards", totalShards).WithField("managed_shards", len(shardIDs)).Info("starting shard manager")

	for _, id := range shardIDs {
		session, err := NewSession(SessionConfig{
			Token:       sm.cfg.Token,
			Intents:     sm.cfg.Intents,
			ShardID:     id,
			ShardCount:  totalShards,
			Compress:    sm.cfg.Compress,
			Encoding:    sm.cfg.Encoding,
			Properties:  sm.cfg.Properties,
			GatewayURL:  sm.cfg.GatewayURL,
			Logger:      sm.cfg.Logger,
			Emitter:     sm.cfg.Emitter,
			IdentifyLim: rate.NewLimiter(rate.Every(5*time.Second), 1),
			Metrics:     sm.cfg.Metrics,
		})
		if err != nil {
			return fmt.Errorf("wireclient: shard %d: %w", id, err)
		}
		sm.mu.Lock()
		sm.sessions = append(sm.sessions, session)
		sm.mu.Unlock()
		go sm.runWithBackoff(ctx, session)
	}
	return nil
}

// runWithBackoff drives one session's connect loop, reconnecting with
// exponential backoff (capped at one minute) until the session reaches
// StateClosed or ctx is cancelled.
func (sm *ShardManager) runWithBackoff(ctx context.Context, session *Session) {
	backoff := time.Second
	const maxBackoff = 60 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		err := session.Connect(ctx)
		select {
		case <-session.Done():
			return // fatal close: don't reconnect
		default:
		}
		if err != nil {
			sm.logger.WithField("error", err).Error("session connect failed")
		}

		sm.cfg.Metrics.IncGatewayReconnect()
		sm.logger.WithField("backoff", backoff.String()).Info("reconnecting shard")
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Shutdown closes every managed session.
func (sm *ShardManager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, s := range sm.sessions {
		_ = s.Shutdown()
	}
	sm.sessions = nil
}

// Sessions returns the currently managed sessions.
func (sm *ShardManager) Sessions() []*Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]*Session(nil), sm.sessions...)
}
