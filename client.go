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
	"runtime"
	"strings"
)

// Client composes the whole core behind one handle: REST dispatch, rate
// limiting, the gateway shard manager, caching and event dispatch. It is
// built with functional options over this module's pluggable
// codec/transport/cache primitives.
type Client struct {
	ctx context.Context

	token      string
	intents    GatewayIntent
	logger     Logger
	emitter    *Emitter
	metrics    *Metrics
	cache      *CacheManager
	compress   bool
	encoding   Encoding
	properties IdentifyProperties

	shardManagerConfig ShardManagerConfig
	shardManager       *ShardManager

	rest  *RESTClient
	table *BucketTable
}

// ClientOption configures a Client at construction.
type ClientOption func(*Client)

// WithToken sets the bot token. The "Bot " prefix is stripped if present.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimPrefix(token, "Bot ")
	}
}

// WithIntents ORs the given intents into the client's Gateway subscription.
func WithIntents(intents ...GatewayIntent) ClientOption {
	return func(c *Client) {
		for _, i := range intents {
			c.intents = BitMaskAdd(c.intents, i)
		}
	}
}

// WithoutIntents clears the given intents from the client's Gateway
// subscription, e.g. to strip a default a WithIntents call upstream already
// set.
func WithoutIntents(intents ...GatewayIntent) ClientOption {
	return func(c *Client) { c.intents = BitMaskRemove(c.intents, intents...) }
}

// HasIntents reports whether every one of intents is currently subscribed.
func (c *Client) HasIntents(intents ...GatewayIntent) bool {
	return BitMaskHas(c.intents, intents...)
}

// WithClientLogger overrides the default logger used throughout the client
// and everything it constructs (REST dispatcher, shard sessions, emitter).
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics attaches optional prometheus instrumentation. Omit this option to run with metrics fully disabled.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithCacheManager installs a caller-constructed CacheManager in place of
// the default empty one.
func WithCacheManager(cache *CacheManager) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithShardManagerConfig overrides shard/cluster sizing. Leave TotalShards
// at zero to use Discord's recommended count from GET /gateway/bot.
func WithShardManagerConfig(cfg ShardManagerConfig) ClientOption {
	return func(c *Client) { c.shardManagerConfig = cfg }
}

// WithCompression enables or disables zlib-stream gateway compression.
// Enabled by default.
func WithCompression(enabled bool) ClientOption {
	return func(c *Client) { c.compress = enabled }
}

// WithEncoding selects the gateway wire encoding. Defaults to EncodingJSON.
// Neither this option nor SessionConfig installs an etf.Codec, so with
// EncodingETF every shard's NewSession fails with ErrInvalidEncoding.
func WithEncoding(enc Encoding) ClientOption {
	return func(c *Client) { c.encoding = enc }
}

// WithIdentifyProperties sets the Identify payload's "properties" object.
func WithIdentifyProperties(props IdentifyProperties) ClientOption {
	return func(c *Client) { c.properties = props }
}

// New constructs a Client. It does not connect anything; call Start for
// that. A nil ctx defaults to context.Background(), matching the teacher's
// New/Start split (client.go).
func New(ctx context.Context, opts ...ClientOption) *Client {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Client{
		ctx:      ctx,
		logger:   NewLogger(),
		compress: true,
		encoding: EncodingJSON,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.emitter == nil {
		c.emitter = NewEmitter(c.logger)
	}
	if c.cache == nil {
		c.cache = NewCacheManager(c.logger)
	}
	if c.properties.Browser == "" {
		c.properties = IdentifyProperties{OS: runtime.GOOS, Browser: "wireclient", Device: "wireclient"}
	}

	c.table = NewBucketTable(c.logger)
	c.rest = NewRESTClient(c.token, c.table, WithRESTLogger(c.logger), WithRESTMetrics(c.metrics))
	return c
}

// REST returns the client's REST dispatcher, for callers using the
// endpoints.go helpers or building their own Route-based calls.
func (c *Client) REST() *RESTClient { return c.rest }

// Emitter returns the client's event bus; subscribe to gateway dispatch
// events with Emitter().On(eventName, handler) before calling Start.
func (c *Client) Emitter() *Emitter { return c.emitter }

// Cache returns the client's CacheManager.
func (c *Client) Cache() *CacheManager { return c.cache }

// Shards returns the live shard sessions, valid after Start has returned
// from its initial connect phase.
func (c *Client) Shards() []*Session {
	if c.shardManager == nil {
		return nil
	}
	return c.shardManager.Sessions()
}

// Start fetches gateway connection info, sizes the shard manager and
// connects every managed shard, blocking until the client's context is
// cancelled.
func (c *Client) Start() error {
	info, err := GetGatewayBot(c.ctx, c.rest)
	if err != nil {
		return err
	}

	totalShards := info.Shards
	if c.shardManagerConfig.TotalShards > 0 {
		totalShards = c.shardManagerConfig.TotalShards
	}

	c.shardManagerConfig.Token = c.token
	c.shardManagerConfig.Intents = c.intents
	c.shardManagerConfig.Compress = c.compress
	c.shardManagerConfig.Encoding = c.encoding
	c.shardManagerConfig.Properties = c.properties
	c.shardManagerConfig.GatewayURL = info.URL
	c.shardManagerConfig.Logger = c.logger
	c.shardManagerConfig.Emitter = c.emitter
	c.shardManagerConfig.Metrics = c.metrics

	c.shardManager = NewShardManager(c.shardManagerConfig)
	if err := c.shardManager.Start(c.ctx, totalShards); err != nil {
		return err
	}

	<-c.ctx.Done()
	c.Shutdown()
	return nil
}

// Shutdown tears down the shard manager; the REST dispatcher is left as is.
// Safe to call more than once.
func (c *Client) Shutdown() {
	c.logger.Info("client shutting down")
	if c.shardManager != nil {
		c.shardManager.Shutdown()
		c.shardManager = nil
	}
}
