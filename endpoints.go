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
	"time"
)

// This file wires a handful of REST endpoints through RESTClient.Do purely
// to exercise the Route/body/multipart contract end to end; it is
// intentionally non-exhaustive, since full domain object modelling of the
// Discord REST surface is out of scope for this core.

// GatewaySessionStartLimit mirrors GET /gateway/bot's session_start_limit
// object. Client.Start does not read it; each shard's Identify limiter is
// fixed at one Identify per 5 seconds.
type GatewaySessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"`
	MaxConcurrency int `json:"max_concurrency"`
}

// GatewayBotInfo is the decoded response of GET /gateway/bot.
type GatewayBotInfo struct {
	URL               string                   `json:"url"`
	Shards            int                      `json:"shards"`
	SessionStartLimit GatewaySessionStartLimit `json:"session_start_limit"`
}

// GetGateway calls GET /gateway, the unauthenticated endpoint returning the
// plain WSS connection URL.
func GetGateway(ctx context.Context, c *RESTClient) (string, error) {
	route := NewRoute("GET", "/gateway", nil)
	resp, err := c.Do(ctx, route, RequestOptions{})
	if err != nil {
		return "", err
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// GetGatewayBot calls GET /gateway/bot, the authenticated endpoint that also
// returns the recommended shard count (used by Client.Start to size its
// ShardManager) and the session-start-limit quota.
func GetGatewayBot(ctx context.Context, c *RESTClient) (*GatewayBotInfo, error) {
	route := NewRoute("GET", "/gateway/bot", nil)
	resp, err := c.Do(ctx, route, RequestOptions{})
	if err != nil {
		return nil, err
	}
	var out GatewayBotInfo
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetChannel calls GET /channels/{channel_id} and returns the raw decoded
// body, left as a map since channel object modelling is out of scope.
func GetChannel(ctx context.Context, c *RESTClient, channelID Snowflake) (map[string]any, error) {
	route := NewRoute("GET", "/channels/%{channel_id}", map[string]string{"channel_id": channelID.String()})
	resp, err := c.Do(ctx, route, RequestOptions{})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMessage calls POST /channels/{channel_id}/messages with a JSON body,
// exercising the JSON half of RequestOptions.
func CreateMessage(ctx context.Context, c *RESTClient, channelID Snowflake, body any) (map[string]any, error) {
	route := NewRoute("POST", "/channels/%{channel_id}/messages", map[string]string{"channel_id": channelID.String()})
	resp, err := c.Do(ctx, route, RequestOptions{JSON: body})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMessageMultipart calls the same endpoint with one or more file
// attachments, exercising the multipart half of RequestOptions.
func CreateMessageMultipart(ctx context.Context, c *RESTClient, channelID Snowflake, body MultipartBody) (map[string]any, error) {
	route := NewRoute("POST", "/channels/%{channel_id}/messages", map[string]string{"channel_id": channelID.String()})
	resp, err := c.Do(ctx, route, RequestOptions{Multipart: &body})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// deleteMessageOldAgeThreshold is the age past which Discord buckets a
// message delete separately.
const deleteMessageOldAgeThreshold = 14 * 24 * time.Hour

// DeleteMessage calls DELETE /channels/{channel_id}/messages/{message_id}.
// A message older than deleteMessageOldAgeThreshold gets a distinct
// BucketSuffix so the BucketTable quotas it separately from fresh deletes,
// even though both share the same HTTP path template.
func DeleteMessage(ctx context.Context, c *RESTClient, channelID, messageID Snowflake) error {
	route := NewRoute("DELETE", "/channels/%{channel_id}/messages/%{message_id}", map[string]string{
		"channel_id": channelID.String(),
		"message_id": messageID.String(),
	})
	if time.Since(messageID.Timestamp()) > deleteMessageOldAgeThreshold {
		route.BucketSuffix = "old"
	}
	_, err := c.Do(ctx, route, RequestOptions{})
	return err
}
