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
	"strconv"
	"time"
)

// discordEpochMillis is the platform's snowflake epoch (2015-01-01T00:00:00Z
// in Discord's case); kept as an unexported constant since the platform is
// treated as a black box beyond its wire contract.
const discordEpochMillis int64 = 1420070400000

// Snowflake is a 64-bit platform id that embeds a creation timestamp in its
// high bits. It is the one domain primitive the core needs directly: the
// major-parameter routing (route.go) and the old-message-delete bucket
// split (endpoints.go) both branch on snowflake values, not on full domain
// objects, which is why it lives here rather than in a dropped domain
// package (see DESIGN.md).
type Snowflake uint64

// ParseSnowflake parses a decimal snowflake string.
func ParseSnowflake(s string) (Snowflake, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return Snowflake(v), err
}

// String renders the snowflake in decimal, as it appears on the wire.
func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// Timestamp returns the instant this id was minted.
func (s Snowflake) Timestamp() time.Time {
	millis := int64(s>>22) + discordEpochMillis
	return time.UnixMilli(millis)
}
