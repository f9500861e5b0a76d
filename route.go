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
	"fmt"
	"strconv"
	"strings"
)

// majorParamOrder fixes which placeholder wins when more than one major
// parameter is present in a route.
var majorParamOrder = []string{"guild_id", "channel_id", "webhook_id"}

// Route identifies a REST endpoint: an HTTP verb, a templated path with
// named "%{placeholder}" segments, and the concrete params that fill them.
// It is immutable once built; two Routes are equal iff verb, template,
// params and BucketSuffix all equal (see Equal).
//
// Deriving the bucket route by regex-stripping snowflakes out of a
// formatted path after the fact loses the distinction between "no param at
// this position" and "param happened to look like a path segment". Route
// instead carries the template and params explicitly so rate_limit_key is
// computed from the template, never the formatted path.
type Route struct {
	Verb         string
	PathTemplate string
	Params       map[string]string

	// BucketSuffix further splits the rate-limit key for two requests that
	// share a verb, template and major param but which Discord nonetheless
	// quotas separately — e.g. deleting a message older than 14 days draws
	// from a distinct bucket than deleting a recent one. It has no effect on FormattedPath.
	BucketSuffix string
}

// NewRoute builds a Route, upper-casing verb. params values must already be
// strings; ParamValue converts typed ids when building the map.
func NewRoute(verb, pathTemplate string, params map[string]string) Route {
	return Route{Verb: strings.ToUpper(verb), PathTemplate: pathTemplate, Params: params}
}

// ParamValue stringifies a route parameter. Exported so endpoint helpers
// (endpoints.go) can build the params map from typed ids without repeating
// strconv calls.
func ParamValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case Snowflake:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// FormattedPath substitutes Params into PathTemplate, returning a
// RouteError if a placeholder has no matching param.
func (r Route) FormattedPath() (string, error) {
	var b strings.Builder
	rest := r.PathTemplate
	for {
		start := strings.Index(rest, "%{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return "", &RouteError{Template: r.PathTemplate, Reason: "unterminated placeholder"}
		}
		end += start
		name := rest[start+2 : end]
		val, ok := r.Params[name]
		if !ok {
			return "", &RouteError{Template: r.PathTemplate, Reason: "missing substitution for " + name}
		}
		b.WriteString(rest[:start])
		b.WriteString(val)
		rest = rest[end+1:]
	}
	return b.String(), nil
}

// MajorParam returns the first present major parameter, in the fixed order
// guild_id, channel_id, webhook_id, or "" if none apply
// to this route.
func (r Route) MajorParam() string {
	for _, name := range majorParamOrder {
		if v, ok := r.Params[name]; ok {
			return v
		}
	}
	return ""
}

// RateLimitKey is the coordination key the middleware (C3) and bucket table
// (C2) use: "<lowercase verb>:<template>:<major param or empty>", with
// ":<BucketSuffix>" appended when BucketSuffix is set. It is
// built from the template, not the formatted path, so two requests to the
// same endpoint template collapse into one key unless their major
// parameter differs.
func (r Route) RateLimitKey() string {
	key := strings.ToLower(r.Verb) + ":" + r.PathTemplate + ":" + r.MajorParam()
	if r.BucketSuffix != "" {
		key += ":" + r.BucketSuffix
	}
	return key
}

// Equal reports whether two routes have the same verb, template, params and
// bucket suffix.
func (r Route) Equal(other Route) bool {
	if r.Verb != other.Verb || r.PathTemplate != other.PathTemplate || r.BucketSuffix != other.BucketSuffix {
		return false
	}
	if len(r.Params) != len(other.Params) {
		return false
	}
	for k, v := range r.Params {
		if other.Params[k] != v {
			return false
		}
	}
	return true
}
