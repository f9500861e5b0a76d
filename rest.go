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
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// APIVersion is the templated API version segment used to build BaseURL.
const APIVersion = "v10"

// DefaultUserAgent identifies this library on the wire.
const DefaultUserAgent = "DiscordBot (https://github.com/nolan-vance/wireclient, 0.1.0)"

const headerAuditReason = "X-Audit-Log-Reason"

// MultipartFile is one uploaded file in a multipart request body.
type MultipartFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// MultipartBody is the "data=<multipart>" body polymorphism variant (spec
// §4.4): a JSON side-payload goes under the "payload_json" field, and every
// file becomes a sequentially numbered "files[n]" field.
type MultipartBody struct {
	JSON  any
	Files []MultipartFile
}

// NewMultipartFromNamed builds a MultipartBody from a filename->bytes
// mapping by assigning each entry the next sequential field index in map
// iteration order.
func NewMultipartFromNamed(json any, named map[string][]byte) MultipartBody {
	body := MultipartBody{JSON: json}
	for name, data := range named {
		body.Files = append(body.Files, MultipartFile{Name: name, Data: data})
	}
	return body
}

// RequestOptions configures a single RESTClient.Do call.
type RequestOptions struct {
	Query     url.Values
	JSON      any
	Multipart *MultipartBody
	Reason    string
	Raw       bool
}

// Response is the outcome of a REST call. Body holds the raw response bytes
// for every returned status except 204/304, where it is empty; callers that
// want JSON decode it through DecodeJSON. RequestOptions.Raw does not change
// what Do returns.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// DecodeJSON unmarshals Body into v using the same codec the gateway frame
// decoder uses (sonic), keeping one JSON library across the whole core.
func (r *Response) DecodeJSON(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(r.Body, v); err != nil {
		return &CodecError{Encoding: "json", Err: err}
	}
	return nil
}

// RESTClient is the REST dispatcher: it binds the rate-limit middleware and
// a base http.Client, builds requests from Routes, and maps HTTP status to
// the typed errors in errors.go, exposing one externally-visible Do
// operation.
type RESTClient struct {
	httpClient *http.Client
	table      *BucketTable
	baseURL    string
	token      string
	userAgent  string
	logger     Logger
	maxRetries uint
}

// RESTClientOption configures a RESTClient at construction.
type RESTClientOption func(*RESTClient)

// WithHTTPTransport overrides the base (non-rate-limiting) transport, e.g.
// to inject a custom proxy or TLS config.
func WithHTTPTransport(rt http.RoundTripper) RESTClientOption {
	return func(c *RESTClient) {
		if rlt, ok := c.httpClient.Transport.(*RateLimitTransport); ok {
			rlt.Next = rt
			return
		}
		c.httpClient.Transport = rt
	}
}

// WithBaseURL overrides the REST base URL (default
// "https://discord.com/api/v10"); useful for pointing at a test server.
func WithBaseURL(u string) RESTClientOption {
	return func(c *RESTClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) RESTClientOption {
	return func(c *RESTClient) { c.userAgent = ua }
}

// WithRESTLogger overrides the default logger.
func WithRESTLogger(logger Logger) RESTClientOption {
	return func(c *RESTClient) { c.logger = logger }
}

// WithRESTMetrics attaches optional prometheus instrumentation to the
// client's rate-limit transport.
func WithRESTMetrics(m *Metrics) RESTClientOption {
	return func(c *RESTClient) {
		if rlt, ok := c.httpClient.Transport.(*RateLimitTransport); ok {
			rlt.WithMetrics(m)
		}
	}
}

// NewRESTClient constructs a RESTClient. token is the bare bot token; the
// "Bot " prefix is enforced by Do regardless of what the caller passes
//.
func NewRESTClient(token string, table *BucketTable, opts ...RESTClientOption) *RESTClient {
	if table == nil {
		table = NewBucketTable(nil)
	}
	c := &RESTClient{
		table:      table,
		baseURL:    "https://discord.com/api/" + APIVersion,
		token:      strings.TrimPrefix(token, "Bot "),
		userAgent:  DefaultUserAgent,
		logger:     NewDebugLogger(),
		maxRetries: 0, // unbounded: avast/retry-go/v4 treats Attempts(0) as no cap
	}
	c.httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: NewRateLimitTransport(&http.Transport{
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     120 * time.Second,
			ForceAttemptHTTP2:   true,
		}, table, c.logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sentinelTooManyRequests makes a 429 observable to retry-go's RetryIf
// without allocating a new error type per call.
type sentinelTooManyRequests struct{}

func (sentinelTooManyRequests) Error() string { return "429 too many requests" }

// Do sends a single REST request described by route and opts, retrying
// transparently on 429. Every call builds a fresh rlContext carrying the
// route's rate-limit key and a random 6-character trace id for log/error
// correlation.
func (c *RESTClient) Do(ctx context.Context, route Route, opts RequestOptions) (*Response, error) {
	trace := shortTrace()
	var result *Response

	err := retry.Do(
		func() error {
			resp, err := c.doOnce(ctx, route, opts, trace)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if resp.Status == http.StatusTooManyRequests {
				c.logger.WithField("trace", trace).WithField("route", route.RateLimitKey()).
					Debug("429 received, retrying (rate-limit middleware already arranged the wait)")
				return sentinelTooManyRequests{}
			}
			result = resp
			return nil
		},
		retry.Attempts(c.maxRetries),
		retry.Delay(0),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			_, is429 := err.(sentinelTooManyRequests)
			return is429
		}),
	)
	if err != nil {
		if _, is429 := err.(sentinelTooManyRequests); is429 {
			return nil, ErrMaxRetriesExceeded
		}
		return nil, err
	}
	return c.classify(result, route, trace)
}

// doOnce performs exactly one HTTP round trip and returns the raw response,
// without status classification (that happens in classify so a caller
// retrying on 429 doesn't pay for an error allocation each time).
func (c *RESTClient) doOnce(ctx context.Context, route Route, opts RequestOptions, trace string) (*Response, error) {
	path, err := route.FormattedPath()
	if err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	if len(opts.Query) > 0 {
		reqURL += "?" + opts.Query.Encode()
	}

	var bodyReader io.Reader
	var contentType string

	switch {
	case opts.Multipart != nil:
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		if opts.Multipart.JSON != nil {
			payload, err := sonic.Marshal(opts.Multipart.JSON)
			if err != nil {
				return nil, &CodecError{Encoding: "json", Err: err}
			}
			if err := mw.WriteField("payload_json", string(payload)); err != nil {
				return nil, &TransportError{Op: "multipart payload_json", Err: err}
			}
		}
		for i, f := range opts.Multipart.Files {
			fw, err := mw.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Name)
			if err != nil {
				return nil, &TransportError{Op: "multipart file field", Err: err}
			}
			if _, err := fw.Write(f.Data); err != nil {
				return nil, &TransportError{Op: "multipart file write", Err: err}
			}
		}
		if err := mw.Close(); err != nil {
			return nil, &TransportError{Op: "multipart close", Err: err}
		}
		bodyReader = buf
		contentType = mw.FormDataContentType()

	case opts.JSON != nil:
		payload, err := sonic.Marshal(opts.JSON)
		if err != nil {
			return nil, &CodecError{Encoding: "json", Err: err}
		}
		bodyReader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, route.Verb, reqURL, bodyReader)
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	req = req.WithContext(withRLContext(req.Context(), route.RateLimitKey(), trace))

	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if opts.Reason != "" {
		req.Header.Set(headerAuditReason, opts.Reason)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "do", Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read body", Err: err}
	}

	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// classify maps a terminal (non-429) HTTP status to a typed outcome.
func (c *RESTClient) classify(resp *Response, route Route, trace string) (*Response, error) {
	switch {
	case resp.Status == http.StatusNoContent || resp.Status == http.StatusNotModified:
		return &Response{Status: resp.Status, Header: resp.Header}, nil

	case resp.Status >= 200 && resp.Status < 300:
		return resp, nil

	case resp.Status == 400, resp.Status == 401, resp.Status == 403, resp.Status == 404, resp.Status == 405:
		return nil, &HTTPStatusError{Status: resp.Status, Trace: trace, Body: resp.Body}

	case resp.Status >= 500:
		return nil, &HTTPStatusError{Status: resp.Status, Trace: trace}

	default:
		return resp, nil
	}
}

// shortTrace generates a 6-character alphanumeric trace id derived from a
// uuid, so request correlation ids come from a real id-gen library rather
// than a hand-rolled charset RNG.
func shortTrace() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
