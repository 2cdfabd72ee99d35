// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nativebridge/nativebridge/lib/headers"
	"github.com/nativebridge/nativebridge/lib/netutil"
)

const (
	// DefaultRequestTimeout bounds a buffered relay call.
	DefaultRequestTimeout = 120 * time.Second

	// DefaultStreamTimeout bounds a streaming session, including the
	// time the consumer takes to drain events.
	DefaultStreamTimeout = 240 * time.Second

	// chunkSize is the read buffer for streaming sessions. Small enough
	// that token-by-token LLM output is forwarded promptly.
	chunkSize = 4096

	// sessionBuffer is the capacity of a session's event channel.
	sessionBuffer = 16
)

// Config holds configuration for creating a Relay.
type Config struct {
	// Client performs the outbound calls. If nil, NewClient() is used.
	// The client must not impose its own overall timeout: streaming
	// sessions are long-lived and the relay applies deadlines itself.
	Client *http.Client

	// RequestTimeout overrides DefaultRequestTimeout when positive.
	RequestTimeout time.Duration

	// StreamTimeout overrides DefaultStreamTimeout when positive.
	StreamTimeout time.Duration

	// MaxResponseSize bounds buffered response bodies. Defaults to
	// netutil.MaxResponseSize.
	MaxResponseSize int64

	// DisableContentDecoding passes gzip/deflate/zstd bodies through
	// without decoding them.
	DisableContentDecoding bool

	// Logger for request logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Relay performs buffered and streaming relay calls. A Relay is safe for
// concurrent use; the only shared mutable state is the table of active
// streaming sessions.
type Relay struct {
	client          *http.Client
	requestTimeout  time.Duration
	streamTimeout   time.Duration
	maxResponseSize int64
	decodeContent   bool
	logger          *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a Relay.
func New(config Config) *Relay {
	relay := &Relay{
		client:          config.Client,
		requestTimeout:  config.RequestTimeout,
		streamTimeout:   config.StreamTimeout,
		maxResponseSize: config.MaxResponseSize,
		decodeContent:   !config.DisableContentDecoding,
		logger:          config.Logger,
		sessions:        make(map[string]*Session),
	}
	if relay.client == nil {
		relay.client = NewClient()
	}
	if relay.requestTimeout <= 0 {
		relay.requestTimeout = DefaultRequestTimeout
	}
	if relay.streamTimeout <= 0 {
		relay.streamTimeout = DefaultStreamTimeout
	}
	if relay.maxResponseSize <= 0 {
		relay.maxResponseSize = netutil.MaxResponseSize
	}
	if relay.logger == nil {
		relay.logger = slog.Default()
	}
	return relay
}

// NewClient returns the pooled HTTP client shared by all relay calls. It
// honors the HTTP(S)_PROXY environment variables and follows redirects,
// and has no overall timeout.
func NewClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport}
}

// dispatch builds and sends the outbound request and returns the
// response with its body ready for consumption (content-decoded if
// enabled). The caller closes the body.
func (r *Relay) dispatch(ctx context.Context, request Request) (*http.Response, error) {
	outbound, err := r.newRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	response, err := r.client.Do(outbound)
	if err != nil {
		return nil, classify(ctx, err)
	}

	if r.decodeContent {
		if err := decodeContent(response); err != nil {
			response.Body.Close()
			return nil, &Error{Kind: KindDecode, Err: err}
		}
	}
	return response, nil
}

// newRequest validates the request description and converts it into an
// *http.Request. Nothing touches the network until every part is valid.
func (r *Relay) newRequest(ctx context.Context, request Request) (*http.Request, error) {
	method, err := normalizeMethod(request.Method)
	if err != nil {
		return nil, err
	}

	wire, err := headers.ToWire(request.Headers)
	if err != nil {
		return nil, &Error{Kind: KindHeader, Err: err}
	}

	target, err := url.Parse(request.URL)
	if err != nil {
		return nil, &Error{Kind: KindURL, Err: err}
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, &Error{Kind: KindURL, Err: fmt.Errorf("unsupported scheme %q in %q", target.Scheme, request.URL)}
	}
	if target.Host == "" {
		return nil, &Error{Kind: KindURL, Err: fmt.Errorf("missing host in %q", request.URL)}
	}

	var outbound *http.Request
	if method != http.MethodGet && len(request.Body) > 0 {
		outbound, err = http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(request.Body))
	} else {
		outbound, err = http.NewRequestWithContext(ctx, method, target.String(), nil)
	}
	if err != nil {
		return nil, &Error{Kind: KindURL, Err: err}
	}

	for key, values := range wire {
		// The transport owns connection management.
		if isHopByHopHeader(key) {
			continue
		}
		if strings.EqualFold(key, "Host") {
			outbound.Host = values[len(values)-1]
			continue
		}
		outbound.Header[key] = values
	}
	return outbound, nil
}

// normalizeMethod upper-cases method and checks it against the supported
// set.
func normalizeMethod(method string) (string, error) {
	if method == "" {
		return http.MethodGet, nil
	}
	switch upper := strings.ToUpper(method); upper {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return upper, nil
	}
	return "", &Error{Kind: KindMethod, Err: fmt.Errorf("unsupported method %q", method)}
}

// hopByHopHeaders are connection-scoped and never forwarded.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"proxy-connection":    true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

func isHopByHopHeader(name string) bool {
	return hopByHopHeaders[strings.ToLower(name)]
}

// logTarget returns the host and path of rawURL for logging. Query
// strings often carry API keys and are dropped.
func logTarget(rawURL string) string {
	target, err := url.Parse(rawURL)
	if err != nil {
		return "(invalid)"
	}
	return target.Host + target.Path
}
