// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func newTestRelay(t *testing.T, config Config) *Relay {
	t.Helper()
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return New(config)
}

func TestRelayRequestJSONExample(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{})
	result := relay.RelayRequest(context.Background(), Request{Method: "GET", URL: upstream.URL})

	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if result.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", result.Status)
	}
	if result.Headers["content-type"] != "application/json" {
		t.Errorf("expected content-type application/json, got %q", result.Headers["content-type"])
	}
	if string(result.Body) != `{"ok":true}` {
		t.Errorf("unexpected body %q", result.Body)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if wire["success"] != true {
		t.Errorf("wire success: %v", wire["success"])
	}
	if wire["status"] != float64(200) {
		t.Errorf("wire status: %v", wire["status"])
	}
	if wire["body"] != base64.StdEncoding.EncodeToString([]byte(`{"ok":true}`)) {
		t.Errorf("wire body is not base64 of the response bytes: %v", wire["body"])
	}
	if _, ok := wire["reason"]; ok {
		t.Error("success envelope carries a reason")
	}
}

func TestRelayRequestEmptyBodyEnvelope(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{})
	result := relay.RelayRequest(context.Background(), Request{Method: "DELETE", URL: upstream.URL})
	if !result.Success || result.Status != http.StatusNoContent {
		t.Fatalf("result: %+v", result)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	body, ok := wire["body"]
	if !ok || body != "" {
		t.Errorf("empty response must carry body \"\": %s", encoded)
	}
	if _, ok := wire["headers"].(map[string]any); !ok {
		t.Errorf("success envelope must carry headers: %s", encoded)
	}
	if _, ok := wire["reason"]; ok {
		t.Errorf("success envelope carries a reason: %s", encoded)
	}
}

func TestBufferedResultFailureEnvelope(t *testing.T) {
	encoded, err := json.Marshal(BufferedResult{Success: false, Reason: "connection refused"})
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if string(encoded) != `{"success":false,"reason":"connection refused"}` {
		t.Errorf("failure envelope: %s", encoded)
	}
}

func TestRelayRequestMethodsAndBody(t *testing.T) {
	type seen struct {
		method string
		body   string
		header string
	}
	requests := make(chan seen, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- seen{method: r.Method, body: string(body), header: r.Header.Get("X-Custom-Header")}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{})

	tests := []struct {
		method     string
		body       string
		wantMethod string
		wantBody   string
	}{
		{"GET", "ignored", "GET", ""},
		{"", "ignored", "GET", ""},
		{"post", `{"prompt":"hi"}`, "POST", `{"prompt":"hi"}`},
		{"PUT", "replace", "PUT", "replace"},
		{"DELETE", "", "DELETE", ""},
	}
	for _, test := range tests {
		t.Run(test.wantMethod+"/"+test.method, func(t *testing.T) {
			result := relay.RelayRequest(context.Background(), Request{
				Method:  test.method,
				URL:     upstream.URL + "/v1/resource",
				Headers: map[string]string{"x-custom-header": "custom-value"},
				Body:    []byte(test.body),
			})
			if !result.Success {
				t.Fatalf("relay failed: %s", result.Reason)
			}
			if result.Status != http.StatusNoContent {
				t.Errorf("status: got %d, want 204", result.Status)
			}
			got := <-requests
			if got.method != test.wantMethod {
				t.Errorf("method: got %q, want %q", got.method, test.wantMethod)
			}
			if got.body != test.wantBody {
				t.Errorf("body: got %q, want %q", got.body, test.wantBody)
			}
			if got.header != "custom-value" {
				t.Errorf("custom header not forwarded: %q", got.header)
			}
		})
	}
}

func TestRelayRequestRejectsBeforeNetwork(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{})

	tests := []struct {
		name     string
		request  Request
		wantKind Kind
	}{
		{"control character in header name", Request{URL: upstream.URL, Headers: map[string]string{"x-bad\x07": "v"}}, KindHeader},
		{"control character in header value", Request{URL: upstream.URL, Headers: map[string]string{"x-bad": "a\nb"}}, KindHeader},
		{"unsupported method", Request{Method: "PATCH", URL: upstream.URL}, KindMethod},
		{"malformed url", Request{URL: "http://[::1"}, KindURL},
		{"relative url", Request{URL: "/just/a/path"}, KindURL},
		{"non-http scheme", Request{URL: "file:///etc/passwd"}, KindURL},
		{"missing host", Request{URL: "http://"}, KindURL},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := relay.Do(context.Background(), test.request)
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := KindOf(err); kind != test.wantKind {
				t.Errorf("kind: got %q, want %q (%v)", kind, test.wantKind, err)
			}

			result := relay.RelayRequest(context.Background(), test.request)
			if result.Success {
				t.Fatal("expected failure envelope")
			}
			if result.Reason == "" {
				t.Error("failure envelope has no reason")
			}
		})
	}

	if got := hits.Load(); got != 0 {
		t.Fatalf("upstream received %d requests; invalid requests must not reach the network", got)
	}
}

func TestRelayRequestConnectionFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	address := upstream.URL
	upstream.Close()

	relay := newTestRelay(t, Config{})
	_, err := relay.Do(context.Background(), Request{URL: address})
	if KindOf(err) != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestRelayRequestTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{RequestTimeout: 100 * time.Millisecond})

	startTime := time.Now()
	result := relay.RelayRequest(context.Background(), Request{URL: upstream.URL})
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Reason, string(KindTimeout)) {
		t.Errorf("reason should identify a timeout: %q", result.Reason)
	}
	if elapsed := time.Since(startTime); elapsed > 10*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestRelayRequestTimeoutDuringBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{})
	_, err := relay.Do(context.Background(), Request{URL: upstream.URL, Timeout: 100 * time.Millisecond})
	if KindOf(err) != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestRelayRequestCallerCancel(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := relay.Do(ctx, Request{URL: upstream.URL})
	if KindOf(err) != KindCanceled {
		t.Fatalf("expected canceled error, got %v", err)
	}
}

func TestRelayRequestResponseSizeLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 1024))
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{MaxResponseSize: 1023})
	if _, err := relay.Do(context.Background(), Request{URL: upstream.URL}); err == nil {
		t.Fatal("expected error for oversized body")
	}

	relay = newTestRelay(t, Config{MaxResponseSize: 1024})
	response, err := relay.Do(context.Background(), Request{URL: upstream.URL})
	if err != nil {
		t.Fatalf("body at the limit should succeed: %v", err)
	}
	if len(response.Body) != 1024 {
		t.Errorf("got %d bytes, want 1024", len(response.Body))
	}
}

func TestRelayRequestForwardsHostAndDropsHopByHop(t *testing.T) {
	type seen struct {
		host      string
		upgrade   string
		keepAlive string
	}
	requests := make(chan seen, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- seen{host: r.Host, upgrade: r.Header.Get("Upgrade"), keepAlive: r.Header.Get("Keep-Alive")}
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{})
	result := relay.RelayRequest(context.Background(), Request{
		URL: upstream.URL,
		Headers: map[string]string{
			"host":       "api.example.test",
			"upgrade":    "websocket",
			"keep-alive": "timeout=5",
		},
	})
	if !result.Success {
		t.Fatalf("relay failed: %s", result.Reason)
	}
	got := <-requests
	if got.host != "api.example.test" {
		t.Errorf("host: got %q", got.host)
	}
	if got.upgrade != "" || got.keepAlive != "" {
		t.Errorf("hop-by-hop headers forwarded: %+v", got)
	}
}

func TestRelayRequestInvalidUTF8ResponseHeader(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["X-Filename"] = []string{"report-\xff.txt"}
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{})
	result := relay.RelayRequest(context.Background(), Request{URL: upstream.URL})
	if !result.Success {
		t.Fatalf("relay failed: %s", result.Reason)
	}
	if result.Headers["x-filename"] != "report-\uFFFD.txt" {
		t.Errorf("x-filename: got %q", result.Headers["x-filename"])
	}
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buffer.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil)
}

func TestRelayRequestContentDecoding(t *testing.T) {
	plain := []byte(strings.Repeat(`{"token":"hello"}`, 200))

	tests := []struct {
		name     string
		encoding string
		encoded  []byte
	}{
		{"gzip", "gzip", gzipBytes(t, plain)},
		{"zstd", "zstd", zstdBytes(t, plain)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", test.encoding)
				w.Header().Set("Content-Type", "application/json")
				w.Write(test.encoded)
			}))
			defer upstream.Close()

			// An explicit Accept-Encoding disables the transport's own
			// transparent gzip handling, as a frontend-supplied header would.
			request := Request{URL: upstream.URL, Headers: map[string]string{"accept-encoding": test.encoding}}

			relay := newTestRelay(t, Config{})
			response, err := relay.Do(context.Background(), request)
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			if !bytes.Equal(response.Body, plain) {
				t.Errorf("body was not decoded: got %d bytes", len(response.Body))
			}
			if _, ok := response.Headers["content-encoding"]; ok {
				t.Error("content-encoding header kept after decoding")
			}
			if response.Headers["content-type"] != "application/json" {
				t.Errorf("content-type lost: %v", response.Headers)
			}

			raw := newTestRelay(t, Config{DisableContentDecoding: true})
			response, err = raw.Do(context.Background(), request)
			if err != nil {
				t.Fatalf("Do without decoding: %v", err)
			}
			if !bytes.Equal(response.Body, test.encoded) {
				t.Error("body was decoded although decoding is disabled")
			}
			if response.Headers["content-encoding"] != test.encoding {
				t.Errorf("content-encoding: got %q", response.Headers["content-encoding"])
			}
		})
	}
}

func TestRelayRequestCorruptContentEncoding(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write([]byte("definitely not gzip"))
	}))
	defer upstream.Close()

	relay := newTestRelay(t, Config{})
	_, err := relay.Do(context.Background(), Request{URL: upstream.URL, Headers: map[string]string{"accept-encoding": "gzip"}})
	if KindOf(err) != KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDecodeBody(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10, 'a'}
	encoded := base64.StdEncoding.EncodeToString(payload)

	body, err := DecodeBody("POST", encoded)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Errorf("got %v, want %v", body, payload)
	}

	if body, err := DecodeBody("GET", "not base64 but ignored"); err != nil || body != nil {
		t.Errorf("GET: got (%v, %v), want (nil, nil)", body, err)
	}
	if body, err := DecodeBody("PUT", ""); err != nil || body != nil {
		t.Errorf("empty: got (%v, %v), want (nil, nil)", body, err)
	}

	_, err = DecodeBody("POST", "%%%not-base64")
	var relayErr *Error
	if !errors.As(err, &relayErr) || relayErr.Kind != KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}
