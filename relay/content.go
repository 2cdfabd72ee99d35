// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decodeContent replaces response.Body with a decoding reader when the
// response carries a single supported Content-Encoding. Stacked or
// unknown encodings are left untouched.
func decodeContent(response *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(response.Header.Get("Content-Encoding")))

	var decoder io.ReadCloser
	switch encoding {
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(response.Body)
		if errors.Is(err, io.EOF) {
			// Empty body (HEAD-like or 204): nothing to decode.
			break
		}
		if err != nil {
			return fmt.Errorf("reading gzip header: %w", err)
		}
		decoder = reader
	case "deflate":
		reader, err := zlib.NewReader(response.Body)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading zlib header: %w", err)
		}
		decoder = reader
	case "zstd":
		reader, err := zstd.NewReader(response.Body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return fmt.Errorf("creating zstd decoder: %w", err)
		}
		decoder = reader.IOReadCloser()
	default:
		return nil
	}

	if decoder == nil {
		decoder = io.NopCloser(strings.NewReader(""))
	}
	response.Body = &decodedBody{decoder: decoder, source: response.Body}
	response.Header.Del("Content-Encoding")
	response.Header.Del("Content-Length")
	response.ContentLength = -1
	response.Uncompressed = true
	return nil
}

// decodedBody reads through a decoder and closes both the decoder and
// the underlying connection body.
type decodedBody struct {
	decoder io.ReadCloser
	source  io.ReadCloser
}

func (b *decodedBody) Read(p []byte) (int, error) {
	return b.decoder.Read(p)
}

func (b *decodedBody) Close() error {
	b.decoder.Close()
	return b.source.Close()
}
