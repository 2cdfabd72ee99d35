// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package boundary

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nativebridge/nativebridge/lib/codec"
)

// FrameType tags a frame.
type FrameType string

const (
	// FrameInvoke is sent by the frontend to run a command.
	FrameInvoke FrameType = "invoke"

	// FrameResult answers one invoke frame, matched by ID.
	FrameResult FrameType = "result"

	// FrameEvent is an unsolicited broadcast from the native side.
	FrameEvent FrameType = "event"
)

// Frame is the unit exchanged on a connection. The same struct is
// encoded as JSON or CBOR; fields not relevant to Type are omitted.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload any             `json:"payload,omitempty"`
}

// frameCodec reads and writes frames on one connection. Reads happen
// from a single goroutine; writes are serialized by the caller.
type frameCodec interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
}

// jsonCodec exchanges newline-delimited JSON frames. Each line is
// decoded on its own, so a malformed line costs that frame only.
type jsonCodec struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	encoder *json.Encoder
}

func newJSONCodec(r io.Reader, w io.Writer) *jsonCodec {
	writer := bufio.NewWriter(w)
	encoder := json.NewEncoder(writer)
	encoder.SetEscapeHTML(false)
	return &jsonCodec{
		reader:  bufio.NewReader(r),
		writer:  writer,
		encoder: encoder,
	}
}

func (c *jsonCodec) ReadFrame() (Frame, error) {
	for {
		line, err := c.reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) == 0 {
			if err != nil {
				return Frame{}, err
			}
			continue
		}

		// A final line without a newline is still a frame; the next
		// call reports the EOF.
		var frame Frame
		if decodeErr := json.Unmarshal(line, &frame); decodeErr != nil {
			// After a type error the fields that did decode are kept,
			// so the id may still be known.
			return Frame{}, &frameError{ID: frame.ID, Err: decodeErr}
		}
		return frame, nil
	}
}

func (c *jsonCodec) WriteFrame(frame Frame) error {
	if err := c.encoder.Encode(frame); err != nil {
		return err
	}
	return c.writer.Flush()
}

// cborFrame is the inbound shape on the socket transport. Args arrive
// as an arbitrary CBOR value and are converted to JSON for the command.
type cborFrame struct {
	Type    FrameType        `json:"type"`
	ID      string           `json:"id,omitempty"`
	Command string           `json:"command,omitempty"`
	Args    codec.RawMessage `json:"args,omitempty"`
}

// cborCodec exchanges self-delimiting CBOR frames.
type cborCodec struct {
	decoder *codec.Decoder
	encoder *codec.Encoder
}

func newCBORCodec(rw io.ReadWriter) *cborCodec {
	return &cborCodec{
		decoder: codec.NewDecoder(rw),
		encoder: codec.NewEncoder(rw),
	}
}

func (c *cborCodec) ReadFrame() (Frame, error) {
	var inbound cborFrame
	if err := c.decoder.Decode(&inbound); err != nil {
		return Frame{}, err
	}
	args, err := codec.ToJSON(inbound.Args)
	if err != nil {
		return Frame{}, &frameError{ID: inbound.ID, Err: fmt.Errorf("args: %w", err)}
	}
	return Frame{
		Type:    inbound.Type,
		ID:      inbound.ID,
		Command: inbound.Command,
		Args:    args,
	}, nil
}

func (c *cborCodec) WriteFrame(frame Frame) error {
	// Args never travel outbound, and json.RawMessage would otherwise
	// be written as a byte string.
	frame.Args = nil
	return c.encoder.Encode(frame)
}

// frameError is a decodable frame whose contents are unusable. The
// connection stays open and the frontend receives an error result.
type frameError struct {
	ID  string
	Err error
}

func (e *frameError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", e.ID, e.Err)
}

func (e *frameError) Unwrap() error {
	return e.Err
}
