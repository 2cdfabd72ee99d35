// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/nativebridge/nativebridge/lib/headers"
)

// ErrSessionActive is returned by Open when the id names a session that
// is still running.
var ErrSessionActive = errors.New("relay: session id already active")

// Session is one in-flight streaming relay call. The relay goroutine owns
// the producer end of the event channel; the caller owns the consumer end
// and must drain Events until it is closed (or Cancel the session).
type Session struct {
	id     string
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// ID returns the caller-chosen session id carried by every event.
func (s *Session) ID() string { return s.id }

// Events returns the session's event channel. It is closed after the
// last event: after EventEnd on success, or after whatever was emitted
// before a failure.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when the session has finished and Wait will not block.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session finishes and returns its outcome. A nil
// error means EventEnd was emitted.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Cancel abandons the session. The outbound request is aborted and Wait
// returns a KindCanceled error unless the session had already finished.
func (s *Session) Cancel() { s.cancel() }

// emit delivers event to the consumer, giving up when ctx ends so that
// a consumer that stops reading cannot pin the session past its
// deadline.
func (s *Session) emit(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return classify(ctx, ctx.Err())
	}
}

// Open starts a streaming session for request under id and returns
// immediately. ids must be unique among active sessions; reusing the id
// of a finished session is fine.
func (r *Relay) Open(ctx context.Context, id string, request Request) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("relay: session id is required")
	}

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = r.streamTimeout
	}
	sessionContext, cancel := context.WithTimeout(ctx, timeout)

	session := &Session{
		id:     id,
		events: make(chan Event, sessionBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: %q", ErrSessionActive, id)
	}
	r.sessions[id] = session
	r.mu.Unlock()

	go func() {
		err := r.runSession(sessionContext, session, request)
		cancel()

		r.mu.Lock()
		if r.sessions[id] == session {
			delete(r.sessions, id)
		}
		r.mu.Unlock()

		session.err = err
		close(session.events)
		close(session.done)
	}()

	return session, nil
}

// Cancel cancels the active session with the given id. Returns false if
// no such session is running.
func (r *Relay) Cancel(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	r.mu.Unlock()

	if ok {
		session.Cancel()
		r.logger.Info("relay stream cancelled", "session_id", id)
	}
	return ok
}

// ActiveSessions returns the ids of running sessions, sorted.
func (r *Relay) ActiveSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// runSession is the producer: dispatch, one headers event, chunk events
// in read order, end event.
func (r *Relay) runSession(ctx context.Context, session *Session, request Request) error {
	startTime := time.Now()
	logger := r.logger.With("session_id", session.id, "target", logTarget(request.URL))

	response, err := r.dispatch(ctx, request)
	if err != nil {
		logger.Warn("relay stream failed", "error", err, "duration", time.Since(startTime))
		return err
	}
	defer response.Body.Close()

	if err := session.emit(ctx, Event{
		Type:    EventHeaders,
		ID:      session.id,
		Status:  response.StatusCode,
		Headers: headers.ToMapping(response.Header),
	}); err != nil {
		logger.Warn("relay stream abandoned before headers", "error", err)
		return err
	}

	buffer := make([]byte, chunkSize)
	var totalBytes int64
	var chunks int
	for {
		n, readErr := response.Body.Read(buffer)
		if n > 0 {
			// The buffer is reused; each event owns its bytes.
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			if err := session.emit(ctx, Event{Type: EventChunk, ID: session.id, Body: chunk}); err != nil {
				logger.Warn("relay stream abandoned",
					"error", err,
					"bytes", totalBytes,
					"duration", time.Since(startTime),
				)
				return err
			}
			totalBytes += int64(n)
			chunks++
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			err := classify(ctx, readErr)
			logger.Warn("upstream error during relay stream",
				"error", err,
				"bytes", totalBytes,
				"duration", time.Since(startTime),
			)
			return err
		}
	}

	if err := session.emit(ctx, Event{Type: EventEnd, ID: session.id}); err != nil {
		return err
	}

	logger.Info("relay stream complete",
		"status", response.StatusCode,
		"chunks", chunks,
		"bytes", totalBytes,
		"duration", time.Since(startTime),
	)
	return nil
}

// Stream runs a session to completion, passing every event to sink in
// order, and returns the authoritative envelope. If sink fails the
// session is cancelled and the result reports the sink's error.
func (r *Relay) Stream(ctx context.Context, id string, request Request, sink func(Event) error) StreamResult {
	session, err := r.Open(ctx, id, request)
	if err != nil {
		return StreamResult{Success: false, Reason: err.Error()}
	}

	var sinkErr error
	for event := range session.Events() {
		if sinkErr != nil {
			// Drain so the producer can observe cancellation and exit.
			continue
		}
		if err := sink(event); err != nil {
			sinkErr = fmt.Errorf("delivering %s event: %w", event.Type, err)
			session.Cancel()
		}
	}

	if sinkErr != nil {
		return StreamResult{Success: false, Reason: sinkErr.Error()}
	}
	if err := session.Wait(); err != nil {
		return StreamResult{Success: false, Reason: err.Error()}
	}
	return StreamResult{Success: true}
}
