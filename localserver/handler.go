// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package localserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// SecretHeader carries the shared secret on every write.
	SecretHeader = "x-bridge-secret"

	// DigestHeader carries the hex BLAKE3 digest of the bytes written.
	DigestHeader = "x-bridge-blake3"
)

// handleWrite serves POST /?path=<relative>.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Authentication comes first: an unauthenticated request must not
	// cause any filesystem access, including path resolution.
	if !s.registry.VerifySecret(r.Header.Get(SecretHeader)) {
		s.sendError(w, r, http.StatusUnauthorized, "invalid or missing secret")
		return
	}

	rawPath := r.URL.Query().Get("path")
	relative, err := cleanRelative(rawPath)
	if err != nil {
		status := http.StatusForbidden
		if errors.Is(err, errEmptyPath) {
			status = http.StatusBadRequest
		}
		s.sendError(w, r, status, "%v", err)
		return
	}

	if err := checkResolved(s.root, relative); err != nil {
		if errors.Is(err, errOutsideRoot) {
			s.sendError(w, r, http.StatusForbidden, "%v", err)
			return
		}
		s.sendError(w, r, http.StatusInternalServerError, "%v", err)
		return
	}

	if r.ContentLength > s.maxPayloadSize {
		s.sendError(w, r, http.StatusRequestEntityTooLarge, "payload exceeds %d bytes", s.maxPayloadSize)
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.maxPayloadSize)

	digest, written, err := writeAtomic(s.fsRoot, relative, body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.sendError(w, r, http.StatusRequestEntityTooLarge, "payload exceeds %d bytes", maxBytesErr.Limit)
			return
		}
		s.sendError(w, r, http.StatusInternalServerError, "writing %s: %v", rawPath, err)
		return
	}

	w.Header().Set(DigestHeader, digest)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("file written"))

	s.logger.Info("file written",
		"path", relative,
		"bytes", written,
		"duration", time.Since(startTime),
	)
}

// sendError writes a plain-text error response and logs it.
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, status int, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	s.logger.Warn("write request rejected",
		"status", status,
		"reason", message,
		"remote", r.RemoteAddr,
	)
	http.Error(w, message, status)
}
