// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package localserver

import (
	"net/http"
	"strconv"
)

// corsMaxAge is how long browsers may cache a preflight answer.
const corsMaxAge = 3600

// withCORS allows every origin and answers preflight requests before
// they reach authentication.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			header.Set("Access-Control-Allow-Origin", origin)
			header.Add("Vary", "Origin")
		} else {
			header.Set("Access-Control-Allow-Origin", "*")
		}
		header.Set("Access-Control-Expose-Headers", DigestHeader)

		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
			header.Set("Access-Control-Allow-Headers", requested)
			header.Add("Vary", "Access-Control-Request-Headers")
		} else {
			header.Set("Access-Control-Allow-Headers", "*")
		}
		header.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
		w.WriteHeader(http.StatusNoContent)
	})
}
