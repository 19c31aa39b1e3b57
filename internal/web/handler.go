// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package web exposes the panel operations as JSON endpoints under /app.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/arobito/arobito/internal/logging"
	"github.com/arobito/arobito/internal/panel"
)

// MaxRequestBytes bounds the size of a request body.
const MaxRequestBytes = 64 << 10

// Endpoint paths.
const (
	PathAuth         = "/app/auth"
	PathLogout       = "/app/logout"
	PathShutdown     = "/app/shutdown"
	PathSessionCount = "/app/get_session_count"
)

// ContentSecurityPolicy is sent with every response.
const ContentSecurityPolicy = "default-src 'none'; " +
	"script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data:; " +
	"connect-src 'self'; " +
	"font-src 'none'; " +
	"object-src 'none'; " +
	"media-src 'none'; " +
	"frame-src 'none'"

// Facade is the set of panel operations served over HTTP.
type Facade interface {
	Auth(ctx context.Context, req panel.Request) panel.AuthResponse
	Logout(ctx context.Context, req panel.Request) panel.LogoutResponse
	Shutdown(ctx context.Context, req panel.Request) panel.ShutdownResponse
	SessionCount(ctx context.Context, req panel.Request) panel.SessionCountResponse
}

// Recorder receives the status code of every handled request.
type Recorder interface {
	RecordHTTPRequest(endpoint string, code int)
}

// ErrorResponse is the body of a 400 reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	facade   Facade
	recorder Recorder
	logger   *slog.Logger
}

// HandlerOption configures NewHandler.
type HandlerOption func(*handler)

// WithRecorder sets the request recorder.
func WithRecorder(r Recorder) HandlerOption {
	return func(h *handler) {
		h.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler returns the routing handler for the panel endpoints.
func NewHandler(facade Facade, opts ...HandlerOption) http.Handler {
	h := &handler{
		facade: facade,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathAuth, h.serve(PathAuth, func(ctx context.Context, req panel.Request) any {
		return h.facade.Auth(ctx, req)
	}))
	mux.HandleFunc("POST "+PathLogout, h.serve(PathLogout, func(ctx context.Context, req panel.Request) any {
		return h.facade.Logout(ctx, req)
	}))
	mux.HandleFunc("POST "+PathShutdown, h.serve(PathShutdown, func(ctx context.Context, req panel.Request) any {
		return h.facade.Shutdown(ctx, req)
	}))
	mux.HandleFunc("POST "+PathSessionCount, h.serve(PathSessionCount, func(ctx context.Context, req panel.Request) any {
		return h.facade.SessionCount(ctx, req)
	}))
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("X-XSS-Protection", "1; mode=block")
		hdr.Set("Content-Security-Policy", ContentSecurityPolicy)
		hdr.Set("X-Content-Security-Policy", ContentSecurityPolicy)
		hdr.Set("X-Webkit-CSP", ContentSecurityPolicy)
		hdr.Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

type operation func(ctx context.Context, req panel.Request) any

func (h *handler) serve(endpoint string, op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.writeJSON(ctx, w, endpoint, http.StatusRequestEntityTooLarge,
					ErrorResponse{Error: "request body too large"})
				return
			}
			h.writeJSON(ctx, w, endpoint, http.StatusBadRequest,
				ErrorResponse{Error: "cannot read request body"})
			return
		}

		req, err := panel.DecodeRequest(body)
		if err != nil {
			h.logger.DebugContext(ctx, "rejected request payload",
				"endpoint", endpoint,
				"error", err,
			)
			h.writeJSON(ctx, w, endpoint, http.StatusBadRequest,
				ErrorResponse{Error: "request payload must be a JSON object"})
			return
		}

		h.writeJSON(ctx, w, endpoint, http.StatusOK, op(ctx, req))
	}
}

func (h *handler) writeJSON(ctx context.Context, w http.ResponseWriter, endpoint string, status int, v any) {
	if h.recorder != nil {
		h.recorder.RecordHTTPRequest(endpoint, status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.LogError(ctx, h.logger, "failed to write response",
			oops.Code("WEB_ENCODE_FAILED").With("endpoint", endpoint).Wrap(err))
	}
}
