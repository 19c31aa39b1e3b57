// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package panel implements the request-level auth operations of the control
// panel on top of the session store: login, logout, shutdown and session
// count. Every operation returns a response payload; none fails for a
// well-formed request.
package panel

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arobito/arobito/internal/auth"
)

var tracer = otel.Tracer("arobito/panel")

// Response status and reason strings.
const (
	StatusLoginSuccessful = "Login successful"
	StatusFailed          = "failed"
	ReasonLoginFailed     = "User unknown or password wrong"
)

// Request field names.
const (
	FieldUsername = "username"
	FieldPassword = "password"
	FieldKey      = "key"
)

// Operation names used in spans and metrics.
const (
	OpAuth         = "auth"
	OpLogout       = "logout"
	OpShutdown     = "shutdown"
	OpSessionCount = "session_count"
)

// SessionManager is the session store as seen by the panel.
type SessionManager interface {
	Login(username, password string) (string, bool)
	Logout(key string)
	GetUser(key string) (*auth.Principal, bool)
	Count() int
}

// Scheduler triggers the delayed shutdown. Schedule must not block.
type Scheduler interface {
	Schedule() bool
}

// Recorder receives login and privileged request outcomes.
type Recorder interface {
	RecordLogin(success bool)
	RecordPrivileged(operation string, allowed bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(bool)              {}
func (nopRecorder) RecordPrivileged(string, bool) {}

// AuthResult is the body of an AuthResponse.
type AuthResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Key     string `json:"key,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AuthResponse is returned by Auth.
type AuthResponse struct {
	Auth AuthResult `json:"auth"`
}

// LogoutResponse is returned by Logout.
type LogoutResponse struct {
	Logout bool `json:"logout"`
}

// ShutdownResponse is returned by Shutdown.
type ShutdownResponse struct {
	Shutdown bool `json:"shutdown"`
}

// SessionCountResponse is returned by SessionCount. SessionCount is -1 when
// the caller is not an administrator.
type SessionCountResponse struct {
	SessionCount int `json:"session_count"`
}

func authFailed() AuthResponse {
	return AuthResponse{Auth: AuthResult{
		Success: false,
		Status:  StatusFailed,
		Reason:  ReasonLoginFailed,
	}}
}

// Panel is the auth facade. It is safe for concurrent use.
type Panel struct {
	sessions  SessionManager
	scheduler Scheduler
	recorder  Recorder
	logger    *slog.Logger
}

// Option configures a Panel.
type Option func(*Panel)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Panel) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Panel) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Panel. A nil sessions puts the panel in the locked state:
// logins always fail and every key is unknown.
func New(sessions SessionManager, scheduler Scheduler, opts ...Option) *Panel {
	p := &Panel{
		sessions:  sessions,
		scheduler: scheduler,
		recorder:  nopRecorder{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Locked reports whether the panel has no usable session store.
func (p *Panel) Locked() bool {
	return p.sessions == nil
}

func (p *Panel) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "panel."+op,
		trace.WithAttributes(attribute.Bool("panel.locked", p.Locked())),
	)
}

// Auth logs a user in and returns the session key on success.
func (p *Panel) Auth(ctx context.Context, req Request) AuthResponse {
	ctx, span := p.startSpan(ctx, OpAuth)
	defer span.End()

	username, okUser := req.String(FieldUsername)
	password, okPass := req.String(FieldPassword)
	if p.Locked() || !okUser || !okPass {
		span.SetAttributes(attribute.Bool("panel.success", false))
		p.recorder.RecordLogin(false)
		p.logger.InfoContext(ctx, "login rejected", "locked", p.Locked())
		return authFailed()
	}

	key, ok := p.sessions.Login(username, password)
	span.SetAttributes(attribute.Bool("panel.success", ok))
	p.recorder.RecordLogin(ok)
	if !ok {
		p.logger.InfoContext(ctx, "login failed", "username", username)
		return authFailed()
	}
	return AuthResponse{Auth: AuthResult{
		Success: true,
		Status:  StatusLoginSuccessful,
		Key:     key,
	}}
}

// Logout ends the session named by the key field, if any. It always
// reports success.
func (p *Panel) Logout(ctx context.Context, req Request) LogoutResponse {
	_, span := p.startSpan(ctx, OpLogout)
	defer span.End()

	if key, ok := req.String(FieldKey); ok && !p.Locked() {
		p.sessions.Logout(key)
	}
	return LogoutResponse{Logout: true}
}

// administrator resolves the key field to an administrator principal.
func (p *Panel) administrator(req Request) (*auth.Principal, bool) {
	if p.Locked() {
		return nil, false
	}
	key, ok := req.String(FieldKey)
	if !ok {
		return nil, false
	}
	principal, ok := p.sessions.GetUser(key)
	if !ok || !principal.IsAdministrator() {
		return nil, false
	}
	return principal, true
}

// Shutdown schedules the delayed shutdown when the caller is an
// administrator.
func (p *Panel) Shutdown(ctx context.Context, req Request) ShutdownResponse {
	ctx, span := p.startSpan(ctx, OpShutdown)
	defer span.End()

	principal, ok := p.administrator(req)
	if !ok || p.scheduler == nil {
		span.SetAttributes(attribute.Bool("panel.allowed", false))
		p.recorder.RecordPrivileged(OpShutdown, false)
		return ShutdownResponse{Shutdown: false}
	}

	span.SetAttributes(attribute.Bool("panel.allowed", true))
	p.recorder.RecordPrivileged(OpShutdown, true)
	scheduled := p.scheduler.Schedule()
	p.logger.WarnContext(ctx, "shutdown requested",
		"username", principal.Username,
		"scheduled", scheduled,
	)
	return ShutdownResponse{Shutdown: true}
}

// SessionCount returns the number of live sessions to administrators and
// -1 to anyone else.
func (p *Panel) SessionCount(ctx context.Context, req Request) SessionCountResponse {
	_, span := p.startSpan(ctx, OpSessionCount)
	defer span.End()

	if _, ok := p.administrator(req); !ok {
		span.SetAttributes(attribute.Bool("panel.allowed", false))
		p.recorder.RecordPrivileged(OpSessionCount, false)
		return SessionCountResponse{SessionCount: -1}
	}
	span.SetAttributes(attribute.Bool("panel.allowed", true))
	p.recorder.RecordPrivileged(OpSessionCount, true)
	return SessionCountResponse{SessionCount: p.sessions.Count()}
}
