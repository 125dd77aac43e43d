// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package session

import (
	"net/http"

	requestutil "github.com/dashtam/dashtam/internal/platform/request"
	"github.com/dashtam/dashtam/internal/platform/respond"
	"github.com/dashtam/dashtam/internal/platform/validate"
	"github.com/dashtam/dashtam/pkg/pagination"
)

// Handler implements the session management HTTP endpoints.
//
// The handlers are registered on /sessions by the server composition
// root, alongside login (POST /sessions) and logout
// (DELETE /sessions/current), which live in the auth handler because
// they own the credential exchange. All handlers here require
// authentication.
type Handler struct {
	sessionService *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{sessionService: service}
}

// sessionView is the client-facing session shape. Raw user agents and
// internal token linkage stay server-side.
type sessionView struct {
	ID             string `json:"id"`
	Device         string `json:"device"`
	Location       string `json:"location,omitempty"`
	IPAddress      string `json:"ip_address"`
	CreatedAt      string `json:"created_at"`
	LastActivityAt string `json:"last_activity_at"`
	ExpiresAt      string `json:"expires_at"`
	IsCurrent      bool   `json:"is_current"`
	IsTrusted      bool   `json:"is_trusted"`
}

func toView(session *SessionData, currentSessionID string) sessionView {
	const timeLayout = "2006-01-02T15:04:05Z07:00"
	return sessionView{
		ID:             session.ID,
		Device:         session.DeviceInfo.Describe(),
		Location:       session.Location,
		IPAddress:      session.LastIPAddress,
		CreatedAt:      session.CreatedAt.UTC().Format(timeLayout),
		LastActivityAt: session.LastActivityAt.UTC().Format(timeLayout),
		ExpiresAt:      session.ExpiresAt.UTC().Format(timeLayout),
		IsCurrent:      session.ID == currentSessionID,
		IsTrusted:      session.IsTrusted,
	}
}

/*
List returns a page of the caller's active sessions.

GET /api/v1/sessions?page=N&limit=N

Response:
  - 200: paginated []sessionView, newest first, current session flagged
  - 401: Authentication required

A user holds at most a handful of sessions, so paging over the full
in-memory list is fine; the envelope keeps the listing shape uniform
with the rest of the API.
*/
func (handler *Handler) List(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	params := pagination.FromRequest(request)

	sessions, err := handler.sessionService.List(request.Context(), claims.UserID(), true)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, toView(session, claims.SessionID))
	}

	total := len(views)
	start := params.Offset()
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	respond.Paginated(writer, views[start:end], pagination.NewMeta(params.Page, params.Limit, total))
}

/*
Get returns one of the caller's sessions.

GET /api/v1/sessions/{id}

Response:
  - 200: sessionView
  - 404: Not the caller's session, or unknown ID
*/
func (handler *Handler) Get(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessionID := requestutil.Param(request, "id")
	validator := &validate.Validator{}
	validator.UUID("id", sessionID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.sessionService.Get(request.Context(), claims.UserID(), sessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, toView(session, claims.SessionID))
}

/*
Revoke terminates one of the caller's sessions.

DELETE /api/v1/sessions/{id}

Response:
  - 204: Session revoked
  - 404: Not the caller's session
  - 409: Session already revoked
*/
func (handler *Handler) Revoke(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessionID := requestutil.Param(request, "id")
	validator := &validate.Validator{}
	validator.UUID("id", sessionID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.sessionService.Revoke(request.Context(), claims.UserID(), sessionID, ReasonUserRevoked); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
RevokeAll signs the caller out of every other device.

DELETE /api/v1/sessions

Response:
  - 200: {"revoked_count": N}
*/
func (handler *Handler) RevokeAll(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	count, err := handler.sessionService.RevokeAllExcept(request.Context(), claims.UserID(), ReasonUserRevoked, claims.SessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]int{"revoked_count": count})
}
