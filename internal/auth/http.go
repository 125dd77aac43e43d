// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dashtam/dashtam/internal/platform/middleware"
	requestutil "github.com/dashtam/dashtam/internal/platform/request"
	"github.com/dashtam/dashtam/internal/platform/respond"
	"github.com/dashtam/dashtam/internal/platform/validate"
)

// Handler implements the authentication HTTP endpoints.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

/*
Routes returns the auth sub-router.

# Endpoints
  - POST /register        : Create an account (202, enumeration-safe).
  - POST /verify-email    : Consume a verification token.
  - POST /refresh         : Rotate the refresh token.
  - POST /password/change : Change password (authenticated).

Login ([Handler.Login]), logout ([Handler.Logout]), and the
password-reset pair ([Handler.RequestReset], [Handler.ConfirmReset])
are registered at the top level of the API by the server composition
root: POST /sessions, DELETE /sessions/current,
POST /password-reset-tokens, POST /password-resets.
*/
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/refresh", handler.refresh)
	router.Post("/password/change", handler.changePassword)

	return router
}

// AdminRoutes returns the token-rotation sub-router. The caller mounts it
// behind RequireAuth plus RequireRole(admin).
func (handler *Handler) AdminRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/rotate-global", handler.rotateGlobal)
	router.Post("/rotate-user/{id}", handler.rotateUser)

	return router
}

// metaFrom captures the caller's network attribution for events and audit.
func metaFrom(request *http.Request) RequestMeta {
	return RequestMeta{
		IP:        middleware.RealIP(request),
		UserAgent: request.UserAgent(),
	}
}

/*
Register creates a new account.

POST /api/v1/auth/register

Request:

	{"email": "...", "password": "..."}

Response:
  - 202: Generic acknowledgment, identical for new and duplicate emails
  - 400: Validation failure
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, body.Email).Email(FieldEmail, body.Email)
	validator.Required(FieldPassword, body.Password).
		MinLen(FieldPassword, body.Password, PasswordMinLen).
		MaxLen(FieldPassword, body.Password, PasswordMaxLen)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Register(request.Context(), body.Email, body.Password, metaFrom(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Accepted(writer, map[string]string{
		"message": "If the email is not already registered, a verification link has been sent.",
	})
}

/*
VerifyEmail consumes a verification token.

POST /api/v1/auth/verify-email

Request:

	{"token": "<64-char hex>"}

Response:
  - 200: Email verified
  - 400: TOKEN_INVALID / TOKEN_EXPIRED / TOKEN_USED
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, body.Token).HexToken(FieldToken, body.Token)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.VerifyEmail(request.Context(), body.Token, metaFrom(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{"message": "Email verified."})
}

/*
Login exchanges credentials for a token pair, creating the session.

POST /api/v1/sessions

Request:

	{"email": "...", "password": "..."}

Response:
  - 201: TokenPair
  - 401: INVALID_CREDENTIALS (covers unknown email, unverified, locked, bad password)
  - 403: ACCOUNT_DISABLED
*/
func (handler *Handler) Login(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, body.Email).Email(FieldEmail, body.Email)
	validator.Required(FieldPassword, body.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	pair, err := handler.authService.Login(request.Context(), body.Email, body.Password, metaFrom(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, pair)
}

/*
Logout revokes the current session.

DELETE /api/v1/sessions/current

Request:

	{"refresh_token": "..."}

Response:
  - 204: Always, whatever the token's true state
  - 401: Missing or invalid access token
*/
func (handler *Handler) Logout(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldRefreshToken, body.RefreshToken)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Logout(request.Context(), claims.UserID(), body.RefreshToken, metaFrom(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
Refresh rotates a refresh token.

POST /api/v1/auth/refresh

Request:

	{"refresh_token": "..."}

Response:
  - 200: TokenPair (successor token; the presented one is consumed)
  - 401: TOKEN_INVALID / TOKEN_EXPIRED / TOKEN_REVOKED / TOKEN_VERSION_REJECTED
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldRefreshToken, body.RefreshToken)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	pair, err := handler.authService.Refresh(request.Context(), body.RefreshToken, metaFrom(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, pair)
}

/*
RequestReset begins the password reset flow by minting a reset token.

POST /api/v1/password-reset-tokens

Request:

	{"email": "..."}

Response:
  - 202: Generic acknowledgment, identical for known and unknown emails
*/
func (handler *Handler) RequestReset(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, body.Email).Email(FieldEmail, body.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestPasswordReset(request.Context(), body.Email, metaFrom(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Accepted(writer, map[string]string{
		"message": "If an account exists for that email, a reset link has been sent.",
	})
}

/*
ConfirmReset consumes a reset token and sets the new password.

POST /api/v1/password-resets

Request:

	{"token": "<64-char hex>", "new_password": "..."}

Response:
  - 200: Password replaced; every session signed out
  - 400: TOKEN_INVALID / TOKEN_EXPIRED / TOKEN_USED / weak password
*/
func (handler *Handler) ConfirmReset(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, body.Token).HexToken(FieldToken, body.Token)
	validator.Required(FieldNewPassword, body.NewPassword).
		MinLen(FieldNewPassword, body.NewPassword, PasswordMinLen).
		MaxLen(FieldNewPassword, body.NewPassword, PasswordMaxLen)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ConfirmPasswordReset(request.Context(), body.Token, body.NewPassword, metaFrom(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{"message": "Password has been reset."})
}

/*
ChangePassword replaces the authenticated user's password.

POST /api/v1/auth/password/change

Request:

	{"current_password": "...", "new_password": "..."}

Response:
  - 200: Password replaced; every session signed out
  - 401: Wrong current password
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, body.CurrentPassword)
	validator.Required(FieldNewPassword, body.NewPassword).
		MinLen(FieldNewPassword, body.NewPassword, PasswordMinLen).
		MaxLen(FieldNewPassword, body.NewPassword, PasswordMaxLen)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.ChangePassword(
		request.Context(), claims.UserID(), body.CurrentPassword, body.NewPassword, metaFrom(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{"message": "Password changed."})
}

/*
RotateGlobal advances the global refresh-token floor.

POST /api/v1/admin/tokens/rotate-global

Request:

	{"reason": "..."}

Response:
  - 200: {"previous_version": N, "new_version": N+1, "grace_period_seconds": S}
  - 403: Caller lacks the admin role
*/
func (handler *Handler) rotateGlobal(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldReason, body.Reason).MaxLen(FieldReason, body.Reason, 256)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	updated, err := handler.authService.RotateGlobalTokenVersion(request.Context(), claims.UserID(), body.Reason, metaFrom(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"previous_version":     updated.GlobalMinTokenVersion - 1,
		"new_version":          updated.GlobalMinTokenVersion,
		"grace_period_seconds": updated.GracePeriodSeconds,
	})
}

/*
RotateUser advances one user's refresh-token floor.

POST /api/v1/admin/tokens/rotate-user/{id}

Response:
  - 200: {"previous_version": N, "new_version": N+1}
  - 404: Unknown user
*/
func (handler *Handler) rotateUser(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	targetUserID := requestutil.Param(request, "id")
	validator := &validate.Validator{}
	validator.UUID("id", targetUserID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	previous, newVersion, err := handler.authService.RotateUserTokenVersion(request.Context(), targetUserID, claims.UserID(), metaFrom(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]int{
		"previous_version": previous,
		"new_version":      newVersion,
	})
}
