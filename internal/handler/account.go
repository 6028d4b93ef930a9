package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/echo-auth/internal/apperror"
	"github.com/sakif/echo-auth/internal/auth"
	"github.com/sakif/echo-auth/internal/model"
	"github.com/sakif/echo-auth/internal/service"
)

// Messages shown for form-level validation failures.
const (
	msgFillAllFields    = "Please fill all fields."
	msgPasswordMismatch = "Passwords do not match."
	msgInvalidEmail     = "Please enter a valid email address."
	msgInvalidLogin     = "invalid email or password"
)

// maxBodyBytes caps JSON request bodies; account forms are tiny.
const maxBodyBytes = 1 << 16

// AccountHandler exposes the account core over JSON.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister      → POST  /api/register
//   - HandleLogin         → POST  /api/login
//   - HandleLogout        → POST  /api/logout
//   - HandleMe            → GET   /api/me       (RequireSession)
//   - HandleUpdateProfile → PATCH /api/profile  (RequireSession)
//
// DEPENDENCY CHAIN:
//   - accounts *service.AccountService → every business rule
//   - tokens   *auth.TokenService      → the session cookie handed to the browser
//   - validate *validator.Validate     → request shape checks
//
// The handler trims input and checks form-level rules (blank fields,
// password confirmation); it never decides uniqueness or credentials.
type AccountHandler struct {
	accounts *service.AccountService
	tokens   *auth.TokenService
	validate *validator.Validate
	logger   *slog.Logger

	// unifyLoginErrors reports "no such account" and "wrong password" on
	// login as the same 401, so the endpoint does not reveal which emails
	// are registered.
	unifyLoginErrors bool
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(
	accounts *service.AccountService,
	tokens *auth.TokenService,
	logger *slog.Logger,
	unifyLoginErrors bool,
) *AccountHandler {
	return &AccountHandler{
		accounts:         accounts,
		tokens:           tokens,
		validate:         validator.New(),
		logger:           logger,
		unifyLoginErrors: unifyLoginErrors,
	}
}

type registerRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// profileRequest uses pointers so "absent" and "empty" can be told apart.
type profileRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	CurrentPassword *string `json:"currentPassword"`
	NewPassword     *string `json:"newPassword"`
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(r *http.Request, w http.ResponseWriter, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// checkStruct runs the validator and turns the first failure into an
// AppError carrying the message the form should show.
func (h *AccountHandler) checkStruct(req any) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ValidationFailed("", err.Error())
	}

	// Blank fields win over every other complaint.
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return apperror.ValidationFailed(jsonName(fe.Field()), msgFillAllFields)
		}
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "eqfield":
		return apperror.ValidationFailed(jsonName(fe.Field()), msgPasswordMismatch)
	case "email":
		return apperror.ValidationFailed(jsonName(fe.Field()), msgInvalidEmail)
	default:
		return apperror.ValidationFailed(jsonName(fe.Field()), fe.Error())
	}
}

// jsonName lower-cases the first letter of a Go field name, which matches
// every json tag used in this package.
func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// startSession issues a token for user and sets it as the session cookie.
func (h *AccountHandler) startSession(w http.ResponseWriter, user *model.User) error {
	token, err := h.tokens.Generate(user.ID)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(w, token, h.tokens.TTL())
	return nil
}

// HandleRegister creates an account and logs it in.
//
// HTTP: POST /api/register
// REQUEST BODY: {"name":"Ann","email":"ann@x.com","password":"pw1","confirmPassword":"pw1"}
// RESPONSE: 201 with the user; the session cookie is set.
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, w, &req); err != nil {
		writeValidation(w, "", "Invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := h.checkStruct(req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.logFailure("register", err)
		writeError(w, err)
		return
	}

	if err := h.startSession(w, user); err != nil {
		h.logger.Error("register: token generation failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin authenticates and makes the user the current session.
//
// HTTP: POST /api/login
// REQUEST BODY: {"email":"ann@x.com","password":"pw1"}
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, w, &req); err != nil {
		writeValidation(w, "", "Invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if err := h.checkStruct(req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		loginFailed := errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrInvalidCredential)
		if h.unifyLoginErrors && loginFailed {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_credential",
				Message: msgInvalidLogin,
			})
			return
		}
		h.logFailure("login", err)
		writeError(w, err)
		return
	}

	if err := h.startSession(w, user); err != nil {
		h.logger.Error("login: token generation failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleLogout clears the session and the cookie.
//
// HTTP: POST /api/logout
//
// Logging out while logged out is fine and returns 200.
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context()); err != nil {
		h.logger.Error("logout failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	auth.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the current session user.
//
// HTTP: GET /api/me
// Auth: Required (RequireSession)
//
// A session pointing at a user that no longer exists is answered 401, the
// same as no session at all.
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok, err := h.accounts.CurrentUser(r.Context())
	if err != nil {
		h.logger.Error("me: resolving session failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid session required",
		})
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateProfile edits the current session user's profile.
//
// HTTP: PATCH /api/profile
// Auth: Required (RequireSession)
// REQUEST BODY: any of {"name","email","currentPassword","newPassword"}
//
// The target id always comes from the session, never from the body.
func (h *AccountHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid session required",
		})
		return
	}

	var req profileRequest
	if err := decode(r, w, &req); err != nil {
		writeValidation(w, "", "Invalid JSON body")
		return
	}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			writeValidation(w, "name", msgFillAllFields)
			return
		}
		req.Name = &trimmed
	}
	if req.Email != nil {
		trimmed := strings.TrimSpace(*req.Email)
		if trimmed != "" && h.validate.Var(trimmed, "email") != nil {
			writeValidation(w, "email", msgInvalidEmail)
			return
		}
		req.Email = &trimmed
	}

	// Re-saving the address already on file is not an email change and must
	// not demand the current password.
	if req.Email != nil && *req.Email != "" {
		current, found, err := h.accounts.CurrentUser(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if found && current.ID == userID && model.SameEmail(current.Email, *req.Email) {
			req.Email = nil
		}
	}

	user, err := h.accounts.UpdateProfile(r.Context(), userID, service.ProfileUpdate{
		Name:            req.Name,
		Email:           req.Email,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		h.logFailure("update profile", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// logFailure logs expected domain failures at Info and everything else at
// Error.
func (h *AccountHandler) logFailure(op string, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		h.logger.Info(op+" rejected", slog.String("reason", appErr.Message))
		return
	}
	h.logger.Error(op+" failed", slog.String("error", err.Error()))
}
