package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/http/middleware"
	"github.com/ramcharankhv-byte/taskhub/internal/http/response"
	"github.com/ramcharankhv-byte/taskhub/internal/observability"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
	"github.com/ramcharankhv-byte/taskhub/internal/security"
	"github.com/ramcharankhv-byte/taskhub/internal/service"
)

type AuthHandler struct {
	authSvc    service.AuthServiceInterface
	cookies    *security.CookieManager
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthHandler(authSvc service.AuthServiceInterface, cookies *security.CookieManager, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authSvc:    authSvc,
		cookies:    cookies,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

type userView struct {
	ID              uint      `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
}

func newUserView(u *domain.User) userView {
	return userView{
		ID:              u.ID,
		Email:           u.Email,
		Username:        u.Username,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (req *registerRequest) validate() map[string]string {
	problems := map[string]string{}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		problems["email"] = "must be a valid email address"
	}
	username := strings.TrimSpace(req.Username)
	if len(username) < 3 {
		problems["username"] = "must be at least 3 characters"
	} else if username != strings.ToLower(username) {
		problems["username"] = "must be lowercase"
	}
	if len(req.Password) < 8 {
		problems["password"] = "must be at least 8 characters"
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordAuthEvent(r.Context(), "register", "bad_request")
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if problems := req.validate(); problems != nil {
		observability.RecordAuthEvent(r.Context(), "register", "bad_request")
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "validation failed", problems)
		return
	}

	user, err := h.authSvc.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			observability.RecordAuthEvent(r.Context(), "register", "conflict")
			response.Error(w, r, http.StatusConflict, response.CodeConflict, "email or username already in use", nil)
			return
		}
		observability.RecordAuthEvent(r.Context(), "register", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to register", nil)
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "auth.register",
		ActorUserID: observability.ActorUserID(user.ID),
		TargetType:  "user",
		TargetID:    observability.ActorUserID(user.ID),
		Action:      "register",
		Outcome:     "success",
		Reason:      "account_created",
	})
	observability.RecordAuthEvent(r.Context(), "register", "success")
	response.JSON(w, r, http.StatusCreated, newUserView(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordAuthEvent(r.Context(), "login", "bad_request")
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}

	user, pair, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		// Unknown account and wrong password collapse into one message so
		// the endpoint does not leak which emails exist.
		case errors.Is(err, repository.ErrUserNotFound), errors.Is(err, service.ErrInvalidCredentials):
			observability.RecordAuthEvent(r.Context(), "login", "invalid_credentials")
			response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid email or password", nil)
		case errors.Is(err, service.ErrEmailNotVerified):
			observability.RecordAuthEvent(r.Context(), "login", "email_unverified")
			response.Error(w, r, http.StatusUnauthorized, response.CodeEmailUnverified, "email address is not verified", nil)
		default:
			observability.RecordAuthEvent(r.Context(), "login", "error")
			response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to login", nil)
		}
		return
	}

	h.cookies.SetTokenCookies(w, pair.AccessToken, pair.RefreshToken, h.accessTTL, h.refreshTTL)
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "auth.login",
		ActorUserID: observability.ActorUserID(user.ID),
		TargetType:  "user",
		TargetID:    observability.ActorUserID(user.ID),
		Action:      "login",
		Outcome:     "success",
		Reason:      "credentials_valid",
	})
	observability.RecordAuthEvent(r.Context(), "login", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":   newUserView(user),
		"tokens": pair,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return
	}
	if err := h.authSvc.Logout(r.Context(), user.ID); err != nil {
		observability.RecordAuthEvent(r.Context(), "logout", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to logout", nil)
		return
	}
	h.cookies.ClearTokenCookies(w)
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "auth.logout",
		ActorUserID: observability.ActorUserID(user.ID),
		TargetType:  "user",
		TargetID:    observability.ActorUserID(user.ID),
		Action:      "logout",
		Outcome:     "success",
		Reason:      "refresh_token_revoked",
	})
	observability.RecordAuthEvent(r.Context(), "logout", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"logged_out": true})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh accepts the refresh token from the cookie or the request body and
// rotates the pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, security.RefreshTokenCookie)
	if raw == "" {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			raw = strings.TrimSpace(req.RefreshToken)
		}
	}
	if raw == "" {
		observability.RecordAuthEvent(r.Context(), "refresh", "bad_request")
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "missing refresh token", nil)
		return
	}

	pair, err := h.authSvc.Refresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			observability.RecordAuthEvent(r.Context(), "refresh", "invalid_token")
			response.Error(w, r, http.StatusUnauthorized, response.CodeInvalidOrExpiredToken, "refresh token is invalid or superseded", nil)
			return
		}
		observability.RecordAuthEvent(r.Context(), "refresh", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to refresh tokens", nil)
		return
	}

	h.cookies.SetTokenCookies(w, pair.AccessToken, pair.RefreshToken, h.accessTTL, h.refreshTTL)
	observability.RecordAuthEvent(r.Context(), "refresh", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"tokens": pair})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.authSvc.VerifyEmail(r.Context(), token); err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			observability.RecordAuthEvent(r.Context(), "verify_email", "invalid_token")
			response.Error(w, r, http.StatusUnauthorized, response.CodeInvalidOrExpiredToken, "verification link is invalid or expired", nil)
			return
		}
		observability.RecordAuthEvent(r.Context(), "verify_email", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to verify email", nil)
		return
	}
	observability.RecordAuthEvent(r.Context(), "verify_email", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"verified": true})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return
	}
	if err := h.authSvc.ResendVerification(r.Context(), user.ID); err != nil {
		if errors.Is(err, service.ErrEmailAlreadyVerified) {
			observability.RecordAuthEvent(r.Context(), "resend_verification", "already_verified")
			response.Error(w, r, http.StatusConflict, response.CodeConflict, "email is already verified", nil)
			return
		}
		observability.RecordAuthEvent(r.Context(), "resend_verification", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to resend verification", nil)
		return
	}
	observability.RecordAuthEvent(r.Context(), "resend_verification", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"sent": true})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword always answers 200 for well-formed requests, whether or not
// the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordAuthEvent(r.Context(), "forgot_password", "bad_request")
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		observability.RecordAuthEvent(r.Context(), "forgot_password", "bad_request")
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid email address", nil)
		return
	}
	if err := h.authSvc.ForgotPassword(r.Context(), req.Email); err != nil {
		observability.RecordAuthEvent(r.Context(), "forgot_password", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to process request", nil)
		return
	}
	observability.RecordAuthEvent(r.Context(), "forgot_password", "accepted")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"message": "if the email exists, a reset link has been sent",
	})
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordAuthEvent(r.Context(), "reset_password", "bad_request")
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if len(req.Password) < 8 {
		observability.RecordAuthEvent(r.Context(), "reset_password", "bad_request")
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "password must be at least 8 characters", nil)
		return
	}
	if err := h.authSvc.ResetPassword(r.Context(), token, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			observability.RecordAuthEvent(r.Context(), "reset_password", "invalid_token")
			response.Error(w, r, http.StatusUnauthorized, response.CodeInvalidOrExpiredToken, "reset link is invalid or expired", nil)
			return
		}
		observability.RecordAuthEvent(r.Context(), "reset_password", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to reset password", nil)
		return
	}
	observability.RecordAuthEvent(r.Context(), "reset_password", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"reset": true})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordAuthEvent(r.Context(), "change_password", "bad_request")
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if len(req.NewPassword) < 8 {
		observability.RecordAuthEvent(r.Context(), "change_password", "bad_request")
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "new password must be at least 8 characters", nil)
		return
	}
	if err := h.authSvc.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		// The caller is already authenticated; a wrong old password is a
		// denied action, not a broken session.
		if errors.Is(err, service.ErrWrongPassword) {
			observability.RecordAuthEvent(r.Context(), "change_password", "wrong_password")
			response.Error(w, r, http.StatusForbidden, response.CodeForbidden, "old password is incorrect", nil)
			return
		}
		observability.RecordAuthEvent(r.Context(), "change_password", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to change password", nil)
		return
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "auth.change_password",
		ActorUserID: observability.ActorUserID(user.ID),
		TargetType:  "user",
		TargetID:    observability.ActorUserID(user.ID),
		Action:      "change_password",
		Outcome:     "success",
		Reason:      "credential_rotated",
	})
	observability.RecordAuthEvent(r.Context(), "change_password", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"changed": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, newUserView(user))
}
