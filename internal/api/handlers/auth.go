package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hugh/go-identity/internal/api/dto"
	"github.com/hugh/go-identity/internal/auth"
)

// OriginPolicy decides which browser origins may receive password-reset links.
type OriginPolicy interface {
	Allows(origin string) bool
}

type AuthHandler struct {
	authService auth.Authenticator
	origins     OriginPolicy
	logger      *slog.Logger
}

func NewAuthHandler(authService auth.Authenticator, origins OriginPolicy, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, origins: origins, logger: logger}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if validationFailed(w, req.Validate()) {
		return
	}

	id, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		CompanyID: req.CompanyID,
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		Notes:     req.Notes,
		Method:    req.Method,
		Role:      req.Role,
		Active:    req.Active,
		Address:   req.Address.Input(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.IDResponse{ID: id})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if validationFailed(w, req.Validate()) {
		return
	}

	token, err := h.authService.Login(r.Context(), auth.LoginInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TokenResponse{Token: token})
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Token is required"})
		return
	}

	claims, err := h.authService.Verify(r.Context(), token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.VerifyResponse{
		UserID:    claims.Subject,
		Role:      claims.Role,
		CompanyID: claims.CompanyID,
	})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if validationFailed(w, req.Validate()) {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Origin header is required"})
		return
	}
	if h.origins == nil || !h.origins.Allows(origin) {
		h.logger.Warn("password reset requested from disallowed origin", "origin", origin)
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Origin is not allowed"})
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email, origin); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if validationFailed(w, req.Validate()) {
		return
	}

	err := h.authService.ChangePassword(r.Context(), auth.ChangePasswordInput{
		UserID:      id.UserID,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
		Role:        id.Role,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Password changed"})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	if err := h.authService.Logout(r.Context(), id.UserID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}
