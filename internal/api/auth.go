package api

import (
	"net/http"

	"github.com/nyambika/marketplace/internal/middleware"
	"github.com/nyambika/marketplace/internal/models"
)

// LoginHandler handles POST /api/auth/login
func (a *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		middleware.WriteMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	resp, err := a.svc.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterHandler handles POST /api/auth/register
func (a *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		middleware.WriteMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	resp, err := a.svc.Users.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// MeHandler handles GET /api/auth/me
func (a *App) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.Users.GetUser(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ChangePasswordHandler handles /api/auth/change-password
func (a *App) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.svc.Users.ChangePassword(r.Context(), actorFrom(r).UserID, req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

// ForgotPasswordHandler handles POST /api/auth/forgot-password
func (a *App) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		middleware.WriteMessage(w, http.StatusBadRequest, "Email is required")
		return
	}
	if err := a.svc.Users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "If an account exists for this email, a reset link has been sent"})
}

// ResetPasswordHandler handles POST /api/auth/reset-password
func (a *App) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.svc.Users.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}
