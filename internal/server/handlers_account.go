package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/auth"
	"github.com/MarcoPoloResearchLab/healthylife/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const registrationDateLayout = "02/01/2006"

type registerRequest struct {
	Name     string `form:"nombre" json:"nombre"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type loginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type accountPayload struct {
	ID    string `json:"_id"`
	Name  string `json:"nombre"`
	Email string `json:"email"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequest
	if err := c.ShouldBind(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, messageInvalidInput, "users.register.invalid_request")
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.Registration{
		Name:     request.Name,
		Email:    request.Email,
		Password: request.Password,
	})
	if errors.Is(err, users.ErrEmailTaken) {
		respondFailure(c, http.StatusConflict, "El email ya está registrado", "users.register.email_taken")
		return
	}
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	h.startSession(c, user, "¡Registro exitoso! Bienvenido a Healthy Life")
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if err := c.ShouldBind(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, messageInvalidInput, "users.authenticate.invalid_request")
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	h.startSession(c, user, "¡Inicio de sesión exitoso!")
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	h.clearSessionCookie(c)
	respondOK(c, "Sesión cerrada correctamente", nil)
}

func (h *httpHandler) handleAccountDelete(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if err := h.users.Delete(c.Request.Context(), userID); err != nil {
		h.respondError(c, err, "Usuario no encontrado")
		return
	}
	h.logger.Info("account deleted", zap.String("user_id", userID))
	h.clearSessionCookie(c)
	respondOK(c, "Cuenta eliminada correctamente", nil)
}

func (h *httpHandler) startSession(c *gin.Context, user users.User, message string) {
	token, expiresAt, err := h.tokens.Issue(auth.SessionUser{
		UserID: user.UserID,
		Email:  user.Email,
		Name:   user.Name,
	})
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		respondFailure(c, http.StatusInternalServerError, messageInternal, "auth.issue_failed")
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.sessions.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(expiresAt.Sub(h.clock()).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	respondOK(c, message, gin.H{
		"usuario":    accountPayload{ID: user.UserID, Name: user.Name, Email: user.Email},
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *httpHandler) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.sessions.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
