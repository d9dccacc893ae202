package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/healthylife/internal/apperr"
	"github.com/MarcoPoloResearchLab/healthylife/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	messageNotFound       = "Recurso no encontrado"
	messageUnavailable    = "El servicio no está disponible, inténtalo más tarde"
	messageInvalidInput   = "Datos inválidos"
	messageConflict       = "El recurso ya existe"
	messageInternal       = "Error interno del servidor"
	messageUnauthorized   = "Por favor inicia sesión para acceder a esta página"
	messageBadCredentials = "Email o contraseña incorrectos"
	messageRateLimited    = "Demasiadas solicitudes, inténtalo más tarde"
)

// respondOK writes a success envelope merged with payload.
func respondOK(c *gin.Context, message string, payload gin.H) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	for key, value := range payload {
		body[key] = value
	}
	c.JSON(http.StatusOK, body)
}

func respondFailure(c *gin.Context, status int, message, code string) {
	body := gin.H{"success": false, "message": message}
	if code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

// respondError maps a service error onto its status code and envelope.
// notFoundMessage replaces the generic not-found text when set.
func (h *httpHandler) respondError(c *gin.Context, err error, notFoundMessage string) {
	code := apperr.Code(err)
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		respondFailure(c, http.StatusUnauthorized, messageBadCredentials, code)
	case errors.Is(err, apperr.ErrNotFound):
		message := notFoundMessage
		if message == "" {
			message = messageNotFound
		}
		respondFailure(c, http.StatusNotFound, message, code)
	case errors.Is(err, apperr.ErrStorageUnavailable):
		respondFailure(c, http.StatusServiceUnavailable, messageUnavailable, code)
	case errors.Is(err, apperr.ErrInvalidInput):
		respondFailure(c, http.StatusBadRequest, messageInvalidInput, code)
	case errors.Is(err, apperr.ErrConflict):
		respondFailure(c, http.StatusConflict, messageConflict, code)
	default:
		h.logger.Error("unhandled service error", zap.String("code", code), zap.Error(err))
		respondFailure(c, http.StatusInternalServerError, messageInternal, code)
	}
}
