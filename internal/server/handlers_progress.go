package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/healthylife/internal/users"
	"github.com/gin-gonic/gin"
)

type profileUpdateRequest struct {
	Name        *string   `json:"nombre"`
	Description *string   `json:"descripcion"`
	Specialty   *string   `json:"especialidad"`
	Tags        *[]string `json:"etiquetas"`
}

type statsPayload struct {
	TotalRoutines     int64 `json:"total_rutinas"`
	CompletedRoutines int64 `json:"rutinas_completadas"`
	TotalNotes        int64 `json:"total_notas"`
	CurrentStreak     int   `json:"racha_actual"`
	BestStreak        int   `json:"racha_maxima"`
}

type profilePayload struct {
	ID           string       `json:"_id"`
	Name         string       `json:"nombre"`
	Email        string       `json:"email"`
	Description  string       `json:"descripcion"`
	Specialty    string       `json:"especialidad"`
	Tags         []string     `json:"etiquetas"`
	RegisteredAt string       `json:"fecha_registro"`
	Stats        statsPayload `json:"estadisticas"`
}

type streakPayload struct {
	CurrentStreak int      `json:"diasConsecutivos"`
	BestStreak    int      `json:"recordPersonal"`
	CompletedDays []string `json:"diasCompletados"`
	LastDay       *string  `json:"fechaUltimoDia"`
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	profile, err := h.progress.Profile(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err, "Usuario no encontrado")
		return
	}
	tags := []string(profile.User.Tags)
	if tags == nil {
		tags = []string{}
	}
	respondOK(c, "", gin.H{"perfil": profilePayload{
		ID:           profile.User.UserID,
		Name:         profile.User.Name,
		Email:        profile.User.Email,
		Description:  profile.User.Description,
		Specialty:    profile.User.Specialty,
		Tags:         tags,
		RegisteredAt: profile.User.RegisteredAt.UTC().Format(registrationDateLayout),
		Stats: statsPayload{
			TotalRoutines:     profile.Stats.TotalRoutines,
			CompletedRoutines: profile.Stats.CompletedRoutines,
			TotalNotes:        profile.Stats.TotalNotes,
			CurrentStreak:     profile.Stats.CurrentStreak,
			BestStreak:        profile.Stats.BestStreak,
		},
	}})
}

func (h *httpHandler) handleProfileUpdate(c *gin.Context) {
	var request profileUpdateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, messageInvalidInput, "users.update_profile.invalid_request")
		return
	}
	update := users.ProfileUpdate{
		Name:        request.Name,
		Description: request.Description,
		Specialty:   request.Specialty,
	}
	if request.Tags != nil {
		update.Tags = *request.Tags
		update.SetTags = true
	}
	if _, err := h.users.UpdateProfile(c.Request.Context(), c.GetString(userIDContextKey), update); err != nil {
		h.respondError(c, err, "Usuario no encontrado")
		return
	}
	respondOK(c, "Perfil actualizado correctamente", nil)
}

func (h *httpHandler) handleStreak(c *gin.Context) {
	view, err := h.progress.Streak(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	days := make([]string, 0, len(view.MonthDays))
	for _, day := range view.MonthDays {
		days = append(days, day.Key())
	}
	payload := streakPayload{
		CurrentStreak: view.Snapshot.CurrentStreak,
		BestStreak:    view.Snapshot.BestStreak,
		CompletedDays: days,
	}
	if view.Snapshot.LastCompletedAt != nil {
		last := isoTimestamp(*view.Snapshot.LastCompletedAt)
		payload.LastDay = &last
	}
	respondOK(c, "", gin.H{"racha": payload})
}

func (h *httpHandler) handleMarkDay(c *gin.Context) {
	marked, err := h.progress.MarkDay(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	if !marked {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "Completa al menos una rutina hoy para marcar el día en tu racha.",
		})
		return
	}
	respondOK(c, "¡Día marcado correctamente! Ya tienes rutinas completadas hoy.", nil)
}
