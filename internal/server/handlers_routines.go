package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/routines"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const routineNotFoundMessage = "Rutina no encontrada"

var errInvalidDuration = errors.New("duration must be a whole number of minutes")

// durationMinutes accepts the duration as a JSON number or a numeric string.
type durationMinutes int

func (d *durationMinutes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*d = 0
		return nil
	}
	raw := string(trimmed)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			*d = 0
			return nil
		}
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return errInvalidDuration
	}
	*d = durationMinutes(value)
	return nil
}

type routineRequest struct {
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion"`
	Type        string          `json:"tipo"`
	Duration    durationMinutes `json:"duracion"`
	Exercises   json.RawMessage `json:"ejercicios"`
}

type routinePayload struct {
	ID          string          `json:"_id"`
	OwnerID     string          `json:"usuario_id"`
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion"`
	Type        string          `json:"tipo"`
	Duration    int             `json:"duracion"`
	Exercises   json.RawMessage `json:"ejercicios"`
	CreatedAt   string          `json:"fecha_creacion"`
	Completed   bool            `json:"completada"`
	CompletedAt *string         `json:"fecha_completada"`
}

func newRoutinePayload(routine routines.Routine) routinePayload {
	payload := routinePayload{
		ID:          routine.RoutineID,
		OwnerID:     routine.OwnerID,
		Name:        routine.Name,
		Description: routine.Description,
		Type:        routine.Type,
		Duration:    routine.DurationMinutes,
		Exercises:   json.RawMessage(routine.Exercises),
		CreatedAt:   isoTimestamp(routine.CreatedAt),
		Completed:   routine.Completed,
	}
	if len(payload.Exercises) == 0 {
		payload.Exercises = json.RawMessage("[]")
	}
	if routine.CompletedAt != nil {
		completedAt := isoTimestamp(*routine.CompletedAt)
		payload.CompletedAt = &completedAt
	}
	return payload
}

func isoTimestamp(value time.Time) string {
	return value.UTC().Format(time.RFC3339)
}

func (h *httpHandler) handleRoutineCreate(c *gin.Context) {
	var request routineRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, messageInvalidInput, "routines.create.invalid_request")
		return
	}

	routine, err := h.routines.Create(c.Request.Context(), c.GetString(userIDContextKey), routines.Draft{
		Name:            request.Name,
		Description:     request.Description,
		Type:            request.Type,
		DurationMinutes: int(request.Duration),
		Exercises:       request.Exercises,
	})
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, "Rutina guardada correctamente", gin.H{"rutina_id": routine.RoutineID})
}

func (h *httpHandler) handleRoutineList(c *gin.Context) {
	list, err := h.routines.List(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	payload := make([]routinePayload, 0, len(list))
	for _, routine := range list {
		payload = append(payload, newRoutinePayload(routine))
	}
	respondOK(c, "", gin.H{"rutinas": payload})
}

func (h *httpHandler) handleRoutineGet(c *gin.Context) {
	routine, err := h.routines.Get(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err, routineNotFoundMessage)
		return
	}
	respondOK(c, "", gin.H{"rutina": newRoutinePayload(routine)})
}

func (h *httpHandler) handleRoutineDelete(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if err := h.routines.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err, routineNotFoundMessage)
		return
	}
	h.publishStreakChange(c, userID)
	respondOK(c, "Rutina eliminada correctamente", nil)
}

func (h *httpHandler) handleRoutineComplete(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	completion, err := h.routines.Complete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err, routineNotFoundMessage)
		return
	}
	if h.metrics != nil {
		h.metrics.RoutineCompleted()
	}
	h.publishStreakChange(c, userID)
	respondOK(c, "¡Rutina completada! Buen trabajo", gin.H{
		"fecha_completada": isoTimestamp(completion.OccurredAt),
	})
}

// publishStreakChange recomputes the streak after a log write and fans it out.
// Failures are logged only; the write itself already succeeded.
func (h *httpHandler) publishStreakChange(c *gin.Context, userID string) {
	snapshot, err := h.progress.Snapshot(c.Request.Context(), userID)
	if err != nil {
		h.logger.Warn("streak recompute for realtime failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:        userID,
		EventType:     RealtimeEventStreakChanged,
		CurrentStreak: snapshot.CurrentStreak,
		BestStreak:    snapshot.BestStreak,
		Timestamp:     h.clock().UTC(),
	})
}
