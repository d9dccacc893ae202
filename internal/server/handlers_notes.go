package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/healthylife/internal/apperr"
	"github.com/MarcoPoloResearchLab/healthylife/internal/notes"
	"github.com/gin-gonic/gin"
)

const (
	noteNotFoundMessage     = "Nota no encontrada"
	noteMissingTitleMessage = "El título es obligatorio"
)

type noteRequest struct {
	Title       string `json:"titulo"`
	Description string `json:"descripcion"`
	Category    string `json:"categoria"`
}

func (r noteRequest) draft() notes.Draft {
	return notes.Draft{Title: r.Title, Description: r.Description, Category: r.Category}
}

type notePayload struct {
	ID          string `json:"_id"`
	OwnerID     string `json:"usuario_id"`
	Title       string `json:"titulo"`
	Description string `json:"descripcion"`
	Category    string `json:"categoria"`
	CreatedAt   string `json:"fecha_creacion"`
	UpdatedAt   string `json:"fecha_actualizacion"`
}

func newNotePayload(note notes.Note) notePayload {
	return notePayload{
		ID:          note.NoteID,
		OwnerID:     note.OwnerID,
		Title:       note.Title,
		Description: note.Description,
		Category:    note.Category,
		CreatedAt:   isoTimestamp(note.CreatedAt),
		UpdatedAt:   isoTimestamp(note.UpdatedAt),
	}
}

func (h *httpHandler) handleNoteList(c *gin.Context) {
	list, err := h.notes.List(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	payload := make([]notePayload, 0, len(list))
	for _, note := range list {
		payload = append(payload, newNotePayload(note))
	}
	respondOK(c, "", gin.H{"notas": payload})
}

func (h *httpHandler) handleNoteCreate(c *gin.Context) {
	var request noteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, messageInvalidInput, "notes.create.invalid_request")
		return
	}
	note, err := h.notes.Create(c.Request.Context(), c.GetString(userIDContextKey), request.draft())
	if err != nil {
		h.respondNoteError(c, err)
		return
	}
	respondOK(c, "Nota creada correctamente", gin.H{"nota_id": note.NoteID})
}

func (h *httpHandler) handleNoteGet(c *gin.Context) {
	note, err := h.notes.Get(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondNoteError(c, err)
		return
	}
	respondOK(c, "", gin.H{"nota": newNotePayload(note)})
}

func (h *httpHandler) handleNoteUpdate(c *gin.Context) {
	var request noteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, messageInvalidInput, "notes.update.invalid_request")
		return
	}
	if _, err := h.notes.Update(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.draft()); err != nil {
		h.respondNoteError(c, err)
		return
	}
	respondOK(c, "Nota actualizada correctamente", nil)
}

func (h *httpHandler) handleNoteDelete(c *gin.Context) {
	if err := h.notes.Delete(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondNoteError(c, err)
		return
	}
	respondOK(c, "Nota eliminada correctamente", nil)
}

func (h *httpHandler) respondNoteError(c *gin.Context, err error) {
	if errors.Is(err, notes.ErrMissingTitle) {
		respondFailure(c, http.StatusBadRequest, noteMissingTitleMessage, apperr.Code(err))
		return
	}
	h.respondError(c, err, noteNotFoundMessage)
}
