package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/apperr"
	"github.com/MarcoPoloResearchLab/healthylife/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingOwnerID    = errors.New("owner identifier is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "notes.service.new"
	opCreate     = "notes.create"
	opList       = "notes.list"
	opGet        = "notes.get"
	opUpdate     = "notes.update"
	opDelete     = "notes.delete"
	opCount      = "notes.count"

	queryOwner     = "owner_id = ?"
	queryOwnerNote = "owner_id = ? AND note_id = ?"

	reasonMissingDatabase = "missing_database"
	reasonMissingOwner    = "missing_owner_id"
	reasonInvalidNote     = "invalid_note"
	reasonNotFound        = "not_found"
	reasonQueryFailed     = "query_failed"
	reasonInsertFailed    = "insert_failed"
	reasonUpdateFailed    = "update_failed"
	reasonDeleteFailed    = "delete_failed"
	reasonIDFailed        = "id_generation_failed"
)

// ServiceConfig describes the dependencies of the notes service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service provides owner-scoped CRUD over notes.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create stores a new note for the owner.
func (s *Service) Create(ctx context.Context, ownerID string, draft Draft) (Note, error) {
	if err := s.ready(opCreate, ownerID); err != nil {
		return Note{}, err
	}
	normalized, err := draft.normalized()
	if err != nil {
		return Note{}, apperr.New(opCreate, reasonInvalidNote, errors.Join(apperr.ErrInvalidInput, err))
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, reasonIDFailed, err, zap.String("owner_id", ownerID))
		return Note{}, apperr.New(opCreate, reasonIDFailed, err)
	}

	now := s.clock().UTC()
	note := Note{
		NoteID:      noteID,
		OwnerID:     ownerID,
		Title:       normalized.Title,
		Description: normalized.Description,
		Category:    normalized.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreate, reasonInsertFailed, err, zap.String("owner_id", ownerID))
		return Note{}, apperr.Storage(opCreate, reasonInsertFailed, err)
	}
	return note, nil
}

// List returns all notes of the owner, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Note, error) {
	if err := s.ready(opList, ownerID); err != nil {
		return nil, err
	}

	var notes []Note
	if err := s.db.WithContext(ctx).
		Where(queryOwner, ownerID).
		Order("created_at DESC").
		Find(&notes).Error; err != nil {
		s.logError(opList, reasonQueryFailed, err, zap.String("owner_id", ownerID))
		return nil, apperr.Storage(opList, reasonQueryFailed, err)
	}

	return notes, nil
}

// Get loads one note of the owner.
func (s *Service) Get(ctx context.Context, ownerID, rawNoteID string) (Note, error) {
	if err := s.ready(opGet, ownerID); err != nil {
		return Note{}, err
	}
	noteID, err := NewNoteID(rawNoteID)
	if err != nil {
		return Note{}, apperr.New(opGet, reasonNotFound, errors.Join(apperr.ErrNotFound, err))
	}

	var note Note
	err = s.db.WithContext(ctx).Where(queryOwnerNote, ownerID, noteID.String()).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, apperr.New(opGet, reasonNotFound, apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, reasonQueryFailed, err, zap.String("owner_id", ownerID), zap.String("note_id", noteID.String()))
		return Note{}, apperr.Storage(opGet, reasonQueryFailed, err)
	}
	return note, nil
}

// Update replaces the editable fields of a note and refreshes its update time.
func (s *Service) Update(ctx context.Context, ownerID, rawNoteID string, draft Draft) (Note, error) {
	if err := s.ready(opUpdate, ownerID); err != nil {
		return Note{}, err
	}
	normalized, err := draft.normalized()
	if err != nil {
		return Note{}, apperr.New(opUpdate, reasonInvalidNote, errors.Join(apperr.ErrInvalidInput, err))
	}
	noteID, err := NewNoteID(rawNoteID)
	if err != nil {
		return Note{}, apperr.New(opUpdate, reasonNotFound, errors.Join(apperr.ErrNotFound, err))
	}

	result := s.db.WithContext(ctx).
		Model(&Note{}).
		Where(queryOwnerNote, ownerID, noteID.String()).
		Updates(map[string]any{
			"title":       normalized.Title,
			"description": normalized.Description,
			"category":    normalized.Category,
			"updated_at":  s.clock().UTC(),
		})
	if result.Error != nil {
		s.logError(opUpdate, reasonUpdateFailed, result.Error, zap.String("owner_id", ownerID), zap.String("note_id", noteID.String()))
		return Note{}, apperr.Storage(opUpdate, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return Note{}, apperr.New(opUpdate, reasonNotFound, apperr.ErrNotFound)
	}
	return s.Get(ctx, ownerID, noteID.String())
}

// Delete removes one note of the owner.
func (s *Service) Delete(ctx context.Context, ownerID, rawNoteID string) error {
	if err := s.ready(opDelete, ownerID); err != nil {
		return err
	}
	noteID, err := NewNoteID(rawNoteID)
	if err != nil {
		return apperr.New(opDelete, reasonNotFound, errors.Join(apperr.ErrNotFound, err))
	}

	result := s.db.WithContext(ctx).Where(queryOwnerNote, ownerID, noteID.String()).Delete(&Note{})
	if result.Error != nil {
		s.logError(opDelete, reasonDeleteFailed, result.Error, zap.String("owner_id", ownerID), zap.String("note_id", noteID.String()))
		return apperr.Storage(opDelete, reasonDeleteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(opDelete, reasonNotFound, apperr.ErrNotFound)
	}
	return nil
}

// Count returns how many notes the owner has.
func (s *Service) Count(ctx context.Context, ownerID string) (int64, error) {
	if err := s.ready(opCount, ownerID); err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Note{}).Where(queryOwner, ownerID).Count(&count).Error; err != nil {
		s.logError(opCount, reasonQueryFailed, err, zap.String("owner_id", ownerID))
		return 0, apperr.Storage(opCount, reasonQueryFailed, err)
	}
	return count, nil
}

// PurgeOwner deletes every note of ownerID inside tx.
func PurgeOwner(tx *gorm.DB, ownerID string) error {
	return tx.Where(queryOwner, ownerID).Delete(&Note{}).Error
}

func (s *Service) ready(operation, ownerID string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return apperr.New(operation, reasonMissingDatabase, errMissingDatabase)
	}
	if strings.TrimSpace(ownerID) == "" {
		s.logError(operation, reasonMissingOwner, errMissingOwnerID)
		return apperr.New(operation, reasonMissingOwner, errors.Join(apperr.ErrInvalidInput, errMissingOwnerID))
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
