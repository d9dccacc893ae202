package routines

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/apperr"
	"github.com/MarcoPoloResearchLab/healthylife/internal/ids"
	"github.com/MarcoPoloResearchLab/healthylife/internal/streak"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingOwnerID    = errors.New("owner identifier is required")
	errMissingRoutineID  = errors.New("routine identifier is required")
	errMissingName       = errors.New("routine name is required")
	errMissingType       = errors.New("routine type is required")
	errNegativeDuration  = errors.New("routine duration must not be negative")
	errExercisesNotList  = errors.New("exercises must be a json array")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew        = "routines.service.new"
	opCreate            = "routines.create"
	opList              = "routines.list"
	opGet               = "routines.get"
	opDelete            = "routines.delete"
	opComplete          = "routines.complete"
	opFetchCompletions  = "routines.fetch_completions"
	opHasCompletion     = "routines.has_completion"
	opCounts            = "routines.counts"
	queryOwner          = "owner_id = ?"
	queryOwnerRoutine   = "owner_id = ? AND routine_id = ?"
	reasonMissingDB     = "missing_database"
	reasonMissingOwner  = "missing_owner_id"
	reasonQueryFailed   = "query_failed"
	reasonNotFound      = "not_found"
	reasonInvalidDraft  = "invalid_draft"
	reasonIDFailed      = "id_generation_failed"
	reasonInsertFailed  = "insert_failed"
	reasonDeleteFailed  = "delete_failed"
	reasonUpdateFailed  = "update_failed"
	emptyExercisesArray = "[]"
)

// ServiceConfig describes the dependencies of the routines service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service persists routines and their completion log.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService validates dependencies and constructs the routines service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, reasonMissingDB, errMissingDatabase)
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

// Create stores a new, not yet completed routine for the owner.
func (s *Service) Create(ctx context.Context, ownerID string, draft Draft) (Routine, error) {
	if err := s.ready(opCreate, ownerID); err != nil {
		return Routine{}, err
	}
	exercises, err := normalizeDraft(&draft)
	if err != nil {
		return Routine{}, apperr.New(opCreate, reasonInvalidDraft, errors.Join(apperr.ErrInvalidInput, err))
	}

	routineID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, reasonIDFailed, err, zap.String("owner_id", ownerID))
		return Routine{}, apperr.New(opCreate, reasonIDFailed, err)
	}

	routine := Routine{
		RoutineID:       routineID,
		OwnerID:         ownerID,
		Name:            draft.Name,
		Description:     draft.Description,
		Type:            draft.Type,
		DurationMinutes: draft.DurationMinutes,
		Exercises:       exercises,
		CreatedAt:       s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&routine).Error; err != nil {
		s.logError(opCreate, reasonInsertFailed, err, zap.String("owner_id", ownerID))
		return Routine{}, apperr.Storage(opCreate, reasonInsertFailed, err)
	}
	return routine, nil
}

// List returns the owner's routines, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Routine, error) {
	if err := s.ready(opList, ownerID); err != nil {
		return nil, err
	}
	var routines []Routine
	if err := s.db.WithContext(ctx).
		Where(queryOwner, ownerID).
		Order("created_at DESC").
		Find(&routines).Error; err != nil {
		s.logError(opList, reasonQueryFailed, err, zap.String("owner_id", ownerID))
		return nil, apperr.Storage(opList, reasonQueryFailed, err)
	}
	return routines, nil
}

// Get loads a single routine owned by ownerID.
func (s *Service) Get(ctx context.Context, ownerID, routineID string) (Routine, error) {
	if err := s.ready(opGet, ownerID); err != nil {
		return Routine{}, err
	}
	if strings.TrimSpace(routineID) == "" {
		return Routine{}, apperr.New(opGet, reasonNotFound, errors.Join(apperr.ErrNotFound, errMissingRoutineID))
	}
	var routine Routine
	err := s.db.WithContext(ctx).Where(queryOwnerRoutine, ownerID, routineID).Take(&routine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Routine{}, apperr.New(opGet, reasonNotFound, apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, reasonQueryFailed, err, zap.String("owner_id", ownerID), zap.String("routine_id", routineID))
		return Routine{}, apperr.Storage(opGet, reasonQueryFailed, err)
	}
	return routine, nil
}

// Delete removes a routine together with its completion log entries.
func (s *Service) Delete(ctx context.Context, ownerID, routineID string) error {
	if err := s.ready(opDelete, ownerID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where(queryOwnerRoutine, ownerID, routineID).Delete(&Routine{})
		if result.Error != nil {
			s.logError(opDelete, reasonDeleteFailed, result.Error, zap.String("owner_id", ownerID), zap.String("routine_id", routineID))
			return apperr.Storage(opDelete, reasonDeleteFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(opDelete, reasonNotFound, apperr.ErrNotFound)
		}
		if err := tx.Where(queryOwnerRoutine, ownerID, routineID).Delete(&Completion{}).Error; err != nil {
			s.logError(opDelete, reasonDeleteFailed, err, zap.String("owner_id", ownerID), zap.String("routine_id", routineID))
			return apperr.Storage(opDelete, reasonDeleteFailed, err)
		}
		return nil
	})
}

// Complete marks the routine completed now and appends a completion log entry.
// Both writes share one transaction so the log never diverges from the routine flag.
func (s *Service) Complete(ctx context.Context, ownerID, routineID string) (Completion, error) {
	if err := s.ready(opComplete, ownerID); err != nil {
		return Completion{}, err
	}
	completionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opComplete, reasonIDFailed, err, zap.String("owner_id", ownerID))
		return Completion{}, apperr.New(opComplete, reasonIDFailed, err)
	}

	completion := Completion{
		CompletionID: completionID,
		OwnerID:      ownerID,
		RoutineID:    routineID,
		OccurredAt:   s.clock().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Routine{}).
			Where(queryOwnerRoutine, ownerID, routineID).
			Updates(map[string]any{
				"completed":    true,
				"completed_at": completion.OccurredAt,
			})
		if result.Error != nil {
			s.logError(opComplete, reasonUpdateFailed, result.Error, zap.String("owner_id", ownerID), zap.String("routine_id", routineID))
			return apperr.Storage(opComplete, reasonUpdateFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(opComplete, reasonNotFound, apperr.ErrNotFound)
		}
		if err := tx.Create(&completion).Error; err != nil {
			s.logError(opComplete, reasonInsertFailed, err, zap.String("owner_id", ownerID), zap.String("routine_id", routineID))
			return apperr.Storage(opComplete, reasonInsertFailed, err)
		}
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	return completion, nil
}

// FetchCompletions returns the owner's completion events in ascending time order.
// A nil since returns the whole history; otherwise events at or after since.
func (s *Service) FetchCompletions(ctx context.Context, ownerID string, since *time.Time) ([]streak.CompletionEvent, error) {
	if err := s.ready(opFetchCompletions, ownerID); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where(queryOwner, ownerID)
	if since != nil {
		query = query.Where("occurred_at >= ?", since.UTC())
	}
	var rows []Completion
	if err := query.Order("occurred_at ASC").Find(&rows).Error; err != nil {
		s.logError(opFetchCompletions, reasonQueryFailed, err, zap.String("owner_id", ownerID))
		return nil, apperr.Storage(opFetchCompletions, reasonQueryFailed, err)
	}
	events := make([]streak.CompletionEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.Event())
	}
	return events, nil
}

// HasCompletionBetween reports whether the owner completed any routine in [from, to).
func (s *Service) HasCompletionBetween(ctx context.Context, ownerID string, from, to time.Time) (bool, error) {
	if err := s.ready(opHasCompletion, ownerID); err != nil {
		return false, err
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Completion{}).
		Where(queryOwner, ownerID).
		Where("occurred_at >= ? AND occurred_at < ?", from.UTC(), to.UTC()).
		Count(&count).Error; err != nil {
		s.logError(opHasCompletion, reasonQueryFailed, err, zap.String("owner_id", ownerID))
		return false, apperr.Storage(opHasCompletion, reasonQueryFailed, err)
	}
	return count > 0, nil
}

// Counts returns the owner's total and completed routine counts.
func (s *Service) Counts(ctx context.Context, ownerID string) (int64, int64, error) {
	if err := s.ready(opCounts, ownerID); err != nil {
		return 0, 0, err
	}
	var total, completed int64
	if err := s.db.WithContext(ctx).Model(&Routine{}).Where(queryOwner, ownerID).Count(&total).Error; err != nil {
		s.logError(opCounts, reasonQueryFailed, err, zap.String("owner_id", ownerID))
		return 0, 0, apperr.Storage(opCounts, reasonQueryFailed, err)
	}
	if err := s.db.WithContext(ctx).Model(&Routine{}).Where(queryOwner+" AND completed = ?", ownerID, true).Count(&completed).Error; err != nil {
		s.logError(opCounts, reasonQueryFailed, err, zap.String("owner_id", ownerID))
		return 0, 0, apperr.Storage(opCounts, reasonQueryFailed, err)
	}
	return total, completed, nil
}

// PurgeOwner deletes every routine and completion of ownerID inside tx.
func PurgeOwner(tx *gorm.DB, ownerID string) error {
	if err := tx.Where(queryOwner, ownerID).Delete(&Completion{}).Error; err != nil {
		return err
	}
	return tx.Where(queryOwner, ownerID).Delete(&Routine{}).Error
}

func normalizeDraft(draft *Draft) (datatypes.JSON, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	draft.Type = strings.TrimSpace(draft.Type)
	draft.Description = strings.TrimSpace(draft.Description)
	if draft.Name == "" {
		return nil, errMissingName
	}
	if draft.Type == "" {
		return nil, errMissingType
	}
	if draft.DurationMinutes < 0 {
		return nil, errNegativeDuration
	}
	raw := strings.TrimSpace(string(draft.Exercises))
	if raw == "" || raw == "null" {
		return datatypes.JSON(emptyExercisesArray), nil
	}
	var exercises []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &exercises); err != nil {
		return nil, errExercisesNotList
	}
	return datatypes.JSON(raw), nil
}

func (s *Service) ready(operation, ownerID string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDB, errMissingDatabase)
		return apperr.New(operation, reasonMissingDB, errMissingDatabase)
	}
	if strings.TrimSpace(ownerID) == "" {
		s.logError(operation, reasonMissingOwner, errMissingOwnerID)
		return apperr.New(operation, reasonMissingOwner, errors.Join(apperr.ErrInvalidInput, errMissingOwnerID))
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
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
	s.loggerOrDefault().Error("routines service error", attrs...)
}
