// Package progress assembles the profile statistics and streak views from the
// account, routine and note services.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/apperr"
	"github.com/MarcoPoloResearchLab/healthylife/internal/streak"
	"github.com/MarcoPoloResearchLab/healthylife/internal/users"
	"go.uber.org/zap"
)

var (
	errMissingUsers      = errors.New("progress: user store is required")
	errMissingRoutines   = errors.New("progress: routine store is required")
	errMissingNotes      = errors.New("progress: note store is required")
	errMissingCalculator = errors.New("progress: streak calculator is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "progress.service.new"
	opStreak     = "progress.streak"
	opProfile    = "progress.profile"
	opMarkDay    = "progress.mark_day"
)

// UserStore loads account records.
type UserStore interface {
	Get(ctx context.Context, userID string) (users.User, error)
}

// CompletionStore exposes the completion log and routine counters.
type CompletionStore interface {
	FetchCompletions(ctx context.Context, ownerID string, since *time.Time) ([]streak.CompletionEvent, error)
	HasCompletionBetween(ctx context.Context, ownerID string, from, to time.Time) (bool, error)
	Counts(ctx context.Context, ownerID string) (int64, int64, error)
}

// NoteCounter counts an owner's notes.
type NoteCounter interface {
	Count(ctx context.Context, ownerID string) (int64, error)
}

// ServiceConfig describes the collaborators of the progress service.
type ServiceConfig struct {
	Users      UserStore
	Routines   CompletionStore
	Notes      NoteCounter
	Calculator *streak.Calculator
	Clock      func() time.Time
	Logger     *zap.Logger
	// Observe receives the duration of every streak computation when set.
	Observe func(time.Duration)
}

// StreakView is the streak screen payload.
type StreakView struct {
	Snapshot streak.Snapshot
	// MonthDays are the completed days of the current calendar month.
	MonthDays []streak.Day
}

// Stats aggregates the counters shown on the profile.
type Stats struct {
	TotalRoutines     int64
	CompletedRoutines int64
	TotalNotes        int64
	CurrentStreak     int
	BestStreak        int
}

// Profile combines the stored account with its statistics.
type Profile struct {
	User  users.User
	Stats Stats
}

// Service derives progress views on demand. It keeps no state between calls.
type Service struct {
	users      UserStore
	routines   CompletionStore
	notes      NoteCounter
	calculator *streak.Calculator
	clock      func() time.Time
	logger     *zap.Logger
	observe    func(time.Duration)
}

func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Users == nil:
		return nil, apperr.New(opServiceNew, "missing_users", errMissingUsers)
	case cfg.Routines == nil:
		return nil, apperr.New(opServiceNew, "missing_routines", errMissingRoutines)
	case cfg.Notes == nil:
		return nil, apperr.New(opServiceNew, "missing_notes", errMissingNotes)
	case cfg.Calculator == nil:
		return nil, apperr.New(opServiceNew, "missing_calculator", errMissingCalculator)
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
		users:      cfg.Users,
		routines:   cfg.Routines,
		notes:      cfg.Notes,
		calculator: cfg.Calculator,
		clock:      clock,
		logger:     logger,
		observe:    cfg.Observe,
	}, nil
}

// Streak computes the owner's snapshot over the full completion history.
func (s *Service) Streak(ctx context.Context, ownerID string) (StreakView, error) {
	now := s.clock().UTC()
	events, err := s.routines.FetchCompletions(ctx, ownerID, nil)
	if err != nil {
		s.logError(opStreak, "fetch_failed", err, zap.String("owner_id", ownerID))
		return StreakView{}, err
	}

	snapshot := s.compute(events, now)
	today := s.calculator.Today(now)
	monthStart := streak.Day{Year: today.Year, Month: today.Month, Day: 1}
	return StreakView{
		Snapshot:  snapshot,
		MonthDays: snapshot.DaysSince(monthStart),
	}, nil
}

// Profile loads the account and its statistics. Both streaks come from one
// read of the log so the current streak never exceeds the best.
func (s *Service) Profile(ctx context.Context, ownerID string) (Profile, error) {
	user, err := s.users.Get(ctx, ownerID)
	if err != nil {
		return Profile{}, err
	}
	total, completed, err := s.routines.Counts(ctx, ownerID)
	if err != nil {
		s.logError(opProfile, "counts_failed", err, zap.String("owner_id", ownerID))
		return Profile{}, err
	}
	noteCount, err := s.notes.Count(ctx, ownerID)
	if err != nil {
		s.logError(opProfile, "notes_count_failed", err, zap.String("owner_id", ownerID))
		return Profile{}, err
	}

	history, err := s.routines.FetchCompletions(ctx, ownerID, nil)
	if err != nil {
		s.logError(opProfile, "fetch_failed", err, zap.String("owner_id", ownerID))
		return Profile{}, err
	}
	snapshot := s.compute(history, s.clock().UTC())

	return Profile{
		User: user,
		Stats: Stats{
			TotalRoutines:     total,
			CompletedRoutines: completed,
			TotalNotes:        noteCount,
			CurrentStreak:     snapshot.CurrentStreak,
			BestStreak:        snapshot.BestStreak,
		},
	}, nil
}

// MarkDay reports whether the owner already completed a routine today.
func (s *Service) MarkDay(ctx context.Context, ownerID string) (bool, error) {
	now := s.clock().UTC()
	today := s.calculator.Today(now)
	location := s.calculator.Location()
	marked, err := s.routines.HasCompletionBetween(ctx, ownerID, today.Start(location), today.AddDays(1).Start(location))
	if err != nil {
		s.logError(opMarkDay, "query_failed", err, zap.String("owner_id", ownerID))
		return false, err
	}
	return marked, nil
}

// Snapshot computes the current and best streak over the full history; used
// to publish streak changes after a write.
func (s *Service) Snapshot(ctx context.Context, ownerID string) (streak.Snapshot, error) {
	events, err := s.routines.FetchCompletions(ctx, ownerID, nil)
	if err != nil {
		return streak.Snapshot{}, err
	}
	return s.compute(events, s.clock().UTC()), nil
}

func (s *Service) compute(events []streak.CompletionEvent, now time.Time) streak.Snapshot {
	started := time.Now()
	snapshot := s.calculator.Compute(events, now)
	if s.observe != nil {
		s.observe(time.Since(started))
	}
	return snapshot
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := noOpLogger
	if s != nil && s.logger != nil {
		logger = s.logger
	}
	attrs := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	logger.Error("progress service error", attrs...)
}
