package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/apperr"
	"github.com/MarcoPoloResearchLab/healthylife/internal/ids"
	"github.com/MarcoPoloResearchLab/healthylife/internal/notes"
	"github.com/MarcoPoloResearchLab/healthylife/internal/routines"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrEmailTaken indicates the email already belongs to an account.
	ErrEmailTaken = errors.New("users: email already registered")

	errMissingDatabase = errors.New("users: database connection required")
	errMissingName     = errors.New("users: name is required")
	errInvalidEmail    = errors.New("users: email is invalid")
	errMissingPassword = errors.New("users: password is required")
	errMissingUserID   = errors.New("users: user id is required")
	noOpLogger         = zap.NewNop()
)

const (
	opRegister      = "users.register"
	opAuthenticate  = "users.authenticate"
	opGet           = "users.get"
	opUpdateProfile = "users.update_profile"
	opDelete        = "users.delete"

	queryUserID = "user_id = ?"
	queryEmail  = "email = ?"
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
	// HashCost overrides the bcrypt cost; zero selects bcrypt.DefaultCost.
	HashCost int
}

// Service manages user accounts and their credentials.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
	hashCost   int
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	hashCost := cfg.HashCost
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: idProvider,
		logger:     logger,
		hashCost:   hashCost,
	}, nil
}

// Register creates an account with the default profile and returns it.
func (s *Service) Register(ctx context.Context, registration Registration) (User, error) {
	if err := s.ready(opRegister); err != nil {
		return User{}, err
	}
	name := normalize(registration.Name)
	email := normalizeEmail(registration.Email)
	switch {
	case name == "":
		return User{}, apperr.New(opRegister, "invalid_registration", errors.Join(apperr.ErrInvalidInput, errMissingName))
	case !strings.Contains(email, "@"):
		return User{}, apperr.New(opRegister, "invalid_registration", errors.Join(apperr.ErrInvalidInput, errInvalidEmail))
	case registration.Password == "":
		return User{}, apperr.New(opRegister, "invalid_registration", errors.Join(apperr.ErrInvalidInput, errMissingPassword))
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where(queryEmail, email).Count(&existing).Error; err != nil {
		s.logError(opRegister, "lookup_failed", err)
		return User{}, apperr.Storage(opRegister, "lookup_failed", err)
	}
	if existing > 0 {
		return User{}, apperr.New(opRegister, "email_taken", errors.Join(apperr.ErrConflict, ErrEmailTaken))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(registration.Password), s.hashCost)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, apperr.New(opRegister, "hash_failed", err)
	}
	userID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return User{}, apperr.New(opRegister, "id_generation_failed", err)
	}

	user := User{
		UserID:       userID,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Description:  defaultDescription,
		Specialty:    defaultSpecialty,
		Tags:         datatypes.JSONSlice[string](append([]string(nil), defaultTags...)),
		RegisteredAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, apperr.New(opRegister, "email_taken", errors.Join(apperr.ErrConflict, ErrEmailTaken))
		}
		s.logError(opRegister, "insert_failed", err)
		return User{}, apperr.Storage(opRegister, "insert_failed", err)
	}
	return user, nil
}

// Authenticate returns the account matching email when password is correct.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	if err := s.ready(opAuthenticate); err != nil {
		return User{}, err
	}
	var user User
	err := s.db.WithContext(ctx).Where(queryEmail, normalizeEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.New(opAuthenticate, "invalid_credentials", ErrInvalidCredentials)
	}
	if err != nil {
		s.logError(opAuthenticate, "lookup_failed", err)
		return User{}, apperr.Storage(opAuthenticate, "lookup_failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, apperr.New(opAuthenticate, "invalid_credentials", ErrInvalidCredentials)
	}
	return user, nil
}

// Get loads the account with the given id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	if err := s.ready(opGet); err != nil {
		return User{}, err
	}
	if normalize(userID) == "" {
		return User{}, apperr.New(opGet, "missing_user_id", errors.Join(apperr.ErrInvalidInput, errMissingUserID))
	}
	var user User
	err := s.db.WithContext(ctx).Where(queryUserID, userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.New(opGet, "not_found", apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("user_id", userID))
		return User{}, apperr.Storage(opGet, "query_failed", err)
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of update and returns the stored account.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	if err := s.ready(opUpdateProfile); err != nil {
		return User{}, err
	}
	updates := map[string]any{}
	if update.Name != nil {
		name := normalize(*update.Name)
		if name == "" {
			return User{}, apperr.New(opUpdateProfile, "invalid_profile", errors.Join(apperr.ErrInvalidInput, errMissingName))
		}
		updates["name"] = name
	}
	if update.Description != nil {
		updates["description"] = normalize(*update.Description)
	}
	if update.Specialty != nil {
		updates["specialty"] = normalize(*update.Specialty)
	}
	if update.SetTags {
		tags := make([]string, 0, len(update.Tags))
		for _, tag := range update.Tags {
			if trimmed := normalize(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
		updates["tags"] = datatypes.JSONSlice[string](tags)
	}
	if len(updates) == 0 {
		return s.Get(ctx, userID)
	}

	result := s.db.WithContext(ctx).Model(&User{}).Where(queryUserID, userID).Updates(updates)
	if result.Error != nil {
		s.logError(opUpdateProfile, "update_failed", result.Error, zap.String("user_id", userID))
		return User{}, apperr.Storage(opUpdateProfile, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, apperr.New(opUpdateProfile, "not_found", apperr.ErrNotFound)
	}
	return s.Get(ctx, userID)
}

// Delete removes the account along with its routines, completion log and notes.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.ready(opDelete); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := routines.PurgeOwner(tx, userID); err != nil {
			s.logError(opDelete, "routines_purge_failed", err, zap.String("user_id", userID))
			return apperr.Storage(opDelete, "routines_purge_failed", err)
		}
		if err := notes.PurgeOwner(tx, userID); err != nil {
			s.logError(opDelete, "notes_purge_failed", err, zap.String("user_id", userID))
			return apperr.Storage(opDelete, "notes_purge_failed", err)
		}
		result := tx.Where(queryUserID, userID).Delete(&User{})
		if result.Error != nil {
			s.logError(opDelete, "delete_failed", result.Error, zap.String("user_id", userID))
			return apperr.Storage(opDelete, "delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(opDelete, "not_found", apperr.ErrNotFound)
		}
		return nil
	})
}

func (s *Service) ready(operation string) error {
	if s == nil || s.db == nil {
		return apperr.New(operation, "missing_database", errMissingDatabase)
	}
	return nil
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
	logger.Error("users service error", attrs...)
}
