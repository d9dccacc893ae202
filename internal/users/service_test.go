package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/apperr"
	"github.com/MarcoPoloResearchLab/healthylife/internal/notes"
	"github.com/MarcoPoloResearchLab/healthylife/internal/routines"
	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type sequenceIDGenerator struct {
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("id-%d", g.next), nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}, &routines.Routine{}, &routines.Completion{}, &notes.Note{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC) },
		IDProvider: &sequenceIDGenerator{},
		HashCost:   bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	return service
}

func TestRegisterAppliesDefaultProfile(t *testing.T) {
	service := newTestService(t, openTestDatabase(t))

	user, err := service.Register(context.Background(), Registration{
		Name:     "  Ana  ",
		Email:    "Ana@Example.com",
		Password: "s3cret",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Name != "Ana" || user.Email != "ana@example.com" {
		t.Fatalf("unexpected normalized identity %+v", user)
	}
	if user.PasswordHash == "s3cret" || user.PasswordHash == "" {
		t.Fatalf("expected hashed password, got %q", user.PasswordHash)
	}
	if user.Description != defaultDescription || user.Specialty != defaultSpecialty {
		t.Fatalf("unexpected default profile %+v", user)
	}
	if len(user.Tags) != 2 || user.Tags[0] != "Fitness" || user.Tags[1] != "Salud" {
		t.Fatalf("unexpected default tags %v", user.Tags)
	}
	if !user.RegisteredAt.Equal(time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected registration time %s", user.RegisteredAt)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service := newTestService(t, openTestDatabase(t))
	ctx := context.Background()

	if _, err := service.Register(ctx, Registration{Name: "Ana", Email: "ana@example.com", Password: "pw"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := service.Register(ctx, Registration{Name: "Otra", Email: "ANA@example.com", Password: "pw"})
	if !errors.Is(err, apperr.ErrConflict) || !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if code := apperr.Code(err); code != "users.register.email_taken" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestRegisterValidation(t *testing.T) {
	service := newTestService(t, openTestDatabase(t))

	testCases := []struct {
		name         string
		registration Registration
	}{
		{name: "missing-name", registration: Registration{Email: "a@b.c", Password: "pw"}},
		{name: "bad-email", registration: Registration{Name: "Ana", Email: "nope", Password: "pw"}},
		{name: "missing-password", registration: Registration{Name: "Ana", Email: "a@b.c"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := service.Register(context.Background(), testCase.registration)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	service := newTestService(t, openTestDatabase(t))
	ctx := context.Background()

	registered, err := service.Register(ctx, Registration{Name: "Ana", Email: "ana@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, err := service.Authenticate(ctx, " ANA@example.com ", "pw")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if user.UserID != registered.UserID {
		t.Fatalf("expected %s, got %s", registered.UserID, user.UserID)
	}

	if _, err := service.Authenticate(ctx, "ana@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if _, err := service.Authenticate(ctx, "nobody@example.com", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	service := newTestService(t, openTestDatabase(t))
	ctx := context.Background()

	user, err := service.Register(ctx, Registration{Name: "Ana", Email: "ana@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	specialty := "Yoga"
	updated, err := service.UpdateProfile(ctx, user.UserID, ProfileUpdate{
		Specialty: &specialty,
		Tags:      []string{" Yoga ", "", "Movilidad"},
		SetTags:   true,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Specialty != "Yoga" || updated.Name != "Ana" {
		t.Fatalf("unexpected profile after update %+v", updated)
	}
	if len(updated.Tags) != 2 || updated.Tags[0] != "Yoga" || updated.Tags[1] != "Movilidad" {
		t.Fatalf("unexpected tags %v", updated.Tags)
	}

	blank := " "
	if _, err := service.UpdateProfile(ctx, user.UserID, ProfileUpdate{Name: &blank}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
	if _, err := service.UpdateProfile(ctx, "missing", ProfileUpdate{Specialty: &specialty}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
}

func TestDeleteCascadesOwnedData(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db)
	ctx := context.Background()

	user, err := service.Register(ctx, Registration{Name: "Ana", Email: "ana@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	routineService, err := routines.NewService(routines.ServiceConfig{Database: db, IDProvider: &sequenceIDGenerator{next: 100}})
	if err != nil {
		t.Fatalf("routines service: %v", err)
	}
	noteService, err := notes.NewService(notes.ServiceConfig{Database: db, IDProvider: &sequenceIDGenerator{next: 200}})
	if err != nil {
		t.Fatalf("notes service: %v", err)
	}
	routine, err := routineService.Create(ctx, user.UserID, routines.Draft{Name: "Piernas", Type: "fuerza"})
	if err != nil {
		t.Fatalf("create routine: %v", err)
	}
	if _, err := routineService.Complete(ctx, user.UserID, routine.RoutineID); err != nil {
		t.Fatalf("complete routine: %v", err)
	}
	if _, err := noteService.Create(ctx, user.UserID, notes.Draft{Title: "Hidratación"}); err != nil {
		t.Fatalf("create note: %v", err)
	}

	if err := service.Delete(ctx, user.UserID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	for _, model := range []any{&User{}, &routines.Routine{}, &routines.Completion{}, &notes.Note{}} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected %T rows to be purged, found %d", model, count)
		}
	}

	if err := service.Delete(ctx, user.UserID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Fatalf("expected error without database")
	}
}
