package users

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	defaultDescription = "¡Bienvenido a Healthy Life! Comienza tu journey fitness."
	defaultSpecialty   = "General"
)

var defaultTags = []string{"Fitness", "Salud"}

// User is a registered Healthy Life account.
type User struct {
	UserID       string                      `gorm:"column:user_id;primaryKey;size:190;not null"`
	Name         string                      `gorm:"column:name;size:320;not null"`
	Email        string                      `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string                      `gorm:"column:password_hash;size:255;not null"`
	Description  string                      `gorm:"column:description;type:text;not null;default:''"`
	Specialty    string                      `gorm:"column:specialty;size:190;not null;default:'General'"`
	Tags         datatypes.JSONSlice[string] `gorm:"column:tags"`
	RegisteredAt time.Time                   `gorm:"column:registered_at;not null"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// Registration carries the fields submitted on sign-up.
type Registration struct {
	Name     string
	Email    string
	Password string
}

// ProfileUpdate lists the editable profile fields; nil fields are left unchanged.
type ProfileUpdate struct {
	Name        *string
	Description *string
	Specialty   *string
	Tags        []string
	SetTags     bool
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(normalize(value))
}
