package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	maxTitleLength      = 320
	// DefaultCategory is applied when a note is saved without a category.
	DefaultCategory = "General"
)

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrMissingTitle indicates that a note was submitted without a title.
	ErrMissingTitle = errors.New("notes: title is required")
	// ErrTitleTooLong indicates that a title exceeds storage bounds.
	ErrTitleTooLong = errors.New("notes: title too long")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// Note models a free-text user note.
type Note struct {
	NoteID      string    `gorm:"column:note_id;primaryKey;size:190;not null"`
	OwnerID     string    `gorm:"column:owner_id;size:190;not null;index:idx_notes_owner_created,priority:1"`
	Title       string    `gorm:"column:title;size:320;not null"`
	Description string    `gorm:"column:description;type:text;not null;default:''"`
	Category    string    `gorm:"column:category;size:190;not null;default:'General'"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_notes_owner_created,priority:2"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Draft carries the user-editable fields of a note.
type Draft struct {
	Title       string
	Description string
	Category    string
}

func (d Draft) normalized() (Draft, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Category = strings.TrimSpace(d.Category)
	if d.Title == "" {
		return Draft{}, ErrMissingTitle
	}
	if len(d.Title) > maxTitleLength {
		return Draft{}, fmt.Errorf("%w: exceeds %d characters", ErrTitleTooLong, maxTitleLength)
	}
	if d.Category == "" {
		d.Category = DefaultCategory
	}
	return d, nil
}
