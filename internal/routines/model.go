package routines

import (
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/streak"
	"gorm.io/datatypes"
)

// Routine models a user-defined workout.
type Routine struct {
	RoutineID       string         `gorm:"column:routine_id;primaryKey;size:190;not null"`
	OwnerID         string         `gorm:"column:owner_id;size:190;not null;index:idx_routines_owner_created,priority:1"`
	Name            string         `gorm:"column:name;size:320;not null"`
	Description     string         `gorm:"column:description;type:text;not null;default:''"`
	Type            string         `gorm:"column:routine_type;size:190;not null"`
	DurationMinutes int            `gorm:"column:duration_minutes;not null;default:0"`
	Exercises       datatypes.JSON `gorm:"column:exercises"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null;index:idx_routines_owner_created,priority:2"`
	Completed       bool           `gorm:"column:completed;not null;default:false"`
	CompletedAt     *time.Time     `gorm:"column:completed_at"`
}

// TableName provides the explicit table binding for GORM.
func (Routine) TableName() string {
	return "routines"
}

// Completion is the append-only log entry written each time a routine is completed.
// It is the source of truth for streaks.
type Completion struct {
	CompletionID string    `gorm:"column:completion_id;primaryKey;size:190;not null"`
	OwnerID      string    `gorm:"column:owner_id;size:190;not null;index:idx_completions_owner_time,priority:1"`
	RoutineID    string    `gorm:"column:routine_id;size:190;not null;index"`
	OccurredAt   time.Time `gorm:"column:occurred_at;not null;index:idx_completions_owner_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Completion) TableName() string {
	return "routine_completions"
}

// Event converts the stored row into the streak calculator's input.
func (c Completion) Event() streak.CompletionEvent {
	return streak.CompletionEvent{OwnerID: c.OwnerID, OccurredAt: c.OccurredAt}
}

// Draft describes a routine submitted by a user.
type Draft struct {
	Name            string
	Description     string
	Type            string
	DurationMinutes int
	Exercises       []byte
}
