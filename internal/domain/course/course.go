// internal/domain/course/course.go
package course

import (
	"database/sql"
	"time"

	"course_delivery_bot/internal/domain/submission"
)

// Module is one unlockable unit of the course, made of ordered steps.
type Module struct {
	ID        int64
	Title     string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StepType distinguishes material to read from tasks that take an answer.
type StepType string

const (
	StepTypeInfo StepType = "INFO"
	StepTypeTask StepType = "TASK"
)

// Step is a single unit of content or work inside a module.
type Step struct {
	ID              int64
	ModuleID        int64 // Foreign key to modules.id
	Title           string
	Content         string // Task text shown to the learner and to the scoring collaborator
	Type            StepType
	AnswerType      submission.AnswerType // Expected answer kind for TASK steps
	MaxScore        float64
	Required        bool // Required steps gate module completion
	RequiresScoring bool // Whether the scoring collaborator pre-scores answers
	Rubric          sql.NullString
	Position        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Submittable reports whether the step accepts answers at all.
func (s *Step) Submittable() bool {
	return s.Type == StepTypeTask
}
