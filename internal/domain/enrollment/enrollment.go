// internal/domain/enrollment/enrollment.go
package enrollment

import (
	"database/sql"
	"time"
)

// Status is the learner's access state for one module. A locked module keeps
// its row with StatusLocked; row absence means the learner was never granted
// access at all.
type Status string

const (
	StatusLocked     Status = "LOCKED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Enrollment is a learner's access/progress record for one module.
type Enrollment struct {
	ID          int64
	UserID      int64 // Foreign key to users.id
	ModuleID    int64 // Foreign key to modules.id
	Status      Status
	UnlockedAt  sql.NullTime
	CompletedAt sql.NullTime
	UnlockedBy  sql.NullInt64 // Curator who unlocked; NULL for auto-unlock
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
