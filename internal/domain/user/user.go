// internal/domain/user/user.go
package user

import (
	"database/sql"
	"time"
)

// Role determines what a user may do in the course flow.
type Role string

const (
	RoleLearner Role = "LEARNER"
	RoleCurator Role = "CURATOR"
	RoleAdmin   Role = "ADMIN"
)

// User represents a platform account: a learner progressing through the
// course, or a curator/admin reviewing submissions.
type User struct {
	ID         int64
	TelegramID sql.NullInt64 // Chat identity; learners without it cannot use recording prompts
	FirstName  string
	LastName   sql.NullString
	Position   sql.NullString // Collected during the registration dialog
	Role       Role
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CanReview reports whether the user receives and decides submissions.
func (u *User) CanReview() bool {
	return u.Role == RoleCurator || u.Role == RoleAdmin
}

// FullName joins first and last name for display.
func (u *User) FullName() string {
	if u.LastName.Valid && u.LastName.String != "" {
		return u.FirstName + " " + u.LastName.String
	}
	return u.FirstName
}
