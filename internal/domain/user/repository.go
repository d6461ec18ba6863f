// internal/domain/user/repository.go
package user

import "context"

// Repository defines persistence operations for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	Update(ctx context.Context, u *User) error

	// ListActiveReviewers returns active users with the curator or admin role.
	ListActiveReviewers(ctx context.Context) ([]*User, error)
}
