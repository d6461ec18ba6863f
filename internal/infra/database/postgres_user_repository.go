package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"course_delivery_bot/internal/domain/user"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Custom errors
var ErrUserNotFound = fmt.Errorf("user not found")
var ErrDuplicateTelegramID = fmt.Errorf("user with this Telegram ID already exists")

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (telegram_id, first_name, last_name, position, role, is_active)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, u.TelegramID, u.FirstName, u.LastName, u.Position, u.Role, u.IsActive).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "unique constraint") && strings.Contains(err.Error(), "users_telegram_id_key") {
			return ErrDuplicateTelegramID
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT id, telegram_id, first_name, last_name, position, role, is_active, created_at, updated_at
               FROM users WHERE id = $1`
	u := &user.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.TelegramID, &u.FirstName, &u.LastName, &u.Position, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*user.User, error) {
	query := `SELECT id, telegram_id, first_name, last_name, position, role, is_active, created_at, updated_at
               FROM users WHERE telegram_id = $1`
	u := &user.User{}
	err := r.db.QueryRowContext(ctx, query, telegramID).Scan(
		&u.ID, &u.TelegramID, &u.FirstName, &u.LastName, &u.Position, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by Telegram ID: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, u *user.User) error {
	query := `UPDATE users
               SET telegram_id = $1, first_name = $2, last_name = $3, position = $4, role = $5, is_active = $6, updated_at = NOW()
               WHERE id = $7
               RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query, u.TelegramID, u.FirstName, u.LastName, u.Position, u.Role, u.IsActive, u.ID).
		Scan(&u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrUserNotFound
		}
		return fmt.Errorf("error updating user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) ListActiveReviewers(ctx context.Context) ([]*user.User, error) {
	query := `SELECT id, telegram_id, first_name, last_name, position, role, is_active, created_at, updated_at
               FROM users
               WHERE is_active = TRUE AND role IN ($1, $2)
               ORDER BY first_name, last_name`

	rows, err := r.db.QueryContext(ctx, query, user.RoleCurator, user.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("error listing active reviewers: %w", err)
	}
	defer rows.Close()

	users := make([]*user.User, 0)
	for rows.Next() {
		u := &user.User{}
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.LastName, &u.Position, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning reviewer: %w", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviewers: %w", err)
	}
	return users, nil
}
