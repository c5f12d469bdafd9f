package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spotshare/spotshare/internal/model"
	"github.com/spotshare/spotshare/internal/store"
)

// selectUserSQL reads a user together with its ordered place set.
const selectUserSQL = `
	SELECT u.id, u.name, u.email, u.password_hash, u.image_key, u.created_at,
	       COALESCE((
	           SELECT array_agg(up.place_id ORDER BY up.added_at, up.place_id)
	           FROM user_places up
	           WHERE up.user_id = u.id
	       ), '{}')
	FROM users u`

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, image_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.ImageKey,
		user.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, r.pool, selectUserSQL+` WHERE u.id = $1`, id)
}

// GetUserByEmail retrieves a user by their email address, case-insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return getUser(ctx, r.pool, selectUserSQL+` WHERE lower(u.email) = lower($1)`, email)
}

// ListUsers returns all users, oldest first.
func (r *Repository) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := r.pool.Query(ctx, selectUserSQL+` ORDER BY u.created_at, u.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func getUser(ctx context.Context, q querier, query string, arg string) (*model.User, error) {
	user, err := scanUser(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// scanUser scans a single row into a User model. The place set arrives as a
// binary text[]; pgx decodes it into []string directly.
func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	var placeIDs []string
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.ImageKey,
		&user.CreatedAt,
		&placeIDs,
	)
	if err != nil {
		return nil, err
	}
	if placeIDs == nil {
		placeIDs = []string{}
	}
	user.PlaceIDs = placeIDs
	return &user, nil
}
