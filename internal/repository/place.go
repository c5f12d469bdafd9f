package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spotshare/spotshare/internal/model"
	"github.com/spotshare/spotshare/internal/store"
)

const selectPlaceSQL = `
	SELECT id, title, description, address, lat, lng, image_key, creator_id, created_at, updated_at
	FROM places`

// GetPlace retrieves a place by its ID.
func (r *Repository) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	return getPlace(ctx, r.pool, selectPlaceSQL+` WHERE id = $1`, id)
}

// ListPlacesByCreator returns the places created by userID, oldest first.
// An unknown user yields an empty list.
func (r *Repository) ListPlacesByCreator(ctx context.Context, userID string) ([]*model.Place, error) {
	rows, err := r.pool.Query(ctx, selectPlaceSQL+` WHERE creator_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list places: %w", err)
	}
	defer rows.Close()

	places := []*model.Place{}
	for rows.Next() {
		place, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		places = append(places, place)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating places: %w", err)
	}

	return places, nil
}

func getPlace(ctx context.Context, q querier, query string, id string) (*model.Place, error) {
	place, err := scanPlace(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPlaceNotFound
		}
		return nil, fmt.Errorf("failed to get place: %w", err)
	}
	return place, nil
}

func insertPlace(ctx context.Context, q querier, place *model.Place) error {
	query := `
		INSERT INTO places (id, title, description, address, lat, lng, image_key, creator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := q.Exec(ctx, query,
		place.ID,
		place.Title,
		place.Description,
		place.Address,
		place.Location.Lat,
		place.Location.Lng,
		place.ImageKey,
		place.CreatorID,
		place.CreatedAt,
		place.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrPlaceExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrUserNotFound
		}
		return fmt.Errorf("failed to create place: %w", err)
	}

	return nil
}

// updatePlace writes the mutable fields. CreatorID is never changed.
func updatePlace(ctx context.Context, q querier, place *model.Place) error {
	query := `
		UPDATE places
		SET title = $2, description = $3, address = $4, lat = $5, lng = $6, image_key = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := q.Exec(ctx, query,
		place.ID,
		place.Title,
		place.Description,
		place.Address,
		place.Location.Lat,
		place.Location.Lng,
		place.ImageKey,
		place.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update place: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrPlaceNotFound
	}

	return nil
}

func deletePlace(ctx context.Context, q querier, id string) error {
	result, err := q.Exec(ctx, `DELETE FROM places WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("place %s still referenced by its creator: %w", id, err)
		}
		return fmt.Errorf("failed to delete place: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrPlaceNotFound
	}

	return nil
}

// scanPlace scans a single row into a Place model.
func scanPlace(row pgx.Row) (*model.Place, error) {
	var place model.Place
	err := row.Scan(
		&place.ID,
		&place.Title,
		&place.Description,
		&place.Address,
		&place.Location.Lat,
		&place.Location.Lng,
		&place.ImageKey,
		&place.CreatorID,
		&place.CreatedAt,
		&place.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &place, nil
}
