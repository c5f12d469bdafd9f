package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spotshare/spotshare/internal/model"
	"github.com/spotshare/spotshare/internal/store"
)

var txOptions = pgx.TxOptions{
	IsoLevel:   pgx.Serializable,
	AccessMode: pgx.ReadWrite,
}

// RunInTx runs fn in a serializable transaction. The transaction is detached
// from ctx cancellation and bounded by the repository's tx timeout instead,
// so a client disconnect cannot abandon a half-finished commit. Contention
// and timeouts surface as apperror transient errors.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	const op = "repository.tx"

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.txTimeout)
	defer cancel()

	pgTx, err := r.pool.BeginTx(txCtx, txOptions)
	if err != nil {
		return classifyTxError(op, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		// No-op after a successful commit.
		_ = pgTx.Rollback(context.WithoutCancel(txCtx))
	}()

	if err := fn(txCtx, &txStore{q: pgTx}); err != nil {
		return classifyTxError(op, err)
	}

	if err := pgTx.Commit(txCtx); err != nil {
		return classifyTxError(op, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// txStore implements store.Tx over an open pgx transaction.
type txStore struct {
	q querier
}

var _ store.Tx = (*txStore)(nil)

func (t *txStore) LockUser(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, t.q, selectUserSQL+` WHERE u.id = $1 FOR UPDATE OF u`, id)
}

func (t *txStore) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	return getPlace(ctx, t.q, selectPlaceSQL+` WHERE id = $1 FOR UPDATE`, id)
}

func (t *txStore) InsertPlace(ctx context.Context, place *model.Place) error {
	return insertPlace(ctx, t.q, place)
}

func (t *txStore) UpdatePlace(ctx context.Context, place *model.Place) error {
	return updatePlace(ctx, t.q, place)
}

func (t *txStore) DeletePlace(ctx context.Context, id string) error {
	return deletePlace(ctx, t.q, id)
}

func (t *txStore) AddUserPlace(ctx context.Context, userID, placeID string) error {
	query := `
		INSERT INTO user_places (user_id, place_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, place_id) DO NOTHING
	`

	if _, err := t.q.Exec(ctx, query, userID, placeID); err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrPlaceNotFound
		}
		return fmt.Errorf("failed to add place to user: %w", err)
	}
	return nil
}

func (t *txStore) RemoveUserPlace(ctx context.Context, userID, placeID string) error {
	query := `DELETE FROM user_places WHERE user_id = $1 AND place_id = $2`

	if _, err := t.q.Exec(ctx, query, userID, placeID); err != nil {
		return fmt.Errorf("failed to remove place from user: %w", err)
	}
	return nil
}
