package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// lockKey names the advisory lock that serializes database tests across
// packages run in parallel by go test.
const lockKey = "spotshare:test-schema"

// AcquireDBLock holds a session advisory lock on a dedicated connection until
// the returned func is called.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", lockKey); err != nil {
		conn.Release()
		return nil, fmt.Errorf("take advisory lock: %w", err)
	}

	return func() error {
		defer conn.Release()
		_, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", lockKey)
		return err
	}, nil
}

// Migrations returns the migration base names under migrations/ in apply
// order, e.g. "000001_users".
func Migrations() ([]string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return nil, err
	}
	ups, err := filepath.Glob(filepath.Join(root, "migrations", "*.up.sql"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ups))
	for _, p := range ups {
		names = append(names, strings.TrimSuffix(filepath.Base(p), ".up.sql"))
	}
	sort.Strings(names)
	return names, nil
}

// ResetSchema runs every down migration newest first, then every up
// migration oldest first.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	names, err := Migrations()
	if err != nil {
		return err
	}
	for i := len(names) - 1; i >= 0; i-- {
		if err := applyMigration(ctx, pool, names[i], "down"); err != nil {
			return err
		}
	}
	for _, name := range names {
		if err := applyMigration(ctx, pool, name, "up"); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, name, direction string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}
	sql, err := os.ReadFile(filepath.Join(root, "migrations", name+"."+direction+".sql"))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", name, direction, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply %s %s: %w", name, direction, err)
	}
	return nil
}
