package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/store"
)

func TestClassifyTxError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want apperror.Kind
	}{
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, apperror.KindTransient},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: codeDeadlockDetected}), apperror.KindTransient},
		{"lock not available", &pgconn.PgError{Code: codeLockNotAvailable}, apperror.KindTransient},
		{"deadline", fmt.Errorf("commit: %w", context.DeadlineExceeded), apperror.KindTransient},
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation}, apperror.KindInternal},
		{"domain error passes through", apperror.Authorization("op", "nope"), apperror.KindAuthorization},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := apperror.KindOf(classifyTxError("op", tt.err)); got != tt.want {
				t.Errorf("classifyTxError(%v) kind = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyTxError_KeepsSentinels(t *testing.T) {
	t.Parallel()

	err := classifyTxError("op", store.ErrPlaceNotFound)
	if !errors.Is(err, store.ErrPlaceNotFound) {
		t.Errorf("expected sentinel to pass through, got %v", err)
	}
	if classifyTxError("op", nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	if !isUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})) {
		t.Error("expected wrapped 23505 to be a unique violation")
	}
	if isUniqueViolation(errors.New("duplicate key value violates unique constraint")) {
		t.Error("plain errors are not classified by message text")
	}
	if !isForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("expected 23503 to be a foreign key violation")
	}
}
