// Package store declares the persistence contracts for users and places.
// The pgx-backed repository and the in-memory store both implement them.
package store

import (
	"context"
	"errors"

	"github.com/spotshare/spotshare/internal/model"
)

// Common errors for store operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailExists   = errors.New("email already exists")
	ErrPlaceNotFound = errors.New("place not found")
	ErrPlaceExists   = errors.New("place already exists")
)

// Users is the identity store.
type Users interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// Places is the read side of the place store.
type Places interface {
	GetPlace(ctx context.Context, id string) (*model.Place, error)
	ListPlacesByCreator(ctx context.Context, userID string) ([]*model.Place, error)
}

// Tx is the write side of the place store. Every call made through one Tx
// commits together or not at all.
type Tx interface {
	// LockUser loads the user and holds it exclusively until the
	// transaction ends, serializing place-set changes per user.
	LockUser(ctx context.Context, id string) (*model.User, error)
	GetPlace(ctx context.Context, id string) (*model.Place, error)
	InsertPlace(ctx context.Context, place *model.Place) error
	UpdatePlace(ctx context.Context, place *model.Place) error
	DeletePlace(ctx context.Context, id string) error
	AddUserPlace(ctx context.Context, userID, placeID string) error
	RemoveUserPlace(ctx context.Context, userID, placeID string) error
}

// Transactor runs fn inside one transaction. fn's error aborts it.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is the full persistence surface the services need.
type Store interface {
	Users
	Places
	Transactor
	Ping(ctx context.Context) error
}
