// Package memstore is an in-memory implementation of the user and place
// stores. Transactions run against a copy of the state that replaces the
// live state only when the callback succeeds.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/model"
	"github.com/spotshare/spotshare/internal/store"
)

type state struct {
	users  map[string]*model.User
	places map[string]*model.Place
}

func newState() state {
	return state{
		users:  map[string]*model.User{},
		places: map[string]*model.Place{},
	}
}

func (s state) clone() state {
	c := state{
		users:  make(map[string]*model.User, len(s.users)),
		places: make(map[string]*model.Place, len(s.places)),
	}
	for k, v := range s.users {
		c.users[k] = v.Clone()
	}
	for k, v := range s.places {
		c.places[k] = v.Clone()
	}
	return c
}

// DefaultTxTimeout bounds a transaction when no Option overrides it.
const DefaultTxTimeout = 5 * time.Second

// Store is safe for concurrent use. Transactions are fully serialized.
type Store struct {
	mu        sync.RWMutex
	state     state
	txTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTxTimeout bounds every transaction started by RunInTx.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{state: newState(), txTimeout: DefaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// CreateUser inserts a user. Emails are unique case-insensitively.
func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.users[user.ID]; ok {
		return store.ErrEmailExists
	}
	if findByEmail(s.state, user.Email) != nil {
		return store.ErrEmailExists
	}
	c := user.Clone()
	c.PlaceIDs = []string{}
	s.state.users[user.ID] = c
	return nil
}

// GetUserByID returns a copy of the user.
func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.state.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u.Clone(), nil
}

// GetUserByEmail returns a copy of the user with the given email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := findByEmail(s.state, email)
	if u == nil {
		return nil, store.ErrUserNotFound
	}
	return u.Clone(), nil
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers(context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*model.User, 0, len(s.state.users))
	for _, u := range s.state.users {
		users = append(users, u.Clone())
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// GetPlace returns a copy of the place.
func (s *Store) GetPlace(_ context.Context, id string) (*model.Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.state.places[id]
	if !ok {
		return nil, store.ErrPlaceNotFound
	}
	return p.Clone(), nil
}

// ListPlacesByCreator returns the user's places ordered by creation time.
func (s *Store) ListPlacesByCreator(_ context.Context, userID string) ([]*model.Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	places := []*model.Place{}
	for _, p := range s.state.places {
		if p.CreatorID == userID {
			places = append(places, p.Clone())
		}
	}
	sort.Slice(places, func(i, j int) bool {
		if places[i].CreatedAt.Equal(places[j].CreatedAt) {
			return places[i].ID < places[j].ID
		}
		return places[i].CreatedAt.Before(places[j].CreatedAt)
	})
	return places, nil
}

// RunInTx executes fn within a transactional copy of the store state. Like
// the PostgreSQL store it ignores caller cancellation and reports a
// transaction that outlives the timeout as transient, discarding its writes.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	const op = "memstore.tx"

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}
	if err := fn(txCtx, tx); err != nil {
		if txCtx.Err() != nil && apperror.KindOf(err) == apperror.KindInternal {
			return apperror.Transient(op, err)
		}
		return err
	}
	if err := txCtx.Err(); err != nil {
		return apperror.Transient(op, err)
	}
	s.state = tx.state
	return nil
}

func findByEmail(s state, email string) *model.User {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}
