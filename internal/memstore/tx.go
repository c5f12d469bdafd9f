package memstore

import (
	"context"
	"errors"

	"github.com/spotshare/spotshare/internal/model"
	"github.com/spotshare/spotshare/internal/store"
)

var errStillReferenced = errors.New("place still referenced by its creator")

type transaction struct {
	state state
}

var _ store.Tx = (*transaction)(nil)

func (tx *transaction) LockUser(_ context.Context, id string) (*model.User, error) {
	u, ok := tx.state.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (tx *transaction) GetPlace(_ context.Context, id string) (*model.Place, error) {
	p, ok := tx.state.places[id]
	if !ok {
		return nil, store.ErrPlaceNotFound
	}
	return p.Clone(), nil
}

func (tx *transaction) InsertPlace(_ context.Context, place *model.Place) error {
	if _, ok := tx.state.places[place.ID]; ok {
		return store.ErrPlaceExists
	}
	if _, ok := tx.state.users[place.CreatorID]; !ok {
		return store.ErrUserNotFound
	}
	tx.state.places[place.ID] = place.Clone()
	return nil
}

func (tx *transaction) UpdatePlace(_ context.Context, place *model.Place) error {
	existing, ok := tx.state.places[place.ID]
	if !ok {
		return store.ErrPlaceNotFound
	}
	c := place.Clone()
	c.CreatorID = existing.CreatorID
	c.CreatedAt = existing.CreatedAt
	tx.state.places[place.ID] = c
	return nil
}

// DeletePlace refuses to delete a place still in its creator's place set.
func (tx *transaction) DeletePlace(_ context.Context, id string) error {
	p, ok := tx.state.places[id]
	if !ok {
		return store.ErrPlaceNotFound
	}
	if u, ok := tx.state.users[p.CreatorID]; ok && u.HasPlace(id) {
		return errStillReferenced
	}
	delete(tx.state.places, id)
	return nil
}

// AddUserPlace mirrors the relational constraint: only a place the user
// created may join the user's place set.
func (tx *transaction) AddUserPlace(_ context.Context, userID, placeID string) error {
	u, ok := tx.state.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	p, ok := tx.state.places[placeID]
	if !ok || p.CreatorID != userID {
		return store.ErrPlaceNotFound
	}
	if !u.HasPlace(placeID) {
		u.PlaceIDs = append(u.PlaceIDs, placeID)
	}
	return nil
}

func (tx *transaction) RemoveUserPlace(_ context.Context, userID, placeID string) error {
	u, ok := tx.state.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	out := u.PlaceIDs[:0]
	for _, id := range u.PlaceIDs {
		if id != placeID {
			out = append(out, id)
		}
	}
	u.PlaceIDs = out
	return nil
}
