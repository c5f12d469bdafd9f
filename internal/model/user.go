// Package model defines domain entities for the application.
package model

import "time"

// User owns places. PlaceIDs mirrors the set of places whose CreatorID is
// this user; it is only ever changed together with those places.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	ImageKey     string    `json:"-"`
	ImageURL     string    `json:"image,omitempty"`
	PlaceIDs     []string  `json:"places"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PlaceIDs = make([]string, len(u.PlaceIDs))
	copy(c.PlaceIDs, u.PlaceIDs)
	return &c
}

// HasPlace reports whether placeID is in the user's place set.
func (u *User) HasPlace(placeID string) bool {
	for _, id := range u.PlaceIDs {
		if id == placeID {
			return true
		}
	}
	return false
}
