package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/spotshare/spotshare/internal/model"
)

// placeholderHash is a well-formed argon2id string that matches no password.
const placeholderHash = "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"

func now() time.Time {
	// Postgres keeps microseconds; truncating lets round-trips compare equal.
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewTestUser returns an unsaved user with a unique email and no places.
func NewTestUser(t testing.TB, name string) *model.User {
	t.Helper()
	id := ulid.Make().String()
	return &model.User{
		ID:           id,
		Name:         name,
		Email:        strings.ToLower(name + "-" + id + "@test.com"),
		PasswordHash: placeholderHash,
		PlaceIDs:     []string{},
		CreatedAt:    now(),
	}
}

// NewTestPlace returns an unsaved place owned by creatorID.
func NewTestPlace(t testing.TB, creatorID string) *model.Place {
	t.Helper()
	ts := now()
	return &model.Place{
		ID:          ulid.Make().String(),
		Title:       "Empire State Building",
		Description: "One of the most famous sky scrapers in the world!",
		Address:     "20 W 34th St, New York, NY 10001",
		Location:    model.Location{Lat: 40.7484405, Lng: -73.9878584},
		CreatorID:   creatorID,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}
