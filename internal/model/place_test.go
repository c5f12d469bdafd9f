package model

import (
	"testing"
	"time"
)

func TestPlace_ToCachedPlace_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC)
	place := &Place{
		ID:          "01HQ",
		Title:       "Empire State Building",
		Description: "One of the most famous sky scrapers in the world!",
		Address:     "20 W 34th St, New York, NY 10001",
		Location:    Location{Lat: 40.7484405, Lng: -73.9878584},
		ImageKey:    "places/abc.png",
		CreatorID:   "u1",
		CreatedAt:   now,
		UpdatedAt:   now.Add(time.Minute),
	}

	got := place.ToCachedPlace().ToPlace("01HQ")

	if got.Title != place.Title || got.Address != place.Address || got.CreatorID != place.CreatorID {
		t.Errorf("attributes not preserved: %+v", got)
	}
	if got.Location != place.Location {
		t.Errorf("Location = %+v, want %+v", got.Location, place.Location)
	}
	if got.ImageKey != "places/abc.png" {
		t.Errorf("ImageKey = %s, want places/abc.png", got.ImageKey)
	}
	if !got.CreatedAt.Equal(place.CreatedAt) || !got.UpdatedAt.Equal(place.UpdatedAt) {
		t.Errorf("timestamps not preserved: %v %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestPlace_HasImage(t *testing.T) {
	t.Parallel()

	if (&Place{}).HasImage() {
		t.Error("empty ImageKey should report no image")
	}
	if !(&Place{ImageKey: "k"}).HasImage() {
		t.Error("non-empty ImageKey should report an image")
	}
}

func TestUser_CloneIsDeep(t *testing.T) {
	t.Parallel()

	u := &User{ID: "u1", PlaceIDs: []string{"p1"}}
	c := u.Clone()
	c.PlaceIDs[0] = "p2"
	c.PlaceIDs = append(c.PlaceIDs, "p3")

	if u.PlaceIDs[0] != "p1" || len(u.PlaceIDs) != 1 {
		t.Errorf("clone shares PlaceIDs with original: %v", u.PlaceIDs)
	}
	if !c.HasPlace("p3") || c.HasPlace("p1") {
		t.Errorf("HasPlace mismatch on clone: %v", c.PlaceIDs)
	}
}
