package model

import (
	"strconv"
	"time"
)

// Location is a geocoded coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a resource owned by exactly one user.
type Place struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Address     string    `json:"address"`
	Location    Location  `json:"location"`
	ImageKey    string    `json:"-"`
	ImageURL    string    `json:"image,omitempty"`
	CreatorID   string    `json:"creator"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasImage reports whether the place references a stored image.
func (p *Place) HasImage() bool {
	return p.ImageKey != ""
}

// Clone returns a copy of the place.
func (p *Place) Clone() *Place {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// CachedPlace represents place data stored in Redis cache.
// Uses string types for Redis hash compatibility.
type CachedPlace struct {
	Title       string `redis:"title"`
	Description string `redis:"description"`
	Address     string `redis:"address"`
	Lat         string `redis:"lat"`
	Lng         string `redis:"lng"`
	ImageKey    string `redis:"image_key"`
	CreatorID   string `redis:"creator_id"`
	CreatedAt   string `redis:"created_at"` // Unix nanoseconds
	UpdatedAt   string `redis:"updated_at"` // Unix nanoseconds
}

// ToPlace converts CachedPlace to the Place domain model.
func (c *CachedPlace) ToPlace(id string) *Place {
	place := &Place{
		ID:          id,
		Title:       c.Title,
		Description: c.Description,
		Address:     c.Address,
		ImageKey:    c.ImageKey,
		CreatorID:   c.CreatorID,
	}

	if v, err := strconv.ParseFloat(c.Lat, 64); err == nil {
		place.Location.Lat = v
	}
	if v, err := strconv.ParseFloat(c.Lng, 64); err == nil {
		place.Location.Lng = v
	}
	if ts, err := strconv.ParseInt(c.CreatedAt, 10, 64); err == nil {
		place.CreatedAt = time.Unix(0, ts).UTC()
	}
	if ts, err := strconv.ParseInt(c.UpdatedAt, 10, 64); err == nil {
		place.UpdatedAt = time.Unix(0, ts).UTC()
	}

	return place
}

// ToCachedPlace converts Place to its cached form.
func (p *Place) ToCachedPlace() *CachedPlace {
	return &CachedPlace{
		Title:       p.Title,
		Description: p.Description,
		Address:     p.Address,
		Lat:         strconv.FormatFloat(p.Location.Lat, 'f', -1, 64),
		Lng:         strconv.FormatFloat(p.Location.Lng, 'f', -1, 64),
		ImageKey:    p.ImageKey,
		CreatorID:   p.CreatorID,
		CreatedAt:   strconv.FormatInt(p.CreatedAt.UnixNano(), 10),
		UpdatedAt:   strconv.FormatInt(p.UpdatedAt.UnixNano(), 10),
	}
}
