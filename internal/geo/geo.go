// Package geo resolves street addresses to coordinates.
package geo

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"

	"github.com/spotshare/spotshare/internal/model"
)

// ErrNoResults is returned when an address cannot be resolved.
var ErrNoResults = errors.New("no location found for address")

// Geocoder resolves an address to a location.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (model.Location, error)
}

// Static is an offline geocoder. It maps each normalized address to a
// stable coordinate so local runs and tests need no network.
type Static struct{}

// NewStatic returns an offline geocoder.
func NewStatic() *Static {
	return &Static{}
}

// Geocode returns a deterministic location for address.
func (Static) Geocode(_ context.Context, address string) (model.Location, error) {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))
	if normalized == "" {
		return model.Location{}, ErrNoResults
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(normalized))
	sum := h.Sum64()

	lat := float64(sum>>32)/float64(math.MaxUint32)*180 - 90
	lng := float64(sum&math.MaxUint32)/float64(math.MaxUint32)*360 - 180

	return model.Location{Lat: round(lat), Lng: round(lng)}, nil
}

func round(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}
