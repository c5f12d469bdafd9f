package repository

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// binaryRow is a pgx.Row whose columns go through the binary wire format,
// the format pgx requests from the server for every column it can decode.
type binaryRow struct {
	m      *pgtype.Map
	oids   []uint32
	values []any
}

func (r binaryRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan %d columns into %d targets", len(r.values), len(dest))
	}
	for i := range dest {
		buf, err := r.m.Encode(r.oids[i], pgtype.BinaryFormatCode, r.values[i], nil)
		if err != nil {
			return fmt.Errorf("encode column %d: %w", i, err)
		}
		if err := r.m.Scan(r.oids[i], pgtype.BinaryFormatCode, buf, dest[i]); err != nil {
			return fmt.Errorf("scan column %d: %w", i, err)
		}
	}
	return nil
}

func userRow(placeIDs []string) binaryRow {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return binaryRow{
		m: pgtype.NewMap(),
		oids: []uint32{
			pgtype.TextOID, pgtype.TextOID, pgtype.TextOID, pgtype.TextOID, pgtype.TextOID,
			pgtype.TimestamptzOID, pgtype.TextArrayOID,
		},
		values: []any{"u1", "Max", "max@test.com", "hash", "images/u1.png", created, placeIDs},
	}
}

func TestScanUser_BinaryPlaceSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{"two places", []string{"p1", "p2"}, []string{"p1", "p2"}},
		{"no places", []string{}, []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			user, err := scanUser(userRow(tt.ids))
			if err != nil {
				t.Fatalf("scanUser: %v", err)
			}
			if user.PlaceIDs == nil || !reflect.DeepEqual(user.PlaceIDs, tt.want) {
				t.Errorf("PlaceIDs = %#v, want %#v", user.PlaceIDs, tt.want)
			}
			if user.ID != "u1" || user.Email != "max@test.com" || user.ImageKey != "images/u1.png" {
				t.Errorf("unexpected user %+v", user)
			}
		})
	}
}

func TestScanPlace_Binary(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	row := binaryRow{
		m: pgtype.NewMap(),
		oids: []uint32{
			pgtype.TextOID, pgtype.TextOID, pgtype.TextOID, pgtype.TextOID,
			pgtype.Float8OID, pgtype.Float8OID, pgtype.TextOID, pgtype.TextOID,
			pgtype.TimestamptzOID, pgtype.TimestamptzOID,
		},
		values: []any{"p1", "Tower", "A tall tower", "Somewhere", 40.5, -73.9, "", "u1", at, at},
	}

	place, err := scanPlace(row)
	if err != nil {
		t.Fatalf("scanPlace: %v", err)
	}
	if place.Location.Lat != 40.5 || place.Location.Lng != -73.9 || place.CreatorID != "u1" {
		t.Errorf("unexpected place %+v", place)
	}
	if !place.CreatedAt.Equal(at) || place.HasImage() {
		t.Errorf("unexpected place %+v", place)
	}
}
