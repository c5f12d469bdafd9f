// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/spotshare/spotshare/internal/model"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// MessageResponse carries a bare confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest is the body of POST /api/users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdatePlaceRequest is the JSON form of PATCH /api/places/{pid}.
type UpdatePlaceRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// PlaceResponse represents a place in API responses.
type PlaceResponse struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Address     string         `json:"address"`
	Location    model.Location `json:"location"`
	Image       string         `json:"image,omitempty"`
	Creator     string         `json:"creator"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PlaceEnvelope wraps a single place.
type PlaceEnvelope struct {
	Place PlaceResponse `json:"place"`
}

// PlaceListEnvelope wraps a list of places.
type PlaceListEnvelope struct {
	Places []PlaceResponse `json:"places"`
}

// UserResponse represents a user without credentials.
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Image     string    `json:"image,omitempty"`
	Places    []string  `json:"places"`
	CreatedAt time.Time `json:"created_at"`
}

// UserListEnvelope wraps a list of users.
type UserListEnvelope struct {
	Users []UserResponse `json:"users"`
}

// ToPlaceResponse converts a Place model to its DTO.
func ToPlaceResponse(p *model.Place) PlaceResponse {
	return PlaceResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Address:     p.Address,
		Location:    p.Location,
		Image:       p.ImageURL,
		Creator:     p.CreatorID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ToPlaceList converts places to DTOs. The result is never nil.
func ToPlaceList(places []*model.Place) PlaceListEnvelope {
	out := make([]PlaceResponse, len(places))
	for i, p := range places {
		out[i] = ToPlaceResponse(p)
	}
	return PlaceListEnvelope{Places: out}
}

// ToUserList converts users to DTOs.
func ToUserList(users []*model.User) UserListEnvelope {
	out := make([]UserResponse, len(users))
	for i, u := range users {
		places := u.PlaceIDs
		if places == nil {
			places = []string{}
		}
		out[i] = UserResponse{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Image:     u.ImageURL,
			Places:    places,
			CreatedAt: u.CreatedAt,
		}
	}
	return UserListEnvelope{Users: out}
}
