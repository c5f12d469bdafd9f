package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/cache"
	"github.com/spotshare/spotshare/internal/geo"
	"github.com/spotshare/spotshare/internal/metrics"
	"github.com/spotshare/spotshare/internal/model"
	"github.com/spotshare/spotshare/internal/reclaim"
	"github.com/spotshare/spotshare/internal/store"
)

const (
	minDescriptionLength = 5

	msgCreateFailed  = "Creating place failed, please try again."
	msgUpdateFailed  = "Something went wrong, could not update place."
	msgDeleteFailed  = "Something went wrong, could not delete place."
	msgFetchFailed   = "Something went wrong, could not find a place."
	msgListFailed    = "Fetching places failed, please try again later."
	msgNoLocation    = "Could not find location for the specified address."
	msgDeleteMissing = "Could not find place for this id."
	msgNotEditor     = "You are not allowed to edit this place."
	msgNotDeleter    = "You are not allowed to delete this place."
)

// PlaceService manages the lifecycle of places and their images. A place
// and its creator's place set always change in the same transaction;
// images are written before the commit that references them and deleted
// only after the commit that releases them.
type PlaceService struct {
	store    store.Store
	images   ImageStore
	geocoder geo.Geocoder
	tx       *txRunner
	janitor  *janitor
	cache    PlaceCache
	metrics  metrics.Recorder
	logger   *slog.Logger
	opts     options
}

// NewPlaceService creates a new PlaceService.
func NewPlaceService(st store.Store, images ImageStore, geocoder geo.Geocoder, logger *slog.Logger, opts ...Option) *PlaceService {
	o := buildOptions(opts)
	logger = logger.With("component", "service.place")
	return &PlaceService{
		store:    st,
		images:   images,
		geocoder: geocoder,
		tx: &txRunner{
			transactor:  st,
			metrics:     o.metrics,
			maxAttempts: o.maxAttempts,
			backoff:     NextRetryDelay,
		},
		janitor: &janitor{
			images:  images,
			orphans: o.orphans,
			metrics: o.metrics,
			logger:  logger,
		},
		cache:   o.cache,
		metrics: o.metrics,
		logger:  logger,
		opts:    o,
	}
}

// CreatePlaceInput defines input for creating a place.
type CreatePlaceInput struct {
	Title       string
	Description string
	Address     string
	Image       *Image
}

// UpdatePlaceInput defines input for updating a place. Nil fields are left
// unchanged; at least one change is required.
type UpdatePlaceInput struct {
	Title       *string
	Description *string
	Image       *Image
}

// Create stores a new place owned by userID and adds it to the user's
// place set.
func (s *PlaceService) Create(ctx context.Context, userID string, in CreatePlaceInput) (*model.Place, error) {
	const op = "place.create"

	in.Address = strings.TrimSpace(in.Address)
	if err := validatePlaceAttrs(op, &in.Title, &in.Description); err != nil {
		return nil, err
	}
	if in.Address == "" {
		return nil, apperror.Validation(op, msgInvalidInputs)
	}
	if err := validateImage(op, in.Image, s.opts.maxImageSize); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, mapStoreError(op, err, msgCreateFailed)
	}

	location, err := s.geocoder.Geocode(ctx, in.Address)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, op, msgNoLocation, err)
	}

	now := s.opts.now().UTC()
	place := &model.Place{
		ID:          newID(),
		Title:       in.Title,
		Description: in.Description,
		Address:     in.Address,
		Location:    location,
		CreatorID:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if in.Image != nil {
		key, err := s.images.Put(ctx, in.Image.Data, in.Image.ContentType)
		if err != nil {
			return nil, apperror.Service(op, msgCreateFailed, err)
		}
		place.ImageKey = key
	}

	err = s.tx.run(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		if err := tx.InsertPlace(ctx, place); err != nil {
			return err
		}
		return tx.AddUserPlace(ctx, userID, place.ID)
	})
	if err != nil {
		s.janitor.discard(ctx, op, place.ImageKey, reclaim.ReasonCompensation, place.ID, userID)
		return nil, mapStoreError(op, err, msgCreateFailed)
	}

	s.metrics.IncPlaceCreated()
	s.logger.Info("place created",
		"place_id", place.ID,
		"user_id", userID,
		"has_image", place.HasImage(),
	)

	return s.present(place), nil
}

// Update changes a place owned by userID. A new image replaces the old one;
// the old image is deleted only once the change is committed.
func (s *PlaceService) Update(ctx context.Context, userID, placeID string, in UpdatePlaceInput) (*model.Place, error) {
	const op = "place.update"

	if in.Title == nil && in.Description == nil && in.Image == nil {
		return nil, apperror.Validation(op, msgInvalidInputs)
	}
	if err := validatePlaceAttrs(op, in.Title, in.Description); err != nil {
		return nil, err
	}
	if err := validateImage(op, in.Image, s.opts.maxImageSize); err != nil {
		return nil, err
	}

	current, err := s.store.GetPlace(ctx, placeID)
	if err != nil {
		return nil, mapStoreError(op, err, msgUpdateFailed)
	}
	if err := requireOwner(op, current, userID, msgNotEditor); err != nil {
		return nil, err
	}

	var newKey string
	if in.Image != nil {
		newKey, err = s.images.Put(ctx, in.Image.Data, in.Image.ContentType)
		if err != nil {
			return nil, apperror.Service(op, msgUpdateFailed, err)
		}
	}

	var updated *model.Place
	var oldKey string
	err = s.tx.run(ctx, func(ctx context.Context, tx store.Tx) error {
		place, err := tx.GetPlace(ctx, placeID)
		if err != nil {
			return err
		}
		if err := requireOwner(op, place, userID, msgNotEditor); err != nil {
			return err
		}

		oldKey = place.ImageKey
		if in.Title != nil {
			place.Title = *in.Title
		}
		if in.Description != nil {
			place.Description = *in.Description
		}
		if newKey != "" {
			place.ImageKey = newKey
		}
		place.UpdatedAt = s.opts.now().UTC()

		if err := tx.UpdatePlace(ctx, place); err != nil {
			return err
		}
		updated = place
		return nil
	})
	if err != nil {
		s.janitor.discard(ctx, op, newKey, reclaim.ReasonCompensation, placeID, userID)
		return nil, mapStoreError(op, err, msgUpdateFailed)
	}

	s.invalidate(ctx, placeID)
	if newKey != "" && oldKey != newKey {
		s.janitor.discard(ctx, op, oldKey, reclaim.ReasonRetired, placeID, userID)
	}

	s.metrics.IncPlaceUpdated()
	s.logger.Info("place updated",
		"place_id", placeID,
		"user_id", userID,
		"image_replaced", newKey != "",
	)

	return s.present(updated), nil
}

// Delete removes a place owned by userID, drops it from the user's place
// set and then deletes its image.
func (s *PlaceService) Delete(ctx context.Context, userID, placeID string) error {
	const op = "place.delete"

	current, err := s.store.GetPlace(ctx, placeID)
	if err != nil {
		if errors.Is(err, store.ErrPlaceNotFound) {
			return apperror.Wrap(apperror.KindNotFound, op, msgDeleteMissing, err)
		}
		return mapStoreError(op, err, msgDeleteFailed)
	}
	if err := requireOwner(op, current, userID, msgNotDeleter); err != nil {
		return err
	}

	var imageKey string
	err = s.tx.run(ctx, func(ctx context.Context, tx store.Tx) error {
		// Owner row first, then the place: the same order Create uses.
		if _, err := tx.LockUser(ctx, current.CreatorID); err != nil {
			return err
		}
		place, err := tx.GetPlace(ctx, placeID)
		if err != nil {
			return err
		}
		if err := requireOwner(op, place, userID, msgNotDeleter); err != nil {
			return err
		}

		imageKey = place.ImageKey
		if err := tx.RemoveUserPlace(ctx, place.CreatorID, place.ID); err != nil {
			return err
		}
		return tx.DeletePlace(ctx, place.ID)
	})
	if err != nil {
		if errors.Is(err, store.ErrPlaceNotFound) {
			return apperror.Wrap(apperror.KindNotFound, op, msgDeleteMissing, err)
		}
		return mapStoreError(op, err, msgDeleteFailed)
	}

	s.invalidate(ctx, placeID)
	s.janitor.discard(ctx, op, imageKey, reclaim.ReasonRetired, placeID, userID)

	s.metrics.IncPlaceDeleted()
	s.logger.Info("place deleted",
		"place_id", placeID,
		"user_id", userID,
	)

	return nil
}

// Get returns a place by ID, consulting the cache first when configured.
// On a miss the fill is reserved before the store read, so an update or
// delete committing in between revokes it and the stale row is not cached.
func (s *PlaceService) Get(ctx context.Context, placeID string) (*model.Place, error) {
	const op = "place.get"

	var token string
	if s.cache != nil {
		cached, err := s.cache.GetPlace(ctx, placeID)
		switch {
		case err == nil:
			s.metrics.IncPlaceCacheHit()
			return s.present(cached), nil
		case errors.Is(err, cache.ErrCacheMiss):
			s.metrics.IncPlaceCacheMiss()
			if neg, _ := s.cache.IsNegativelyCached(ctx, placeID); neg {
				return nil, apperror.NotFound(op, msgPlaceNotFound)
			}
			token, err = s.cache.ReserveFill(ctx, placeID)
			if err != nil {
				s.logger.Debug("place cache reserve failed", "place_id", placeID, "error", err)
			}
		default:
			s.logger.Debug("place cache read failed", "place_id", placeID, "error", err)
		}
	}

	place, err := s.store.GetPlace(ctx, placeID)
	if err != nil {
		if errors.Is(err, store.ErrPlaceNotFound) && token != "" {
			s.fillErr(placeID, s.cache.SetNegativeCache(ctx, placeID, token))
		}
		return nil, mapStoreError(op, err, msgFetchFailed)
	}
	if token != "" {
		s.fillErr(placeID, s.cache.SetPlace(ctx, place, token))
	}

	return s.present(place), nil
}

func (s *PlaceService) fillErr(placeID string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrFillRevoked):
		s.logger.Debug("place cache fill skipped, invalidated meanwhile", "place_id", placeID)
	default:
		s.logger.Debug("place cache write failed", "place_id", placeID, "error", err)
	}
}

// ListByUser returns the places created by userID, oldest first. A user
// without places, or an unknown user, yields an empty list.
func (s *PlaceService) ListByUser(ctx context.Context, userID string) ([]*model.Place, error) {
	const op = "place.list_by_user"

	places, err := s.store.ListPlacesByCreator(ctx, userID)
	if err != nil {
		return nil, mapStoreError(op, err, msgListFailed)
	}

	out := make([]*model.Place, 0, len(places))
	for _, p := range places {
		out = append(out, s.present(p))
	}
	return out, nil
}

// requireOwner rejects callers other than the place's creator.
func requireOwner(op string, place *model.Place, userID, message string) error {
	if userID == "" || place.CreatorID != userID {
		return apperror.Authorization(op, message)
	}
	return nil
}

// validatePlaceAttrs checks the attributes that are set.
func validatePlaceAttrs(op string, title, description *string) error {
	if title != nil {
		*title = strings.TrimSpace(*title)
		if *title == "" {
			return apperror.Validation(op, msgInvalidInputs)
		}
	}
	if description != nil {
		*description = strings.TrimSpace(*description)
		if utf8.RuneCountInString(*description) < minDescriptionLength {
			return apperror.Validation(op, msgInvalidInputs)
		}
	}
	return nil
}

func (s *PlaceService) invalidate(ctx context.Context, placeID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePlace(context.WithoutCancel(ctx), placeID); err != nil {
		s.logger.Warn("place cache invalidation failed", "place_id", placeID, "error", err)
	}
}

// present returns a copy with the public image URL resolved.
func (s *PlaceService) present(p *model.Place) *model.Place {
	c := p.Clone()
	if c.HasImage() {
		c.ImageURL = s.images.URL(c.ImageKey)
	}
	return c
}
