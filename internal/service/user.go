package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/auth"
	"github.com/spotshare/spotshare/internal/metrics"
	"github.com/spotshare/spotshare/internal/model"
	"github.com/spotshare/spotshare/internal/reclaim"
	"github.com/spotshare/spotshare/internal/store"
)

const (
	minPasswordLength = 6

	msgUserExists       = "User exists already, please login instead."
	msgSignupFailed     = "Signing up failed, please try again later."
	msgCreateUserFailed = "Could not create user, please try again."
	msgLoginFailed      = "Logging in failed, please try again later."
	msgUnknownEmail     = "Invalid credentials, could not log you in."
	msgWrongPassword    = "Incorrect Password or Email entered."
	msgListUsersFailed  = "Fetching users failed, please try again later."
)

// PasswordHasher hashes passwords for storage.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// TokenIssuer issues bearer tokens.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// UserService handles signup, login and user listing.
type UserService struct {
	users   store.Users
	images  ImageStore
	hasher  PasswordHasher
	tokens  TokenIssuer
	janitor *janitor
	metrics metrics.Recorder
	logger  *slog.Logger
	opts    options
}

// NewUserService creates a new UserService.
func NewUserService(users store.Users, images ImageStore, hasher PasswordHasher, tokens TokenIssuer, logger *slog.Logger, opts ...Option) *UserService {
	o := buildOptions(opts)
	logger = logger.With("component", "service.user")
	return &UserService{
		users:  users,
		images: images,
		hasher: hasher,
		tokens: tokens,
		janitor: &janitor{
			images:  images,
			orphans: o.orphans,
			metrics: o.metrics,
			logger:  logger,
		},
		metrics: o.metrics,
		logger:  logger,
		opts:    o,
	}
}

// SignupInput defines input for creating a user.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Image    *Image
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// Signup creates a user and returns a fresh token for it.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	const op = "user.signup"

	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || !validEmail(email) || utf8.RuneCountInString(in.Password) < minPasswordLength {
		return nil, apperror.Validation(op, msgInvalidInputs)
	}
	if err := validateImage(op, in.Image, s.opts.maxImageSize); err != nil {
		return nil, err
	}

	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperror.New(apperror.KindConflict, op, msgUserExists)
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, apperror.Service(op, msgSignupFailed, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperror.Service(op, msgCreateUserFailed, err)
	}

	user := &model.User{
		ID:           newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		PlaceIDs:     []string{},
		CreatedAt:    s.opts.now().UTC(),
	}

	if in.Image != nil {
		key, err := s.images.Put(ctx, in.Image.Data, in.Image.ContentType)
		if err != nil {
			return nil, apperror.Service(op, msgSignupFailed, err)
		}
		user.ImageKey = key
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		s.janitor.discard(ctx, op, user.ImageKey, reclaim.ReasonCompensation, "", user.ID)
		if errors.Is(err, store.ErrEmailExists) {
			return nil, apperror.Wrap(apperror.KindConflict, op, msgUserExists, err)
		}
		return nil, apperror.Service(op, msgSignupFailed, err)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", "user_id", user.ID)
	return &AuthResult{UserID: user.ID, Email: user.Email, Token: token}, nil
}

// Login checks credentials and returns a fresh token.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	const op = "user.login"

	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.metrics.IncAuthFailure("unknown_email")
			return nil, apperror.New(apperror.KindAuthentication, op, msgUnknownEmail)
		}
		return nil, apperror.Service(op, msgLoginFailed, err)
	}

	// A malformed stored hash is reported like a wrong password.
	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("stored password hash unreadable", "user_id", user.ID, "error", err)
		}
		s.metrics.IncAuthFailure("wrong_password")
		return nil, apperror.New(apperror.KindAuthorization, op, msgWrongPassword)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResult{UserID: user.ID, Email: user.Email, Token: token}, nil
}

// List returns all users without credentials.
func (s *UserService) List(ctx context.Context) ([]*model.User, error) {
	const op = "user.list"

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, apperror.Service(op, msgListUsersFailed, err)
	}

	out := make([]*model.User, 0, len(users))
	for _, u := range users {
		c := u.Clone()
		c.PasswordHash = ""
		if c.ImageKey != "" {
			c.ImageURL = s.images.URL(c.ImageKey)
		}
		out = append(out, c)
	}
	return out, nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
}
