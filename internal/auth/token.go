package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spotshare/spotshare/internal/apperror"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = time.Hour

const minSecretLen = 16

// Claims is the verified identity carried by a bearer token.
type Claims struct {
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims is the wire form of Claims.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Credentials issues and verifies HMAC-signed bearer tokens.
// Tokens are stateless: there is no revocation before expiry.
type Credentials struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCredentials creates a token issuer/verifier. A zero ttl uses
// DefaultTokenTTL and a nil now uses time.Now.
func NewCredentials(secret string, ttl time.Duration, now func() time.Time) *Credentials {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Credentials{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue signs a token for the user. It fails with a service error when the
// signing secret is missing or too short.
func (c *Credentials) Issue(userID, email string) (string, error) {
	const op = "auth.issue"

	if len(c.secret) < minSecretLen {
		return "", apperror.Service(op, "Signing up failed, please try again later.", errors.New("token secret not configured"))
	}
	if userID == "" {
		return "", apperror.Service(op, "Signing up failed, please try again later.", errors.New("empty subject"))
	}

	now := c.now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		UserID: userID,
		Email:  email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", apperror.Service(op, "Signing up failed, please try again later.", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its claims.
// Every defect is reported as an authentication error.
func (c *Credentials) Verify(token string) (Claims, error) {
	const op = "auth.verify"

	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperror.Authentication(op, errors.New("token is required"))
	}
	if len(c.secret) < minSecretLen {
		return Claims{}, apperror.Authentication(op, errors.New("token secret not configured"))
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, apperror.Authentication(op, mapJWTError(err))
	}

	if parsed.ExpiresAt == nil {
		return Claims{}, apperror.Authentication(op, errors.New("token exp is required"))
	}
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(c.now().UTC()) {
		return Claims{}, apperror.Authentication(op, errors.New("token is expired"))
	}

	userID := parsed.UserID
	if userID == "" {
		userID = parsed.Subject
	}
	if userID == "" || (parsed.Subject != "" && parsed.Subject != userID) {
		return Claims{}, apperror.Authentication(op, errors.New("token subject is invalid"))
	}

	claims := Claims{
		UserID:    userID,
		Email:     parsed.Email,
		ExpiresAt: exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError narrows jwt library errors to a short cause for logs.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.New("token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return errors.New("token alg is invalid")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errors.New("token is malformed")
	default:
		return err
	}
}
