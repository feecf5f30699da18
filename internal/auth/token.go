package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/plantdesk/plantdesk/internal/model"
)

const minSecretLength = 32

// ErrInvalidToken is returned for tokens that fail signature or claim checks
var ErrInvalidToken = errors.New("invalid or expired session token")

// TokenService issues and validates session tokens for authenticated identities
type TokenService struct {
	cfg    config.TokenConfig
	secret []byte
	now    func() time.Time
}

// SessionClaims are the claims carried by a session token
type SessionClaims struct {
	jwt.RegisteredClaims
	Role     model.Role `json:"role"`
	FullName string     `json:"name,omitempty"`
}

// NewTokenService creates a TokenService. The secret must be at least 32 bytes.
func NewTokenService(cfg config.TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretLength)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 8 * time.Hour
	}
	return &TokenService{
		cfg:    cfg,
		secret: []byte(cfg.Secret),
		now:    time.Now,
	}, nil
}

// Issue signs a session token for identity
func (s *TokenService) Issue(identity *model.Identity) (string, time.Time, error) {
	now := s.now()
	expiry := now.Add(s.cfg.TTL)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   identity.Username,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        uuid.New().String(),
		},
		Role:     identity.Role,
		FullName: identity.FullName,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiry, nil
}

// Validate parses a session token and returns its claims
func (s *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TTL returns the configured session lifetime
func (s *TokenService) TTL() time.Duration {
	return s.cfg.TTL
}
