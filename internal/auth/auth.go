// Package auth validates HS256 access tokens and binds the resulting identity to requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "algoarena/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess = "access"
	roleAdmin       = "admin"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

// Config holds token settings.
type Config struct {
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
}

// Service issues and validates access tokens.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}, nil
}

type tokenClaims struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Authenticate parses raw and returns the identity it carries.
func (s *Service) Authenticate(_ context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("missing access token")
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		UserID:   claims.Subject,
		Username: claims.Name,
		IsAdmin:  claims.Role == roleAdmin,
	}, nil
}

// Issue signs an access token for id. Login is handled elsewhere; this backs
// local tooling and tests.
func (s *Service) Issue(id Identity) (string, error) {
	if id.UserID == "" {
		return "", pkgerrors.ValidationError("userId", "required")
	}
	role := "user"
	if id.IsAdmin {
		role = roleAdmin
	}
	now := s.now()
	claims := tokenClaims{
		Name:      id.Username,
		Role:      role,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.InternalServerError, "sign token failed")
	}
	return signed, nil
}

func (s *Service) parseToken(raw string) (*tokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != tokenTypeAccess || claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}
