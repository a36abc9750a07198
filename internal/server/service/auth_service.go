package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"fms/internal/ledger"
	"fms/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the role claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the authenticated caller of an API request.
type Principal struct {
	User string
	Role string
}

// IsAdmin reports whether the caller may act on any account.
func (p Principal) IsAdmin() bool {
	return strings.EqualFold(p.Role, RoleAdmin)
}

// CanActFor reports whether the caller may run jobs for, or read, user.
func (p Principal) CanActFor(user string) bool {
	return p.IsAdmin() || p.User == user
}

// AuthService issues and verifies HS256 bearer tokens. The subject is the
// ledger user the token acts for.
type AuthService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAuthService(secret, issuer string) *AuthService {
	return &AuthService{secret: []byte(secret), issuer: issuer, now: time.Now}
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for user with role, valid for ttl. A zero ttl never expires.
func (s *AuthService) Issue(user, role string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New(errors.ServiceUnavailable).WithMessage("auth secret is not configured")
	}
	if err := ledger.ValidateUser(user); err != nil {
		return "", errors.Wrap(err, errors.InvalidParams)
	}
	if role != RoleUser && role != RoleAdmin {
		return "", errors.ValidationError("role", "must be user or admin")
	}
	now := s.now()
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user,
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, errors.InternalServerError)
	}
	return signed, nil
}

// Authenticate verifies raw and returns its principal.
func (s *AuthService) Authenticate(_ context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, errors.New(errors.Unauthorized).WithMessage("missing bearer token")
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: claims.Subject, Role: claims.Role}, nil
}

func (s *AuthService) parseToken(raw string) (*tokenClaims, error) {
	if len(s.secret) == 0 {
		return nil, errors.New(errors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New(errors.TokenExpired)
		}
		return nil, errors.New(errors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New(errors.TokenInvalid)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New(errors.TokenInvalid)
	}
	if claims.Subject == "" || ledger.ValidateUser(claims.Subject) != nil {
		return nil, errors.New(errors.TokenInvalid)
	}
	if claims.Role != RoleUser && claims.Role != RoleAdmin {
		return nil, errors.New(errors.TokenInvalid)
	}
	return claims, nil
}
