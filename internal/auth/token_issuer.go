package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 8 * time.Hour
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
	errMissingRoleClaim     = errors.New("role claim must be provided")
)

// Role names recognized across the API surface.
const (
	RoleSuperAdmin   = "super_admin"
	RoleHRManager    = "hr_manager"
	RoleSalesManager = "sales_manager"
	RoleSalesRep     = "sales_rep"
	RoleEmployee     = "employee"
)

// Caller is the resolved identity attached to authorized requests.
type Caller struct {
	Subject string
	Name    string
	Role    string
}

// CanManageContests reports whether the caller may create competitions and tiers.
func (c Caller) CanManageContests() bool {
	switch c.Role {
	case RoleSuperAdmin, RoleHRManager, RoleSalesManager:
		return true
	default:
		return false
	}
}

type tokenClaims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the backend JWT issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues and validates the backend's bearer tokens.
type TokenIssuer struct {
	config TokenIssuerConfig
	clock  func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		config: TokenIssuerConfig{
			SigningSecret: cfg.SigningSecret,
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			TokenTTL:      ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// IssueToken produces a signed JWT and its expiry (seconds) for the caller.
func (i *TokenIssuer) IssueToken(_ context.Context, caller Caller) (string, int64, error) {
	if len(i.config.SigningSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if caller.Subject == "" {
		return "", 0, errMissingSubjectClaim
	}
	if caller.Role == "" {
		return "", 0, errMissingRoleClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.config.TokenTTL).UTC()

	claims := tokenClaims{
		Name: caller.Name,
		Role: caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.Subject,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the bearer token is well formed and returns the caller it names.
func (i *TokenIssuer) ValidateToken(tokenString string) (Caller, error) {
	if len(i.config.SigningSecret) == 0 {
		return Caller{}, errMissingSigningSecret
	}

	options := []jwt.ParserOption{jwt.WithTimeFunc(i.clock)}
	if i.config.Audience != "" {
		options = append(options, jwt.WithAudience(i.config.Audience))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.config.SigningSecret, nil
		},
		options...,
	)
	if err != nil {
		return Caller{}, err
	}
	if claims.Subject == "" {
		return Caller{}, errMissingSubjectClaim
	}
	if claims.Role == "" {
		return Caller{}, errMissingRoleClaim
	}
	return Caller{Subject: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
}
