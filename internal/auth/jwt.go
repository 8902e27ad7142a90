package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/strefethen/playback-hub-go/internal/config"
)

// TokenPayload represents the validated payload data.
type TokenPayload struct {
	UserID string
	Email  string
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type tokenClaims struct {
	Email  string `json:"email,omitempty"`
	NameID string `json:"nameid,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// userID picks the account identifier, preferring sub over the legacy claim names.
func (c *tokenClaims) userID() string {
	switch {
	case c.Subject != "":
		return c.Subject
	case c.NameID != "":
		return c.NameID
	default:
		return c.Name
	}
}

// GenerateAccessToken signs an access token for userID. Identity issuance lives
// outside this service; this exists for development tooling and tests.
func GenerateAccessToken(cfg config.Config, payload TokenPayload) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Email: payload.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   payload.UserID,
			Issuer:    cfg.JWTIssuer,
			Audience:  []string{cfg.JWTAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.JWTAccessTokenExpirySec) * time.Second)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// VerifyToken parses and validates the JWT.
func VerifyToken(cfg config.Config, token string) (TokenPayload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(cfg.JWTAudience),
		jwt.WithIssuer(cfg.JWTIssuer),
		jwt.WithExpirationRequired(),
	)

	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPayload{}, ErrTokenExpired
		}
		return TokenPayload{}, ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid {
		return TokenPayload{}, ErrTokenInvalid
	}

	payload := TokenPayload{
		UserID: claims.userID(),
		Email:  claims.Email,
	}
	if payload.UserID == "" {
		return TokenPayload{}, ErrTokenInvalid
	}

	return payload, nil
}
