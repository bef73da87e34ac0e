package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"scribe/internal/models"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrSecretTooShort    = errors.New("signing secret must be at least 32 bytes")
)

const minSecretBytes = 32

// Claims is the signed payload of a bearer token. Subject carries the email.
type Claims struct {
	UserID uint        `json:"uid"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 bearer tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	clock  Clock
}

// NewTokenCodec fails when secret is shorter than 32 bytes.
func NewTokenCodec(secret string, ttl time.Duration, issuer string, clock Clock) (*TokenCodec, error) {
	if len(secret) < minSecretBytes {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, issuer: issuer, clock: clock}, nil
}

// TTL returns the lifetime of issued tokens.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Sign issues a token for p valid for TTL from now.
func (c *TokenCodec) Sign(p Principal) (string, error) {
	now := c.clock.Now().Truncate(time.Second)
	claims := Claims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Email,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature and expiry and returns the embedded principal.
// A token is valid in [iat, iat+TTL).
func (c *TokenCodec) Verify(token string) (Principal, error) {
	claims, err := c.Parse(token)
	if err != nil {
		return Anonymous, err
	}
	return Principal{UserID: claims.UserID, Email: claims.Subject, Role: claims.Role}, nil
}

// Parse returns the verified claims of token.
func (c *TokenCodec) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !c.clock.Now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	if claims.Subject == "" || claims.UserID == 0 {
		return nil, ErrTokenMalformed
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenBadSignature
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
