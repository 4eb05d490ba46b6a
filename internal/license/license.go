// Package license gates game starts on a signed license token. Tokens are
// JWTs issued offline; the optional game quota is enforced against a usage
// counter kept by the storage layer.
package license

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrExpired        = errors.New("license expired")
	ErrInvalid        = errors.New("license invalid")
	ErrQuotaExhausted = errors.New("license game quota exhausted")
)

// Validator gates session starts
type Validator interface {
	// Validate reports whether a game may start right now
	Validate(ctx context.Context) error
	// Consume charges one game against the quota, if the license has one
	Consume(ctx context.Context) error
}

// UsageStore persists how many games a license has started
type UsageStore interface {
	GamesUsed(ctx context.Context, licenseID string) (int, error)
	IncrementGamesUsed(ctx context.Context, licenseID string) error
}

// Claims is the license token payload
type Claims struct {
	Customer string `json:"customer"`
	MaxGames int    `json:"max_games,omitempty"` // 0 = unlimited
	jwt.RegisteredClaims
}

// FileValidator validates a license token stored on disk
type FileValidator struct {
	path   string
	secret []byte
	usage  UsageStore

	mu     sync.Mutex
	claims *Claims
}

func NewFileValidator(path, secret string, usage UsageStore) *FileValidator {
	return &FileValidator{path: path, secret: []byte(secret), usage: usage}
}

func (v *FileValidator) Validate(ctx context.Context) error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	claims, err := Parse(strings.TrimSpace(string(data)), string(v.secret))
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.claims = claims
	v.mu.Unlock()

	if claims.MaxGames > 0 && v.usage != nil {
		used, err := v.usage.GamesUsed(ctx, claims.ID)
		if err != nil {
			return fmt.Errorf("failed to read license usage: %w", err)
		}
		if used >= claims.MaxGames {
			return ErrQuotaExhausted
		}
	}
	return nil
}

func (v *FileValidator) Consume(ctx context.Context) error {
	v.mu.Lock()
	claims := v.claims
	v.mu.Unlock()
	if claims == nil || claims.MaxGames == 0 || v.usage == nil {
		return nil
	}
	return v.usage.IncrementGamesUsed(ctx, claims.ID)
}

// Parse verifies a license token and returns its claims
func Parse(token, secret string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Issue signs a new license token
func Issue(secret, id, customer string, validFor time.Duration, maxGames int) (string, error) {
	claims := Claims{
		Customer: customer,
		MaxGames: maxGames,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validFor)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
