// Package auth guards the operator console. Passwords live as bcrypt hashes
// in the user store; a successful login is exchanged for a signed HS256
// token the console presents on every request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/maxot/showrunner/internal/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const defaultTokenTTL = 24 * time.Hour

// Claims is what a console token carries about its operator
type Claims struct {
	Username               string `json:"username"`
	UserID                 int64  `json:"uid"`
	IsAdmin                bool   `json:"admin"`
	PasswordChangeRequired bool   `json:"pwd_change"`
	jwt.RegisteredClaims
}

// Service signs and verifies console tokens
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService builds a token service. A zero ttl falls back to 24 hours.
func NewService(secret string, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	return &Service{secret: []byte(secret), ttl: ttl}
}

// HashPassword produces a bcrypt hash for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword reports whether password matches the stored hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken signs a console token for an operator. The password-change
// flag is passed separately so a fresh token can be cut right after the
// change, before the stored record is re-read.
func (s *Service) GenerateToken(u domain.User, passwordChangeRequired bool) (string, error) {
	now := time.Now()
	claims := Claims{
		Username:               u.Username,
		UserID:                 u.ID,
		IsAdmin:                u.IsAdmin,
		PasswordChangeRequired: passwordChangeRequired,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken verifies a console token and returns its claims
func (s *Service) ValidateToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
