package auth

import (
	"testing"
	"time"

	"github.com/maxot/showrunner/internal/domain"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("s3cret", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken(domain.User{ID: 7, Username: "admin", IsAdmin: true}, false)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "admin" || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if claims.PasswordChangeRequired {
		t.Error("unexpected password change flag")
	}
}

func TestTokenCarriesPasswordChangeFlag(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken(domain.User{ID: 2, Username: "host"}, true)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if !claims.PasswordChangeRequired {
		t.Error("password change flag dropped")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).GenerateToken(domain.User{ID: 1, Username: "host"}, false)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := NewService("secret-b", time.Hour).ValidateToken(token); err != ErrInvalidToken {
		t.Fatalf("ValidateToken = %v, want ErrInvalidToken", err)
	}
}

func TestTokenExpired(t *testing.T) {
	svc := NewService("test-secret", -time.Minute)

	token, err := svc.GenerateToken(domain.User{ID: 1, Username: "host"}, false)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := svc.ValidateToken(token); err != ErrInvalidToken {
		t.Fatalf("ValidateToken = %v, want ErrInvalidToken", err)
	}
}

func TestGarbageToken(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	if _, err := svc.ValidateToken("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("ValidateToken = %v, want ErrInvalidToken", err)
	}
}
