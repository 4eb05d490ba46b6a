package license

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type memUsage struct {
	used map[string]int
}

func (m *memUsage) GamesUsed(_ context.Context, id string) (int, error) { return m.used[id], nil }

func (m *memUsage) IncrementGamesUsed(_ context.Context, id string) error {
	if m.used == nil {
		m.used = make(map[string]int)
	}
	m.used[id]++
	return nil
}

func writeLicense(t *testing.T, token string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "license.key")
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIssueAndParse(t *testing.T) {
	token, err := Issue("secret", "lic-1", "acme", time.Hour, 5)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := Parse(token, "secret")
	if err != nil {
		t.Fatal(err)
	}
	if claims.Customer != "acme" || claims.MaxGames != 5 || claims.ID != "lic-1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseWrongSecret(t *testing.T) {
	token, err := Issue("secret", "lic-1", "acme", time.Hour, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token, "other"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParseExpired(t *testing.T) {
	token, err := Issue("secret", "lic-1", "acme", -time.Hour, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token, "secret"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestQuotaEnforcement(t *testing.T) {
	token, err := Issue("secret", "lic-1", "acme", time.Hour, 2)
	if err != nil {
		t.Fatal(err)
	}
	usage := &memUsage{}
	v := NewFileValidator(writeLicense(t, token), "secret", usage)

	for i := 0; i < 2; i++ {
		if err := v.Validate(context.Background()); err != nil {
			t.Fatalf("game %d: %v", i, err)
		}
		if err := v.Consume(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.Validate(context.Background()); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
}

func TestUnlimitedLicenseNeverConsumes(t *testing.T) {
	token, err := Issue("secret", "lic-1", "acme", time.Hour, 0)
	if err != nil {
		t.Fatal(err)
	}
	usage := &memUsage{}
	v := NewFileValidator(writeLicense(t, token), "secret", usage)

	for i := 0; i < 10; i++ {
		if err := v.Validate(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := v.Consume(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if usage.used["lic-1"] != 0 {
		t.Fatalf("unlimited license charged usage: %d", usage.used["lic-1"])
	}
}

func TestMissingLicenseFile(t *testing.T) {
	v := NewFileValidator(filepath.Join(t.TempDir(), "nope.key"), "secret", nil)
	if err := v.Validate(context.Background()); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
