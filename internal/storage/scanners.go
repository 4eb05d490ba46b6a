package storage

import (
	"database/sql"
	"time"

	"github.com/maxot/showrunner/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanGame scans a game row from the database
func scanGame(s scanner) (*domain.Game, error) {
	var g domain.Game
	var stoppedAt sql.NullTime
	err := s.Scan(&g.ID, &g.UUID, &g.ScenarioName, &g.Running, &g.CreatedAt, &stoppedAt)
	if err != nil {
		return nil, err
	}
	g.StoppedAt = scanNullTime(stoppedAt)
	return &g, nil
}

// scanUser scans a user row from the database
func scanUser(s scanner) (*domain.User, error) {
	var u domain.User
	var lastLogin sql.NullTime
	err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin,
		&u.PasswordChangeRequired, &u.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	u.LastLogin = scanNullTime(lastLogin)
	return &u, nil
}
