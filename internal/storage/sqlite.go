package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/maxot/showrunner/internal/domain"
)

var ErrNotFound = errors.New("record not found")

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Game methods ---

// CreateGame inserts a new game record and fills in its ID
func (s *Store) CreateGame(ctx context.Context, g *domain.Game) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO games (uuid, scenario_name, running, created_at)
		VALUES (?, ?, ?, ?)
	`, g.UUID, g.ScenarioName, g.Running, formatTimestamp(g.CreatedAt))
	if err != nil {
		return err
	}
	g.ID, err = result.LastInsertId()
	return err
}

// GetGameByUUID retrieves a game record
func (s *Store) GetGameByUUID(ctx context.Context, uuid string) (*domain.Game, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, uuid, scenario_name, running, created_at, stopped_at
		FROM games WHERE uuid = ?
	`, uuid)
	return scanGame(row)
}

// RunningGames returns every game still marked running
func (s *Store) RunningGames(ctx context.Context) ([]domain.Game, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, uuid, scenario_name, running, created_at, stopped_at
		FROM games WHERE running = TRUE ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// RecentGames returns the latest games, newest first
func (s *Store) RecentGames(ctx context.Context, limit int) ([]domain.Game, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, uuid, scenario_name, running, created_at, stopped_at
		FROM games ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// MarkStopped clears a game's running flag and stamps its stop time
func (s *Store) MarkStopped(ctx context.Context, gameUUID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE games SET running = FALSE, stopped_at = ? WHERE uuid = ?
	`, formatTimestamp(time.Now()), gameUUID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: game %s", ErrNotFound, gameUUID)
	}
	return nil
}

// AddPlayers records the roster for a game and fills in player IDs
func (s *Store) AddPlayers(ctx context.Context, gameID int64, players []domain.Player) error {
	for i := range players {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO game_players (game_id, nickname) VALUES (?, ?)
		`, gameID, players[i].Nickname)
		if err != nil {
			return err
		}
		players[i].ID, err = result.LastInsertId()
		if err != nil {
			return err
		}
	}
	return nil
}

// GamePlayers returns the roster recorded for a game
func (s *Store) GamePlayers(ctx context.Context, gameID int64) ([]domain.Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nickname FROM game_players WHERE game_id = ? ORDER BY id
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Nickname); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// --- Statistics methods ---

// AddRoundPoints accumulates points for a player within one round
func (s *Store) AddRoundPoints(ctx context.Context, gameUUID, roundID, nickname string, points int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO round_stats (game_uuid, round_id, nickname, points)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(game_uuid, round_id, nickname) DO UPDATE SET
			points = points + excluded.points
	`, gameUUID, roundID, nickname, points)
	return err
}

// RoundStats returns the per-player score lines for one round
func (s *Store) RoundStats(ctx context.Context, gameUUID, roundID string) ([]domain.RoundStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_uuid, round_id, nickname, points
		FROM round_stats WHERE game_uuid = ? AND round_id = ?
		ORDER BY points DESC, nickname
	`, gameUUID, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.RoundStat
	for rows.Next() {
		var st domain.RoundStat
		if err := rows.Scan(&st.GameUUID, &st.RoundID, &st.Nickname, &st.Points); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ScenarioStats returns per-player totals over the whole game, ranked
func (s *Store) ScenarioStats(ctx context.Context, gameUUID string) ([]domain.ScenarioStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_uuid, nickname, SUM(points) AS total
		FROM round_stats WHERE game_uuid = ?
		GROUP BY nickname ORDER BY total DESC, nickname
	`, gameUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.ScenarioStat
	for rows.Next() {
		var st domain.ScenarioStat
		if err := rows.Scan(&st.GameUUID, &st.Nickname, &st.Points); err != nil {
			return nil, err
		}
		st.Rank = len(stats) + 1
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// --- User methods ---

// CreateUser creates a new admin-console account
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin, password_change_required, created_at)
		VALUES (?, ?, ?, TRUE, ?)
	`, username, passwordHash, isAdmin, formatTimestamp(time.Now()))
	return err
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users WHERE username = ?
	`, username)
	return scanUser(row)
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// DeleteUser removes a user by username
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, username)
	}
	return nil
}

// ListUsers returns all users
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserLastLogin updates the last login timestamp
func (s *Store) UpdateUserLastLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?
	`, userID)
	return err
}

// UpdateUserAdmin sets a user's admin flag
func (s *Store) UpdateUserAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_admin = ? WHERE id = ?
	`, isAdmin, userID)
	return err
}

// UpdateUserPassword updates a user's password and clears the change-required flag
func (s *Store) UpdateUserPassword(ctx context.Context, userID int64, newPasswordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, password_change_required = FALSE WHERE id = ?
	`, newPasswordHash, userID)
	return err
}

// ResetUserPassword sets a temporary password and forces a change at next login
func (s *Store) ResetUserPassword(ctx context.Context, userID int64, newPasswordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, password_change_required = TRUE WHERE id = ?
	`, newPasswordHash, userID)
	return err
}

// --- License usage methods ---

// GamesUsed returns how many games were started under a license
func (s *Store) GamesUsed(ctx context.Context, licenseID string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx, `
		SELECT games_used FROM license_usage WHERE license_id = ?
	`, licenseID).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return used, err
}

// IncrementGamesUsed charges one game against a license
func (s *Store) IncrementGamesUsed(ctx context.Context, licenseID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO license_usage (license_id, games_used) VALUES (?, 1)
		ON CONFLICT(license_id) DO UPDATE SET games_used = games_used + 1
	`, licenseID)
	return err
}
