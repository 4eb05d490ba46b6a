package domain

import "time"

// Game is the persisted record of a session
type Game struct {
	ID           int64      `json:"id"`
	UUID         string     `json:"uuid"`
	ScenarioName string     `json:"scenario_name"`
	Running      bool       `json:"running"`
	CreatedAt    time.Time  `json:"created_at"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
}

// Player is one roster member of a game
type Player struct {
	ID       int64  `json:"id,omitempty"`
	Nickname string `json:"nickname"`
}

// RoundStat is one player's score line for one round
type RoundStat struct {
	GameUUID string `json:"game_uuid"`
	RoundID  string `json:"round_id"`
	Nickname string `json:"nickname"`
	Points   int    `json:"points"`
}

// ScenarioStat is one player's total for the whole game
type ScenarioStat struct {
	GameUUID string `json:"game_uuid"`
	Nickname string `json:"nickname"`
	Points   int    `json:"points"`
	Rank     int    `json:"rank"`
}

// User is an admin-console account
type User struct {
	ID                     int64      `json:"id"`
	Username               string     `json:"username"`
	PasswordHash           string     `json:"-"`
	IsAdmin                bool       `json:"is_admin"`
	PasswordChangeRequired bool       `json:"password_change_required"`
	CreatedAt              time.Time  `json:"created_at"`
	LastLogin              *time.Time `json:"last_login,omitempty"`
}

// Client roles used for connection classification and message audiences
const (
	RolePlayer   = "player"
	RoleInformer = "informer"
	RoleAdmin    = "admin"
	RoleUnknown  = "unknown"
)
