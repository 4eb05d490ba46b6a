package domain

import "time"

// Message kinds pushed to clients
const (
	MsgStateChanged     = "state_changed"
	MsgPaused           = "paused"
	MsgResumed          = "resumed"
	MsgForceDisconnect  = "force_disconnect"
	MsgClientDisconnect = "client_disconnected"
	MsgScenarioSent     = "scenario_sent"
	MsgMediaStarted     = "media_started"
	MsgRoundStarted     = "round_started"
	MsgQuestionStarted  = "question_started"
	MsgSpeedWinner      = "speed_winner"
	MsgInteractive      = "interactive_results"
	MsgRevealShown      = "reveal_shown"
	MsgRoundStats       = "round_statistics"
	MsgScenarioStats    = "scenario_statistics"
	MsgVotingStarted    = "voting_started"
	MsgShopStarted      = "shop_started"
	MsgShopUpdated      = "shop_updated"
	MsgOutOfStock       = "out_of_stock"
	MsgHighlight        = "highlight_update"
	MsgHighlightInit    = "player_highlight_init"
)

// Message is the envelope for every push to clients
type Message struct {
	Kind      string      `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewMessage stamps a message envelope
func NewMessage(kind string, data interface{}) Message {
	return Message{Kind: kind, Timestamp: time.Now().UTC(), Data: data}
}

// StateChangedPayload announces an FSM transition
type StateChangedPayload struct {
	State   string `json:"state"`
	Trigger string `json:"trigger"`
}

// ClientDisconnectPayload reports a dropped client
type ClientDisconnectPayload struct {
	Role       string `json:"role"`
	Identifier string `json:"identifier"`
	Cause      string `json:"cause"`
}

// ScenarioPayload announces the loaded scenario at game start
type ScenarioPayload struct {
	GameUUID string   `json:"game_uuid"`
	Name     string   `json:"name"`
	Players  []Player `json:"players"`
	Stages   int      `json:"stages"`
}

// MediaPayload announces a media stage asset
type MediaPayload struct {
	Asset MediaAsset `json:"asset"`
}

// RoundPayload announces the round being entered
type RoundPayload struct {
	Round Round `json:"round"`
}

// QuestionPayload announces the active question, optionally targeted
type QuestionPayload struct {
	Question     Question `json:"question"`
	Index        int      `json:"index"`
	TargetPlayer string   `json:"target_player,omitempty"`
}

// SpeedWinnerPayload announces the fastest correct responder
type SpeedWinnerPayload struct {
	Nickname string        `json:"nickname"`
	Elapsed  time.Duration `json:"elapsed"`
	Question string        `json:"question_id"`
}

// InteractivePayload carries per-player points for an interactive question
type InteractivePayload struct {
	Points map[string]int `json:"points"`
}

// RevealPayload carries the correct-answer data for the current question
type RevealPayload struct {
	Question Question `json:"question"`
	Answer   string   `json:"answer"`
}

// RoundStatsPayload carries round statistics for display
type RoundStatsPayload struct {
	RoundID string      `json:"round_id"`
	Stats   []RoundStat `json:"stats"`
}

// ScenarioStatsPayload carries whole-game statistics for display
type ScenarioStatsPayload struct {
	Stats []ScenarioStat `json:"stats"`
}

// VotingPayload announces the candidate rounds of a vote
type VotingPayload struct {
	Candidates []Round `json:"candidates"`
}

// ShopPayload announces the shop stage with its current stock
type ShopPayload struct {
	Duration time.Duration `json:"duration"`
	Stock    []ShopItem    `json:"stock"`
}

// ShopStockPayload carries the stock after a purchase
type ShopStockPayload struct {
	Stock []ShopItem `json:"stock"`
}

// OutOfStockPayload reports a failed purchase
type OutOfStockPayload struct {
	Item string `json:"item"`
}

// HighlightPayload marks a player slot on the informer display
type HighlightPayload struct {
	Nickname string `json:"nickname"`
	Rack     string `json:"rack,omitempty"`
	Active   bool   `json:"active"`
}

// HighlightInitPayload carries the full highlight state for reconnects
type HighlightInitPayload struct {
	Highlights []HighlightPayload `json:"highlights"`
}
