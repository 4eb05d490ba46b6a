package domain

import "time"

// StageType identifies what a scenario stage asks the engine to do
type StageType string

const (
	StagePause  StageType = "pause"
	StageMedia  StageType = "media"
	StageRound  StageType = "round"
	StageVote   StageType = "vote"
	StageShop   StageType = "shop"
	StageFinish StageType = "finish"
)

// RoundClass determines scoring and question flow for a round
type RoundClass string

const (
	RoundBase        RoundClass = "base"
	RoundSequential  RoundClass = "sequential"
	RoundSpeed       RoundClass = "speed"
	RoundInteractive RoundClass = "interactive"
	RoundAuction     RoundClass = "auction"
	RoundHotPotato   RoundClass = "hotpotato"
	RoundPantomime   RoundClass = "pantomime"
)

// SingleResponder reports whether the class plays one question per chosen player
func (c RoundClass) SingleResponder() bool {
	return c == RoundHotPotato || c == RoundPantomime
}

// AuctionClass reports whether the round opens with an auction instead of a question
func (c RoundClass) AuctionClass() bool {
	return c == RoundAuction
}

// Scenario is the ordered program one game session plays through
type Scenario struct {
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"` // whole-game limit, 0 = unlimited
	Stages   []Stage       `yaml:"stages"`
	Rounds   []Round       `yaml:"rounds"`
	Shop     *ShopConfig   `yaml:"shop,omitempty"`
}

// RoundByID returns the round definition for id, or nil
func (s *Scenario) RoundByID(id string) *Round {
	for i := range s.Rounds {
		if s.Rounds[i].ID == id {
			return &s.Rounds[i]
		}
	}
	return nil
}

// Stage is one entry of the scenario program
type Stage struct {
	Type     StageType     `yaml:"type"`
	Duration time.Duration `yaml:"duration,omitempty"` // pause/shop stages
	Media    *MediaAsset   `yaml:"media,omitempty"`
	RoundID  string        `yaml:"round_id,omitempty"` // empty on round stages means "play the voted round"
}

// MediaAsset references a file inside the scenario bundle
type MediaAsset struct {
	Path     string        `yaml:"path" json:"path"`
	Kind     string        `yaml:"kind" json:"kind"` // image, video, audio
	Duration time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// Round is a scored unit of gameplay
type Round struct {
	ID               string        `yaml:"id" json:"id"`
	Title            string        `yaml:"title" json:"title"`
	Class            RoundClass    `yaml:"class" json:"class"`
	Duration         time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"` // whole-round limit, 0 = none
	QuestionDuration time.Duration `yaml:"question_duration,omitempty" json:"question_duration,omitempty"`
	Points           int           `yaml:"points,omitempty" json:"points,omitempty"`
	Questions        []Question    `yaml:"questions" json:"-"`
}

// Question is a single prompt inside a round
type Question struct {
	ID     string      `yaml:"id" json:"id"`
	Text   string      `yaml:"text" json:"text"`
	Answer string      `yaml:"answer" json:"answer"`
	Media  *MediaAsset `yaml:"media,omitempty" json:"media,omitempty"`
	Points int         `yaml:"points,omitempty" json:"points,omitempty"`
}

// ShopConfig describes the modifier shop stage
type ShopConfig struct {
	Duration time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
	Stock    []ShopItem    `yaml:"stock" json:"stock"`
}

// ShopItem is one purchasable modifier line with a quantity
type ShopItem struct {
	Type     string `yaml:"type" json:"type"`
	Title    string `yaml:"title" json:"title"`
	Price    int    `yaml:"price" json:"price"`
	Quantity int    `yaml:"quantity" json:"quantity"`
}
