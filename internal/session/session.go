package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/maxot/showrunner/internal/domain"
)

var (
	ErrOutOfStock       = errors.New("item out of stock")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrAlreadyConnected = errors.New("connection slot already occupied")
	ErrNoQuestion       = errors.New("no question at current index")
)

// Connection identifies one client transport binding
type Connection struct {
	ConnID string
	Rack   string
}

// speedAnswer records when a player buzzed in and whether they were right
type speedAnswer struct {
	at      time.Time
	correct bool
}

// Session is the mutable state of one running game. It is shared by all
// concurrent client callbacks; per-stage tracking collections are sync.Maps
// so they can be written and iterated without external locking, the rest is
// guarded by mu. Purchase is the one check-then-decrement critical section.
type Session struct {
	GameUUID string
	Scenario *domain.Scenario
	Players  []domain.Player

	mu                sync.RWMutex
	connections       map[string]Connection // nickname -> connection
	informerConn      string
	adminConn         string
	currentState      string
	currentStageIndex int
	currentQuestion   int
	currentAnswerer   string
	currentRound      *domain.Round
	chosenRound       *domain.Round
	rounds            []domain.Round // remaining round pool

	usedPlayers  sync.Map // nickname -> struct{}, round-robin "already acted" set
	speedAnswers sync.Map // nickname -> speedAnswer
	interactive  sync.Map // nickname -> bool (answered correctly)
	completed    sync.Map // nickname -> struct{}, generic "done with stage" gate
	votes        sync.Map // nickname -> round ID

	shopMu    sync.Mutex
	shopStock []domain.ShopItem

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a session for a fresh game. The round pool and shop stock are
// copied out of the scenario so consuming them does not alter the source.
func New(gameUUID string, scenario *domain.Scenario, players []domain.Player) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		GameUUID:          gameUUID,
		Scenario:          scenario,
		Players:           players,
		connections:       make(map[string]Connection),
		currentStageIndex: -1,
		rounds:            append([]domain.Round(nil), scenario.Rounds...),
		ctx:               ctx,
		cancel:            cancel,
	}
	if scenario.Shop != nil {
		s.shopStock = append([]domain.ShopItem(nil), scenario.Shop.Stock...)
	}
	return s
}

// Context returns the session-wide cancellation handle, signaled on force-stop
func (s *Session) Context() context.Context { return s.ctx }

// Cancel signals the session cancellation handle
func (s *Session) Cancel() { s.cancel() }

// --- position mirror ---

// SetPosition records the FSM position for session recovery
func (s *Session) SetPosition(state string) {
	s.mu.Lock()
	s.currentState = state
	s.mu.Unlock()
}

// State returns the mirrored FSM state
func (s *Session) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentState
}

// StageIndex returns the current stage index (-1 before the first stage)
func (s *Session) StageIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentStageIndex
}

// AdvanceStage increments the stage index and returns the new value
func (s *Session) AdvanceStage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentStageIndex++
	return s.currentStageIndex
}

// StageAt returns the scenario stage at index, or nil past the end
func (s *Session) StageAt(index int) *domain.Stage {
	if index < 0 || index >= len(s.Scenario.Stages) {
		return nil
	}
	return &s.Scenario.Stages[index]
}

// CurrentStage returns the stage at the current index, or nil
func (s *Session) CurrentStage() *domain.Stage {
	return s.StageAt(s.StageIndex())
}

// --- roster and connections ---

// PlayerByNickname returns the roster player with the given nickname
func (s *Session) PlayerByNickname(nickname string) (domain.Player, error) {
	for _, p := range s.Players {
		if p.Nickname == nickname {
			return p, nil
		}
	}
	return domain.Player{}, ErrPlayerNotFound
}

// PlayerByConnection returns the roster player bound to a connection ID
func (s *Session) PlayerByConnection(connID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for nick, conn := range s.connections {
		if conn.ConnID == connID {
			for _, p := range s.Players {
				if p.Nickname == nick {
					return p, nil
				}
			}
		}
	}
	return domain.Player{}, ErrPlayerNotFound
}

// SetPlayerConnection records (or replaces, on reconnect) a player's connection
func (s *Session) SetPlayerConnection(nickname, connID, rack string) {
	s.mu.Lock()
	s.connections[nickname] = Connection{ConnID: connID, Rack: rack}
	s.mu.Unlock()
}

// RemovePlayerConnection drops a player's connection entry
func (s *Session) RemovePlayerConnection(nickname string) {
	s.mu.Lock()
	delete(s.connections, nickname)
	s.mu.Unlock()
}

// PlayerConnection returns the recorded connection for a player
func (s *Session) PlayerConnection(nickname string) (Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[nickname]
	return c, ok
}

// ConnectedCount returns how many roster players have a connection
func (s *Session) ConnectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// AllPlayersConnected reports whether every roster player has identified
func (s *Session) AllPlayersConnected() bool {
	return s.ConnectedCount() == len(s.Players)
}

// SetInformer records the informer connection, rejecting a second one
func (s *Session) SetInformer(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.informerConn != "" {
		return ErrAlreadyConnected
	}
	s.informerConn = connID
	return nil
}

// SetAdmin records the admin connection, rejecting a second one
func (s *Session) SetAdmin(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adminConn != "" {
		return ErrAlreadyConnected
	}
	s.adminConn = connID
	return nil
}

// ClearInformer drops the informer connection
func (s *Session) ClearInformer() {
	s.mu.Lock()
	s.informerConn = ""
	s.mu.Unlock()
}

// ClearAdmin drops the admin connection
func (s *Session) ClearAdmin() {
	s.mu.Lock()
	s.adminConn = ""
	s.mu.Unlock()
}

// Classify maps a connection ID to a client role. Admin and informer take
// priority over a player binding with the same ID.
func (s *Session) Classify(connID string) (role, nickname string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch connID {
	case "":
		return domain.RoleUnknown, ""
	case s.adminConn:
		return domain.RoleAdmin, ""
	case s.informerConn:
		return domain.RoleInformer, ""
	}
	for nick, conn := range s.connections {
		if conn.ConnID == connID {
			return domain.RolePlayer, nick
		}
	}
	return domain.RoleUnknown, ""
}

// Highlights returns the informer highlight state for every roster player
func (s *Session) Highlights() []domain.HighlightPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HighlightPayload, 0, len(s.Players))
	for _, p := range s.Players {
		conn, ok := s.connections[p.Nickname]
		out = append(out, domain.HighlightPayload{
			Nickname: p.Nickname,
			Rack:     conn.Rack,
			Active:   ok,
		})
	}
	return out
}

// --- round and question position ---

// SetCurrentRound records the round being played
func (s *Session) SetCurrentRound(r *domain.Round) {
	s.mu.Lock()
	s.currentRound = r
	s.currentQuestion = 0
	s.mu.Unlock()
}

// CurrentRound returns the round being played, or nil
func (s *Session) CurrentRound() *domain.Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRound
}

// SetChosenRound records the vote winner for the next round stage
func (s *Session) SetChosenRound(r *domain.Round) {
	s.mu.Lock()
	s.chosenRound = r
	s.mu.Unlock()
}

// ChosenRound returns the round chosen by the last vote, or nil
func (s *Session) ChosenRound() *domain.Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chosenRound
}

// QuestionIndex returns the index of the active question within the round
func (s *Session) QuestionIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentQuestion
}

// AdvanceQuestion increments the question index
func (s *Session) AdvanceQuestion() {
	s.mu.Lock()
	s.currentQuestion++
	s.currentAnswerer = ""
	s.mu.Unlock()
}

// CurrentQuestion returns the question at the current index of the current round
func (s *Session) CurrentQuestion() (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentRound == nil || s.currentQuestion < 0 || s.currentQuestion >= len(s.currentRound.Questions) {
		return domain.Question{}, ErrNoQuestion
	}
	return s.currentRound.Questions[s.currentQuestion], nil
}

// ClearRoundScope resets round-level position after statistics are shown
func (s *Session) ClearRoundScope() {
	s.mu.Lock()
	s.currentRound = nil
	s.chosenRound = nil
	s.currentQuestion = 0
	s.currentAnswerer = ""
	s.mu.Unlock()
}

// RemainingRounds returns the rounds still in the pool
func (s *Session) RemainingRounds() []domain.Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Round(nil), s.rounds...)
}

// TakeRound removes a round from the remaining pool and returns it
func (s *Session) TakeRound(id string) (*domain.Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rounds {
		if s.rounds[i].ID == id {
			r := s.rounds[i]
			s.rounds = append(s.rounds[:i], s.rounds[i+1:]...)
			return &r, true
		}
	}
	return nil, false
}

// VoteCandidates returns up to max rounds from the remaining pool
func (s *Session) VoteCandidates(max int) []domain.Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.rounds)
	if n > max {
		n = max
	}
	return append([]domain.Round(nil), s.rounds[:n]...)
}

// --- responder selection ---

// SetCurrentAnswerer pins the single active responder for the question
func (s *Session) SetCurrentAnswerer(nickname string) {
	s.mu.Lock()
	s.currentAnswerer = nickname
	s.mu.Unlock()
}

// CurrentAnswerer returns the pinned responder, if any
func (s *Session) CurrentAnswerer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentAnswerer
}

// PickUnusedPlayer returns a uniformly random player among those who have not
// had a turn this round. When everyone has acted the cycle resets first. The
// chosen player is marked as used.
func (s *Session) PickUnusedPlayer() (domain.Player, error) {
	if len(s.Players) == 0 {
		return domain.Player{}, ErrPlayerNotFound
	}
	candidates := s.unusedPlayers()
	if len(candidates) == 0 {
		s.usedPlayers.Range(func(k, _ any) bool {
			s.usedPlayers.Delete(k)
			return true
		})
		candidates = s.Players
	}
	p := candidates[rand.IntN(len(candidates))]
	s.usedPlayers.Store(p.Nickname, struct{}{})
	return p, nil
}

func (s *Session) unusedPlayers() []domain.Player {
	var out []domain.Player
	for _, p := range s.Players {
		if _, used := s.usedPlayers.Load(p.Nickname); !used {
			out = append(out, p)
		}
	}
	return out
}

// ResetRoundTracking clears the round-robin set when a new round begins
func (s *Session) ResetRoundTracking() {
	s.usedPlayers.Range(func(k, _ any) bool {
		s.usedPlayers.Delete(k)
		return true
	})
	s.ClearQuestionTracking()
}

// --- per-question tracking ---

// RecordSpeedAnswer stores a player's buzz timestamp and correctness.
// Only the first answer per player counts.
func (s *Session) RecordSpeedAnswer(nickname string, at time.Time, correct bool) {
	s.speedAnswers.LoadOrStore(nickname, speedAnswer{at: at, correct: correct})
}

// FastestCorrect returns the player with the earliest correct speed answer
func (s *Session) FastestCorrect() (nickname string, at time.Time, ok bool) {
	s.speedAnswers.Range(func(k, v any) bool {
		ans := v.(speedAnswer)
		if !ans.correct {
			return true
		}
		if !ok || ans.at.Before(at) {
			nickname, at, ok = k.(string), ans.at, true
		}
		return true
	})
	return nickname, at, ok
}

// RecordInteractiveAnswer stores a player's correctness for the question
func (s *Session) RecordInteractiveAnswer(nickname string, correct bool) {
	s.interactive.Store(nickname, correct)
}

// InteractiveAnswerCount returns how many players have answered
func (s *Session) InteractiveAnswerCount() int {
	n := 0
	s.interactive.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// InteractiveResults computes per-player points for an interactive question.
// When nobody or everybody answered correctly, every player takes the
// negative branch; otherwise correct answers gain and wrong answers lose.
func (s *Session) InteractiveResults(points int) map[string]int {
	correct := make(map[string]bool)
	s.interactive.Range(func(k, v any) bool {
		correct[k.(string)] = v.(bool)
		return true
	})
	nCorrect := 0
	for _, c := range correct {
		if c {
			nCorrect++
		}
	}
	out := make(map[string]int, len(s.Players))
	unanimous := nCorrect == 0 || nCorrect == len(s.Players)
	for _, p := range s.Players {
		switch {
		case unanimous:
			out[p.Nickname] = -points
		case correct[p.Nickname]:
			out[p.Nickname] = points
		default:
			out[p.Nickname] = -points
		}
	}
	return out
}

// AnswerVerdict reports the recorded correctness of a player's answer for
// the current question, whichever channel it arrived on
func (s *Session) AnswerVerdict(nickname string) (correct, ok bool) {
	if v, found := s.speedAnswers.Load(nickname); found {
		return v.(speedAnswer).correct, true
	}
	if v, found := s.interactive.Load(nickname); found {
		return v.(bool), true
	}
	return false, false
}

// ClearQuestionTracking resets all per-question collections
func (s *Session) ClearQuestionTracking() {
	for _, m := range []*sync.Map{&s.speedAnswers, &s.interactive, &s.completed} {
		m.Range(func(k, _ any) bool {
			m.Delete(k)
			return true
		})
	}
	s.mu.Lock()
	s.currentAnswerer = ""
	s.mu.Unlock()
}

// --- generic completion gate ---

// MarkCompleted records a player as done with the current stage and reports
// whether every roster player is now done
func (s *Session) MarkCompleted(nickname string) bool {
	s.completed.Store(nickname, struct{}{})
	n := 0
	s.completed.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n >= len(s.Players)
}

// ResetCompletion clears the completion gate at stage boundaries
func (s *Session) ResetCompletion() {
	s.completed.Range(func(k, _ any) bool {
		s.completed.Delete(k)
		return true
	})
}

// --- voting ---

// CastVote records one player's vote for a candidate round and reports
// whether every roster player has voted
func (s *Session) CastVote(nickname, roundID string) bool {
	s.votes.Store(nickname, roundID)
	n := 0
	s.votes.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n >= len(s.Players)
}

// ResetVotes clears vote tallies at voting-stage entry
func (s *Session) ResetVotes() {
	s.votes.Range(func(k, _ any) bool {
		s.votes.Delete(k)
		return true
	})
}

// VoteWinner tallies votes over the candidates and returns the winner.
// Ties (including the no-votes case, where every candidate ties at zero)
// break uniformly at random.
func (s *Session) VoteWinner(candidates []domain.Round) (*domain.Round, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	tally := make(map[string]int, len(candidates))
	for _, c := range candidates {
		tally[c.ID] = 0
	}
	s.votes.Range(func(_, v any) bool {
		id := v.(string)
		if _, ok := tally[id]; ok {
			tally[id]++
		}
		return true
	})
	best := -1
	var tied []domain.Round
	for _, c := range candidates {
		switch {
		case tally[c.ID] > best:
			best = tally[c.ID]
			tied = []domain.Round{c}
		case tally[c.ID] == best:
			tied = append(tied, c)
		}
	}
	winner := tied[rand.IntN(len(tied))]
	return &winner, true
}

// --- shop ---

// ShopStock returns a copy of the current stock
func (s *Session) ShopStock() []domain.ShopItem {
	s.shopMu.Lock()
	defer s.shopMu.Unlock()
	return append([]domain.ShopItem(nil), s.shopStock...)
}

// Purchase atomically checks and decrements stock for a modifier type.
// The line item is never removed, only decremented, and never goes negative.
func (s *Session) Purchase(itemType string) (domain.ShopItem, error) {
	s.shopMu.Lock()
	defer s.shopMu.Unlock()
	for i := range s.shopStock {
		if s.shopStock[i].Type != itemType {
			continue
		}
		if s.shopStock[i].Quantity <= 0 {
			return domain.ShopItem{}, ErrOutOfStock
		}
		s.shopStock[i].Quantity--
		return s.shopStock[i], nil
	}
	return domain.ShopItem{}, ErrOutOfStock
}
