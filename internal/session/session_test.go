package session

import (
	"errors"
	"testing"
	"time"

	"github.com/maxot/showrunner/internal/domain"
)

func testScenario() *domain.Scenario {
	return &domain.Scenario{
		Name: "test",
		Stages: []domain.Stage{
			{Type: domain.StageRound, RoundID: "r1"},
			{Type: domain.StageVote},
		},
		Rounds: []domain.Round{
			{ID: "r1", Title: "First", Class: domain.RoundBase, Points: 10,
				Questions: []domain.Question{{ID: "q1", Text: "1+1?", Answer: "2"}}},
			{ID: "r2", Title: "Second", Class: domain.RoundSpeed, Points: 20,
				Questions: []domain.Question{{ID: "q2", Text: "2+2?", Answer: "4"}}},
			{ID: "r3", Title: "Third", Class: domain.RoundInteractive, Points: 30,
				Questions: []domain.Question{{ID: "q3", Text: "3+3?", Answer: "6"}}},
		},
		Shop: &domain.ShopConfig{Stock: []domain.ShopItem{
			{Type: "double", Title: "Double points", Price: 50, Quantity: 2},
			{Type: "shield", Title: "Shield", Price: 30, Quantity: 1},
		}},
	}
}

func testPlayers() []domain.Player {
	return []domain.Player{
		{ID: 1, Nickname: "alice"},
		{ID: 2, Nickname: "bob"},
		{ID: 3, Nickname: "carol"},
	}
}

func TestPickUnusedPlayerCyclesRoster(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())

	seen := make(map[string]int)
	for i := 0; i < 3; i++ {
		p, err := s.PickUnusedPlayer()
		if err != nil {
			t.Fatalf("pick %d: %v", i, err)
		}
		seen[p.Nickname]++
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct players in one cycle, got %v", seen)
	}

	// pool exhausted, next pick resets the cycle
	if _, err := s.PickUnusedPlayer(); err != nil {
		t.Fatalf("pick after reset: %v", err)
	}
}

func TestPickUnusedPlayerEmptyRoster(t *testing.T) {
	s := New("g1", testScenario(), nil)
	if _, err := s.PickUnusedPlayer(); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestFastestCorrect(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	base := time.Now()

	s.RecordSpeedAnswer("alice", base.Add(50*time.Millisecond), false)
	s.RecordSpeedAnswer("bob", base.Add(120*time.Millisecond), true)
	s.RecordSpeedAnswer("carol", base.Add(80*time.Millisecond), true)

	nick, _, ok := s.FastestCorrect()
	if !ok {
		t.Fatal("expected a correct answer")
	}
	if nick != "carol" {
		t.Fatalf("expected carol, got %s", nick)
	}
}

func TestSpeedAnswerFirstOneCounts(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	base := time.Now()

	s.RecordSpeedAnswer("alice", base, false)
	s.RecordSpeedAnswer("alice", base.Add(time.Second), true)

	if _, _, ok := s.FastestCorrect(); ok {
		t.Fatal("second answer from the same player must not count")
	}
}

func TestInteractiveResults(t *testing.T) {
	tests := []struct {
		name    string
		answers map[string]bool
		want    map[string]int
	}{
		{
			name:    "split",
			answers: map[string]bool{"alice": true, "bob": false, "carol": true},
			want:    map[string]int{"alice": 30, "bob": -30, "carol": 30},
		},
		{
			name:    "nobody correct",
			answers: map[string]bool{"alice": false, "bob": false, "carol": false},
			want:    map[string]int{"alice": -30, "bob": -30, "carol": -30},
		},
		{
			name:    "everybody correct",
			answers: map[string]bool{"alice": true, "bob": true, "carol": true},
			want:    map[string]int{"alice": -30, "bob": -30, "carol": -30},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("g1", testScenario(), testPlayers())
			for nick, correct := range tt.answers {
				s.RecordInteractiveAnswer(nick, correct)
			}
			got := s.InteractiveResults(30)
			for nick, pts := range tt.want {
				if got[nick] != pts {
					t.Errorf("%s: got %d, want %d", nick, got[nick], pts)
				}
			}
		})
	}
}

func TestVoteWinnerMajority(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	candidates := s.VoteCandidates(3)

	s.CastVote("alice", "r2")
	s.CastVote("bob", "r2")
	done := s.CastVote("carol", "r1")
	if !done {
		t.Fatal("all players voted, expected completion")
	}

	w, ok := s.VoteWinner(candidates)
	if !ok {
		t.Fatal("expected a winner")
	}
	if w.ID != "r2" {
		t.Fatalf("expected r2 to win, got %s", w.ID)
	}
}

func TestVoteWinnerTieBreaksAmongTied(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	candidates := s.VoteCandidates(3)

	s.CastVote("alice", "r1")
	s.CastVote("bob", "r2")
	// carol abstains; r1 and r2 tie at one vote, r3 has zero

	const trials = 4000
	wins := make(map[string]int)
	for i := 0; i < trials; i++ {
		w, ok := s.VoteWinner(candidates)
		if !ok {
			t.Fatal("expected a winner")
		}
		if w.ID == "r3" {
			t.Fatal("round with fewer votes must never win a tie")
		}
		wins[w.ID]++
	}

	// each tied round should take roughly half the trials
	for _, id := range []string{"r1", "r2"} {
		got := wins[id]
		if got < trials*40/100 || got > trials*60/100 {
			t.Fatalf("%s won %d of %d trials, want roughly half", id, got, trials)
		}
	}
}

func TestVoteWinnerNoVotes(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	candidates := s.VoteCandidates(3)

	w, ok := s.VoteWinner(candidates)
	if !ok {
		t.Fatal("expected a winner even with no votes")
	}
	found := false
	for _, c := range candidates {
		if c.ID == w.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("winner %s not among candidates", w.ID)
	}
}

func TestPurchaseDecrementsAndStopsAtZero(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())

	item, err := s.Purchase("shield")
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	if item.Quantity != 0 {
		t.Fatalf("expected quantity 0 after purchase, got %d", item.Quantity)
	}

	if _, err := s.Purchase("shield"); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	// the line item stays listed at zero
	var listed bool
	for _, it := range s.ShopStock() {
		if it.Type == "shield" {
			listed = true
			if it.Quantity != 0 {
				t.Fatalf("expected listed quantity 0, got %d", it.Quantity)
			}
		}
	}
	if !listed {
		t.Fatal("sold-out item must remain listed")
	}
}

func TestPurchaseUnknownItem(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	if _, err := s.Purchase("timewarp"); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestPurchaseConcurrent(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())

	const workers = 16
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := s.Purchase("double")
			results <- err
		}()
	}
	sold := 0
	for i := 0; i < workers; i++ {
		if err := <-results; err == nil {
			sold++
		}
	}
	if sold != 2 {
		t.Fatalf("expected exactly 2 successful purchases, got %d", sold)
	}
}

func TestMarkCompletedGate(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())

	if s.MarkCompleted("alice") {
		t.Fatal("gate must not open after one of three")
	}
	if s.MarkCompleted("alice") {
		t.Fatal("duplicate completion must not advance the gate")
	}
	s.MarkCompleted("bob")
	if !s.MarkCompleted("carol") {
		t.Fatal("gate must open once every player is done")
	}

	s.ResetCompletion()
	if s.MarkCompleted("alice") {
		t.Fatal("gate must be closed again after reset")
	}
}

func TestClassifyPriority(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	s.SetPlayerConnection("alice", "c1", "rack-1")
	if err := s.SetInformer("c2"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAdmin("c3"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		connID string
		role   string
		nick   string
	}{
		{"c3", domain.RoleAdmin, ""},
		{"c2", domain.RoleInformer, ""},
		{"c1", domain.RolePlayer, "alice"},
		{"c9", domain.RoleUnknown, ""},
	}
	for _, tt := range tests {
		role, nick := s.Classify(tt.connID)
		if role != tt.role || nick != tt.nick {
			t.Errorf("Classify(%s) = (%s, %s), want (%s, %s)", tt.connID, role, nick, tt.role, tt.nick)
		}
	}
}

func TestSingleInformerAndAdmin(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	if err := s.SetInformer("c1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetInformer("c2"); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	s.ClearInformer()
	if err := s.SetInformer("c2"); err != nil {
		t.Fatalf("informer slot must reopen after clear: %v", err)
	}
}

func TestHighlights(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	s.SetPlayerConnection("bob", "c1", "rack-2")

	hl := s.Highlights()
	if len(hl) != 3 {
		t.Fatalf("expected highlight per roster player, got %d", len(hl))
	}
	for _, h := range hl {
		active := h.Nickname == "bob"
		if h.Active != active {
			t.Errorf("%s: active = %v, want %v", h.Nickname, h.Active, active)
		}
	}
}

func TestTakeRoundRemovesFromPool(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())

	r, ok := s.TakeRound("r2")
	if !ok || r.ID != "r2" {
		t.Fatalf("TakeRound(r2) = %v, %v", r, ok)
	}
	if _, ok := s.TakeRound("r2"); ok {
		t.Fatal("round must leave the pool once taken")
	}
	if len(s.RemainingRounds()) != 2 {
		t.Fatalf("expected 2 remaining rounds, got %d", len(s.RemainingRounds()))
	}
	// the scenario source is untouched
	if len(s.Scenario.Rounds) != 3 {
		t.Fatalf("scenario round list must not shrink, got %d", len(s.Scenario.Rounds))
	}
}

func TestQuestionAdvance(t *testing.T) {
	s := New("g1", testScenario(), testPlayers())
	r := s.Scenario.Rounds[0]
	s.SetCurrentRound(&r)

	q, err := s.CurrentQuestion()
	if err != nil {
		t.Fatal(err)
	}
	if q.ID != "q1" {
		t.Fatalf("expected q1, got %s", q.ID)
	}

	s.AdvanceQuestion()
	if _, err := s.CurrentQuestion(); !errors.Is(err, ErrNoQuestion) {
		t.Fatalf("expected ErrNoQuestion past the end, got %v", err)
	}
}
