package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maxot/showrunner/internal/config"
	"github.com/maxot/showrunner/internal/domain"
	"github.com/maxot/showrunner/internal/engine"
	"github.com/maxot/showrunner/internal/notify"
	"github.com/maxot/showrunner/internal/session"
)

type fakeStats struct{}

func (fakeStats) RoundStats(context.Context, string, string) ([]domain.RoundStat, error) {
	return nil, nil
}

func (fakeStats) ScenarioStats(context.Context, string) ([]domain.ScenarioStat, error) {
	return nil, nil
}

func (fakeStats) AddRoundPoints(context.Context, string, string, string, int) error {
	return nil
}

func testScenario() *domain.Scenario {
	return &domain.Scenario{
		Name: "test",
		Stages: []domain.Stage{
			{Type: domain.StageRound, RoundID: "r1"},
		},
		Rounds: []domain.Round{
			{ID: "r1", Title: "First", Class: domain.RoundBase, Points: 10,
				Questions: []domain.Question{{ID: "q1", Text: "?", Answer: "!"}}},
		},
	}
}

type fixture struct {
	sess    *session.Session
	eng     *engine.Engine
	rec     *notify.Recorder
	sched   *engine.ManualScheduler
	handler *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sess := session.New("game-1", testScenario(), []domain.Player{
		{ID: 1, Nickname: "alice"},
		{ID: 2, Nickname: "bob"},
		{ID: 3, Nickname: "carol"},
	})
	rec := notify.NewRecorder()
	sched := engine.NewManualScheduler()
	cfg := config.GameConfig{PresentationDelay: time.Millisecond, QuestionDuration: time.Minute}
	eng := engine.New(sess, rec, fakeStats{}, cfg, sched)
	if err := eng.Fire(engine.TriggerStartRequested); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		sess:    sess,
		eng:     eng,
		rec:     rec,
		sched:   sched,
		handler: NewHandler(sess, eng, rec),
	}
}

func (f *fixture) identifyAll(t *testing.T) {
	t.Helper()
	for _, p := range f.sess.Players {
		if err := f.handler.OnPlayerIdentify("conn-"+p.Nickname, p.Nickname, "rack-"+p.Nickname); err != nil {
			t.Fatalf("identify %s: %v", p.Nickname, err)
		}
	}
}

func TestJoinFlowReachesFirstStage(t *testing.T) {
	f := newFixture(t)

	f.identifyAll(t)
	if got := f.eng.State(); got != engine.StateRoundPlaying {
		t.Fatalf("state = %s, want %s", got, engine.StateRoundPlaying)
	}
	if !f.sess.AllPlayersConnected() {
		t.Fatal("all players must be connected after the join flow")
	}
	if n := f.rec.CountKind(domain.MsgHighlight); n != 3 {
		t.Fatalf("highlights = %d, want 3", n)
	}
}

func TestIdentifyUnknownNickname(t *testing.T) {
	f := newFixture(t)
	if err := f.handler.OnPlayerIdentify("c1", "mallory", ""); !errors.Is(err, ErrNotInRoster) {
		t.Fatalf("expected ErrNotInRoster, got %v", err)
	}
	if f.sess.ConnectedCount() != 0 {
		t.Fatal("unknown nickname must not occupy a connection slot")
	}
}

func TestAdminDisconnectPausesAndReconnectResumes(t *testing.T) {
	f := newFixture(t)
	if err := f.handler.OnAdminIdentify("admin-1"); err != nil {
		t.Fatal(err)
	}
	f.identifyAll(t)
	f.sched.FireShortest() // presentation delay
	if got := f.eng.State(); got != engine.StateQuestionPlaying {
		t.Fatalf("state = %s", got)
	}

	f.handler.OnDisconnect("admin-1", "transport closed")
	if got := f.eng.State(); got != engine.StatePause {
		t.Fatalf("state after admin drop = %s, want pause", got)
	}
	if _, ok := f.rec.LastKind(domain.MsgClientDisconnect); !ok {
		t.Fatal("expected disconnect notification")
	}

	if err := f.handler.OnAdminIdentify("admin-2"); err != nil {
		t.Fatal(err)
	}
	if got := f.eng.State(); got != engine.StateQuestionPlaying {
		t.Fatalf("state after admin return = %s, want %s", got, engine.StateQuestionPlaying)
	}
}

func TestInformerSlotConflict(t *testing.T) {
	f := newFixture(t)
	if err := f.handler.OnInformerIdentify("i1"); err != nil {
		t.Fatal(err)
	}
	if err := f.handler.OnInformerIdentify("i2"); !errors.Is(err, session.ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	f.handler.OnDisconnect("i1", "gone")
	if err := f.handler.OnInformerIdentify("i2"); err != nil {
		t.Fatalf("slot must reopen after disconnect: %v", err)
	}
}

func TestPlayerDisconnectPausesRunningShow(t *testing.T) {
	f := newFixture(t)
	f.identifyAll(t)
	f.sched.FireShortest()

	f.handler.OnDisconnect("conn-bob", "wifi dropped")
	if got := f.eng.State(); got != engine.StatePause {
		t.Fatalf("state = %s, want pause", got)
	}
	if _, ok := f.sess.PlayerConnection("bob"); ok {
		t.Fatal("connection entry must be removed")
	}

	// reconnect outside the join phase resumes and replays highlights
	if err := f.handler.OnPlayerIdentify("conn-bob-2", "bob", "rack-bob"); err != nil {
		t.Fatal(err)
	}
	if got := f.eng.State(); got != engine.StateQuestionPlaying {
		t.Fatalf("state after reconnect = %s", got)
	}
	if _, ok := f.rec.LastKind(domain.MsgHighlightInit); !ok {
		t.Fatal("expected highlight replay on reconnect")
	}
}

func TestUnknownDisconnectReportedOnly(t *testing.T) {
	f := newFixture(t)
	f.identifyAll(t)
	before := f.eng.State()

	f.handler.OnDisconnect("nobody", "whatever")
	if got := f.eng.State(); got != before {
		t.Fatalf("unknown disconnect changed state to %s", got)
	}
	sent, ok := f.rec.LastKind(domain.MsgClientDisconnect)
	if !ok {
		t.Fatal("expected disconnect report")
	}
	if got := sent.Message.Data.(domain.ClientDisconnectPayload).Role; got != domain.RoleUnknown {
		t.Fatalf("role = %s, want %s", got, domain.RoleUnknown)
	}
}
