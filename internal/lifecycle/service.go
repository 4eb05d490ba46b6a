// Package lifecycle orchestrates whole-session operations: starting a game,
// operator pause/resume/skip, and force-stop. It owns the wiring between the
// session store, the engine and the persistence and licensing collaborators.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxot/showrunner/internal/config"
	"github.com/maxot/showrunner/internal/connection"
	"github.com/maxot/showrunner/internal/domain"
	"github.com/maxot/showrunner/internal/engine"
	"github.com/maxot/showrunner/internal/license"
	"github.com/maxot/showrunner/internal/notify"
	"github.com/maxot/showrunner/internal/session"
)

var (
	ErrNoGame     = errors.New("no game running")
	ErrGameActive = errors.New("a game is already running")
	ErrSkipDenied = errors.New("skip not allowed now")
	ErrNoPlayers  = errors.New("cannot start a game without players")
)

// GameRepository persists game and roster records
type GameRepository interface {
	CreateGame(ctx context.Context, g *domain.Game) error
	RunningGames(ctx context.Context) ([]domain.Game, error)
	MarkStopped(ctx context.Context, gameUUID string) error
	AddPlayers(ctx context.Context, gameID int64, players []domain.Player) error
}

// StartRequest carries everything needed to begin a show
type StartRequest struct {
	Scenario *domain.Scenario
	Players  []string
}

// Service drives session lifecycle operations. All methods are safe for
// concurrent use.
type Service struct {
	store    *session.Store
	repo     GameRepository
	lic      license.Validator
	notifier notify.Notifier
	stats    engine.StatsStore
	cfg      config.GameConfig
	sched    engine.Scheduler

	mu      sync.Mutex
	eng     *engine.Engine
	handler *connection.Handler
	game    *domain.Game
}

func NewService(store *session.Store, repo GameRepository, lic license.Validator,
	notifier notify.Notifier, stats engine.StatsStore, cfg config.GameConfig,
	sched engine.Scheduler) *Service {
	return &Service{
		store:    store,
		repo:     repo,
		lic:      lic,
		notifier: notifier,
		stats:    stats,
		cfg:      cfg,
		sched:    sched,
	}
}

// Start validates the license, persists a new game record and spins up the
// engine for it. A session left over from a crashed process is recovered
// first: its record is marked stopped and its clients are disconnected.
func (s *Service) Start(ctx context.Context, req StartRequest) (*domain.Game, error) {
	if req.Scenario == nil {
		return nil, errors.New("no scenario")
	}
	if len(req.Players) == 0 {
		return nil, ErrNoPlayers
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.Active() {
		if err := s.recoverStale(ctx); err != nil {
			return nil, err
		}
	}

	if err := s.lic.Validate(ctx); err != nil {
		return nil, fmt.Errorf("license check failed: %w", err)
	}

	game := &domain.Game{
		UUID:         uuid.NewString(),
		ScenarioName: req.Scenario.Name,
		Running:      true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to persist game: %w", err)
	}
	players := make([]domain.Player, len(req.Players))
	for i, nick := range req.Players {
		players[i] = domain.Player{Nickname: nick}
	}
	if err := s.repo.AddPlayers(ctx, game.ID, players); err != nil {
		return nil, fmt.Errorf("failed to persist players: %w", err)
	}
	if err := s.lic.Consume(ctx); err != nil {
		return nil, fmt.Errorf("failed to charge license: %w", err)
	}

	sess := session.New(game.UUID, req.Scenario, players)
	if err := s.store.Create(sess); err != nil {
		return nil, err
	}

	s.eng = engine.New(sess, s.notifier, s.stats, s.cfg, s.sched)
	s.handler = connection.NewHandler(sess, s.eng, s.notifier)
	s.game = game

	if err := s.eng.Fire(engine.TriggerStartRequested); err != nil {
		return nil, err
	}
	s.toAll(domain.MsgScenarioSent, domain.ScenarioPayload{
		GameUUID: game.UUID,
		Name:     req.Scenario.Name,
		Players:  players,
		Stages:   len(req.Scenario.Stages),
	})
	return game, nil
}

// recoverStale cleans up after a previous process that died mid-game.
// Caller holds s.mu.
func (s *Service) recoverStale(ctx context.Context) error {
	running, err := s.repo.RunningGames(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan for stale games: %w", err)
	}
	if len(running) == 0 {
		return s.clearSession()
	}
	for _, g := range running {
		log.Printf("lifecycle: recovering stale game %s", g.UUID)
		if err := s.repo.MarkStopped(ctx, g.UUID); err != nil {
			return fmt.Errorf("failed to stop stale game %s: %w", g.UUID, err)
		}
	}
	return s.clearSession()
}

func (s *Service) clearSession() error {
	if s.eng != nil {
		s.eng.Stop()
	}
	if sess, err := s.store.Get(); err == nil {
		sess.Cancel()
	}
	s.toAll(domain.MsgForceDisconnect, nil)
	s.eng = nil
	s.handler = nil
	s.game = nil
	return s.store.Reset()
}

// Pause suspends the show. When pausing is not possible in the current
// state this is a no-op.
func (s *Service) Pause() error {
	eng, err := s.engine()
	if err != nil {
		return err
	}
	if !eng.CanFire(engine.TriggerPauseRequested) {
		return nil
	}
	return eng.Fire(engine.TriggerPauseRequested)
}

// Resume continues a paused show. A no-op when nothing is paused.
func (s *Service) Resume() error {
	eng, err := s.engine()
	if err != nil {
		return err
	}
	if !eng.CanFire(engine.TriggerResumeRequested) {
		return nil
	}
	return eng.Fire(engine.TriggerResumeRequested)
}

// SkipStage jumps over the current stage. Refused while paused or in a
// state that does not support skipping.
func (s *Service) SkipStage() error {
	eng, err := s.engine()
	if err != nil {
		return err
	}
	if eng.State() == engine.StatePause || !eng.CanFire(engine.TriggerSkip) {
		return ErrSkipDenied
	}
	return eng.Fire(engine.TriggerSkip)
}

// ForceStop tears the session down: the game record is marked stopped, the
// session cancellation fires and all clients are told to disconnect.
func (s *Service) ForceStop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return ErrNoGame
	}
	if err := s.repo.MarkStopped(ctx, s.game.UUID); err != nil {
		log.Printf("lifecycle: failed to mark game stopped: %v", err)
	}
	return s.clearSession()
}

// Engine returns the live engine, if a game is running
func (s *Service) Engine() (*engine.Engine, error) {
	return s.engine()
}

// Connections returns the connection handler, if a game is running
func (s *Service) Connections() (*connection.Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return nil, ErrNoGame
	}
	return s.handler, nil
}

// Session returns the active session, if a game is running
func (s *Service) Session() (*session.Session, error) {
	sess, err := s.store.Get()
	if err != nil {
		return nil, ErrNoGame
	}
	return sess, nil
}

// Game returns the running game record, if any
func (s *Service) Game() (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return nil, ErrNoGame
	}
	g := *s.game
	return &g, nil
}

func (s *Service) engine() (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return nil, ErrNoGame
	}
	return s.eng, nil
}

func (s *Service) toAll(kind string, data any) {
	if err := s.notifier.ToAll(domain.NewMessage(kind, data)); err != nil {
		log.Printf("lifecycle: notify %s: %v", kind, err)
	}
}
