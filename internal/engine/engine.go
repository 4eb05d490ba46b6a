// Package engine drives one show session through its scenario. A single
// state machine per session interprets the scenario's stage list; client
// actions and stage timers re-enter it as triggers. Firing is queued, so
// transition logic never runs concurrently for one session, while the
// session state around it stays safe for concurrent callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/maxot/showrunner/internal/config"
	"github.com/maxot/showrunner/internal/domain"
	"github.com/maxot/showrunner/internal/notify"
	"github.com/maxot/showrunner/internal/session"
)

// ErrTriggerNotPermitted reports a trigger fired from a state that does not
// accept it
var ErrTriggerNotPermitted = errors.New("trigger not permitted")

// maxVoteCandidates caps how many rounds go up for a vote
const maxVoteCandidates = 4

// StatsStore records scoring outcomes as questions settle and supplies the
// accumulated statistics for the display states
type StatsStore interface {
	AddRoundPoints(ctx context.Context, gameUUID, roundID, nickname string, points int) error
	RoundStats(ctx context.Context, gameUUID, roundID string) ([]domain.RoundStat, error)
	ScenarioStats(ctx context.Context, gameUUID string) ([]domain.ScenarioStat, error)
}

// Engine binds the state machine to one session
type Engine struct {
	sm       *stateless.StateMachine
	sess     *session.Session
	notifier notify.Notifier
	stats    StatsStore
	cfg      config.GameConfig
	timers   *TimerSet

	mu            sync.Mutex
	resumeState   stateless.State
	voteChoices   []domain.Round
	questionStart time.Time
}

// New builds an engine for the session. A nil scheduler means wall-clock
// timers.
func New(sess *session.Session, notifier notify.Notifier, stats StatsStore, cfg config.GameConfig, sched Scheduler) *Engine {
	if sched == nil {
		sched = NewRealScheduler()
	}
	e := &Engine{
		sess:     sess,
		notifier: notifier,
		stats:    stats,
		cfg:      cfg,
		timers:   NewTimerSet(sched),
	}
	e.configure()
	return e
}

// State returns the current machine state
func (e *Engine) State() string {
	s, _ := e.sm.MustState().(string)
	return s
}

// CanFire reports whether the trigger is permitted right now
func (e *Engine) CanFire(trigger string) bool {
	ok, err := e.sm.CanFire(trigger)
	return err == nil && ok
}

// Fire delivers a trigger to the machine. A trigger the current state does
// not accept returns ErrTriggerNotPermitted; a failure inside a transition
// callback is logged and contained, never re-thrown to the caller.
func (e *Engine) Fire(trigger string, args ...any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: panic during %s: %v", trigger, r)
			err = nil
		}
	}()
	return e.sm.Fire(trigger, args...)
}

// fire is for internally-originated triggers (timers, auto-advance); a
// rejected fire is logged, not surfaced
func (e *Engine) fire(trigger string) {
	if err := e.Fire(trigger); err != nil {
		log.Printf("engine: dropped %s: %v", trigger, err)
	}
}

// Stop cancels every live timer. The machine itself needs no teardown.
func (e *Engine) Stop() {
	e.timers.CancelAll()
}

func (e *Engine) configure() {
	sm := stateless.NewStateMachineWithMode(StateNotStarted, stateless.FiringQueued)
	e.sm = sm

	sm.OnUnhandledTrigger(func(_ context.Context, state stateless.State, trigger stateless.Trigger, _ []string) error {
		return fmt.Errorf("%w: %v in %v", ErrTriggerNotPermitted, trigger, state)
	})

	sm.OnTransitioned(func(_ context.Context, tr stateless.Transition) {
		state, _ := tr.Destination.(string)
		trigger, _ := tr.Trigger.(string)
		e.sess.SetPosition(state)
		e.toAll(domain.MsgStateChanged, domain.StateChangedPayload{State: state, Trigger: trigger})
		log.Printf("engine: %v -> %v on %v", tr.Source, tr.Destination, tr.Trigger)
	})

	sm.Configure(StateNotStarted).
		Permit(TriggerStartRequested, StateWaitingForPlayers)

	e.gameplay(sm.Configure(StateWaitingForPlayers)).
		PermitReentry(TriggerPlayerIdentified).
		PermitDynamic(TriggerAllPlayersReady, e.advanceRoute, e.allPlayersReady).
		OnExit(e.exitWaiting)

	e.gameplay(sm.Configure(StateMedia)).
		PermitDynamic(TriggerMediaEnded, e.advanceRoute).
		PermitDynamic(TriggerSkip, e.advanceRoute).
		OnEntry(e.enterMedia)

	e.gameplay(sm.Configure(StateRoundPlaying)).
		Permit(TriggerRoundStarted, StateQuestionPlaying).
		Permit(TriggerAuctionStarted, StateAuction).
		Ignore(TriggerApplyTargetModifiersCompleted).
		OnEntry(e.enterRound)

	e.gameplay(sm.Configure(StateQuestionPlaying)).
		PermitDynamic(TriggerQuestionCompleted, e.afterQuestion).
		PermitDynamic(TriggerRoundTimeout, e.afterQuestion).
		OnEntry(e.enterQuestion)

	e.gameplay(sm.Configure(StateAuction)).
		Permit(TriggerAuctionCompleted, StateQuestionPlaying).
		OnEntry(e.clearAuctionTracking)

	e.gameplay(sm.Configure(StateRevealShowing)).
		PermitDynamic(TriggerRevealShowed, e.afterReveal).
		PermitDynamic(TriggerSkip, e.afterReveal).
		OnEntry(e.enterReveal).
		OnExit(e.exitReveal)

	e.gameplay(sm.Configure(StateWaitStats)).
		Ignore(TriggerRevealShowed).
		Permit(TriggerStatsRequested, StateShowingStats)

	e.gameplay(sm.Configure(StateShowingStats)).
		PermitDynamic(TriggerStatsDisplayed, e.afterStats).
		PermitDynamic(TriggerSkip, e.afterStats).
		OnEntry(e.enterRoundStats)

	e.gameplay(sm.Configure(StateVoting)).
		PermitDynamic(TriggerVotingCompleted, e.afterVoting).
		OnEntry(e.enterVoting)

	e.gameplay(sm.Configure(StateShop)).
		Permit(TriggerShopEnded, StateApplyingTargetModifiers).
		Permit(TriggerShopTimeout, StateApplyingTargetModifiers).
		OnEntry(e.enterShop)

	e.gameplay(sm.Configure(StateApplyingTargetModifiers)).
		PermitDynamic(TriggerApplyTargetModifiersCompleted, e.advanceRoute).
		OnEntry(e.enterApplyModifiers)

	sm.Configure(StatePause).
		Ignore(TriggerPauseRequested).
		PermitDynamic(TriggerResumeRequested, e.resumeTarget).
		Permit(TriggerEndRequested, StateFinished).
		OnEntry(e.enterPause).
		OnExit(e.exitPause)

	sm.Configure(StateFinished).
		Permit(TriggerStatsRequested, StateShowingScenarioStats).
		OnEntry(e.enterFinished)

	sm.Configure(StateShowingScenarioStats).
		OnEntry(e.enterScenarioStats)
}

// gameplay adds the transitions every in-show state shares: pausing and
// ending the game
func (e *Engine) gameplay(cfg *stateless.StateConfiguration) *stateless.StateConfiguration {
	return cfg.
		PermitDynamic(TriggerPauseRequested, e.toPause).
		Permit(TriggerEndRequested, StateFinished)
}

// --- pause bookkeeping ---

// toPause records the pre-pause state exactly once. Re-pausing while the
// target is already recorded keeps the first recording.
func (e *Engine) toPause(_ context.Context, _ ...any) (stateless.State, error) {
	e.recordResumeState(e.sm.MustState())
	return StatePause, nil
}

func (e *Engine) recordResumeState(s stateless.State) {
	e.mu.Lock()
	if e.resumeState == nil {
		e.resumeState = s
	}
	e.mu.Unlock()
}

func (e *Engine) resumeTarget(_ context.Context, _ ...any) (stateless.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resumeState == nil {
		return StateWaitingForPlayers, nil
	}
	return e.resumeState, nil
}

func (e *Engine) enterPause(_ context.Context, _ ...any) error {
	e.toAll(domain.MsgPaused, nil)
	return nil
}

func (e *Engine) exitPause(ctx context.Context, _ ...any) error {
	e.timers.Cancel(timerPause)
	tr := stateless.GetTransition(ctx)
	if tr.Trigger == TriggerResumeRequested {
		e.toAll(domain.MsgResumed, nil)
	}
	e.mu.Lock()
	e.resumeState = nil
	e.mu.Unlock()
	return nil
}

// resumedFrom reports whether the running transition re-enters a state the
// show was paused in. Entry actions use it to re-announce instead of
// re-resolving.
func (e *Engine) resumedFrom(ctx context.Context) bool {
	return stateless.GetTransition(ctx).Source == StatePause
}

// --- waiting for players ---

func (e *Engine) allPlayersReady(_ context.Context, _ ...any) bool {
	return e.sess.AllPlayersConnected()
}

// exitWaiting arms the whole-game clock once the show actually begins.
// Leaving via pause or force-end must not arm it.
func (e *Engine) exitWaiting(ctx context.Context, _ ...any) error {
	if stateless.GetTransition(ctx).Trigger != TriggerAllPlayersReady {
		return nil
	}
	d := e.sess.Scenario.Duration
	if d == 0 {
		d = e.cfg.GameDuration
	}
	if d > 0 {
		e.timers.Schedule(timerGame, d, e.gameRunning, func() {
			e.fire(TriggerEndRequested)
		})
	}
	return nil
}

// stillIn builds a timer fence that holds while the machine has not left state
func (e *Engine) stillIn(state string) func() bool {
	return func() bool { return e.State() == state }
}

func (e *Engine) gameRunning() bool {
	switch e.State() {
	case StateNotStarted, StateFinished, StateShowingScenarioStats:
		return false
	}
	return true
}

// --- media ---

func (e *Engine) enterMedia(_ context.Context, _ ...any) error {
	stage := e.sess.CurrentStage()
	if stage == nil || stage.Media == nil {
		log.Printf("engine: media stage %d has no asset", e.sess.StageIndex())
		e.fire(TriggerMediaEnded)
		return nil
	}
	e.toAll(domain.MsgMediaStarted, domain.MediaPayload{Asset: *stage.Media})
	if d := stage.Media.Duration; d > 0 {
		idx := e.sess.StageIndex()
		e.timers.Schedule(timerPresent, d, func() bool {
			return e.State() == StateMedia && e.sess.StageIndex() == idx
		}, func() {
			e.fire(TriggerMediaEnded)
		})
	}
	return nil
}

// --- rounds and questions ---

func (e *Engine) enterRound(ctx context.Context, _ ...any) error {
	if e.resumedFrom(ctx) {
		if r := e.sess.CurrentRound(); r != nil {
			e.toAll(domain.MsgRoundStarted, domain.RoundPayload{Round: *r})
			e.schedulePresentation(r)
			return nil
		}
	}
	round := e.resolveRound()
	if round == nil {
		log.Printf("engine: no round to play at stage %d", e.sess.StageIndex())
		e.fire(TriggerEndRequested)
		return nil
	}
	e.sess.SetCurrentRound(round)
	e.sess.ResetRoundTracking()
	e.toAll(domain.MsgRoundStarted, domain.RoundPayload{Round: *round})

	if round.Duration > 0 {
		rid := round.ID
		e.timers.Schedule(timerRound, round.Duration, func() bool {
			cur := e.sess.CurrentRound()
			return e.State() == StateQuestionPlaying && cur != nil && cur.ID == rid
		}, func() {
			e.fire(TriggerRoundTimeout)
		})
	}
	e.schedulePresentation(round)
	return nil
}

// resolveRound picks the round for the current stage: the fixed one when the
// stage names it, otherwise the one chosen by the last vote. Playing a round
// removes it from the remaining pool.
func (e *Engine) resolveRound() *domain.Round {
	stage := e.sess.CurrentStage()
	if stage != nil && stage.RoundID != "" {
		if r, ok := e.sess.TakeRound(stage.RoundID); ok {
			return r
		}
		return e.sess.Scenario.RoundByID(stage.RoundID)
	}
	chosen := e.sess.ChosenRound()
	if chosen == nil {
		return nil
	}
	if r, ok := e.sess.TakeRound(chosen.ID); ok {
		return r
	}
	return chosen
}

// schedulePresentation gives clients a moment to show the round intro, then
// moves into the first question (or the auction for auction-class rounds)
func (e *Engine) schedulePresentation(round *domain.Round) {
	rid := round.ID
	auction := round.Class.AuctionClass()
	e.timers.Schedule(timerPresent, e.cfg.PresentationDelay, func() bool {
		cur := e.sess.CurrentRound()
		return e.State() == StateRoundPlaying && cur != nil && cur.ID == rid
	}, func() {
		if auction {
			e.fire(TriggerAuctionStarted)
		} else {
			e.fire(TriggerRoundStarted)
		}
	})
}

func (e *Engine) enterQuestion(ctx context.Context, _ ...any) error {
	round := e.sess.CurrentRound()
	if round == nil {
		log.Printf("engine: question entry without a round")
		e.fire(TriggerEndRequested)
		return nil
	}
	question, err := e.sess.CurrentQuestion()
	if err != nil {
		log.Printf("engine: %v", err)
		e.fire(TriggerRoundTimeout)
		return nil
	}

	target := e.sess.CurrentAnswerer()
	if !e.resumedFrom(ctx) {
		e.sess.ClearQuestionTracking()
		switch {
		case round.Class.SingleResponder():
			p, err := e.sess.PickUnusedPlayer()
			if err != nil {
				log.Printf("engine: %v", err)
			} else {
				target = p.Nickname
				e.sess.SetCurrentAnswerer(target)
			}
		case target != "":
			// an auction winner stays pinned across the tracking reset
			e.sess.SetCurrentAnswerer(target)
		}
		e.mu.Lock()
		e.questionStart = time.Now()
		e.mu.Unlock()
	}

	payload := domain.QuestionPayload{
		Question:     question,
		Index:        e.sess.QuestionIndex(),
		TargetPlayer: target,
	}
	if target != "" {
		e.toPlayer(target, domain.MsgQuestionStarted, payload)
	}
	e.toAll(domain.MsgQuestionStarted, payload)

	d := round.QuestionDuration
	if d == 0 {
		d = e.cfg.QuestionDuration
	}
	if d > 0 {
		rid, qi := round.ID, e.sess.QuestionIndex()
		e.timers.Schedule(timerQuestion, d, func() bool {
			cur := e.sess.CurrentRound()
			return e.State() == StateQuestionPlaying &&
				cur != nil && cur.ID == rid && e.sess.QuestionIndex() == qi
		}, func() {
			e.fire(TriggerRoundTimeout)
		})
	}
	return nil
}

// afterQuestion settles the question's outcome before the reveal. Speed
// rounds announce and score the fastest correct responder, interactive
// rounds score the per-player deltas, every other class scores the pinned
// answerer's verdict. Settled points go to the statistics store, which the
// display states read back.
func (e *Engine) afterQuestion(ctx context.Context, _ ...any) (stateless.State, error) {
	round := e.sess.CurrentRound()
	if round == nil {
		return StateWaitStats, nil
	}
	points := e.questionPoints(round)
	switch round.Class {
	case domain.RoundSpeed:
		if nick, at, ok := e.sess.FastestCorrect(); ok {
			e.mu.Lock()
			start := e.questionStart
			e.mu.Unlock()
			question, _ := e.sess.CurrentQuestion()
			e.toAll(domain.MsgSpeedWinner, domain.SpeedWinnerPayload{
				Nickname: nick,
				Elapsed:  at.Sub(start),
				Question: question.ID,
			})
			e.award(ctx, round.ID, map[string]int{nick: points})
		}
	case domain.RoundInteractive:
		results := e.sess.InteractiveResults(points)
		e.toAll(domain.MsgInteractive, domain.InteractivePayload{Points: results})
		e.award(ctx, round.ID, results)
	default:
		if nick := e.sess.CurrentAnswerer(); nick != "" {
			if correct, ok := e.sess.AnswerVerdict(nick); ok {
				if !correct {
					points = -points
				}
				e.award(ctx, round.ID, map[string]int{nick: points})
			}
		}
	}
	return StateRevealShowing, nil
}

// award persists settled per-player point deltas for the round scoreboard
func (e *Engine) award(ctx context.Context, roundID string, deltas map[string]int) {
	for nick, pts := range deltas {
		if pts == 0 {
			continue
		}
		if err := e.stats.AddRoundPoints(ctx, e.sess.GameUUID, roundID, nick, pts); err != nil {
			log.Printf("engine: failed to record %d points for %s: %v", pts, nick, err)
		}
	}
}

func (e *Engine) questionPoints(round *domain.Round) int {
	if q, err := e.sess.CurrentQuestion(); err == nil && q.Points > 0 {
		return q.Points
	}
	return round.Points
}

func (e *Engine) enterReveal(ctx context.Context, _ ...any) error {
	e.timers.Cancel(timerQuestion)
	question, err := e.sess.CurrentQuestion()
	if err != nil {
		log.Printf("engine: %v", err)
		return nil
	}
	e.sess.ClearQuestionTracking()

	reveal := func() {
		e.toAll(domain.MsgRevealShown, domain.RevealPayload{
			Question: question,
			Answer:   question.Answer,
		})
	}
	round := e.sess.CurrentRound()
	if !e.resumedFrom(ctx) && round != nil && round.Class == domain.RoundSpeed && e.cfg.SettleDelay > 0 {
		// hold the reveal so the winner announcement lands first
		qi := e.sess.QuestionIndex()
		e.timers.Schedule(timerSettle, e.cfg.SettleDelay, func() bool {
			return e.State() == StateRevealShowing && e.sess.QuestionIndex() == qi
		}, reveal)
		return nil
	}
	reveal()
	return nil
}

// exitReveal steps past the revealed question unless we are leaving for a
// pause or a forced end
func (e *Engine) exitReveal(ctx context.Context, _ ...any) error {
	switch stateless.GetTransition(ctx).Trigger {
	case TriggerRevealShowed, TriggerSkip:
		e.sess.AdvanceQuestion()
	}
	return nil
}

// afterReveal decides between the next question and the round's end. The
// question index advances on exit, so the check is against index+1.
func (e *Engine) afterReveal(_ context.Context, _ ...any) (stateless.State, error) {
	round := e.sess.CurrentRound()
	if round == nil || e.sess.QuestionIndex()+1 >= len(round.Questions) {
		return StateWaitStats, nil
	}
	if round.Class.AuctionClass() {
		return StateAuction, nil
	}
	return StateQuestionPlaying, nil
}

func (e *Engine) clearAuctionTracking(_ context.Context, _ ...any) error {
	e.sess.ClearQuestionTracking()
	e.sess.ResetCompletion()
	return nil
}

// --- statistics ---

func (e *Engine) enterRoundStats(ctx context.Context, _ ...any) error {
	round := e.sess.CurrentRound()
	if round == nil {
		return nil
	}
	stats, err := e.stats.RoundStats(ctx, e.sess.GameUUID, round.ID)
	if err != nil {
		log.Printf("engine: failed to fetch round stats: %v", err)
	}
	e.toAll(domain.MsgRoundStats, domain.RoundStatsPayload{RoundID: round.ID, Stats: stats})
	return nil
}

func (e *Engine) afterStats(ctx context.Context, args ...any) (stateless.State, error) {
	e.sess.ClearRoundScope()
	return e.advanceRoute(ctx, args...)
}

func (e *Engine) enterScenarioStats(ctx context.Context, _ ...any) error {
	stats, err := e.stats.ScenarioStats(ctx, e.sess.GameUUID)
	if err != nil {
		log.Printf("engine: failed to fetch scenario stats: %v", err)
	}
	e.toAll(domain.MsgScenarioStats, domain.ScenarioStatsPayload{Stats: stats})
	return nil
}

// --- voting ---

func (e *Engine) enterVoting(ctx context.Context, _ ...any) error {
	if e.resumedFrom(ctx) {
		e.mu.Lock()
		choices := append([]domain.Round(nil), e.voteChoices...)
		e.mu.Unlock()
		e.toAll(domain.MsgVotingStarted, domain.VotingPayload{Candidates: choices})
		return nil
	}
	e.sess.ResetVotes()
	e.sess.ClearRoundScope()
	choices := e.sess.VoteCandidates(maxVoteCandidates)
	e.mu.Lock()
	e.voteChoices = choices
	e.mu.Unlock()
	e.toAll(domain.MsgVotingStarted, domain.VotingPayload{Candidates: choices})
	if len(choices) <= 1 {
		e.fire(TriggerVotingCompleted)
	}
	return nil
}

func (e *Engine) afterVoting(ctx context.Context, args ...any) (stateless.State, error) {
	e.mu.Lock()
	choices := append([]domain.Round(nil), e.voteChoices...)
	e.mu.Unlock()
	if winner, ok := e.sess.VoteWinner(choices); ok {
		e.sess.SetChosenRound(winner)
	}
	return e.advanceRoute(ctx, args...)
}

// --- shop ---

func (e *Engine) enterShop(ctx context.Context, _ ...any) error {
	stock := e.sess.ShopStock()
	d := e.cfg.ShopDuration
	if shop := e.sess.Scenario.Shop; shop != nil && shop.Duration > 0 {
		d = shop.Duration
	}
	if e.resumedFrom(ctx) {
		e.toAll(domain.MsgShopStarted, domain.ShopPayload{Duration: d, Stock: stock})
		return nil
	}
	e.sess.ResetCompletion()
	e.toAll(domain.MsgShopStarted, domain.ShopPayload{Duration: d, Stock: stock})
	if d > 0 {
		idx := e.sess.StageIndex()
		e.timers.Schedule(timerShop, d, func() bool {
			return e.State() == StateShop && e.sess.StageIndex() == idx
		}, func() {
			e.fire(TriggerShopTimeout)
		})
	}
	return nil
}

func (e *Engine) enterApplyModifiers(_ context.Context, _ ...any) error {
	e.timers.Cancel(timerShop)
	e.sess.ResetCompletion()
	e.toAll(domain.MsgShopUpdated, domain.ShopStockPayload{Stock: e.sess.ShopStock()})
	return nil
}

// --- end of show ---

func (e *Engine) enterFinished(_ context.Context, _ ...any) error {
	e.timers.CancelAll()
	return nil
}

// --- notification helpers ---

func (e *Engine) toAll(kind string, data any) {
	if err := e.notifier.ToAll(domain.NewMessage(kind, data)); err != nil {
		log.Printf("engine: notify %s: %v", kind, err)
	}
}

func (e *Engine) toPlayer(nickname, kind string, data any) {
	if err := e.notifier.ToPlayer(nickname, domain.NewMessage(kind, data)); err != nil {
		log.Printf("engine: notify %s to %s: %v", kind, nickname, err)
	}
}
