package engine

import (
	"context"

	"github.com/qmuntal/stateless"

	"github.com/maxot/showrunner/internal/domain"
)

// mapStage returns the state a scenario stage plays in. A finish stage that
// still carries a round or media payload routes into that payload's state
// instead of terminating; no stage at all means the show is over.
func mapStage(stage *domain.Stage) stateless.State {
	if stage == nil {
		return StateFinished
	}
	switch stage.Type {
	case domain.StagePause:
		return StatePause
	case domain.StageMedia:
		return StateMedia
	case domain.StageRound:
		return StateRoundPlaying
	case domain.StageVote:
		return StateVoting
	case domain.StageShop:
		return StateShop
	case domain.StageFinish:
		switch {
		case stage.RoundID != "":
			return StateRoundPlaying
		case stage.Media != nil:
			return StateMedia
		}
		return StateFinished
	}
	return StateFinished
}

// advanceRoute moves to the next scenario stage and resolves its state.
// Used as the dynamic destination for every "stage is done" trigger.
func (e *Engine) advanceRoute(_ context.Context, _ ...any) (stateless.State, error) {
	return e.routeStage(e.sess.AdvanceStage()), nil
}

// routeStage resolves the state for the stage at index. A scheduled pause
// stage is consumed here: the stage after it becomes the resume target, a
// timer re-fires the show when the pause duration elapses, and the engine
// parks in the pause state.
func (e *Engine) routeStage(index int) stateless.State {
	stage := e.sess.StageAt(index)
	if stage == nil {
		return StateFinished
	}
	if stage.Type == domain.StagePause {
		next := e.sess.AdvanceStage()
		e.recordResumeState(mapStage(e.sess.StageAt(next)))
		if stage.Duration > 0 {
			e.timers.Schedule(timerPause, stage.Duration, e.stillIn(StatePause), func() {
				e.fire(TriggerResumeRequested)
			})
		}
		return StatePause
	}
	return mapStage(stage)
}
