// Package connection binds client presence to the running show: players,
// the informer display and the admin console identify themselves after the
// transport opens, and their disconnects pause the game until they return.
package connection

import (
	"errors"
	"log"

	"github.com/maxot/showrunner/internal/domain"
	"github.com/maxot/showrunner/internal/engine"
	"github.com/maxot/showrunner/internal/notify"
	"github.com/maxot/showrunner/internal/session"
)

var ErrNotInRoster = errors.New("nickname not in roster")

// Handler reacts to identify and disconnect events for one session
type Handler struct {
	sess     *session.Session
	eng      *engine.Engine
	notifier notify.Notifier
}

func NewHandler(sess *session.Session, eng *engine.Engine, notifier notify.Notifier) *Handler {
	return &Handler{sess: sess, eng: eng, notifier: notifier}
}

// OnPlayerIdentify records a player's connection. During the join phase it
// drives the ready-check; afterwards it is a reconnect and only refreshes
// the informer highlights. Either way a paused show resumes.
func (h *Handler) OnPlayerIdentify(connID, nickname, rack string) error {
	player, err := h.sess.PlayerByNickname(nickname)
	if err != nil {
		return ErrNotInRoster
	}
	h.sess.SetPlayerConnection(player.Nickname, connID, rack)
	h.autoResume()

	if h.eng.State() == engine.StateWaitingForPlayers {
		if err := h.eng.Fire(engine.TriggerPlayerIdentified); err != nil {
			log.Printf("connection: %v", err)
		}
		h.notifyInformer(domain.MsgHighlight, domain.HighlightPayload{
			Nickname: player.Nickname,
			Rack:     rack,
			Active:   true,
		})
		if h.sess.AllPlayersConnected() {
			if err := h.eng.Fire(engine.TriggerAllPlayersReady); err != nil {
				log.Printf("connection: %v", err)
			}
		}
		return nil
	}

	// reconnect: replay the full highlight state, no join triggers
	h.notifyInformer(domain.MsgHighlightInit, domain.HighlightInitPayload{
		Highlights: h.sess.Highlights(),
	})
	return nil
}

// OnInformerIdentify claims the singleton informer slot
func (h *Handler) OnInformerIdentify(connID string) error {
	if err := h.sess.SetInformer(connID); err != nil {
		return err
	}
	h.autoResume()
	h.notifyInformer(domain.MsgHighlightInit, domain.HighlightInitPayload{
		Highlights: h.sess.Highlights(),
	})
	return nil
}

// OnAdminIdentify claims the singleton admin slot
func (h *Handler) OnAdminIdentify(connID string) error {
	if err := h.sess.SetAdmin(connID); err != nil {
		return err
	}
	h.autoResume()
	return nil
}

// OnDisconnect classifies the dropped connection and reacts: the admin and
// the informer are presentation-critical, so losing either pauses the show
// immediately; a player disconnect pauses unless the show has not started.
// Unknown connections are reported and otherwise ignored.
func (h *Handler) OnDisconnect(connID, cause string) {
	role, nickname := h.sess.Classify(connID)
	switch role {
	case domain.RoleAdmin:
		h.sess.ClearAdmin()
		h.pause()
	case domain.RoleInformer:
		h.sess.ClearInformer()
		h.pause()
	case domain.RolePlayer:
		h.sess.RemovePlayerConnection(nickname)
		if h.eng.State() != engine.StateNotStarted {
			h.pause()
		}
		h.notifyInformer(domain.MsgHighlight, domain.HighlightPayload{
			Nickname: nickname,
			Active:   false,
		})
	default:
		log.Printf("connection: unknown connection %s dropped: %s", connID, cause)
	}
	identifier := nickname
	if identifier == "" {
		identifier = connID
	}
	if err := h.notifier.ToAdmin(domain.NewMessage(domain.MsgClientDisconnect, domain.ClientDisconnectPayload{
		Role:       role,
		Identifier: identifier,
		Cause:      cause,
	})); err != nil {
		log.Printf("connection: notify disconnect: %v", err)
	}
}

func (h *Handler) pause() {
	if !h.eng.CanFire(engine.TriggerPauseRequested) {
		return
	}
	if err := h.eng.Fire(engine.TriggerPauseRequested); err != nil {
		log.Printf("connection: pause: %v", err)
	}
}

func (h *Handler) autoResume() {
	if h.eng.State() != engine.StatePause {
		return
	}
	if err := h.eng.Fire(engine.TriggerResumeRequested); err != nil {
		log.Printf("connection: resume: %v", err)
	}
}

func (h *Handler) notifyInformer(kind string, data any) {
	if err := h.notifier.ToInformer(domain.NewMessage(kind, data)); err != nil {
		log.Printf("connection: notify %s: %v", kind, err)
	}
}
