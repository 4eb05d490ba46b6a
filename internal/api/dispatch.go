package api

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/maxot/showrunner/internal/domain"
	"github.com/maxot/showrunner/internal/engine"
	"github.com/maxot/showrunner/internal/session"
)

// Client message types received over the websocket
const (
	ClientIdentify      = "identify"
	ClientAnswer        = "answer"
	ClientSpeedAnswer   = "speed_answer"
	ClientStageComplete = "stage_complete"
	ClientVote          = "vote"
	ClientPurchase      = "purchase"
	ClientMediaEnded    = "media_ended"
	ClientAuctionBid    = "auction_bid"
	ClientAuctionClose  = "auction_close"
	ClientTrigger       = "trigger"
)

// ClientMessage is the envelope for everything clients send
type ClientMessage struct {
	Type     string `json:"type"`
	Role     string `json:"role,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Rack     string `json:"rack,omitempty"`
	Correct  bool   `json:"correct,omitempty"`
	RoundID  string `json:"round_id,omitempty"`
	Item     string `json:"item,omitempty"`
	Amount   int    `json:"amount,omitempty"`
	Winner   string `json:"winner,omitempty"`
	Trigger  string `json:"trigger,omitempty"`
}

// Admin-only triggers the console may fire directly. Everything else is
// driven by the engine or by dedicated client messages.
var adminTriggers = map[string]bool{
	engine.TriggerRoundStarted:      true,
	engine.TriggerQuestionCompleted: true,
	engine.TriggerRevealShowed:      true,
	engine.TriggerStatsRequested:    true,
	engine.TriggerStatsDisplayed:    true,
	engine.TriggerShopEnded:         true,
	engine.TriggerMediaEnded:        true,
	engine.TriggerEndRequested:      true,
}

// dispatch decodes one websocket message and applies it to the running game
func (r *Router) dispatch(c *WebSocketClient, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		r.sendError(c, "malformed message")
		return
	}

	if msg.Type == ClientIdentify {
		r.handleIdentify(c, msg)
		return
	}

	sess, err := r.svc.Session()
	if err != nil {
		r.sendError(c, "no game running")
		return
	}
	eng, err := r.svc.Engine()
	if err != nil {
		r.sendError(c, "no game running")
		return
	}

	role, nickname := c.Identity()
	if role == "" {
		r.sendError(c, "identify first")
		return
	}

	switch msg.Type {
	case ClientAnswer:
		r.handleAnswer(sess, eng, role, nickname, msg)
	case ClientSpeedAnswer:
		r.handleSpeedAnswer(sess, eng, role, nickname, msg)
	case ClientStageComplete:
		r.handleStageComplete(sess, eng, role, nickname)
	case ClientVote:
		r.handleVote(sess, eng, role, nickname, msg)
	case ClientPurchase:
		r.handlePurchase(c, sess, role, nickname, msg)
	case ClientMediaEnded:
		if role == domain.RoleInformer || role == domain.RoleAdmin {
			r.fire(eng, engine.TriggerMediaEnded)
		}
	case ClientAuctionBid:
		r.handleAuctionBid(role, nickname, msg)
	case ClientAuctionClose:
		r.handleAuctionClose(sess, eng, role, msg)
	case ClientTrigger:
		if role == domain.RoleAdmin && adminTriggers[msg.Trigger] {
			r.fire(eng, msg.Trigger)
		} else {
			r.sendError(c, "trigger not allowed")
		}
	default:
		r.sendError(c, "unknown message type")
	}
}

func (r *Router) handleIdentify(c *WebSocketClient, msg ClientMessage) {
	h, err := r.svc.Connections()
	if err != nil {
		r.sendError(c, "no game running")
		return
	}

	switch msg.Role {
	case domain.RolePlayer:
		err = h.OnPlayerIdentify(c.ID(), msg.Nickname, msg.Rack)
	case domain.RoleInformer:
		err = h.OnInformerIdentify(c.ID())
	case domain.RoleAdmin:
		err = h.OnAdminIdentify(c.ID())
	default:
		r.sendError(c, "unknown role")
		return
	}
	if err != nil {
		r.sendError(c, err.Error())
		return
	}
	c.setIdentity(msg.Role, msg.Nickname)
}

// handleAnswer records an interactive answer; the question completes once
// the whole roster has answered
func (r *Router) handleAnswer(sess *session.Session, eng *engine.Engine, role, nickname string, msg ClientMessage) {
	if role != domain.RolePlayer {
		return
	}
	sess.RecordInteractiveAnswer(nickname, msg.Correct)
	if sess.InteractiveAnswerCount() >= len(sess.Players) {
		r.fire(eng, engine.TriggerQuestionCompleted)
	}
}

// handleSpeedAnswer records a timed answer; the first correct one ends the
// question, the engine works out who was fastest
func (r *Router) handleSpeedAnswer(sess *session.Session, eng *engine.Engine, role, nickname string, msg ClientMessage) {
	if role != domain.RolePlayer {
		return
	}
	sess.RecordSpeedAnswer(nickname, time.Now(), msg.Correct)
	if msg.Correct {
		r.fire(eng, engine.TriggerQuestionCompleted)
	}
}

// handleStageComplete is the generic per-player done button. Which trigger
// it feeds depends on where the show currently is.
func (r *Router) handleStageComplete(sess *session.Session, eng *engine.Engine, role, nickname string) {
	if role != domain.RolePlayer {
		return
	}
	if !sess.MarkCompleted(nickname) {
		return
	}
	switch eng.State() {
	case engine.StateQuestionPlaying:
		r.fire(eng, engine.TriggerQuestionCompleted)
	case engine.StateShop:
		r.fire(eng, engine.TriggerShopEnded)
	case engine.StateApplyingTargetModifiers:
		r.fire(eng, engine.TriggerApplyTargetModifiersCompleted)
	}
}

func (r *Router) handleVote(sess *session.Session, eng *engine.Engine, role, nickname string, msg ClientMessage) {
	if role != domain.RolePlayer || eng.State() != engine.StateVoting {
		return
	}
	if sess.CastVote(nickname, msg.RoundID) {
		r.fire(eng, engine.TriggerVotingCompleted)
	}
}

// handlePurchase runs the atomic stock check. Success broadcasts the new
// stock to everyone; a sold-out item is reported only to the buyer.
func (r *Router) handlePurchase(c *WebSocketClient, sess *session.Session, role, nickname string, msg ClientMessage) {
	if role != domain.RolePlayer {
		return
	}
	_, err := sess.Purchase(msg.Item)
	if errors.Is(err, session.ErrOutOfStock) {
		r.send(c, domain.NewMessage(domain.MsgOutOfStock, domain.OutOfStockPayload{Item: msg.Item}))
		return
	}
	if err != nil {
		r.sendError(c, err.Error())
		return
	}
	r.broadcast(domain.NewMessage(domain.MsgShopUpdated, domain.ShopStockPayload{Stock: sess.ShopStock()}))
}

// handleAuctionBid relays a bid to the admin console, which arbitrates
func (r *Router) handleAuctionBid(role, nickname string, msg ClientMessage) {
	if role != domain.RolePlayer {
		return
	}
	if err := r.notifier.ToAdmin(domain.NewMessage("auction_bid", map[string]any{
		"nickname": nickname,
		"amount":   msg.Amount,
	})); err != nil {
		log.Printf("api: relay bid: %v", err)
	}
}

// handleAuctionClose settles the auction: the winner answers the question
func (r *Router) handleAuctionClose(sess *session.Session, eng *engine.Engine, role string, msg ClientMessage) {
	if role != domain.RoleAdmin {
		return
	}
	if msg.Winner != "" {
		sess.SetCurrentAnswerer(msg.Winner)
	}
	r.fire(eng, engine.TriggerAuctionCompleted)
}

func (r *Router) fire(eng *engine.Engine, trigger string) {
	if err := eng.Fire(trigger); err != nil {
		log.Printf("api: fire %s: %v", trigger, err)
	}
}

// send writes one message straight to a single client, bypassing the broker
func (r *Router) send(c *WebSocketClient, msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("api: encode %s: %v", msg.Kind, err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (r *Router) sendError(c *WebSocketClient, text string) {
	r.send(c, domain.NewMessage("error", map[string]string{"error": text}))
}

func (r *Router) broadcast(msg domain.Message) {
	if err := r.notifier.ToAll(msg); err != nil {
		log.Printf("api: broadcast %s: %v", msg.Kind, err)
	}
}
