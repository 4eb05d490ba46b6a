// Package notify fans session events out to the show's client audiences.
// Messages travel as JSON over NATS subjects; the websocket gateway
// subscribes and forwards them to the matching connections.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/maxot/showrunner/internal/domain"
)

// NATS subjects per audience
const (
	SubjectAll      = "show.all"
	SubjectPlayers  = "show.players"
	SubjectPlayer   = "show.player.%s"
	SubjectInformer = "show.informer"
	SubjectAdmin    = "show.admin"
)

// Notifier delivers game messages to client audiences
type Notifier interface {
	ToAll(msg domain.Message) error
	ToPlayers(msg domain.Message) error
	ToPlayer(nickname string, msg domain.Message) error
	ToInformer(msg domain.Message) error
	ToAdmin(msg domain.Message) error
}

// Publisher is the NATS-backed Notifier
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

func (p *Publisher) publish(subject string, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Kind, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) ToAll(msg domain.Message) error {
	return p.publish(SubjectAll, msg)
}

func (p *Publisher) ToPlayers(msg domain.Message) error {
	return p.publish(SubjectPlayers, msg)
}

func (p *Publisher) ToPlayer(nickname string, msg domain.Message) error {
	return p.publish(fmt.Sprintf(SubjectPlayer, nickname), msg)
}

func (p *Publisher) ToInformer(msg domain.Message) error {
	return p.publish(SubjectInformer, msg)
}

func (p *Publisher) ToAdmin(msg domain.Message) error {
	return p.publish(SubjectAdmin, msg)
}
