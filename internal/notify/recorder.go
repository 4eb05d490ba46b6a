package notify

import (
	"sync"

	"github.com/maxot/showrunner/internal/domain"
)

// Sent is one recorded delivery
type Sent struct {
	Audience string // all, players, player, informer, admin
	Nickname string // set for per-player deliveries
	Message  domain.Message
}

// Recorder is a Notifier that captures deliveries for tests
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) record(audience, nickname string, msg domain.Message) error {
	r.mu.Lock()
	r.sent = append(r.sent, Sent{Audience: audience, Nickname: nickname, Message: msg})
	r.mu.Unlock()
	return nil
}

func (r *Recorder) ToAll(msg domain.Message) error      { return r.record("all", "", msg) }
func (r *Recorder) ToPlayers(msg domain.Message) error  { return r.record("players", "", msg) }
func (r *Recorder) ToInformer(msg domain.Message) error { return r.record("informer", "", msg) }
func (r *Recorder) ToAdmin(msg domain.Message) error    { return r.record("admin", "", msg) }

func (r *Recorder) ToPlayer(nickname string, msg domain.Message) error {
	return r.record("player", nickname, msg)
}

// Messages returns a copy of everything recorded so far
func (r *Recorder) Messages() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// LastKind returns the most recent delivery of the given kind, if any
func (r *Recorder) LastKind(kind string) (Sent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Message.Kind == kind {
			return r.sent[i], true
		}
	}
	return Sent{}, false
}

// CountKind returns how many deliveries of the given kind were recorded
func (r *Recorder) CountKind(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Message.Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears the recorded deliveries
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
