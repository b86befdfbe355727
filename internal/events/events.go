// Package events fans room state changes out to realtime clients and the message bus.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

type Type string

const (
	RoomCreated     Type = "room.created"
	RoomJoined      Type = "room.joined"
	GameStarted     Type = "game.started"
	RoundStarted    Type = "round.started"
	AnswerSubmitted Type = "answer.submitted"
	RoundJudged     Type = "round.judged"
	GameFinished    Type = "game.finished"
)

type Event struct {
	Type    Type      `json:"type"`
	RoomID  string    `json:"room_id"`
	Actor   string    `json:"actor,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes to every registered publisher. Publishers may be added after
// the Fanout has been handed out, which lets transports that depend on the game
// machine register themselves once they exist.
type Fanout struct {
	mu   sync.RWMutex
	pubs []Publisher
}

func NewFanout(pubs ...Publisher) *Fanout {
	return &Fanout{pubs: pubs}
}

func (f *Fanout) Add(p Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, p)
}

func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	f.mu.RLock()
	pubs := append([]Publisher(nil), f.pubs...)
	f.mu.RUnlock()

	var errs []error
	for _, p := range pubs {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every published event. Handy in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
