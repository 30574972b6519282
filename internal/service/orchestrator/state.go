package orchestrator

import (
	"context"
	"fmt"

	"github.com/assessli/carebot/backend/internal/model/turn"
)

// Observer is told about every state change of a request.
type Observer interface {
	OnTransition(ctx context.Context, threadID string, from, to turn.State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, threadID string, from, to turn.State)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(ctx context.Context, threadID string, from, to turn.State) {
	f(ctx, threadID, from, to)
}

// machine tracks the single in-flight state of one request.
type machine struct {
	threadID  string
	state     turn.State
	observers []Observer
}

func newMachine(ctx context.Context, threadID string, observers []Observer) *machine {
	m := &machine{threadID: threadID, state: turn.StateReceived, observers: observers}
	m.notify(ctx, "", turn.StateReceived)
	return m
}

func (m *machine) advance(ctx context.Context, next turn.State) error {
	if !turn.CanTransition(m.state, next) {
		return fmt.Errorf("illegal transition %s -> %s", m.state, next)
	}
	prev := m.state
	m.state = next
	m.notify(ctx, prev, next)
	return nil
}

// fail moves to FAILED unless already terminal.
func (m *machine) fail(ctx context.Context) {
	if m.state.Terminal() {
		return
	}
	_ = m.advance(ctx, turn.StateFailed)
}

func (m *machine) notify(ctx context.Context, from, to turn.State) {
	for _, o := range m.observers {
		if o != nil {
			o.OnTransition(ctx, m.threadID, from, to)
		}
	}
}
