package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash buffers messages an actor cannot handle in its current state.
type Stash struct {
	pending []*actor.MessageEnvelope
}

func (s *Stash) Stash(ctx actor.Context, msg any) {
	s.pending = append(s.pending, &actor.MessageEnvelope{Message: msg, Sender: ctx.Sender()})
}

// UnstashAll re-enqueues every buffered message to self, in arrival order
// and with the original sender.
func (s *Stash) UnstashAll(ctx actor.Context) {
	pending := s.pending
	s.pending = nil
	for _, env := range pending {
		ctx.RequestWithCustomSender(ctx.Self(), env.Message, env.Sender)
	}
}
