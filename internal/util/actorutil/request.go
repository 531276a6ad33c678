package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

// Replier is where the response to a request goes: the explicit ReplyToRef
// when the request carries one, the sender of the message otherwise.
type Replier struct {
	to *actor.PID
}

func ReplierFor(ctx actor.Context, req domain.ActorRequest) Replier {
	if ref := req.ReplyTo(); ref != nil {
		return Replier{to: (*actor.PID)(ref)}
	}
	return Replier{to: ctx.Sender()}
}

func (r Replier) PID() *actor.PID {
	return r.to
}

// Reply sends resp and reports whether anybody was waiting for it.
func (r Replier) Reply(ctx actor.Context, resp domain.ActorResponse) bool {
	if r.to == nil {
		return false
	}
	ctx.Send(r.to, resp)
	return true
}
