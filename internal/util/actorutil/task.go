package actorutil

import (
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

// Task runs a blocking call away from the actor goroutine. A panic in the
// call or an elapsed timeout is reported as an error.
type Task[T any] struct {
	run     func() (T, error)
	timeout time.Duration
}

func NewTask[T any](fn func() (T, error)) *Task[T] {
	return &Task[T]{
		run: func() (value T, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task panicked: %v", r)
				}
			}()
			return fn()
		},
	}
}

func (t *Task[T]) WithTimeout(timeout time.Duration) *Task[T] {
	t.timeout = timeout
	return t
}

// Await runs the task on the calling goroutine.
func (t *Task[T]) Await() (T, error) {
	task := io.Eval(t.run)
	if t.timeout > 0 {
		task = io.WithTimeout[T](t.timeout)(task)
	}
	result := io.RunSync(task)
	return result.Value, result.Error
}

// PipeTo runs the task on its own goroutine and sends toMessage's result
// to pid once it finishes.
func (t *Task[T]) PipeTo(ctx actor.Context, pid *actor.PID, toMessage func(T, error) any) {
	root := ctx.ActorSystem().Root
	go func() {
		root.Send(pid, toMessage(t.Await()))
	}()
}
