package comm

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
)

var (
	// ErrQueueFull indicates the queue reached its capacity.
	ErrQueueFull = errors.New("command queue full")
	// ErrQueueClosed indicates the queue is no longer running.
	ErrQueueClosed = errors.New("command queue closed")
)

// DefaultQueueCapacity is the capacity used when none is given.
const DefaultQueueCapacity = 16

// DoneFunc receives the outcome of a queued command.
type DoneFunc func(*l0.Reply, error)

// CommandQueue executes commands one at a time in submission order.
// The device accepts a single command in flight, the queue lets many
// producers share it.
type CommandQueue struct {
	Doer Doer

	cmdCh  chan *queuedCommand
	closed bool
	lock   sync.Mutex
}

type queuedCommand struct {
	ctx  context.Context
	text string
	done DoneFunc
}

// NewCommandQueue creates a CommandQueue.
func NewCommandQueue(doer Doer, capacity int) *CommandQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &CommandQueue{Doer: doer, cmdCh: make(chan *queuedCommand, capacity)}
}

// Len returns the number of commands waiting.
func (q *CommandQueue) Len() int {
	return len(q.cmdCh)
}

// Cap returns the capacity.
func (q *CommandQueue) Cap() int {
	return cap(q.cmdCh)
}

// Enqueue queues a command without blocking. done is called exactly once
// from the worker, unless an error is returned.
func (q *CommandQueue) Enqueue(ctx context.Context, text string, done DoneFunc) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.cmdCh <- &queuedCommand{ctx: ctx, text: text, done: done}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit queues a command and waits for its outcome or for ctx to be done.
// A command abandoned this way is skipped by the worker if it is still
// waiting, as its ctx is done too.
func (q *CommandQueue) Submit(ctx context.Context, text string) (*l0.Reply, error) {
	type result struct {
		reply *l0.Reply
		err   error
	}
	resultCh := make(chan result, 1)
	err := q.Enqueue(ctx, text, func(reply *l0.Reply, err error) {
		resultCh <- result{reply: reply, err: err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-resultCh:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run implements Runnable. Commands left when ctx is done fail with
// ErrQueueClosed.
func (q *CommandQueue) Run(ctx context.Context) error {
	defer q.drain()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-q.cmdCh:
			if err := cmd.ctx.Err(); err != nil {
				cmd.done(nil, err)
				continue
			}
			glog.V(3).Infof("dequeued %q, %d waiting", cmd.text, q.Len())
			cmd.done(q.Doer.Do(cmd.ctx, cmd.text))
		}
	}
}

func (q *CommandQueue) drain() {
	q.lock.Lock()
	q.closed = true
	q.lock.Unlock()
	for {
		select {
		case cmd := <-q.cmdCh:
			cmd.done(nil, ErrQueueClosed)
		default:
			return
		}
	}
}
