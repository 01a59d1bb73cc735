package comm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	fx "github.com/robotalks/arduinode/pkg/framework"
	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l1/msgs"
)

// DefaultCommandExpiration is the default expiration expecting a result.
const DefaultCommandExpiration = 2 * time.Second

// RemoteError is the failure reported by a bridge without a device reply,
// e.g. the queue was full or the device was disconnected.
type RemoteError struct {
	Message string
}

// Error implements error.
func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

// Remote executes commands on a device behind a bridge.
type Remote struct {
	Expiration time.Duration
	// Events receives device events forwarded on the same pipe.
	Events l0.EventHandler
	// MaxCommandLen bounds commands before they are sent, like
	// l0.Config.MaxCommandLen. Zero leaves the bound to the bridge, which
	// knows the limit of its device.
	MaxCommandLen int

	pipe    Pipe
	pending map[string]chan *msgs.CommandReply
	closed  bool
	lock    sync.Mutex
}

// NewRemote creates a Remote over rw.
func NewRemote(rw PacketReadWriter) *Remote {
	r := &Remote{
		Expiration: DefaultCommandExpiration,
		pending:    make(map[string]chan *msgs.CommandReply),
	}
	r.pipe.ReadWriter = rw
	r.pipe.Handler = msgs.HandleTypedMsgFunc(r.handleTypedMsg)
	return r
}

func (r *Remote) validate(text string) error {
	conf := l0.Config{MaxCommandLen: r.MaxCommandLen}
	if conf.MaxCommandLen <= 0 {
		conf.MaxCommandLen = math.MaxInt
	}
	return conf.Validate(text)
}

// Do implements Doer.
func (r *Remote) Do(ctx context.Context, text string) (*l0.Reply, error) {
	if err := r.validate(text); err != nil {
		return nil, err
	}
	req := msgs.NewCommandRequest(text)
	replyCh := make(chan *msgs.CommandReply, 1)
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return nil, l0.ErrClosed
	}
	r.pending[req.ID] = replyCh
	r.lock.Unlock()
	defer r.forget(req.ID)

	if err := r.pipe.Send(req); err != nil {
		return nil, err
	}
	if r.Expiration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Expiration)
		defer cancel()
	}
	select {
	case m, ok := <-replyCh:
		if !ok {
			return nil, l0.ErrClosed
		}
		return replyResult(m)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", l0.ErrNoReply, ctx.Err())
	}
}

// Run implements Runnable. Pending commands fail with ErrClosed when it returns.
func (r *Remote) Run(ctx context.Context) error {
	defer r.close()
	return r.pipe.Run(ctx)
}

func (r *Remote) handleTypedMsg(ctx context.Context, msg fx.Message, typed *msgs.Typed) error {
	switch m := msg.(type) {
	case *msgs.CommandReply:
		r.lock.Lock()
		replyCh := r.pending[m.ID]
		delete(r.pending, m.ID)
		r.lock.Unlock()
		if replyCh != nil {
			replyCh <- m
		}
	case *msgs.Event:
		if h := r.Events; h != nil {
			h.HandleEvent(ctx, &l0.Event{Type: m.Type, Data: json.RawMessage(m.Data)})
		}
	}
	return nil
}

func (r *Remote) forget(id string) {
	r.lock.Lock()
	delete(r.pending, id)
	r.lock.Unlock()
}

func (r *Remote) close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.closed = true
	for id, replyCh := range r.pending {
		delete(r.pending, id)
		close(replyCh)
	}
}

func replyResult(m *msgs.CommandReply) (*l0.Reply, error) {
	reply, err := m.Reply()
	if err != nil {
		if errors.Is(err, msgs.ErrNoPayload) {
			if m.Ok {
				return nil, nil
			}
			return nil, &RemoteError{Message: m.Error}
		}
		return nil, err
	}
	if m.Ok {
		return reply, nil
	}
	if replyErr := reply.Err(); replyErr != nil {
		return reply, replyErr
	}
	return reply, &RemoteError{Message: m.Error}
}
