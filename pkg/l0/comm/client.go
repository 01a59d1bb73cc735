package comm

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Transport is the byte channel to the peer.
type Transport interface {
	io.ReadWriteCloser
}

// Opener opens a Transport.
type Opener interface {
	Open(context.Context) (Transport, error)
}

// OpenFunc is func type of Opener.
type OpenFunc func(context.Context) (Transport, error)

// Open implements Opener.
func (f OpenFunc) Open(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// EventHandler is called when an event is received.
// It runs on the goroutine reading the transport, so it must not wait for
// a reply of the same Client (e.g. calling Do), which would never be read.
type EventHandler interface {
	HandleEvent(context.Context, *Event)
}

// HandleEventFunc is func type of EventHandler.
type HandleEventFunc func(context.Context, *Event)

// HandleEvent implements EventHandler.
func (f HandleEventFunc) HandleEvent(ctx context.Context, ev *Event) {
	f(ctx, ev)
}

// StateNotifier is called when the client enters AwaitingHandshake,
// Idle (after a handshake) or Closed.
type StateNotifier interface {
	StateChanged(context.Context, State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state State) {
	f(ctx, state)
}

// State is the lifecycle state of a Client.
type State int

// States
const (
	StateUninitialized State = iota
	StateAwaitingHandshake
	StateIdle
	StateBusy
	StateClosed
)

// IsReady indicates the handshake has been received and the client is not closed.
func (s State) IsReady() bool {
	return s == StateIdle || s == StateBusy
}

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingHandshake:
		return "awaiting-handshake"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result is the result of a command.
type Result struct {
	Reply *Reply
	Err   error
}

// Command represents a command waiting for reply.
type Command struct {
	text     string
	sentAt   time.Time
	resultCh chan Result
}

// Text returns the command as sent, without the line terminator.
func (c *Command) Text() string {
	return c.text
}

// SentAt returns the time the command was written.
func (c *Command) SentAt() time.Time {
	return c.sentAt
}

// ResultChan returns the chan to retrieve result.
// Exactly one Result is delivered.
func (c *Command) ResultChan() <-chan Result {
	return c.resultCh
}

func (c *Command) resolve(r Result) {
	c.resultCh <- r
}

// Subscription is a registered EventHandler.
type Subscription struct {
	client  *Client
	elm     *list.Element
	handler EventHandler
}

// Close unsubscribes the handler.
func (s *Subscription) Close() error {
	s.client.lock.Lock()
	defer s.client.lock.Unlock()
	if s.elm != nil {
		s.client.subs.Remove(s.elm)
		s.elm = nil
	}
	return nil
}

// Client drives a peer over a Transport.
//
// Only one command may be in flight: Send fails with ErrBusy until the
// reply of the previous command arrives. Events are delivered to
// subscribers regardless of commands.
type Client struct {
	Opener   Opener
	Config   Config
	Notifier StateNotifier

	transport Transport
	state     State
	pending   *Command
	stale     int
	subs      list.List
	parser    Parser
	err       error
	readyCh   chan struct{}
	doneCh    chan struct{}
	lock      sync.Mutex
}

// NewClient creates a client which opens its transport with opener.
func NewClient(opener Opener, conf Config) *Client {
	return &Client{
		Opener:  opener,
		Config:  conf.withDefaults(),
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// State gets the state.
func (c *Client) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Ready is closed when the first handshake is received.
func (c *Client) Ready() <-chan struct{} {
	return c.readyCh
}

// Done is closed when the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.doneCh
}

// Err returns the reason the client was closed, nil while open.
func (c *Client) Err() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.err
}

// WaitReady blocks until the handshake is received.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-c.doneCh:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers an EventHandler.
// Handlers are called in order on the goroutine running Run.
func (c *Client) Subscribe(h EventHandler) *Subscription {
	sub := &Subscription{client: c, handler: h}
	c.lock.Lock()
	sub.elm = c.subs.PushBack(sub)
	c.lock.Unlock()
	return sub
}

// Open opens the transport and starts waiting for the handshake.
// Run calls Open if it hasn't been called.
func (c *Client) Open(ctx context.Context) error {
	c.lock.Lock()
	if c.state != StateUninitialized {
		state := c.state
		c.lock.Unlock()
		if state == StateClosed {
			return ErrClosed
		}
		return fmt.Errorf("%w: already open", ErrIllegalState)
	}
	c.lock.Unlock()

	t, err := c.Opener.Open(ctx)
	if err != nil {
		return err
	}

	c.lock.Lock()
	if c.state != StateUninitialized {
		c.lock.Unlock()
		t.Close()
		return ErrClosed
	}
	c.transport, c.state = t, StateAwaitingHandshake
	c.lock.Unlock()
	glog.V(1).Info("transport opened, waiting for handshake")
	c.notify(ctx, StateAwaitingHandshake)
	return nil
}

// Send writes a command and returns immediately.
//
// Validation and state errors are returned directly and nothing is
// written. Otherwise the outcome (reply, device error or transport error)
// is delivered through the ResultChan of the returned Command.
func (c *Client) Send(text string) (*Command, error) {
	text, err := c.Config.validate(text)
	if err != nil {
		return nil, err
	}

	c.lock.Lock()
	switch c.state {
	case StateIdle:
	case StateBusy:
		c.lock.Unlock()
		return nil, ErrBusy
	case StateClosed:
		c.lock.Unlock()
		return nil, ErrClosed
	default:
		c.lock.Unlock()
		return nil, ErrNotReady
	}
	cmd := &Command{text: text, sentAt: time.Now(), resultCh: make(chan Result, 1)}
	c.pending, c.state = cmd, StateBusy
	glog.V(2).Infof("TX %q", text)
	if err = c.writeLine(text); err != nil {
		err = fmt.Errorf("transport: send %q: %w", text, err)
		t := c.transport
		c.transport = nil
		c.shutdown(err)
		c.lock.Unlock()
		glog.Errorf("connection closed: %v", err)
		t.Close()
		c.notify(context.Background(), StateClosed)
		return cmd, nil
	}
	c.lock.Unlock()
	return cmd, nil
}

// Do sends a command and waits for the result.
//
// If ctx expires (or Config.CommandTimeout elapses) first, the command is
// abandoned, an error wrapping ErrNoReply is returned and the client is
// ready for the next command. The reply still owed for an abandoned command
// is dropped when it arrives, even if another command is pending by then:
// replies are matched by order, so one reply is skipped per abandoned
// command until the peer sends the handshake again or the client closes.
func (c *Client) Do(ctx context.Context, text string) (*Reply, error) {
	cmd, err := c.Send(text)
	if err != nil {
		return nil, err
	}
	if timeout := c.Config.CommandTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case r := <-cmd.ResultChan():
		return r.Reply, r.Err
	case <-ctx.Done():
		c.abandon(cmd, fmt.Errorf("%w: %w", ErrNoReply, ctx.Err()))
	}
	r := <-cmd.ResultChan()
	return r.Reply, r.Err
}

// Close sends the reset command to the peer without waiting for its
// reply, and closes the transport.
func (c *Client) Close() error {
	c.lock.Lock()
	if c.state == StateClosed {
		c.lock.Unlock()
		return nil
	}
	t := c.transport
	if t != nil && c.Config.ResetCommand != "" {
		glog.V(2).Infof("TX %q", c.Config.ResetCommand)
		if err := c.writeLine(c.Config.ResetCommand); err != nil {
			glog.Warningf("send %q: %v", c.Config.ResetCommand, err)
		}
	}
	c.transport = nil
	c.shutdown(ErrClosed)
	c.lock.Unlock()
	c.notify(context.Background(), StateClosed)
	if t != nil {
		return t.Close()
	}
	return nil
}

// Run reads from the transport until the client is closed or ctx is done.
// It returns the reason the connection ended.
func (c *Client) Run(ctx context.Context) error {
	if c.State() == StateUninitialized {
		if err := c.Open(ctx); err != nil {
			return err
		}
	}
	c.lock.Lock()
	t := c.transport
	c.lock.Unlock()
	if t == nil {
		return c.closedErr()
	}

	chunkCh, errCh := make(chan []byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.readLoop(subCtx, t, chunkCh, errCh)
	for {
		select {
		case chunk := <-chunkCh:
			for _, line := range c.parser.Feed(chunk) {
				if err := c.handleLine(ctx, line); err != nil {
					c.fail(ctx, err)
					return err
				}
			}
		case err := <-errCh:
			if c.State() == StateClosed {
				return c.closedErr()
			}
			err = fmt.Errorf("transport: %w", err)
			c.fail(ctx, err)
			return err
		case <-c.doneCh:
			return c.closedErr()
		case <-ctx.Done():
			c.fail(ctx, ctx.Err())
			return ctx.Err()
		}
	}
}

func (c *Client) readLoop(ctx context.Context, t Transport, chunkCh chan []byte, errCh chan error) {
	buf := make([]byte, c.Config.ReadBufferSize)
	for {
		n, err := t.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunkCh <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Client) handleLine(ctx context.Context, line string) error {
	glog.V(2).Infof("RX %q", line)
	msg := Classify(line, c.Config.Handshake)
	switch msg.Kind {
	case KindHandshake:
		c.handleHandshake(ctx)
	case KindEvent:
		if !c.ready(line) {
			return nil
		}
		c.dispatch(ctx, msg.Event)
	case KindReply:
		if !c.ready(line) {
			return nil
		}
		c.handleReply(msg.Reply)
	default:
		if !c.ready(line) {
			return nil
		}
		return &ProtocolError{Line: line, Err: msg.Err}
	}
	return nil
}

// ready tells if the handshake was received. Anything before the
// handshake is boot noise and dropped.
func (c *Client) ready(line string) bool {
	if c.State() == StateAwaitingHandshake {
		glog.Warningf("dropped before handshake: %q", line)
		return false
	}
	return true
}

func (c *Client) handleHandshake(ctx context.Context) {
	c.lock.Lock()
	switch c.state {
	case StateAwaitingHandshake:
		c.state = StateIdle
		close(c.readyCh)
		c.lock.Unlock()
		glog.V(1).Info("handshake received")
		c.notify(ctx, StateIdle)
		return
	case StateBusy:
		cmd := c.pending
		c.pending, c.state = nil, StateIdle
		cmd.resolve(Result{Err: fmt.Errorf("%w: %q", ErrPeerReset, cmd.text)})
	case StateClosed:
		c.lock.Unlock()
		return
	}
	c.stale = 0
	c.lock.Unlock()
	glog.Warning("handshake received again, peer was reset")
	c.notify(ctx, StateIdle)
}

func (c *Client) handleReply(reply *Reply) {
	c.lock.Lock()
	if c.stale > 0 {
		c.stale--
		c.lock.Unlock()
		glog.Warningf("dropped reply of abandoned command: %s", reply.Raw)
		return
	}
	cmd := c.pending
	if cmd == nil {
		c.lock.Unlock()
		glog.Warningf("dropped reply without pending command: %s", reply.Raw)
		return
	}
	c.pending, c.state = nil, StateIdle
	c.lock.Unlock()
	glog.V(3).Infof("%q replied in %v", cmd.text, time.Since(cmd.sentAt))
	cmd.resolve(Result{Reply: reply, Err: reply.Err()})
}

func (c *Client) dispatch(ctx context.Context, ev *Event) {
	c.lock.Lock()
	handlers := make([]EventHandler, 0, c.subs.Len())
	for elm := c.subs.Front(); elm != nil; elm = elm.Next() {
		handlers = append(handlers, elm.Value.(*Subscription).handler)
	}
	c.lock.Unlock()
	for _, h := range handlers {
		h.HandleEvent(ctx, ev)
	}
}

func (c *Client) abandon(cmd *Command, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.pending != cmd {
		return
	}
	glog.Warningf("%q abandoned: %v", cmd.text, err)
	c.pending, c.state = nil, StateIdle
	c.stale++
	cmd.resolve(Result{Err: err})
}

func (c *Client) fail(ctx context.Context, err error) {
	c.lock.Lock()
	t := c.transport
	c.transport = nil
	closed := c.shutdown(err)
	c.lock.Unlock()
	if !closed {
		return
	}
	glog.Errorf("connection closed: %v", err)
	if t != nil {
		t.Close()
	}
	c.notify(ctx, StateClosed)
}

// shutdown must be called with lock held. It returns false if the client
// was already closed.
func (c *Client) shutdown(err error) bool {
	if c.state == StateClosed {
		return false
	}
	c.state, c.err, c.stale = StateClosed, err, 0
	if cmd := c.pending; cmd != nil {
		c.pending = nil
		cmd.resolve(Result{Err: err})
	}
	close(c.doneCh)
	return true
}

// closedErr returns the reason the client was closed, nil if closed by Close.
func (c *Client) closedErr() error {
	if err := c.Err(); !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// writeLine must be called with lock held.
func (c *Client) writeLine(text string) error {
	line := text + "\n"
	n, err := c.transport.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return fmt.Errorf("%w: %d of %d", ErrShortWrite, n, len(line))
	}
	return nil
}

func (c *Client) notify(ctx context.Context, state State) {
	if n := c.Notifier; n != nil {
		n.StateChanged(ctx, state)
	}
}
