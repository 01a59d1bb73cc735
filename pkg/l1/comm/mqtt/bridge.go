package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	fx "github.com/robotalks/arduinode/pkg/framework"
	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l1"
	"github.com/robotalks/arduinode/pkg/l1/comm"
	"github.com/robotalks/arduinode/pkg/l1/msgs"
)

// Publisher publishes a payload to a topic relative to the queue prefix.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
}

// Bridge exposes a device on a message bus.
//
// Requests received on <id>/cmd are executed through a CommandQueue and
// answered on <id>/reply. Device events are published to
// <id>/event/<type> and the device status is retained on <id>/meta.
type Bridge struct {
	Info      l1.DeviceInfo
	Port      string
	Publisher Publisher
	Commands  *comm.CommandQueue

	rw     comm.PacketReadWriter
	server *comm.Server
	state  l0.State
	lock   sync.Mutex
}

// NewBridge creates a Bridge serving requests from rw on doer.
func NewBridge(info l1.DeviceInfo, pub Publisher, rw comm.PacketReadWriter, doer comm.Doer, capacity int) *Bridge {
	b := &Bridge{
		Info:      info,
		Publisher: pub,
		Commands:  comm.NewCommandQueue(doer, capacity),
		rw:        rw,
	}
	b.server = comm.NewServer(rw, b.Commands)
	return b
}

// HandleEvent implements l0.EventHandler.
func (b *Bridge) HandleEvent(ctx context.Context, ev *l0.Event) {
	data, err := msgs.Encode(msgs.NewEvent(ev, time.Now()))
	if err != nil {
		glog.Errorf("encode event %s: %v", ev.Type, err)
		return
	}
	if err := b.Publisher.Publish(EventTopic(b.Info.ID, ev.Type), data, false); err != nil {
		glog.Warningf("publish event %s: %v", ev.Type, err)
	}
}

// StateChanged implements l0.StateNotifier.
func (b *Bridge) StateChanged(ctx context.Context, state l0.State) {
	b.lock.Lock()
	b.state = state
	b.lock.Unlock()
	if err := b.PublishMeta(); err != nil {
		glog.Warningf("publish meta: %v", err)
	}
}

// Status returns the status published on the meta topic.
func (b *Bridge) Status() l1.Status {
	b.lock.Lock()
	defer b.lock.Unlock()
	return l1.Status{DeviceInfo: b.Info, Port: b.Port, State: b.state.String()}
}

// PublishMeta publishes the retained status.
func (b *Bridge) PublishMeta() error {
	status := b.Status()
	meta, err := json.Marshal(&status)
	if err != nil {
		return err
	}
	return b.Publisher.Publish(DeviceTopic(b.Info.ID, TopicMeta), meta, true)
}

// ClearMeta removes the retained status.
func (b *Bridge) ClearMeta() error {
	return b.Publisher.Publish(DeviceTopic(b.Info.ID, TopicMeta), nil, true)
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if runnable, ok := b.rw.(fx.Runnable); ok {
		g.Go(func() error { return runnable.Run(gctx) })
	}
	g.Go(func() error { return b.Commands.Run(gctx) })
	g.Go(func() error { return b.server.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		if closer, ok := b.rw.(io.Closer); ok {
			closer.Close()
		}
		if err := b.ClearMeta(); err != nil {
			glog.Warningf("clear meta: %v", err)
		}
		return nil
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// BrokerBridge runs a Bridge on an MQTT broker.
type BrokerBridge struct {
	*Bridge
	Queue *Queue
}

// NewBrokerBridge creates a BrokerBridge.
// The will clears the retained status if the bridge dies.
func NewBrokerBridge(brokerURL string, info l1.DeviceInfo, doer comm.Doer, capacity int) (*BrokerBridge, error) {
	ep, err := ParseEndpoint(brokerURL)
	if err != nil {
		return nil, err
	}
	q := NewQueue(*ep, info.ID)
	b := &BrokerBridge{
		Bridge: NewBridge(info, q, NewPacketReadWriter(q).ForBridge(info.ID), doer, capacity),
		Queue:  q,
	}
	q.OnConnect = func(*Queue) {
		if err := b.PublishMeta(); err != nil {
			glog.Warningf("publish meta: %v", err)
		}
	}
	return b, nil
}

// Run implements Runnable.
func (b *BrokerBridge) Run(ctx context.Context) error {
	if err := b.Queue.Connect(ctx); err != nil {
		return err
	}
	defer b.Queue.Close()
	return b.Bridge.Run(ctx)
}
