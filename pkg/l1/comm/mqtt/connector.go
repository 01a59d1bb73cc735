package mqtt

import (
	"context"
	"encoding/json"
	"time"

	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l1"
	"github.com/robotalks/arduinode/pkg/l1/comm"
)

// Connector implements l1.Connector using MQTT.
type Connector struct {
	DiscoverTimeout time.Duration
	Endpoint        Endpoint
}

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	ep, err := ParseEndpoint(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{DiscoverTimeout: DefaultDiscoverTimeout, Endpoint: *ep}, nil
}

// ParseStatus decodes a retained meta payload received on topic.
// It returns nil for the empty payload of an offline bridge.
func ParseStatus(topic string, payload []byte) (*l1.Status, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var status l1.Status
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, err
	}
	if status.ID == "" {
		status.ID = MetaDevice(topic)
	}
	return &status, nil
}

// Discover implements Connector.
func (c *Connector) Discover(ctx context.Context) (res []l1.Status, err error) {
	q := NewQueue(c.Endpoint, "")
	resCh := make(chan l1.Status, 1)
	q.WatchMeta(func(_ string, status *l1.Status) {
		if status != nil {
			select {
			case resCh <- *status:
			case <-time.After(time.Second):
			}
		}
	})
	if err = q.Connect(ctx); err != nil {
		return nil, err
	}
	defer q.Close()

	dur := c.DiscoverTimeout
	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	for {
		select {
		case status := <-resCh:
			res = append(res, status)
		case <-timeout:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Connect implements Connector.
func (c *Connector) Connect(ctx context.Context, id string, events l0.EventHandler) (l1.Device, error) {
	q := NewQueue(c.Endpoint, "")
	rw := NewPacketReadWriter(q).ForRemote(id)
	rw.Subscribe()
	dev := &RemoteDevice{Remote: comm.NewRemote(rw), Queue: q}
	dev.Remote.Events = events
	if err := q.Connect(ctx); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	dev.cancel = cancel
	go rw.Run(runCtx)
	go dev.Remote.Run(runCtx)
	return dev, nil
}

// RemoteDevice implements l1.Device using MQTT.
type RemoteDevice struct {
	*comm.Remote
	Queue *Queue

	cancel context.CancelFunc
}

// Close implements io.Closer.
func (d *RemoteDevice) Close() error {
	d.cancel()
	return d.Queue.Close()
}
