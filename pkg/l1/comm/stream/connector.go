package stream

import (
	"context"
	"net"

	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l1"
	"github.com/robotalks/arduinode/pkg/l1/comm"
)

// Connector implements l1.Connector for a single Host.
// The device ID is the address of the Host.
type Connector struct {
	Addr string
	net.Dialer
}

// NewConnector creates a Connector.
func NewConnector(addr string) *Connector {
	return &Connector{Addr: addr}
}

// Discover implements Connector. It reports the Host if it's reachable.
func (c *Connector) Discover(ctx context.Context) ([]l1.Status, error) {
	conn, err := c.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, nil
	}
	conn.Close()
	return []l1.Status{{
		DeviceInfo: l1.DeviceInfo{ID: c.Addr},
		Port:       c.Addr,
		State:      l0.StateIdle.String(),
	}}, nil
}

// Connect implements Connector. The id is ignored when empty.
func (c *Connector) Connect(ctx context.Context, id string, events l0.EventHandler) (l1.Device, error) {
	addr := c.Addr
	if id != "" {
		addr = id
	}
	conn, err := c.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	rw := New(conn)
	dev := &RemoteDevice{Remote: comm.NewRemote(rw), rw: rw}
	dev.Remote.Events = events
	runCtx, cancel := context.WithCancel(context.Background())
	dev.cancel = cancel
	go dev.Remote.Run(runCtx)
	return dev, nil
}

// RemoteDevice implements l1.Device over a direct connection.
type RemoteDevice struct {
	*comm.Remote

	rw     *ReadWriter
	cancel context.CancelFunc
}

// Close implements io.Closer.
func (d *RemoteDevice) Close() error {
	d.cancel()
	return d.rw.Close()
}
