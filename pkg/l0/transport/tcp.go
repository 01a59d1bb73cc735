package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/golang/glog"
	"github.com/robotalks/arduinode/pkg/l0/comm"
)

// TCP opens a serial line exposed by a raw TCP bridge (e.g. ser2net).
type TCP struct {
	Addr string
	net.Dialer
}

// Open implements comm.Opener.
func (t *TCP) Open(ctx context.Context) (comm.Transport, error) {
	conn, err := t.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp %s: %w", t.Addr, err)
	}
	glog.V(1).Infof("connected %s", t.Addr)
	return conn, nil
}

// String implements fmt.Stringer.
func (t *TCP) String() string {
	return "tcp://" + t.Addr
}
