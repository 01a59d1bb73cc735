package stream

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	fx "github.com/robotalks/arduinode/pkg/framework"
	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l1/comm"
	"github.com/robotalks/arduinode/pkg/l1/msgs"
)

// Host serves a device to clients connecting directly over TCP,
// without a broker. Every connected client receives all device events.
type Host struct {
	Addr     string
	Commands *comm.CommandQueue

	conns map[*ReadWriter]struct{}
	lock  sync.Mutex
}

// NewHost creates a Host.
func NewHost(addr string, doer comm.Doer, capacity int) *Host {
	return &Host{
		Addr:     addr,
		Commands: comm.NewCommandQueue(doer, capacity),
		conns:    make(map[*ReadWriter]struct{}),
	}
}

// HandleEvent implements l0.EventHandler.
func (h *Host) HandleEvent(ctx context.Context, ev *l0.Event) {
	typed, err := msgs.TypedFrom(msgs.NewEvent(ev, time.Now()))
	if err != nil {
		glog.Errorf("encode event %s: %v", ev.Type, err)
		return
	}
	pkt, err := typed.Encode()
	if err != nil {
		glog.Errorf("encode event %s: %v", ev.Type, err)
		return
	}
	h.lock.Lock()
	conns := make([]*ReadWriter, 0, len(h.conns))
	for rw := range h.conns {
		conns = append(conns, rw)
	}
	h.lock.Unlock()
	for _, rw := range conns {
		if err := rw.WritePacket(pkt); err != nil {
			glog.V(2).Infof("send event: %v", err)
		}
	}
}

// Run implements Runnable.
func (h *Host) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.Addr)
	if err != nil {
		return err
	}
	glog.Infof("serving device on %s", ln.Addr())
	return h.Serve(ctx, ln)
}

// Serve accepts clients from ln until ctx is done.
func (h *Host) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Commands.Run(gctx) })
	g.Go(func() error {
		return fx.RunWithContextCloser(gctx, ln, func() error {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return err
				}
				go h.serveConn(gctx, conn)
			}
		})
	})
	return g.Wait()
}

func (h *Host) serveConn(ctx context.Context, conn net.Conn) {
	glog.Infof("client connected: %s", conn.RemoteAddr())
	rw := New(conn)
	h.lock.Lock()
	h.conns[rw] = struct{}{}
	h.lock.Unlock()
	defer func() {
		h.lock.Lock()
		delete(h.conns, rw)
		h.lock.Unlock()
	}()
	err := fx.RunWithContextCloser(ctx, rw, func() error {
		return comm.NewServer(rw, h.Commands).Run(ctx)
	})
	glog.Infof("client disconnected: %s %v", conn.RemoteAddr(), err)
}
