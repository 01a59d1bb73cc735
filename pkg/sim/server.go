package sim

import (
	"context"
	"net"

	"github.com/golang/glog"

	fx "github.com/robotalks/arduinode/pkg/framework"
)

// Server exposes a Board over TCP, one host at a time as a serial line does.
type Server struct {
	Board     *Board
	Addr      string
	Handshake string
	BootNoise string
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	glog.Infof("simulated board listening on %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve accepts hosts from ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return fx.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			glog.Infof("host connected: %s", conn.RemoteAddr())
			session := NewSession(s.Board, conn)
			if s.Handshake != "" {
				session.Handshake = s.Handshake
			}
			session.BootNoise = s.BootNoise
			err = session.Run(ctx)
			glog.Infof("host disconnected: %s %v", conn.RemoteAddr(), err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	})
}
