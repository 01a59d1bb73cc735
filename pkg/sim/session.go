package sim

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/arduinode/pkg/framework"
	"github.com/robotalks/arduinode/pkg/l0/comm"
)

// Session serves a Board to a host over a connection.
type Session struct {
	Board     *Board
	Handshake string
	BootNoise string

	conn      io.ReadWriteCloser
	ctx       context.Context
	writeLock sync.Mutex
	lock      sync.Mutex
	streams   map[Stream]context.CancelFunc
}

// NewSession creates a Session.
func NewSession(board *Board, conn io.ReadWriteCloser) *Session {
	return &Session{
		Board:     board,
		Handshake: comm.DefaultHandshake,
		conn:      conn,
		streams:   make(map[Stream]context.CancelFunc),
	}
}

// Run implements Runnable. The connection is closed when it returns.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx = ctx
	s.Board.SetListener(s)
	defer s.Board.SetListener(nil)
	defer s.stopStreams()

	if err := s.boot(true); err != nil {
		s.conn.Close()
		return err
	}
	return fx.RunWithContextCloser(ctx, s.conn, s.readLoop)
}

func (s *Session) readLoop() error {
	var parser comm.Parser
	buf := make([]byte, 256)
	for {
		n, err := s.conn.Read(buf)
		for _, line := range parser.Feed(buf[:n]) {
			s.handleLine(line)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (s *Session) handleLine(line string) {
	if line == "" {
		return
	}
	glog.V(2).Infof("RX %q", line)
	reply, err := s.Board.Exec(line)
	if err != nil {
		s.writeJSON(map[string]interface{}{"msg": comm.ReplyNG, "error": err.Error()})
		return
	}
	if reply == nil {
		return
	}
	reply["msg"] = comm.ReplyOK
	s.writeJSON(reply)
}

// boot prints the handshake. Noise is only printed at power on, a host
// treats anything but the handshake after it as a protocol error.
func (s *Session) boot(noise bool) error {
	text := s.Handshake + "\r\n"
	if noise && s.BootNoise != "" {
		text = s.BootNoise + "\r\n" + text
	}
	return s.write([]byte(text))
}

func (s *Session) event(typ string, data interface{}) {
	s.writeJSON(map[string]interface{}{"event": typ, "data": data})
}

func (s *Session) writeJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		glog.Errorf("encode %v: %v", v, err)
		return
	}
	if err := s.write(append(data, '\r', '\n')); err != nil {
		glog.Warningf("write: %v", err)
	}
}

func (s *Session) write(data []byte) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	glog.V(3).Infof("TX %q", data)
	_, err := s.conn.Write(data)
	return err
}

// StreamChanged implements Listener.
func (s *Session) StreamChanged(stream Stream, interval time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if cancel := s.streams[stream]; cancel != nil {
		cancel()
		delete(s.streams, stream)
	}
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.streams[stream] = cancel
	go s.runStream(ctx, stream, interval)
}

func (s *Session) runStream(ctx context.Context, stream Stream, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.event(stream.Type, map[string]int{"port": stream.Port, "val": s.Board.Sample(stream)})
		}
	}
}

// Interrupted implements Listener.
func (s *Session) Interrupted(num int) {
	s.event("int", map[string]int{"num": num, "count": 1})
}

// BoardReset implements Listener.
func (s *Session) BoardReset() {
	s.stopStreams()
	if err := s.boot(false); err != nil {
		glog.Warningf("write: %v", err)
	}
}

func (s *Session) stopStreams() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for stream, cancel := range s.streams {
		cancel()
		delete(s.streams, stream)
	}
}
