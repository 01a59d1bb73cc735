package transport

import (
	"context"
	"fmt"
	"net/url"

	"github.com/golang/glog"
	"github.com/robotalks/arduinode/pkg/l0/comm"
	"golang.org/x/net/websocket"
)

// WebSocket opens a serial line bridged over a websocket.
// Each frame carries a chunk of the byte stream.
type WebSocket struct {
	URL    string
	Origin string
}

// Open implements comm.Opener.
func (w *WebSocket) Open(ctx context.Context) (comm.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conf, err := websocket.NewConfig(w.URL, w.origin())
	if err != nil {
		return nil, fmt.Errorf("websocket %s: %w", w.URL, err)
	}
	conn, err := websocket.DialConfig(conf)
	if err != nil {
		return nil, fmt.Errorf("websocket %s: %w", w.URL, err)
	}
	conn.PayloadType = websocket.BinaryFrame
	glog.V(1).Infof("connected %s", w.URL)
	return (*wsConn)(conn), nil
}

func (w *WebSocket) origin() string {
	if w.Origin != "" {
		return w.Origin
	}
	u, err := url.Parse(w.URL)
	if err != nil {
		return "http://localhost/"
	}
	scheme := "http"
	if u.Scheme == SchemeWSS {
		scheme = "https"
	}
	return scheme + "://" + u.Host + "/"
}

// String implements fmt.Stringer.
func (w *WebSocket) String() string {
	return w.URL
}

// wsConn sends each Write as one message and reads messages as a stream.
type wsConn websocket.Conn

func (c *wsConn) Read(p []byte) (int, error) {
	return (*websocket.Conn)(c).Read(p)
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := websocket.Message.Send((*websocket.Conn)(c), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return (*websocket.Conn)(c).Close()
}
