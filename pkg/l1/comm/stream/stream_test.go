package stream

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
)

type fakeDoer struct{}

func (d *fakeDoer) Do(ctx context.Context, text string) (*l0.Reply, error) {
	line := `{"msg":"OK","val":7}`
	if text != "a/read/0" {
		line = `{"msg":"NG","error":"Unknown command."}`
	}
	msg := l0.Classify(line, l0.DefaultHandshake)
	return msg.Reply, msg.Reply.Err()
}

func TestReadWriter(t *testing.T) {
	var buf bytes.Buffer
	rw := New(&buf)
	require.NoError(t, rw.WritePacket([]byte("hello")))
	require.NoError(t, rw.WritePacket(nil))
	assert.Equal(t, []byte{5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o', 0, 0, 0, 0}, buf.Bytes())

	pkt, err := rw.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pkt))
	pkt, err = rw.ReadPacket()
	require.NoError(t, err)
	assert.Empty(t, pkt)
	_, err = rw.ReadPacket()
	assert.Error(t, err)
}

func TestReadWriterTooLarge(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0x00})
	_, err := New(buf).ReadPacket()
	assert.Error(t, err)
}

func TestHost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host := NewHost("", &fakeDoer{}, 4)
	served := make(chan error, 1)
	go func() {
		served <- host.Serve(ctx, ln)
	}()

	connector := NewConnector(ln.Addr().String())
	statusList, err := connector.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, statusList, 1)
	assert.Equal(t, ln.Addr().String(), statusList[0].ID)

	events := make(chan *l0.Event, 1)
	dev, err := connector.Connect(ctx, "", l0.HandleEventFunc(func(_ context.Context, ev *l0.Event) {
		events <- ev
	}))
	require.NoError(t, err)
	defer dev.Close()

	reply, err := dev.Do(ctx, "a/read/0")
	require.NoError(t, err)
	val, err := reply.Int("val")
	require.NoError(t, err)
	assert.Equal(t, 7, val)

	_, err = dev.Do(ctx, "hoge")
	var cmdErr *l0.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "Unknown command.", cmdErr.Message)

	host.HandleEvent(ctx, &l0.Event{Type: "di", Data: []byte(`{"port":2,"val":1}`)})
	select {
	case ev := <-events:
		assert.Equal(t, "di", ev.Type)
		assert.JSONEq(t, `{"port":2,"val":1}`, string(ev.Data))
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}

	cancel()
	assert.ErrorIs(t, <-served, context.Canceled)
}
