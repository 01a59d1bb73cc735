package sim

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l0/pins"
	"github.com/robotalks/arduinode/pkg/l0/transport"
)

type recordListener struct {
	streams    map[Stream]time.Duration
	interrupts []int
	resets     int
}

func (l *recordListener) StreamChanged(s Stream, interval time.Duration) {
	if l.streams == nil {
		l.streams = make(map[Stream]time.Duration)
	}
	l.streams[s] = interval
}

func (l *recordListener) Interrupted(num int) {
	l.interrupts = append(l.interrupts, num)
}

func (l *recordListener) BoardReset() {
	l.resets++
}

func TestBoardExec(t *testing.T) {
	b := NewBoard()
	b.SetAnalog(0, 982)

	reply, err := b.Exec("a/read/0")
	require.NoError(t, err)
	assert.Equal(t, 982, reply["val"])
	assert.Equal(t, 0, reply["port"])

	_, err = b.Exec("a/write/9?val=128")
	require.NoError(t, err)
	assert.Equal(t, 128, b.Analog(9))

	_, err = b.Exec("a/ref?type=INTERNAL")
	require.NoError(t, err)
	assert.Equal(t, "INTERNAL", b.Reference())

	_, err = b.Exec("d/mode/4?type=INPUT_PULLUP")
	require.NoError(t, err)
	assert.Equal(t, "INPUT_PULLUP", b.Mode(4))
	assert.Equal(t, 1, b.Digital(4))

	_, err = b.Exec("d/write/13?val=1")
	require.NoError(t, err)
	reply, err = b.Exec("d/read/13")
	require.NoError(t, err)
	assert.Equal(t, 1, reply["val"])
}

func TestBoardErrors(t *testing.T) {
	b := NewBoard()
	for _, text := range []string{"hoge", "a/read", "stream/xx/on/1?interval=1", "d/int/on/0?type=UP"} {
		_, err := b.Exec(text)
		assert.Error(t, err, text)
	}
	for _, text := range []string{"a/read/x", "a/read/99", "a/write/1?val=256", "d/write/1?val=2", "d/mode/1?type=HOGE", "stream/ai/on/1?interval=0", "d/int/on/5?type=LOW"} {
		_, err := b.Exec(text)
		assert.True(t, errors.Is(err, ErrBadArgument), text)
	}
}

func TestBoardStreams(t *testing.T) {
	b := NewBoard()
	ln := &recordListener{}
	b.SetListener(ln)

	_, err := b.Exec("stream/ai/on/1?interval=50")
	require.NoError(t, err)
	_, err = b.Exec("stream/di/on/2?interval=100")
	require.NoError(t, err)
	assert.Equal(t, map[Stream]time.Duration{
		{Type: "ai", Port: 1}: 50 * time.Millisecond,
		{Type: "di", Port: 2}: 100 * time.Millisecond,
	}, b.Streams())

	_, err = b.Exec("stream/ai/off/all")
	require.NoError(t, err)
	assert.Len(t, b.Streams(), 1)
	assert.Equal(t, time.Duration(0), ln.streams[Stream{Type: "ai", Port: 1}])

	_, err = b.Exec("system/reset")
	require.NoError(t, err)
	assert.Empty(t, b.Streams())
	assert.Equal(t, 1, ln.resets)
}

func TestBoardInterrupts(t *testing.T) {
	b := NewBoard()
	ln := &recordListener{}
	b.SetListener(ln)

	_, err := b.Exec("d/int/on/0?type=RISING")
	require.NoError(t, err)
	b.SetDigital(2, 1)
	b.SetDigital(2, 0)
	b.SetDigital(3, 1)
	assert.Equal(t, []int{0}, ln.interrupts)

	_, err = b.Exec("d/int/off/0")
	require.NoError(t, err)
	b.SetDigital(2, 1)
	assert.Equal(t, []int{0}, ln.interrupts)
}

func TestServeHost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &Server{Board: NewBoard(), BootNoise: "booting"}
	srv.Board.SetAnalog(0, 512)
	go srv.Serve(ctx, lis)

	opener, err := transport.Parse("tcp://"+lis.Addr().String(), 0)
	require.NoError(t, err)
	client := comm.NewClient(opener, comm.DefaultConfig())
	events := make(chan *comm.Event, 16)
	client.Subscribe(comm.HandleEventFunc(func(_ context.Context, ev *comm.Event) {
		select {
		case events <- ev:
		default:
		}
	}))
	go client.Run(ctx)
	require.NoError(t, client.WaitReady(ctx))

	p := pins.New(client)
	val, err := p.AnalogRead(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 512, val)

	require.NoError(t, p.DigitalWrite(ctx, 13, pins.High))
	assert.Equal(t, 1, srv.Board.Digital(13))

	require.NoError(t, p.AttachInterrupt(ctx, 0, pins.TriggerRising))
	require.NoError(t, p.DigitalWrite(ctx, 2, pins.High))
	ev := <-events
	intr, err := pins.DecodeInterrupt(ev)
	require.NoError(t, err)
	assert.Equal(t, pins.Interrupt{Num: 0, Count: 1}, *intr)

	require.NoError(t, p.AnalogStreamOn(ctx, 0, 10*time.Millisecond))
	ev = <-events
	sample, err := pins.DecodeSample(ev)
	require.NoError(t, err)
	assert.Equal(t, pins.Sample{Port: 0, Val: 512}, *sample)
	require.NoError(t, p.AnalogStreamOff(ctx, pins.AllPorts))

	_, err = client.Do(ctx, "hoge")
	var cmdErr *comm.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, ErrUnknownCommand.Error(), cmdErr.Message)

	require.NoError(t, p.Reset(ctx))
	assert.Equal(t, 0, srv.Board.Digital(13))

	require.NoError(t, client.Close())
}
