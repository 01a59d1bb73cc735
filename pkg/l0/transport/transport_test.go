package transport

import (
	"bufio"
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		target string
		baud   int
		expect string
	}{
		{"/dev/ttyUSB0", 0, "serial:///dev/ttyUSB0?baud=115200"},
		{"/dev/ttyACM0", 9600, "serial:///dev/ttyACM0?baud=9600"},
		{"COM3", 0, "serial://COM3?baud=115200"},
		{"serial:///dev/ttyACM0?baud=57600", 9600, "serial:///dev/ttyACM0?baud=57600"},
		{"serial:///dev/ttyS1", 0, "serial:///dev/ttyS1?baud=115200"},
		{"serial://COM4", 0, "serial://COM4?baud=115200"},
		{"ws://localhost:8080/serial", 0, "ws://localhost:8080/serial"},
		{"wss://bridge.local/serial", 0, "wss://bridge.local/serial"},
		{"tcp://10.0.0.2:2000", 0, "tcp://10.0.0.2:2000"},
	}
	for _, tc := range testCases {
		t.Run(tc.target, func(t *testing.T) {
			opener, err := Parse(tc.target, tc.baud)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, opener.(interface{ String() string }).String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, target := range []string{
		"",
		"udp://localhost:1",
		"serial://",
		"serial:///dev/ttyS0?baud=fast",
		"serial:///dev/ttyS0?baud=-1",
		"tcp://",
		"ws://%zz",
	} {
		_, err := Parse(target, 0)
		assert.Error(t, err, target)
	}
}

func TestSerialDefaults(t *testing.T) {
	s := NewSerial("/dev/ttyUSB0", 0)
	assert.Equal(t, DefaultBaudRate, s.Mode.BaudRate)
	assert.Equal(t, 8, s.Mode.DataBits)
	assert.Equal(t, DefaultReadTimeout, s.ReadTimeout)
}

func TestSerialOpenMissing(t *testing.T) {
	_, err := NewSerial("/dev/arduinode-does-not-exist", 0).Open(context.Background())
	require.Error(t, err)
}

// fakeFirmware answers a/read/<port> with a fixed value.
func fakeFirmware(t *testing.T, r *bufio.Reader, write func(string)) {
	write("boot\r\nREADY\r\n")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "a/read/"):
			write(`{"msg":"OK","port":` + strings.TrimPrefix(line, "a/read/") + `,"val":982}` + "\r\n")
		case line == "system/reset":
			return
		default:
			write(`{"msg":"NG","error":"Unknown command."}` + "\r\n")
		}
	}
}

func roundTrip(t *testing.T, opener comm.Opener) {
	client := comm.NewClient(opener, comm.DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- client.Run(ctx)
	}()
	require.NoError(t, client.WaitReady(ctx))
	reply, err := client.Do(ctx, "a/read/3")
	require.NoError(t, err)
	val, err := reply.Int("val")
	require.NoError(t, err)
	assert.Equal(t, 982, val)
	require.NoError(t, client.Close())
	require.NoError(t, <-runErr)
}

func TestWebSocket(t *testing.T) {
	srv := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		fakeFirmware(t, bufio.NewReader(conn), func(s string) {
			conn.Write([]byte(s))
		})
	}))
	defer srv.Close()

	opener, err := Parse("ws"+strings.TrimPrefix(srv.URL, "http"), 0)
	require.NoError(t, err)
	roundTrip(t, opener)
}

func TestTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fakeFirmware(t, bufio.NewReader(conn), func(s string) {
			conn.Write([]byte(s))
		})
	}()

	opener, err := Parse("tcp://"+ln.Addr().String(), 0)
	require.NoError(t, err)
	roundTrip(t, opener)
}
