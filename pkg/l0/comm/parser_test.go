package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParser(t *testing.T) {
	testCases := []struct {
		name     string
		chunks   []string
		lines    []string
		buffered int
	}{
		{
			name:   "single line",
			chunks: []string{"READY\n"},
			lines:  []string{"READY"},
		},
		{
			name:   "crlf",
			chunks: []string{"READY\r\n", "{\"msg\":\"OK\",\"port\":0,\"val\":1}\r\n"},
			lines:  []string{"READY", `{"msg":"OK","port":0,"val":1}`},
		},
		{
			name:   "split across chunks",
			chunks: []string{"{\"msg\":", "\"OK\"", "}\r", "\n"},
			lines:  []string{`{"msg":"OK"}`},
		},
		{
			name:   "multiple lines in one chunk",
			chunks: []string{"a\r\nb\nc\r\n"},
			lines:  []string{"a", "b", "c"},
		},
		{
			name:   "stray cr dropped",
			chunks: []string{"a\rb\n"},
			lines:  []string{"ab"},
		},
		{
			name:   "empty line",
			chunks: []string{"\r\n"},
			lines:  []string{""},
		},
		{
			name:     "incomplete tail",
			chunks:   []string{"READY\r\n{\"ev"},
			lines:    []string{"READY"},
			buffered: 4,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var p Parser
			var lines []string
			for _, chunk := range tc.chunks {
				lines = append(lines, p.Feed([]byte(chunk))...)
			}
			require.Equal(t, tc.lines, lines)
			require.Equal(t, tc.buffered, p.Buffered())
		})
	}
}

func TestParserByteByByte(t *testing.T) {
	var p Parser
	var lines []string
	for _, b := range []byte("READY\r\n{\"msg\":\"OK\"}\r\n") {
		if line, ok := p.Parse(b); ok {
			lines = append(lines, line)
		}
	}
	require.Equal(t, []string{"READY", `{"msg":"OK"}`}, lines)
}

func TestParserReset(t *testing.T) {
	var p Parser
	require.Empty(t, p.Feed([]byte("garbage")))
	require.Equal(t, 7, p.Buffered())
	p.Reset()
	require.Zero(t, p.Buffered())
	require.Equal(t, []string{"READY"}, p.Feed([]byte("READY\n")))
}
