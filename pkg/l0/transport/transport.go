// Package transport opens the byte channels a comm.Client talks over.
package transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/robotalks/arduinode/pkg/l0/comm"
	"go.bug.st/serial"
)

// Schemes accepted by Parse.
const (
	SchemeSerial    = "serial"
	SchemeWebSocket = "ws"
	SchemeWSS       = "wss"
	SchemeTCP       = "tcp"
)

// Parse creates an Opener from a target.
//
// A target is either a device path (/dev/ttyUSB0, COM3) or a URL:
//
//	serial:///dev/ttyACM0?baud=9600
//	ws://host:8080/serial
//	tcp://host:2000
//
// baud applies to serial targets without a baud query, zero means DefaultBaudRate.
func Parse(target string, baud int) (comm.Opener, error) {
	if target == "" {
		return nil, fmt.Errorf("transport: empty target")
	}
	if !strings.Contains(target, "://") {
		return NewSerial(target, baud), nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid target %q: %w", target, err)
	}
	switch u.Scheme {
	case SchemeSerial:
		name := u.Path
		if name == "" {
			name = u.Opaque
		}
		if u.Host != "" {
			// serial://COM3
			name = u.Host + name
		}
		if name == "" {
			return nil, fmt.Errorf("transport: missing port in %q", target)
		}
		if s := u.Query().Get("baud"); s != "" {
			if baud, err = strconv.Atoi(s); err != nil || baud <= 0 {
				return nil, fmt.Errorf("transport: invalid baud %q", s)
			}
		}
		return NewSerial(name, baud), nil
	case SchemeWebSocket, SchemeWSS:
		return &WebSocket{URL: target}, nil
	case SchemeTCP:
		if u.Host == "" {
			return nil, fmt.Errorf("transport: missing address in %q", target)
		}
		return &TCP{Addr: u.Host}, nil
	}
	return nil, fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
}

// ListPorts enumerates the serial ports on this host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
