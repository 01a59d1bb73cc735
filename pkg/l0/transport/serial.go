package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/robotalks/arduinode/pkg/l0/comm"
	"go.bug.st/serial"
)

// Serial line defaults of the firmware.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

// Serial opens a serial port.
type Serial struct {
	Name string
	Mode serial.Mode
	// ReadTimeout bounds each Read so the reader can observe cancellation.
	ReadTimeout time.Duration
}

// NewSerial creates a Serial with 8N1 and no flow control.
func NewSerial(name string, baud int) *Serial {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &Serial{
		Name: name,
		Mode: serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		ReadTimeout: DefaultReadTimeout,
	}
}

// Open implements comm.Opener.
func (s *Serial) Open(ctx context.Context) (comm.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := s.Mode
	port, err := serial.Open(s.Name, &mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Name, err)
	}
	if s.ReadTimeout > 0 {
		if err := port.SetReadTimeout(s.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout %s: %w", s.Name, err)
		}
	}
	glog.V(1).Infof("opened %s at %d baud", s.Name, mode.BaudRate)
	return port, nil
}

// String implements fmt.Stringer.
func (s *Serial) String() string {
	return fmt.Sprintf("serial://%s?baud=%d", s.Name, s.Mode.BaudRate)
}
