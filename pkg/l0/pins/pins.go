// Package pins provides typed pin operations on top of the line protocol.
package pins

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/robotalks/arduinode/pkg/l0/comm"
)

// ErrInvalidArgument indicates an argument is rejected before sending.
var ErrInvalidArgument = errors.New("invalid argument")

// Doer executes one command and waits for its reply.
// *comm.Client implements it.
type Doer interface {
	Do(ctx context.Context, text string) (*comm.Reply, error)
}

// AllPorts selects every port when turning streams off.
const AllPorts = -1

// Level is a digital level.
type Level int

// Levels
const (
	Low  Level = 0
	High Level = 1
)

// String implements fmt.Stringer.
func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// Mode is the mode of a digital pin.
type Mode string

// Modes
const (
	Input       Mode = "INPUT"
	Output      Mode = "OUTPUT"
	InputPullup Mode = "INPUT_PULLUP"
)

// Reference is the analog reference voltage source.
type Reference string

// References
const (
	RefDefault  Reference = "DEFAULT"
	RefInternal Reference = "INTERNAL"
	RefExternal Reference = "EXTERNAL"
)

// Trigger is the condition raising an external interrupt.
type Trigger string

// Triggers
const (
	TriggerLow     Trigger = "LOW"
	TriggerChange  Trigger = "CHANGE"
	TriggerRising  Trigger = "RISING"
	TriggerFalling Trigger = "FALLING"
)

// MaxAnalogValue is the largest PWM duty accepted by AnalogWrite.
const MaxAnalogValue = 255

// Pins wraps a Doer with typed operations.
type Pins struct {
	Doer Doer
}

// New creates Pins.
func New(doer Doer) *Pins {
	return &Pins{Doer: doer}
}

// AnalogRead reads the AD value of a port.
func (p *Pins) AnalogRead(ctx context.Context, port int) (int, error) {
	if err := checkPort(port); err != nil {
		return 0, err
	}
	reply, err := p.Doer.Do(ctx, "a/read/"+strconv.Itoa(port))
	if err != nil {
		return 0, err
	}
	return reply.Int("val")
}

// AnalogWrite outputs a PWM duty on a port.
func (p *Pins) AnalogWrite(ctx context.Context, port, val int) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if val < 0 || val > MaxAnalogValue {
		return fmt.Errorf("%w: value %d out of [0, %d]", ErrInvalidArgument, val, MaxAnalogValue)
	}
	return p.exec(ctx, fmt.Sprintf("a/write/%d?val=%d", port, val))
}

// AnalogReference selects the analog reference.
func (p *Pins) AnalogReference(ctx context.Context, ref Reference) error {
	switch ref {
	case RefDefault, RefInternal, RefExternal:
	default:
		return fmt.Errorf("%w: reference %q", ErrInvalidArgument, ref)
	}
	return p.exec(ctx, "a/ref?type="+string(ref))
}

// DigitalRead reads the level of a port.
func (p *Pins) DigitalRead(ctx context.Context, port int) (Level, error) {
	if err := checkPort(port); err != nil {
		return Low, err
	}
	reply, err := p.Doer.Do(ctx, "d/read/"+strconv.Itoa(port))
	if err != nil {
		return Low, err
	}
	val, err := reply.Int("val")
	if err != nil {
		return Low, err
	}
	if val == 0 {
		return Low, nil
	}
	return High, nil
}

// DigitalWrite sets the level of a port.
func (p *Pins) DigitalWrite(ctx context.Context, port int, level Level) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if level != Low && level != High {
		return fmt.Errorf("%w: level %d", ErrInvalidArgument, int(level))
	}
	return p.exec(ctx, fmt.Sprintf("d/write/%d?val=%d", port, int(level)))
}

// PinMode configures a digital port.
func (p *Pins) PinMode(ctx context.Context, port int, mode Mode) error {
	if err := checkPort(port); err != nil {
		return err
	}
	switch mode {
	case Input, Output, InputPullup:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidArgument, mode)
	}
	return p.exec(ctx, fmt.Sprintf("d/mode/%d?type=%s", port, mode))
}

// DigitalStreamOn makes the peer report the port as "di" events every interval.
func (p *Pins) DigitalStreamOn(ctx context.Context, port int, interval time.Duration) error {
	return p.streamOn(ctx, EventDigital, port, interval)
}

// DigitalStreamOff stops "di" events of a port, or of AllPorts.
func (p *Pins) DigitalStreamOff(ctx context.Context, port int) error {
	return p.streamOff(ctx, EventDigital, port)
}

// AnalogStreamOn makes the peer report the port as "ai" events every interval.
func (p *Pins) AnalogStreamOn(ctx context.Context, port int, interval time.Duration) error {
	return p.streamOn(ctx, EventAnalog, port, interval)
}

// AnalogStreamOff stops "ai" events of a port, or of AllPorts.
func (p *Pins) AnalogStreamOff(ctx context.Context, port int) error {
	return p.streamOff(ctx, EventAnalog, port)
}

// AttachInterrupt enables an external interrupt reported as "int" events.
func (p *Pins) AttachInterrupt(ctx context.Context, num int, trigger Trigger) error {
	if num < 0 {
		return fmt.Errorf("%w: interrupt %d", ErrInvalidArgument, num)
	}
	switch trigger {
	case TriggerLow, TriggerChange, TriggerRising, TriggerFalling:
	default:
		return fmt.Errorf("%w: trigger %q", ErrInvalidArgument, trigger)
	}
	return p.exec(ctx, fmt.Sprintf("d/int/on/%d?type=%s", num, trigger))
}

// DetachInterrupt disables an external interrupt.
func (p *Pins) DetachInterrupt(ctx context.Context, num int) error {
	if num < 0 {
		return fmt.Errorf("%w: interrupt %d", ErrInvalidArgument, num)
	}
	return p.exec(ctx, "d/int/off/"+strconv.Itoa(num))
}

// Reset asks the peer to reset. A peer that reboots answers with the
// handshake instead of a reply, which counts as success.
func (p *Pins) Reset(ctx context.Context) error {
	err := p.exec(ctx, comm.DefaultResetCommand)
	if errors.Is(err, comm.ErrPeerReset) {
		return nil
	}
	return err
}

func (p *Pins) streamOn(ctx context.Context, typ string, port int, interval time.Duration) error {
	if err := checkPort(port); err != nil {
		return err
	}
	ms := interval.Milliseconds()
	if ms <= 0 {
		return fmt.Errorf("%w: interval %v", ErrInvalidArgument, interval)
	}
	return p.exec(ctx, fmt.Sprintf("stream/%s/on/%d?interval=%d", typ, port, ms))
}

func (p *Pins) streamOff(ctx context.Context, typ string, port int) error {
	if port == AllPorts {
		return p.exec(ctx, "stream/"+typ+"/off/all")
	}
	if err := checkPort(port); err != nil {
		return err
	}
	return p.exec(ctx, fmt.Sprintf("stream/%s/off/%d", typ, port))
}

func (p *Pins) exec(ctx context.Context, text string) error {
	_, err := p.Doer.Do(ctx, text)
	return err
}

func checkPort(port int) error {
	if port < 0 {
		return fmt.Errorf("%w: port %d", ErrInvalidArgument, port)
	}
	return nil
}
