// Package sim simulates a board running the line protocol firmware.
package sim

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Pin modes, references and triggers accepted by the firmware.
var (
	Modes      = []string{"INPUT", "OUTPUT", "INPUT_PULLUP"}
	References = []string{"DEFAULT", "INTERNAL", "EXTERNAL"}
	Triggers   = []string{"LOW", "CHANGE", "RISING", "FALLING"}
)

// Errors reported in NG replies.
var (
	ErrUnknownCommand = errors.New("Unknown command.")
	ErrBadArgument    = errors.New("Bad argument.")
)

// Stream identifies a periodic report.
type Stream struct {
	Type string
	Port int
}

// Listener receives state changes of a Board.
type Listener interface {
	StreamChanged(stream Stream, interval time.Duration)
	Interrupted(num int)
	BoardReset()
}

// Board holds the pin state of a simulated board.
type Board struct {
	// Ports is the number of pins.
	Ports int
	// InterruptPins maps interrupt numbers to pins.
	InterruptPins map[int]int

	lock       sync.Mutex
	analog     map[int]int
	digital    map[int]int
	modes      map[int]string
	reference  string
	interrupts map[int]string
	streams    map[Stream]time.Duration
	listener   Listener
}

// DefaultPorts is the number of pins of a simulated board.
const DefaultPorts = 20

// NewBoard creates a Board with all pins low.
func NewBoard() *Board {
	b := &Board{
		Ports:         DefaultPorts,
		InterruptPins: map[int]int{0: 2, 1: 3},
	}
	b.reset()
	return b
}

func (b *Board) reset() {
	b.analog = make(map[int]int)
	b.digital = make(map[int]int)
	b.modes = make(map[int]string)
	b.reference = References[0]
	b.interrupts = make(map[int]string)
	b.streams = make(map[Stream]time.Duration)
}

// SetListener sets the receiver of state changes.
func (b *Board) SetListener(ln Listener) {
	b.lock.Lock()
	b.listener = ln
	b.lock.Unlock()
}

// Analog gets the analog value of a pin.
func (b *Board) Analog(port int) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.analog[port]
}

// SetAnalog sets the analog input of a pin.
func (b *Board) SetAnalog(port, val int) {
	b.lock.Lock()
	b.analog[port] = val
	b.lock.Unlock()
}

// Digital gets the level of a pin.
func (b *Board) Digital(port int) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.digital[port]
}

// SetDigital sets the digital input of a pin, and raises the interrupt
// attached to the pin when the change matches its trigger.
func (b *Board) SetDigital(port, val int) {
	if val != 0 {
		val = 1
	}
	b.lock.Lock()
	prev := b.digital[port]
	b.digital[port] = val
	var fired []int
	for num, pin := range b.InterruptPins {
		if pin != port {
			continue
		}
		if trigger, ok := b.interrupts[num]; ok && triggered(trigger, prev, val) {
			fired = append(fired, num)
		}
	}
	ln := b.listener
	b.lock.Unlock()
	if ln != nil {
		for _, num := range fired {
			ln.Interrupted(num)
		}
	}
}

// Mode gets the mode of a pin.
func (b *Board) Mode(port int) string {
	b.lock.Lock()
	defer b.lock.Unlock()
	if mode, ok := b.modes[port]; ok {
		return mode
	}
	return Modes[0]
}

// Reference gets the analog reference.
func (b *Board) Reference() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.reference
}

// Streams gets active streams.
func (b *Board) Streams() map[Stream]time.Duration {
	b.lock.Lock()
	defer b.lock.Unlock()
	streams := make(map[Stream]time.Duration, len(b.streams))
	for s, interval := range b.streams {
		streams[s] = interval
	}
	return streams
}

// Sample reads the current value reported by a stream.
func (b *Board) Sample(s Stream) int {
	if s.Type == "ai" {
		return b.Analog(s.Port)
	}
	return b.Digital(s.Port)
}

// Reset clears all state as a reboot does.
func (b *Board) Reset() {
	b.lock.Lock()
	b.reset()
	ln := b.listener
	b.lock.Unlock()
	if ln != nil {
		ln.BoardReset()
	}
}

// Exec executes a command and returns the reply fields.
// A nil reply means the command has no reply.
func (b *Board) Exec(text string) (map[string]interface{}, error) {
	u, err := url.Parse(text)
	if err != nil {
		return nil, ErrUnknownCommand
	}
	query := u.Query()
	path := strings.Split(u.Path, "/")
	switch {
	case len(path) == 3 && path[0] == "a" && path[1] == "read":
		port, err := b.port(path[2])
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"port": port, "val": b.Analog(port)}, nil
	case len(path) == 3 && path[0] == "a" && path[1] == "write":
		port, err := b.port(path[2])
		if err != nil {
			return nil, err
		}
		val, err := intValue(query.Get("val"), 0, 255)
		if err != nil {
			return nil, err
		}
		b.SetAnalog(port, val)
		return ok(), nil
	case len(path) == 2 && path[0] == "a" && path[1] == "ref":
		ref := query.Get("type")
		if !oneOf(ref, References) {
			return nil, ErrBadArgument
		}
		b.lock.Lock()
		b.reference = ref
		b.lock.Unlock()
		return ok(), nil
	case len(path) == 3 && path[0] == "d" && path[1] == "read":
		port, err := b.port(path[2])
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"port": port, "val": b.Digital(port)}, nil
	case len(path) == 3 && path[0] == "d" && path[1] == "write":
		port, err := b.port(path[2])
		if err != nil {
			return nil, err
		}
		val, err := intValue(query.Get("val"), 0, 1)
		if err != nil {
			return nil, err
		}
		b.SetDigital(port, val)
		return ok(), nil
	case len(path) == 3 && path[0] == "d" && path[1] == "mode":
		port, err := b.port(path[2])
		if err != nil {
			return nil, err
		}
		mode := query.Get("type")
		if !oneOf(mode, Modes) {
			return nil, ErrBadArgument
		}
		b.lock.Lock()
		b.modes[port] = mode
		b.lock.Unlock()
		if mode == "INPUT_PULLUP" {
			b.SetDigital(port, 1)
		}
		return ok(), nil
	case len(path) == 4 && path[0] == "d" && path[1] == "int":
		return b.execInterrupt(path[2], path[3], query)
	case len(path) == 4 && path[0] == "stream":
		return b.execStream(path[1], path[2], path[3], query)
	case u.Path == "system/reset":
		b.Reset()
		return nil, nil
	}
	return nil, ErrUnknownCommand
}

func (b *Board) execInterrupt(op, arg string, query url.Values) (map[string]interface{}, error) {
	num, err := strconv.Atoi(arg)
	if err != nil {
		return nil, ErrBadArgument
	}
	if _, exists := b.InterruptPins[num]; !exists {
		return nil, ErrBadArgument
	}
	switch op {
	case "on":
		trigger := query.Get("type")
		if !oneOf(trigger, Triggers) {
			return nil, ErrBadArgument
		}
		b.lock.Lock()
		b.interrupts[num] = trigger
		b.lock.Unlock()
	case "off":
		b.lock.Lock()
		delete(b.interrupts, num)
		b.lock.Unlock()
	default:
		return nil, ErrUnknownCommand
	}
	return ok(), nil
}

func (b *Board) execStream(typ, op, arg string, query url.Values) (map[string]interface{}, error) {
	if typ != "ai" && typ != "di" {
		return nil, ErrUnknownCommand
	}
	var changed map[Stream]time.Duration
	switch op {
	case "on":
		port, err := b.port(arg)
		if err != nil {
			return nil, err
		}
		ms, err := intValue(query.Get("interval"), 1, int(^uint32(0)>>1))
		if err != nil {
			return nil, err
		}
		s := Stream{Type: typ, Port: port}
		interval := time.Duration(ms) * time.Millisecond
		b.lock.Lock()
		b.streams[s] = interval
		b.lock.Unlock()
		changed = map[Stream]time.Duration{s: interval}
	case "off":
		changed = make(map[Stream]time.Duration)
		b.lock.Lock()
		if arg == "all" {
			for s := range b.streams {
				if s.Type == typ {
					changed[s] = 0
					delete(b.streams, s)
				}
			}
		} else {
			port, err := strconv.Atoi(arg)
			if err != nil || port < 0 || port >= b.Ports {
				b.lock.Unlock()
				return nil, ErrBadArgument
			}
			s := Stream{Type: typ, Port: port}
			changed[s] = 0
			delete(b.streams, s)
		}
		b.lock.Unlock()
	default:
		return nil, ErrUnknownCommand
	}
	b.lock.Lock()
	ln := b.listener
	b.lock.Unlock()
	if ln != nil {
		for s, interval := range changed {
			ln.StreamChanged(s, interval)
		}
	}
	return ok(), nil
}

func (b *Board) port(arg string) (int, error) {
	port, err := strconv.Atoi(arg)
	if err != nil || port < 0 || port >= b.Ports {
		return 0, fmt.Errorf("%w: port %q", ErrBadArgument, arg)
	}
	return port, nil
}

func ok() map[string]interface{} {
	return map[string]interface{}{}
}

func intValue(arg string, min, max int) (int, error) {
	val, err := strconv.Atoi(arg)
	if err != nil || val < min || val > max {
		return 0, fmt.Errorf("%w: %q", ErrBadArgument, arg)
	}
	return val, nil
}

func oneOf(val string, candidates []string) bool {
	for _, c := range candidates {
		if val == c {
			return true
		}
	}
	return false
}

func triggered(trigger string, prev, val int) bool {
	switch trigger {
	case "LOW":
		return val == 0
	case "CHANGE":
		return prev != val
	case "RISING":
		return prev == 0 && val == 1
	case "FALLING":
		return prev == 1 && val == 0
	}
	return false
}
