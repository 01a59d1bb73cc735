package pins

import (
	"fmt"

	"github.com/robotalks/arduinode/pkg/l0/comm"
)

// Event types.
const (
	EventAnalog    = "ai"
	EventDigital   = "di"
	EventInterrupt = "int"
)

// Sample is the payload of "ai" and "di" events.
type Sample struct {
	Port int `json:"port"`
	Val  int `json:"val"`
}

// Interrupt is the payload of "int" events.
// Count is the number of interrupts since the previous event.
type Interrupt struct {
	Num   int `json:"num"`
	Count int `json:"count"`
}

// DecodeSample decodes an "ai" or "di" event.
func DecodeSample(ev *comm.Event) (*Sample, error) {
	if ev.Type != EventAnalog && ev.Type != EventDigital {
		return nil, fmt.Errorf("not a stream event: %q", ev.Type)
	}
	var s Sample
	if err := ev.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", ev.Type, err)
	}
	return &s, nil
}

// DecodeInterrupt decodes an "int" event.
func DecodeInterrupt(ev *comm.Event) (*Interrupt, error) {
	if ev.Type != EventInterrupt {
		return nil, fmt.Errorf("not an interrupt event: %q", ev.Type)
	}
	var i Interrupt
	if err := ev.Decode(&i); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", ev.Type, err)
	}
	return &i, nil
}
