package comm

import (
	"strings"
	"time"
)

// Defaults
const (
	// DefaultMaxCommandLen keeps commands, including the line terminator,
	// well within the 128 byte receive buffer of an Arduino.
	DefaultMaxCommandLen  = 100
	DefaultResetCommand   = "system/reset"
	DefaultReadBufferSize = 256
)

// Config defines the protocol parameters of a peer.
type Config struct {
	// MaxCommandLen is the exclusive upper bound of a command's length
	// including the line terminator.
	MaxCommandLen int
	// Handshake is the line the peer sends when ready.
	Handshake string
	// ResetCommand is sent on Close. Empty disables it.
	ResetCommand string
	// CommandTimeout bounds Do. Zero means no timeout other than the context's.
	CommandTimeout time.Duration
	// ReadBufferSize is the size of each read from the transport.
	ReadBufferSize int
}

// DefaultConfig returns the configuration of the stock firmware.
func DefaultConfig() Config {
	return Config{
		MaxCommandLen:  DefaultMaxCommandLen,
		Handshake:      DefaultHandshake,
		ResetCommand:   DefaultResetCommand,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxCommandLen <= 0 {
		c.MaxCommandLen = DefaultMaxCommandLen
	}
	if c.Handshake == "" {
		c.Handshake = DefaultHandshake
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	return c
}

// Validate checks a command without sending it.
func (c Config) Validate(text string) error {
	_, err := c.withDefaults().validate(text)
	return err
}

// validate strips one trailing line terminator and checks what remains.
func (c Config) validate(text string) (string, error) {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return "", ErrCommandRequired
	}
	if strings.ContainsAny(text, "\r\n") {
		return "", ErrInvalidCommand
	}
	if len(text)+1 >= c.MaxCommandLen {
		return "", ErrCommandTooLong
	}
	return text, nil
}
