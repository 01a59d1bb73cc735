package comm

import (
	"context"

	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Doer executes one command and waits for its reply.
// Both *l0.Client and *Remote implement it.
type Doer interface {
	Do(ctx context.Context, text string) (*l0.Reply, error)
}
