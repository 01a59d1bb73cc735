package l1

import (
	"context"
	"io"
	"strings"

	"github.com/robotalks/arduinode/pkg/l0/comm"
)

// DeviceMeta provides metadata for a device.
type DeviceMeta struct {
	Description string            `json:"description,omitempty" toml:"description"`
	Board       string            `json:"board,omitempty" toml:"board"`
	Labels      map[string]string `json:"labels,omitempty" toml:"labels"`
}

// DeviceInfo provides information of a device.
type DeviceInfo struct {
	// ID is unique ID of the device, used as topic segment.
	ID   string     `json:"id" toml:"id"`
	Meta DeviceMeta `json:"meta" toml:"meta"`
}

// IsValid indicates DeviceInfo is valid.
func (i DeviceInfo) IsValid() bool {
	return i.ID != "" && !strings.ContainsAny(i.ID, "/+#")
}

// Status is published by a bridge while it's online.
type Status struct {
	DeviceInfo
	// Port is the transport target the bridge opened.
	Port string `json:"port,omitempty"`
	// State is the lifecycle state of the device connection.
	State string `json:"state"`
}

// Device is the connection to a device behind a bridge.
type Device interface {
	Do(ctx context.Context, text string) (*comm.Reply, error)
	io.Closer
}

// Connector is used by clients to reach devices behind bridges.
type Connector interface {
	// Discover enumerates online bridges.
	Discover(context.Context) ([]Status, error)
	// Connect connects to the specified device, events are delivered to
	// the handler if not nil.
	Connect(ctx context.Context, id string, events comm.EventHandler) (Device, error)
}
