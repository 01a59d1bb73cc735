// Package connector configures access to devices behind bridges.
package connector

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"

	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l1"
	"github.com/robotalks/arduinode/pkg/l1/comm/mqtt"
	"github.com/robotalks/arduinode/pkg/l1/comm/stream"
)

// Config provides common options to setup Connectors.
type Config struct {
	DeviceID string

	// RegistryURL specifies the URL of device registry.
	// e.g. mqtt://host:port/topic-prefix, or stream://host:port for a
	// device served directly by a bridge.
	RegistryURL string
}

var defaultConfig = Config{
	RegistryURL: "mqtt://localhost:1883/arduinode/",
}

func init() {
	if val := os.Getenv("ARDUINODE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
	if val := os.Getenv("ARDUINODE_MQTT_URL"); val != "" {
		defaultConfig.RegistryURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.DeviceID, "device", defaultConfig.DeviceID, "Device ID to connect.")
	flag.StringVar(&defaultConfig.RegistryURL, "registry", defaultConfig.RegistryURL, "Device Registry URL.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewConnector creates a Connector using current config.
func (c *Config) NewConnector() (l1.Connector, error) {
	parsedURL, err := url.Parse(c.RegistryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid registry URL: %w", err)
	}
	switch parsedURL.Scheme {
	case "mqtt", "tcp", "ssl", "ws", "wss":
		return mqtt.NewConnector(c.RegistryURL)
	case "stream":
		return stream.NewConnector(parsedURL.Host), nil
	default:
		return nil, fmt.Errorf("unknown registry URL scheme: %q", parsedURL.Scheme)
	}
}

// MustNewConnector creates a Connector and fails on error.
func (c *Config) MustNewConnector() l1.Connector {
	conn, err := c.NewConnector()
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}

// Connect directly connects to the device.
func (c *Config) Connect(ctx context.Context, events l0.EventHandler) (l1.Device, error) {
	if c.DeviceID == "" {
		return nil, fmt.Errorf("device id must be specified")
	}
	connector, err := c.NewConnector()
	if err != nil {
		return nil, err
	}
	return connector.Connect(ctx, c.DeviceID, events)
}

// MustConnect connects to the device or fails.
func (c *Config) MustConnect(ctx context.Context, events l0.EventHandler) l1.Device {
	dev, err := c.Connect(ctx, events)
	if err != nil {
		log.Fatalln(err)
	}
	return dev
}
