// Package device configures a local device connection and its bridge.
package device

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l0/transport"
	"github.com/robotalks/arduinode/pkg/l1"
	"github.com/robotalks/arduinode/pkg/l1/comm"
	"github.com/robotalks/arduinode/pkg/l1/comm/mqtt"
	"github.com/robotalks/arduinode/pkg/l1/comm/stream"
	"github.com/robotalks/arduinode/pkg/l1/env"
)

// Config provides common options to open a device and bridge it.
type Config struct {
	Info l1.DeviceInfo `toml:"device"`

	// Port is a serial device path or a transport URL,
	// e.g. /dev/ttyACM0, tcp://host:2000.
	Port string `toml:"port"`
	Baud int    `toml:"baud"`

	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `toml:"mqtt_url"`
	// ListenAddr serves the device directly to clients on TCP when set.
	ListenAddr    string `toml:"listen"`
	QueueCapacity int    `toml:"queue_capacity"`

	Handshake      string        `toml:"handshake"`
	ResetCommand   string        `toml:"reset_command"`
	MaxCommandLen  int           `toml:"max_command_len"`
	CommandTimeout time.Duration `toml:"command_timeout"`
}

var (
	defaultConfig = Config{
		Baud:           transport.DefaultBaudRate,
		MQTTBrokerURL:  "mqtt://localhost:1883/arduinode/",
		QueueCapacity:  comm.DefaultQueueCapacity,
		Handshake:      l0.DefaultHandshake,
		ResetCommand:   l0.DefaultResetCommand,
		MaxCommandLen:  l0.DefaultMaxCommandLen,
		CommandTimeout: 5 * time.Second,
	}
	configFile string
)

func init() {
	if val := os.Getenv("ARDUINODE_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val, err := strconv.Atoi(os.Getenv("ARDUINODE_BAUD")); err == nil && val > 0 {
		defaultConfig.Baud = val
	}
	if val := os.Getenv("ARDUINODE_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("ARDUINODE_ID"); val != "" {
		defaultConfig.Info.ID = val
	}
	configFile = os.Getenv("ARDUINODE_CONFIG")
}

func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "Serial port or transport URL")
	fs.IntVar(&c.Baud, "baud", c.Baud, "Serial baud rate")
	fs.StringVar(&c.Info.ID, "id", c.Info.ID, "Device ID, defaults to one derived from machine ID and port")
	fs.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL")
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "TCP address to serve the device directly, e.g. :7000")
	fs.IntVar(&c.QueueCapacity, "queue", c.QueueCapacity, "Max commands waiting for the device")
	fs.DurationVar(&c.CommandTimeout, "timeout", c.CommandTimeout, "Command timeout")
}

// SetupFlags sets command line flags.
func SetupFlags() {
	defaultConfig.bindFlags(flag.CommandLine)
	flag.StringVar(&configFile, "config", configFile, "Board profile in TOML")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
// If a board profile is specified, it overlays the defaults and flags
// set explicitly on the command line win over it.
func NewConfig() (*Config, error) {
	conf := defaultConfig
	if configFile == "" {
		return &conf, nil
	}
	if err := conf.LoadFile(configFile); err != nil {
		return nil, err
	}
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	conf.bindFlags(fs)
	var err error
	flag.Visit(func(f *flag.Flag) {
		if fs.Lookup(f.Name) != nil && err == nil {
			err = fs.Set(f.Name, f.Value.String())
		}
	})
	return &conf, err
}

// MustNewConfig creates a Config and fails on error.
func MustNewConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// LoadFile overlays the keys present in a TOML file.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must be specified")
	}
	if c.Info.ID == "" {
		id, err := env.DeviceID(c.Port)
		if err != nil {
			id = env.MachineID()
		}
		c.Info.ID = id
	}
	if !c.Info.IsValid() {
		return fmt.Errorf("invalid device id %q", c.Info.ID)
	}
	return nil
}

// ClientConfig returns the protocol options.
func (c *Config) ClientConfig() l0.Config {
	return l0.Config{
		MaxCommandLen:  c.MaxCommandLen,
		Handshake:      c.Handshake,
		ResetCommand:   c.ResetCommand,
		CommandTimeout: c.CommandTimeout,
	}
}

// NewClient creates a client for the device.
func (c *Config) NewClient() (*l0.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opener, err := transport.Parse(c.Port, c.Baud)
	if err != nil {
		return nil, err
	}
	return l0.NewClient(opener, c.ClientConfig()), nil
}

// MustNewClient creates a client and fails on error.
func (c *Config) MustNewClient() *l0.Client {
	client, err := c.NewClient()
	if err != nil {
		log.Fatalln(err)
	}
	return client
}

// NewBridge creates a bridge exposing the client on MQTT.
// The bridge is registered to receive events and state changes of the client.
func (c *Config) NewBridge(client *l0.Client) (*mqtt.BrokerBridge, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.MQTTBrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL must be specified")
	}
	b, err := mqtt.NewBrokerBridge(c.MQTTBrokerURL, c.Info, client, c.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("create MQTT bridge error: %w", err)
	}
	b.Port = c.Port
	client.Notifier = b
	client.Subscribe(b)
	return b, nil
}

// NewHost creates a Host serving the client directly on ListenAddr.
// The Host is registered to receive events of the client.
func (c *Config) NewHost(client *l0.Client) (*stream.Host, error) {
	if c.ListenAddr == "" {
		return nil, fmt.Errorf("listen address must be specified")
	}
	h := stream.NewHost(c.ListenAddr, client, c.QueueCapacity)
	client.Subscribe(h)
	return h, nil
}
