package sim

import (
	"flag"
	"os"
)

// Config defines the configuration of a simulated board.
type Config struct {
	Addr      string
	Ports     int
	Handshake string
	BootNoise string
}

var defaultConfig = Config{
	Addr:      ":2000",
	Ports:     DefaultPorts,
	Handshake: "READY",
	BootNoise: "arduinode sim",
}

func init() {
	if val := os.Getenv("ARDUINODE_SIM_ADDR"); val != "" {
		defaultConfig.Addr = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Addr, "listen", defaultConfig.Addr, "TCP address to serve the board.")
	flag.IntVar(&defaultConfig.Ports, "ports", defaultConfig.Ports, "Number of pins.")
	flag.StringVar(&defaultConfig.Handshake, "handshake", defaultConfig.Handshake, "Line printed when the board is ready.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates the default configuration.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewServer creates the Server.
func (c *Config) NewServer() *Server {
	board := NewBoard()
	if c.Ports > 0 {
		board.Ports = c.Ports
	}
	return &Server{
		Board:     board,
		Addr:      c.Addr,
		Handshake: c.Handshake,
		BootNoise: c.BootNoise,
	}
}
