package sh

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l0/pins"
	"github.com/robotalks/arduinode/pkg/l0/transport"
	"github.com/robotalks/arduinode/pkg/l1"
	env "github.com/robotalks/arduinode/pkg/l1/env/connector"
	"github.com/robotalks/arduinode/pkg/l1/env/device"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	ShowEvents  bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Device *device.Config
	Conn   *Conn
}

// Conn is an active device connection.
type Conn struct {
	Name   string
	Device l1.Device
	Pins   *pins.Pins
	Cancel func()
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
	connectTimeout    = 5 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	showEvents bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&SendCmd,
		&EventsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.BoolVar(&showEvents, "events", showEvents, "Print device events.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config, devConf *device.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		ShowEvents:  showEvents,
		Timeout:     devConf.CommandTimeout,

		Shell:  ishell.New(),
		Config: conf,
		Device: devConf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// FormatStatus prints Status into friendly string for display.
func FormatStatus(status l1.Status) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s [%s]", status.ID, status.State)
	if status.Port != "" {
		fmt.Fprintf(&w, " %s", status.Port)
	}
	if status.Meta.Board != "" {
		fmt.Fprintf(&w, " (%s)", status.Meta.Board)
	}
	if status.Meta.Description != "" {
		fmt.Fprintf(&w, ": %s", status.Meta.Description)
	}
	return w.String()
}

// IsLocalTarget tells if target names a port rather than a bridged device.
func IsLocalTarget(target string) bool {
	return strings.Contains(target, "/") ||
		strings.HasPrefix(strings.ToUpper(target), "COM")
}

// Context creates the context for a single command.
func (s *Shell) Context() (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(context.Background(), s.Timeout)
	}
	return context.WithCancel(context.Background())
}

// Pins gets the pin API of the connected device.
func Pins(c *ishell.Context) *pins.Pins {
	return ShellFrom(c).Conn.Pins
}

// Do runs a raw command and prints the reply.
func Do(c *ishell.Context, text string) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	ctx, cancel := s.Context()
	defer cancel()
	reply, err := s.Conn.Device.Do(ctx, text)
	if err != nil {
		c.Err(err)
		return err
	}
	if reply == nil {
		c.Println("OK")
		return nil
	}
	c.Println(string(reply.Raw))
	return nil
}

// PrintResult prints the result of a pin operation.
func PrintResult(c *ishell.Context, err error, val interface{}) {
	if err != nil {
		c.Err(err)
		return
	}
	if val == nil {
		c.Println("OK")
		return
	}
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(val)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(val)
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// DiscoverDevices discovers bridged devices.
func (s *Shell) DiscoverDevices(filter func(l1.Status) bool) ([]l1.Status, error) {
	connector, err := s.Config.NewConnector()
	if err != nil {
		return nil, err
	}
	statusList, err := connector.Discover(context.TODO())
	if err != nil {
		return nil, err
	}
	if filter != nil {
		items := make([]l1.Status, 0, len(statusList))
		for _, status := range statusList {
			if filter(status) {
				items = append(items, status)
			}
		}
		statusList = items
	}
	return statusList, nil
}

// SelectDevice discovers devices and asks for a choice.
func (s *Shell) SelectDevice(filter func(l1.Status) bool) (*l1.Status, error) {
	statusList, err := s.DiscoverDevices(filter)
	if err != nil {
		return nil, err
	}
	if len(statusList) == 0 {
		return nil, nil
	}
	var index int
	if len(statusList) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 devices discovered in non-interactive mode")
		}
		items := make([]string, len(statusList))
		for n, status := range statusList {
			items[n] = FormatStatus(status)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
	}
	return &statusList[index], nil
}

// HandleEvent implements l0.EventHandler.
func (s *Shell) HandleEvent(ctx context.Context, ev *l0.Event) {
	if !s.ShowEvents {
		return
	}
	s.Shell.Printf("event %s %s\n", ev.Type, string(ev.Data))
}

// ConnectLocal opens a device on a port and waits for its handshake.
func (s *Shell) ConnectLocal(target string) error {
	conf := *s.Device
	conf.Port = target
	client, err := conf.NewClient()
	if err != nil {
		return err
	}
	client.Subscribe(s)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := client.Run(ctx); err != nil {
			s.Shell.Printf("%s: %v\n", target, err)
		}
	}()
	waitCtx, waitCancel := context.WithTimeout(ctx, connectTimeout)
	defer waitCancel()
	if err := client.WaitReady(waitCtx); err != nil {
		cancel()
		client.Close()
		return fmt.Errorf("%s: %w", target, err)
	}
	s.setConn(&Conn{Name: target, Device: client, Cancel: cancel})
	return nil
}

// ConnectRemote connects a device behind a bridge.
func (s *Shell) ConnectRemote(id string) error {
	conf := *s.Config
	conf.DeviceID = id
	dev, err := conf.Connect(context.TODO(), s)
	if err != nil {
		return err
	}
	s.setConn(&Conn{Name: id, Device: dev, Cancel: func() {}})
	return nil
}

// Connect connects a port or a bridged device.
func (s *Shell) Connect(target string) error {
	if IsLocalTarget(target) {
		return s.ConnectLocal(target)
	}
	return s.ConnectRemote(target)
}

func (s *Shell) setConn(conn *Conn) {
	s.Disconnect()
	conn.Pins = pins.New(conn.Device)
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", conn.Name))
}

// Disconnect disconnects current device.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Device.Close()
		s.Conn.Cancel()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect {
		target := s.Device.Port
		if target == "" {
			target = s.Config.DeviceID
		}
		if target != "" {
			if s.Interactive {
				s.Shell.Printf("Connecting %s ...\n", target)
			}
			if err := s.Connect(target); err != nil {
				log.Fatalf("connect %q failed: %v", target, err)
			}
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := transport.ListPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if ShellFrom(c).OutputJSON {
				if ports == nil {
					ports = []string{}
				}
				out, _ := json.Marshal(ports)
				c.Println(string(out))
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, port := range ports {
				c.Println(port)
			}
		},
	}

	// DiscoverCmd discovers bridged devices.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "list devices behind bridges",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			statusList, err := s.DiscoverDevices(nil)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(statusList) == 0 {
					// in case statusList is nil, make it empty slice.
					statusList = []l1.Status{}
				}
				out, err := json.Marshal(statusList)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(statusList) == 0 {
				c.Println("No devices found")
				return
			}
			for _, status := range statusList {
				c.Println(FormatStatus(status))
			}
		},
	}

	// ConnectCmd connects a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[PORT|ID]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var target string
			if len(c.Args) > 0 {
				target = c.Args[0]
			} else {
				status, err := s.SelectDevice(nil)
				if err != nil {
					c.Err(err)
					return
				}
				if status == nil {
					c.Err(fmt.Errorf("no device discovered"))
					return
				}
				target = status.ID
			}
			if err := s.Connect(target); err != nil {
				c.Err(err)
				return
			}
		},
	}

	// DisconnectCmd disconnects current device.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// SendCmd sends a raw command.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "COMMAND, e.g. a/read/0",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("COMMAND required"))
				return
			}
			Do(c, strings.Join(c.Args, " "))
		}),
	}

	// EventsCmd toggles printing of device events.
	EventsCmd = ishell.Cmd{
		Name: "events",
		Help: "on|off",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				switch c.Args[0] {
				case "on":
					s.ShowEvents = true
				case "off":
					s.ShowEvents = false
				default:
					c.Err(fmt.Errorf("on or off expected"))
					return
				}
			}
			if s.ShowEvents {
				c.Println("events on")
			} else {
				c.Println("events off")
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	devConf, err := device.NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	New(env.NewConfig(), devConf).WithAutoConnect(true).Run(flag.Args()...)
}
