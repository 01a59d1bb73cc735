package pins

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/arduinode/pkg/cli/sh"
	"github.com/robotalks/arduinode/pkg/l0/pins"
)

var (
	analogReadCmd = ishell.Cmd{
		Name:    "analog.read",
		Aliases: []string{"ar"},
		Help:    "PORT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			port, ok := portArg(c, 0)
			if !ok {
				return
			}
			ctx, cancel := sh.ShellFrom(c).Context()
			defer cancel()
			val, err := sh.Pins(c).AnalogRead(ctx, port)
			sh.PrintResult(c, err, val)
		}),
	}

	analogWriteCmd = ishell.Cmd{
		Name:    "analog.write",
		Aliases: []string{"aw"},
		Help:    "PORT VALUE(0-255)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			port, ok := portArg(c, 0)
			if !ok {
				return
			}
			val, ok := intArg(c, 1, "VALUE")
			if !ok {
				return
			}
			ctx, cancel := sh.ShellFrom(c).Context()
			defer cancel()
			sh.PrintResult(c, sh.Pins(c).AnalogWrite(ctx, port, val), nil)
		}),
	}

	analogRefCmd = ishell.Cmd{
		Name:    "analog.ref",
		Aliases: []string{"aref"},
		Help:    "DEFAULT|INTERNAL|EXTERNAL",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("reference type required"))
				return
			}
			ctx, cancel := sh.ShellFrom(c).Context()
			defer cancel()
			ref := pins.Reference(strings.ToUpper(c.Args[0]))
			sh.PrintResult(c, sh.Pins(c).AnalogReference(ctx, ref), nil)
		}),
	}

	digitalReadCmd = ishell.Cmd{
		Name:    "digital.read",
		Aliases: []string{"dr"},
		Help:    "PORT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			port, ok := portArg(c, 0)
			if !ok {
				return
			}
			ctx, cancel := sh.ShellFrom(c).Context()
			defer cancel()
			level, err := sh.Pins(c).DigitalRead(ctx, port)
			sh.PrintResult(c, err, int(level))
		}),
	}

	digitalWriteCmd = ishell.Cmd{
		Name:    "digital.write",
		Aliases: []string{"dw"},
		Help:    "PORT 0|1",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			port, ok := portArg(c, 0)
			if !ok {
				return
			}
			val, ok := intArg(c, 1, "LEVEL")
			if !ok {
				return
			}
			ctx, cancel := sh.ShellFrom(c).Context()
			defer cancel()
			sh.PrintResult(c, sh.Pins(c).DigitalWrite(ctx, port, pins.Level(val)), nil)
		}),
	}

	pinModeCmd = ishell.Cmd{
		Name:    "digital.mode",
		Aliases: []string{"mode"},
		Help:    "PORT INPUT|OUTPUT|INPUT_PULLUP",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			port, ok := portArg(c, 0)
			if !ok {
				return
			}
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("MODE required"))
				return
			}
			ctx, cancel := sh.ShellFrom(c).Context()
			defer cancel()
			mode := pins.Mode(strings.ToUpper(c.Args[1]))
			sh.PrintResult(c, sh.Pins(c).PinMode(ctx, port, mode), nil)
		}),
	}

	streamCmd = ishell.Cmd{
		Name: "stream",
		Help: "ai|di on PORT INTERVAL, ai|di off PORT|all",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("TYPE on|off PORT required"))
				return
			}
			p := sh.Pins(c)
			var on func(ctx context.Context, port int, interval time.Duration) error
			var off func(ctx context.Context, port int) error
			switch c.Args[0] {
			case pins.EventAnalog:
				on, off = p.AnalogStreamOn, p.AnalogStreamOff
			case pins.EventDigital:
				on, off = p.DigitalStreamOn, p.DigitalStreamOff
			default:
				c.Err(fmt.Errorf("unknown stream type %q", c.Args[0]))
				return
			}
			ctx, cancel := sh.ShellFrom(c).Context()
			defer cancel()
			switch c.Args[1] {
			case "on":
				port, ok := portArg(c, 2)
				if !ok {
					return
				}
				if len(c.Args) < 4 {
					c.Err(fmt.Errorf("INTERVAL required"))
					return
				}
				interval, err := parseInterval(c.Args[3])
				if err != nil {
					c.Err(err)
					return
				}
				sh.PrintResult(c, on(ctx, port, interval), nil)
			case "off":
				port := pins.AllPorts
				if c.Args[2] != "all" {
					var ok bool
					if port, ok = portArg(c, 2); !ok {
						return
					}
				}
				sh.PrintResult(c, off(ctx, port), nil)
			default:
				c.Err(fmt.Errorf("on or off expected"))
			}
		}),
	}

	interruptCmd = ishell.Cmd{
		Name:    "interrupt",
		Aliases: []string{"int"},
		Help:    "on NUM LOW|CHANGE|RISING|FALLING, off NUM",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("on|off NUM required"))
				return
			}
			num, ok := intArg(c, 1, "NUM")
			if !ok {
				return
			}
			ctx, cancel := sh.ShellFrom(c).Context()
			defer cancel()
			switch c.Args[0] {
			case "on":
				if len(c.Args) < 3 {
					c.Err(fmt.Errorf("trigger required"))
					return
				}
				trigger := pins.Trigger(strings.ToUpper(c.Args[2]))
				sh.PrintResult(c, sh.Pins(c).AttachInterrupt(ctx, num, trigger), nil)
			case "off":
				sh.PrintResult(c, sh.Pins(c).DetachInterrupt(ctx, num), nil)
			default:
				c.Err(fmt.Errorf("on or off expected"))
			}
		}),
	}

	resetCmd = ishell.Cmd{
		Name: "reset",
		Help: "reset the device",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			ctx, cancel := sh.ShellFrom(c).Context()
			defer cancel()
			sh.PrintResult(c, sh.Pins(c).Reset(ctx), nil)
		}),
	}
)

func portArg(c *ishell.Context, index int) (int, bool) {
	return intArg(c, index, "PORT")
}

func intArg(c *ishell.Context, index int, name string) (int, bool) {
	if len(c.Args) <= index {
		c.Err(fmt.Errorf("%s required", name))
		return 0, false
	}
	val, err := strconv.Atoi(c.Args[index])
	if err != nil {
		c.Err(fmt.Errorf("invalid %s: %w", name, err))
		return 0, false
	}
	return val, true
}

// parseInterval accepts a duration like 100ms, or a bare number of milliseconds.
func parseInterval(s string) (time.Duration, error) {
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func init() {
	sh.AddCmds(
		&analogReadCmd,
		&analogWriteCmd,
		&analogRefCmd,
		&digitalReadCmd,
		&digitalWriteCmd,
		&pinModeCmd,
		&streamCmd,
		&interruptCmd,
		&resetCmd,
	)
}
