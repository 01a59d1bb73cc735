package main

import (
	"github.com/robotalks/arduinode/pkg/cli/sh"
	env "github.com/robotalks/arduinode/pkg/l1/env/connector"
	"github.com/robotalks/arduinode/pkg/l1/env/device"

	_ "github.com/robotalks/arduinode/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
	device.SetupFlags()
}

func main() {
	sh.Main()
}
