package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	fx "github.com/robotalks/arduinode/pkg/framework"
	"github.com/robotalks/arduinode/pkg/sim"
)

func init() {
	sim.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	srv := sim.NewConfig().NewServer()
	if err := fx.NewRunner().HandleSignals().Go(fx.NamedRun("sim", srv)).Wait(); err != nil {
		glog.Exitln(err)
	}
}
