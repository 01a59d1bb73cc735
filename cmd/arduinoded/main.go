package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"

	"github.com/golang/glog"

	fx "github.com/robotalks/arduinode/pkg/framework"
	"github.com/robotalks/arduinode/pkg/l1/env/device"
)

func init() {
	device.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := device.MustNewConfig()
	client := conf.MustNewClient()
	runner := fx.NewRunner().HandleSignals().Go(
		fx.NamedRun("device", fx.RunFunc(func(ctx context.Context) error {
			return fx.RunWithContextCloser(ctx, client, func() error {
				return client.Run(context.Background())
			})
		})),
	)

	if conf.MQTTBrokerURL != "" {
		bridge, err := conf.NewBridge(client)
		if err != nil {
			glog.Exitln(err)
		}
		glog.Infof("bridging %s as %s on %s", conf.Port, conf.Info.ID, conf.MQTTBrokerURL)
		runner.Go(fx.NamedRun("bridge", bridge))
	}
	if conf.ListenAddr != "" {
		host, err := conf.NewHost(client)
		if err != nil {
			glog.Exitln(err)
		}
		runner.Go(fx.NamedRun("host", host))
	}

	if err := runner.Wait(); err != nil {
		glog.Exitln(err)
	}
}
