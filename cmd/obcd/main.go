package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/obc.go/pkg/comm/mqtt"
	"github.com/robotalks/obc.go/pkg/comm/stream"
	"github.com/robotalks/obc.go/pkg/comm/websocket"
	"github.com/robotalks/obc.go/pkg/config"
	fx "github.com/robotalks/obc.go/pkg/framework"
	"github.com/robotalks/obc.go/pkg/obc"
)

func init() {
	config.SetupFlags()
}

func run() error {
	conf, err := config.NewConfig()
	if err != nil {
		return err
	}
	o, err := obc.Open(conf)
	if err != nil {
		return err
	}
	defer o.Close()

	runner := fx.NewRunner().HandleSignals()
	glog.Infof("OBC %s starting", conf.ID)
	if err := o.Initialize(runner.Context); err != nil {
		return err
	}

	loop := fx.NewLoop()
	loop.Interval = conf.LoopInterval
	loop.Add(o)

	if path := conf.Telemetry.Downlink; path != "" {
		downlink, err := stream.OpenDownlink(path)
		if err != nil {
			return err
		}
		defer downlink.Close()
		o.Telemetry.AddSink(downlink)
	}
	if url := conf.Telemetry.MQTTBrokerURL; url != "" {
		link, err := mqtt.NewLink(url, conf.ID, o.Submit)
		if err != nil {
			return err
		}
		o.Telemetry.AddSink(link)
		loop.AddRunnable(fx.NamedRun("mqtt", link))
	}
	if addr := conf.Telemetry.WebsocketAddr; addr != "" {
		hub := websocket.NewHub(addr, o.Submit)
		o.Telemetry.AddSink(hub)
		loop.AddRunnable(fx.NamedRun("websocket", hub))
	}

	return runner.Go(fx.NamedRun("loop", loop)).Wait()
}

func main() {
	flag.Parse()
	err := run()
	if err != nil {
		glog.Errorf("OBC stopped: %v", err)
	}
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
