package main

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/gpiolink/pkg/bridge"
	"github.com/robotalks/gpiolink/pkg/env"
	fx "github.com/robotalks/gpiolink/pkg/framework"
	"github.com/robotalks/gpiolink/pkg/gpio/periph"
	"github.com/robotalks/gpiolink/pkg/link"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	conf := env.Default()

	board, err := periph.Open()
	if err != nil {
		log.Fatalln(err)
	}

	runner := fx.NewRunner().HandleSignals()
	var handler link.ReceiveHandler = link.HandlePayloadFunc(func(payload []byte) {
		glog.Infof("received %q", payload)
	})
	var pipe *bridge.Pipe
	if conf.BridgeURL != "" {
		b := conf.MustOpenBridge()
		if b.Closer != nil {
			runner.CloseOnExit(b.Closer)
		}
		if pipe, err = conf.NewPipe(b); err != nil {
			log.Fatalln(err)
		}
		handler = pipe
		if b.Runner != nil {
			runner.Go(fx.NamedRun("transport", b.Runner))
		}
	}

	l, err := link.New(board, conf.LinkConfig(handler))
	if err != nil {
		log.Fatalln(err)
	}
	runner.CloseOnExit(board, l)
	runner.Go(fx.NamedRun("link", l))
	if pipe != nil {
		pipe.Link = l
		runner.Go(pipe)
	}
	glog.Infof("link up on %s, node %s", board.Name(), conf.NodeID)
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
