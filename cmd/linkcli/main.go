package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/gpiolink/pkg/cli/sh"
	"github.com/robotalks/gpiolink/pkg/env"
	fx "github.com/robotalks/gpiolink/pkg/framework"
	"github.com/robotalks/gpiolink/pkg/gpio"
	"github.com/robotalks/gpiolink/pkg/gpio/periph"
	"github.com/robotalks/gpiolink/pkg/gpio/sim"
	"github.com/robotalks/gpiolink/pkg/link"
)

var simulate bool

func init() {
	env.SetupFlags()
	flag.BoolVar(&simulate, "sim", simulate, "Talk to a simulated echo peer instead of GPIO.")
}

// echoPeer answers every payload with "echo: " prepended.
type echoPeer struct {
	link *link.Link
	inCh chan []byte
}

func (p *echoPeer) HandlePayload(payload []byte) {
	select {
	case p.inCh <- append([]byte("echo: "), payload...):
	default:
	}
}

func (p *echoPeer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-p.inCh:
			if len(msg) > link.MaxPayloadSize {
				msg = msg[:link.MaxPayloadSize]
			}
			if err := p.link.Send(ctx, msg); err != nil {
				glog.Errorf("echo: %v", err)
			}
		}
	}
}

func main() {
	flag.Parse()
	conf := env.Default()
	runner := fx.NewRunner()
	shell := sh.New()

	var board gpio.Board
	if simulate {
		conf.SenderDelay = 10 * time.Microsecond
		lc := conf.LinkConfig(nil)
		wire := sim.NewWire(lc.Clock, lc.Data, lc.Select)
		board = wire.Board("local")
		peer := &echoPeer{inCh: make(chan []byte, 4)}
		l, err := link.New(wire.Board("peer"), conf.LinkConfig(peer))
		if err != nil {
			log.Fatalln(err)
		}
		peer.link = l
		runner.CloseOnExit(l)
		runner.Go(fx.NamedRun("peer", l), fx.NamedRun("echo", peer))
	} else {
		pb, err := periph.Open()
		if err != nil {
			log.Fatalln(err)
		}
		runner.CloseOnExit(pb)
		board = pb
	}

	l, err := link.New(board, conf.LinkConfig(shell))
	if err != nil {
		log.Fatalln(err)
	}
	runner.CloseOnExit(l)
	runner.Go(fx.NamedRun("link", l), fx.NamedRun("print", fx.RunFunc(shell.PrintReceived)))

	shell.Attach(l).Run(flag.Args()...)
	runner.Stop()
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
