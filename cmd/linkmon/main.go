package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/robotalks/gpiolink/pkg/bridge"
	"github.com/robotalks/gpiolink/pkg/bridge/mqtt"
	"github.com/robotalks/gpiolink/pkg/env"
	fx "github.com/robotalks/gpiolink/pkg/framework"
)

var (
	mqttURL = "mqtt://localhost:1883/gpiolink/"
	codec   = "raw"
)

func init() {
	if val := os.Getenv("GPIOLINK_BRIDGE"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&codec, "codec", codec, "Payload codec: raw, proto.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	c, err := bridge.CodecByName(codec)
	if err != nil {
		log.Fatalln(err)
	}
	q, err := mqtt.NewQueueFromURL(mqttURL, "linkmon-"+env.MachineID())
	if err != nil {
		log.Fatalln(err)
	}
	if err = q.Connect(); err != nil {
		log.Fatalln(err)
	}

	show := func(topic string, pkt []byte) {
		payload, err := c.Decode(pkt)
		if err != nil {
			log.Printf("%s: bad packet: %v", topic, err)
			return
		}
		log.Printf("%s: %q", topic, payload)
	}
	q.Sub("+"+mqtt.RxSuffix, show)
	q.Sub("+"+mqtt.TxSuffix, show)

	runner := fx.NewRunner().HandleSignals().CloseOnExit(q)
	runner.Go(fx.RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
