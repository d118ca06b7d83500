// Package env sets up links and bridges from flags and environment
// variables.
package env

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/gpiolink/pkg/bridge"
	"github.com/robotalks/gpiolink/pkg/bridge/mqtt"
	"github.com/robotalks/gpiolink/pkg/bridge/stream"
	"github.com/robotalks/gpiolink/pkg/bridge/websocket"
	fx "github.com/robotalks/gpiolink/pkg/framework"
	"github.com/robotalks/gpiolink/pkg/gpio"
	"github.com/robotalks/gpiolink/pkg/link"
)

// Config provides common options of link programs.
type Config struct {
	Clock     int
	Data      int
	Select    int
	Indicator int

	SenderDelay    time.Duration
	AcquireTimeout time.Duration

	// NodeID names this end of the link, e.g. in MQTT topics.
	NodeID string
	// BridgeURL specifies the transport payloads are bridged to, e.g.
	//   mqtt://host:port/topic-prefix/
	//   tcp://host:port
	//   serial:///dev/ttyUSB0?baud=115200
	//   ws://host:port/path
	BridgeURL string
	// Codec is the bridge payload codec: raw or proto.
	Codec string
}

var defaultConfig = Config{
	Clock:          22,
	Data:           23,
	Select:         21,
	Indicator:      24,
	SenderDelay:    link.DefaultSenderDelay,
	AcquireTimeout: link.DefaultAcquireTimeout,
	Codec:          "raw",
}

func init() {
	loadEnv(&defaultConfig, os.Getenv)
	if defaultConfig.NodeID == "" {
		defaultConfig.NodeID = MachineID()
	}
}

func loadEnv(conf *Config, getenv func(string) string) {
	for name, pin := range map[string]*int{
		"GPIOLINK_CLOCK": &conf.Clock,
		"GPIOLINK_DATA":  &conf.Data,
		"GPIOLINK_CS":    &conf.Select,
		"GPIOLINK_LED":   &conf.Indicator,
	} {
		if val := getenv(name); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				*pin = n
			} else {
				glog.Warningf("ignore %s=%q: %v", name, val, err)
			}
		}
	}
	if val := getenv("GPIOLINK_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			conf.SenderDelay = d
		} else {
			glog.Warningf("ignore GPIOLINK_DELAY=%q: %v", val, err)
		}
	}
	if val := getenv("GPIOLINK_BRIDGE"); val != "" {
		conf.BridgeURL = val
	}
	if val := getenv("GPIOLINK_NODE"); val != "" {
		conf.NodeID = val
	}
}

// MachineID retrieves the unique ID identifying the machine, or the
// host name when it's not available.
func MachineID() string {
	if id, err := machineid.ProtectedID("gpiolink"); err == nil {
		return id[:12]
	}
	name, _ := os.Hostname()
	return name
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.Clock, "clock", defaultConfig.Clock, "Clock pin")
	flag.IntVar(&defaultConfig.Data, "data", defaultConfig.Data, "Data pin")
	flag.IntVar(&defaultConfig.Select, "cs", defaultConfig.Select, "Chip-select pin")
	flag.IntVar(&defaultConfig.Indicator, "led", defaultConfig.Indicator, "Indicator LED pin")
	flag.DurationVar(&defaultConfig.SenderDelay, "delay", defaultConfig.SenderDelay, "Clock half period when sending")
	flag.DurationVar(&defaultConfig.AcquireTimeout, "acquire-timeout", defaultConfig.AcquireTimeout, "Max wait for a free line, negative waits forever")
	flag.StringVar(&defaultConfig.NodeID, "node", defaultConfig.NodeID, "Node ID")
	flag.StringVar(&defaultConfig.BridgeURL, "bridge", defaultConfig.BridgeURL, "Bridge URL (mqtt://, tcp://, serial://, ws://)")
	flag.StringVar(&defaultConfig.Codec, "codec", defaultConfig.Codec, "Bridge payload codec: raw, proto")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LinkConfig converts to link.Config.
func (c *Config) LinkConfig(handler link.ReceiveHandler) link.Config {
	return link.Config{
		Clock:          gpio.PinID(c.Clock),
		Data:           gpio.PinID(c.Data),
		Select:         gpio.PinID(c.Select),
		Indicator:      gpio.PinID(c.Indicator),
		Handler:        handler,
		SenderDelay:    c.SenderDelay,
		AcquireTimeout: c.AcquireTimeout,
	}
}

// Bridge is an opened bridge transport.
type Bridge struct {
	ReadWriter bridge.PacketReadWriter
	// Runner must run alongside the pipe when not nil.
	Runner fx.Runnable
	// Closer releases the transport connection when not nil.
	Closer io.Closer
}

// OpenBridge opens the transport of BridgeURL.
func (c *Config) OpenBridge() (*Bridge, error) {
	u, err := url.Parse(c.BridgeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge URL %q: %w", c.BridgeURL, err)
	}
	switch u.Scheme {
	case "mqtt", "mqtts", "ssl":
		q, err := mqtt.NewQueueFromURL(c.BridgeURL, "gpiolink-"+c.NodeID)
		if err != nil {
			return nil, err
		}
		if err = q.Connect(); err != nil {
			return nil, fmt.Errorf("connect %s: %w", u.Host, err)
		}
		rw := mqtt.NewPacketReadWriter(q).ForNode(c.NodeID)
		return &Bridge{ReadWriter: rw, Runner: rw, Closer: q}, nil
	case "tcp", "serial":
		rw, err := stream.Dial(u)
		if err != nil {
			return nil, err
		}
		return &Bridge{ReadWriter: rw}, nil
	case "ws", "wss":
		rw, err := websocket.Dial(c.BridgeURL)
		if err != nil {
			return nil, err
		}
		return &Bridge{ReadWriter: rw}, nil
	}
	return nil, fmt.Errorf("unsupported bridge URL %q", c.BridgeURL)
}

// NewPipe creates the bridge pipe with the configured codec.
func (c *Config) NewPipe(b *Bridge) (*bridge.Pipe, error) {
	codec, err := bridge.CodecByName(c.Codec)
	if err != nil {
		return nil, err
	}
	pipe := bridge.NewPipe(b.ReadWriter, 0)
	pipe.Codec = codec
	return pipe, nil
}

// MustOpenBridge opens the bridge and fails on error.
func (c *Config) MustOpenBridge() *Bridge {
	b, err := c.OpenBridge()
	if err != nil {
		log.Fatalln(err)
	}
	return b
}
