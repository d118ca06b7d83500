package sh

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/gpiolink/pkg/link"
)

// Shell provides ishell backed interactive shell over a link.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell *ishell.Shell
	Link  *link.Link

	receivedCh chan []byte
}

const shellKey = "$shell"

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&SendCmd,
		&SendHexCmd,
		&LastCmd,
		&StatsCmd,
		&ModeCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds adds more commands; call it before New.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell. The link is attached later with Attach since
// the shell is the link's receive handler.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Shell:       ishell.New(),
		receivedCh:  make(chan []byte, 16),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("link > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// Attach sets the link commands operate on.
func (s *Shell) Attach(l *link.Link) *Shell {
	s.Link = l
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// HandlePayload implements link.ReceiveHandler.
func (s *Shell) HandlePayload(payload []byte) {
	msg := append(make([]byte, 0, len(payload)), payload...)
	select {
	case s.receivedCh <- msg:
	default:
	}
}

// PrintReceived prints received payloads until ctx is done.
func (s *Shell) PrintReceived(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-s.receivedCh:
			s.Shell.Println(s.format("received", payload))
		}
	}
}

func (s *Shell) format(event string, payload []byte) string {
	if s.OutputJSON {
		out, _ := json.Marshal(map[string]interface{}{
			"event":   event,
			"payload": string(payload),
			"hex":     hex.EncodeToString(payload),
		})
		return string(out)
	}
	return fmt.Sprintf("%s %q", event, payload)
}

// Send sends payload and prints the result or the error.
func Send(c *ishell.Context, payload []byte) {
	s := ShellFrom(c)
	if err := s.Link.Send(context.Background(), payload); err != nil {
		c.Err(err)
		return
	}
	c.Println(s.format("sent", payload))
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
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
	// SendCmd sends the arguments joined by spaces.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "TEXT...",
		Func: func(c *ishell.Context) {
			Send(c, []byte(strings.Join(c.Args, " ")))
		},
	}

	// SendHexCmd sends raw bytes.
	SendHexCmd = ishell.Cmd{
		Name:    "sendhex",
		Aliases: []string{"sx"},
		Help:    "HEX",
		Func: func(c *ishell.Context) {
			payload, err := hex.DecodeString(strings.Join(c.Args, ""))
			if err != nil {
				c.Err(fmt.Errorf("Invalid HEX: %v", err))
				return
			}
			Send(c, payload)
		},
	}

	// LastCmd prints the last sent message.
	LastCmd = ishell.Cmd{
		Name: "last",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			msg := s.Link.LastSent()
			if msg == nil {
				c.Println("nothing sent")
				return
			}
			c.Println(s.format("last", msg))
		},
	}

	// StatsCmd prints the link counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			stats := s.Link.Stats()
			if s.OutputJSON {
				out, err := json.Marshal(stats)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			c.Printf("sent %d, delivered %d, checksum errors %d, retransmits %d\n",
				stats.FramesSent, stats.FramesDelivered, stats.ChecksumErrors, stats.Retransmits)
			c.Printf("error tokens %d, dropped frames %d, overflow bits %d, dropped replies %d\n",
				stats.ErrorTokensSent, stats.DroppedFrames, stats.OverflowBits, stats.DroppedReplies)
		},
	}

	// ModeCmd prints the line mode.
	ModeCmd = ishell.Cmd{
		Name: "mode",
		Help: "",
		Func: func(c *ishell.Context) {
			c.Println(ShellFrom(c).Link.Mode().String())
		},
	}
)
