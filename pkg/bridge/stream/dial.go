package stream

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is used for serial ports without a baud query parameter.
const DefaultBaud = 115200

// Dial opens a stream transport from a URL:
//
//	tcp://host:port
//	serial:///dev/ttyUSB0?baud=115200
func Dial(u *url.URL) (*ReadWriter, error) {
	switch u.Scheme {
	case "tcp":
		conn, err := net.DialTimeout("tcp", u.Host, 5*time.Second)
		if err != nil {
			return nil, err
		}
		return New(conn), nil
	case "serial":
		return OpenSerial(u)
	}
	return nil, fmt.Errorf("unsupported stream scheme %q", u.Scheme)
}

// OpenSerial opens a serial port described by a serial:// URL.
func OpenSerial(u *url.URL) (*ReadWriter, error) {
	conf := &serial.Config{Name: u.Path, Baud: DefaultBaud}
	if conf.Name == "" {
		conf.Name = u.Opaque
	}
	if val := u.Query().Get("baud"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid baud %q: %w", val, err)
		}
		conf.Baud = baud
	}
	port, err := serial.OpenPort(conf)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", conf.Name, err)
	}
	return New(port), nil
}
