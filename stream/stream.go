// Package stream frames the record and handshake traffic between the gateway
// and a host, newline-terminated text lines over a serial port or any other
// byte stream.
package stream

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const DefaultBaudRate = 115200
const DefaultReadTimeout = 100 * time.Millisecond

// OpenPort opens the serial device in 8N1 framing. A read timeout above zero
// makes reads return empty instead of blocking, which lets readers poll their
// context between attempts.
func OpenPort(device string, baud int, readTimeout time.Duration) (serial.Port, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}

	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", device)
	}

	if readTimeout > 0 {
		err = port.SetReadTimeout(readTimeout)
		if err != nil {
			port.Close()
			return nil, errors.Wrap(err, "failed to set serial read timeout")
		}
	}

	return port, nil
}

type Link struct {
	rw      io.ReadWriter
	one     [1]byte
	pending []byte
}

func NewLink(rw io.ReadWriter) *Link {
	return &Link{rw: rw}
}

// ReadLine returns the next line without its terminator, tolerating CRLF. A
// zero length read keeps polling, so serial ports configured with a read
// timeout check the context roughly once per timeout period. A partial line
// survives context cancellation and completes on the next call.
func (l *Link) ReadLine(ctx context.Context) (string, error) {
	for {
		err := ctx.Err()
		if err != nil {
			return "", err
		}

		n, err := l.rw.Read(l.one[:])
		if n > 0 {
			if l.one[0] == '\n' {
				line := strings.TrimSuffix(string(l.pending), "\r")
				l.pending = l.pending[:0]
				return line, nil
			}
			l.pending = append(l.pending, l.one[0])
			continue
		}
		if err != nil {
			return "", err
		}
	}
}

func (l *Link) WriteLine(line string) error {
	_, err := io.WriteString(l.rw, line+"\n")
	return err
}

func (l *Link) Close() error {
	closer, ok := l.rw.(io.Closer)
	if !ok {
		return nil
	}

	return closer.Close()
}
