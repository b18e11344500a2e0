package network

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dbehnke/caddxd/internal/protocol"
)

// ErrPacketLength is returned for subscriber packets that are empty or
// larger than a panel payload can be.
var ErrPacketLength = errors.New("subscriber: invalid packet length")

// WritePacket writes payload with the subscriber framing: one length byte,
// then the raw payload.
func WritePacket(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > protocol.CADDX_MAX_PAYLOAD {
		return fmt.Errorf("%w: %d", ErrPacketLength, len(payload))
	}
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, byte(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadPacket reads one length-prefixed packet
func ReadPacket(r io.Reader) ([]byte, error) {
	var hdr [1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	return readBody(r, int(hdr[0]))
}

func readBody(r io.Reader, n int) ([]byte, error) {
	if n == 0 || n > protocol.CADDX_MAX_PAYLOAD {
		return nil, fmt.Errorf("%w: %d", ErrPacketLength, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

type command struct {
	payload []byte
	err     error
}

// Subscriber is one connected network client. A reader goroutine parses
// its commands and queues at most one at a time; the gateway loop picks
// them up with Poll and is the only writer to the connection.
type Subscriber struct {
	id      uint64
	conn    net.Conn
	addr    string
	timeout time.Duration

	cmds      chan command
	done      chan struct{}
	closeOnce sync.Once
	dead      bool
}

func newSubscriber(id uint64, conn net.Conn, timeout time.Duration) *Subscriber {
	return &Subscriber{
		id:      id,
		conn:    conn,
		addr:    conn.RemoteAddr().String(),
		timeout: timeout,
		cmds:    make(chan command, 1),
		done:    make(chan struct{}),
	}
}

// ID returns the registry-assigned identifier
func (s *Subscriber) ID() uint64 { return s.id }

// Addr returns the peer address
func (s *Subscriber) Addr() string { return s.addr }

// Start launches the reader goroutine. wake is signalled without blocking
// after each queued command.
func (s *Subscriber) Start(wake chan<- struct{}) {
	go s.readLoop(wake)
}

func (s *Subscriber) readLoop(wake chan<- struct{}) {
	for {
		// Idle subscribers may wait indefinitely for the length byte;
		// the body must follow within the socket timeout.
		var hdr [1]byte
		_ = s.conn.SetReadDeadline(time.Time{})
		_, err := io.ReadFull(s.conn, hdr[:])

		var payload []byte
		if err == nil {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
			payload, err = readBody(s.conn, int(hdr[0]))
		}

		select {
		case s.cmds <- command{payload: payload, err: err}:
		case <-s.done:
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}

		if err != nil {
			return
		}
	}
}

// Pending reports whether a command is queued
func (s *Subscriber) Pending() bool {
	return len(s.cmds) > 0
}

// Poll returns the queued command, if any, without blocking.
func (s *Subscriber) Poll() (payload []byte, ok bool, err error) {
	select {
	case c := <-s.cmds:
		return c.payload, true, c.err
	default:
		return nil, false, nil
	}
}

// Write sends one packet within the socket timeout
func (s *Subscriber) Write(payload []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return WritePacket(s.conn, payload)
}

// Close stops the reader goroutine and closes the connection
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
