// Package client talks to a running gateway: it reads the re-broadcast
// panel stream, classifies status reports into events and sends commands.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dbehnke/caddxd/internal/network"
	"github.com/dbehnke/caddxd/internal/protocol/caddx"
	"github.com/rs/zerolog/log"
)

// Conn is one subscriber connection to the gateway
type Conn struct {
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to the gateway at addr. timeout bounds the connect and
// every Request.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial gateway %s: %w", addr, err)
	}
	return NewConn(conn, timeout), nil
}

// NewConn wraps an established connection
func NewConn(conn net.Conn, timeout time.Duration) *Conn {
	return &Conn{conn: conn, timeout: timeout}
}

// ReadMessage blocks for the next panel message
func (c *Conn) ReadMessage() (caddx.Message, error) {
	payload, err := network.ReadPacket(c.conn)
	if err != nil {
		return nil, err
	}
	log.Debug().Hex("hex", payload).Msg("rx")
	return caddx.Decode(payload), nil
}

// WriteMessage sends one command to the panel through the gateway
func (c *Conn) WriteMessage(m caddx.Message) error {
	payload := m.Bytes()
	log.Debug().Hex("hex", payload).Msg("tx")
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return network.WritePacket(c.conn, payload)
}

// Request sends m and reads until a message of one of the wanted types
// arrives. Other traffic on the stream is skipped. The wait is bounded by
// ctx and the connection timeout.
func (c *Conn) Request(ctx context.Context, m caddx.Message, want ...byte) (caddx.Message, error) {
	if err := c.WriteMessage(m); err != nil {
		return nil, fmt.Errorf("send %s: %w", caddx.TypeName(m.Type()), err)
	}

	reply, err := c.Await(ctx, func(reply caddx.Message) bool {
		for _, w := range want {
			if reply.Type() == w {
				return true
			}
		}
		return false
	})
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("await reply to %s: %w", caddx.TypeName(m.Type()), err)
	}
	return reply, err
}

// Await reads until match accepts a message, within ctx and the
// connection timeout.
func (c *Conn) Await(ctx context.Context, match func(caddx.Message) bool) (caddx.Message, error) {
	if c.timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer func() {
		stop()
		_ = c.conn.SetReadDeadline(time.Time{})
	}()

	for {
		msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if match(msg) {
			return msg, nil
		}
	}
}

// IsTimeout reports whether err came from a read or write deadline
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Close closes the connection
func (c *Conn) Close() error {
	return c.conn.Close()
}
