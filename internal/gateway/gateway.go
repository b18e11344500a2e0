// Package gateway multiplexes the single panel serial link across any
// number of TCP subscribers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dbehnke/caddxd/internal/network"
	"github.com/dbehnke/caddxd/internal/protocol/caddx"
	"github.com/rs/zerolog/log"
)

// statsEvery is the number of ticks between debug stats lines
const statsEvery = 60

// Config holds the loop's timing and limits
type Config struct {
	SocketTimeout  time.Duration // Subscriber body read and write deadline
	TickInterval   time.Duration // Upper bound on one wait, and the probe tick
	ProbePeriod    int           // Ticks between sync probes while unsynced
	FrameTimeout   time.Duration // Max quiet time inside a serial frame
	MaxSubscribers int
}

// DefaultConfig returns the stock timings
func DefaultConfig() Config {
	return Config{
		SocketTimeout:  5 * time.Second,
		TickInterval:   time.Second,
		ProbePeriod:    10,
		FrameTimeout:   2 * time.Second,
		MaxSubscribers: 64,
	}
}

// Gateway is the process-wide gateway state: the link session, the
// subscriber registry and the listening socket. Run owns all of it; the
// serial port and subscriber sockets are only written from Run's goroutine.
type Gateway struct {
	cfg      Config
	serial   io.ReadWriteCloser
	listener net.Listener

	feed     *network.SerialFeed
	link     *network.Link
	registry *network.Registry

	wake    chan struct{}
	accepts chan net.Conn

	lastTick  time.Time
	ticks     uint64
	closeOnce sync.Once
}

// New builds a gateway over an opened serial port and a bound listener.
func New(cfg Config, serial io.ReadWriteCloser, listener net.Listener) *Gateway {
	wake := make(chan struct{}, 1)
	feed := network.NewSerialFeed(serial, wake, cfg.FrameTimeout)

	return &Gateway{
		cfg:      cfg,
		serial:   serial,
		listener: listener,
		feed:     feed,
		link:     network.NewLink(feed, serial, cfg.ProbePeriod),
		registry: network.NewRegistry(),
		wake:     wake,
		accepts:  make(chan net.Conn, 4),
	}
}

// Synced reports whether the panel handshake has completed
func (g *Gateway) Synced() bool {
	return g.link.Synced()
}

// Run drives the dispatch loop until ctx is cancelled (returning nil) or
// the serial link fails (returning the error). Run closes everything the
// gateway owns before returning.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer g.Close()

	g.feed.Start(ctx)
	go g.acceptLoop(ctx)

	log.Info().
		Str("listen", g.listener.Addr().String()).
		Dur("tick", g.cfg.TickInterval).
		Msg("gateway running")

	g.lastTick = time.Now()
	timer := time.NewTimer(g.cfg.TickInterval)
	defer timer.Stop()

	for {
		if !g.pending() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(g.untilTick())

			select {
			case <-ctx.Done():
			case <-g.wake:
			case <-timer.C:
			}
		}

		if ctx.Err() != nil {
			g.logStats("gateway stopped")
			return nil
		}

		if err := g.step(ctx); err != nil {
			if ctx.Err() != nil {
				g.logStats("gateway stopped")
				return nil
			}
			log.Error().Err(err).Msg("gateway failed")
			return err
		}
	}
}

// step runs one loop iteration in fixed order: one serial frame, one
// accept, one command per subscriber, then the probe tick.
func (g *Gateway) step(ctx context.Context) error {
	if g.link.Ready() {
		frame, err := g.link.Receive(ctx)
		switch {
		case err == nil:
			g.broadcast(frame.Payload)
		case network.IsResync(err):
			log.Debug().Err(err).Msg("serial resync")
		default:
			return err
		}
	}

	select {
	case conn := <-g.accepts:
		g.admit(conn)
	default:
	}

	if err := g.relayCommands(); err != nil {
		return err
	}

	if time.Since(g.lastTick) >= g.cfg.TickInterval {
		g.lastTick = time.Now()
		g.ticks++
		if err := g.link.Tick(); err != nil {
			return fmt.Errorf("sync probe: %w", err)
		}
		if g.ticks%statsEvery == 0 {
			g.logStats("gateway stats")
		}
	}

	return nil
}

// broadcast writes payload to every subscriber. A failed write drops that
// subscriber only. Returns the number of successful deliveries.
func (g *Gateway) broadcast(payload []byte) int {
	delivered := 0
	for _, s := range g.registry.Snapshot() {
		if err := s.Write(payload); err != nil {
			log.Info().Err(err).Str("addr", s.Addr()).Msg("subscriber write failed")
			g.registry.MarkDead(s)
			continue
		}
		delivered++
	}
	g.registry.Compact()
	return delivered
}

// relayCommands forwards at most one queued command per subscriber to the
// panel. No reply is awaited; Acks arrive through the serial side.
func (g *Gateway) relayCommands() error {
	for _, s := range g.registry.Snapshot() {
		payload, ok, err := s.Poll()
		if !ok {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Str("addr", s.Addr()).Msg("subscriber disconnected")
			} else {
				log.Info().Err(err).Str("addr", s.Addr()).Msg("subscriber read failed")
			}
			g.registry.MarkDead(s)
			continue
		}

		log.Debug().
			Str("addr", s.Addr()).
			Str("type", caddx.TypeName(caddx.Header(payload[0]).Type())).
			Msg("relaying command")

		if err := g.link.Send(payload); err != nil {
			if errors.Is(err, caddx.ErrPayloadTooLarge) {
				log.Warn().Err(err).Str("addr", s.Addr()).Msg("command dropped")
				continue
			}
			g.registry.Compact()
			return err
		}
	}
	g.registry.Compact()
	return nil
}

func (g *Gateway) admit(conn net.Conn) {
	if g.registry.Len() >= g.cfg.MaxSubscribers {
		log.Warn().
			Str("addr", conn.RemoteAddr().String()).
			Int("max", g.cfg.MaxSubscribers).
			Msg("subscriber limit reached, closing connection")
		conn.Close()
		return
	}

	s := g.registry.Add(conn, g.cfg.SocketTimeout)
	s.Start(g.wake)
	log.Info().Uint64("id", s.ID()).Str("addr", s.Addr()).Msg("subscriber connected")
}

func (g *Gateway) acceptLoop(ctx context.Context) {
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("accept failed")
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case g.accepts <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
		select {
		case g.wake <- struct{}{}:
		default:
		}
	}
}

// pending reports work that is ready without waiting
func (g *Gateway) pending() bool {
	if g.link.Ready() || len(g.accepts) > 0 {
		return true
	}
	for _, s := range g.registry.Snapshot() {
		if s.Pending() {
			return true
		}
	}
	return false
}

func (g *Gateway) untilTick() time.Duration {
	d := g.cfg.TickInterval - time.Since(g.lastTick)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func (g *Gateway) logStats(msg string) {
	st := g.link.Stats()
	log.Info().
		Bool("synced", g.link.Synced()).
		Int("subscribers", g.registry.Len()).
		Uint64("frames", st.Frames).
		Uint64("checksum_errors", st.ChecksumErrors).
		Uint64("overflows", st.Overflows).
		Uint64("timeouts", st.Timeouts).
		Uint64("noise", st.NoiseBursts).
		Uint64("acks", st.AcksSent).
		Uint64("naks", st.NaksSent).
		Uint64("probes", st.ProbesSent).
		Uint64("sent", st.FramesSent).
		Msg(msg)
}

// Close tears down the listener, the serial port and every subscriber.
// Safe to call more than once.
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		if lerr := g.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) {
			err = lerr
		}
		if serr := g.serial.Close(); serr != nil && err == nil {
			err = serr
		}
		g.registry.CloseAll()
	drain:
		for {
			select {
			case conn := <-g.accepts:
				conn.Close()
			default:
				break drain
			}
		}
	})
	return err
}
