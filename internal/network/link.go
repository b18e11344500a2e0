package network

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/dbehnke/caddxd/internal/protocol"
	"github.com/dbehnke/caddxd/internal/protocol/caddx"
	"github.com/rs/zerolog/log"
)

// ByteSource is where the link reads panel bytes from
type ByteSource interface {
	// Ready reports whether bytes are available without waiting
	Ready() bool
	// Reader returns a reader whose blocking points honour ctx
	Reader(ctx context.Context) io.ByteReader
}

// LinkStats counts link events
type LinkStats struct {
	Frames         uint64
	ChecksumErrors uint64
	Overflows      uint64
	EmptyFrames    uint64
	Timeouts       uint64
	NoiseBursts    uint64
	AcksSent       uint64
	NaksSent       uint64
	ProbesSent     uint64
	FramesSent     uint64
}

// Link owns the serial session with the panel: it validates inbound frames,
// answers with Ack or Nak, encodes outbound payloads, and probes the panel
// until the first interface configuration report arrives.
type Link struct {
	src      ByteSource
	w        io.Writer
	capacity int
	synced   bool
	probe    *Timer
	stats    LinkStats
}

// NewLink creates an unsynced link. The first probe goes out on the first
// tick, then every probePeriod ticks until synced.
func NewLink(src ByteSource, w io.Writer, probePeriod int) *Link {
	probe := NewTimer(probePeriod, 1)
	probe.Start()

	return &Link{
		src:      src,
		w:        w,
		capacity: protocol.CADDX_BUFFER_LENGTH,
		probe:    probe,
	}
}

// IsResync reports whether err from Receive leaves the link usable
func IsResync(err error) bool {
	return caddx.IsResync(err) || errors.Is(err, ErrFrameTimeout) || errors.Is(err, ErrNoFrame)
}

// Ready reports whether the serial side has bytes waiting
func (l *Link) Ready() bool {
	return l.src.Ready()
}

// Synced reports whether the panel has answered the handshake
func (l *Link) Synced() bool {
	return l.synced
}

// Stats returns a copy of the link counters
func (l *Link) Stats() LinkStats {
	return l.stats
}

// Receive reads one frame. Resync conditions (see IsResync) are returned
// as-is and the next call scans for a fresh start marker. Any other error,
// including a failed Ack or Nak write, is fatal to the link.
func (l *Link) Receive(ctx context.Context) (*caddx.Frame, error) {
	frame, err := caddx.ReadFrame(l.src.Reader(ctx), l.capacity)
	if err != nil {
		switch {
		case errors.Is(err, caddx.ErrChecksum):
			l.stats.ChecksumErrors++
			log.Debug().Err(err).Str("hex", hex.EncodeToString(frame.Payload)).Msg("rx checksum failure")
			if sendErr := l.Send((&caddx.Nak{}).Bytes()); sendErr != nil {
				return nil, sendErr
			}
			l.stats.NaksSent++
			return nil, err
		case errors.Is(err, caddx.ErrLengthOverflow):
			l.stats.Overflows++
			log.Debug().Err(err).Msg("rx length overflow")
			return nil, err
		case errors.Is(err, caddx.ErrEmptyFrame):
			l.stats.EmptyFrames++
			return nil, err
		case errors.Is(err, ErrFrameTimeout):
			l.stats.Timeouts++
			return nil, err
		case errors.Is(err, ErrNoFrame):
			l.stats.NoiseBursts++
			return nil, err
		}
		return nil, fmt.Errorf("serial receive: %w", err)
	}

	l.stats.Frames++
	header := frame.Header()
	log.Debug().
		Str("type", caddx.TypeName(header.Type())).
		Str("hex", hex.EncodeToString(frame.Payload)).
		Msg("rx")

	if header.AckRequested() {
		if err := l.Send((&caddx.Ack{}).Bytes()); err != nil {
			return nil, err
		}
		l.stats.AcksSent++
	}

	if !l.synced && header.Type() == protocol.CADDX_INTERFACE_CONFIG_RSP &&
		len(frame.Payload) == protocol.CADDX_INTERFACE_CONFIG_RSP_LEN {
		l.synced = true
		l.probe.Stop()
		if report, ok := caddx.Decode(frame.Payload).(*caddx.InterfaceConfigReport); ok {
			log.Info().Str("firmware", report.Firmware()).Msg("panel link synced")
		}
	}

	return frame, nil
}

// Send encodes payload and writes it to the panel in one write.
func (l *Link) Send(payload []byte) error {
	wire, err := caddx.Encode(payload)
	if err != nil {
		return err
	}

	if _, err := l.w.Write(wire); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}

	l.stats.FramesSent++
	log.Debug().Str("hex", hex.EncodeToString(wire)).Msg("tx")
	return nil
}

// Tick advances the probe countdown and sends an interface configuration
// request when it expires. Does nothing once synced.
func (l *Link) Tick() error {
	if l.synced || !l.probe.Clock() {
		return nil
	}

	if err := l.Send((&caddx.InterfaceConfigRequest{}).Bytes()); err != nil {
		return err
	}
	l.stats.ProbesSent++
	log.Debug().Int("next", l.probe.Remaining()).Msg("sync probe sent")
	return nil
}
