package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dbehnke/caddxd/internal/protocol"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	// serialReadTimeout bounds each port read so the feeder notices shutdown
	serialReadTimeout = 250 * time.Millisecond

	// readBufSize is the size of one serial read
	readBufSize = 256
)

// ErrFrameTimeout is returned when the serial line goes quiet in the middle
// of a frame. The receiver treats it as a resync condition.
var ErrFrameTimeout = errors.New("serial: timed out waiting for frame bytes")

// ErrNoFrame is returned when the buffered bytes ran out before a start
// marker was seen. The discarded bytes were line noise.
var ErrNoFrame = errors.New("serial: no frame start in buffered bytes")

// OpenSerial opens device at baud, 8 data bits, no parity, one stop bit.
func OpenSerial(device string, baud int) (serial.Port, error) {
	if device == "" {
		return nil, errors.New("serial device is required")
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", device, err)
	}

	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("setting serial read timeout: %w", err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		log.Warn().Err(err).Str("device", device).Msg("failed to flush serial input")
	}

	log.Info().Str("device", device).Int("baud", baud).Msg("serial port opened")
	return port, nil
}

type chunk struct {
	data []byte
	err  error
}

// SerialFeed moves bytes from the serial port to the gateway loop. A
// goroutine performs the blocking reads and hands chunks over a channel;
// only the loop goroutine touches the ring buffer.
type SerialFeed struct {
	port         io.Reader
	chunks       chan chunk
	wake         chan<- struct{}
	ring         *RingBuffer
	frameTimeout time.Duration
	err          error
	done         chan struct{}
}

// NewSerialFeed creates a feed over port. wake is signalled without
// blocking whenever new bytes arrive.
func NewSerialFeed(port io.Reader, wake chan<- struct{}, frameTimeout time.Duration) *SerialFeed {
	return &SerialFeed{
		port:         port,
		chunks:       make(chan chunk, 16),
		wake:         wake,
		ring:         NewRingBuffer(readBufSize, "serial"),
		frameTimeout: frameTimeout,
		done:         make(chan struct{}),
	}
}

// Start launches the reader goroutine. It exits when ctx is cancelled or
// the port returns an error.
func (f *SerialFeed) Start(ctx context.Context) {
	go f.readLoop(ctx)
}

// Done is closed when the reader goroutine has exited
func (f *SerialFeed) Done() <-chan struct{} {
	return f.done
}

func (f *SerialFeed) readLoop(ctx context.Context) {
	defer close(f.done)

	buf := make([]byte, readBufSize)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := f.port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !f.deliver(ctx, chunk{data: data}) {
				return
			}
		}
		if err != nil {
			if ctx.Err() == nil {
				f.deliver(ctx, chunk{err: err})
			}
			return
		}
	}
}

func (f *SerialFeed) deliver(ctx context.Context, c chunk) bool {
	select {
	case f.chunks <- c:
	case <-ctx.Done():
		return false
	}
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return true
}

// Ready reports whether a read would make progress without waiting
func (f *SerialFeed) Ready() bool {
	return f.ring.HasData() || len(f.chunks) > 0 || f.err != nil
}

// Reader returns a byte reader bound to ctx. Until it has returned a start
// marker it never waits; after that each byte wait is limited by the frame
// timeout.
func (f *SerialFeed) Reader(ctx context.Context) io.ByteReader {
	return &feedReader{feed: f, ctx: ctx}
}

type feedReader struct {
	feed    *SerialFeed
	ctx     context.Context
	started bool
}

func (r *feedReader) ReadByte() (byte, error) {
	f := r.feed
	if !f.ring.HasData() {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}

	b, err := f.ring.ReadByte()
	if err == nil && b == protocol.CADDX_START_BYTE {
		r.started = true
	}
	return b, err
}

func (r *feedReader) fill() error {
	f := r.feed
	if f.err != nil {
		return f.err
	}

	if !r.started {
		select {
		case c := <-f.chunks:
			return f.add(c)
		default:
			return ErrNoFrame
		}
	}

	timer := time.NewTimer(f.frameTimeout)
	defer timer.Stop()

	select {
	case <-r.ctx.Done():
		return r.ctx.Err()
	case <-timer.C:
		return ErrFrameTimeout
	case c := <-f.chunks:
		return f.add(c)
	}
}

func (f *SerialFeed) add(c chunk) error {
	if c.err != nil {
		f.err = fmt.Errorf("serial read: %w", c.err)
		f.ring.Clear()
		return f.err
	}
	f.ring.AddData(c.data)
	return nil
}
