package caddx

import (
	"errors"
	"fmt"
	"io"

	"github.com/dbehnke/caddxd/internal/correction"
	"github.com/dbehnke/caddxd/internal/protocol"
)

var (
	// ErrEmptyFrame is returned when a frame announces a zero length.
	ErrEmptyFrame = errors.New("caddx: empty frame")
	// ErrLengthOverflow is returned when a frame length exceeds the receive buffer.
	ErrLengthOverflow = errors.New("caddx: frame length overflow")
	// ErrChecksum is returned when the trailing checksum does not match.
	ErrChecksum = errors.New("caddx: checksum mismatch")
	// ErrPayloadTooLarge is returned by Encode for payloads that do not fit the length byte.
	ErrPayloadTooLarge = errors.New("caddx: payload too large")
)

// IsResync reports whether err is a framing condition the receiver recovers
// from by scanning for the next start marker.
func IsResync(err error) bool {
	return errors.Is(err, ErrEmptyFrame) ||
		errors.Is(err, ErrLengthOverflow) ||
		errors.Is(err, ErrChecksum)
}

// Frame is one decoded on-wire unit
type Frame struct {
	Length   byte   // Count of unescaped payload bytes
	Payload  []byte // Unescaped payload, header byte first
	Checksum uint16 // Checksum as received
}

// Header returns the payload's header byte
func (f *Frame) Header() Header {
	if len(f.Payload) == 0 {
		return 0
	}
	return Header(f.Payload[0])
}

// Header is the first payload byte: 6-bit type, reserved bit, ack-request bit.
type Header byte

// Type returns the message type code
func (h Header) Type() byte {
	return byte(h) & protocol.CADDX_MSG_TYPE_MASK
}

// AckRequested reports whether the sender wants an Ack
func (h Header) AckRequested() bool {
	return byte(h)&protocol.CADDX_ACK_REQ != 0
}

func needsEscape(b byte) bool {
	return b == protocol.CADDX_START_BYTE || b == protocol.CADDX_ESCAPE_BYTE
}

// EncodedLen returns the number of wire bytes Encode produces for payload.
func EncodedLen(payload []byte) int {
	n := 2 + len(payload) + 2
	for _, b := range payload {
		if needsEscape(b) {
			n++
		}
	}
	return n
}

// Encode builds the wire form of payload: start marker, raw length byte,
// escaped payload and a big-endian checksum over (length, payload). The
// length and checksum bytes are written literally even when they collide
// with the start or escape values; the panel expects exactly that.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > 0xFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	length := byte(len(payload))
	wire := make([]byte, 0, EncodedLen(payload))
	wire = append(wire, protocol.CADDX_START_BYTE, length)

	for _, b := range payload {
		if needsEscape(b) {
			wire = append(wire, protocol.CADDX_ESCAPE_BYTE, b^protocol.CADDX_ESCAPE_XOR)
			continue
		}
		wire = append(wire, b)
	}

	sum := checksum(length, payload)
	wire = append(wire, byte(sum>>8), byte(sum))

	return wire, nil
}

// ReadFrame scans r for a start marker, discarding anything before it, and
// decodes one frame. capacity is the receiver's buffer size; lengths above
// capacity minus the framing overhead fail with ErrLengthOverflow.
//
// On ErrChecksum the decoded frame is returned alongside the error so the
// caller can log it. Errors from r are returned unchanged.
func ReadFrame(r io.ByteReader, capacity int) (*Frame, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == protocol.CADDX_START_BYTE {
			break
		}
	}

	length, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if int(length) > capacity-protocol.CADDX_FRAME_OVERHEAD {
		return nil, fmt.Errorf("%w: %d > %d", ErrLengthOverflow, length, capacity-protocol.CADDX_FRAME_OVERHEAD)
	}

	payload := make([]byte, length)
	for i := range payload {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == protocol.CADDX_ESCAPE_BYTE {
			if b, err = r.ReadByte(); err != nil {
				return nil, err
			}
			b ^= protocol.CADDX_ESCAPE_XOR
		}
		payload[i] = b
	}

	hi, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	lo, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	frame := &Frame{
		Length:   length,
		Payload:  payload,
		Checksum: uint16(hi)<<8 | uint16(lo),
	}

	if covered := checksumInput(length, payload); !correction.Fletcher255Check(covered, frame.Checksum) {
		return frame, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrChecksum, frame.Checksum, correction.Fletcher255(covered))
	}

	return frame, nil
}

// checksum covers the length byte followed by the unescaped payload
func checksum(length byte, payload []byte) uint16 {
	return correction.Fletcher255(checksumInput(length, payload))
}

func checksumInput(length byte, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, length)
	return append(buf, payload...)
}
