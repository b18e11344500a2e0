package caddx

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/dbehnke/caddxd/internal/protocol"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{
			name:    "interface config request",
			payload: []byte{0x21},
			want:    []byte{0x7E, 0x01, 0x21, 0x22, 0x23},
		},
		{
			name:    "ack",
			payload: []byte{0x1D},
			want:    []byte{0x7E, 0x01, 0x1D, 0x1E, 0x1F},
		},
		{
			name:    "start marker escaped",
			payload: []byte{0x7E},
			want:    []byte{0x7E, 0x01, 0x7D, 0x5E, 0x7F, 0x80},
		},
		{
			name:    "escape byte escaped, checksum left literal",
			payload: []byte{0x7D},
			want:    []byte{0x7E, 0x01, 0x7D, 0x5D, 0x7E, 0x7F},
		},
		{
			name:    "length byte never escaped",
			payload: bytes.Repeat([]byte{0x00}, 0x7E),
			want:    nil, // checked below
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if tt.want == nil {
				if got[1] != 0x7E {
					t.Errorf("Encode() length byte = 0x%02X, want literal 0x7E", got[1])
				}
				return
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(make([]byte, 256))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Encode(256 bytes) error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestEncodedLen(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		escapes int
	}{
		{"no escapes", []byte{0x01, 0x02, 0x03}, 0},
		{"one start marker", []byte{0x01, 0x7E, 0x03}, 1},
		{"mixed", []byte{0x7D, 0x7E, 0x7D, 0x00}, 3},
		{"all escapes", bytes.Repeat([]byte{0x7E}, 50), 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := Encode(tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			want := len(tt.payload) + tt.escapes + 4
			if len(wire) != want {
				t.Errorf("len(Encode()) = %d, want %d", len(wire), want)
			}
			if EncodedLen(tt.payload) != want {
				t.Errorf("EncodedLen() = %d, want %d", EncodedLen(tt.payload), want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1587))

	for n := 1; n <= protocol.CADDX_MAX_PAYLOAD; n++ {
		payload := make([]byte, n)
		rng.Read(payload)
		// Make sure every length carries escape-sensitive bytes
		payload[rng.Intn(n)] = 0x7E
		payload[rng.Intn(n)] = 0x7D

		wire, err := Encode(payload)
		if err != nil {
			t.Fatalf("Encode(len=%d) error = %v", n, err)
		}

		frame, err := ReadFrame(bytes.NewReader(wire), protocol.CADDX_BUFFER_LENGTH)
		if err != nil {
			t.Fatalf("ReadFrame(len=%d) error = %v", n, err)
		}
		if !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("ReadFrame(len=%d) payload = % X, want % X", n, frame.Payload, payload)
		}
		if int(frame.Length) != n {
			t.Errorf("ReadFrame(len=%d) Length = %d", n, frame.Length)
		}
	}
}

func TestReadFrameZeroLength(t *testing.T) {
	wire, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode(nil) error = %v", err)
	}
	if !bytes.Equal(wire, []byte{0x7E, 0x00, 0x00, 0x00}) {
		t.Errorf("Encode(nil) = % X, want 7E 00 00 00", wire)
	}

	_, err = ReadFrame(bytes.NewReader(wire), protocol.CADDX_BUFFER_LENGTH)
	if !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("ReadFrame() error = %v, want ErrEmptyFrame", err)
	}
	if !IsResync(err) {
		t.Error("IsResync(ErrEmptyFrame) = false, want true")
	}
}

func TestReadFrameResync(t *testing.T) {
	good, _ := Encode([]byte{0x04, 0x02, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00})

	var stream []byte
	stream = append(stream, 0x00, 0xFF, 0x13, 0x7D, 0x37, 0x01)
	stream = append(stream, good...)

	r := bytes.NewReader(stream)
	frame, err := ReadFrame(r, protocol.CADDX_BUFFER_LENGTH)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if frame.Header().Type() != protocol.CADDX_ZONE_STATUS_RSP {
		t.Errorf("Header().Type() = 0x%02X, want 0x04", frame.Header().Type())
	}
	if frame.Checksum != 0x107E {
		t.Errorf("Checksum = 0x%04X, want 0x107E", frame.Checksum)
	}

	if _, err := ReadFrame(r, protocol.CADDX_BUFFER_LENGTH); err != io.EOF {
		t.Errorf("second ReadFrame() error = %v, want io.EOF", err)
	}
}

func TestReadFrameAfterTruncatedFrame(t *testing.T) {
	good, _ := Encode([]byte{0x21})

	// A frame that starts, then loses sync: its bytes are consumed as
	// payload of the broken frame and the checksum fails; the next
	// attempt finds the following start marker.
	var stream []byte
	stream = append(stream, 0x7E, 0x03, 0x06)
	stream = append(stream, good...)
	stream = append(stream, good...)

	r := bufio.NewReader(bytes.NewReader(stream))
	var frames, resyncs int
	for {
		_, err := ReadFrame(r, protocol.CADDX_BUFFER_LENGTH)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			if !IsResync(err) {
				t.Fatalf("ReadFrame() error = %v, want resync condition", err)
			}
			resyncs++
			continue
		}
		frames++
	}
	if frames < 1 {
		t.Errorf("decoded %d frames, want at least 1", frames)
	}
	if resyncs < 1 {
		t.Errorf("saw %d resync conditions, want at least 1", resyncs)
	}
}

func TestReadFrameChecksumMismatch(t *testing.T) {
	wire, _ := Encode([]byte{0x21})
	wire[len(wire)-1] ^= 0xFF

	frame, err := ReadFrame(bytes.NewReader(wire), protocol.CADDX_BUFFER_LENGTH)
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("ReadFrame() error = %v, want ErrChecksum", err)
	}
	if frame == nil || !bytes.Equal(frame.Payload, []byte{0x21}) {
		t.Errorf("ReadFrame() frame = %+v, want payload 21", frame)
	}
	if errors.Is(err, ErrLengthOverflow) {
		t.Error("checksum failure must be distinct from length overflow")
	}
	if !strings.Contains(err.Error(), "got 0x22DC, want 0x2223") {
		t.Errorf("ReadFrame() error = %q, want got 0x22DC, want 0x2223", err)
	}
}

func TestReadFrameLengthOverflow(t *testing.T) {
	tests := []struct {
		name     string
		length   byte
		capacity int
		wantErr  bool
	}{
		{"at limit", 125, 128, false},
		{"one over", 126, 128, true},
		{"small buffer", 10, 12, true},
		{"max byte", 0xFF, 128, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := make([]byte, tt.length)
			payload[0] = 0x01
			wire, _ := Encode(payload)

			_, err := ReadFrame(bytes.NewReader(wire), tt.capacity)
			if tt.wantErr {
				if !errors.Is(err, ErrLengthOverflow) {
					t.Errorf("ReadFrame() error = %v, want ErrLengthOverflow", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ReadFrame() error = %v", err)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	tests := []struct {
		header  Header
		wantTyp byte
		wantAck bool
	}{
		{0x21, 0x21, false},
		{0x84, 0x04, true},
		{0xC6, 0x06, true},
		{0x5D, 0x1D, false},
	}

	for _, tt := range tests {
		if got := tt.header.Type(); got != tt.wantTyp {
			t.Errorf("Header(0x%02X).Type() = 0x%02X, want 0x%02X", byte(tt.header), got, tt.wantTyp)
		}
		if got := tt.header.AckRequested(); got != tt.wantAck {
			t.Errorf("Header(0x%02X).AckRequested() = %v, want %v", byte(tt.header), got, tt.wantAck)
		}
	}
}
