package network

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dbehnke/caddxd/internal/protocol/caddx"
)

var (
	wireAck   = []byte{0x7E, 0x01, 0x1D, 0x1E, 0x1F}
	wireNak   = []byte{0x7E, 0x01, 0x1E, 0x1F, 0x20}
	wireProbe = []byte{0x7E, 0x01, 0x21, 0x22, 0x23}
)

type bytesSource struct {
	r *bytes.Reader
}

func newBytesSource(data ...[]byte) *bytesSource {
	return &bytesSource{r: bytes.NewReader(bytes.Join(data, nil))}
}

func (b *bytesSource) Ready() bool                              { return b.r.Len() > 0 }
func (b *bytesSource) Reader(ctx context.Context) io.ByteReader { return b.r }

type errSource struct{ err error }

func (e *errSource) Ready() bool                              { return true }
func (e *errSource) Reader(ctx context.Context) io.ByteReader { return e }
func (e *errSource) ReadByte() (byte, error)                  { return 0, e.err }

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, errors.New("device gone") }

func mustEncode(t *testing.T, payload []byte) []byte {
	t.Helper()
	wire, err := caddx.Encode(payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return wire
}

func interfaceConfigPayload() []byte {
	return []byte{0x01, '1', '.', '0', '0', 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
}

func TestLinkAckRequested(t *testing.T) {
	payload := []byte{0x84, 0x02, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00}
	var out bytes.Buffer
	link := NewLink(newBytesSource(mustEncode(t, payload)), &out, 10)

	frame, err := link.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("Receive() payload = % X, want % X", frame.Payload, payload)
	}
	if !bytes.Equal(out.Bytes(), wireAck) {
		t.Errorf("serial writes = % X, want exactly one Ack % X", out.Bytes(), wireAck)
	}
	if link.Stats().AcksSent != 1 {
		t.Errorf("Stats().AcksSent = %d, want 1", link.Stats().AcksSent)
	}
}

func TestLinkNoAckRequested(t *testing.T) {
	payload := []byte{0x04, 0x02, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00}
	var out bytes.Buffer
	link := NewLink(newBytesSource(mustEncode(t, payload)), &out, 10)

	if _, err := link.Receive(context.Background()); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("serial writes = % X, want none", out.Bytes())
	}
}

func TestLinkChecksumFailure(t *testing.T) {
	wire := mustEncode(t, []byte{0x84, 0x02, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00})
	wire[len(wire)-2] ^= 0x55

	var out bytes.Buffer
	link := NewLink(newBytesSource(wire), &out, 10)

	frame, err := link.Receive(context.Background())
	if !errors.Is(err, caddx.ErrChecksum) {
		t.Fatalf("Receive() error = %v, want ErrChecksum", err)
	}
	if frame != nil {
		t.Error("Receive() returned a frame for a checksum failure")
	}
	if !IsResync(err) {
		t.Error("IsResync() = false, want true")
	}
	// Exactly one Nak, and no Ack even though the header asked for one
	if !bytes.Equal(out.Bytes(), wireNak) {
		t.Errorf("serial writes = % X, want exactly one Nak % X", out.Bytes(), wireNak)
	}
}

func TestLinkLengthOverflow(t *testing.T) {
	payload := make([]byte, 126)
	payload[0] = 0x06
	var out bytes.Buffer
	link := NewLink(newBytesSource(mustEncode(t, payload)), &out, 10)

	_, err := link.Receive(context.Background())
	if !errors.Is(err, caddx.ErrLengthOverflow) {
		t.Fatalf("Receive() error = %v, want ErrLengthOverflow", err)
	}
	if !IsResync(err) {
		t.Error("IsResync() = false, want true")
	}
	if out.Len() != 0 {
		t.Errorf("serial writes = % X, want no Nak for overflow", out.Bytes())
	}
}

func TestLinkRecoversAfterGarbage(t *testing.T) {
	good := []byte{0x06, 0x00, 0x40, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}
	src := newBytesSource([]byte{0x7E, 0x00, 0x13, 0x37}, mustEncode(t, good))
	link := NewLink(src, io.Discard, 10)

	_, err := link.Receive(context.Background())
	if !errors.Is(err, caddx.ErrEmptyFrame) {
		t.Fatalf("first Receive() error = %v, want ErrEmptyFrame", err)
	}

	frame, err := link.Receive(context.Background())
	if err != nil {
		t.Fatalf("second Receive() error = %v", err)
	}
	if !bytes.Equal(frame.Payload, good) {
		t.Errorf("Receive() payload = % X, want % X", frame.Payload, good)
	}
}

func TestLinkSync(t *testing.T) {
	var out bytes.Buffer
	link := NewLink(newBytesSource(mustEncode(t, interfaceConfigPayload())), &out, 10)

	if link.Synced() {
		t.Fatal("Synced() = true before handshake")
	}
	if _, err := link.Receive(context.Background()); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !link.Synced() {
		t.Fatal("Synced() = false after interface config report")
	}

	for i := 0; i < 25; i++ {
		if err := link.Tick(); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if out.Len() != 0 {
		t.Errorf("serial writes after sync = % X, want none", out.Bytes())
	}
}

func TestLinkSyncIgnoresShortReport(t *testing.T) {
	link := NewLink(newBytesSource(mustEncode(t, []byte{0x01, '1', '.', '0'})), io.Discard, 10)

	if _, err := link.Receive(context.Background()); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if link.Synced() {
		t.Error("Synced() = true for a short interface config report")
	}
}

func TestLinkProbeCountdown(t *testing.T) {
	var out bytes.Buffer
	link := NewLink(newBytesSource(), &out, 3)

	for tick := 0; tick < 7; tick++ {
		if err := link.Tick(); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}

	// Ticks 1, 4 and 7
	want := bytes.Repeat(wireProbe, 3)
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("serial writes = % X, want % X", out.Bytes(), want)
	}
	if link.Stats().ProbesSent != 3 {
		t.Errorf("Stats().ProbesSent = %d, want 3", link.Stats().ProbesSent)
	}
}

func TestLinkWriteFailureIsFatal(t *testing.T) {
	link := NewLink(newBytesSource(), failWriter{}, 1)

	err := link.Tick()
	if err == nil {
		t.Fatal("Tick() error = nil, want write failure")
	}
	if IsResync(err) {
		t.Error("IsResync(write failure) = true, want false")
	}

	payload := []byte{0x84, 0x02, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00}
	link = NewLink(newBytesSource(mustEncode(t, payload)), failWriter{}, 1)
	if _, err := link.Receive(context.Background()); err == nil || IsResync(err) {
		t.Errorf("Receive() with failing Ack write error = %v, want fatal", err)
	}
}

func TestLinkReadFailureIsFatal(t *testing.T) {
	link := NewLink(&errSource{err: errors.New("input/output error")}, io.Discard, 10)

	_, err := link.Receive(context.Background())
	if err == nil || IsResync(err) {
		t.Errorf("Receive() error = %v, want fatal read error", err)
	}
}

func TestSerialFeed(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()

	wake := make(chan struct{}, 1)
	feed := NewSerialFeed(pr, wake, 200*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)

	payload := []byte{0x06, 0x00, 0x40, 0x02, 0x00, 0x00, 0x01, 0x00, 0x7E}
	wire := mustEncode(t, payload)
	go pw.Write(wire)

	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("feed never signalled wake")
	}
	if !feed.Ready() {
		t.Fatal("Ready() = false after wake")
	}

	var out bytes.Buffer
	link := NewLink(feed, &out, 10)
	frame, err := link.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("Receive() payload = % X, want % X", frame.Payload, payload)
	}
}

func TestSerialFeedFrameTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()

	wake := make(chan struct{}, 1)
	feed := NewSerialFeed(pr, wake, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)

	go pw.Write([]byte{0x7E, 0x05, 0x04})

	link := NewLink(feed, io.Discard, 10)
	_, err := link.Receive(ctx)
	if !errors.Is(err, ErrFrameTimeout) {
		t.Fatalf("Receive() error = %v, want ErrFrameTimeout", err)
	}
	if !IsResync(err) {
		t.Error("IsResync(ErrFrameTimeout) = false, want true")
	}
}

func TestSerialFeedNoiseDoesNotWait(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()

	wake := make(chan struct{}, 1)
	feed := NewSerialFeed(pr, wake, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)

	go pw.Write([]byte{0x01, 0x02, 0x03})

	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("feed never signalled wake")
	}

	link := NewLink(feed, io.Discard, 10)
	start := time.Now()
	_, err := link.Receive(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Receive() error = %v, want ErrNoFrame", err)
	}
	if !IsResync(err) {
		t.Error("IsResync(ErrNoFrame) = false, want true")
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("Receive() took %v, want well under the 1s frame timeout", elapsed)
	}
	st := link.Stats()
	if st.Timeouts != 0 || st.NoiseBursts != 1 {
		t.Errorf("Stats() timeouts=%d noise=%d, want 0 and 1", st.Timeouts, st.NoiseBursts)
	}
	if feed.Ready() {
		t.Error("Ready() = true after the noise was drained")
	}
}

func TestSerialFeedNoiseThenFrame(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()

	wake := make(chan struct{}, 1)
	feed := NewSerialFeed(pr, wake, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)

	payload := []byte{0x04, 0x02, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00}
	go pw.Write(append([]byte{0x55, 0xAA}, mustEncode(t, payload)...))

	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("feed never signalled wake")
	}

	link := NewLink(feed, io.Discard, 10)
	frame, err := link.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("Receive() payload = % X, want % X", frame.Payload, payload)
	}
}

func TestSerialFeedCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()

	wake := make(chan struct{}, 1)
	feed := NewSerialFeed(pr, wake, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	feed.Start(ctx)

	go pw.Write([]byte{0x7E})
	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("feed never signalled wake")
	}

	r := feed.Reader(ctx)
	if b, err := r.ReadByte(); err != nil || b != 0x7E {
		t.Fatalf("ReadByte() = %02X, %v, want 7E", b, err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.ReadByte()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ReadByte() error = %v, want context.Canceled", err)
	}
}

func TestSerialFeedReadError(t *testing.T) {
	pr, pw := io.Pipe()
	pw.CloseWithError(errors.New("device unplugged"))

	wake := make(chan struct{}, 1)
	feed := NewSerialFeed(pr, wake, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)

	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("feed never signalled wake")
	}

	link := NewLink(feed, io.Discard, 10)
	_, err := link.Receive(ctx)
	if err == nil || IsResync(err) {
		t.Errorf("Receive() error = %v, want fatal read error", err)
	}
	if !feed.Ready() {
		t.Error("Ready() = false with a pending read error")
	}
	if feed.ring.HasData() {
		t.Error("ring still holds bytes after a fatal read error")
	}
}
