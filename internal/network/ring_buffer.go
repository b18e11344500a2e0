package network

import (
	"io"

	"github.com/rs/zerolog/log"
)

// RingBuffer is a fixed-capacity byte FIFO. It is not safe for concurrent
// use; the gateway loop is its only user.
type RingBuffer struct {
	buffer   []byte
	head     int
	tail     int
	size     int
	capacity int
	name     string
}

// NewRingBuffer creates a new ring buffer with specified capacity
func NewRingBuffer(capacity int, name string) *RingBuffer {
	return &RingBuffer{
		buffer:   make([]byte, capacity),
		capacity: capacity,
		name:     name,
	}
}

// AddData appends data. Returns false, storing nothing, if it does not fit.
func (rb *RingBuffer) AddData(data []byte) bool {
	if len(data) == 0 {
		return true
	}

	if !rb.HasSpace(len(data)) {
		log.Warn().
			Str("buffer", rb.name).
			Int("bytes", len(data)).
			Int("free", rb.FreeSpace()).
			Msg("ring buffer full")
		return false
	}

	for _, b := range data {
		rb.buffer[rb.head] = b
		rb.head = (rb.head + 1) % rb.capacity
		rb.size++
	}

	return true
}

// ReadByte removes and returns the oldest byte, io.EOF when empty
func (rb *RingBuffer) ReadByte() (byte, error) {
	if rb.size == 0 {
		return 0, io.EOF
	}
	b := rb.buffer[rb.tail]
	rb.tail = (rb.tail + 1) % rb.capacity
	rb.size--
	return b, nil
}

// Clear empties the ring buffer
func (rb *RingBuffer) Clear() {
	rb.head = 0
	rb.tail = 0
	rb.size = 0
}

// FreeSpace returns available space in bytes
func (rb *RingBuffer) FreeSpace() int {
	return rb.capacity - rb.size
}

// HasSpace checks if buffer has space for specified amount
func (rb *RingBuffer) HasSpace(length int) bool {
	return rb.FreeSpace() >= length
}

// HasData returns true if buffer contains data
func (rb *RingBuffer) HasData() bool {
	return rb.size > 0
}
