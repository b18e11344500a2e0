package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dbehnke/caddxd/internal/protocol"
	"github.com/dbehnke/caddxd/internal/protocol/caddx"
	"github.com/rs/zerolog/log"
)

// Monitor follows the gateway stream, logging and notifying events
type Monitor struct {
	conn       *Conn
	classifier *Classifier
	notifier   *Notifier

	// OnEvent, when set, is called for every event after it is logged
	OnEvent func(Event)
}

// NewMonitor creates a monitor over conn. notifier may be nil.
func NewMonitor(conn *Conn, notifier *Notifier) *Monitor {
	return &Monitor{
		conn:       conn,
		classifier: NewClassifier(),
		notifier:   notifier,
	}
}

// Run reads until ctx is cancelled (returning nil) or the connection
// fails. It first asks for every partition's status so sirens already
// sounding are reported.
func (m *Monitor) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = m.conn.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for p := 0; p < protocol.CADDX_MAX_PARTITIONS; p++ {
		if err := m.conn.WriteMessage(&caddx.PartitionStatusRequest{Partition: byte(p)}); err != nil {
			return fmt.Errorf("request partition %d status: %w", p+1, err)
		}
	}

	for {
		msg, err := m.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("gateway closed the connection")
			}
			return fmt.Errorf("read gateway: %w", err)
		}
		m.handle(msg)
	}
}

func (m *Monitor) handle(msg caddx.Message) {
	if s, ok := msg.(fmt.Stringer); ok {
		log.Debug().Str("type", caddx.TypeName(msg.Type())).Msg(s.String())
	}

	ev, ok := m.classifier.Classify(msg)
	if !ok {
		return
	}

	log.Info().Str("type", ev.Type).Int("id", ev.ID).Str("event", ev.Kind).Msg("event")

	if m.notifier != nil {
		if err := m.notifier.Spawn(ev); err != nil {
			log.Warn().Err(err).Msg("notify failed")
		}
	}
	if m.OnEvent != nil {
		m.OnEvent(ev)
	}
}
