package client

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/dbehnke/caddxd/internal/lookup"
	"github.com/rs/zerolog/log"
)

// Notifier runs an external command for every event. The child gets its
// own session and /dev/null for stdio; the event is passed in TYPE, ID,
// EVENT and NAME.
type Notifier struct {
	command string
	labels  lookup.LabelLookup
}

// NewNotifier creates a notifier for command. labels may be nil.
func NewNotifier(command string, labels lookup.LabelLookup) *Notifier {
	return &Notifier{command: command, labels: labels}
}

// Spawn starts the command for ev and returns without waiting for it.
func (n *Notifier) Spawn(ev Event) error {
	cmd := exec.Command(n.command)
	cmd.Env = append(os.Environ(),
		"TYPE="+ev.Type,
		"ID="+strconv.Itoa(ev.ID),
		"EVENT="+ev.Kind,
		"NAME="+n.name(ev),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("notify %s: %w", n.command, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn().Err(err).Str("command", n.command).Str("event", ev.String()).Msg("notify command failed")
		}
	}()
	return nil
}

func (n *Notifier) name(ev Event) string {
	switch {
	case ev.Type == TypeZone && n.labels != nil:
		return n.labels.ZoneName(ev.ID)
	case ev.Type == TypeZone:
		return lookup.ZoneFallback(ev.ID)
	case n.labels != nil:
		return n.labels.PartitionName(ev.ID)
	default:
		return lookup.PartitionFallback(ev.ID)
	}
}
