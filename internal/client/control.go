package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dbehnke/caddxd/internal/protocol"
	"github.com/dbehnke/caddxd/internal/protocol/caddx"
)

var (
	ErrNak      = errors.New("panel answered NAK")
	ErrRejected = errors.New("panel rejected the command")
)

var secondaryFunctions = map[string]byte{
	"stay":             protocol.CADDX_SECONDARY_STAY,
	"chime":            protocol.CADDX_SECONDARY_CHIME,
	"exit":             protocol.CADDX_SECONDARY_EXIT,
	"bypass-interiors": protocol.CADDX_SECONDARY_BYPASS_INTERIORS,
	"fire-panic":       protocol.CADDX_SECONDARY_FIRE_PANIC,
	"medical-panic":    protocol.CADDX_SECONDARY_MEDICAL_PANIC,
	"police-panic":     protocol.CADDX_SECONDARY_POLICE_PANIC,
	"smoke-reset":      protocol.CADDX_SECONDARY_SMOKE_RESET,
	"auto-callback":    protocol.CADDX_SECONDARY_AUTO_CALLBACK,
	"manual-pickup":    protocol.CADDX_SECONDARY_MANUAL_PICKUP,
	"silent-exit":      protocol.CADDX_SECONDARY_SILENT_EXIT,
	"perform-test":     protocol.CADDX_SECONDARY_PERFORM_TEST,
	"group-bypass":     protocol.CADDX_SECONDARY_GROUP_BYPASS,
	"aux1":             protocol.CADDX_SECONDARY_AUX1,
	"aux2":             protocol.CADDX_SECONDARY_AUX2,
	"keypad-sounder":   protocol.CADDX_SECONDARY_KEYPAD_SOUNDER,
}

// ParseSecondaryFunction accepts a function name ("chime") or number (0-15)
func ParseSecondaryFunction(s string) (byte, error) {
	if f, ok := secondaryFunctions[strings.ToLower(s)]; ok {
		return f, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > protocol.CADDX_SECONDARY_MAX {
		return 0, fmt.Errorf("unknown secondary function %q", s)
	}
	return byte(n), nil
}

// PartitionMask converts a 1-based partition number to its mask bit
func PartitionMask(partition int) (byte, error) {
	if partition < 1 || partition > protocol.CADDX_MAX_PARTITIONS {
		return 0, fmt.Errorf("partition %d out of range 1-%d", partition, protocol.CADDX_MAX_PARTITIONS)
	}
	return 1 << (partition - 1), nil
}

func zoneIndex(zone int) (byte, error) {
	if zone < 1 || zone > protocol.CADDX_MAX_ZONES {
		return 0, fmt.Errorf("zone %d out of range 1-%d", zone, protocol.CADDX_MAX_ZONES)
	}
	return byte(zone - 1), nil
}

// command sends m and waits for the panel's Ack, Nak or Rejected
func command(ctx context.Context, c *Conn, m caddx.Message) error {
	reply, err := c.Request(ctx, m, protocol.CADDX_POS_ACK, protocol.CADDX_NEG_ACK, protocol.CADDX_MSG_REJECTED)
	if err != nil {
		return err
	}
	switch reply.Type() {
	case protocol.CADDX_NEG_ACK:
		return ErrNak
	case protocol.CADDX_MSG_REJECTED:
		return ErrRejected
	}
	return nil
}

// Keypad runs a primary keypad function (arm, disarm, ...) on a 1-based
// partition. An empty pin sends the no-PIN form.
func Keypad(ctx context.Context, c *Conn, function byte, partition int, pin string) error {
	mask, err := PartitionMask(partition)
	if err != nil {
		return err
	}
	m, err := caddx.NewKeypadFunctionPrimary(function, mask, pin)
	if err != nil {
		return err
	}
	return command(ctx, c, m)
}

// Secondary runs a secondary keypad function on a 1-based partition
func Secondary(ctx context.Context, c *Conn, function byte, partition int) error {
	mask, err := PartitionMask(partition)
	if err != nil {
		return err
	}
	m, err := caddx.NewKeypadFunctionSecondary(function, mask)
	if err != nil {
		return err
	}
	return command(ctx, c, m)
}

// ZoneStatus asks the panel for a 1-based zone's status
func ZoneStatus(ctx context.Context, c *Conn, zone int) (*caddx.ZoneStatusReport, error) {
	idx, err := zoneIndex(zone)
	if err != nil {
		return nil, err
	}
	if err := c.WriteMessage(&caddx.ZoneStatusRequest{Zone: idx}); err != nil {
		return nil, err
	}
	reply, err := c.Await(ctx, func(m caddx.Message) bool {
		r, ok := m.(*caddx.ZoneStatusReport)
		return ok && r.Zone() == idx
	})
	if err != nil {
		return nil, fmt.Errorf("zone %d status: %w", zone, err)
	}
	return reply.(*caddx.ZoneStatusReport), nil
}

// PartitionStatus asks the panel for a 1-based partition's status
func PartitionStatus(ctx context.Context, c *Conn, partition int) (*caddx.PartitionStatusReport, error) {
	if _, err := PartitionMask(partition); err != nil {
		return nil, err
	}
	idx := byte(partition - 1)
	if err := c.WriteMessage(&caddx.PartitionStatusRequest{Partition: idx}); err != nil {
		return nil, err
	}
	reply, err := c.Await(ctx, func(m caddx.Message) bool {
		r, ok := m.(*caddx.PartitionStatusReport)
		return ok && r.Partition() == idx
	})
	if err != nil {
		return nil, fmt.Errorf("partition %d status: %w", partition, err)
	}
	return reply.(*caddx.PartitionStatusReport), nil
}

// InterfaceConfig asks the panel interface for its capabilities
func InterfaceConfig(ctx context.Context, c *Conn) (*caddx.InterfaceConfigReport, error) {
	if err := c.WriteMessage(&caddx.InterfaceConfigRequest{}); err != nil {
		return nil, err
	}
	reply, err := c.Await(ctx, func(m caddx.Message) bool {
		_, ok := m.(*caddx.InterfaceConfigReport)
		return ok
	})
	if err != nil {
		return nil, fmt.Errorf("interface config: %w", err)
	}
	return reply.(*caddx.InterfaceConfigReport), nil
}

// Capability is one message the panel's interface configuration report
// enables or disables.
type Capability struct {
	Code    byte
	Name    string
	Command bool
	Enabled bool
}

var (
	reportedTransitions = []byte{
		protocol.CADDX_INTERFACE_CONFIG_RSP,
		protocol.CADDX_ZONE_STATUS_RSP,
		protocol.CADDX_PARTITION_STATUS_RSP,
	}
	reportedCommands = []byte{
		protocol.CADDX_INTERFACE_CONFIG_REQ,
		protocol.CADDX_ZONE_STATUS_REQ,
		protocol.CADDX_PARTITION_STATUS_REQ,
		protocol.CADDX_PRIMARY_KEYPAD_PIN,
		protocol.CADDX_PRIMARY_KEYPAD_NOPIN,
		protocol.CADDX_SECONDARY_KEYPAD,
		protocol.CADDX_ZONE_BYPASS_TOGGLE,
	}
)

// Capabilities lists the transitions and commands this client uses,
// flagged by whether the panel has them enabled.
func Capabilities(r *caddx.InterfaceConfigReport) []Capability {
	caps := make([]Capability, 0, len(reportedTransitions)+len(reportedCommands))
	for _, code := range reportedTransitions {
		caps = append(caps, Capability{
			Code:    code,
			Name:    caddx.TypeName(code),
			Enabled: r.SupportsTransition(code),
		})
	}
	for _, code := range reportedCommands {
		name := caddx.TypeName(code)
		if code == protocol.CADDX_PRIMARY_KEYPAD_PIN {
			name += "_pin"
		}
		caps = append(caps, Capability{
			Code:    code,
			Name:    name,
			Command: true,
			Enabled: r.SupportsCommand(code),
		})
	}
	return caps
}

// SetBypass toggles a 1-based zone's bypass. With want set, the zone's
// status is read first and the toggle is only sent when it differs.
// Reports whether a toggle was sent.
func SetBypass(ctx context.Context, c *Conn, zone int, want *bool) (bool, error) {
	idx, err := zoneIndex(zone)
	if err != nil {
		return false, err
	}

	if want != nil {
		status, err := ZoneStatus(ctx, c, zone)
		if err != nil {
			return false, err
		}
		if status.Bypassed() == *want {
			return false, nil
		}
	}

	if err := command(ctx, c, &caddx.BypassToggleRequest{Zone: idx}); err != nil {
		return false, fmt.Errorf("zone %d bypass: %w", zone, err)
	}
	return true, nil
}
