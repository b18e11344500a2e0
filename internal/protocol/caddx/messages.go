package caddx

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dbehnke/caddxd/internal/protocol"
)

// Message is a decoded CADDX payload
type Message interface {
	// Type returns the 6-bit message type code
	Type() byte
	// Bytes returns the payload, header byte first, ready for Encode
	Bytes() []byte
}

// Decode interprets payload by its type code. Unknown codes and known codes
// with the wrong length come back as *Unparsed; Decode never fails.
func Decode(payload []byte) Message {
	if len(payload) == 0 {
		return &Unparsed{}
	}

	code := Header(payload[0]).Type()
	want, known := fixedLengths[code]
	if !known || len(payload) != want {
		return &Unparsed{Code: code, Raw: clone(payload)}
	}

	switch code {
	case protocol.CADDX_INTERFACE_CONFIG_RSP:
		m := &InterfaceConfigReport{}
		copy(m.raw[:], payload)
		return m
	case protocol.CADDX_ZONE_STATUS_RSP:
		m := &ZoneStatusReport{}
		copy(m.raw[:], payload)
		return m
	case protocol.CADDX_PARTITION_STATUS_RSP:
		m := &PartitionStatusReport{}
		copy(m.raw[:], payload)
		return m
	case protocol.CADDX_POS_ACK:
		return &Ack{}
	case protocol.CADDX_NEG_ACK:
		return &Nak{}
	case protocol.CADDX_MSG_REJECTED:
		return &Rejected{}
	case protocol.CADDX_INTERFACE_CONFIG_REQ:
		return &InterfaceConfigRequest{}
	case protocol.CADDX_ZONE_STATUS_REQ:
		return &ZoneStatusRequest{Zone: payload[1]}
	case protocol.CADDX_PARTITION_STATUS_REQ:
		return &PartitionStatusRequest{Partition: payload[1]}
	case protocol.CADDX_PRIMARY_KEYPAD_PIN:
		return &KeypadFunctionPrimary{
			PIN:        unpackPIN(payload[1:4]),
			Function:   payload[4],
			Partitions: payload[5],
		}
	case protocol.CADDX_PRIMARY_KEYPAD_NOPIN:
		return &KeypadFunctionPrimary{
			Function:   payload[1],
			Partitions: payload[2],
			UserNumber: payload[3],
		}
	case protocol.CADDX_SECONDARY_KEYPAD:
		return &KeypadFunctionSecondary{Function: payload[1], Partitions: payload[2]}
	case protocol.CADDX_ZONE_BYPASS_TOGGLE:
		return &BypassToggleRequest{Zone: payload[1]}
	}

	return &Unparsed{Code: code, Raw: clone(payload)}
}

var fixedLengths = map[byte]int{
	protocol.CADDX_INTERFACE_CONFIG_RSP: protocol.CADDX_INTERFACE_CONFIG_RSP_LEN,
	protocol.CADDX_ZONE_STATUS_RSP:      protocol.CADDX_ZONE_STATUS_RSP_LEN,
	protocol.CADDX_PARTITION_STATUS_RSP: protocol.CADDX_PARTITION_STATUS_RSP_LEN,
	protocol.CADDX_POS_ACK:              protocol.CADDX_ACK_LEN,
	protocol.CADDX_NEG_ACK:              protocol.CADDX_ACK_LEN,
	protocol.CADDX_MSG_REJECTED:         protocol.CADDX_ACK_LEN,
	protocol.CADDX_INTERFACE_CONFIG_REQ: protocol.CADDX_INTERFACE_CONFIG_REQ_LEN,
	protocol.CADDX_ZONE_STATUS_REQ:      protocol.CADDX_ZONE_STATUS_REQ_LEN,
	protocol.CADDX_PARTITION_STATUS_REQ: protocol.CADDX_PARTITION_STATUS_REQ_LEN,
	protocol.CADDX_PRIMARY_KEYPAD_PIN:   protocol.CADDX_PRIMARY_KEYPAD_PIN_LEN,
	protocol.CADDX_PRIMARY_KEYPAD_NOPIN: protocol.CADDX_PRIMARY_KEYPAD_NOPIN_LEN,
	protocol.CADDX_SECONDARY_KEYPAD:     protocol.CADDX_SECONDARY_KEYPAD_LEN,
	protocol.CADDX_ZONE_BYPASS_TOGGLE:   protocol.CADDX_ZONE_BYPASS_TOGGLE_LEN,
}

// TypeName returns a readable name for a message type code
func TypeName(code byte) string {
	switch code {
	case protocol.CADDX_INTERFACE_CONFIG_RSP:
		return "interface_config"
	case protocol.CADDX_ZONE_STATUS_RSP:
		return "zone_status"
	case protocol.CADDX_PARTITION_STATUS_RSP:
		return "partition_status"
	case protocol.CADDX_POS_ACK:
		return "ack"
	case protocol.CADDX_NEG_ACK:
		return "nak"
	case protocol.CADDX_MSG_REJECTED:
		return "rejected"
	case protocol.CADDX_INTERFACE_CONFIG_REQ:
		return "interface_config_request"
	case protocol.CADDX_ZONE_STATUS_REQ:
		return "zone_status_request"
	case protocol.CADDX_PARTITION_STATUS_REQ:
		return "partition_status_request"
	case protocol.CADDX_PRIMARY_KEYPAD_PIN, protocol.CADDX_PRIMARY_KEYPAD_NOPIN:
		return "keypad_primary"
	case protocol.CADDX_SECONDARY_KEYPAD:
		return "keypad_secondary"
	case protocol.CADDX_ZONE_BYPASS_TOGGLE:
		return "bypass_toggle"
	}
	return fmt.Sprintf("0x%02X", code)
}

// Ack is a positive acknowledgement
type Ack struct{}

func (*Ack) Type() byte    { return protocol.CADDX_POS_ACK }
func (*Ack) Bytes() []byte { return []byte{protocol.CADDX_POS_ACK} }

// Nak is a negative acknowledgement
type Nak struct{}

func (*Nak) Type() byte    { return protocol.CADDX_NEG_ACK }
func (*Nak) Bytes() []byte { return []byte{protocol.CADDX_NEG_ACK} }

// Rejected is the panel's reply to a command it refuses
type Rejected struct{}

func (*Rejected) Type() byte    { return protocol.CADDX_MSG_REJECTED }
func (*Rejected) Bytes() []byte { return []byte{protocol.CADDX_MSG_REJECTED} }

// InterfaceConfigRequest asks the panel for its interface configuration.
// It doubles as the link's resynchronization probe.
type InterfaceConfigRequest struct{}

func (*InterfaceConfigRequest) Type() byte { return protocol.CADDX_INTERFACE_CONFIG_REQ }
func (*InterfaceConfigRequest) Bytes() []byte {
	return []byte{protocol.CADDX_INTERFACE_CONFIG_REQ}
}

// InterfaceConfigReport is the panel's capability reply
type InterfaceConfigReport struct {
	raw [protocol.CADDX_INTERFACE_CONFIG_RSP_LEN]byte
}

func (m *InterfaceConfigReport) Type() byte    { return protocol.CADDX_INTERFACE_CONFIG_RSP }
func (m *InterfaceConfigReport) Bytes() []byte { return clone(m.raw[:]) }

// Firmware returns the 4-character firmware version
func (m *InterfaceConfigReport) Firmware() string {
	return strings.TrimRight(string(m.raw[1:5]), "\x00 ")
}

// SupportsTransition reports whether the panel sends transition message code.
// Bit n of bytes 5-6 enables message n.
func (m *InterfaceConfigReport) SupportsTransition(code byte) bool {
	if code >= 16 {
		return false
	}
	return m.raw[5+code/8]&(1<<(code%8)) != 0
}

// SupportsCommand reports whether the panel accepts command code.
// Bit n of bytes 7-10 enables message 0x20+n.
func (m *InterfaceConfigReport) SupportsCommand(code byte) bool {
	if code < 0x20 || code >= 0x40 {
		return false
	}
	n := code - 0x20
	return m.raw[7+n/8]&(1<<(n%8)) != 0
}

func (m *InterfaceConfigReport) String() string {
	return fmt.Sprintf("interface config: firmware %q", m.Firmware())
}

// ZoneStatusRequest asks for the status of one zone (0-based)
type ZoneStatusRequest struct {
	Zone byte
}

func (*ZoneStatusRequest) Type() byte { return protocol.CADDX_ZONE_STATUS_REQ }
func (m *ZoneStatusRequest) Bytes() []byte {
	return []byte{protocol.CADDX_ZONE_STATUS_REQ, m.Zone}
}

// PartitionStatusRequest asks for the status of one partition (0-based)
type PartitionStatusRequest struct {
	Partition byte
}

func (*PartitionStatusRequest) Type() byte { return protocol.CADDX_PARTITION_STATUS_REQ }
func (m *PartitionStatusRequest) Bytes() []byte {
	return []byte{protocol.CADDX_PARTITION_STATUS_REQ, m.Partition}
}

// BypassToggleRequest flips the bypass state of one zone (0-based)
type BypassToggleRequest struct {
	Zone byte
}

func (*BypassToggleRequest) Type() byte { return protocol.CADDX_ZONE_BYPASS_TOGGLE }
func (m *BypassToggleRequest) Bytes() []byte {
	return []byte{protocol.CADDX_ZONE_BYPASS_TOGGLE, m.Zone}
}

// KeypadFunctionPrimary runs a primary keypad function (arm, disarm, ...).
// A non-empty PIN selects the with-PIN form; otherwise UserNumber is sent.
type KeypadFunctionPrimary struct {
	PIN        []byte // Digits 0-9, at most 6
	Function   byte   // 0-7
	Partitions byte   // Partition bitmask, bit 0 = partition 1
	UserNumber byte
}

// NewKeypadFunctionPrimary validates the arguments and builds the command.
func NewKeypadFunctionPrimary(function, partitions byte, pin string) (*KeypadFunctionPrimary, error) {
	if function > protocol.CADDX_PRIMARY_MAX {
		return nil, fmt.Errorf("primary keypad function %d out of range 0-%d", function, protocol.CADDX_PRIMARY_MAX)
	}
	if partitions == 0 {
		return nil, fmt.Errorf("partition mask is empty")
	}

	m := &KeypadFunctionPrimary{Function: function, Partitions: partitions}
	if pin == "" {
		return m, nil
	}

	digits, err := ParsePIN(pin)
	if err != nil {
		return nil, err
	}
	m.PIN = digits
	return m, nil
}

func (m *KeypadFunctionPrimary) Type() byte {
	if len(m.PIN) > 0 {
		return protocol.CADDX_PRIMARY_KEYPAD_PIN
	}
	return protocol.CADDX_PRIMARY_KEYPAD_NOPIN
}

func (m *KeypadFunctionPrimary) Bytes() []byte {
	if len(m.PIN) > 0 {
		pin := packPIN(m.PIN)
		return []byte{
			protocol.CADDX_PRIMARY_KEYPAD_PIN,
			pin[0], pin[1], pin[2],
			m.Function & 0x07,
			m.Partitions,
		}
	}
	return []byte{
		protocol.CADDX_PRIMARY_KEYPAD_NOPIN,
		m.Function & 0x07,
		m.Partitions,
		m.UserNumber,
	}
}

// KeypadFunctionSecondary runs a secondary keypad function (chime, panic, ...)
type KeypadFunctionSecondary struct {
	Function   byte // 0-15
	Partitions byte
}

// NewKeypadFunctionSecondary validates the arguments and builds the command.
func NewKeypadFunctionSecondary(function, partitions byte) (*KeypadFunctionSecondary, error) {
	if function > protocol.CADDX_SECONDARY_MAX {
		return nil, fmt.Errorf("secondary keypad function %d out of range 0-%d", function, protocol.CADDX_SECONDARY_MAX)
	}
	if partitions == 0 {
		return nil, fmt.Errorf("partition mask is empty")
	}
	return &KeypadFunctionSecondary{Function: function, Partitions: partitions}, nil
}

func (*KeypadFunctionSecondary) Type() byte { return protocol.CADDX_SECONDARY_KEYPAD }
func (m *KeypadFunctionSecondary) Bytes() []byte {
	return []byte{protocol.CADDX_SECONDARY_KEYPAD, m.Function & 0x0F, m.Partitions}
}

// Unparsed carries a payload with no known fixed layout
type Unparsed struct {
	Code byte
	Raw  []byte
}

func (m *Unparsed) Type() byte    { return m.Code }
func (m *Unparsed) Bytes() []byte { return clone(m.Raw) }

func (m *Unparsed) String() string {
	return fmt.Sprintf("unparsed %s: %s", TypeName(m.Code), hex.EncodeToString(m.Raw))
}

// ParsePIN converts a 4 or 6 digit PIN string to digit values.
func ParsePIN(pin string) ([]byte, error) {
	if len(pin) != 4 && len(pin) != protocol.CADDX_PIN_MAX_DIGITS {
		return nil, fmt.Errorf("PIN must be 4 or 6 digits, got %d", len(pin))
	}
	digits := make([]byte, len(pin))
	for i, c := range pin {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("PIN contains non-digit %q", c)
		}
		digits[i] = byte(c - '0')
	}
	return digits, nil
}

// packPIN stores two digits per byte, first digit in the low nibble.
// Unused trailing digits are zero.
func packPIN(digits []byte) [3]byte {
	var packed [3]byte
	for i, d := range digits {
		if i >= protocol.CADDX_PIN_MAX_DIGITS {
			break
		}
		if i%2 == 0 {
			packed[i/2] |= d & 0x0F
		} else {
			packed[i/2] |= (d & 0x0F) << 4
		}
	}
	return packed
}

func unpackPIN(packed []byte) []byte {
	digits := make([]byte, 0, protocol.CADDX_PIN_MAX_DIGITS)
	for _, b := range packed {
		digits = append(digits, b&0x0F, b>>4)
	}
	return digits
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
