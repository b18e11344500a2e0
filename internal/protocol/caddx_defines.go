package protocol

// CADDX NX serial protocol constants

const (
	// Framing
	CADDX_START_BYTE  = 0x7E // Start of frame marker
	CADDX_ESCAPE_BYTE = 0x7D // Escape lead byte (start marker - 1)
	CADDX_ESCAPE_XOR  = 0x20 // Mask applied to an escaped byte

	CADDX_FRAME_OVERHEAD = 3   // Length byte + 2 checksum bytes (start marker is not buffered)
	CADDX_BUFFER_LENGTH  = 128 // Receive buffer capacity
	CADDX_MAX_PAYLOAD    = CADDX_BUFFER_LENGTH - CADDX_FRAME_OVERHEAD

	// Message header bits
	CADDX_MSG_TYPE_MASK = 0x3F // Low 6 bits carry the message type
	CADDX_MSG_RESERVED  = 0x40 // Reserved bit
	CADDX_ACK_REQ       = 0x80 // Acknowledgement requested
)

// Transition messages (panel to interface)
const (
	CADDX_INTERFACE_CONFIG_RSP = 0x01
	CADDX_ZONE_STATUS_RSP      = 0x04
	CADDX_PARTITION_STATUS_RSP = 0x06
	CADDX_POS_ACK              = 0x1D
	CADDX_NEG_ACK              = 0x1E
	CADDX_MSG_REJECTED         = 0x1F
)

// Command and request messages (interface to panel)
const (
	CADDX_INTERFACE_CONFIG_REQ = 0x21
	CADDX_ZONE_STATUS_REQ      = 0x24
	CADDX_PARTITION_STATUS_REQ = 0x26
	CADDX_PRIMARY_KEYPAD_PIN   = 0x3C
	CADDX_PRIMARY_KEYPAD_NOPIN = 0x3D
	CADDX_SECONDARY_KEYPAD     = 0x3E
	CADDX_ZONE_BYPASS_TOGGLE   = 0x3F
)

// Fixed payload lengths, header byte included
const (
	CADDX_INTERFACE_CONFIG_RSP_LEN = 11
	CADDX_ZONE_STATUS_RSP_LEN      = 8
	CADDX_PARTITION_STATUS_RSP_LEN = 9
	CADDX_ACK_LEN                  = 1
	CADDX_INTERFACE_CONFIG_REQ_LEN = 1
	CADDX_ZONE_STATUS_REQ_LEN      = 2
	CADDX_PARTITION_STATUS_REQ_LEN = 2
	CADDX_PRIMARY_KEYPAD_PIN_LEN   = 6
	CADDX_PRIMARY_KEYPAD_NOPIN_LEN = 4
	CADDX_SECONDARY_KEYPAD_LEN     = 3
	CADDX_ZONE_BYPASS_TOGGLE_LEN   = 2
)

// Primary keypad functions
const (
	CADDX_PRIMARY_TURN_OFF_SOUNDER = 0
	CADDX_PRIMARY_DISARM           = 1
	CADDX_PRIMARY_ARM_AWAY         = 2
	CADDX_PRIMARY_ARM_STAY         = 3
	CADDX_PRIMARY_CANCEL           = 4
	CADDX_PRIMARY_AUTO_ARM         = 5
	CADDX_PRIMARY_START_WALK_TEST  = 6
	CADDX_PRIMARY_STOP_WALK_TEST   = 7
	CADDX_PRIMARY_MAX              = 7
)

// Secondary keypad functions
const (
	CADDX_SECONDARY_STAY             = 0
	CADDX_SECONDARY_CHIME            = 1
	CADDX_SECONDARY_EXIT             = 2
	CADDX_SECONDARY_BYPASS_INTERIORS = 3
	CADDX_SECONDARY_FIRE_PANIC       = 4
	CADDX_SECONDARY_MEDICAL_PANIC    = 5
	CADDX_SECONDARY_POLICE_PANIC     = 6
	CADDX_SECONDARY_SMOKE_RESET      = 7
	CADDX_SECONDARY_AUTO_CALLBACK    = 8
	CADDX_SECONDARY_MANUAL_PICKUP    = 9
	CADDX_SECONDARY_SILENT_EXIT      = 10
	CADDX_SECONDARY_PERFORM_TEST     = 11
	CADDX_SECONDARY_GROUP_BYPASS     = 12
	CADDX_SECONDARY_AUX1             = 13
	CADDX_SECONDARY_AUX2             = 14
	CADDX_SECONDARY_KEYPAD_SOUNDER   = 15
	CADDX_SECONDARY_MAX              = 15
)

const (
	CADDX_PIN_MAX_DIGITS = 6
	CADDX_MAX_PARTITIONS = 8
	CADDX_MAX_ZONES      = 192

	DEFAULT_SERIAL_DEVICE = "/dev/ttyUSB0"
	DEFAULT_BAUD_RATE     = 38400
	DEFAULT_LISTEN_ADDR   = "127.0.0.1:1587"
)
