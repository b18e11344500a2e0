package caddx

import (
	"fmt"
	"strings"

	"github.com/dbehnke/caddxd/internal/protocol"
)

// ZoneFlag addresses one bit of a zone status payload: the byte offset sits
// in the high byte and the bit mask in the low byte.
type ZoneFlag uint16

// Zone partition membership (byte 2)
const (
	ZonePartition1 ZoneFlag = 2<<8 | 1<<iota
	ZonePartition2
	ZonePartition3
	ZonePartition4
	ZonePartition5
	ZonePartition6
	ZonePartition7
	ZonePartition8
)

// Zone type flags (bytes 3-5)
const (
	ZoneFire ZoneFlag = 3<<8 | 1<<iota
	Zone24Hour
	ZoneKeySwitch
	ZoneFollower
	ZoneEntryExitDelay1
	ZoneEntryExitDelay2
	ZoneInterior
	ZoneLocalOnly
)

const (
	ZoneKeypadSounder ZoneFlag = 4<<8 | 1<<iota
	ZoneYelpingSiren
	ZoneSteadySiren
	ZoneChime
	ZoneBypassable
	ZoneGroupBypassable
	ZoneForceArmable
	ZoneEntryGuard
)

const (
	ZoneFastLoopResponse ZoneFlag = 5<<8 | 1<<iota
	ZoneDoubleEOLTamper
	ZoneTroubleType
	ZoneCrossZone
	ZoneDialerDelay
	ZoneSwingerShutdown
	ZoneRestorable
	ZoneListenIn
)

// Zone condition flags (bytes 6-7)
const (
	ZoneFaulted ZoneFlag = 6<<8 | 1<<iota
	ZoneTampered
	ZoneTrouble
	ZoneBypassed
	ZoneInhibited
	ZoneLowBattery
	ZoneLossOfSupervision
)

const (
	ZoneAlarmMemory ZoneFlag = 7<<8 | 1<<iota
	ZoneBypassMemory
)

// ZoneStatusReport describes one zone
type ZoneStatusReport struct {
	raw [protocol.CADDX_ZONE_STATUS_RSP_LEN]byte
}

func (m *ZoneStatusReport) Type() byte    { return protocol.CADDX_ZONE_STATUS_RSP }
func (m *ZoneStatusReport) Bytes() []byte { return clone(m.raw[:]) }

// Zone returns the 0-based zone number
func (m *ZoneStatusReport) Zone() byte { return m.raw[1] }

// PartitionMask returns the partitions the zone belongs to, bit 0 = partition 1
func (m *ZoneStatusReport) PartitionMask() byte { return m.raw[2] }

// Flag reports whether f is set
func (m *ZoneStatusReport) Flag(f ZoneFlag) bool {
	return m.raw[f>>8]&byte(f) != 0
}

func (m *ZoneStatusReport) Faulted() bool  { return m.Flag(ZoneFaulted) }
func (m *ZoneStatusReport) Tampered() bool { return m.Flag(ZoneTampered) }
func (m *ZoneStatusReport) Trouble() bool  { return m.Flag(ZoneTrouble) }
func (m *ZoneStatusReport) Bypassed() bool { return m.Flag(ZoneBypassed) }

// Active reports a faulted, tampered or troubled zone
func (m *ZoneStatusReport) Active() bool {
	return m.Faulted() || m.Tampered() || m.Trouble()
}

func (m *ZoneStatusReport) String() string {
	var conds []string
	for _, c := range []struct {
		flag ZoneFlag
		name string
	}{
		{ZoneFaulted, "faulted"},
		{ZoneTampered, "tampered"},
		{ZoneTrouble, "trouble"},
		{ZoneBypassed, "bypassed"},
		{ZoneInhibited, "inhibited"},
		{ZoneLowBattery, "low_battery"},
		{ZoneLossOfSupervision, "lost_supervision"},
		{ZoneAlarmMemory, "alarm_memory"},
	} {
		if m.Flag(c.flag) {
			conds = append(conds, c.name)
		}
	}
	if len(conds) == 0 {
		conds = append(conds, "normal")
	}
	return fmt.Sprintf("zone %d: %s", int(m.Zone())+1, strings.Join(conds, ","))
}

// PartitionFlag addresses one bit of a partition status payload, laid out
// like ZoneFlag.
type PartitionFlag uint16

// Partition condition flags 1-4 (bytes 2-5)
const (
	PartitionBypassCodeRequired PartitionFlag = 2<<8 | 1<<iota
	PartitionFireTrouble
	PartitionFire
	PartitionPulsingBuzzer
	PartitionTLMFaultMemory
	_
	PartitionArmed
	PartitionInstant
)

const (
	PartitionPreviousAlarm PartitionFlag = 3<<8 | 1<<iota
	PartitionSirenOn
	PartitionSteadySirenOn
	PartitionAlarmMemory
	PartitionTamper
	PartitionCancelCommandEntered
	PartitionCodeEntered
	PartitionCancelPending
)

const (
	_ PartitionFlag = 4<<8 | 1<<iota
	PartitionSilentExitEnabled
	PartitionEntryGuard
	PartitionChimeModeOn
	PartitionEntry
	PartitionDelayExpirationWarning
	PartitionExit1
	PartitionExit2
)

const (
	PartitionLEDExtinguish PartitionFlag = 5<<8 | 1<<iota
	PartitionCrossTiming
	PartitionRecentClosingBeingTimed
	_
	PartitionExitErrorTriggered
	PartitionAutoHomeInhibited
	PartitionSensorLowBattery
	PartitionSensorLostSupervision
)

// Partition condition flags 5-6 (bytes 7-8); byte 6 is the last user number
const (
	PartitionZoneBypassed PartitionFlag = 7<<8 | 1<<iota
	PartitionForceArmTriggeredByAutoArm
	PartitionReadyToArm
	PartitionReadyToForceArm
	PartitionValidPINAccepted
	PartitionChimeOn
	PartitionErrorBeep
	PartitionToneOn
)

const (
	PartitionEntry1 PartitionFlag = 8<<8 | 1<<iota
	PartitionOpenPeriod
	PartitionAlarmSentUsingPhone1
	PartitionAlarmSentUsingPhone2
	PartitionAlarmSentUsingPhone3
	PartitionCancelReportInStack
	PartitionKeyswitchArmed
	PartitionDelayTripInProgress
)

// PartitionStatusReport describes one partition
type PartitionStatusReport struct {
	raw [protocol.CADDX_PARTITION_STATUS_RSP_LEN]byte
}

func (m *PartitionStatusReport) Type() byte    { return protocol.CADDX_PARTITION_STATUS_RSP }
func (m *PartitionStatusReport) Bytes() []byte { return clone(m.raw[:]) }

// Partition returns the 0-based partition number
func (m *PartitionStatusReport) Partition() byte { return m.raw[1] }

// LastUser returns the last user number that operated the partition
func (m *PartitionStatusReport) LastUser() byte { return m.raw[6] }

// Flag reports whether f is set
func (m *PartitionStatusReport) Flag(f PartitionFlag) bool {
	return m.raw[f>>8]&byte(f) != 0
}

func (m *PartitionStatusReport) Armed() bool      { return m.Flag(PartitionArmed) }
func (m *PartitionStatusReport) SirenOn() bool    { return m.Flag(PartitionSirenOn) }
func (m *PartitionStatusReport) ReadyToArm() bool { return m.Flag(PartitionReadyToArm) }

// Entry and Exit report running entry/exit delay timers
func (m *PartitionStatusReport) Entry() bool { return m.Flag(PartitionEntry) }
func (m *PartitionStatusReport) Exit() bool {
	return m.Flag(PartitionExit1) || m.Flag(PartitionExit2)
}

func (m *PartitionStatusReport) String() string {
	state := "disarmed"
	if m.Armed() {
		state = "armed"
	}
	var extra []string
	if m.SirenOn() {
		extra = append(extra, "siren")
	}
	if m.Entry() {
		extra = append(extra, "entry")
	}
	if m.Exit() {
		extra = append(extra, "exit")
	}
	if m.ReadyToArm() {
		extra = append(extra, "ready")
	}
	s := fmt.Sprintf("partition %d: %s, last user %d", int(m.Partition())+1, state, m.LastUser())
	if len(extra) > 0 {
		s += " [" + strings.Join(extra, ",") + "]"
	}
	return s
}
