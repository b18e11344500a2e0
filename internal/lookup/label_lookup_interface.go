package lookup

// LabelLookup resolves 1-based zone and partition numbers to names. Both
// the file-based and the database-backed lookups implement it.
type LabelLookup interface {
	ZoneName(zone int) string           // Label, or "zone N" when unknown
	PartitionName(partition int) string // Label, or "partition N" when unknown

	Start() error
	Stop()

	GetEntryCount() uint32
}
