package database

import (
	"fmt"
	"strings"
	"time"
)

// maxLabelLength bounds a stored name
const maxLabelLength = 64

// ZoneLabel names one zone. Zone is the 1-based number shown on keypads.
type ZoneLabel struct {
	Zone      uint8     `gorm:"primarykey;autoIncrement:false" json:"zone"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ZoneLabel) TableName() string {
	return "zone_labels"
}

// IsValid checks the label has an id and a name
func (l ZoneLabel) IsValid() bool {
	return l.Zone > 0 && l.Name != ""
}

func (l ZoneLabel) String() string {
	return fmt.Sprintf("zone %d: %s", l.Zone, l.Name)
}

// PartitionLabel names one partition (1-based)
type PartitionLabel struct {
	Partition uint8     `gorm:"column:partition_number;primarykey;autoIncrement:false" json:"partition"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PartitionLabel) TableName() string {
	return "partition_labels"
}

// IsValid checks the label has an id and a name
func (l PartitionLabel) IsValid() bool {
	return l.Partition > 0 && l.Name != ""
}

func (l PartitionLabel) String() string {
	return fmt.Sprintf("partition %d: %s", l.Partition, l.Name)
}

// SanitizeName collapses whitespace and truncates to the column size.
func SanitizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if len(name) > maxLabelLength {
		name = name[:maxLabelLength]
	}
	return name
}
