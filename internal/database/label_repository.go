package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidLabel is returned for labels without an id or a name
var ErrInvalidLabel = errors.New("database: invalid label")

// LabelRepository stores zone and partition names
type LabelRepository struct {
	db *gorm.DB
}

// NewLabelRepository creates a new repository instance
func NewLabelRepository(db *gorm.DB) *LabelRepository {
	return &LabelRepository{db: db}
}

// GetZone returns the label for a 1-based zone number.
// gorm.ErrRecordNotFound is returned when there is none.
func (r *LabelRepository) GetZone(zone uint8) (*ZoneLabel, error) {
	var label ZoneLabel
	if err := r.db.Where("zone = ?", zone).First(&label).Error; err != nil {
		return nil, err
	}
	return &label, nil
}

// GetPartition returns the label for a 1-based partition number
func (r *LabelRepository) GetPartition(partition uint8) (*PartitionLabel, error) {
	var label PartitionLabel
	if err := r.db.Where("partition_number = ?", partition).First(&label).Error; err != nil {
		return nil, err
	}
	return &label, nil
}

// UpsertZone creates or replaces a zone label
func (r *LabelRepository) UpsertZone(label *ZoneLabel) error {
	if label == nil {
		return fmt.Errorf("%w: nil zone label", ErrInvalidLabel)
	}
	label.Name = SanitizeName(label.Name)
	if !label.IsValid() {
		return fmt.Errorf("%w: zone=%d name=%q", ErrInvalidLabel, label.Zone, label.Name)
	}
	label.UpdatedAt = time.Now()
	return r.db.Save(label).Error
}

// UpsertPartition creates or replaces a partition label
func (r *LabelRepository) UpsertPartition(label *PartitionLabel) error {
	if label == nil {
		return fmt.Errorf("%w: nil partition label", ErrInvalidLabel)
	}
	label.Name = SanitizeName(label.Name)
	if !label.IsValid() {
		return fmt.Errorf("%w: partition=%d name=%q", ErrInvalidLabel, label.Partition, label.Name)
	}
	label.UpdatedAt = time.Now()
	return r.db.Save(label).Error
}

// UpsertBatch writes all labels in one transaction, skipping invalid
// entries. It returns the number of labels written.
func (r *LabelRepository) UpsertBatch(zones []ZoneLabel, partitions []PartitionLabel) (int, error) {
	written := 0
	now := time.Now()

	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, label := range zones {
			label.Name = SanitizeName(label.Name)
			if !label.IsValid() {
				continue
			}
			label.UpdatedAt = now
			if err := tx.Save(&label).Error; err != nil {
				return fmt.Errorf("zone %d: %w", label.Zone, err)
			}
			written++
		}
		for _, label := range partitions {
			label.Name = SanitizeName(label.Name)
			if !label.IsValid() {
				continue
			}
			label.UpdatedAt = now
			if err := tx.Save(&label).Error; err != nil {
				return fmt.Errorf("partition %d: %w", label.Partition, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("batch upsert failed: %w", err)
	}
	return written, nil
}

// Count returns the total number of stored labels
func (r *LabelRepository) Count() (int64, error) {
	var zones, partitions int64
	if err := r.db.Model(&ZoneLabel{}).Count(&zones).Error; err != nil {
		return 0, err
	}
	if err := r.db.Model(&PartitionLabel{}).Count(&partitions).Error; err != nil {
		return 0, err
	}
	return zones + partitions, nil
}

// DeleteAll removes every label
func (r *LabelRepository) DeleteAll() error {
	if err := r.db.Where("1 = 1").Delete(&ZoneLabel{}).Error; err != nil {
		return err
	}
	return r.db.Where("1 = 1").Delete(&PartitionLabel{}).Error
}

// HealthCheck pings the underlying connection
func (r *LabelRepository) HealthCheck() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
