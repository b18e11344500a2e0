package lookup

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dbehnke/caddxd/internal/database"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// DatabaseLookup serves labels from the label database, keeping recent
// answers in memory.
type DatabaseLookup struct {
	repository *database.LabelRepository

	mutex       sync.Mutex
	lookupCount uint32
	hitCount    uint32
	missCount   uint32
	errorCount  uint32

	cacheSize      int
	cacheExpiry    time.Duration
	zoneCache      map[int]string
	partitionCache map[int]string
	lastClearTime  time.Time
}

// DatabaseLookupConfig holds the cache options. CacheSize 0 disables the cache.
type DatabaseLookupConfig struct {
	CacheSize   int
	CacheExpiry time.Duration
}

// NewDatabaseLookup creates a lookup with a 256 entry, 5 minute cache
func NewDatabaseLookup(repository *database.LabelRepository) *DatabaseLookup {
	return NewDatabaseLookupWithConfig(repository, DatabaseLookupConfig{
		CacheSize:   256,
		CacheExpiry: 5 * time.Minute,
	})
}

// NewDatabaseLookupWithConfig creates a lookup with custom cache options
func NewDatabaseLookupWithConfig(repository *database.LabelRepository, config DatabaseLookupConfig) *DatabaseLookup {
	return &DatabaseLookup{
		repository:     repository,
		cacheSize:      config.CacheSize,
		cacheExpiry:    config.CacheExpiry,
		zoneCache:      make(map[int]string),
		partitionCache: make(map[int]string),
		lastClearTime:  time.Now(),
	}
}

// ZoneName returns the zone's label
func (d *DatabaseLookup) ZoneName(zone int) string {
	if name, ok := d.cached(d.zoneCache, zone); ok {
		return name
	}

	name := ZoneFallback(zone)
	if zone >= 1 && zone <= 0xFF {
		label, err := d.repository.GetZone(uint8(zone))
		if d.record(err, "zone", zone) {
			name = label.Name
		}
	}

	d.store(d.zoneCache, zone, name)
	return name
}

// PartitionName returns the partition's label
func (d *DatabaseLookup) PartitionName(partition int) string {
	if name, ok := d.cached(d.partitionCache, partition); ok {
		return name
	}

	name := PartitionFallback(partition)
	if partition >= 1 && partition <= 0xFF {
		label, err := d.repository.GetPartition(uint8(partition))
		if d.record(err, "partition", partition) {
			name = label.Name
		}
	}

	d.store(d.partitionCache, partition, name)
	return name
}

// Start validates the database connection
func (d *DatabaseLookup) Start() error {
	if err := d.repository.HealthCheck(); err != nil {
		return fmt.Errorf("database connection check failed: %w", err)
	}

	count, err := d.repository.Count()
	if err != nil {
		return fmt.Errorf("failed to get initial label count: %w", err)
	}

	log.Debug().Int64("labels", count).Msg("database lookup started")
	return nil
}

// Stop drops the cache
func (d *DatabaseLookup) Stop() {
	d.clearCache()
}

// GetEntryCount returns the number of stored labels
func (d *DatabaseLookup) GetEntryCount() uint32 {
	count, err := d.repository.Count()
	if err != nil {
		log.Debug().Err(err).Msg("label count failed")
		return 0
	}
	return uint32(count)
}

// GetStats returns lookup statistics
func (d *DatabaseLookup) GetStats() (lookups, hits, misses, failures uint32) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.lookupCount, d.hitCount, d.missCount, d.errorCount
}

// record counts one database answer and reports whether it was a hit
func (d *DatabaseLookup) record(err error, kind string, id int) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	switch {
	case err == nil:
		d.hitCount++
		return true
	case errors.Is(err, gorm.ErrRecordNotFound):
		d.missCount++
	default:
		d.errorCount++
		log.Debug().Err(err).Str("kind", kind).Int("id", id).Msg("label lookup failed")
	}
	return false
}

func (d *DatabaseLookup) cached(cache map[int]string, id int) (string, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.lookupCount++
	if d.cacheSize <= 0 {
		return "", false
	}
	d.clearExpiredCache()

	name, ok := cache[id]
	if ok {
		d.hitCount++
	}
	return name, ok
}

func (d *DatabaseLookup) store(cache map[int]string, id int, name string) {
	if d.cacheSize <= 0 {
		return
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(cache) >= d.cacheSize {
		// Simple eviction: drop half
		for k := range cache {
			delete(cache, k)
			if len(cache) <= d.cacheSize/2 {
				break
			}
		}
	}
	cache[id] = name
}

func (d *DatabaseLookup) clearCache() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	clear(d.zoneCache)
	clear(d.partitionCache)
	d.lastClearTime = time.Now()
}

func (d *DatabaseLookup) clearExpiredCache() {
	if d.cacheExpiry > 0 && time.Since(d.lastClearTime) > d.cacheExpiry {
		clear(d.zoneCache)
		clear(d.partitionCache)
		d.lastClearTime = time.Now()
	}
}
