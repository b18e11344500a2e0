package lookup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dbehnke/caddxd/internal/database"
	"github.com/dbehnke/caddxd/internal/protocol"
	"github.com/rs/zerolog/log"
)

// FileLookup serves labels from a text file with lines of the form
//
//	zone 3 Back Door
//	partition 1 House
//
// Blank lines and lines starting with # are ignored. With a reload
// interval the file is re-read in the background.
type FileLookup struct {
	filename   string
	reloadTime time.Duration

	zones      map[int]string
	partitions map[int]string

	mutex sync.RWMutex

	stopChan chan struct{}
	doneChan chan struct{}
	running  bool

	lastReloadTime time.Time
	reloadCount    uint32
	errorCount     uint32
}

// ZoneFallback is the name used for zones without a label
func ZoneFallback(zone int) string {
	return fmt.Sprintf("zone %d", zone)
}

// PartitionFallback is the name used for partitions without a label
func PartitionFallback(partition int) string {
	return fmt.Sprintf("partition %d", partition)
}

// NewFileLookup creates a lookup over filename. reloadTime 0 disables
// background reloads.
func NewFileLookup(filename string, reloadTime time.Duration) *FileLookup {
	return &FileLookup{
		filename:   filename,
		reloadTime: reloadTime,
		zones:      make(map[int]string),
		partitions: make(map[int]string),
	}
}

// Labels is the parsed content of a labels file
type Labels struct {
	Zones      map[int]string
	Partitions map[int]string
}

// ZoneLabels converts the zone entries to database rows
func (l Labels) ZoneLabels() []database.ZoneLabel {
	out := make([]database.ZoneLabel, 0, len(l.Zones))
	for id, name := range l.Zones {
		out = append(out, database.ZoneLabel{Zone: uint8(id), Name: name})
	}
	return out
}

// PartitionLabels converts the partition entries to database rows
func (l Labels) PartitionLabels() []database.PartitionLabel {
	out := make([]database.PartitionLabel, 0, len(l.Partitions))
	for id, name := range l.Partitions {
		out = append(out, database.PartitionLabel{Partition: uint8(id), Name: name})
	}
	return out
}

// ParseLabels reads a labels file. Malformed lines are skipped and logged
// at debug; only I/O errors are returned.
func ParseLabels(r io.Reader) (Labels, error) {
	labels := Labels{
		Zones:      make(map[int]string),
		Partitions: make(map[int]string),
	}

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			log.Debug().Int("line", lineNumber).Str("text", line).Msg("skipping short label line")
			continue
		}

		id, err := strconv.Atoi(fields[1])
		if err != nil || id < 1 {
			log.Debug().Int("line", lineNumber).Str("id", fields[1]).Msg("skipping label with bad number")
			continue
		}

		name := database.SanitizeName(strings.Join(fields[2:], " "))

		switch strings.ToLower(fields[0]) {
		case "zone":
			if id > protocol.CADDX_MAX_ZONES {
				log.Debug().Int("line", lineNumber).Int("zone", id).Msg("zone out of range")
				continue
			}
			labels.Zones[id] = name
		case "partition":
			if id > protocol.CADDX_MAX_PARTITIONS {
				log.Debug().Int("line", lineNumber).Int("partition", id).Msg("partition out of range")
				continue
			}
			labels.Partitions[id] = name
		default:
			log.Debug().Int("line", lineNumber).Str("kind", fields[0]).Msg("skipping unknown label kind")
		}
	}

	if err := scanner.Err(); err != nil {
		return labels, fmt.Errorf("read labels: %w", err)
	}
	return labels, nil
}

// Read loads the labels file, replacing the current entries
func (f *FileLookup) Read() error {
	file, err := os.Open(f.filename)
	if err != nil {
		f.recordError()
		return fmt.Errorf("open labels file %s: %w", f.filename, err)
	}
	defer file.Close()

	labels, err := ParseLabels(file)
	if err != nil {
		f.recordError()
		return err
	}

	f.mutex.Lock()
	f.zones = labels.Zones
	f.partitions = labels.Partitions
	f.lastReloadTime = time.Now()
	f.reloadCount++
	f.mutex.Unlock()

	log.Debug().
		Str("file", f.filename).
		Int("zones", len(labels.Zones)).
		Int("partitions", len(labels.Partitions)).
		Msg("labels loaded")
	return nil
}

// ZoneName returns the zone's label
func (f *FileLookup) ZoneName(zone int) string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if name, ok := f.zones[zone]; ok {
		return name
	}
	return ZoneFallback(zone)
}

// PartitionName returns the partition's label
func (f *FileLookup) PartitionName(partition int) string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if name, ok := f.partitions[partition]; ok {
		return name
	}
	return PartitionFallback(partition)
}

// Start loads the file and, with a reload interval, starts the
// background reloader.
func (f *FileLookup) Start() error {
	if err := f.Read(); err != nil {
		return fmt.Errorf("initial labels load failed: %w", err)
	}

	if f.reloadTime <= 0 {
		return nil
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if !f.running {
		f.running = true
		f.stopChan = make(chan struct{})
		f.doneChan = make(chan struct{})
		go f.reloadLoop(f.stopChan, f.doneChan)
	}
	return nil
}

// Stop stops the background reloader and waits for it to exit
func (f *FileLookup) Stop() {
	f.mutex.Lock()
	if !f.running {
		f.mutex.Unlock()
		return
	}
	f.running = false
	stop, done := f.stopChan, f.doneChan
	f.mutex.Unlock()

	close(stop)
	<-done
}

func (f *FileLookup) reloadLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.reloadTime)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := f.Read(); err != nil {
				log.Warn().Err(err).Msg("labels reload failed")
			}
		}
	}
}

// IsRunning reports whether the background reloader is active
func (f *FileLookup) IsRunning() bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.running
}

// GetEntryCount returns the number of loaded labels
func (f *FileLookup) GetEntryCount() uint32 {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return uint32(len(f.zones) + len(f.partitions))
}

// GetStats returns reload statistics
func (f *FileLookup) GetStats() (reloadCount, errorCount uint32, lastReload time.Time) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.reloadCount, f.errorCount, f.lastReloadTime
}

// GetFilename returns the labels file path
func (f *FileLookup) GetFilename() string {
	return f.filename
}

func (f *FileLookup) recordError() {
	f.mutex.Lock()
	f.errorCount++
	f.mutex.Unlock()
}
