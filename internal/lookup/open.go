package lookup

import (
	"fmt"
	"time"

	"github.com/dbehnke/caddxd/internal/config"
	"github.com/dbehnke/caddxd/internal/database"
	"github.com/rs/zerolog/log"
)

// Open builds the label lookup the configuration asks for: the database
// when enabled, else the labels file, else nil. The returned stop func
// releases whatever was opened and is never nil.
func Open(cfg *config.Config) (LabelLookup, func(), error) {
	if cfg.GetDatabaseEnabled() {
		zl := log.Logger.With().Str("component", "db").Logger()
		db, err := database.NewDB(database.Config{Path: cfg.GetDatabasePath()}, &zl)
		if err != nil {
			return nil, func() {}, fmt.Errorf("open label database: %w", err)
		}

		repo := database.NewLabelRepository(db.GetDB())
		d := NewDatabaseLookupWithConfig(repo, DatabaseLookupConfig{
			CacheSize:   cfg.GetDatabaseCacheSize(),
			CacheExpiry: 5 * time.Minute,
		})
		if err := d.Start(); err != nil {
			db.Close()
			return nil, func() {}, err
		}

		log.Info().Uint32("labels", d.GetEntryCount()).Str("path", cfg.GetDatabasePath()).Msg("database labels ready")
		return d, func() {
			d.Stop()
			db.Close()
		}, nil
	}

	if cfg.GetLabelsFile() != "" {
		f := NewFileLookup(cfg.GetLabelsFile(), 0)
		if err := f.Start(); err != nil {
			return nil, func() {}, err
		}
		log.Info().Uint32("labels", f.GetEntryCount()).Str("file", cfg.GetLabelsFile()).Msg("file labels ready")
		return f, f.Stop, nil
	}

	return nil, func() {}, nil
}
