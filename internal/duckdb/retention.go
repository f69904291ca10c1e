package duckdb

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetentionConfig holds configuration for the history retention cleaner.
type RetentionConfig struct {
	RetentionDays int
	Interval      time.Duration
}

// RetentionCleaner periodically deletes dispatch history older than the
// configured retention period.
type RetentionCleaner struct {
	store         *Store
	retentionDays int
	interval      time.Duration
	log           zerolog.Logger
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner runs one cleanup immediately and then one per
// interval. It returns nil when retention is disabled (0 days).
func NewRetentionCleaner(store *Store, cfg RetentionConfig, log zerolog.Logger) *RetentionCleaner {
	if cfg.RetentionDays <= 0 {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	rc := &RetentionCleaner{
		store:         store,
		retentionDays: cfg.RetentionDays,
		interval:      cfg.Interval,
		log:           log.With().Str("component", "retention").Logger(),
		done:          make(chan struct{}),
	}

	// Catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.loop()
	return rc
}

func (rc *RetentionCleaner) loop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := rc.store.now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)

	n, err := rc.store.DeleteDispatchesBefore(context.Background(), cutoff)
	if err != nil {
		rc.log.Error().Err(err).Msg("history cleanup failed")
		return
	}
	if n > 0 {
		rc.log.Info().Int64("runs", n).Int("days", rc.retentionDays).Msg("expired dispatch history deleted")
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
