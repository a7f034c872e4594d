package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/sources/pinned"
)

// PinnedReloader handles periodic reloading of the pinned feeds file,
// so edits to the curated list are picked up without a restart.
type PinnedReloader struct {
	loader        *pinned.Loader
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewPinnedReloader creates a new pinned feeds reloader
func NewPinnedReloader(loader *pinned.Loader, log logger.Logger, interval time.Duration, manualTrigger chan struct{}) *PinnedReloader {
	return &PinnedReloader{
		loader:        loader,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads immediately, then begins the periodic reload.
func (pr *PinnedReloader) Start(ctx context.Context) error {
	if err := pr.Reload(); err != nil {
		return fmt.Errorf("initial pinned feeds load failed: %w", err)
	}

	ticker := time.NewTicker(pr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pr.Reload(); err != nil {
					pr.logger.Error("failed to reload pinned feeds",
						logger.Error(err))
				}
			case <-pr.manualTrigger:
				pr.logger.Info("manual pinned feeds reload triggered")
				if err := pr.Reload(); err != nil {
					pr.logger.Error("failed to reload pinned feeds",
						logger.Error(err))
				}
			case <-pr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (pr *PinnedReloader) Stop() {
	close(pr.stopCh)
}

// Reload re-reads the pinned feeds file.
func (pr *PinnedReloader) Reload() error {
	feeds, err := pr.loader.Load()
	if err != nil {
		return err
	}
	pr.logger.Info("loaded pinned feeds",
		logger.Int("count", len(feeds)))
	return nil
}
