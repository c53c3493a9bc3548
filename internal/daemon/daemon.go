// Package daemon watches a directory of notebook files and runs the
// recognition pipeline over every file that appears or changes, with a
// periodic full rescan as a safety net for missed events.
package daemon

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"inkdex/internal/config"
	"inkdex/internal/logging"
	"inkdex/internal/ocrclient"
	"inkdex/internal/pageimage"
	"inkdex/internal/tracking"
)

const noteExt = ".note"

// Status is an immutable snapshot of daemon state.
type Status struct {
	Running   bool
	OCRReady  bool
	LastScan  time.Time
	Processed int
	Failed    int
	Skipped   int
}

// Daemon owns the watch loop and the processing pipeline.
type Daemon struct {
	cfg       *config.Config
	store     *tracking.Store
	ocr       *ocrclient.Client
	processor *Processor
	logger    *slog.Logger

	mu     sync.Mutex
	status Status
}

// New wires a daemon from configuration. The store stays owned by the caller.
func New(cfg *config.Config, store *tracking.Store, logger *slog.Logger) *Daemon {
	ocr := ocrclient.New(ocrclient.Options{
		BaseURL:     cfg.OCR.BaseURL,
		Timeout:     time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.OCR.MaxAttempts,
	}, logger)
	supplier := pageimage.NewSupplier(cfg.Daemon.ConverterBinary, logger)
	return &Daemon{
		cfg:       cfg,
		store:     store,
		ocr:       ocr,
		processor: NewProcessor(cfg, store, ocr, supplier, logger),
		logger:    logging.NewComponentLogger(logger, "daemon"),
	}
}

// Status returns a snapshot of the daemon's counters.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Daemon) updateStatus(update func(*Status)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	update(&d.status)
}

// Run blocks until the context is canceled. New and modified notebook files
// are processed after a settle delay so partially synced files are not read
// mid-transfer; a periodic rescan covers events the watcher missed.
func (d *Daemon) Run(ctx context.Context) error {
	d.updateStatus(func(s *Status) { s.Running = true })
	defer d.updateStatus(func(s *Status) { s.Running = false })

	stopHealth, err := d.startHealthServer(ctx)
	if err != nil {
		return err
	}
	defer stopHealth()

	if health, err := d.ocr.Health(ctx); err == nil && health.Ready() {
		d.updateStatus(func(s *Status) { s.OCRReady = true })
	} else {
		d.logger.Warn("ocr service not ready at startup; will keep trying per file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(d.cfg.Paths.DataDir); err != nil {
		return err
	}

	settle := time.Duration(d.cfg.Daemon.SettleSeconds) * time.Second
	poll := time.Duration(d.cfg.Daemon.PollIntervalSeconds) * time.Second
	if poll <= 0 {
		poll = 5 * time.Minute
	}

	pollTicker := time.NewTicker(poll)
	defer pollTicker.Stop()
	settleTicker := time.NewTicker(settleCheckInterval(settle))
	defer settleTicker.Stop()

	// pending maps a path to the time of its most recent event; it is drained
	// once the file has been quiet for the settle window.
	pending := make(map[string]time.Time)

	d.scanAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), noteExt) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending[event.Name] = time.Now()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("watcher error", logging.Error(err))
		case <-settleTicker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				d.process(ctx, path)
			}
		case <-pollTicker.C:
			d.scanAll(ctx)
		}
	}
}

func settleCheckInterval(settle time.Duration) time.Duration {
	if settle > 0 && settle < time.Second {
		return settle
	}
	return time.Second
}

// scanAll walks the data directory and processes every notebook file.
// Unchanged files are cheap: a hash lookup against the store.
func (d *Daemon) scanAll(ctx context.Context) {
	d.updateStatus(func(s *Status) { s.LastScan = time.Now() })

	err := filepath.WalkDir(d.cfg.Paths.DataDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), noteExt) {
			return nil
		}
		d.process(ctx, path)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		d.logger.Warn("scan failed", logging.Error(err))
	}
}

func (d *Daemon) process(ctx context.Context, path string) {
	outcome, err := d.processor.ProcessFile(ctx, path)
	if err != nil {
		d.logger.Error("processing failed",
			logging.String(logging.FieldNotePath, path),
			logging.Error(err))
		d.updateStatus(func(s *Status) { s.Failed++ })
		return
	}
	switch {
	case outcome.Status == tracking.StatusSkipped || outcome.Reason == "unchanged":
		d.updateStatus(func(s *Status) { s.Skipped++ })
	default:
		d.updateStatus(func(s *Status) { s.Processed++ })
	}
}
