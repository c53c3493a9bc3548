package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"inkdex/internal/config"
	"inkdex/internal/fileutil"
	"inkdex/internal/inject"
	"inkdex/internal/logging"
	"inkdex/internal/notebook"
	"inkdex/internal/ocrclient"
	"inkdex/internal/pageimage"
	"inkdex/internal/recognition"
	"inkdex/internal/tracking"
)

// Outcome reports what processing one file did.
type Outcome struct {
	Path         string
	Status       tracking.Status
	Reason       string
	PagesUpdated int
}

// Processor runs the full recognition pipeline for one notebook file: render
// page images, recognize each page, and inject the results back into the
// file. Safe to reuse across files; not safe for concurrent use.
type Processor struct {
	cfg      *config.Config
	store    *tracking.Store
	ocr      *ocrclient.Client
	supplier pageimage.Supplier
	logger   *slog.Logger
}

// NewProcessor wires the pipeline. A nil logger falls back to the no-op
// logger.
func NewProcessor(cfg *config.Config, store *tracking.Store, ocr *ocrclient.Client, supplier pageimage.Supplier, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		store:    store,
		ocr:      ocr,
		supplier: supplier,
		logger:   logging.NewComponentLogger(logger, "processor"),
	}
}

// ProcessFile runs the pipeline for path. Files that are unchanged since
// their last completed run, or currently locked by another process, are
// skipped without touching the store's completed state.
func (p *Processor) ProcessFile(ctx context.Context, path string) (*Outcome, error) {
	ctx = logging.WithNotePath(ctx, path)
	logger := logging.WithContext(ctx, p.logger)

	hash, err := fileutil.HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hash notebook: %w", err)
	}
	unchanged, err := p.store.Unchanged(ctx, path, hash)
	if err != nil {
		return nil, err
	}
	if unchanged {
		logger.Debug("content unchanged since last run; skipping")
		return &Outcome{Path: path, Status: tracking.StatusCompleted, Reason: "unchanged"}, nil
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock notebook: %w", err)
	}
	if !locked {
		logger.Info("notebook locked by another process; skipping")
		return &Outcome{Path: path, Status: tracking.StatusSkipped, Reason: "locked"}, nil
	}
	defer func() {
		_ = lock.Unlock()
	}()

	times, err := fileutil.StatTimes(path)
	if err != nil {
		return nil, fmt.Errorf("stat notebook: %w", err)
	}
	file, err := p.store.StartRun(ctx, path, hash, times.Modify)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithRunID(ctx, file.LastRunID)
	logger = logging.WithContext(ctx, p.logger)

	outcome, err := p.run(ctx, logger, file, path)
	if err != nil {
		if failErr := p.store.Fail(ctx, file.ID, err.Error()); failErr != nil {
			logger.Error("record failure", logging.Error(failErr))
		}
		return nil, err
	}
	return outcome, nil
}

func (p *Processor) run(ctx context.Context, logger *slog.Logger, file *tracking.NoteFile, path string) (*Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notebook: %w", err)
	}
	n, err := notebook.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse notebook: %w", err)
	}

	images, err := p.supplier.Pages(ctx, path, n)
	if errors.Is(err, pageimage.ErrNoImages) {
		logger.Info("no page images available; skipping file")
		if err := p.store.Skip(ctx, file.ID, "no page images"); err != nil {
			return nil, err
		}
		return &Outcome{Path: path, Status: tracking.StatusSkipped, Reason: "no page images"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("render pages: %w", err)
	}

	var updates []inject.Update
	for _, image := range images {
		if image.Index >= len(n.Pages) {
			continue
		}
		page := n.Pages[image.Index]
		pageLogger := logging.WithContext(logging.WithPage(ctx, image.Index), p.logger)
		if image.DerivedFromBackground && page.HasRecognitionText() {
			// A template-derived image would only overwrite real ink
			// recognition with background noise.
			pageLogger.Debug("keeping existing recognition for background-derived image")
			continue
		}

		blocks, err := p.ocr.RecognizePage(ctx, image.PNG)
		if err != nil {
			return nil, fmt.Errorf("recognize page %d: %w", image.Index+1, err)
		}
		lines := recognition.GroupIntoLines(blocks)
		if len(lines) == 0 {
			pageLogger.Debug("page produced no text")
			continue
		}
		payload := recognition.Encode(lines)
		updates = append(updates, inject.Update{PageIndex: image.Index, Payload: payload})

		if err := p.store.RecordPageResult(ctx, file.ID, file.LastRunID, tracking.PageResult{
			PageIndex:             image.Index,
			LineCount:             payload.LineCount(),
			Text:                  payload.FullText(),
			DerivedFromBackground: image.DerivedFromBackground,
		}); err != nil {
			return nil, err
		}
	}

	pagesUpdated := 0
	if len(updates) > 0 {
		injector := inject.New(inject.Options{
			BackupDir:       p.cfg.Paths.BackupDir,
			Language:        p.cfg.Recognition.Language,
			RecognitionType: p.cfg.Recognition.Type,
		}, p.logger)
		result, err := injector.Run(ctx, path, updates)
		if err != nil {
			return nil, fmt.Errorf("inject recognition: %w", err)
		}
		pagesUpdated = len(result.PagesUpdated)

		if result.Written {
			// The injection rewrote the bytes; record the new content so the
			// next scan sees the file as unchanged.
			newHash, err := fileutil.HashFile(path)
			if err != nil {
				return nil, fmt.Errorf("rehash notebook: %w", err)
			}
			newTimes, err := fileutil.StatTimes(path)
			if err != nil {
				return nil, fmt.Errorf("restat notebook: %w", err)
			}
			if err := p.store.UpdateContent(ctx, file.ID, newHash, newTimes.Modify); err != nil {
				return nil, err
			}
		}
	}

	if p.cfg.Export.TextEnabled {
		if err := p.exportText(ctx, file, path); err != nil {
			logger.Warn("text export failed", logging.Error(err))
		}
	}

	if err := p.store.Complete(ctx, file.ID, pagesUpdated); err != nil {
		return nil, err
	}
	logger.Info("notebook processed", logging.Int("pages_updated", pagesUpdated))
	return &Outcome{Path: path, Status: tracking.StatusCompleted, PagesUpdated: pagesUpdated}, nil
}

// exportText writes the run's recognized text to <stem>.txt in the export
// directory, one page per section.
func (p *Processor) exportText(ctx context.Context, file *tracking.NoteFile, path string) error {
	results, err := p.store.PageResults(ctx, file.ID, file.LastRunID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}
	if err := os.MkdirAll(p.cfg.Export.TextDir, 0o755); err != nil {
		return err
	}

	var sb strings.Builder
	for i, result := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n", result.PageIndex+1)
		sb.WriteString(result.Text)
	}
	sb.WriteString("\n")

	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	target := filepath.Join(p.cfg.Export.TextDir, stem+".txt")
	return fileutil.WriteFileAtomic(target, []byte(sb.String()), 0o644)
}
