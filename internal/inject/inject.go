package inject

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"inkdex/internal/config"
	"inkdex/internal/fileutil"
	"inkdex/internal/logging"
	"inkdex/internal/notebook"
	"inkdex/internal/recognition"
)

// State tracks how far an injection has progressed. Exposed so callers can
// report where a failed run stopped.
type State string

const (
	StateIdle       State = "idle"
	StateBackedUp   State = "backed_up"
	StateMutated    State = "mutated"
	StateBuilt      State = "built"
	StateValidated  State = "validated"
	StateWritten    State = "written"
	StateDone       State = "done"
	StateRolledBack State = "rolled_back"
)

// Options configures one injector.
type Options struct {
	// BackupDir receives a timestamped copy of the file before any mutation.
	// Empty disables backups; the atomic write still keeps the original
	// intact on failure.
	BackupDir string
	// Language is written to the header recognition-language flag when it
	// differs from the current value. Empty leaves the flag alone.
	Language string
	// RecognitionType is the tri-state header policy: "keep" preserves the
	// current flag, "0" and "1" force it. Any other value is coerced to "1"
	// with a warning.
	RecognitionType string
}

// Update attaches a recognition payload to one zero-based page index.
type Update struct {
	PageIndex int
	Payload   *recognition.Payload
}

// Result reports what an injection changed.
type Result struct {
	// PagesUpdated lists the zero-based indexes that received a payload.
	PagesUpdated []int
	// PagesSkipped lists requested indexes outside the notebook's page range.
	PagesSkipped []int
	// BackupPath is the timestamped copy taken before mutation.
	BackupPath string
	// Written reports whether the file on disk was replaced. False when no
	// update applied and the header needed no change.
	Written bool
}

// Injector runs injections with a fixed policy. Not safe for concurrent use;
// the daemon holds one per worker.
type Injector struct {
	opts   Options
	logger *slog.Logger
	state  State
}

// New constructs an injector. A nil logger falls back to the no-op logger.
func New(opts Options, logger *slog.Logger) *Injector {
	return &Injector{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "inject"),
		state:  StateIdle,
	}
}

// State returns the stage the most recent Run reached.
func (inj *Injector) State() State {
	return inj.state
}

// Run injects the given payloads into the notebook file at path.
//
// When a backup directory is configured, a timestamped copy is taken before
// anything else. Out-of-range page indexes are skipped with a warning, never
// an error. The
// rebuilt container is re-parsed before anything touches the original file;
// if that verification fails the original is left byte-identical. On success
// the file keeps its access time and its modification time is advanced by one
// second past the original, so the device notices the change.
func (inj *Injector) Run(ctx context.Context, path string, updates []Update) (*Result, error) {
	inj.state = StateIdle

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat notebook: %w", err)
	}
	times, err := fileutil.StatTimes(path)
	if err != nil {
		return nil, fmt.Errorf("stat notebook times: %w", err)
	}

	result := &Result{}
	if inj.opts.BackupDir != "" {
		result.BackupPath, err = inj.backup(path)
		if err != nil {
			return nil, err
		}
	}
	inj.state = StateBackedUp

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notebook: %w", err)
	}
	n, err := notebook.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	changed := inj.applyUpdates(n, updates, result)
	if inj.normalizeHeader(n) {
		changed = true
	}
	inj.state = StateMutated

	if !changed {
		inj.logger.Info("nothing to inject; file left untouched",
			logging.String(logging.FieldNotePath, path))
		inj.state = StateDone
		return result, nil
	}

	rebuilt, err := notebook.Reconstruct(n, inj.logger)
	if err != nil {
		inj.state = StateRolledBack
		return nil, fmt.Errorf("verify rebuilt notebook: %w", err)
	}
	inj.state = StateValidated

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := fileutil.WriteFileAtomic(path, rebuilt, info.Mode().Perm()); err != nil {
		inj.rollback(path, result.BackupPath)
		return nil, fmt.Errorf("write notebook: %w", err)
	}
	inj.state = StateWritten

	if err := os.Chtimes(path, times.Access, times.Modify.Add(time.Second)); err != nil {
		return nil, fmt.Errorf("restore notebook times: %w", err)
	}

	result.Written = true
	inj.state = StateDone
	inj.logger.Info("injection complete",
		logging.String(logging.FieldNotePath, path),
		logging.Int("pages_updated", len(result.PagesUpdated)),
		logging.Int("pages_skipped", len(result.PagesSkipped)))
	return result, nil
}

// backup copies the file into the backup directory under a timestamped name,
// preserving the original timestamps on the copy.
func (inj *Injector) backup(path string) (string, error) {
	if err := os.MkdirAll(inj.opts.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := fmt.Sprintf("%s_%s%s.bak", stem, time.Now().Format("20060102_150405"), ext)
	backupPath := filepath.Join(inj.opts.BackupDir, name)
	if err := fileutil.CopyFilePreserveTimes(path, backupPath); err != nil {
		return "", fmt.Errorf("back up notebook: %w", err)
	}
	return backupPath, nil
}

func (inj *Injector) applyUpdates(n *notebook.Notebook, updates []Update, result *Result) bool {
	changed := false
	for _, update := range updates {
		if update.PageIndex < 0 || update.PageIndex >= len(n.Pages) {
			inj.logger.Warn("page index out of range; skipping",
				logging.Int(logging.FieldPage, update.PageIndex),
				logging.Int("page_count", len(n.Pages)))
			result.PagesSkipped = append(result.PagesSkipped, update.PageIndex)
			continue
		}
		if update.Payload == nil {
			continue
		}
		n.Pages[update.PageIndex].RecognitionText = update.Payload
		result.PagesUpdated = append(result.PagesUpdated, update.PageIndex)
		changed = true
	}
	return changed
}

// normalizeHeader applies the language and recognition-type policies and
// reports whether the header changed.
func (inj *Injector) normalizeHeader(n *notebook.Notebook) bool {
	changed := false

	if inj.opts.Language != "" {
		if current, _ := n.Header.Get(notebook.KeyRecognLanguage); current != inj.opts.Language {
			n.Header.Set(notebook.KeyRecognLanguage, inj.opts.Language)
			changed = true
		}
	}

	desired := inj.opts.RecognitionType
	switch desired {
	case config.RecognitionTypeKeep, "":
		return changed
	case notebook.RecognTypeOff, notebook.RecognTypeOn:
	default:
		inj.logger.Warn("unrecognized recognition type; forcing realtime on",
			logging.String("recognition_type", desired))
		desired = notebook.RecognTypeOn
	}
	if current, _ := n.Header.Get(notebook.KeyRecognType); current != desired {
		n.Header.Set(notebook.KeyRecognType, desired)
		changed = true
	}
	return changed
}

// rollback restores the original from its backup after a failed write.
func (inj *Injector) rollback(path, backupPath string) {
	if backupPath == "" {
		// No backup configured. The atomic write replaces the file in one
		// rename, so a failure leaves the original in place.
		inj.state = StateRolledBack
		return
	}
	if err := fileutil.CopyFilePreserveTimes(backupPath, path); err != nil {
		inj.logger.Error("rollback from backup failed",
			logging.String(logging.FieldNotePath, path),
			logging.String("backup_path", backupPath),
			logging.Error(err))
		return
	}
	inj.state = StateRolledBack
	inj.logger.Warn("write failed; original restored from backup",
		logging.String(logging.FieldNotePath, path))
}
