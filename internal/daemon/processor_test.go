package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"inkdex/internal/config"
	"inkdex/internal/daemon"
	"inkdex/internal/notebook"
	"inkdex/internal/ocrclient"
	"inkdex/internal/pageimage"
	"inkdex/internal/testsupport"
	"inkdex/internal/tracking"
)

func templatePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 64, 64))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// ocrStub serves fixed text blocks and counts recognize calls.
func ocrStub(t *testing.T, text string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_ = json.NewEncoder(w).Encode(map[string]any{"vision_available": true})
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text_blocks": []map[string]any{
				{"text": text, "bbox": []float64{10, 10, 80, 30}, "confidence": 0.9},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newPipeline(t *testing.T, cfg *config.Config, ocrURL string) (*daemon.Processor, *tracking.Store) {
	t.Helper()
	store, err := tracking.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	client := ocrclient.New(ocrclient.Options{BaseURL: ocrURL, MaxAttempts: 1}, nil)
	supplier := pageimage.NewSupplier(cfg.Daemon.ConverterBinary, nil)
	return daemon.NewProcessor(cfg, store, client, supplier, nil), store
}

func TestProcessFileEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Export.TextEnabled = true
	cfg.Export.TextDir = filepath.Join(cfg.Paths.StateDir, "text")

	var calls atomic.Int32
	server := ocrStub(t, "Meeting notes", &calls)
	processor, store := newPipeline(t, cfg, server.URL)

	path := testsupport.WriteNotebookFile(t, cfg.Paths.DataDir, "meeting.note",
		testsupport.WithSharedStyle("white", templatePNG(t)))

	outcome, err := processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if outcome.Status != tracking.StatusCompleted || outcome.PagesUpdated != 2 {
		t.Fatalf("outcome = %+v", outcome)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	n, err := notebook.Parse(data)
	if err != nil {
		t.Fatalf("reparse processed file: %v", err)
	}
	for i, page := range n.Pages {
		if page.RecognitionText == nil || page.RecognitionText.FullText() != "Meeting notes" {
			t.Errorf("page %d recognition = %+v", i+1, page.RecognitionText)
		}
	}

	exported, err := os.ReadFile(filepath.Join(cfg.Export.TextDir, "meeting.txt"))
	if err != nil {
		t.Fatalf("read text export: %v", err)
	}
	if !strings.Contains(string(exported), "--- Page 1 ---") ||
		!strings.Contains(string(exported), "Meeting notes") {
		t.Errorf("export = %q", exported)
	}

	file, err := store.GetByPath(context.Background(), path)
	if err != nil || file == nil {
		t.Fatalf("tracked file = %v (err %v)", file, err)
	}
	if file.Status != tracking.StatusCompleted || file.PagesUpdated != 2 {
		t.Errorf("tracked file = %+v", file)
	}

	// Second pass: the stored hash matches the rewritten bytes, so the file
	// is skipped without calling the recognition service again.
	before := calls.Load()
	outcome, err = processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("second ProcessFile: %v", err)
	}
	if outcome.Reason != "unchanged" {
		t.Errorf("second outcome = %+v", outcome)
	}
	if calls.Load() != before {
		t.Error("recognition service called for an unchanged file")
	}
}

func TestProcessFileKeepsRecognitionForBackgroundDerivedImages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	server := ocrStub(t, "New", nil)
	processor, _ := newPipeline(t, cfg, server.URL)

	path := testsupport.WriteNotebookFile(t, cfg.Paths.DataDir, "partial.note",
		testsupport.WithSharedStyle("white", templatePNG(t)),
		testsupport.WithRecognition(0, testsupport.SamplePayload("Existing")),
	)

	outcome, err := processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if outcome.PagesUpdated != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}

	data, _ := os.ReadFile(path)
	n, err := notebook.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := n.Pages[0].RecognitionText.FullText(); got != "Existing" {
		t.Errorf("page 1 text = %q, want preserved %q", got, "Existing")
	}
	if got := n.Pages[1].RecognitionText.FullText(); got != "New" {
		t.Errorf("page 2 text = %q, want %q", got, "New")
	}
}

func TestProcessFileLogsCarryContextFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	server := ocrStub(t, "noted", nil)

	store, err := tracking.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := ocrclient.New(ocrclient.Options{BaseURL: server.URL, MaxAttempts: 1}, nil)
	supplier := pageimage.NewSupplier("", nil)
	processor := daemon.NewProcessor(cfg, store, client, supplier, logger)

	// Page 1 already carries recognition, so its background-derived image is
	// skipped with a page-scoped log line.
	path := testsupport.WriteNotebookFile(t, cfg.Paths.DataDir, "fields.note",
		testsupport.WithSharedStyle("white", templatePNG(t)),
		testsupport.WithRecognition(0, testsupport.SamplePayload("Existing")),
	)

	if _, err := processor.ProcessFile(context.Background(), path); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	logs := logBuf.String()
	for _, field := range []string{`"note_path":`, `"run_id":`, `"page":`} {
		if !strings.Contains(logs, field) {
			t.Errorf("logs missing %s field:\n%s", field, logs)
		}
	}
}

func TestProcessFileSkipsWhenNoImages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	server := ocrStub(t, "unused", nil)
	processor, store := newPipeline(t, cfg, server.URL)

	// Fixture backgrounds are not PNGs, so the fallback supplier yields nothing.
	path := testsupport.WriteNotebookFile(t, cfg.Paths.DataDir, "noimg.note")

	outcome, err := processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if outcome.Status != tracking.StatusSkipped || outcome.Reason != "no page images" {
		t.Fatalf("outcome = %+v", outcome)
	}

	file, _ := store.GetByPath(context.Background(), path)
	if file == nil || file.Status != tracking.StatusSkipped {
		t.Errorf("tracked file = %+v", file)
	}
}

func TestProcessFileRecordsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	processor, store := newPipeline(t, cfg, server.URL)

	path := testsupport.WriteNotebookFile(t, cfg.Paths.DataDir, "fail.note",
		testsupport.WithSharedStyle("white", templatePNG(t)))

	if _, err := processor.ProcessFile(context.Background(), path); err == nil {
		t.Fatal("expected recognition failure to surface")
	}

	file, _ := store.GetByPath(context.Background(), path)
	if file == nil || file.Status != tracking.StatusFailed {
		t.Fatalf("tracked file = %+v", file)
	}
	if file.ErrorMessage == "" {
		t.Error("expected an error message")
	}
}

func TestDaemonProcessesExistingFilesOnStartup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Daemon.HealthBind = ""
	cfg.Daemon.SettleSeconds = 0
	cfg.Daemon.PollIntervalSeconds = 1

	server := ocrStub(t, "startup", nil)
	cfg.OCR.BaseURL = server.URL

	store, err := tracking.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	testsupport.WriteNotebookFile(t, cfg.Paths.DataDir, "startup.note",
		testsupport.WithSharedStyle("white", templatePNG(t)))

	d := daemon.New(cfg, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.After(10 * time.Second)
	for d.Status().Processed == 0 {
		select {
		case err := <-done:
			t.Fatalf("daemon exited early: %v", err)
		case <-deadline:
			t.Fatal("timed out waiting for the daemon to process the file")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}

	file, _ := store.GetByPath(context.Background(), filepath.Join(cfg.Paths.DataDir, "startup.note"))
	if file == nil || file.Status != tracking.StatusCompleted {
		t.Fatalf("tracked file = %+v", file)
	}
}
