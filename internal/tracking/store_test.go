package tracking_test

import (
	"context"
	"testing"
	"time"

	"inkdex/internal/testsupport"
	"inkdex/internal/tracking"
)

func TestStartRunInsertsAndUpdates(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()
	modified := time.Now().Add(-time.Hour)

	file, err := store.StartRun(ctx, "/notes/a.note", "hash-1", modified)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if file.Status != tracking.StatusProcessing {
		t.Errorf("status = %s", file.Status)
	}
	if file.LastRunID == "" {
		t.Error("expected a run id")
	}
	if file.ModifiedAt.Unix() != modified.Unix() {
		t.Errorf("modified = %v, want %v", file.ModifiedAt, modified)
	}

	// Re-running the same path updates the row instead of inserting.
	again, err := store.StartRun(ctx, "/notes/a.note", "hash-2", modified)
	if err != nil {
		t.Fatalf("second StartRun: %v", err)
	}
	if again.ID != file.ID {
		t.Errorf("id changed: %d -> %d", file.ID, again.ID)
	}
	if again.ContentHash != "hash-2" {
		t.Errorf("content hash = %q", again.ContentHash)
	}
	if again.LastRunID == file.LastRunID {
		t.Error("expected a fresh run id per run")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()

	file, err := store.StartRun(ctx, "/notes/b.note", "h", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Complete(ctx, file.ID, 3); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := store.GetByPath(ctx, "/notes/b.note")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != tracking.StatusCompleted || got.PagesUpdated != 3 {
		t.Errorf("file = %+v", got)
	}

	if err := store.Fail(ctx, file.ID, "ocr unreachable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ = store.GetByPath(ctx, "/notes/b.note")
	if got.Status != tracking.StatusFailed || got.ErrorMessage != "ocr unreachable" {
		t.Errorf("file = %+v", got)
	}

	if err := store.Complete(ctx, 9999, 0); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestUnchangedDetectsCompletedHash(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()

	if unchanged, err := store.Unchanged(ctx, "/notes/c.note", "h1"); err != nil || unchanged {
		t.Fatalf("untracked file: unchanged=%v err=%v", unchanged, err)
	}

	file, err := store.StartRun(ctx, "/notes/c.note", "h1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	// Still processing: not safe to skip.
	if unchanged, _ := store.Unchanged(ctx, "/notes/c.note", "h1"); unchanged {
		t.Error("processing file should not report unchanged")
	}

	if err := store.Complete(ctx, file.ID, 1); err != nil {
		t.Fatal(err)
	}
	if unchanged, _ := store.Unchanged(ctx, "/notes/c.note", "h1"); !unchanged {
		t.Error("completed file with same hash should report unchanged")
	}
	if unchanged, _ := store.Unchanged(ctx, "/notes/c.note", "h2"); unchanged {
		t.Error("different hash should not report unchanged")
	}
}

func TestPageResultsRoundTrip(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()

	file, err := store.StartRun(ctx, "/notes/d.note", "h", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	results := []tracking.PageResult{
		{PageIndex: 1, LineCount: 2, Text: "second page"},
		{PageIndex: 0, LineCount: 1, Text: "first page", DerivedFromBackground: true},
	}
	for _, result := range results {
		if err := store.RecordPageResult(ctx, file.ID, file.LastRunID, result); err != nil {
			t.Fatalf("RecordPageResult: %v", err)
		}
	}

	got, err := store.PageResults(ctx, file.ID, file.LastRunID)
	if err != nil {
		t.Fatalf("PageResults: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d", len(got))
	}
	if got[0].PageIndex != 0 || !got[0].DerivedFromBackground {
		t.Errorf("first result = %+v", got[0])
	}
	if got[1].Text != "second page" {
		t.Errorf("second result = %+v", got[1])
	}

	// Results from an older run are not returned.
	if other, _ := store.PageResults(ctx, file.ID, "different-run"); len(other) != 0 {
		t.Errorf("unexpected results for foreign run: %v", other)
	}
}

func TestListAndSummary(t *testing.T) {
	store := testsupport.NewStore(t)
	ctx := context.Background()

	a, _ := store.StartRun(ctx, "/notes/a.note", "h", time.Now())
	b, _ := store.StartRun(ctx, "/notes/b.note", "h", time.Now())
	c, _ := store.StartRun(ctx, "/notes/c.note", "h", time.Now())
	_ = store.Complete(ctx, a.ID, 2)
	_ = store.Fail(ctx, b.ID, "boom")
	_ = store.Skip(ctx, c.ID, "no page images")

	files, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 3 || files[0].Path != "/notes/a.note" {
		t.Fatalf("files = %+v", files)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := tracking.Summary{Total: 3, Completed: 1, Failed: 1, Skipped: 1}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}
}
