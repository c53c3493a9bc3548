package inject_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"inkdex/internal/fileutil"
	"inkdex/internal/inject"
	"inkdex/internal/notebook"
	"inkdex/internal/testsupport"
)

func newInjector(t *testing.T, opts inject.Options) (*inject.Injector, string) {
	t.Helper()
	if opts.BackupDir == "" {
		opts.BackupDir = t.TempDir()
	}
	return inject.New(opts, nil), opts.BackupDir
}

func TestRunInjectsRecognition(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteNotebookFile(t, dir, "meeting.note")
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	originalTimes, err := fileutil.StatTimes(path)
	if err != nil {
		t.Fatal(err)
	}

	inj, backupDir := newInjector(t, inject.Options{
		Language:        "en_US",
		RecognitionType: "1",
	})
	updates := []inject.Update{{PageIndex: 0, Payload: testsupport.SamplePayload()}}

	result, err := inj.Run(context.Background(), path, updates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Written {
		t.Fatal("expected file to be rewritten")
	}
	if len(result.PagesUpdated) != 1 || result.PagesUpdated[0] != 0 {
		t.Fatalf("PagesUpdated = %v", result.PagesUpdated)
	}
	if inj.State() != inject.StateDone {
		t.Errorf("state = %s, want %s", inj.State(), inject.StateDone)
	}

	n, err := notebook.Parse(mustRead(t, path))
	if err != nil {
		t.Fatalf("reparse injected file: %v", err)
	}
	payload := n.Pages[0].RecognitionText
	if payload == nil || payload.FullText() != "Hello World" {
		t.Fatalf("injected payload = %+v", payload)
	}
	if got, _ := n.Header.Get(notebook.KeyRecognLanguage); got != "en_US" {
		t.Errorf("language flag = %q", got)
	}
	if got, _ := n.Header.Get(notebook.KeyRecognType); got != "1" {
		t.Errorf("recognition type flag = %q", got)
	}

	// Backup carries the pre-injection bytes.
	entries, err := os.ReadDir(backupDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("backup dir entries = %v (err %v)", entries, err)
	}
	if result.BackupPath != filepath.Join(backupDir, entries[0].Name()) {
		t.Errorf("BackupPath = %q", result.BackupPath)
	}
	if !bytes.Equal(mustRead(t, result.BackupPath), original) {
		t.Error("backup does not match original bytes")
	}

	// Access time preserved, modification time advanced one second.
	newTimes, err := fileutil.StatTimes(path)
	if err != nil {
		t.Fatal(err)
	}
	if newTimes.Access.Unix() != originalTimes.Access.Unix() {
		t.Errorf("access time changed: %v -> %v", originalTimes.Access, newTimes.Access)
	}
	if got, want := newTimes.Modify.Unix(), originalTimes.Modify.Unix()+1; got != want {
		t.Errorf("modify time = %d, want %d", got, want)
	}
}

func TestRunOutOfRangeIsSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteNotebookFile(t, dir, "short.note")
	original := mustRead(t, path)

	inj, _ := newInjector(t, inject.Options{RecognitionType: "keep"})
	result, err := inj.Run(context.Background(), path, []inject.Update{
		{PageIndex: 9, Payload: testsupport.SamplePayload()},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Written {
		t.Error("no in-range update; file should not be rewritten")
	}
	if len(result.PagesSkipped) != 1 || result.PagesSkipped[0] != 9 {
		t.Errorf("PagesSkipped = %v", result.PagesSkipped)
	}
	if !bytes.Equal(mustRead(t, path), original) {
		t.Error("file bytes changed")
	}
}

func TestRunCoercesBogusRecognitionType(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteNotebookFile(t, dir, "flags.note")

	inj, _ := newInjector(t, inject.Options{RecognitionType: "bogus"})
	if _, err := inj.Run(context.Background(), path, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	n, err := notebook.Parse(mustRead(t, path))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := n.Header.Get(notebook.KeyRecognType); got != notebook.RecognTypeOn {
		t.Errorf("recognition type = %q, want %q", got, notebook.RecognTypeOn)
	}
}

func TestRunKeepPreservesHeaderFlag(t *testing.T) {
	n := testsupport.NewNotebook()
	n.Header.Set(notebook.KeyRecognType, notebook.RecognTypeOff)
	data, err := notebook.Build(n)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "keep.note")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	inj, _ := newInjector(t, inject.Options{RecognitionType: "keep"})
	result, err := inj.Run(context.Background(), path, []inject.Update{
		{PageIndex: 0, Payload: testsupport.SamplePayload()},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Written {
		t.Fatal("expected rewrite for the in-range update")
	}

	parsed, err := notebook.Parse(mustRead(t, path))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := parsed.Header.Get(notebook.KeyRecognType); got != notebook.RecognTypeOff {
		t.Errorf("recognition type = %q, want preserved %q", got, notebook.RecognTypeOff)
	}
}

func TestRunPreservesUnknownFooterFields(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteNotebookFile(t, dir, "resume.note", testsupport.WithResumeFlag("5"))

	inj, _ := newInjector(t, inject.Options{})
	if _, err := inj.Run(context.Background(), path, []inject.Update{
		{PageIndex: 1, Payload: testsupport.SamplePayload()},
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	n, err := notebook.Parse(mustRead(t, path))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := n.FooterExtras.Get("FILE_RESUME"); got != "5" {
		t.Errorf("FILE_RESUME = %q, want 5", got)
	}
}

func TestRunWithoutBackupDir(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteNotebookFile(t, dir, "nobackup.note")

	inj := inject.New(inject.Options{RecognitionType: "keep"}, nil)
	result, err := inj.Run(context.Background(), path, []inject.Update{
		{PageIndex: 0, Payload: testsupport.SamplePayload()},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Written {
		t.Fatal("expected file to be rewritten")
	}
	if result.BackupPath != "" {
		t.Errorf("BackupPath = %q, want none", result.BackupPath)
	}
	if inj.State() != inject.StateDone {
		t.Errorf("state = %s, want %s", inj.State(), inject.StateDone)
	}

	n, err := notebook.Parse(mustRead(t, path))
	if err != nil {
		t.Fatal(err)
	}
	if n.Pages[0].RecognitionText == nil {
		t.Error("payload missing after injection")
	}

	// Nothing was written anywhere besides the notebook itself.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory entries = %d, want the notebook only", len(entries))
	}
}

func TestRunLeavesUnparsableFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.note")
	garbage := bytes.Repeat([]byte{0xDE, 0xAD}, 64)
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatal(err)
	}

	inj, _ := newInjector(t, inject.Options{})
	_, err := inj.Run(context.Background(), path, []inject.Update{
		{PageIndex: 0, Payload: testsupport.SamplePayload()},
	})
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if inj.State() != inject.StateBackedUp {
		t.Errorf("state = %s, want %s", inj.State(), inject.StateBackedUp)
	}
	if !bytes.Equal(mustRead(t, path), garbage) {
		t.Error("unparsable file was modified")
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
