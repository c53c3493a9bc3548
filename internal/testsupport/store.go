package testsupport

import (
	"testing"

	"inkdex/internal/tracking"
)

// NewStore opens a tracking store against a fresh temp-dir config and closes
// it when the test ends.
func NewStore(t testing.TB, opts ...ConfigOption) *tracking.Store {
	t.Helper()
	store, err := tracking.Open(NewConfig(t, opts...))
	if err != nil {
		t.Fatalf("open tracking store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
