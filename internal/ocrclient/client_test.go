package ocrclient_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"inkdex/internal/ocrclient"
)

func newClient(t *testing.T, handler http.Handler, attempts int) *ocrclient.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return ocrclient.New(ocrclient.Options{
		BaseURL:     server.URL,
		Timeout:     5 * time.Second,
		MaxAttempts: attempts,
	}, nil)
}

func TestHealthReady(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":           "ok",
			"vision_available": false,
			"mlx_model_loaded": true,
		})
	}), 1)

	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !health.Ready() {
		t.Error("expected Ready with mlx backend loaded")
	}
	if health.VisionAvailable {
		t.Error("vision_available should be false")
	}
}

func TestRecognizePageDecodesBlocks(t *testing.T) {
	image := []byte("fake-png-bytes")
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recognize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			ImageBase64 string `json:"image_base64"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if got, _ := base64.StdEncoding.DecodeString(req.ImageBase64); string(got) != string(image) {
			t.Errorf("image payload mismatch")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text_blocks": []map[string]any{
				{"text": "Hello", "bbox": []float64{10, 10, 50, 30}, "confidence": 0.97},
				{"text": "World", "bbox": []float64{60, 10, 110, 30}, "confidence": 0.93},
			},
		})
	}), 1)

	blocks, err := client.RecognizePage(context.Background(), image)
	if err != nil {
		t.Fatalf("RecognizePage: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	if blocks[0].Text != "Hello" || blocks[0].Box.Left != 10 || blocks[0].Box.Bottom != 30 {
		t.Errorf("first block = %+v", blocks[0])
	}
	if blocks[1].Confidence != 0.93 {
		t.Errorf("second block confidence = %v", blocks[1].Confidence)
	}
}

func TestRecognizePageRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text_blocks": []map[string]any{
				{"text": "ok", "bbox": []float64{0, 0, 1, 1}, "confidence": 1},
			},
		})
	}), 5)

	blocks, err := client.RecognizePage(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("RecognizePage: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Text != "ok" {
		t.Fatalf("blocks = %+v", blocks)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestRecognizePageDoesNotRetryUnavailableBackend(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no backend", http.StatusServiceUnavailable)
	}), 5)

	_, err := client.RecognizePage(context.Background(), []byte("img"))
	if !errors.Is(err, ocrclient.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", calls.Load())
	}
}

func TestWaitReadyHonorsContext(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "degraded"})
	}), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := client.WaitReady(ctx, 10*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
