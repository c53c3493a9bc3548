package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"inkdex/internal/logging"
)

type healthResponse struct {
	Running   bool   `json:"running"`
	OCRReady  bool   `json:"ocr_ready"`
	LastScan  string `json:"last_scan,omitempty"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Tracked   int    `json:"tracked_files"`
	Completed int    `json:"completed_files"`
}

// startHealthServer serves the /healthz endpoint on the configured bind
// address. It returns a stop function; an empty bind address disables the
// server.
func (d *Daemon) startHealthServer(ctx context.Context) (func(), error) {
	bind := d.cfg.Daemon.HealthBind
	if bind == "" {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.handleHealthz)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("health server stopped", logging.Error(err))
		}
	}()
	d.logger.Info("health endpoint listening",
		logging.String("addr", listener.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

func (d *Daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := d.Status()
	resp := healthResponse{
		Running:   status.Running,
		OCRReady:  status.OCRReady,
		Processed: status.Processed,
		Failed:    status.Failed,
		Skipped:   status.Skipped,
	}
	if !status.LastScan.IsZero() {
		resp.LastScan = status.LastScan.UTC().Format(time.RFC3339)
	}
	if summary, err := d.store.Summary(r.Context()); err == nil {
		resp.Tracked = summary.Total
		resp.Completed = summary.Completed
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
