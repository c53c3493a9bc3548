package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"inkdex/internal/daemon"
	"inkdex/internal/ocrclient"
	"inkdex/internal/pageimage"
	"inkdex/internal/tracking"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "process [file...]",
		Short: "Run recognition over notebook files once",
		Long:  "Processes the given notebook files, or every .note file under the configured data directory when no arguments are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			paths := args
			if len(paths) == 0 {
				paths, err = collectNoteFiles(cfg.Paths.DataDir)
				if err != nil {
					return err
				}
			}
			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notebook files found")
				return nil
			}

			store, err := tracking.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ocr := ocrclient.New(ocrclient.Options{
				BaseURL:     cfg.OCR.BaseURL,
				Timeout:     time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
				MaxAttempts: cfg.OCR.MaxAttempts,
			}, logger)
			if wait {
				if err := ocr.WaitReady(cmd.Context(), 2*time.Second); err != nil {
					return fmt.Errorf("wait for recognition service: %w", err)
				}
			}

			supplier := pageimage.NewSupplier(cfg.Daemon.ConverterBinary, logger)
			processor := daemon.NewProcessor(cfg, store, ocr, supplier, logger)

			out := cmd.OutOrStdout()
			failures := 0
			for _, path := range paths {
				absolute, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				outcome, err := processor.ProcessFile(cmd.Context(), absolute)
				if err != nil {
					failures++
					fmt.Fprintf(out, "%s: FAILED: %v\n", path, err)
					continue
				}
				switch {
				case outcome.Reason != "":
					fmt.Fprintf(out, "%s: %s (%s)\n", path, outcome.Status, outcome.Reason)
				default:
					fmt.Fprintf(out, "%s: %s, %d page(s) updated\n", path, outcome.Status, outcome.PagesUpdated)
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d file(s) failed", failures, len(paths))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the recognition service to become ready first")
	return cmd
}

func collectNoteFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ".note") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return paths, nil
}
