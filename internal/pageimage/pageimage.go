// Package pageimage produces rendered page images for recognition.
//
// The preferred source is an external converter binary that rasterizes the
// notebook's ink. When no converter is configured, or when the converter
// fails or produces nothing for a page, pages whose background layer already
// carries PNG bytes are used instead; such images show the page template
// rather than the ink, so downstream callers treat their results with less
// trust.
package pageimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"inkdex/internal/logging"
	"inkdex/internal/notebook"
)

// pngMagic is the fixed eight-byte PNG file signature.
var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// ErrNoImages is returned when no page of the notebook yields an image.
var ErrNoImages = errors.New("pageimage: no page images available")

// Page is one rendered page.
type Page struct {
	// Index is the zero-based page index within the notebook.
	Index int
	// PNG holds the encoded image.
	PNG []byte
	// Width and Height are the decoded pixel dimensions.
	Width  int
	Height int
	// DerivedFromBackground marks images taken from the page's background
	// template instead of a true ink rasterization.
	DerivedFromBackground bool
}

// Supplier yields rendered images for a notebook's pages. Pages that cannot
// be rendered are omitted rather than reported as errors.
type Supplier interface {
	Pages(ctx context.Context, notePath string, n *notebook.Notebook) ([]Page, error)
}

// NewSupplier returns the page-image source. With a converter binary
// configured the converter runs first and background images cover whatever it
// could not render; without one the background fallback serves alone.
func NewSupplier(converterBinary string, logger *slog.Logger) Supplier {
	componentLogger := logging.NewComponentLogger(logger, "pageimage")
	fallback := &BackgroundFallback{logger: componentLogger}
	if converterBinary == "" {
		return fallback
	}
	return &converterWithFallback{
		converter: &CommandConverter{Binary: converterBinary, logger: componentLogger},
		fallback:  fallback,
		logger:    componentLogger,
	}
}

// converterWithFallback chains the converter with the background fallback:
// a converter failure hands the whole file to the fallback, and pages the
// converter skipped are filled in individually.
type converterWithFallback struct {
	converter *CommandConverter
	fallback  *BackgroundFallback
	logger    *slog.Logger
}

func (s *converterWithFallback) Pages(ctx context.Context, notePath string, n *notebook.Notebook) ([]Page, error) {
	pages, err := s.converter.Pages(ctx, notePath, n)
	if err != nil {
		s.logger.Warn("converter failed; trying background images instead",
			logging.Error(err))
		fallbackPages, fallbackErr := s.fallback.Pages(ctx, notePath, n)
		if fallbackErr != nil {
			// The converter failure is the actionable error.
			return nil, err
		}
		return fallbackPages, nil
	}

	rendered := make(map[int]bool, len(pages))
	for _, page := range pages {
		rendered[page.Index] = true
	}
	if len(rendered) == len(n.Pages) {
		return pages, nil
	}

	fallbackPages, fallbackErr := s.fallback.Pages(ctx, notePath, n)
	if fallbackErr != nil {
		if errors.Is(fallbackErr, ErrNoImages) {
			return pages, nil
		}
		return nil, fallbackErr
	}
	for _, page := range fallbackPages {
		if rendered[page.Index] {
			continue
		}
		s.logger.Info("using background image for page the converter skipped",
			logging.Int(logging.FieldPage, page.Index))
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	return pages, nil
}

// CommandConverter shells out to an external rasterizer invoked as
//
//	<binary> <note-file> <output-dir>
//
// and expects it to write page-1.png through page-N.png into the output
// directory.
type CommandConverter struct {
	Binary string
	logger *slog.Logger
}

// Pages rasterizes every page of the file at notePath. Missing output files
// are skipped; an empty result is ErrNoImages.
func (c *CommandConverter) Pages(ctx context.Context, notePath string, n *notebook.Notebook) ([]Page, error) {
	outDir, err := os.MkdirTemp("", "inkdex-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create conversion dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, c.Binary, notePath, outDir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("converter %s: %w: %s", c.Binary, err, bytes.TrimSpace(output))
	}

	var pages []Page
	for i := range n.Pages {
		path := filepath.Join(outDir, fmt.Sprintf("page-%d.png", i+1))
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				c.logger.Warn("converter produced no image for page",
					logging.Int(logging.FieldPage, i))
				continue
			}
			return nil, fmt.Errorf("read converted page %d: %w", i+1, err)
		}
		page, err := decodePage(i, data, false)
		if err != nil {
			return nil, fmt.Errorf("converted page %d: %w", i+1, err)
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return nil, ErrNoImages
	}
	return pages, nil
}

// BackgroundFallback serves pages whose background layer or referenced style
// template is already a PNG.
type BackgroundFallback struct {
	logger *slog.Logger
}

// Pages returns background-derived images for every page that has one. Pages
// without a PNG background are omitted; an empty result is ErrNoImages.
func (f *BackgroundFallback) Pages(ctx context.Context, notePath string, n *notebook.Notebook) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pages []Page
	for i, p := range n.Pages {
		data := backgroundBytes(n, p)
		if !bytes.HasPrefix(data, pngMagic) {
			f.logger.Debug("page background is not a PNG; skipping",
				logging.Int(logging.FieldPage, i))
			continue
		}
		page, err := decodePage(i, data, true)
		if err != nil {
			f.logger.Warn("page background PNG failed to decode; skipping",
				logging.Int(logging.FieldPage, i),
				logging.Error(err))
			continue
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return nil, ErrNoImages
	}
	return pages, nil
}

// backgroundBytes resolves a page's background bitmap, following a shared
// style reference if the layer carries one.
func backgroundBytes(n *notebook.Notebook, p *notebook.Page) []byte {
	bg := p.Layer(notebook.SlotBackground)
	if bg == nil {
		return nil
	}
	if bg.StyleName != "" {
		if style, ok := n.StyleByName(bg.StyleName); ok {
			return style.Content
		}
		return nil
	}
	return bg.Content
}

func decodePage(index int, data []byte, derived bool) (Page, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Page{}, fmt.Errorf("decode png: %w", err)
	}
	return Page{
		Index:                 index,
		PNG:                   data,
		Width:                 cfg.Width,
		Height:                cfg.Height,
		DerivedFromBackground: derived,
	}, nil
}
