package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"inkdex/internal/notebook"
	"inkdex/internal/recognition"
)

// NotebookOption customizes the generated fixture notebook.
type NotebookOption func(*notebook.Notebook)

// WithPages sets the number of pages on the fixture (default 2).
func WithPages(count int) NotebookOption {
	return func(n *notebook.Notebook) {
		n.Pages = n.Pages[:0]
		for i := 0; i < count; i++ {
			n.Pages = append(n.Pages, fixturePage(i))
		}
	}
}

// WithResumeFlag records a device resume-page flag in the footer extras.
func WithResumeFlag(value string) NotebookOption {
	return func(n *notebook.Notebook) {
		n.FooterExtras.Set("FILE_RESUME", value)
	}
}

// WithRecognition attaches a recognition payload to the given page.
func WithRecognition(pageIndex int, payload *recognition.Payload) NotebookOption {
	return func(n *notebook.Notebook) {
		n.Pages[pageIndex].RecognitionText = payload
	}
}

// WithSharedStyle makes every page's background reference one shared template.
func WithSharedStyle(name string, bitmap []byte) NotebookOption {
	return func(n *notebook.Notebook) {
		n.Styles = append(n.Styles, notebook.Style{Name: name, Content: bitmap})
		for _, page := range n.Pages {
			bg := page.Layers[notebook.SlotBackground]
			bg.Content = nil
			bg.StyleName = name
			page.Metadata.Set("PAGESTYLE", name)
		}
	}
}

// NewNotebook builds an in-memory fixture notebook with realistic metadata:
// two inked pages, per-page backgrounds, a keyword, a title, and header
// recognition flags left unset.
func NewNotebook(opts ...NotebookOption) *notebook.Notebook {
	n := notebook.NewNotebook(notebook.TypeNote)
	n.Header.Set("FILE_TYPE", "NOTE")
	n.Header.Set("APPLY_EQUIPMENT", "N5")
	n.Header.Set("DEVICE_DPI", "300")

	n.Keywords = append(n.Keywords, notebook.Asset{Key: "KEYWORD_1", Content: []byte("meeting")})
	n.Titles = append(n.Titles, notebook.Asset{Key: "TITLE_1", Content: []byte("title-bitmap")})

	n.Pages = append(n.Pages, fixturePage(0), fixturePage(1))

	for _, opt := range opts {
		opt(n)
	}
	return n
}

func fixturePage(index int) *notebook.Page {
	page := notebook.NewPage()
	page.Metadata.Set("PAGESTYLE", "style_white")
	page.Metadata.Set("LAYERSEQ", "MAINLAYER,BGLAYER")

	main := &notebook.Layer{
		Name:    notebook.SlotMain,
		Content: []byte{0x62, 0x38, 0x01, byte(index), 0xFF, 0x10},
	}
	main.Metadata = notebook.NewMeta()
	main.Metadata.Set("LAYERTYPE", "NOTE")
	main.Metadata.Set("LAYERPROTOCOL", "RATTA_RLE")
	page.Layers[notebook.SlotMain] = main

	background := &notebook.Layer{
		Name:    notebook.SlotBackground,
		Content: []byte{0x42, 0x47, byte(index)},
	}
	background.Metadata = notebook.NewMeta()
	background.Metadata.Set("LAYERTYPE", "NOTE")
	page.Layers[notebook.SlotBackground] = background

	page.TotalPath = []byte{0x01, 0x02, 0x03, byte(index)}
	return page
}

// NewNotebookBytes builds a fixture notebook and serializes it.
func NewNotebookBytes(t testing.TB, opts ...NotebookOption) []byte {
	t.Helper()
	data, err := notebook.Build(NewNotebook(opts...))
	if err != nil {
		t.Fatalf("build fixture notebook: %v", err)
	}
	return data
}

// WriteNotebookFile writes a fixture notebook under dir and returns its path.
func WriteNotebookFile(t testing.TB, dir, name string, opts ...NotebookOption) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, NewNotebookBytes(t, opts...), 0o644); err != nil {
		t.Fatalf("write fixture notebook: %v", err)
	}
	return path
}

// SamplePayload returns a two-word recognition payload.
func SamplePayload(words ...string) *recognition.Payload {
	if len(words) == 0 {
		words = []string{"Hello", "World"}
	}
	blocks := make([]recognition.Block, 0, len(words))
	for i, word := range words {
		left := float64(10 + i*60)
		blocks = append(blocks, recognition.Block{
			Text:       word,
			Box:        recognition.PixelBox{Left: left, Top: 10, Right: left + 40, Bottom: 30},
			Confidence: 0.95,
		})
	}
	return recognition.Encode(recognition.GroupIntoLines(blocks))
}
