package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"inkdex/internal/notebook"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var showText bool

	cmd := &cobra.Command{
		Use:         "inspect <file>",
		Short:       "Show the structure of a notebook file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			n, err := notebook.Parse(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(inspectView(n))
			}
			renderInspect(cmd, n, showText)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	cmd.Flags().BoolVar(&showText, "text", false, "Print recognized text for each page")
	return cmd
}

type pageView struct {
	Page        int      `json:"page"`
	Layers      []string `json:"layers"`
	Style       string   `json:"style,omitempty"`
	InkBytes    int      `json:"ink_bytes"`
	Lines       int      `json:"recognition_lines"`
	Text        string   `json:"text,omitempty"`
	HasRecogn   bool     `json:"has_recognition"`
}

type fileView struct {
	Type     string     `json:"type"`
	Language string     `json:"language,omitempty"`
	Realtime bool       `json:"realtime_recognition"`
	Keywords int        `json:"keywords"`
	Titles   int        `json:"titles"`
	Links    int        `json:"links"`
	Styles   []string   `json:"styles,omitempty"`
	Pages    []pageView `json:"pages"`
}

func inspectView(n *notebook.Notebook) fileView {
	view := fileView{
		Type:     n.Type,
		Realtime: n.IsRealtimeRecognition(),
		Keywords: len(n.Keywords),
		Titles:   len(n.Titles),
		Links:    len(n.Links),
	}
	view.Language, _ = n.RecognitionLanguage()
	for _, style := range n.Styles {
		view.Styles = append(view.Styles, style.Name)
	}

	for i, page := range n.Pages {
		pv := pageView{Page: i + 1, HasRecogn: page.HasRecognitionText()}
		for _, slot := range notebook.LayerSlots {
			layer := page.Layer(slot)
			if layer == nil {
				continue
			}
			pv.Layers = append(pv.Layers, slot)
			if slot == notebook.SlotBackground && layer.StyleName != "" {
				pv.Style = layer.StyleName
			}
			if slot == notebook.SlotMain {
				pv.InkBytes = len(layer.Content)
			}
		}
		if page.RecognitionText != nil {
			pv.Lines = page.RecognitionText.LineCount()
			pv.Text = page.RecognitionText.FullText()
		}
		view.Pages = append(view.Pages, pv)
	}
	return view
}

func renderInspect(cmd *cobra.Command, n *notebook.Notebook, showText bool) {
	out := cmd.OutOrStdout()
	view := inspectView(n)

	fmt.Fprintf(out, "Type: %s\n", view.Type)
	if view.Language != "" {
		fmt.Fprintf(out, "Recognition language: %s\n", view.Language)
	}
	fmt.Fprintf(out, "Realtime recognition: %s\n", yesNo(view.Realtime))
	fmt.Fprintf(out, "Keywords: %d  Titles: %d  Links: %d\n", view.Keywords, view.Titles, view.Links)
	if len(view.Styles) > 0 {
		fmt.Fprintf(out, "Shared styles: %v\n", view.Styles)
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Page", "Layers", "Style", "Ink bytes", "Recognized", "Lines"})
	for _, pv := range view.Pages {
		t.AppendRow(table.Row{
			pv.Page,
			fmt.Sprintf("%v", pv.Layers),
			pv.Style,
			pv.InkBytes,
			yesNo(pv.HasRecogn),
			pv.Lines,
		})
	}
	t.Render()

	if showText {
		for _, pv := range view.Pages {
			if pv.Text == "" {
				continue
			}
			fmt.Fprintf(out, "\n--- Page %d ---\n%s\n", pv.Page, pv.Text)
		}
	}
}
