package notebook_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"inkdex/internal/notebook"
	"inkdex/internal/testsupport"
)

func TestBuilderAddressTable(t *testing.T) {
	b := notebook.NewBuilder()

	first := b.Append("block", []byte("abc"))
	second := b.Append("block", []byte("defgh"))

	if first != 0 {
		t.Errorf("first address = %d, want 0", first)
	}
	if second != 7 {
		t.Errorf("second address = %d, want 7 (4-byte length prefix + 3 bytes)", second)
	}
	if got := b.AddressOf("block"); got != first {
		t.Errorf("AddressOf = %d, want %d", got, first)
	}
	if got := b.AddressesOf("block"); len(got) != 2 {
		t.Errorf("AddressesOf = %v, want both addresses", got)
	}
	if got := b.AddressOf("missing"); got != 0 {
		t.Errorf("AddressOf(missing) = %d, want 0", got)
	}
}

func TestBuildPackOrder(t *testing.T) {
	data := testsupport.NewNotebookBytes(t)

	if string(data[:4]) != notebook.TypeNote {
		t.Errorf("type marker = %q", data[:4])
	}
	if string(data[4:24]) != notebook.Signature {
		t.Errorf("signature = %q", data[4:24])
	}

	// Header is always the first addressable block.
	headerLen := binary.LittleEndian.Uint32(data[24:28])
	header, err := notebook.ParseMeta(data[28 : 28+headerLen])
	if err != nil {
		t.Fatalf("parse header block: %v", err)
	}
	if got, _ := header.Get("FILE_TYPE"); got != "NOTE" {
		t.Errorf("FILE_TYPE = %q", got)
	}

	footerAddr := binary.LittleEndian.Uint32(data[len(data)-4:])
	footerLen := binary.LittleEndian.Uint32(data[footerAddr : footerAddr+4])
	footer, err := notebook.ParseMeta(data[footerAddr+4 : footerAddr+4+footerLen])
	if err != nil {
		t.Fatalf("parse footer block: %v", err)
	}
	if got, _ := footer.Get("FILE_FEATURE"); got != "24" {
		t.Errorf("FILE_FEATURE = %q, want header address 24", got)
	}
	for _, key := range []string{"PAGE1", "PAGE2", "KEYWORD_1", "TITLE_1"} {
		if _, ok := footer.Get(key); !ok {
			t.Errorf("footer missing %s", key)
		}
	}
}

func TestBuildSharedStyleAppendedOnce(t *testing.T) {
	bitmap := []byte("unique-template-payload-7f3a")
	data := testsupport.NewNotebookBytes(t, testsupport.WithSharedStyle("user_grid", bitmap))

	if count := bytes.Count(data, bitmap); count != 1 {
		t.Errorf("style template appears %d times, want 1", count)
	}

	n, err := notebook.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ref1, _ := n.Pages[0].Layer(notebook.SlotBackground).Metadata.Get("LAYERBITMAP")
	ref2, _ := n.Pages[1].Layer(notebook.SlotBackground).Metadata.Get("LAYERBITMAP")
	if ref1 == "" || ref1 != ref2 {
		t.Errorf("background references differ: %q vs %q", ref1, ref2)
	}
}

func TestBuildRecognitionStatus(t *testing.T) {
	data := testsupport.NewNotebookBytes(t, testsupport.WithRecognition(0, testsupport.SamplePayload()))

	n, err := notebook.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	withText := n.Pages[0].Metadata
	if got, _ := withText.Get("RECOGNSTATUS"); got != "1" {
		t.Errorf("page 1 RECOGNSTATUS = %q, want 1", got)
	}
	if _, ok := withText.Get("RECOGNTEXT"); !ok {
		t.Error("page 1 missing RECOGNTEXT address")
	}

	withoutText := n.Pages[1].Metadata
	if _, ok := withoutText.Get("RECOGNSTATUS"); ok {
		t.Error("page 2 should not carry RECOGNSTATUS without a payload")
	}
	if _, ok := withoutText.Get("RECOGNTEXT"); ok {
		t.Error("page 2 should not carry RECOGNTEXT without a payload")
	}
}

func TestBuildOmitsKeysForAbsentBlocks(t *testing.T) {
	n := testsupport.NewNotebook()
	page := n.Pages[0]
	page.TotalPath = nil
	page.Layers[notebook.SlotMain].Content = nil

	data, err := notebook.Build(n)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	parsed, err := notebook.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, ok := parsed.Pages[0].Metadata.Get("TOTALPATH"); ok {
		t.Error("page 1 gained a TOTALPATH key without a block")
	}
	if _, ok := parsed.Pages[0].Layer(notebook.SlotMain).Metadata.Get("LAYERBITMAP"); ok {
		t.Error("main layer gained a LAYERBITMAP key without a bitmap")
	}

	// Page 2 is untouched and keeps both references.
	if _, ok := parsed.Pages[1].Metadata.Get("TOTALPATH"); !ok {
		t.Error("page 2 lost its TOTALPATH reference")
	}
	if _, ok := parsed.Pages[1].Layer(notebook.SlotMain).Metadata.Get("LAYERBITMAP"); !ok {
		t.Error("page 2 main layer lost its LAYERBITMAP reference")
	}

	rebuilt, err := notebook.Build(parsed)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !bytes.Equal(data, rebuilt) {
		t.Error("rebuild of the parsed output differs")
	}
}

func TestBuildKeepsZeroReferences(t *testing.T) {
	n := testsupport.NewNotebook()
	page := n.Pages[0]
	page.TotalPath = nil
	page.Metadata.Set("TOTALPATH", "0")
	main := page.Layers[notebook.SlotMain]
	main.Content = nil
	main.Metadata.Set("LAYERBITMAP", "0")

	data, err := notebook.Build(n)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	parsed, err := notebook.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got, _ := parsed.Pages[0].Metadata.Get("TOTALPATH"); got != "0" {
		t.Errorf("TOTALPATH = %q, want preserved 0", got)
	}
	if got, _ := parsed.Pages[0].Layer(notebook.SlotMain).Metadata.Get("LAYERBITMAP"); got != "0" {
		t.Errorf("LAYERBITMAP = %q, want preserved 0", got)
	}

	rebuilt, err := notebook.Build(parsed)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !bytes.Equal(data, rebuilt) {
		t.Error("rebuild of the parsed output differs")
	}
}

func TestBuildRejectsUnknownType(t *testing.T) {
	n := testsupport.NewNotebook()
	n.Type = "junk"
	if _, err := notebook.Build(n); err == nil {
		t.Fatal("expected error for unknown file type")
	}
}

func TestBuildRejectsDanglingStyleReference(t *testing.T) {
	n := testsupport.NewNotebook()
	bg := n.Pages[0].Layer(notebook.SlotBackground)
	bg.Content = nil
	bg.StyleName = "missing_template"

	if _, err := notebook.Build(n); err == nil {
		t.Fatal("expected error for background referencing an unregistered style")
	}
}
