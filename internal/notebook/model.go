package notebook

import (
	"inkdex/internal/recognition"
)

// Signature is the only container revision this codec accepts. Older
// revisions are refused outright rather than partially supported.
const Signature = "SN_FILE_VER_20230015"

// File type markers. Notebooks and mark files share the container layout.
const (
	TypeNote = "note"
	TypeMark = "mark"
)

// Layer slot names in their fixed pack order.
const (
	SlotMain       = "MAINLAYER"
	SlotLayer1     = "LAYER1"
	SlotLayer2     = "LAYER2"
	SlotLayer3     = "LAYER3"
	SlotBackground = "BGLAYER"
)

// LayerSlots lists the five per-page layer slots in pack order.
var LayerSlots = [5]string{SlotMain, SlotLayer1, SlotLayer2, SlotLayer3, SlotBackground}

// Header keys consumed or produced by this codec.
const (
	KeyRecognLanguage = "FILE_RECOGN_LANGUAGE"
	KeyRecognType     = "FILE_RECOGN_TYPE"
)

// Recognition-type header values: "1" means the device keeps recognizing new
// strokes as the user writes, "0" means it does not. Injected recognition
// text stays searchable either way.
const (
	RecognTypeOff = "0"
	RecognTypeOn  = "1"
)

// Metadata keys internal to the container layout.
const (
	keyFileFeature  = "FILE_FEATURE"
	keyTotalPath    = "TOTALPATH"
	keyRecognText   = "RECOGNTEXT"
	keyRecognFile   = "RECOGNFILE"
	keyRecognStatus = "RECOGNSTATUS"
	keyLayerName    = "LAYERNAME"
	keyLayerBitmap  = "LAYERBITMAP"
	keyPageStyle    = "PAGESTYLE"

	recognStatusDone = "1"
)

// Notebook is the parsed in-memory representation of one device file. It is
// owned by a single injection call: parsed, mutated, rebuilt, discarded.
type Notebook struct {
	// Type is the file type marker, "note" or "mark".
	Type string
	// Header holds device flags, including the recognition language and type.
	Header *Meta
	// Cover, Keywords, Titles, and Links are carried through untouched.
	Cover    *Asset
	Keywords []Asset
	Titles   []Asset
	Links    []Asset
	// Styles are shared background templates, stored once and referenced by
	// address from every page using them.
	Styles []Style
	Pages  []*Page
	// FooterExtras preserves footer fields this codec does not recompute,
	// such as the device's resume-page flag.
	FooterExtras *Meta
	// Tail preserves any bytes between the footer block and the trailing
	// footer pointer.
	Tail []byte
}

// Asset is an opaque auxiliary block (cover, keyword, title, or link)
// addressed from the footer under its key.
type Asset struct {
	Key     string
	Content []byte
}

// Style is a shared background template bitmap.
type Style struct {
	Name    string
	Content []byte
}

// Page is one notebook page.
type Page struct {
	// Layers maps slot name to layer. Absent slots have no entry.
	Layers map[string]*Layer
	// TotalPath is the page's pen-stroke geometry, opaque to this codec.
	TotalPath []byte
	// RecognitionText is the structured recognition payload, if any.
	RecognitionText *recognition.Payload
	// RecognitionFile is an opaque recognition artifact, if any.
	RecognitionFile []byte
	// Metadata carries the page's key/value record; layer and recognition
	// addresses in it are recomputed on every build.
	Metadata *Meta
}

// Layer is one drawing plane of a page. The background slot may reference a
// shared style template instead of carrying its own bitmap.
type Layer struct {
	Name     string
	Metadata *Meta
	// Content is the raw bitmap. Nil when StyleName references a template.
	Content []byte
	// StyleName names the shared template this layer references. Background
	// slot only.
	StyleName string
}

// NewNotebook returns an empty notebook of the given type with initialized
// metadata records.
func NewNotebook(fileType string) *Notebook {
	return &Notebook{
		Type:         fileType,
		Header:       NewMeta(),
		FooterExtras: NewMeta(),
	}
}

// NewPage returns a page with an initialized metadata record and no layers.
func NewPage() *Page {
	return &Page{
		Layers:   make(map[string]*Layer),
		Metadata: NewMeta(),
	}
}

// StyleByName returns the shared template with the given name, if present.
func (n *Notebook) StyleByName(name string) (Style, bool) {
	for _, style := range n.Styles {
		if style.Name == name {
			return style, true
		}
	}
	return Style{}, false
}

// IsRealtimeRecognition reports whether the device recognizes new strokes as
// the user writes.
func (n *Notebook) IsRealtimeRecognition() bool {
	value, _ := n.Header.Get(KeyRecognType)
	return value == RecognTypeOn
}

// RecognitionLanguage returns the header locale flag, if set.
func (n *Notebook) RecognitionLanguage() (string, bool) {
	return n.Header.Get(KeyRecognLanguage)
}

// HasRecognitionText reports whether the page carries a recognition payload.
func (p *Page) HasRecognitionText() bool {
	return p.RecognitionText != nil
}

// Layer returns the layer in the given slot, or nil.
func (p *Page) Layer(slot string) *Layer {
	return p.Layers[slot]
}
