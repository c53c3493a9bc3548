package recognition

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Element type tags used on the wire.
const (
	elementTypeRaw  = "Raw Content"
	elementTypeText = "Text"
)

// Payload is the structured recognition result stored per page.
type Payload struct {
	Elements []Element
}

// Element is a closed variant: RawMarker or TextLine.
type Element interface {
	isElement()
}

// RawMarker is the mandatory first element. It carries no data.
type RawMarker struct{}

func (RawMarker) isElement() {}

// TextLine is one recognized line of text.
type TextLine struct {
	Label string
	Words []Word
}

func (TextLine) isElement() {}

// Word is a closed variant: Spacer or Glyph.
type Word interface {
	isWord()
}

// Spacer separates two glyphs within a line.
type Spacer struct{}

func (Spacer) isWord() {}

// Glyph is a recognized word with its device-space bounding box.
type Glyph struct {
	Box  Box
	Text string
}

func (Glyph) isWord() {}

// Box is an axis-aligned bounding box in device coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FullText joins the line labels with newlines.
func (p *Payload) FullText() string {
	if p == nil {
		return ""
	}
	var lines []string
	for _, elem := range p.Elements {
		if line, ok := elem.(TextLine); ok {
			lines = append(lines, line.Label)
		}
	}
	return strings.Join(lines, "\n")
}

// LineCount reports the number of text lines in the payload.
func (p *Payload) LineCount() int {
	if p == nil {
		return 0
	}
	count := 0
	for _, elem := range p.Elements {
		if _, ok := elem.(TextLine); ok {
			count++
		}
	}
	return count
}

type wirePayload struct {
	Elements []wireElement `json:"elements"`
	Type     string        `json:"type"`
}

type wireElement struct {
	Type  string     `json:"type"`
	Label string     `json:"label,omitempty"`
	Words []wireWord `json:"words,omitempty"`
}

type wireWord struct {
	BoundingBox *Box   `json:"bounding-box,omitempty"`
	Label       string `json:"label"`
}

// EncodeWire serializes the payload to its storage form: base64 over UTF-8 JSON.
func EncodeWire(p *Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode recognition payload: payload is nil")
	}
	wire := wirePayload{
		Elements: make([]wireElement, 0, len(p.Elements)),
		Type:     elementTypeText,
	}
	for _, elem := range p.Elements {
		switch e := elem.(type) {
		case RawMarker:
			wire.Elements = append(wire.Elements, wireElement{Type: elementTypeRaw})
		case TextLine:
			words := make([]wireWord, 0, len(e.Words))
			for _, word := range e.Words {
				switch w := word.(type) {
				case Spacer:
					words = append(words, wireWord{Label: " "})
				case Glyph:
					box := w.Box
					words = append(words, wireWord{BoundingBox: &box, Label: w.Text})
				default:
					return nil, fmt.Errorf("encode recognition payload: unknown word variant %T", word)
				}
			}
			wire.Elements = append(wire.Elements, wireElement{
				Type:  elementTypeText,
				Label: e.Label,
				Words: words,
			})
		default:
			return nil, fmt.Errorf("encode recognition payload: unknown element variant %T", elem)
		}
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode recognition payload: %w", err)
	}
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(encoded, raw)
	return encoded, nil
}

// DecodeWire parses the storage form back into a payload. Any structural
// problem is reported as an error; callers treat a failed decode as "no
// recognition data present".
func DecodeWire(data []byte) (*Payload, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, data)
	if err != nil {
		return nil, fmt.Errorf("decode recognition payload: %w", err)
	}
	raw = raw[:n]

	var wire wirePayload
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode recognition payload: %w", err)
	}
	if wire.Type != elementTypeText {
		return nil, fmt.Errorf("decode recognition payload: unexpected payload type %q", wire.Type)
	}

	payload := &Payload{Elements: make([]Element, 0, len(wire.Elements))}
	for _, elem := range wire.Elements {
		switch elem.Type {
		case elementTypeRaw:
			payload.Elements = append(payload.Elements, RawMarker{})
		case elementTypeText:
			words := make([]Word, 0, len(elem.Words))
			for _, word := range elem.Words {
				if word.BoundingBox != nil {
					words = append(words, Glyph{Box: *word.BoundingBox, Text: word.Label})
				} else {
					words = append(words, Spacer{})
				}
			}
			payload.Elements = append(payload.Elements, TextLine{Label: elem.Label, Words: words})
		default:
			return nil, fmt.Errorf("decode recognition payload: unknown element type %q", elem.Type)
		}
	}
	return payload, nil
}
