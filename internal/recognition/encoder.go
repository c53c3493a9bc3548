package recognition

import "strings"

// Encode builds a payload from grouped OCR lines. The first element is always
// the raw-content marker; each line contributes a TextLine whose glyphs are
// separated by spacers. Pure function, safe for concurrent use.
func Encode(lines [][]Block) *Payload {
	payload := &Payload{Elements: []Element{RawMarker{}}}

	for _, line := range lines {
		var words []Word
		var labelParts []string

		for _, block := range line {
			text := strings.TrimSpace(block.Text)
			if text == "" {
				continue
			}
			if len(words) > 0 {
				words = append(words, Spacer{})
			}
			words = append(words, Glyph{
				Box:  MapToDeviceSpace(block.Box, DeviceScaleFactor),
				Text: text,
			})
			labelParts = append(labelParts, text)
		}

		if len(words) == 0 {
			continue
		}
		payload.Elements = append(payload.Elements, TextLine{
			Label: strings.Join(labelParts, " "),
			Words: words,
		})
	}

	return payload
}
