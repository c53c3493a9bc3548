package notebook

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"inkdex/internal/logging"
	"inkdex/internal/recognition"
)

const (
	typeMarkerLen = 4
	addressSize   = 4
	contentStart  = typeMarkerLen + len(Signature)
	minFileSize   = contentStart + addressSize + addressSize
)

// Footer key prefixes for auxiliary collections.
const (
	prefixCover   = "COVER_"
	prefixKeyword = "KEYWORD_"
	prefixTitle   = "TITLE_"
	prefixLink    = "LINK"
	prefixStyle   = "STYLE_"
	prefixPage    = "PAGE"
)

// Parser decodes raw container bytes into a Notebook. It is the sole read
// path; the validator and all tooling go through it.
type Parser struct {
	logger *slog.Logger
}

// NewParser constructs a parser. A nil logger falls back to the no-op logger.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logging.NewComponentLogger(logger, "parser")}
}

// Parse decodes a complete container file.
//
// The signature is checked before anything else; an unsupported revision is
// refused with ErrUnsupportedVersion. A recognition payload that fails to
// decode is treated as absent rather than failing the parse.
func Parse(data []byte) (*Notebook, error) {
	return NewParser(nil).Parse(data)
}

// Parse decodes a complete container file. See the package-level Parse.
func (p *Parser) Parse(data []byte) (*Notebook, error) {
	if len(data) < minFileSize {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", ErrCorruptContainer, len(data))
	}

	fileType := string(data[:typeMarkerLen])
	signature := string(data[typeMarkerLen:contentStart])
	if fileType != TypeNote && fileType != TypeMark {
		return nil, fmt.Errorf("%w: unknown file type marker %q", ErrUnsupportedVersion, fileType)
	}
	if signature != Signature {
		return nil, fmt.Errorf("%w: %q (supported: %q)", ErrUnsupportedVersion, signature, Signature)
	}

	footerAddr := binary.LittleEndian.Uint32(data[len(data)-addressSize:])
	footerBlock, footerEnd, err := readBlock(data, footerAddr)
	if err != nil {
		return nil, fmt.Errorf("read footer: %w", err)
	}
	footer, err := ParseMeta(footerBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: footer: %v", ErrCorruptContainer, err)
	}

	n := NewNotebook(fileType)

	if footerEnd > len(data)-addressSize {
		return nil, fmt.Errorf("%w: footer overlaps trailing pointer", ErrCorruptContainer)
	}
	if tail := data[footerEnd : len(data)-addressSize]; len(tail) > 0 {
		n.Tail = append([]byte(nil), tail...)
	}

	headerValue, ok := footer.Get(keyFileFeature)
	if !ok {
		return nil, fmt.Errorf("%w: footer missing %s", ErrCorruptContainer, keyFileFeature)
	}
	headerBlock, err := readAddressedBlock(data, headerValue)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if n.Header, err = ParseMeta(headerBlock); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptContainer, err)
	}

	styleNames := map[uint32]string{}
	pageAddrs := map[int]uint32{}

	for _, entry := range footer.Entries() {
		switch {
		case entry.Key == keyFileFeature:
			// Recomputed on every build.
		case strings.HasPrefix(entry.Key, prefixCover):
			addr, err := parseAddr(entry.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: cover address %q", ErrCorruptContainer, entry.Value)
			}
			if addr == 0 {
				n.FooterExtras.Add(entry.Key, entry.Value)
				continue
			}
			content, err := readAddressedBlock(data, entry.Value)
			if err != nil {
				return nil, fmt.Errorf("read cover: %w", err)
			}
			n.Cover = &Asset{Key: entry.Key, Content: content}
		case strings.HasPrefix(entry.Key, prefixKeyword):
			if err := appendAsset(data, entry, &n.Keywords); err != nil {
				return nil, err
			}
		case strings.HasPrefix(entry.Key, prefixTitle):
			if err := appendAsset(data, entry, &n.Titles); err != nil {
				return nil, err
			}
		case strings.HasPrefix(entry.Key, prefixLink):
			if err := appendAsset(data, entry, &n.Links); err != nil {
				return nil, err
			}
		case strings.HasPrefix(entry.Key, prefixStyle):
			addr, err := parseAddr(entry.Value)
			if err != nil || addr == 0 {
				return nil, fmt.Errorf("%w: style address %q", ErrCorruptContainer, entry.Value)
			}
			content, err := readAddressedBlock(data, entry.Value)
			if err != nil {
				return nil, fmt.Errorf("read style %s: %w", entry.Key, err)
			}
			name := strings.TrimPrefix(entry.Key, prefixStyle)
			n.Styles = append(n.Styles, Style{Name: name, Content: content})
			styleNames[addr] = name
		case pageNumber(entry.Key) > 0:
			addr, err := parseAddr(entry.Value)
			if err != nil || addr == 0 {
				return nil, fmt.Errorf("%w: page address %q", ErrCorruptContainer, entry.Value)
			}
			pageAddrs[pageNumber(entry.Key)] = addr
		default:
			n.FooterExtras.Add(entry.Key, entry.Value)
		}
	}

	numbers := make([]int, 0, len(pageAddrs))
	for number := range pageAddrs {
		numbers = append(numbers, number)
	}
	sort.Ints(numbers)

	for _, number := range numbers {
		page, err := p.parsePage(data, pageAddrs[number], number, styleNames)
		if err != nil {
			return nil, err
		}
		n.Pages = append(n.Pages, page)
	}

	return n, nil
}

func (p *Parser) parsePage(data []byte, addr uint32, number int, styleNames map[uint32]string) (*Page, error) {
	block, _, err := readBlock(data, addr)
	if err != nil {
		return nil, fmt.Errorf("read page %d metadata: %w", number, err)
	}
	meta, err := ParseMeta(block)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d metadata: %v", ErrCorruptContainer, number, err)
	}

	page := NewPage()
	page.Metadata = meta

	for _, slot := range LayerSlots {
		value, ok := meta.Get(slot)
		if !ok {
			continue
		}
		layerAddr, err := parseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d %s address %q", ErrCorruptContainer, number, slot, value)
		}
		if layerAddr == 0 {
			continue
		}
		layer, err := parseLayer(data, layerAddr, slot, styleNames)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", number, err)
		}
		page.Layers[slot] = layer
	}

	if content, err := optionalBlock(data, meta, keyTotalPath); err != nil {
		return nil, fmt.Errorf("page %d totalpath: %w", number, err)
	} else if content != nil {
		page.TotalPath = content
	}

	if content, err := optionalBlock(data, meta, keyRecognText); err != nil {
		return nil, fmt.Errorf("page %d recognition text: %w", number, err)
	} else if content != nil {
		payload, decodeErr := recognition.DecodeWire(content)
		if decodeErr != nil {
			p.logger.Debug(
				"malformed recognition block; treating as absent",
				logging.Int("page_number", number),
				logging.Error(decodeErr),
			)
		} else {
			page.RecognitionText = payload
		}
	}

	if content, err := optionalBlock(data, meta, keyRecognFile); err != nil {
		return nil, fmt.Errorf("page %d recognition file: %w", number, err)
	} else if content != nil {
		page.RecognitionFile = content
	}

	return page, nil
}

func parseLayer(data []byte, addr uint32, slot string, styleNames map[uint32]string) (*Layer, error) {
	block, _, err := readBlock(data, addr)
	if err != nil {
		return nil, fmt.Errorf("read %s metadata: %w", slot, err)
	}
	meta, err := ParseMeta(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %s metadata: %v", ErrCorruptContainer, slot, err)
	}

	layer := &Layer{Name: slot, Metadata: meta}

	value, ok := meta.Get(keyLayerBitmap)
	if !ok {
		return layer, nil
	}
	bitmapAddr, err := parseAddr(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bitmap address %q", ErrCorruptContainer, slot, value)
	}
	if bitmapAddr == 0 {
		return layer, nil
	}

	if slot == SlotBackground {
		if name, shared := styleNames[bitmapAddr]; shared {
			layer.StyleName = name
			return layer, nil
		}
	}

	content, _, err := readBlock(data, bitmapAddr)
	if err != nil {
		return nil, fmt.Errorf("read %s bitmap: %w", slot, err)
	}
	// Non-nil even for a zero-length block, so the rebuild keeps it.
	layer.Content = append(make([]byte, 0, len(content)), content...)
	return layer, nil
}

func appendAsset(data []byte, entry MetaEntry, assets *[]Asset) error {
	addr, err := parseAddr(entry.Value)
	if err != nil || addr == 0 {
		return fmt.Errorf("%w: %s address %q", ErrCorruptContainer, entry.Key, entry.Value)
	}
	content, err := readAddressedBlock(data, entry.Value)
	if err != nil {
		return fmt.Errorf("read %s: %w", entry.Key, err)
	}
	*assets = append(*assets, Asset{Key: entry.Key, Content: content})
	return nil
}

func optionalBlock(data []byte, meta *Meta, key string) ([]byte, error) {
	value, ok := meta.Get(key)
	if !ok {
		return nil, nil
	}
	addr, err := parseAddr(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s address %q", ErrCorruptContainer, key, value)
	}
	if addr == 0 {
		return nil, nil
	}
	content, _, err := readBlock(data, addr)
	if err != nil {
		return nil, err
	}
	return append(make([]byte, 0, len(content)), content...), nil
}

// pageNumber extracts N from a footer key of the form PAGE<N>, or 0.
func pageNumber(key string) int {
	digits, ok := strings.CutPrefix(key, prefixPage)
	if !ok || digits == "" {
		return 0
	}
	number, err := strconv.Atoi(digits)
	if err != nil || number <= 0 {
		return 0
	}
	return number
}

func parseAddr(value string) (uint32, error) {
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(parsed), nil
}

// readBlock returns the payload of the length-prefixed block at addr along
// with the offset of the first byte after it.
func readBlock(data []byte, addr uint32) ([]byte, int, error) {
	start := int(addr)
	if start < contentStart || start+addressSize > len(data) {
		return nil, 0, fmt.Errorf("%w: block address %d out of range", ErrCorruptContainer, addr)
	}
	length := int(binary.LittleEndian.Uint32(data[start : start+addressSize]))
	end := start + addressSize + length
	if end > len(data) {
		return nil, 0, fmt.Errorf("%w: block at %d runs past end of file", ErrCorruptContainer, addr)
	}
	return data[start+addressSize : end], end, nil
}

func readAddressedBlock(data []byte, value string) ([]byte, error) {
	addr, err := parseAddr(value)
	if err != nil {
		return nil, fmt.Errorf("%w: block address %q", ErrCorruptContainer, value)
	}
	content, _, err := readBlock(data, addr)
	if err != nil {
		return nil, err
	}
	return append(make([]byte, 0, len(content)), content...), nil
}
