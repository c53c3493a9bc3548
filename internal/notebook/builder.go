package notebook

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	"inkdex/internal/recognition"
)

// Labels for singleton blocks in the address table.
const (
	labelHeader = "__header__"
	labelFooter = "__footer__"
)

// Builder accumulates an append-only byte buffer and the label→offset address
// table used to wire blocks together. Blocks may only reference addresses of
// blocks appended earlier; there is no backpatching.
type Builder struct {
	buf       bytes.Buffer
	addresses map[string][]uint32
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{addresses: make(map[string][]uint32)}
}

// Append writes a length-prefixed block and records its address under label.
// Appending the same label twice records both addresses in order.
func (b *Builder) Append(label string, block []byte) uint32 {
	addr := uint32(b.buf.Len())
	var lengthField [addressSize]byte
	binary.LittleEndian.PutUint32(lengthField[:], uint32(len(block)))
	b.buf.Write(lengthField[:])
	b.buf.Write(block)
	b.addresses[label] = append(b.addresses[label], addr)
	return addr
}

// appendRaw writes bytes without a length prefix or address table entry. Used
// for the type marker, signature, tail, and trailing footer pointer.
func (b *Builder) appendRaw(block []byte) {
	b.buf.Write(block)
}

// AddressOf returns the first recorded address for label, or 0 if absent.
func (b *Builder) AddressOf(label string) uint32 {
	addrs := b.addresses[label]
	if len(addrs) == 0 {
		return 0
	}
	return addrs[0]
}

// AddressesOf returns every recorded address for label, in append order.
func (b *Builder) AddressesOf(label string) []uint32 {
	return b.addresses[label]
}

// Bytes returns the assembled buffer.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Build serializes a notebook into a fresh byte buffer. The pack order is
// fixed: type marker, signature, header, cover, keywords, titles, links,
// style templates, pages, footer, tail, trailing footer pointer. Every
// address reference points at a block appended in an earlier step.
func Build(n *Notebook) ([]byte, error) {
	if n.Type != TypeNote && n.Type != TypeMark {
		return nil, fmt.Errorf("build: unknown file type %q", n.Type)
	}

	b := NewBuilder()
	b.appendRaw([]byte(n.Type))
	b.appendRaw([]byte(Signature))
	b.Append(labelHeader, n.Header.Encode())

	if n.Cover != nil {
		b.Append(n.Cover.Key, n.Cover.Content)
	}
	for _, asset := range n.Keywords {
		b.Append(asset.Key, asset.Content)
	}
	for _, asset := range n.Titles {
		b.Append(asset.Key, asset.Content)
	}
	for _, asset := range n.Links {
		b.Append(asset.Key, asset.Content)
	}
	for _, style := range n.Styles {
		b.Append(prefixStyle+style.Name, style.Content)
	}

	for i, page := range n.Pages {
		if err := packPage(b, i+1, page); err != nil {
			return nil, err
		}
	}

	packFooter(b, n)
	b.appendRaw(n.Tail)

	var pointer [addressSize]byte
	binary.LittleEndian.PutUint32(pointer[:], b.AddressOf(labelFooter))
	b.appendRaw(pointer[:])

	return b.Bytes(), nil
}

func packPage(b *Builder, number int, page *Page) error {
	for _, slot := range LayerSlots {
		layer := page.Layers[slot]
		if layer == nil {
			continue
		}
		meta := layer.Metadata.Clone()
		meta.Set(keyLayerName, slot)

		if slot == SlotBackground && layer.StyleName != "" {
			styleAddr := b.AddressOf(prefixStyle + layer.StyleName)
			if styleAddr == 0 {
				return fmt.Errorf("build: page %d references unknown style %q", number, layer.StyleName)
			}
			meta.Set(keyLayerBitmap, formatAddr(styleAddr))
		} else if layer.Content != nil {
			bitmapAddr := b.Append(pageLabel(number, slot, keyLayerBitmap), layer.Content)
			meta.Set(keyLayerBitmap, formatAddr(bitmapAddr))
		} else if _, ok := meta.Get(keyLayerBitmap); ok {
			// A layer without a bitmap keeps its zero reference but never
			// gains the key on rebuild.
			meta.Set(keyLayerBitmap, formatAddr(0))
		}
		b.Append(pageLabel(number, slot, "metadata"), meta.Encode())
	}

	if page.TotalPath != nil {
		b.Append(pageBlockLabel(number, keyTotalPath), page.TotalPath)
	}

	if page.RecognitionText != nil {
		wire, err := recognition.EncodeWire(page.RecognitionText)
		if err != nil {
			return fmt.Errorf("build: page %d: %w", number, err)
		}
		b.Append(pageBlockLabel(number, keyRecognText), wire)
	}

	if page.RecognitionFile != nil {
		b.Append(pageBlockLabel(number, keyRecognFile), page.RecognitionFile)
	}

	meta := page.Metadata.Clone()
	for _, slot := range LayerSlots {
		meta.Set(slot, formatAddr(b.AddressOf(pageLabel(number, slot, "metadata"))))
	}
	if addr := b.AddressOf(pageBlockLabel(number, keyTotalPath)); addr > 0 {
		meta.Set(keyTotalPath, formatAddr(addr))
	} else if _, ok := meta.Get(keyTotalPath); ok {
		meta.Set(keyTotalPath, formatAddr(0))
	}

	if addr := b.AddressOf(pageBlockLabel(number, keyRecognText)); addr > 0 {
		meta.Set(keyRecognText, formatAddr(addr))
		meta.Set(keyRecognStatus, recognStatusDone)
	} else {
		meta.Delete(keyRecognText)
		meta.Delete(keyRecognStatus)
	}
	if addr := b.AddressOf(pageBlockLabel(number, keyRecognFile)); addr > 0 {
		meta.Set(keyRecognFile, formatAddr(addr))
	} else {
		meta.Delete(keyRecognFile)
	}

	b.Append(pageBlockLabel(number, "metadata"), meta.Encode())
	return nil
}

// packFooter assembles the trailing directory: the address of every
// page-metadata, auxiliary, and style block, then every preserved field the
// codec does not recompute, copied verbatim from the parsed footer.
func packFooter(b *Builder, n *Notebook) {
	footer := NewMeta()
	footer.Set(keyFileFeature, formatAddr(b.AddressOf(labelHeader)))

	if n.Cover != nil {
		footer.Set(n.Cover.Key, formatAddr(b.AddressOf(n.Cover.Key)))
	}
	packAssetAddresses(b, footer, n.Keywords)
	packAssetAddresses(b, footer, n.Titles)
	packAssetAddresses(b, footer, n.Links)

	for _, style := range n.Styles {
		footer.Set(prefixStyle+style.Name, formatAddr(b.AddressOf(prefixStyle+style.Name)))
	}
	for i := range n.Pages {
		key := prefixPage + strconv.Itoa(i+1)
		footer.Set(key, formatAddr(b.AddressOf(pageBlockLabel(i+1, "metadata"))))
	}

	for _, entry := range n.FooterExtras.Entries() {
		footer.Add(entry.Key, entry.Value)
	}

	b.Append(labelFooter, footer.Encode())
}

// packAssetAddresses records one footer entry per appended block. A label
// appended multiple times yields repeated footer keys rather than a single
// collapsed value.
func packAssetAddresses(b *Builder, footer *Meta, assets []Asset) {
	seen := make(map[string]bool, len(assets))
	for _, asset := range assets {
		if seen[asset.Key] {
			continue
		}
		seen[asset.Key] = true
		for _, addr := range b.AddressesOf(asset.Key) {
			footer.Add(asset.Key, formatAddr(addr))
		}
	}
}

func pageLabel(number int, slot, suffix string) string {
	return fmt.Sprintf("%s%d/%s/%s", prefixPage, number, slot, suffix)
}

func pageBlockLabel(number int, suffix string) string {
	return fmt.Sprintf("%s%d/%s", prefixPage, number, suffix)
}

func formatAddr(addr uint32) string {
	return strconv.FormatUint(uint64(addr), 10)
}
