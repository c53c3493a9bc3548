package recognition

import (
	"math"
	"sort"
	"strings"
)

// DeviceScaleFactor converts recognition-engine pixel coordinates into the
// device's internal coordinate space. Empirically calibrated against the
// device's own recognition output; without it, search highlights land in the
// wrong place.
const DeviceScaleFactor = 11.9

const (
	lineThresholdRatio = 0.5
	defaultBlockHeight = 20.0
)

// PixelBox is a recognition-engine bounding box in pixel space.
type PixelBox struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// Block is one text block as returned by the recognition engine.
type Block struct {
	Text       string
	Box        PixelBox
	Confidence float64
}

// GroupIntoLines clusters blocks into reading-order lines.
//
// Blocks with empty text are dropped. The remaining blocks are sorted
// top-to-bottom; a new line starts whenever a block's top edge is further from
// the running line Y than half the average block height. The running Y is
// averaged across the line's members to tolerate slightly slanted writing.
// Each finished line is ordered left-to-right.
func GroupIntoLines(blocks []Block) [][]Block {
	valid := make([]Block, 0, len(blocks))
	for _, block := range blocks {
		if strings.TrimSpace(block.Text) == "" {
			continue
		}
		valid = append(valid, block)
	}
	if len(valid) == 0 {
		return nil
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Box.Top < valid[j].Box.Top
	})

	var heightSum float64
	for _, block := range valid {
		heightSum += block.Box.Bottom - block.Box.Top
	}
	avgHeight := heightSum / float64(len(valid))
	if avgHeight <= 0 {
		avgHeight = defaultBlockHeight
	}
	threshold := avgHeight * lineThresholdRatio

	var lines [][]Block
	current := []Block{valid[0]}
	currentY := valid[0].Box.Top

	for _, block := range valid[1:] {
		if math.Abs(block.Box.Top-currentY) > threshold {
			lines = append(lines, sortLine(current))
			current = []Block{block}
			currentY = block.Box.Top
		} else {
			current = append(current, block)
			currentY = (currentY + block.Box.Top) / 2
		}
	}
	lines = append(lines, sortLine(current))

	return lines
}

func sortLine(line []Block) []Block {
	sort.SliceStable(line, func(i, j int) bool {
		return line[i].Box.Left < line[j].Box.Left
	})
	return line
}

// MapToDeviceSpace scales a pixel-space box into device coordinates, rounded
// to two decimal places.
func MapToDeviceSpace(box PixelBox, scale float64) Box {
	return Box{
		X:      round2(box.Left / scale),
		Y:      round2(box.Top / scale),
		Width:  round2((box.Right - box.Left) / scale),
		Height: round2((box.Bottom - box.Top) / scale),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
