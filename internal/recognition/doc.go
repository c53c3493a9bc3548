// Package recognition models the device's native handwriting recognition
// payload and converts external OCR output into it.
//
// A payload is an ordered list of elements: one leading raw-content marker
// followed by text lines, each holding glyphs with device-space bounding boxes
// separated by spacer words. On the wire the payload is base64-encoded JSON;
// DecodeWire and EncodeWire own that translation. GroupIntoLines and Encode
// turn pixel-space OCR blocks into a payload the device can search and
// highlight.
package recognition
