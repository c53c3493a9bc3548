// Package notebook implements the device's paginated-notebook container
// codec: parsing raw bytes into a structured Notebook and serializing a
// possibly mutated Notebook back into a compatible file.
//
// The container is an ordered sequence of named, addressable blocks. Every
// cross-reference is the byte offset at which the referenced block begins,
// carried as a value inside a <KEY:VALUE> metadata record. Blocks are packed
// in a fixed order so that each step only references addresses of blocks
// appended earlier; the footer directory comes last, followed by an opaque
// tail span and a trailing 4-byte pointer to the footer itself.
//
// Fields the codec does not understand (footer extras such as the device's
// resume-page flag, layer and page metadata keys, tail bytes) are carried
// through builds verbatim. Pen-stroke geometry is never interpreted.
//
// Reconstruct re-parses every build before the caller may write it to disk;
// a miscomputed offset is caught there instead of corrupting a user's file.
package notebook
