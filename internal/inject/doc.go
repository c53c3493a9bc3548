// Package inject applies recognition results to notebook files on disk.
//
// An injection is a short pipeline over one file: back it up, parse it,
// attach the new recognition payloads and normalize the header flags, rebuild
// and re-verify the container, then atomically replace the original. The
// original is never modified until the rebuilt bytes have parsed cleanly, so
// a failed injection leaves the file exactly as it was.
package inject
