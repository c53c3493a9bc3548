package notebook

import "errors"

var (
	// ErrUnsupportedVersion indicates the file's signature is not the one
	// supported format revision. Fatal; nothing is parsed or written.
	ErrUnsupportedVersion = errors.New("unsupported notebook format version")

	// ErrCorruptContainer indicates the block structure could not be decoded.
	ErrCorruptContainer = errors.New("corrupt notebook container")

	// ErrValidation indicates a freshly built byte stream failed to re-parse.
	// Treated as a build failure; the output must not be written anywhere.
	ErrValidation = errors.New("rebuilt notebook failed validation")
)
