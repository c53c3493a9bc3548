package notebook

import (
	"fmt"
	"log/slog"
)

// Reconstruct builds the notebook and immediately re-parses the result
// through the sole read path. Any parse failure is a build failure: the
// returned error wraps ErrValidation and the bytes must not be written
// anywhere. On success the freshly built bytes are returned.
func Reconstruct(n *Notebook, logger *slog.Logger) ([]byte, error) {
	data, err := Build(n)
	if err != nil {
		return nil, err
	}
	if _, err := NewParser(logger).Parse(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return data, nil
}
