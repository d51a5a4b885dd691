package checkpoint

import (
	"encoding/gob"
	"io"

	merrors "github.com/five82/marlin/internal/errors"
)

// ReadNested decodes a gob-encoded trainer checkpoint.
func ReadNested(r io.Reader) (*NestedCheckpoint, error) {
	var n NestedCheckpoint
	if err := gob.NewDecoder(r).Decode(&n); err != nil {
		return nil, merrors.NewCheckpointError("failed to decode trainer checkpoint", err)
	}
	if n.StateDict == nil {
		return nil, merrors.NewCheckpointError("trainer checkpoint has no state dict", nil)
	}
	return &n, nil
}

// WriteNested gob-encodes a trainer checkpoint.
func WriteNested(w io.Writer, n *NestedCheckpoint) error {
	return gob.NewEncoder(w).Encode(n)
}
