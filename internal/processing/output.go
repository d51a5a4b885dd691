package processing

import (
	"fmt"
	"os"

	"github.com/five82/marlin/internal/checkpoint"
	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/features"
)

// FeatureTensor is the tensor name feature files store the batch under.
const FeatureTensor = "features"

// WriteFeatures saves the batch as a safetensors file. The tensor is
// [rows, dim] when rowsPerClip is 1 or less, and [clips, rowsPerClip, dim]
// otherwise so per-token features keep their clip axis.
func WriteFeatures(path string, b features.Batch, rowsPerClip int) error {
	dim := b.Dim()
	data := make([]float32, 0, b.Len()*dim)
	for i, row := range b {
		if len(row) != dim {
			return fmt.Errorf("feature row %d has %d values, want %d", i, len(row), dim)
		}
		data = append(data, row...)
	}

	shape := []int64{int64(b.Len()), int64(dim)}
	if rowsPerClip > 1 {
		if b.Len()%rowsPerClip != 0 {
			return fmt.Errorf("%d feature rows do not split into clips of %d", b.Len(), rowsPerClip)
		}
		shape = []int64{int64(b.Len() / rowsPerClip), int64(rowsPerClip), int64(dim)}
	}

	part := path + ".part"
	f, err := os.Create(part)
	if err != nil {
		return merrors.NewIOError(fmt.Sprintf("failed to create %s", part), err)
	}
	state := checkpoint.State{
		FeatureTensor: {Shape: shape, Data: data},
	}
	if err := checkpoint.WriteSafetensors(f, state); err != nil {
		_ = f.Close()
		_ = os.Remove(part)
		return merrors.NewIOError(fmt.Sprintf("failed to write %s", path), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return merrors.NewIOError(fmt.Sprintf("failed to write %s", path), err)
	}
	if err := os.Rename(part, path); err != nil {
		return merrors.NewIOError(fmt.Sprintf("failed to move %s into place", part), err)
	}
	return nil
}

// ReadFeatures loads a file written by WriteFeatures as flat rows.
func ReadFeatures(path string) (features.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, merrors.NewIOError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer func() { _ = f.Close() }()

	state, err := checkpoint.ReadSafetensors(f)
	if err != nil {
		return nil, err
	}
	t, ok := state[FeatureTensor]
	if !ok || len(t.Shape) < 2 || len(t.Shape) > 3 {
		return nil, fmt.Errorf("%s has no [rows, dim] or [clips, rows, dim] %q tensor", path, FeatureTensor)
	}
	dim := int(t.Shape[len(t.Shape)-1])
	rows := int(t.Shape[0])
	if len(t.Shape) == 3 {
		rows *= int(t.Shape[1])
	}
	b := make(features.Batch, rows)
	for i := range b {
		b[i] = t.Data[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return b, nil
}
