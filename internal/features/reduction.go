// Package features turns a clip sequence into a feature batch and reduces it.
package features

import (
	"fmt"
	"strings"
)

// Reduction selects how a feature batch is collapsed across clips.
type Reduction int

const (
	// ReductionNone returns the full batch.
	ReductionNone Reduction = iota
	// ReductionMean returns the elementwise mean of all rows.
	ReductionMean
	// ReductionMax returns the elementwise maximum of all rows.
	ReductionMax
)

// String returns the reduction name.
func (r Reduction) String() string {
	switch r {
	case ReductionNone:
		return "none"
	case ReductionMean:
		return "mean"
	case ReductionMax:
		return "max"
	default:
		return fmt.Sprintf("Reduction(%d)", int(r))
	}
}

// ParseReduction converts a reduction name. The empty string means none.
func ParseReduction(s string) (Reduction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ReductionNone, nil
	case "mean":
		return ReductionMean, nil
	case "max":
		return ReductionMax, nil
	default:
		return ReductionNone, fmt.Errorf("unknown reduction '%s', valid options: none, mean, max", s)
	}
}

// Batch is an ordered list of equal-length feature rows.
type Batch [][]float32

// Len returns the number of rows.
func (b Batch) Len() int {
	return len(b)
}

// Dim returns the row width, or 0 for an empty batch.
func (b Batch) Dim() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Reduce collapses the batch across its first axis. ReductionNone returns the
// batch unchanged; mean and max return a single-row batch.
func Reduce(b Batch, r Reduction) (Batch, error) {
	return ReduceClips(b, 1, r)
}

// ReduceClips collapses a batch in which every clip contributed rowsPerClip
// consecutive rows. Row j of the result reduces row j of every clip, so the
// result holds rowsPerClip rows. ReductionNone returns the batch unchanged.
func ReduceClips(b Batch, rowsPerClip int, r Reduction) (Batch, error) {
	if r == ReductionNone {
		return b, nil
	}
	if r != ReductionMean && r != ReductionMax {
		return nil, fmt.Errorf("unknown reduction %v", r)
	}
	if rowsPerClip < 1 || len(b)%rowsPerClip != 0 {
		return nil, fmt.Errorf("batch of %d rows does not split into clips of %d rows", len(b), rowsPerClip)
	}

	out := make(Batch, rowsPerClip)
	group := make(Batch, 0, len(b)/rowsPerClip)
	for j := range rowsPerClip {
		group = group[:0]
		for i := j; i < len(b); i += rowsPerClip {
			group = append(group, b[i])
		}
		var (
			v   []float32
			err error
		)
		if r == ReductionMean {
			v, err = Mean(group)
		} else {
			v, err = Max(group)
		}
		if err != nil {
			return nil, err
		}
		out[j] = v
	}
	return out, nil
}

// Mean returns the elementwise mean of the rows.
func Mean(b Batch) ([]float32, error) {
	if err := checkRows(b); err != nil {
		return nil, err
	}
	sum := make([]float64, b.Dim())
	for _, row := range b {
		for i, v := range row {
			sum[i] += float64(v)
		}
	}
	out := make([]float32, len(sum))
	n := float64(len(b))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out, nil
}

// Max returns the elementwise maximum of the rows.
func Max(b Batch) ([]float32, error) {
	if err := checkRows(b); err != nil {
		return nil, err
	}
	out := make([]float32, b.Dim())
	copy(out, b[0])
	for _, row := range b[1:] {
		for i, v := range row {
			if v > out[i] {
				out[i] = v
			}
		}
	}
	return out, nil
}

func checkRows(b Batch) error {
	if len(b) == 0 {
		return fmt.Errorf("cannot reduce an empty feature batch")
	}
	dim := len(b[0])
	for i, row := range b {
		if len(row) != dim {
			return fmt.Errorf("feature row %d has %d values, want %d", i, len(row), dim)
		}
	}
	return nil
}
