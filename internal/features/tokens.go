package features

import "fmt"

// FromTokens converts a flat token sequence of tokens x dim values into
// feature rows. With keepSeq it copies one row per token; otherwise the
// tokens are mean pooled into a single row.
func FromTokens(data []float32, tokens, dim int, keepSeq bool) (Batch, error) {
	if tokens < 1 || dim < 1 {
		return nil, fmt.Errorf("invalid token sequence shape [%d %d]", tokens, dim)
	}
	if len(data) != tokens*dim {
		return nil, fmt.Errorf("token sequence has %d values, want %d", len(data), tokens*dim)
	}

	rows := make(Batch, tokens)
	for i := range rows {
		row := make([]float32, dim)
		copy(row, data[i*dim:(i+1)*dim])
		rows[i] = row
	}
	if keepSeq {
		return rows, nil
	}
	pooled, err := Mean(rows)
	if err != nil {
		return nil, err
	}
	return Batch{pooled}, nil
}
