package checkpoint

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	merrors "github.com/five82/marlin/internal/errors"
)

// maxHeaderSize bounds the JSON header so a corrupt length cannot force a
// huge allocation.
const maxHeaderSize = 100 << 20

type tensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

func dtypeSize(dtype string) (int64, bool) {
	switch dtype {
	case "F32":
		return 4, true
	case "F64":
		return 8, true
	case "BF16", "F16":
		return 2, true
	default:
		return 0, false
	}
}

// ReadSafetensors decodes a safetensors stream: an 8-byte little-endian header
// length, a JSON header, then the tensor data buffer.
func ReadSafetensors(r io.Reader) (State, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, merrors.NewCheckpointError("failed to read safetensors header length", err)
	}
	if n == 0 || n > maxHeaderSize {
		return nil, merrors.NewCheckpointError(fmt.Sprintf("invalid safetensors header length %d", n), nil)
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, merrors.NewCheckpointError("failed to read safetensors header", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, merrors.NewCheckpointError("failed to parse safetensors header", err)
	}

	headers := make(map[string]tensorHeader, len(fields))
	var size int64
	for name, msg := range fields {
		if name == "__metadata__" {
			continue
		}
		var h tensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, merrors.NewCheckpointError(fmt.Sprintf("invalid header for tensor %s", name), err)
		}
		width, ok := dtypeSize(h.DType)
		if !ok {
			return nil, merrors.NewCheckpointError(fmt.Sprintf("tensor %s has unsupported dtype %s", name, h.DType), nil)
		}
		begin, end := h.DataOffsets[0], h.DataOffsets[1]
		want := Tensor{Shape: h.Shape}.NumElements() * width
		if begin < 0 || end < begin || end-begin != want {
			return nil, merrors.NewCheckpointError(fmt.Sprintf("tensor %s has inconsistent data offsets", name), nil)
		}
		headers[name] = h
		size = max(size, end)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, merrors.NewCheckpointError("safetensors data buffer is truncated", err)
	}

	state := make(State, len(headers))
	for name, h := range headers {
		state[name] = Tensor{
			Shape: h.Shape,
			Data:  decodeFloats(h.DType, data[h.DataOffsets[0]:h.DataOffsets[1]]),
		}
	}
	return state, nil
}

func decodeFloats(dtype string, b []byte) []float32 {
	switch dtype {
	case "F64":
		out := make([]float32, len(b)/8)
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:])))
		}
		return out
	case "BF16":
		out := make([]float32, len(b)/2)
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(b[i*2:])) << 16)
		}
		return out
	case "F16":
		out := make([]float32, len(b)/2)
		for i := range out {
			out[i] = halfToFloat(binary.LittleEndian.Uint16(b[i*2:]))
		}
		return out
	default:
		out := make([]float32, len(b)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
		return out
	}
}

// halfToFloat converts an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch {
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal: normalize the fraction.
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math.Float32frombits(sign | e<<23 | frac<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
	}
}

// WriteSafetensors encodes s as F32 tensors in key order.
func WriteSafetensors(w io.Writer, s State) error {
	keys := s.Keys()
	header := make(map[string]any, len(keys))
	var offset int64
	for _, k := range keys {
		t := s[k]
		if int64(len(t.Data)) != t.NumElements() {
			return fmt.Errorf("tensor %s has %d values for shape %v", k, len(t.Data), t.Shape)
		}
		end := offset + int64(len(t.Data))*4
		header[k] = tensorHeader{DType: "F32", Shape: t.Shape, DataOffsets: [2]int64{offset, end}}
		offset = end
	}

	raw, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode safetensors header: %w", err)
	}
	// Pad the header with spaces to keep the data buffer 8-byte aligned.
	if pad := (8 - len(raw)%8) % 8; pad > 0 {
		raw = append(raw, []byte("        ")[:pad]...)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(raw))); err != nil {
		return err
	}
	if _, err := bw.Write(raw); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for _, k := range keys {
		for _, v := range s[k].Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
