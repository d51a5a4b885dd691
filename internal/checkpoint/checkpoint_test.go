package checkpoint

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	merrors "github.com/five82/marlin/internal/errors"
)

func vec(values ...float32) Tensor {
	return Tensor{Shape: []int64{int64(len(values))}, Data: values}
}

func writeSafetensors(t *testing.T, dir, name string, s State) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf bytes.Buffer
	if err := WriteSafetensors(&buf, s); err != nil {
		t.Fatalf("WriteSafetensors() error = %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeNested(t *testing.T, dir, name string, n *NestedCheckpoint) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf bytes.Buffer
	if err := WriteNested(&buf, n); err != nil {
		t.Fatalf("WriteNested() error = %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  Kind
	}{
		{"encoder only", State{"encoder.norm.weight": vec(1)}, EncoderOnly},
		{"decoder present", State{"encoder.norm.weight": vec(1), "decoder.head.weight": vec(1)}, Full},
		{"decoder without dot is not a decoder", State{"decoder_head": vec(1)}, EncoderOnly},
		{"empty", State{}, EncoderOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.state); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterDiscriminator(t *testing.T) {
	in := State{
		"encoder.x":             vec(1),
		"discriminator.y":       vec(2),
		"discriminator_head.z":  vec(3),
		"decoder.discriminator": vec(4),
	}
	out, dropped := FilterDiscriminator(in)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	for k := range out {
		if k == "discriminator.y" || k == "discriminator_head.z" {
			t.Errorf("key %s survived filtering", k)
		}
	}
	if _, ok := out["decoder.discriminator"]; !ok {
		t.Error("only keys starting with the prefix should be removed")
	}
	if len(in) != 4 {
		t.Error("input state was modified")
	}
}

func TestLoadNestedEncoderOnly(t *testing.T) {
	path := writeNested(t, t.TempDir(), "model.ckpt", &NestedCheckpoint{
		Epoch:           3,
		GlobalStep:      1200,
		HyperParameters: map[string]string{"lr": "1.5e-4"},
		StateDict: State{
			"encoder.x":       vec(1, 2),
			"discriminator.y": vec(3),
		},
	})

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Kind != EncoderOnly {
		t.Errorf("Kind = %v, want encoder-only", loaded.Kind)
	}
	if len(loaded.State) != 1 {
		t.Fatalf("State has %d keys, want 1: %v", len(loaded.State), loaded.State.Keys())
	}
	if _, ok := loaded.State["encoder.x"]; !ok {
		t.Error("encoder.x missing from loaded state")
	}
	if loaded.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", loaded.Dropped)
	}
}

func TestLoadSafetensorsFull(t *testing.T) {
	state := State{
		"encoder.norm.weight":  {Shape: []int64{2, 2}, Data: []float32{1, 2, 3, 4}},
		"decoder.head.weight":  vec(0.5),
		"enc_dec_proj.weight":  vec(-1, 1),
		"discriminator.blocks": vec(9),
	}
	path := writeSafetensors(t, t.TempDir(), "model.full.safetensors", state)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Kind != Full {
		t.Errorf("Kind = %v, want full", loaded.Kind)
	}
	if _, ok := loaded.State["discriminator.blocks"]; ok {
		t.Error("discriminator weights survived loading")
	}
	got := loaded.State["encoder.norm.weight"]
	if len(got.Shape) != 2 || got.Shape[0] != 2 || got.Data[3] != 4 {
		t.Errorf("encoder.norm.weight = %+v, want shape [2 2] ending in 4", got)
	}
}

func TestReadContainerVariants(t *testing.T) {
	dir := t.TempDir()
	plain := writeSafetensors(t, dir, "a.safetensors", State{"encoder.x": vec(1)})
	nested := writeNested(t, dir, "b.ckpt", &NestedCheckpoint{StateDict: State{"encoder.x": vec(1)}})

	c, err := Read(plain)
	if err != nil {
		t.Fatalf("Read(plain) error = %v", err)
	}
	if _, ok := c.(*PlainState); !ok {
		t.Errorf("Read(plain) = %T, want *PlainState", c)
	}

	c, err = Read(nested)
	if err != nil {
		t.Fatalf("Read(nested) error = %v", err)
	}
	if _, ok := c.(*NestedCheckpoint); !ok {
		t.Errorf("Read(nested) = %T, want *NestedCheckpoint", c)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"model.onnx", "unsupported file type: onnx"},
		{"model.PT", "unsupported file type: pt"},
		{"weights", "unsupported file type: weights"},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), tt.file)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := Load(path)
		if !merrors.IsKind(err, merrors.KindUnsupportedFormat) {
			t.Fatalf("Load(%s) error = %v, want unsupported format", tt.file, err)
		}
		if !bytes.Contains([]byte(err.Error()), []byte(tt.want)) {
			t.Errorf("Load(%s) error %q, want it to contain %q", tt.file, err.Error(), tt.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.safetensors"))
	if !merrors.IsKind(err, merrors.KindIO) {
		t.Errorf("Load() error = %v, want I/O error", err)
	}
}

func TestLoadOnlyDiscriminator(t *testing.T) {
	path := writeNested(t, t.TempDir(), "gan.ckpt", &NestedCheckpoint{StateDict: State{"discriminator.y": vec(1)}})
	if _, err := Load(path); !merrors.IsKind(err, merrors.KindCheckpoint) {
		t.Errorf("Load() error = %v, want checkpoint error", err)
	}
}

func TestReadSafetensorsRejectsCorruptData(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSafetensors(&buf, State{"encoder.x": vec(1, 2, 3)}); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-4]
	if _, err := ReadSafetensors(bytes.NewReader(truncated)); !merrors.IsKind(err, merrors.KindCheckpoint) {
		t.Errorf("ReadSafetensors(truncated) error = %v, want checkpoint error", err)
	}

	var bad bytes.Buffer
	header := []byte(`{"encoder.x":{"dtype":"I8","shape":[1],"data_offsets":[0,1]}}`)
	_ = binary.Write(&bad, binary.LittleEndian, uint64(len(header)))
	bad.Write(header)
	bad.WriteByte(0)
	if _, err := ReadSafetensors(&bad); !merrors.IsKind(err, merrors.KindCheckpoint) {
		t.Errorf("ReadSafetensors(I8) error = %v, want checkpoint error", err)
	}
}

func TestReadSafetensorsHalfPrecision(t *testing.T) {
	var buf bytes.Buffer
	header := []byte(`{"__metadata__":{"format":"pt"},"a":{"dtype":"F16","shape":[2],"data_offsets":[0,4]},"b":{"dtype":"BF16","shape":[1],"data_offsets":[4,6]}}`)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.Write(header)
	// F16 1.0 = 0x3c00, F16 -2.0 = 0xc000, BF16 1.0 = 0x3f80.
	buf.Write([]byte{0x00, 0x3c, 0x00, 0xc0, 0x80, 0x3f})

	state, err := ReadSafetensors(&buf)
	if err != nil {
		t.Fatalf("ReadSafetensors() error = %v", err)
	}
	if a := state["a"].Data; a[0] != 1 || a[1] != -2 {
		t.Errorf("F16 values = %v, want [1 -2]", a)
	}
	if b := state["b"].Data; b[0] != 1 {
		t.Errorf("BF16 value = %v, want 1", b)
	}
}

func TestHalfToFloatSubnormal(t *testing.T) {
	// Smallest positive subnormal is 2^-24.
	if got, want := halfToFloat(0x0001), float32(5.9604645e-08); got != want {
		t.Errorf("halfToFloat(0x0001) = %v, want %v", got, want)
	}
}
