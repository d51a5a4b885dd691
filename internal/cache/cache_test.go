package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCleanMissingIsNoop(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), ".marlin"))

	for i := 0; i < 2; i++ {
		removed, err := d.Clean()
		if err != nil {
			t.Fatalf("Clean() error = %v", err)
		}
		if removed {
			t.Error("Clean() reported removal of a missing cache")
		}
	}
}

func TestCleanRemovesEverything(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), ".marlin"))
	if err := d.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if err := os.MkdirAll(d.FaceBundlePath(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(d.Path("m.encoder.safetensors"), []byte("abcd"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(d.FaceBundlePath(), "cascade.xml"), []byte("xy"), 0644); err != nil {
		t.Fatal(err)
	}

	size, err := d.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 6 {
		t.Errorf("Size() = %d, want 6", size)
	}

	removed, err := d.Clean()
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !removed {
		t.Error("Clean() = false, want true")
	}
	if d.Exists() {
		t.Error("cache directory still exists after Clean()")
	}
}

func TestPath(t *testing.T) {
	d := New(".marlin")
	if got, want := d.Path("a", "b"), filepath.Join(".marlin", "a", "b"); got != want {
		t.Errorf("Path() = %s, want %s", got, want)
	}
	if got, want := d.FaceBundlePath(), filepath.Join(".marlin", FaceBundleDir); got != want {
		t.Errorf("FaceBundlePath() = %s, want %s", got, want)
	}
}
