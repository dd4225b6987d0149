package drivers

import (
	"os"
	"path"
	"testing"
)

func writeWireSensor(t testing.TB, root, folder, content string) {
	t.Helper()

	err := os.MkdirAll(path.Join(root, folder), 0o755)
	if err != nil {
		t.Fatalf("failed to create sensor dir: %v", err)
	}
	err = os.WriteFile(path.Join(root, folder, "temperature"), []byte(content), 0o644)
	if err != nil {
		t.Fatalf("failed to write sensor file: %v", err)
	}
}

func TestWireAmbientDiscover(t *testing.T) {
	root := t.TempDir()
	writeWireSensor(t, root, "28-0000075a2d1c", "22625\n")

	wa := &WireAmbient{root: root}
	err := wa.Setup()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wa.IsReady() {
		t.Error("driver not ready after setup")
	}

	got, err := wa.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 22.625
	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}

func TestWireAmbientById(t *testing.T) {
	root := t.TempDir()
	writeWireSensor(t, root, "28-0000075a2d1c", "19000\n")
	writeWireSensor(t, root, "28-0000075a2d1d", "25000\n")

	wa := &WireAmbient{Id: "0x75a2d1c", root: root}
	err := wa.Setup()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := wa.Read()
	if got != 19 {
		t.Errorf("got %v want 19", got)
	}
}

func TestWireAmbientAmbiguousBus(t *testing.T) {
	root := t.TempDir()
	writeWireSensor(t, root, "28-0000075a2d1c", "19000\n")
	writeWireSensor(t, root, "28-0000075a2d1d", "25000\n")

	wa := &WireAmbient{root: root}
	if wa.Setup() == nil {
		t.Error("expected error with two sensors and no id")
	}
}

func TestWireAmbientBadReading(t *testing.T) {
	root := t.TempDir()
	writeWireSensor(t, root, "28-0000075a2d1c", "not-a-number\n")

	wa := &WireAmbient{root: root}
	if wa.Setup() == nil {
		t.Error("expected probe read to fail on malformed content")
	}
}
