package drivers

import (
	"context"
	"testing"
)

func TestSimDevicePending(t *testing.T) {
	sd := &SimDevice{
		Pending: [][]Reading{
			{{GasIndex: 0, Flags: FlagsGasComplete}},
			{},
			{{GasIndex: 1, Flags: FlagsGasComplete}, {GasIndex: 2, Flags: FlagsGasComplete}},
		},
	}
	err := sd.Setup(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch, err := sd.Fetch()
	if err != nil || len(batch) != 1 {
		t.Fatalf("first fetch: got %d readings (err %v), want 1", len(batch), err)
	}

	batch, _ = sd.Fetch()
	if len(batch) != 0 {
		t.Fatalf("second fetch: got %d readings, want none", len(batch))
	}

	batch, _ = sd.Fetch()
	if len(batch) != 2 {
		t.Fatalf("third fetch: got %d readings, want 2", len(batch))
	}

	batch, _ = sd.Fetch()
	if len(batch) != 0 {
		t.Errorf("drained queue should fetch nothing, got %d readings", len(batch))
	}
}

func TestSimDeviceGenerate(t *testing.T) {
	sd := &SimDevice{Generate: true, Seed: 7}
	err := sd.Setup(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	profile := HeaterProfile{
		Temperatures: []uint16{320, 100, 200},
		Multipliers:  []uint16{5, 2, 10},
	}
	err = sd.SetHeaterProfile(profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantIndexes := []uint8{0, 1, 2, 0, 1, 2}
	for _, want := range wantIndexes {
		batch, err := sd.Fetch()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(batch) != 1 {
			t.Fatalf("got %d readings, want 1", len(batch))
		}
		if !batch[0].GasComplete() {
			t.Errorf("generated reading not complete, flags %#02x", batch[0].Flags)
		}
		if batch[0].GasIndex != want {
			t.Errorf("gas index: got %d want %d", batch[0].GasIndex, want)
		}
		if batch[0].GasResistance <= 0 {
			t.Errorf("gas resistance not positive: %v", batch[0].GasResistance)
		}
	}
}

func TestSimDeviceHealth(t *testing.T) {
	sd := &SimDevice{}
	sd.Setup(context.Background())

	health, _ := sd.CheckHealth()
	if health != HealthOk {
		t.Errorf("got %v want ok", health)
	}

	sd.Code = 3
	health, _ = sd.CheckHealth()
	if health != HealthWarning {
		t.Errorf("got %v want warning", health)
	}

	sd.Code = -2
	health, note := sd.CheckHealth()
	if health != HealthError {
		t.Errorf("got %v want error", health)
	}
	if len(note) == 0 {
		t.Error("expected a health note")
	}

	if sd.StatusCode() != -2 {
		t.Errorf("status code: got %d want -2", sd.StatusCode())
	}
}

func TestSimDeviceRejectsInvalidProfile(t *testing.T) {
	sd := &SimDevice{}
	sd.Setup(context.Background())

	err := sd.SetHeaterProfile(HeaterProfile{Temperatures: []uint16{500}, Multipliers: []uint16{5}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
