package gaskit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hubertat/gaskit/drivers"
)

func newHttpTestKit(t *testing.T) *GasKit {
	t.Helper()

	gk := &GasKit{
		Name:    "bench",
		Sensors: []*Sensor{{Sim: &drivers.SimDevice{Generate: true, Seed: 11}, DisableHomeKit: true}},
	}
	gk.SetStream(&bytes.Buffer{})
	if err := gk.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	return gk
}

func TestHandleHealth(t *testing.T) {
	gk := newHttpTestKit(t)

	rr := httptest.NewRecorder()
	gk.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}

	gk.setState(StateHalted)
	rr = httptest.NewRecorder()
	gk.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleStateToken(t *testing.T) {
	gk := newHttpTestKit(t)
	gk.HttpToken = "secret"

	rr := httptest.NewRecorder()
	gk.handleState(rr, httptest.NewRequest(http.MethodGet, "/state", nil), nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d without token, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = httptest.NewRecorder()
	gk.handleState(rr, httptest.NewRequest(http.MethodGet, "/state?token=secret", nil), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d with token, want %d", rr.Code, http.StatusOK)
	}

	var state controllerState
	if err := json.NewDecoder(rr.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	if state.Name != "bench" {
		t.Errorf("got name %s, want bench", state.Name)
	}
	if state.State != "init" {
		t.Errorf("got state %s, want init", state.State)
	}
	if state.Sensors != 1 {
		t.Errorf("got %d sensors, want 1", state.Sensors)
	}
}

func TestHandleSensors(t *testing.T) {
	gk := newHttpTestKit(t)

	if err := gk.pollCycle(); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	gk.handleSensors(rr, httptest.NewRequest(http.MethodGet, "/sensors", nil), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}

	var statuses []sensorStatus
	if err := json.NewDecoder(rr.Body).Decode(&statuses); err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Fatalf("got %d sensors, want 1", len(statuses))
	}

	st := statuses[0]
	if st.Device != "sim" {
		t.Errorf("got device %s, want sim", st.Device)
	}
	if !st.Ready {
		t.Error("expected sensor device ready")
	}
	if st.Health != "ok" {
		t.Errorf("got health %s, want ok", st.Health)
	}
	if st.Last == nil {
		t.Error("expected a cached record after one poll")
	}
}
