package gaskit

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
)

const httpTimeoutsMs = 3000

type controllerState struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	UptimeMs int64  `json:"uptime_ms"`
	Sensors  int    `json:"sensors"`
}

type sensorStatus struct {
	Name     string  `json:"name"`
	Index    int     `json:"index"`
	Device   string  `json:"device"`
	Id       string  `json:"id"`
	Ready    bool    `json:"ready"`
	Failed   bool    `json:"failed"`
	Health   string  `json:"health"`
	Message  string  `json:"message,omitempty"`
	Last     *Record `json:"last,omitempty"`
	LastSeen string  `json:"last_seen,omitempty"`
}

// StartHttp exposes the controller state over a read only status API. The
// server runs in the background, a listen failure surfaces on Close.
func (gk *GasKit) StartHttp() error {
	if len(gk.HttpListen) == 0 {
		return errors.New("http listen address not set")
	}

	handler := httprouter.New()
	handler.GET("/health", gk.handleHealth)
	handler.GET("/state", gk.handleState)
	handler.GET("/sensors", gk.handleSensors)

	httpTimeout := httpTimeoutsMs * time.Millisecond

	gk.httpServer = &http.Server{
		Addr:              gk.HttpListen,
		Handler:           handler,
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	gk.httpServerErr = make(chan error)

	go func() {
		gk.httpServerErr <- gk.httpServer.ListenAndServe()
	}()

	return nil
}

func (gk *GasKit) checkToken(r *http.Request) bool {
	if len(gk.HttpToken) == 0 {
		return true
	}

	return strings.EqualFold(r.URL.Query().Get("token"), gk.HttpToken)
}

// handleHealth stays token free so liveness probes keep working.
func (gk *GasKit) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if gk.State() == StateHalted {
		http.Error(w, "halted", http.StatusServiceUnavailable)
		return
	}

	w.Write([]byte("ok"))
}

func (gk *GasKit) handleState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !gk.checkToken(r) {
		http.Error(w, "token mismatch", http.StatusUnauthorized)
		return
	}

	state := controllerState{
		Name:    gk.Name,
		State:   gk.State().String(),
		Sensors: len(gk.Sensors),
	}
	if !gk.started.IsZero() {
		state.UptimeMs = gk.uptimeMillis()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

func (gk *GasKit) handleSensors(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !gk.checkToken(r) {
		http.Error(w, "token mismatch", http.StatusUnauthorized)
		return
	}

	statuses := []sensorStatus{}
	for _, sensor := range gk.Sensors {
		st := sensorStatus{
			Name:   sensor.Name,
			Index:  sensor.Index(),
			Failed: sensor.Failed(),
		}

		device := sensor.Device()
		if device != nil {
			health, message := device.CheckHealth()
			st.Device = device.Name()
			st.Id = uniqueIdString(device.GetUniqueId())
			st.Ready = device.IsReady()
			st.Health = health.String()
			st.Message = message
		}

		rec, seen, ok := sensor.Last()
		if ok {
			st.Last = &rec
			st.LastSeen = seen.Format(time.RFC3339)
		}

		statuses = append(statuses, st)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statuses)
}
