package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"
)

// Probe is one named dependency check.
type Probe struct {
	Name  string
	Check func() error
}

func MQTTProbe(c mqtt.Client) Probe {
	return Probe{Name: "mqtt", Check: func() error {
		if c == nil || !c.IsConnectionOpen() {
			return errors.New("not connected")
		}
		return nil
	}}
}

func BreakerProbe(name string, state func() gobreaker.State) Probe {
	return Probe{Name: name, Check: func() error {
		if s := state(); s == gobreaker.StateOpen {
			return fmt.Errorf("circuit %s", s)
		}
		return nil
	}}
}

func run(probes []Probe) (map[string]string, bool) {
	out := make(map[string]string, len(probes))
	ok := true
	for _, p := range probes {
		if err := p.Check(); err != nil {
			out[p.Name] = err.Error()
			ok = false
			continue
		}
		out[p.Name] = "ok"
	}
	return out, ok
}

type healthHandler struct{ probes []Probe }

// NewHealthHandler always answers 200; status is "ok" or "degraded".
func NewHealthHandler(probes ...Probe) http.Handler {
	return &healthHandler{probes: probes}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	checks, ok := run(h.probes)
	st := status{Status: "ok", Checks: checks}
	if !ok {
		st.Status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

type readyHandler struct{ probes []Probe }

// NewReadyHandler answers 503 until every probe passes.
func NewReadyHandler(probes ...Probe) http.Handler {
	return &readyHandler{probes: probes}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	_, ready := run(h.probes)
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Ready bool `json:"ready"`
	}{Ready: ready})
}
