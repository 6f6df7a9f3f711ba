package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type staticSource struct {
	snap Snapshot
}

func (s staticSource) Snapshot() Snapshot { return s.snap }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		code int
	}{
		{name: "capturing", snap: Snapshot{State: "capturing", Capturing: true}, code: http.StatusOK},
		{name: "initializing", snap: Snapshot{State: "initializing"}, code: http.StatusServiceUnavailable},
		{name: "draining", snap: Snapshot{State: "draining"}, code: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(staticSource{snap: tt.snap}, prometheus.NewRegistry())
			if rec := get(t, h, "/readyz"); rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
				t.Errorf("healthz should always be ok, got %d", rec.Code)
			}
		})
	}
}

func TestStatusJSON(t *testing.T) {
	last := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	h := NewRouter(staticSource{snap: Snapshot{
		State:              "capturing",
		Capturing:          true,
		Uploading:          true,
		QueueDepth:         3,
		LastUpload:         &last,
		SecondsSinceUpload: 42,
	}}, prometheus.NewRegistry())

	rec := get(t, h, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %s", ct)
	}

	var got Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.QueueDepth != 3 || got.State != "capturing" || got.LastUpload == nil || !got.LastUpload.Equal(last) {
		t.Errorf("unexpected snapshot %+v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	depth := prometheus.NewGauge(prometheus.GaugeOpts{Name: "field_recorder_transfer_queue_depth", Help: "depth"})
	reg.MustRegister(depth)
	depth.Set(5)

	rec := get(t, NewRouter(staticSource{}, reg), "/metrics")
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "field_recorder_transfer_queue_depth 5") {
		t.Errorf("expected queue depth in metrics output, got %s", body)
	}
}
