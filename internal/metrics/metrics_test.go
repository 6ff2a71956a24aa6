package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("0.1.0", "go1.26.0")
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.Registry == nil {
		t.Fatal("Registry is nil")
	}
}

func TestMetricsIsolation(t *testing.T) {
	// Two Metrics instances should not share registries.
	m1 := NewMetrics("0.1.0", "go1.26.0")
	m2 := NewMetrics("0.2.0", "go1.26.0")

	m1.RoundsAdvancedTotal.WithLabelValues(StateB).Inc()

	families, err := m2.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "rumormesh_rounds_advanced_total" {
			for _, metric := range f.GetMetric() {
				if metric.GetCounter().GetValue() != 0 {
					t.Error("m2 registry saw m1 counter value; registries are not isolated")
				}
			}
		}
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics("test", "go1.26.0")

	m.RoundsAdvancedTotal.WithLabelValues(StateB).Inc()
	m.RoundsAdvancedTotal.WithLabelValues(StateC).Inc()
	m.RoundsAdvancedTotal.WithLabelValues(StateD).Inc()
	m.PushesSentTotal.Inc()
	m.ResponsesSentTotal.Inc()
	m.FramesRejectedTotal.WithLabelValues(ReasonSignatureInvalid).Inc()
	m.FramesRejectedTotal.WithLabelValues(ReasonCodecFailure).Inc()
	m.ActiveRumors.Set(3)
	m.TickDurationSeconds.Observe(0.002)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	expected := map[string]bool{
		"rumormesh_rounds_advanced_total": false,
		"rumormesh_pushes_sent_total":     false,
		"rumormesh_responses_sent_total":  false,
		"rumormesh_frames_rejected_total": false,
		"rumormesh_active_rumors":         false,
		"rumormesh_tick_duration_seconds": false,
		"rumormesh_info":                  false,
	}

	for _, f := range families {
		if _, ok := expected[f.GetName()]; ok {
			expected[f.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric family %q not found in gathered output", name)
		}
	}
}

func TestMetricsBuildInfo(t *testing.T) {
	m := NewMetrics("1.2.3", "go1.26.0")

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	for _, f := range families {
		if f.GetName() != "rumormesh_info" {
			continue
		}
		for _, metric := range f.GetMetric() {
			if metric.GetGauge().GetValue() != 1 {
				t.Errorf("build info gauge value = %f, want 1", metric.GetGauge().GetValue())
			}
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["version"] != "1.2.3" {
				t.Errorf("version label = %q, want %q", labels["version"], "1.2.3")
			}
			if labels["go_version"] != "go1.26.0" {
				t.Errorf("go_version label = %q, want %q", labels["go_version"], "go1.26.0")
			}
		}
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("0.1.0", "go1.26.0")
	m.PushesSentTotal.Inc()

	handler := m.Handler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("handler returned status %d, want 200", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	output := string(body)

	if !strings.Contains(output, "rumormesh_pushes_sent_total") {
		t.Error("handler output missing rumormesh_pushes_sent_total")
	}
	if !strings.Contains(output, "rumormesh_info") {
		t.Error("handler output missing rumormesh_info")
	}
	if !strings.Contains(output, "go_goroutines") {
		t.Error("handler output missing go_goroutines (Go runtime collector)")
	}
}

func TestMetricsNoLabelCollision(t *testing.T) {
	m := NewMetrics("test", "go1.26.0")

	for _, state := range []string{StateB, StateC, StateD} {
		m.RoundsAdvancedTotal.WithLabelValues(state).Inc()
	}
	for _, reason := range []string{ReasonSignatureInvalid, ReasonCodecFailure} {
		m.FramesRejectedTotal.WithLabelValues(reason).Inc()
	}

	if _, err := m.Registry.Gather(); err != nil {
		t.Fatalf("Gather failed after exercising all labels: %v", err)
	}
}

func TestMetricsRegistryDoesNotUseGlobal(t *testing.T) {
	m := NewMetrics("test", "go1.26.0")

	if m.Registry == prometheus.DefaultRegisterer {
		t.Error("Metrics registry is the global DefaultRegisterer; should be isolated")
	}
}
