package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New([]string{"/api/"})

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	m.RequestsTotal.WithLabelValues("GET", "200", "/api/").Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "edge_forwarder_http_requests_total" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected edge_forwarder_http_requests_total in gathered metrics")
	}
}

func TestOutcome(t *testing.T) {
	m := New([]string{"/api/"})

	m.Outcome("/api/status", OutcomeForwarded)
	m.Outcome("/api/status", OutcomeForwarded)
	m.Outcome("/api/status", OutcomeBackendError)
	m.Outcome("/health", OutcomeNotFound)

	if got := testutil.ToFloat64(m.ForwardOutcomes.WithLabelValues("/api/", OutcomeForwarded)); got != 2 {
		t.Errorf("forwarded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ForwardOutcomes.WithLabelValues("/api/", OutcomeBackendError)); got != 1 {
		t.Errorf("backend_error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ForwardOutcomes.WithLabelValues("unmatched", OutcomeNotFound)); got != 1 {
		t.Errorf("not_found = %v, want 1", got)
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"FOOBAR", "other"},
		{"get", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	m := New([]string{"/api/v2/", "/api/", "/static/"})

	tests := []struct {
		path string
		want string
	}{
		{"/api/v2/users", "/api/v2/"},
		{"/api/status", "/api/"},
		{"/static/app.js", "/static/"},
		{"/api", "unmatched"},
		{"/health", "unmatched"},
		{"/", "unmatched"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := m.NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
