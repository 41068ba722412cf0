package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestLMSAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "lms.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var spec alertSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}

	var group *alertGroup
	for i := range spec.Groups {
		if spec.Groups[i].Name == "lms" {
			group = &spec.Groups[i]
			break
		}
	}
	if group == nil {
		t.Fatal("lms alert group missing")
	}

	expected := map[string]struct {
		severity string
		metric   string
	}{
		"HighErrorRate":        {severity: "critical", metric: "lms_http_requests_total"},
		"HighLatency":          {severity: "warning", metric: "lms_http_request_duration_seconds"},
		"LoginFailureSpike":    {severity: "warning", metric: "lms_auth_events_total"},
		"AuditEnqueueFailures": {severity: "warning", metric: "lms_audit_enqueue_failures_total"},
	}

	if len(group.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(group.Rules))
	}

	exported := exportedMetricNames(t)
	for _, rule := range group.Rules {
		want, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != want.severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if !strings.Contains(rule.Expr, want.metric) {
			t.Fatalf("rule %s must query %s, got %q", rule.Alert, want.metric, rule.Expr)
		}
		if !exported[want.metric] {
			t.Fatalf("rule %s references %s which the service does not export", rule.Alert, want.metric)
		}
		if !strings.HasPrefix(rule.Annotations["runbook"], "docs/runbook-ops-lms.md#") {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
	}
}

func exportedMetricNames(t *testing.T) map[string]bool {
	t.Helper()
	m := NewMetrics()
	m.AuthEvent("login", "failure")
	m.ProgressUpdate("success")
	m.AuditDropped()
	m.requestsTotal.WithLabelValues("/healthz", "200").Inc()
	m.requestDuration.WithLabelValues("/healthz").Observe(0.01)

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}
