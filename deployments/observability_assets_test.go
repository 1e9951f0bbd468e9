package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert  string            `yaml:"alert"`
			Record string            `yaml:"record"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	content := readAsset(t, "observability", "grafana", "askwarehouse_dashboard.json")

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}
	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	rules := loadRules(t, "askwarehouse_rules.yaml")
	recorded := recordNames(loadRules(t, "askwarehouse_recording_rules.yaml"))

	alerts := map[string]string{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if rule.Alert == "" {
				continue
			}
			if sev := rule.Labels["severity"]; sev != "warning" && sev != "critical" {
				t.Fatalf("alert %q severity = %q", rule.Alert, sev)
			}
			alerts[rule.Alert] = rule.Expr
		}
	}

	requiredAlerts := []string{
		"AskWarehouseAskLatencyP95High",
		"AskWarehouseAskErrorRatioHigh",
		"AskWarehouseAnalystBreakerOpen",
		"AskWarehouseUpstreamErrorsDetected",
		"AskWarehouseWarehouseQueryLatencyP95High",
		"AskWarehouseArchiveFailing",
		"AskWarehouseResultsTruncated",
	}
	for _, name := range requiredAlerts {
		expr, ok := alerts[name]
		if !ok {
			t.Fatalf("rules missing alert %q", name)
		}
		if strings.HasPrefix(expr, "askwarehouse:") {
			record := strings.Fields(expr)[0]
			if _, ok := recorded[record]; !ok {
				t.Fatalf("alert %q references unrecorded series %q", name, record)
			}
		}
	}
}

func TestPrometheusRecordingRulesReferenceExportedMetrics(t *testing.T) {
	rules := loadRules(t, "askwarehouse_recording_rules.yaml")
	exported := []string{
		"askwarehouse_ask_requests_total",
		"askwarehouse_ask_duration_seconds",
		"askwarehouse_warehouse_query_duration_seconds",
		"askwarehouse_archive_failures_total",
		"askwarehouse_http_requests_total",
		"askwarehouse_http_request_duration_seconds",
		"askwarehouse_warehouse_row_limit_truncations_total",
	}
	var allExpr strings.Builder
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if !strings.HasPrefix(rule.Record, "askwarehouse:") {
				t.Fatalf("record %q must use the askwarehouse: prefix", rule.Record)
			}
			allExpr.WriteString(rule.Expr)
		}
	}
	for _, metric := range exported {
		if !strings.Contains(allExpr.String(), metric) {
			t.Fatalf("recording rules never reference %q", metric)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := string(readAsset(t, "observability", "prometheus", "prometheus-scrape.example.yaml"))

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"askwarehouse_rules.yaml",
		"askwarehouse_recording_rules.yaml",
		"job_name: askwarehouse-api",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func loadRules(t *testing.T, name string) ruleFile {
	t.Helper()
	var rules ruleFile
	if err := yaml.Unmarshal(readAsset(t, "observability", "prometheus", name), &rules); err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	if len(rules.Groups) == 0 {
		t.Fatalf("%s has no rule groups", name)
	}
	return rules
}

func recordNames(rules ruleFile) map[string]struct{} {
	names := map[string]struct{}{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if rule.Record != "" {
				names[rule.Record] = struct{}{}
			}
		}
	}
	return names
}

func readAsset(t *testing.T, parts ...string) []byte {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t), "deployments"}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
