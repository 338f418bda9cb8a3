package deployments

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "observability", "prometheus", "dbtalk_rules.yaml")

	requiredAlerts := []string{
		"DbtalkChainFailureRateHigh",
		"DbtalkGenerationErrors",
		"DbtalkGenerationLatencyP95High",
		"DbtalkDegradedQueriesDetected",
		"DbtalkHistoryWritesFailing",
		"DbtalkArchiveStalled",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}
}

func TestPrometheusRulesOnlyReferenceExportedMetrics(t *testing.T) {
	text := readAsset(t, "observability", "prometheus", "dbtalk_rules.yaml")

	exported := map[string]bool{
		"dbtalk_chain_runs_total":               true,
		"dbtalk_chain_stage_duration_seconds":   true,
		"dbtalk_generation_requests_total":      true,
		"dbtalk_query_degraded_total":           true,
		"dbtalk_history_record_failures_total":  true,
		"dbtalk_history_archived_records_total": true,
	}
	for _, name := range regexp.MustCompile(`dbtalk_[a-z_]+`).FindAllString(text, -1) {
		base := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(name, "_bucket"), "_sum"), "_count")
		if !exported[base] {
			t.Fatalf("rules reference unknown metric %q", name)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "observability", "prometheus", "prometheus-scrape.example.yaml")

	if !strings.Contains(text, "metrics_path: /v1/metrics") {
		t.Fatal("scrape example missing metrics path")
	}
	if !strings.Contains(text, "dbtalk_rules.yaml") {
		t.Fatal("scrape example missing rule file reference")
	}
	if !strings.Contains(text, "job_name: dbtalk-api") {
		t.Fatal("scrape example missing dbtalk-api job")
	}
}

func readAsset(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t), "deployments"}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
