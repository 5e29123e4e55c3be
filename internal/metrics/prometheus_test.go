package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewPrometheusMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	if pm == nil {
		t.Fatal("Expected metrics instance")
	}
	if pm.GetRegistry() == nil {
		t.Fatal("Expected a registry")
	}
}

func TestJobMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementJobsTotal("scan", "succeeded")
	pm.IncrementJobsTotal("scan", "succeeded")
	pm.IncrementJobsTotal("topology", "failed")

	if got := testutil.ToFloat64(pm.jobsTotal.WithLabelValues("scan", "succeeded")); got != 2 {
		t.Errorf("Expected 2 succeeded scans, got %f", got)
	}
	if got := testutil.ToFloat64(pm.jobsTotal.WithLabelValues("topology", "failed")); got != 1 {
		t.Errorf("Expected 1 failed topology, got %f", got)
	}

	pm.IncrementJobErrors("scan", "TIMEOUT")
	if got := testutil.ToFloat64(pm.jobErrors.WithLabelValues("scan", "TIMEOUT")); got != 1 {
		t.Errorf("Expected 1 timeout error, got %f", got)
	}

	pm.IncrementBusyRejections("scan")
	pm.IncrementBusyRejections("scan")
	if got := testutil.ToFloat64(pm.busyRejections.WithLabelValues("scan")); got != 2 {
		t.Errorf("Expected 2 busy rejections, got %f", got)
	}

	pm.RecordJobDuration("scan", 42*time.Second)

	pm.SetJobActive("scan", true)
	if got := testutil.ToFloat64(pm.activeJobs.WithLabelValues("scan")); got != 1 {
		t.Errorf("Expected active gauge 1, got %f", got)
	}
	pm.SetJobActive("scan", false)
	if got := testutil.ToFloat64(pm.activeJobs.WithLabelValues("scan")); got != 0 {
		t.Errorf("Expected active gauge 0, got %f", got)
	}

	pm.IncrementHostsScanned("scan", "up", 5)
	if got := testutil.ToFloat64(pm.hostsScanned.WithLabelValues("scan", "up")); got != 5 {
		t.Errorf("Expected 5 hosts up, got %f", got)
	}
}

func TestStorageMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementArtifactWrites("scan", "success")
	pm.RecordArtifactBytes("scan", 4096)
	pm.IncrementPrunedFiles(3)

	if got := testutil.ToFloat64(pm.artifactWrites.WithLabelValues("scan", "success")); got != 1 {
		t.Errorf("Expected 1 artifact write, got %f", got)
	}
	if got := testutil.ToFloat64(pm.prunedFiles); got != 3 {
		t.Errorf("Expected 3 pruned files, got %f", got)
	}
}

func TestHTTPMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementHTTPRequests("POST", "/scan", "202")
	pm.RecordHTTPDuration("POST", "/scan", 5*time.Millisecond)
	pm.IncrementHTTPErrors("POST", "/scan", "busy")

	if got := testutil.ToFloat64(pm.httpRequests.WithLabelValues("POST", "/scan", "202")); got != 1 {
		t.Errorf("Expected 1 request, got %f", got)
	}
	if got := testutil.ToFloat64(pm.httpErrors.WithLabelValues("POST", "/scan", "busy")); got != 1 {
		t.Errorf("Expected 1 error, got %f", got)
	}
}

func TestArchiveMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementArchiveQueries("insert", "success")
	pm.IncrementArchiveErrors("insert")

	if got := testutil.ToFloat64(pm.archiveQueries.WithLabelValues("insert", "success")); got != 1 {
		t.Errorf("Expected 1 archive query, got %f", got)
	}
}

func TestMetricNamesExposed(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.IncrementJobsTotal("scan", "succeeded")
	pm.UpdateSystemMetrics()

	names, err := testutil.GatherAndCount(pm.GetRegistry(),
		"scanward_job_total", "scanward_system_goroutines", "scanward_system_uptime_seconds")
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if names == 0 {
		t.Error("Expected scanward metrics to be registered")
	}

	for _, want := range []string{"scanward_job_total", "scanward_system_goroutines"} {
		if !strings.HasPrefix(want, "scanward_") {
			t.Fatalf("bad test fixture %s", want)
		}
	}
}

func TestSystemMetricsUpdate(t *testing.T) {
	pm := NewPrometheusMetrics()

	before := pm.GetLastUpdate()
	pm.UpdateSystemMetrics()
	after := pm.GetLastUpdate()

	if !after.After(before) {
		t.Error("Expected last update to advance")
	}
	if pm.GetUptime() <= 0 {
		t.Error("Expected positive uptime")
	}
}

func TestGetGlobalMetrics(t *testing.T) {
	first := GetGlobalMetrics()
	second := GetGlobalMetrics()

	if first != second {
		t.Error("Expected a singleton global instance")
	}
}
