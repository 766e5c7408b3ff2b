package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsAreRegistered(t *testing.T) {
	before := testutil.ToFloat64(ReconcileRowsUpdated.WithLabelValues("backfill"))
	ReconcileRowsUpdated.WithLabelValues("backfill").Add(3)
	if got := testutil.ToFloat64(ReconcileRowsUpdated.WithLabelValues("backfill")); got != before+3 {
		t.Errorf("rows updated = %v, want %v", got, before+3)
	}

	QueryDuration.WithLabelValues("results").Observe(0.01)
	HTTPRequests.WithLabelValues("GET /evaluations", "200").Inc()
	BackupDuration.Observe(0.2)
	RateLimited.Inc()

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer,
		"evalview_reconcile_rows_updated_total",
		"evalview_query_duration_seconds",
		"evalview_http_requests_total",
		"evalview_backup_duration_seconds",
		"evalview_http_rate_limited_total",
	)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n < 5 {
		t.Errorf("gathered %d series, want at least 5", n)
	}
}

func TestMetricNamesLint(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	for _, p := range problems {
		if strings.HasPrefix(p.Metric, "evalview_") {
			t.Errorf("%s: %s", p.Metric, p.Text)
		}
	}
}
