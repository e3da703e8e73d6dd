package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandler_ExposesCounters(t *testing.T) {
	JobsStarted.WithLabelValues("story").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `quill_jobs_started_total{kind="story"}`) {
		t.Errorf("metrics output missing jobs counter")
	}
}

func TestCacheLookups(t *testing.T) {
	before := testutil.ToFloat64(CacheLookups.WithLabelValues("llm", "hit"))
	CacheLookups.WithLabelValues("llm", "hit").Inc()
	if got := testutil.ToFloat64(CacheLookups.WithLabelValues("llm", "hit")); got != before+1 {
		t.Errorf("cache hits = %v, want %v", got, before+1)
	}
}
