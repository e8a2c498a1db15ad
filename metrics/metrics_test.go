package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTransitionCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(transitionsTotal.WithLabelValues("AssignFreelancerAsCoordinator", "ok"))
	RecordTransition("AssignFreelancerAsCoordinator", "ok", 3*time.Millisecond)
	after := testutil.ToFloat64(transitionsTotal.WithLabelValues("AssignFreelancerAsCoordinator", "ok"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, grew by %v", after-before)
	}
}

func TestRecordStoreOperationLabelsErrors(t *testing.T) {
	before := testutil.ToFloat64(storeOperationsTotal.WithLabelValues("memory", "cas", "error"))
	RecordStoreOperation("memory", "cas", errors.New("conflict"), time.Millisecond)
	after := testutil.ToFloat64(storeOperationsTotal.WithLabelValues("memory", "cas", "error"))
	if after-before != 1 {
		t.Fatalf("expected error counter to grow by 1, grew by %v", after-before)
	}
}

func TestHandlerServesWorkflowMetrics(t *testing.T) {
	RecordVersionConflict()
	RecordExpiry("slot", "sweep")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"inquiry_version_conflicts_total", "inquiry_expiries_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}
