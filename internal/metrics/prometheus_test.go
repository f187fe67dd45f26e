package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusObserver(t *testing.T) {
	obs := NewPrometheusObserver()

	// Just call methods to ensure no panic
	obs.IncSubscribers()
	obs.DecSubscribers()
	obs.RecordPush()
	obs.RecordDrop()
	obs.ObserveDispatch(OutcomeRejected)
	obs.ObserveSave(OutcomeQueued)
	obs.ObserveRun(RunCompleted, 20*time.Millisecond)
	obs.SetPending(3)
	obs.SetOnline(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`rollcall_sync_dispatch_total{outcome="rejected"}`,
		"rollcall_queue_pending 3",
		"rollcall_network_online 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

var (
	_ HubObserver  = Nop{}
	_ SyncObserver = Nop{}
	_ HubObserver  = (*prometheusObserver)(nil)
	_ SyncObserver = (*prometheusObserver)(nil)
)
