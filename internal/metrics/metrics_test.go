package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_InstrumentsRegistered(t *testing.T) {
	m := New()

	m.CyclesTotal.Inc()
	m.PointsWritten.WithLabelValues("home").Add(12)
	m.AccountErrors.WithLabelValues("home", "timeout").Inc()
	m.BackfillDaysRemaining.Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"vueflux_cycles_total 1",
		`vueflux_points_written_total{account="home"} 12`,
		`vueflux_account_errors_total{account="home",kind="timeout"} 1`,
		"vueflux_backfill_days_remaining 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Two instances must not panic with duplicate registration
	_ = New()
	_ = New()
}
