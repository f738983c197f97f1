package prometheus

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/credstore"
	"github.com/MrEthical07/authsession/identity"
)

type fakeSource struct {
	snapshot authsession.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authsession.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                         { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsession.MetricsSnapshot{
			Counters:   map[authsession.MetricID]uint64{},
			Histograms: map[authsession.MetricID][]uint64{},
		},
	})
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
	if got := NewPrometheusExporter(nil).Render(); got != "" {
		t.Fatalf("expected empty output without a manager, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsession.MetricsSnapshot{
			Counters: map[authsession.MetricID]uint64{
				authsession.MetricLoginSuccess: 7,
			},
			Histograms: map[authsession.MetricID][]uint64{
				authsession.MetricIdentityLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE authsession_login_success_total counter\n",
		"authsession_login_success_total 7\n",
		"authsession_logout_total 0\n",
		`authsession_identity_latency_seconds_bucket{le="0.05"} 1`,
		`authsession_identity_latency_seconds_bucket{le="+Inf"} 36`,
		"authsession_identity_latency_seconds_count 36\n",
		"authsession_audit_dropped_total 2\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsession.MetricsSnapshot{
			Counters:   map[authsession.MetricID]uint64{authsession.MetricLoginSuccess: 1},
			Histograms: map[authsession.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

type noNetwork struct{}

func (noNetwork) Authenticate(context.Context, string, string) (identity.Account, error) {
	return identity.Account{}, identity.ErrServiceUnavailable
}

func (noNetwork) CreateAccount(context.Context, string, string, string) (identity.Account, error) {
	return identity.Account{}, identity.ErrServiceUnavailable
}

func (noNetwork) Invalidate(context.Context, string) {}

func TestRenderFromManager(t *testing.T) {
	sealer, err := credstore.NewSealer(make([]byte, credstore.KeySize))
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}
	store, err := credstore.NewStore(credstore.NewMemoryBackend(), sealer, credstore.Options{})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	cfg := authsession.DefaultConfig()
	cfg.Metrics.Enabled = true
	m, err := authsession.New().
		WithConfig(cfg).
		WithCredentialStore(store).
		WithIdentityClient(noNetwork{}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer m.Close()

	_, _ = m.Login(context.Background(), "a@b.com", "pw")

	out := NewPrometheusExporter(m).Render()
	if !strings.Contains(out, "authsession_login_failure_total 1\n") {
		t.Fatalf("expected login failure counted, got:\n%s", out)
	}
	if !strings.Contains(out, "authsession_restore_empty_total 1\n") {
		t.Fatalf("expected implicit restore counted, got:\n%s", out)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsession.MetricsSnapshot{
			Counters: map[authsession.MetricID]uint64{
				authsession.MetricLoginSuccess:   1000,
				authsession.MetricLoginFailure:   40,
				authsession.MetricRestoreSuccess: 800,
				authsession.MetricLogout:         20,
			},
			Histograms: map[authsession.MetricID][]uint64{
				authsession.MetricIdentityLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
