// Package metrics reports prompt-run metrics using Prometheus primitives.
package metrics

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder observes provider invocations, latencies, retries, and follow-up
// calls. A nil *Recorder is valid and records nothing.
type Recorder struct {
	invocations *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	followups   *prometheus.CounterVec
}

func NewRecorder(registry *prometheus.Registry) (*Recorder, error) {
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	r := &Recorder{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simpleai_provider_invocations_total",
			Help: "Total provider invocations by status",
		}, []string{"provider", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simpleai_provider_invocation_duration_seconds",
			Help:    "Provider invocation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simpleai_provider_retry_attempts_total",
			Help: "Total rate-limit and schema-rejection retries by provider",
		}, []string{"provider"}),
		followups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simpleai_provider_followup_calls_total",
			Help: "Total synthesis and citation follow-up calls by provider",
		}, []string{"provider", "kind"}),
	}

	for _, collector := range []prometheus.Collector{r.invocations, r.durations, r.retries, r.followups} {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

func (r *Recorder) ObserveInvocation(provider string, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.invocations.WithLabelValues(provider, status).Inc()
	r.durations.WithLabelValues(provider).Observe(duration.Seconds())
}

func (r *Recorder) ObserveRetry(provider string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(provider).Inc()
}

func (r *Recorder) ObserveFollowup(provider string, kind string) {
	if r == nil {
		return
	}
	r.followups.WithLabelValues(provider, kind).Inc()
}

// StartServer exposes the registry on addr for scraping.
func StartServer(addr string, registry *prometheus.Registry) (*http.Server, error) {
	if addr == "" {
		addr = ":2112"
	}
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics endpoint %q: %w", addr, err)
	}

	srv := &http.Server{
		Addr:    ln.Addr().String(),
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	return srv, nil
}
