// Package metrics records the outcome of one invocation in prometheus text
// format, for node_exporter's textfile collector or a CI artifact.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the per-invocation metrics on a private registry.
type Recorder struct {
	Registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Gauge
	ExitCode        prometheus.Gauge
	ForwardedEnvVar prometheus.Gauge
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		Registry: reg,

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codex_launch",
			Name:      "runs_total",
			Help:      "Tool invocations by outcome.",
		}, []string{"outcome", "strategy"}),

		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codex_launch",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last invocation, cleanup included.",
		}),

		ExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codex_launch",
			Name:      "exit_code",
			Help:      "Exit code of the tool, or -1 when it never ran.",
		}),

		ForwardedEnvVar: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codex_launch",
			Name:      "forwarded_env_vars",
			Help:      "Number of environment variables forwarded to the tool.",
		}),
	}

	reg.MustRegister(r.RunsTotal, r.RunDuration, r.ExitCode, r.ForwardedEnvVar)
	return r
}

// Observe records one finished invocation.
func (r *Recorder) Observe(outcome, strategy string, exitCode, forwarded int, took time.Duration) {
	r.RunsTotal.WithLabelValues(outcome, strategy).Inc()
	r.RunDuration.Set(took.Seconds())
	r.ExitCode.Set(float64(exitCode))
	r.ForwardedEnvVar.Set(float64(forwarded))
}

// WriteTextfile atomically writes the registry to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
