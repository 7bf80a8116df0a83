package report

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/maxgio92/funclat/internal/settings"
)

const metricsNamespace = settings.CmdName

// Registry returns a registry holding the report as gauges, labeled by
// target, caller and child function.
func (r *LatencyReport) Registry() (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	calls := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "calls",
		Help:      "Number of complete calls of the target, by caller.",
	}, []string{"target", "caller"})
	avg := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "latency_average_ns",
		Help:      "Average latency of the target in nanoseconds, by caller.",
	}, []string{"target", "caller"})
	children := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "child_latency_ns",
		Help:      "Total latency of the children of the target in nanoseconds.",
	}, []string{"target", "child"})
	run := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "run",
		Help:      "Counters of the analysis run.",
	}, []string{"target", "counter"})

	for _, c := range []prometheus.Collector{calls, avg, children, run} {
		if err := registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
	}

	for name, caller := range r.Stat.Callers {
		calls.WithLabelValues(r.Target, name).Set(float64(caller.Latency.Target.Count))
		avg.WithLabelValues(r.Target, name).Set(float64(caller.Latency.Target.Avg()))
	}
	for key, e := range r.Stat.Children.Target.Elements {
		children.WithLabelValues(r.Target, key).Set(float64(e.Total))
	}

	s := r.Status
	for counter, v := range map[string]uint64{
		"actions":          r.Actions,
		"trace_time_ns":    s.TraceTime,
		"missed_time_ns":   s.MissedTime,
		"lost_data":        s.LostMarkers,
		"inconsistencies":  s.Inconsistencies,
		"ancestor_calls":   s.AncestorCalls,
		"ancestor_returns": s.AncestorReturns,
		"sched_count":      r.Stat.SchedCount,
	} {
		run.WithLabelValues(r.Target, counter).Set(float64(v))
	}

	return registry, nil
}

// WriteMetrics writes the report in the Prometheus text format to path,
// for the node exporter textfile collector.
func (r *LatencyReport) WriteMetrics(path string) error {
	registry, err := r.Registry()
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return errors.Wrap(err, "failed to write metrics textfile")
	}

	return nil
}
