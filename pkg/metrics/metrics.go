// metrics describes a batch of parsed traces as Prometheus metrics
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	qio "github.com/omaskery/qnxtally/pkg/io"
)

// Recorder collects per-input statistics into its own registry
type Recorder struct {
	registry *prometheus.Registry

	inputsTotal      *prometheus.CounterVec
	linesTotal       *prometheus.CounterVec
	kernelCallsTotal *prometheus.CounterVec
	intervalsTotal   *prometheus.CounterVec
	threads          *prometheus.GaugeVec
	cpus             *prometheus.GaugeVec
	parseDuration    prometheus.Histogram
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
	}

	r.inputsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qnxtally_inputs_total",
			Help: "Trace inputs processed, by input and result",
		},
		[]string{"input", "result"},
	)
	r.linesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qnxtally_lines_total",
			Help: "Trace lines read, by input and whether any field was recognised",
		},
		[]string{"input", "recognised"},
	)
	r.kernelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qnxtally_kernel_calls_total",
			Help: "Kernel calls seen, by input and whether a running thread was known for the CPU",
		},
		[]string{"input", "attributed"},
	)
	r.intervalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qnxtally_running_intervals_total",
			Help: "Running interval stop lines, by input and outcome",
		},
		[]string{"input", "outcome"},
	)
	r.threads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qnxtally_threads",
			Help: "Distinct threads seen in a trace",
		},
		[]string{"input"},
	)
	r.cpus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qnxtally_cpus",
			Help: "Distinct CPUs seen in a trace",
		},
		[]string{"input"},
	)
	r.parseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qnxtally_parse_duration_seconds",
			Help:    "Time taken to parse one trace input",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	r.registry.MustRegister(
		r.inputsTotal,
		r.linesTotal,
		r.kernelCallsTotal,
		r.intervalsTotal,
		r.threads,
		r.cpus,
		r.parseDuration,
	)
	return r
}

// ObserveBundle records the statistics of a successfully parsed input
func (r *Recorder) ObserveBundle(input string, b *qio.Bundle, elapsed time.Duration) {
	s := b.Stats()
	r.inputsTotal.WithLabelValues(input, "parsed").Inc()

	r.linesTotal.WithLabelValues(input, "true").Add(float64(s.Lines - s.UnrecognisedLines))
	r.linesTotal.WithLabelValues(input, "false").Add(float64(s.UnrecognisedLines))

	r.kernelCallsTotal.WithLabelValues(input, "true").Add(float64(s.KernelCalls - s.UnattributedKernelCalls))
	r.kernelCallsTotal.WithLabelValues(input, "false").Add(float64(s.UnattributedKernelCalls))

	r.intervalsTotal.WithLabelValues(input, "closed").Add(float64(s.ClosedIntervals))
	r.intervalsTotal.WithLabelValues(input, "unmatched").Add(float64(s.UnmatchedStops))
	r.intervalsTotal.WithLabelValues(input, "negative").Add(float64(s.NegativeIntervals))

	r.threads.WithLabelValues(input).Set(float64(len(b.Threads())))
	r.cpus.WithLabelValues(input).Set(float64(len(b.Cpus())))
	r.parseDuration.Observe(elapsed.Seconds())
}

// ObserveFailure records an input that could not be processed
func (r *Recorder) ObserveFailure(input string) {
	r.inputsTotal.WithLabelValues(input, "failed").Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current metrics in the node exporter textfile collector format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
