package metrics

import (
	"net/http"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter bridges a Registry's counters, gauges, and
// histograms into a real client_golang registry and serves them over
// HTTP, replacing the hand-rolled text-exposition writer this package
// used to carry. Grounded on the named-metric-registered-against-a-
// Registerer shape of luxfi-consensus's metrics.Averager, adapted to a
// single dynamic prometheus.Collector rather than one prometheus
// primitive per named metric: each Collect exports whatever names the
// Registry holds at that moment, so metrics first used after the exporter
// is built are exported too.
type PrometheusExporter struct {
	namespace string
	registry  *Registry
	promReg   *prometheus.Registry
}

// NewPrometheusExporter wraps registry for export under namespace (e.g.
// "datacore", producing names like "datacore_core_blocks_appended").
func NewPrometheusExporter(namespace string, registry *Registry) *PrometheusExporter {
	e := &PrometheusExporter{
		namespace: namespace,
		registry:  registry,
		promReg:   prometheus.NewRegistry(),
	}
	e.promReg.MustRegister(&registryCollector{exporter: e})
	return e
}

// Handler returns the http.Handler serving this exporter's metrics in
// Prometheus text format, suitable for mounting at /metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.promReg, promhttp.HandlerOpts{})
}

// registryCollector adapts a Registry snapshot to prometheus.Collector.
// It is an "unchecked" collector (per prometheus.Registry's terminology):
// Describe intentionally sends nothing, since the set of metric names is
// not known until the first Collect.
type registryCollector struct {
	exporter *PrometheusExporter
}

func (c *registryCollector) Describe(chan<- *prometheus.Desc) {}

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	for name, value := range c.exporter.registry.Snapshot() {
		fqName := prometheus.BuildFQName(c.exporter.namespace, "", sanitizeMetricName(name))
		switch v := value.(type) {
		case int64:
			desc := prometheus.NewDesc(fqName, name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v))
		case map[string]interface{}:
			for field, raw := range v {
				f, ok := raw.(float64)
				if !ok {
					continue
				}
				desc := prometheus.NewDesc(fqName+"_"+field, name+" "+field, nil, nil)
				ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, f)
			}
		}
	}
}

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// sanitizeMetricName replaces any byte not legal in a Prometheus metric
// name with an underscore.
func sanitizeMetricName(name string) string {
	return invalidMetricChars.ReplaceAllString(name, "_")
}
