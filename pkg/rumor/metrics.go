package rumor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver counts store events against a prometheus registry.
// Each store takes an observer at construction rather than sharing
// process-wide state, so tests can run stores side by side.
type PrometheusObserver struct {
	ignored *prometheus.CounterVec
}

// NewPrometheusObserver registers the butterfly counters with reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "butterfly_ignored_rumor_total",
			Help: "How many rumors we ignore",
		}, []string{"rumor"}),
	}
	if err := reg.Register(o.ignored); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *PrometheusObserver) RumorIgnored(kind Kind) {
	o.ignored.WithLabelValues(kind.String()).Inc()
}
