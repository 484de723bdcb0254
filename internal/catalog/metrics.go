package catalog

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 目录相关的计数器，nil 时所有记录操作为空操作
type Metrics struct {
	Descriptors     prometheus.Counter
	Skipped         prometheus.Counter
	PatternErrors   prometheus.Counter
	ClassResolution *prometheus.CounterVec
}

// NewMetrics 创建并注册计数器，reg 为 nil 时只创建不注册
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Descriptors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frida_enum",
			Name:      "descriptors_total",
			Help:      "Raw class descriptors returned by the runtime",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frida_enum",
			Name:      "descriptors_skipped_total",
			Help:      "Class descriptors skipped because they could not be parsed",
		}),
		PatternErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frida_enum",
			Name:      "pattern_errors_total",
			Help:      "Class names skipped because the pattern failed on them",
		}),
		ClassResolution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frida_enum",
			Name:      "class_resolutions_total",
			Help:      "Class handle resolutions by result",
		}, []string{"result"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Descriptors, m.Skipped, m.PatternErrors, m.ClassResolution} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeEnumeration(total, skipped int) {
	if m == nil {
		return
	}
	m.Descriptors.Add(float64(total))
	m.Skipped.Add(float64(skipped))
}

func (m *Metrics) observePatternError() {
	if m == nil {
		return
	}
	m.PatternErrors.Inc()
}

func (m *Metrics) observeResolution(err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrClassNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	m.ClassResolution.WithLabelValues(result).Inc()
}
