package metrics

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/rohittupe/prediction-service/internal/observability/statsd"
)

// Registry is an in-process statsd.Sink that keeps aggregated values and renders them
// in the Prometheus text exposition format.
// Counts become counters (suffix _total), gauges stay gauges, timings become summaries
// in seconds (suffix _seconds, count and sum only).
type Registry struct {
	namespace string

	mu       sync.Mutex
	families map[string]*family
}

type family struct {
	typ    dto.MetricType
	series map[string]*series
}

type series struct {
	labels []*dto.LabelPair
	value  float64
	count  uint64
	sum    float64
}

var _ statsd.Sink = (*Registry)(nil)

// NewRegistry creates an empty registry. Metric names are prefixed with namespace when set.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace: sanitizeName(namespace),
		families:  make(map[string]*family),
	}
}

// Count implements statsd.Sink.
func (r *Registry) Count(name string, value int64, tags map[string]string) {
	r.observe(r.metricName(name)+"_total", dto.MetricType_COUNTER, tags, func(s *series) {
		s.value += float64(value)
	})
}

// Gauge implements statsd.Sink.
func (r *Registry) Gauge(name string, value float64, tags map[string]string) {
	r.observe(r.metricName(name), dto.MetricType_GAUGE, tags, func(s *series) {
		s.value = value
	})
}

// Timing implements statsd.Sink.
func (r *Registry) Timing(name string, value time.Duration, tags map[string]string) {
	r.observe(r.metricName(name)+"_seconds", dto.MetricType_SUMMARY, tags, func(s *series) {
		s.count++
		s.sum += value.Seconds()
	})
}

func (r *Registry) observe(name string, typ dto.MetricType, tags map[string]string, apply func(*series)) {
	if r == nil || name == "" {
		return
	}
	labels := labelPairs(tags)
	key := seriesKey(labels)

	r.mu.Lock()
	defer r.mu.Unlock()

	fam, ok := r.families[name]
	if !ok {
		fam = &family{typ: typ, series: make(map[string]*series)}
		r.families[name] = fam
	}
	if fam.typ != typ {
		// A name is bound to the first type it was recorded with.
		return
	}
	s, ok := fam.series[key]
	if !ok {
		s = &series{labels: labels}
		fam.series[key] = s
	}
	apply(s)
}

// Gather snapshots all metric families sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*dto.MetricFamily, 0, len(r.families))
	for _, name := range slices.Sorted(maps.Keys(r.families)) {
		fam := r.families[name]
		mf := &dto.MetricFamily{
			Name: ptr(name),
			Type: fam.typ.Enum(),
		}
		for _, key := range slices.Sorted(maps.Keys(fam.series)) {
			mf.Metric = append(mf.Metric, fam.series[key].toMetric(fam.typ))
		}
		out = append(out, mf)
	}
	return out
}

// WriteText renders all families in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, TextFormat())
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// TextFormat is the exposition format produced by WriteText.
func TextFormat() expfmt.Format {
	return expfmt.NewFormat(expfmt.TypeTextPlain)
}

func (s *series) toMetric(typ dto.MetricType) *dto.Metric {
	m := &dto.Metric{Label: s.labels}
	switch typ {
	case dto.MetricType_COUNTER:
		m.Counter = &dto.Counter{Value: ptr(s.value)}
	case dto.MetricType_GAUGE:
		m.Gauge = &dto.Gauge{Value: ptr(s.value)}
	case dto.MetricType_SUMMARY:
		m.Summary = &dto.Summary{SampleCount: ptr(s.count), SampleSum: ptr(s.sum)}
	default:
		m.Untyped = &dto.Untyped{Value: ptr(s.value)}
	}
	return m
}

func (r *Registry) metricName(name string) string {
	n := sanitizeName(statsd.NormalizeName(name))
	if n == "" {
		return ""
	}
	if r.namespace == "" {
		return n
	}
	return r.namespace + "_" + n
}

func labelPairs(tags map[string]string) []*dto.LabelPair {
	if len(tags) == 0 {
		return nil
	}
	pairs := make([]*dto.LabelPair, 0, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		name := sanitizeName(k)
		if name == "" {
			continue
		}
		pairs = append(pairs, &dto.LabelPair{Name: ptr(name), Value: ptr(strings.TrimSpace(tags[k]))})
	}
	return pairs
}

func seriesKey(labels []*dto.LabelPair) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(l.GetName())
		b.WriteByte('=')
		b.WriteString(l.GetValue())
		b.WriteByte(0)
	}
	return b.String()
}

// sanitizeName maps a statsd-style name to a valid Prometheus identifier.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
			b.WriteRune(c)
		case c >= '0' && c <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func ptr[T any](v T) *T { return &v }
