package metrics

import (
	"io"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

var summaryQuantiles = []float64{0.5, 0.95, 0.99}

// WritePrometheus renders the current snapshot in the Prometheus text exposition format.
// Histograms are exported as summaries over the retained samples.
func (c *Collector) WritePrometheus(w io.Writer) error {
	snap := c.Snapshot()
	families := map[string]*dto.MetricFamily{}
	family := func(name string, kind dto.MetricType) *dto.MetricFamily {
		name = sanitizeName(name)
		if mf, ok := families[name]; ok {
			return mf
		}
		mf := &dto.MetricFamily{Name: strPtr(name), Help: strPtr(name), Type: kind.Enum()}
		families[name] = mf
		return mf
	}
	for _, ct := range snap.Counters {
		mf := family(ct.Name, dto.MetricType_COUNTER)
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		mf.Metric = append(mf.Metric, &dto.Metric{Label: labelPairs(ct.Tags), Counter: &dto.Counter{Value: floatPtr(ct.Value)}})
	}
	for _, g := range snap.Gauges {
		mf := family(g.Name, dto.MetricType_GAUGE)
		if mf.GetType() != dto.MetricType_GAUGE {
			continue
		}
		mf.Metric = append(mf.Metric, &dto.Metric{Label: labelPairs(g.Tags), Gauge: &dto.Gauge{Value: floatPtr(g.Value)}})
	}
	for _, h := range snap.Histograms {
		mf := family(h.Name, dto.MetricType_SUMMARY)
		if mf.GetType() != dto.MetricType_SUMMARY {
			continue
		}
		values := []float64{h.Stats.P50, h.Stats.P95, h.Stats.P99}
		quantiles := make([]*dto.Quantile, 0, len(summaryQuantiles))
		for i, q := range summaryQuantiles {
			quantiles = append(quantiles, &dto.Quantile{Quantile: floatPtr(q), Value: floatPtr(values[i])})
		}
		count := uint64(h.Stats.Count)
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: labelPairs(h.Tags),
			Summary: &dto.Summary{
				SampleCount: &count,
				SampleSum:   floatPtr(h.Stats.Sum),
				Quantile:    quantiles,
			},
		})
	}
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := expfmt.MetricFamilyToText(w, families[name]); err != nil {
			return err
		}
	}
	return nil
}

func labelPairs(tags Tags) []*dto.LabelPair {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*dto.LabelPair, 0, len(keys))
	for _, k := range keys {
		out = append(out, &dto.LabelPair{Name: strPtr(sanitizeName(k)), Value: strPtr(tags[k])})
	}
	return out
}

func sanitizeName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
