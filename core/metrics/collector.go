package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const DefaultHistogramSamples = 1000

type Tags map[string]string

type CounterValue struct {
	Key   string  `json:"key"`
	Name  string  `json:"name"`
	Tags  Tags    `json:"tags,omitempty"`
	Value float64 `json:"value"`
}

type HistogramStats struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

type HistogramValue struct {
	Key   string         `json:"key"`
	Name  string         `json:"name"`
	Tags  Tags           `json:"tags,omitempty"`
	Stats HistogramStats `json:"stats"`
}

type GaugeValue struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Tags      Tags      `json:"tags,omitempty"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type Snapshot struct {
	Counters   []CounterValue   `json:"counters"`
	Histograms []HistogramValue `json:"histograms"`
	Gauges     []GaugeValue     `json:"gauges"`
}

type counter struct {
	name  string
	tags  Tags
	value float64
}

// histogram keeps the most recent samples in a ring buffer.
type histogram struct {
	name    string
	tags    Tags
	samples []float64
	next    int
	full    bool
}

func (h *histogram) add(v float64, capacity int) {
	if len(h.samples) < capacity && !h.full {
		h.samples = append(h.samples, v)
		if len(h.samples) == capacity {
			h.full = true
		}
		return
	}
	h.samples[h.next] = v
	h.next = (h.next + 1) % capacity
}

func (h *histogram) values() []float64 {
	out := make([]float64, len(h.samples))
	copy(out, h.samples)
	return out
}

type gauge struct {
	name  string
	tags  Tags
	value float64
	ts    time.Time
}

// Collector is a concurrency-safe registry of counters, histograms and gauges.
type Collector struct {
	mu         sync.Mutex
	capacity   int
	counters   map[string]*counter
	histograms map[string]*histogram
	gauges     map[string]*gauge
	now        func() time.Time
}

func NewCollector(histogramSamples int) *Collector {
	if histogramSamples <= 0 {
		histogramSamples = DefaultHistogramSamples
	}
	return &Collector{
		capacity:   histogramSamples,
		counters:   map[string]*counter{},
		histograms: map[string]*histogram{},
		gauges:     map[string]*gauge{},
		now:        time.Now,
	}
}

// Key renders name{k:v,...} with tags sorted by key.
func Key(name string, tags Tags) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+tags[k])
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

func copyTags(tags Tags) Tags {
	if len(tags) == 0 {
		return nil
	}
	out := make(Tags, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func (c *Collector) IncCounter(name string, delta float64, tags Tags) {
	key := Key(name, tags)
	c.mu.Lock()
	defer c.mu.Unlock()
	ct, ok := c.counters[key]
	if !ok {
		ct = &counter{name: name, tags: copyTags(tags)}
		c.counters[key] = ct
	}
	ct.value += delta
}

func (c *Collector) Counter(name string, tags Tags) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct, ok := c.counters[Key(name, tags)]; ok {
		return ct.value
	}
	return 0
}

func (c *Collector) Observe(name string, value float64, tags Tags) {
	key := Key(name, tags)
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.histograms[key]
	if !ok {
		h = &histogram{name: name, tags: copyTags(tags)}
		c.histograms[key] = h
	}
	h.add(value, c.capacity)
}

func (c *Collector) ObserveDuration(name string, d time.Duration, tags Tags) {
	c.Observe(name, float64(d.Milliseconds()), tags)
}

func (c *Collector) HistogramStats(name string, tags Tags) (HistogramStats, bool) {
	c.mu.Lock()
	h, ok := c.histograms[Key(name, tags)]
	var values []float64
	if ok {
		values = h.values()
	}
	c.mu.Unlock()
	if len(values) == 0 {
		return HistogramStats{}, false
	}
	return computeStats(values), true
}

func (c *Collector) SetGauge(name string, value float64, tags Tags) {
	key := Key(name, tags)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[key] = &gauge{name: name, tags: copyTags(tags), value: value, ts: c.now().UTC()}
}

func (c *Collector) Gauge(name string, tags Tags) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.gauges[Key(name, tags)]
	if !ok {
		return 0, false
	}
	return g.value, true
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = map[string]*counter{}
	c.histograms = map[string]*histogram{}
	c.gauges = map[string]*gauge{}
}

// Snapshot copies every series under the lock and computes percentiles outside it.
func (c *Collector) Snapshot() Snapshot {
	type rawHist struct {
		key    string
		name   string
		tags   Tags
		values []float64
	}
	c.mu.Lock()
	snap := Snapshot{
		Counters: make([]CounterValue, 0, len(c.counters)),
		Gauges:   make([]GaugeValue, 0, len(c.gauges)),
	}
	for key, ct := range c.counters {
		snap.Counters = append(snap.Counters, CounterValue{Key: key, Name: ct.name, Tags: copyTags(ct.tags), Value: ct.value})
	}
	for key, g := range c.gauges {
		snap.Gauges = append(snap.Gauges, GaugeValue{Key: key, Name: g.name, Tags: copyTags(g.tags), Value: g.value, Timestamp: g.ts})
	}
	raw := make([]rawHist, 0, len(c.histograms))
	for key, h := range c.histograms {
		raw = append(raw, rawHist{key: key, name: h.name, tags: copyTags(h.tags), values: h.values()})
	}
	c.mu.Unlock()

	snap.Histograms = make([]HistogramValue, 0, len(raw))
	for _, h := range raw {
		if len(h.values) == 0 {
			continue
		}
		snap.Histograms = append(snap.Histograms, HistogramValue{Key: h.key, Name: h.name, Tags: h.tags, Stats: computeStats(h.values)})
	}
	sort.Slice(snap.Counters, func(i, j int) bool { return snap.Counters[i].Key < snap.Counters[j].Key })
	sort.Slice(snap.Histograms, func(i, j int) bool { return snap.Histograms[i].Key < snap.Histograms[j].Key })
	sort.Slice(snap.Gauges, func(i, j int) bool { return snap.Gauges[i].Key < snap.Gauges[j].Key })
	return snap
}

func computeStats(values []float64) HistogramStats {
	sort.Float64s(values)
	n := len(values)
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return HistogramStats{
		Count: n,
		Sum:   sum,
		Avg:   sum / float64(n),
		Min:   values[0],
		Max:   values[n-1],
		P50:   percentile(values, 0.50),
		P95:   percentile(values, 0.95),
		P99:   percentile(values, 0.99),
	}
}

// percentile expects sorted input and picks sorted[floor(n*q)].
func percentile(sorted []float64, q float64) float64 {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
