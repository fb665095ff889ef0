// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// The backend buffers observations in memory, submits them on a periodic
// Flush() ticker, and flushes one final time on Close(). A long-lived
// dashboard process therefore shows up as a time series, not as a single
// spike at shutdown.
//
// Concurrency model:
//   - handlers call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"gridchat/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "gridchat".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:gridchat"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; unit tests set
	// them to avoid real network submission and nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK the backend needs.
// The SDK only exposes the concrete *datadogV2.MetricsApi; depending on this
// interface instead lets tests substitute a fake.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	uploadCounts    map[string]float64 // action+status -> count
	rowCounts       map[string]float64 // kind -> count
	inferenceCounts map[string]float64 // status -> count
	chatCounts      map[string]float64 // status -> count
	uploadDur       map[string][]float64
	chatDur         map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop. Credentials come from the usual DD_API_KEY /
// DD_APP_KEY environment handled by the SDK's default context.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "gridchat"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		uploadCounts:    make(map[string]float64),
		rowCounts:       make(map[string]float64),
		inferenceCounts: make(map[string]float64),
		chatCounts:      make(map[string]float64),
		uploadDur:       make(map[string][]float64),
		chatDur:         make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// Call once at shutdown; a second Close panics on the closed channel.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown metric names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.UploadsTotal:
		b.uploadCounts[actionStatusKey(labels["action"], labels["status"])] += delta

	case metrics.RowsTotal:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.rowCounts[kind] += delta

	case metrics.InferenceTotal:
		b.inferenceCounts[statusOrUnknown(labels)] += delta

	case metrics.ChatTotal:
		b.chatCounts[statusOrUnknown(labels)] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown metric names are
// ignored; negative samples are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.UploadDurationSeconds:
		k := actionStatusKey(labels["action"], labels["status"])
		b.uploadDur[k] = append(b.uploadDur[k], value)

	case metrics.ChatDurationSeconds:
		s := statusOrUnknown(labels)
		b.chatDur[s] = append(b.chatDur[s], value)
	}
}

// snapshot is the buffered state detached for one flush. Flush must reset
// buffers under the lock but submit out-of-lock; this carries the handoff.
type snapshot struct {
	uploadCounts    map[string]float64
	rowCounts       map[string]float64
	inferenceCounts map[string]float64
	chatCounts      map[string]float64
	uploadDur       map[string][]float64
	chatDur         map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		uploadCounts:    b.uploadCounts,
		rowCounts:       b.rowCounts,
		inferenceCounts: b.inferenceCounts,
		chatCounts:      b.chatCounts,
		uploadDur:       b.uploadDur,
		chatDur:         b.chatDur,
	}

	b.uploadCounts = make(map[string]float64)
	b.rowCounts = make(map[string]float64)
	b.inferenceCounts = make(map[string]float64)
	b.chatCounts = make(map[string]float64)
	b.uploadDur = make(map[string][]float64)
	b.chatDur = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.uploadCounts) == 0 &&
		len(s.rowCounts) == 0 &&
		len(s.inferenceCounts) == 0 &&
		len(s.chatCounts) == 0 &&
		len(s.uploadDur) == 0 &&
		len(s.chatDur) == 0
}

// Flush submits buffered metrics and resets local buffers. Buffers reset even
// if submission fails; metrics are best-effort, never backpressure.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed timestamp.
// Pure: no locks, no network, no clocks. The metric names and tags here are
// an operational contract; dashboards key off them.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, 32)

	for k, v := range s.uploadCounts {
		if v == 0 {
			continue
		}
		action, status := splitActionStatusKey(k)
		tags := withTags(b.baseTags, "action:"+action, "status:"+status)
		series = append(series, countSeries("grid.uploads.total", v, tags, nowUnix))
	}

	for kind, v := range s.rowCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("grid.rows.total", v, withTags(b.baseTags, "kind:"+kind), nowUnix))
	}

	for status, v := range s.inferenceCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("grid.inference.requests.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}

	for status, v := range s.chatCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("grid.chat.requests.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}

	for k, samples := range s.uploadDur {
		action, status := splitActionStatusKey(k)
		tags := withTags(b.baseTags, "action:"+action, "status:"+status)
		addPercentiles(&series, "grid.upload.duration_seconds", tags, samples, nowUnix)
	}

	for status, samples := range s.chatDur {
		tags := withTags(b.baseTags, "status:"+status)
		addPercentiles(&series, "grid.chat.duration_seconds", tags, samples, nowUnix)
	}

	return series
}

// addPercentiles appends the fixed percentile gauge set for a sample slice.
// Sorts a copy; the input is not mutated. Empty samples append nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, tags []string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func statusOrUnknown(labels metrics.Labels) string {
	if s := labels["status"]; s != "" {
		return s
	}
	return "unknown"
}

func actionStatusKey(action, status string) string {
	if action == "" {
		action = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	return action + "\x00" + status
}

func splitActionStatusKey(k string) (action, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:gridchat".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
