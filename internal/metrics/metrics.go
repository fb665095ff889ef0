// Package metrics is the thin instrumentation surface the rest of the code
// depends on. Handlers emit counters and histograms against well-known names;
// a process-wide Backend decides what happens to them. The default backend
// discards everything, so instrumentation never needs nil checks.
package metrics

import "sync"

// Metric names. Backends key their buffering off these.
const (
	UploadsTotal          = "grid_uploads_total"           // labels: action, status
	RowsTotal             = "grid_rows_total"              // labels: kind
	InferenceTotal        = "grid_inference_requests_total" // labels: status
	ChatTotal             = "grid_chat_requests_total"     // labels: status
	UploadDurationSeconds = "grid_upload_duration_seconds" // labels: action, status
	ChatDurationSeconds   = "grid_chat_duration_seconds"   // labels: status
)

// Labels are low-cardinality metric dimensions.
type Labels map[string]string

// Backend receives observations. Implementations must be safe for concurrent
// use; Flush pushes whatever has been buffered.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide backend. Call once at startup before
// traffic; later observations go to the new backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

func Flush() error {
	return current().Flush()
}
