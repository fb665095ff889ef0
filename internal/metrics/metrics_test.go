package metrics

import (
	"sync"
	"testing"
)

type recordingBackend struct {
	mu      sync.Mutex
	counts  map[string]float64
	samples map[string][]float64
	flushed int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{counts: map[string]float64{}, samples: map[string][]float64{}}
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += delta
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[name] = append(r.samples[name], value)
}

func (r *recordingBackend) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed++
	return nil
}

func TestPackageFunctionsRouteToBackend(t *testing.T) {
	rb := newRecordingBackend()
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	IncCounter(UploadsTotal, 1, Labels{"action": "grid", "status": "ok"})
	IncCounter(UploadsTotal, 2, Labels{"action": "grid", "status": "ok"})
	ObserveHistogram(UploadDurationSeconds, 0.25, Labels{"action": "grid", "status": "ok"})
	if err := Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	if rb.counts[UploadsTotal] != 3 {
		t.Fatalf("counter = %v, want 3", rb.counts[UploadsTotal])
	}
	if len(rb.samples[UploadDurationSeconds]) != 1 {
		t.Fatalf("samples = %v", rb.samples[UploadDurationSeconds])
	}
	if rb.flushed != 1 {
		t.Fatalf("flushed = %d, want 1", rb.flushed)
	}
}

// The default backend must absorb observations without a registered backend.
func TestNopDefaultIsSafe(t *testing.T) {
	SetBackend(nil)

	IncCounter(ChatTotal, 1, nil)
	ObserveHistogram(ChatDurationSeconds, 0.1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
}
