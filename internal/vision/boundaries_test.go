package vision

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// overlapDetector records how many Detect calls are in flight at once.
type overlapDetector struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (d *overlapDetector) Detect(ctx context.Context, frame Frame, classes map[string]bool, minConfidence float64) ([]Detection, error) {
	n := d.inFlight.Add(1)
	for {
		max := d.maxInFlight.Load()
		if n <= max || d.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(200 * time.Microsecond)
	d.inFlight.Add(-1)
	d.calls.Add(1)
	return nil, nil
}

func TestSerializeDetector_NoOverlappingCalls(t *testing.T) {
	inner := &overlapDetector{}
	shared := SerializeDetector(inner)

	const workers, perWorker = 4, 25
	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := shared.Detect(context.Background(), Frame{Seq: uint64(i)}, nil, 0.5); err != nil {
					t.Errorf("detect: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if got := inner.calls.Load(); got != workers*perWorker {
		t.Errorf("calls = %d, want %d", got, workers*perWorker)
	}
	if max := inner.maxInFlight.Load(); max != 1 {
		t.Errorf("max concurrent detector calls = %d, want 1", max)
	}
}
