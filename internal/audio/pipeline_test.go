package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSource serves fed sample buffers until stopped; Read fails once the
// source is stopped, mirroring how a real device read unblocks.
type fakeSource struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	data     chan []int16
	quit     chan struct{}
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.data = make(chan []int16, 64)
	f.quit = make(chan struct{})
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.quit != nil {
		close(f.quit)
		f.quit = nil
	}
	return nil
}

func (f *fakeSource) Read() ([]int16, error) {
	f.mu.Lock()
	data, quit := f.data, f.quit
	f.mu.Unlock()
	if quit == nil {
		return nil, errors.New("source not running")
	}
	select {
	case samples := <-data:
		return samples, nil
	case <-quit:
		return nil, errors.New("source stopped")
	}
}

func (f *fakeSource) feed(samples []int16) {
	f.mu.Lock()
	data := f.data
	f.mu.Unlock()
	data <- samples
}

// waitDrained blocks until every fed buffer has been picked up by Read, so
// a following Stop cannot race the last read.
func (f *fakeSource) waitDrained(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		pending := len(f.data)
		f.mu.Unlock()
		if pending == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("source buffer never drained")
}

func samples(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i + 1)
	}
	return out
}

func waitChunk(t *testing.T, chunks chan Chunk) Chunk {
	t.Helper()
	select {
	case chunk := <-chunks:
		return chunk
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
		return Chunk{}
	}
}

// 1000 Hz at PCM16 mono and an 8ms slice gives 16-byte chunks (8 samples).
func newTestPipeline(src *fakeSource) *Pipeline {
	return NewPipeline(src, 1000, 8*time.Millisecond)
}

func TestPipelineSequencesChunksWithoutGaps(t *testing.T) {
	src := &fakeSource{}
	p := newTestPipeline(src)

	chunks := make(chan Chunk, 32)
	if err := p.Start(func(c Chunk) error {
		chunks <- c
		return nil
	}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		src.feed(samples(8))
	}

	for want := 1; want <= 3; want++ {
		chunk := waitChunk(t, chunks)
		if chunk.Seq != want {
			t.Fatalf("expected sequence %d, got %d", want, chunk.Seq)
		}
		if len(chunk.PCM) != 16 {
			t.Fatalf("expected 16-byte chunk, got %d", len(chunk.PCM))
		}
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestPipelineFlushesFinalPartialChunk(t *testing.T) {
	src := &fakeSource{}
	p := newTestPipeline(src)

	chunks := make(chan Chunk, 32)
	if err := p.Start(func(c Chunk) error {
		chunks <- c
		return nil
	}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	src.feed(samples(8))
	first := waitChunk(t, chunks)
	if first.Seq != 1 {
		t.Fatalf("expected sequence 1, got %d", first.Seq)
	}

	// Half a chunk, then stop: the partial remainder is flushed.
	src.feed(samples(4))
	src.waitDrained(t)
	if err := p.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	final := waitChunk(t, chunks)
	if final.Seq != 2 {
		t.Fatalf("expected final sequence 2, got %d", final.Seq)
	}
	if len(final.PCM) != 8 {
		t.Fatalf("expected 8-byte partial chunk, got %d", len(final.PCM))
	}
}

func TestPipelineDeliveryFailureDoesNotStopCapture(t *testing.T) {
	src := &fakeSource{}
	p := newTestPipeline(src)

	errs := make(chan int, 8)
	p.SetErrorHook(func(seq int, err error) { errs <- seq })

	chunks := make(chan Chunk, 32)
	if err := p.Start(func(c Chunk) error {
		if c.Seq == 1 {
			return errors.New("sink rejected chunk")
		}
		chunks <- c
		return nil
	}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	src.feed(samples(8))
	src.feed(samples(8))

	select {
	case seq := <-errs:
		if seq != 1 {
			t.Fatalf("expected failure reported for chunk 1, got %d", seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivery failure was never reported")
	}

	chunk := waitChunk(t, chunks)
	if chunk.Seq != 2 {
		t.Fatalf("capture should continue after a failed delivery, got seq %d", chunk.Seq)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestPipelineStartFailureLeavesCaptureInactive(t *testing.T) {
	src := &fakeSource{startErr: errors.New("no device")}
	p := newTestPipeline(src)

	if err := p.Start(func(Chunk) error { return nil }); err == nil {
		t.Fatal("expected start to fail")
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop on inactive pipeline should be a no-op, got %v", err)
	}
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	p := newTestPipeline(src)

	if err := p.Stop(); err != nil {
		t.Fatalf("stop before start should be a no-op, got %v", err)
	}

	if err := p.Start(func(Chunk) error { return nil }); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}

	src.mu.Lock()
	stops := src.stops
	src.mu.Unlock()
	if stops != 1 {
		t.Fatalf("expected the device released exactly once, got %d", stops)
	}
}

func TestPipelineRestartResetsSequence(t *testing.T) {
	src := &fakeSource{}
	p := newTestPipeline(src)

	chunks := make(chan Chunk, 32)
	onChunk := func(c Chunk) error {
		chunks <- c
		return nil
	}

	if err := p.Start(onChunk); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	src.feed(samples(8))
	if got := waitChunk(t, chunks).Seq; got != 1 {
		t.Fatalf("expected sequence 1, got %d", got)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if err := p.Start(onChunk); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	src.feed(samples(8))
	if got := waitChunk(t, chunks).Seq; got != 1 {
		t.Fatalf("new recording should restart sequences at 1, got %d", got)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
