// Package audio captures microphone input and cuts it into sequenced
// chunks for upload.
package audio

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	pcmBytesPerSample = 2 // PCM16-LE, mono
	deliveryBuffer    = 16
)

// ErrCaptureActive is returned by Start while a capture is already running.
var ErrCaptureActive = errors.New("audio capture already active")

// Source is the microphone capability the pipeline consumes. Read blocks
// until samples are available; after Stop it is expected to fail.
type Source interface {
	Start() error
	Stop() error
	Read() ([]int16, error)
}

// Chunk is one segment of captured audio. Sequence numbers start at 1 and
// increase by 1 per chunk within one recording instance.
type Chunk struct {
	Seq int
	PCM []byte
}

// Pipeline acquires a Source and produces chunks of a fixed time slice.
// Sequence numbers are assigned synchronously the moment a chunk is cut,
// never reordered and never reused within one recording. Delivery to the
// sink is serial and best-effort: a slow sink fills a bounded buffer and
// further chunks are dropped with an error report, but capture never halts.
type Pipeline struct {
	source     Source
	sampleRate int
	slice      time.Duration
	onError    func(seq int, err error)

	mu         sync.Mutex
	running    bool
	seq        int
	deliveries chan Chunk
	captured   chan struct{}
	delivered  chan struct{}
}

// NewPipeline builds a pipeline cutting chunks of the given time slice
// (default 5s) from a source producing sampleRate mono PCM16 samples.
func NewPipeline(source Source, sampleRate int, slice time.Duration) *Pipeline {
	if slice <= 0 {
		slice = 5 * time.Second
	}
	p := &Pipeline{
		source:     source,
		sampleRate: sampleRate,
		slice:      slice,
	}
	p.onError = func(seq int, err error) {
		log.Printf("audio chunk %d: %v", seq, err)
	}
	return p
}

// SetErrorHook replaces the default log-based sink for per-chunk failures.
// Must be called before Start.
func (p *Pipeline) SetErrorHook(hook func(seq int, err error)) {
	if hook != nil {
		p.onError = hook
	}
}

// Start acquires the source and begins producing chunks. onChunk is awaited
// per chunk; its error is reported through the error hook without stopping
// capture. A source acquisition failure leaves the pipeline inactive.
func (p *Pipeline) Start(onChunk func(Chunk) error) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrCaptureActive
	}
	if err := p.source.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("start audio source: %w", err)
	}
	p.running = true
	p.seq = 0
	p.deliveries = make(chan Chunk, deliveryBuffer)
	p.captured = make(chan struct{})
	p.delivered = make(chan struct{})
	deliveries := p.deliveries
	captured := p.captured
	delivered := p.delivered
	p.mu.Unlock()

	go p.captureLoop(deliveries, captured)
	go func() {
		defer close(delivered)
		for chunk := range deliveries {
			if err := onChunk(chunk); err != nil {
				p.onError(chunk.Seq, err)
			}
		}
	}()

	return nil
}

// Stop ends capture, releases the source, and waits for buffered chunks to
// drain through the sink. Safe to call when not started or already stopped.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	deliveries := p.deliveries
	captured := p.captured
	delivered := p.delivered
	p.mu.Unlock()

	// Stopping the source unblocks the pending Read in the capture loop.
	err := p.source.Stop()
	<-captured
	close(deliveries)
	<-delivered

	if err != nil {
		return fmt.Errorf("stop audio source: %w", err)
	}
	return nil
}

// Sequence reports the sequence number of the most recently cut chunk.
func (p *Pipeline) Sequence() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

func (p *Pipeline) captureLoop(deliveries chan Chunk, captured chan struct{}) {
	defer close(captured)

	chunkBytes := p.sampleRate * pcmBytesPerSample * int(p.slice/time.Millisecond) / 1000
	if chunkBytes <= 0 {
		chunkBytes = p.sampleRate * pcmBytesPerSample
	}
	pending := make([]byte, 0, chunkBytes)

	for {
		samples, err := p.source.Read()
		if err != nil {
			if p.isRunning() {
				p.onError(0, fmt.Errorf("read audio source: %w", err))
			}
			break
		}
		for _, s := range samples {
			pending = append(pending, byte(s), byte(s>>8))
		}
		for len(pending) >= chunkBytes {
			p.cut(deliveries, pending[:chunkBytes])
			pending = append(pending[:0:0], pending[chunkBytes:]...)
		}
	}

	// Flush the final partial chunk; empty chunks are never delivered.
	if len(pending) > 0 {
		p.cut(deliveries, pending)
	}
}

func (p *Pipeline) cut(deliveries chan Chunk, pcm []byte) {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	chunk := Chunk{Seq: seq, PCM: append([]byte(nil), pcm...)}
	select {
	case deliveries <- chunk:
	default:
		// A full buffer drops the chunk instead of stalling the capture
		// loop; the drop is reported through the hook and never retried.
		p.onError(seq, errors.New("delivery buffer full, chunk dropped"))
	}
}

func (p *Pipeline) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
