package trace

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tracekit/tracekit-go/internal/logging"
)

// ErrProcessorShutdown is returned by Flush and Shutdown after the processor
// has stopped accepting spans.
var ErrProcessorShutdown = errors.New("trace: processor is shut down")

// Exporter delivers frozen span batches to a collector. Export must not
// panic; delivery failures are reported through finish events and the
// returned error, never retried here.
type Exporter interface {
	Export(ctx context.Context, batch []SpanData) error
	Shutdown(ctx context.Context) error
}

// Processor defaults.
const (
	DefaultMaxQueueSize  = 2048
	DefaultBatchSize     = 512
	DefaultScheduleDelay = 5 * time.Second
)

const (
	stateActive int32 = iota
	stateShuttingDown
	stateShutDown
)

// Processor buffers finished spans in a bounded queue and forwards them to
// the exporter in batches, triggered by whichever fires first: the batch
// filling up or the schedule delay elapsing. When the queue is full new spans
// are dropped immediately; producers never block.
type Processor struct {
	queue     chan SpanData
	flushCh   chan chan struct{}
	quit      chan struct{}
	batchSize int
	delay     time.Duration
	exporter  Exporter
	logger    *logging.Logger

	state   atomic.Int32
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithMaxQueueSize bounds the span queue.
func WithMaxQueueSize(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.queue = make(chan SpanData, n)
		}
	}
}

// WithBatchSize sets the count that triggers an immediate flush.
func WithBatchSize(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithScheduleDelay sets the maximum time a span waits before flush.
func WithScheduleDelay(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.delay = d
		}
	}
}

// WithProcessorLogger sets the processor's logger.
func WithProcessorLogger(l *logging.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor starts the background export worker. Call Shutdown to stop it.
func NewProcessor(exporter Exporter, opts ...ProcessorOption) *Processor {
	p := &Processor{
		queue:     make(chan SpanData, DefaultMaxQueueSize),
		flushCh:   make(chan chan struct{}),
		quit:      make(chan struct{}),
		batchSize: DefaultBatchSize,
		delay:     DefaultScheduleDelay,
		exporter:  exporter,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.loop()
	return p
}

// Enqueue offers one frozen span to the queue. It returns false, without
// blocking, when the queue is full or the processor is no longer active.
func (p *Processor) Enqueue(data SpanData) bool {
	if p.state.Load() != stateActive {
		return false
	}
	select {
	case p.queue <- data:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped reports how many spans were rejected by a full queue.
func (p *Processor) Dropped() int64 {
	return p.dropped.Load()
}

// Flush synchronously drains everything queued so far, bounded by ctx. Not
// for steady-state use; the background worker handles normal delivery.
func (p *Processor) Flush(ctx context.Context) error {
	if p.state.Load() != stateActive {
		return ErrProcessorShutdown
	}
	done := make(chan struct{})
	select {
	case p.flushCh <- done:
	case <-p.quit:
		return ErrProcessorShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake, drains the queue with a bounded wait, and releases
// the exporter. Subsequent Shutdown calls return ErrProcessorShutdown.
func (p *Processor) Shutdown(ctx context.Context) error {
	if !p.state.CompareAndSwap(stateActive, stateShuttingDown) {
		return ErrProcessorShutdown
	}
	close(p.quit)

	workerDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(workerDone)
	}()

	var err error
	select {
	case <-workerDone:
	case <-ctx.Done():
		err = ctx.Err()
	}

	p.state.Store(stateShutDown)
	if shutdownErr := p.exporter.Shutdown(ctx); err == nil {
		err = shutdownErr
	}
	return err
}

func (p *Processor) loop() {
	defer p.wg.Done()

	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	batch := make([]SpanData, 0, p.batchSize)

	resetTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.delay)
	}

	for {
		select {
		case data := <-p.queue:
			batch = append(batch, data)
			if len(batch) >= p.batchSize {
				p.export(batch)
				batch = batch[:0]
				resetTimer()
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.export(batch)
				batch = batch[:0]
			}
			timer.Reset(p.delay)

		case done := <-p.flushCh:
			batch = p.drain(batch)
			if len(batch) > 0 {
				p.export(batch)
				batch = batch[:0]
			}
			close(done)
			resetTimer()

		case <-p.quit:
			batch = p.drain(batch)
			if len(batch) > 0 {
				p.export(batch)
			}
			return
		}
	}
}

// drain moves everything currently queued into batch, exporting full batches
// along the way.
func (p *Processor) drain(batch []SpanData) []SpanData {
	for {
		select {
		case data := <-p.queue:
			batch = append(batch, data)
			if len(batch) >= p.batchSize {
				p.export(batch)
				batch = batch[:0]
			}
		default:
			return batch
		}
	}
}

func (p *Processor) export(batch []SpanData) {
	if err := p.exporter.Export(context.Background(), batch); err != nil {
		p.logger.Warn("span batch export finished with failures",
			zap.Int("spans", len(batch)), zap.Error(err))
	}
}
