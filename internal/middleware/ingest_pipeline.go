package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"QuantDesk/internal/domain/models"
	domrepo "QuantDesk/internal/domain/repository"
	"QuantDesk/pkg/util"
)

// Proc is the minimal downstream interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, b *models.Bar) error
}

// IngestPipeline sits between the market feed and the bar sink. It
// validates bars, drops per-symbol duplicates for the same trading day,
// and buffers when the downstream is unavailable, flushing with backoff.
type IngestPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan *models.Bar
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	// per-symbol date of the last accepted bar; a later bar for the same
	// day replaces nothing and is dropped
	lastDay map[string]string
}

type PipelineOption func(*IngestPipeline)

// WithBufferSize sets the temporary buffer size used when the downstream
// is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		proc:    proc,
		metrics: metrics,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
		lastDay: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Bar, p.bufSize)
	return p
}

// Start launches background flushing of buffered bars.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case b := <-p.bufCh:
				if b == nil {
					continue
				}
				if err := p.proc.Process(ctx, b); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- b:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and forwards one bar, buffering on downstream errors.
// Duplicate same-day bars are dropped silently; the first bar for a
// trading day wins end to end.
func (p *IngestPipeline) Process(ctx context.Context, b *models.Bar) error {
	start := time.Now()
	if err := validateBar(b); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.accept(b) {
		p.metrics.RecordError("pipeline_duplicate")
		return nil
	}

	if err := p.proc.Process(ctx, b); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- b:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateBar(b *models.Bar) error {
	if b == nil {
		return fmt.Errorf("bar nil")
	}
	if b.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if _, ok := util.ParseDay(b.Date); !ok {
		return fmt.Errorf("bad date %q", b.Date)
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if b.High < b.Low {
		return fmt.Errorf("high below low")
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume")
	}
	return nil
}

func (p *IngestPipeline) accept(b *models.Bar) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastDay[b.Symbol] == b.Date {
		return false
	}
	p.lastDay[b.Symbol] = b.Date
	return true
}
