package usecase

import (
	"context"

	"QuantDesk/internal/domain/models"
	drepo "QuantDesk/internal/domain/repository"
	mid "QuantDesk/internal/middleware"
)

// BarCollector consumes the market feed and pushes bars through the
// ingestion pipeline into the processor.
type BarCollector struct {
	stream  drepo.MarketStream
	proc    *BarProcessor
	metrics drepo.Metrics
	pipe    *mid.IngestPipeline
}

func NewBarCollector(stream drepo.MarketStream, proc *BarProcessor, metrics drepo.Metrics, pipe *mid.IngestPipeline) *BarCollector {
	return &BarCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected reports whether the market stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	barCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, barCh, errCh)
	return nil
}

func (c *BarCollector) consume(ctx context.Context, barCh <-chan *models.Bar, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case b := <-barCh:
			if b == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, b)
			} else {
				_ = c.proc.Process(ctx, b)
			}
			c.metrics.RecordLastClose(b.Symbol, b.Close)
		}
	}
}

// Processor returns the underlying BarProcessor for lifecycle management.
func (c *BarCollector) Processor() *BarProcessor { return c.proc }

// Shutdown flushes provisional bars, stops the pipeline and closes the
// stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	if f, ok := c.stream.(interface{ Flush() }); ok {
		f.Flush()
	}
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
