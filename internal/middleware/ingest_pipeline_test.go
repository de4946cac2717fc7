package middleware

import (
	"context"
	"errors"
	"testing"

	"QuantDesk/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordBarStored(string, string)  {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastClose(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordRun(string)                {}
func (nopMetrics) RecordStopOut(string)            {}

type recordingProc struct {
	bars []*models.Bar
	err  error
}

func (p *recordingProc) Process(ctx context.Context, b *models.Bar) error {
	if p.err != nil {
		return p.err
	}
	p.bars = append(p.bars, b)
	return nil
}

func goodBar(symbol, date string) *models.Bar {
	return &models.Bar{Symbol: symbol, Date: date, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000}
}

func TestPipelineRejectsInvalidBars(t *testing.T) {
	proc := &recordingProc{}
	p := NewIngestPipeline(proc, nopMetrics{})

	tests := []struct {
		name string
		bar  *models.Bar
	}{
		{"nil bar", nil},
		{"empty symbol", &models.Bar{Date: "2024-01-02", Open: 1, High: 1, Low: 1, Close: 1}},
		{"bad date", &models.Bar{Symbol: "AAPL", Date: "Jan 2", Open: 1, High: 1, Low: 1, Close: 1}},
		{"zero close", &models.Bar{Symbol: "AAPL", Date: "2024-01-02", Open: 1, High: 1, Low: 1}},
		{"high below low", &models.Bar{Symbol: "AAPL", Date: "2024-01-02", Open: 1, High: 1, Low: 2, Close: 1}},
		{"negative volume", &models.Bar{Symbol: "AAPL", Date: "2024-01-02", Open: 1, High: 2, Low: 1, Close: 1, Volume: -1}},
	}
	for _, tc := range tests {
		if err := p.Process(context.Background(), tc.bar); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
	if len(proc.bars) != 0 {
		t.Fatalf("invalid bars reached downstream: %d", len(proc.bars))
	}
}

func TestPipelineDropsSameDayDuplicates(t *testing.T) {
	proc := &recordingProc{}
	p := NewIngestPipeline(proc, nopMetrics{})
	ctx := context.Background()

	if err := p.Process(ctx, goodBar("AAPL", "2024-01-02")); err != nil {
		t.Fatalf("first bar: %v", err)
	}
	if err := p.Process(ctx, goodBar("AAPL", "2024-01-02")); err != nil {
		t.Fatalf("duplicate should drop silently, got %v", err)
	}
	if err := p.Process(ctx, goodBar("MSFT", "2024-01-02")); err != nil {
		t.Fatalf("other symbol same day: %v", err)
	}
	if err := p.Process(ctx, goodBar("AAPL", "2024-01-03")); err != nil {
		t.Fatalf("next day: %v", err)
	}
	if len(proc.bars) != 3 {
		t.Fatalf("downstream saw %d bars, want 3", len(proc.bars))
	}
}

func TestPipelineBuffersOnDownstreamFailure(t *testing.T) {
	proc := &recordingProc{err: errors.New("sink down")}
	p := NewIngestPipeline(proc, nopMetrics{}, WithBufferSize(4))

	err := p.Process(context.Background(), goodBar("AAPL", "2024-01-02"))
	if err == nil {
		t.Fatalf("downstream failure should propagate")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("failed bar not buffered: depth %d", len(p.bufCh))
	}
}
