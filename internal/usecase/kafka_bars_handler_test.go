package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"QuantDesk/internal/domain/models"
)

type fakeStorage struct {
	bars []*models.Bar
	err  error
}

func (s *fakeStorage) Init(ctx context.Context) error { return nil }
func (s *fakeStorage) Store(ctx context.Context, b *models.Bar) error {
	if s.err != nil {
		return s.err
	}
	s.bars = append(s.bars, b)
	return nil
}
func (s *fakeStorage) StoreBatch(ctx context.Context, bars []*models.Bar) error {
	if s.err != nil {
		return s.err
	}
	s.bars = append(s.bars, bars...)
	return nil
}
func (s *fakeStorage) Health(ctx context.Context) error { return nil }
func (s *fakeStorage) Close() error                     { return nil }

func TestKafkaBarsHandlerStoresBar(t *testing.T) {
	store := &fakeStorage{}
	h := NewKafkaBarsHandler("bars.daily", store, nopMetrics{})

	if h.Topic() != "bars.daily" {
		t.Fatalf("topic %q", h.Topic())
	}
	payload, _ := json.Marshal(models.Bar{
		Symbol: "AAPL", Date: "2024-01-02", Open: 185, High: 186, Low: 183, Close: 185.6, Volume: 5e7,
	})
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.bars) != 1 || store.bars[0].Symbol != "AAPL" {
		t.Fatalf("bar not stored: %+v", store.bars)
	}
}

func TestKafkaBarsHandlerRejectsGarbage(t *testing.T) {
	store := &fakeStorage{}
	h := NewKafkaBarsHandler("bars.daily", store, nopMetrics{})

	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatalf("garbage payload should error")
	}
	// A structurally valid message with an unparseable date is poison:
	// swallowed, never retried, never stored.
	payload, _ := json.Marshal(models.Bar{Symbol: "AAPL", Date: "02/01/2024", Close: 185})
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("poison message should not be retried: %v", err)
	}
	if len(store.bars) != 0 {
		t.Fatalf("bad rows stored: %d", len(store.bars))
	}
}
