package repository

import (
	"context"
	"time"

	"QuantDesk/internal/domain/models"
)

// MarketStream is a live quote/bar source (websocket behind it).
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher pushes bars onto the ingestion topic.
type Publisher interface {
	Publish(ctx context.Context, b *models.Bar) error
	PublishBatch(ctx context.Context, bars []*models.Bar) error
	Close() error
}

// Storage persists daily bars.
type Storage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, b *models.Bar) error
	StoreBatch(ctx context.Context, bars []*models.Bar) error
	Health(ctx context.Context) error
	Close() error
}

// HistoryStore provides read access to the daily price history the
// forecasting core runs on. Series come back date-ascending and deduped.
type HistoryStore interface {
	GetDaily(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error)
	GetLatestN(ctx context.Context, symbol string, n int) (models.PriceSeries, error)
}

// Metrics is the observability port the engine calls through. Production
// wires Prometheus; tests pass a no-op.
type Metrics interface {
	RecordBarStored(backend, symbol string)
	RecordError(kind string)
	RecordLastClose(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordRun(kind string)
	RecordStopOut(symbol string)
}
