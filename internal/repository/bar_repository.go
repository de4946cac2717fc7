package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"QuantDesk/internal/domain/models"
	"QuantDesk/internal/domain/repository"
	pkgkafka "QuantDesk/pkg/kafka"
	"QuantDesk/pkg/util"
)

// Schema statements for the daily bar table. The ReplacingMergeTree
// collapses re-ingested rows per (symbol, day); the first version kept
// downstream is enforced by the pipeline's same-day dedupe.
func BarSchema(table string) []string {
	return []string{fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    symbol LowCardinality(String),
    day Date,
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    volume Float64,
    ingested_at DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(ingested_at)
ORDER BY (symbol, day)`, table)}
}

// ClickHouseBarStore implements Storage and HistoryStore over one daily
// bar table.
type ClickHouseBarStore struct {
	db    *sql.DB
	table string
}

func NewClickHouseBarStore(db *sql.DB, table string) *ClickHouseBarStore {
	return &ClickHouseBarStore{db: db, table: table}
}

var (
	_ repository.Storage      = (*ClickHouseBarStore)(nil)
	_ repository.HistoryStore = (*ClickHouseBarStore)(nil)
)

func (s *ClickHouseBarStore) Init(ctx context.Context) error {
	for _, stmt := range BarSchema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init bar schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseBarStore) Store(ctx context.Context, b *models.Bar) error {
	day, ok := util.ParseDay(b.Date)
	if !ok {
		return fmt.Errorf("bad bar date %q", b.Date)
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, day, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q, b.Symbol, day, b.Open, b.High, b.Low, b.Close, b.Volume)
	return err
}

func (s *ClickHouseBarStore) StoreBatch(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, b := range bars[start:end] {
			if b == nil || b.Symbol == "" {
				continue
			}
			day, ok := util.ParseDay(b.Date)
			if !ok {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.Symbol, day, b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, day, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

// GetDaily returns the deduped history for [from, to], date ascending.
func (s *ClickHouseBarStore) GetDaily(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error) {
	q := fmt.Sprintf(`SELECT day, open, high, low, close, volume
FROM %s FINAL
WHERE symbol = ? AND day >= ? AND day <= ?
ORDER BY day ASC`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("query daily bars: %w", err)
	}
	defer rows.Close()
	return scanSeries(symbol, rows)
}

// GetLatestN returns the most recent n bars, date ascending.
func (s *ClickHouseBarStore) GetLatestN(ctx context.Context, symbol string, n int) (models.PriceSeries, error) {
	q := fmt.Sprintf(`SELECT day, open, high, low, close, volume
FROM %s FINAL
WHERE symbol = ?
ORDER BY day DESC
LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("query latest bars: %w", err)
	}
	defer rows.Close()
	return scanSeries(symbol, rows)
}

func scanSeries(symbol string, rows *sql.Rows) (models.PriceSeries, error) {
	var pts []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return models.PriceSeries{}, fmt.Errorf("scan bar: %w", err)
		}
		p.AdjClose = p.Close
		pts = append(pts, p)
	}
	if err := rows.Err(); err != nil {
		return models.PriceSeries{}, err
	}
	// NewPriceSeries re-sorts ascending, so DESC-limited reads come out in
	// walk order.
	return models.NewPriceSeries(symbol, pts), nil
}

func (s *ClickHouseBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseBarStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}

// KafkaBarPublisher implements Publisher over the bar topic. Keys by
// symbol so per-symbol ordering survives partitioning.
type KafkaBarPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaBarPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaBarPublisher{producer: producer, topic: topic}
}

func (p *KafkaBarPublisher) Publish(ctx context.Context, b *models.Bar) error {
	return p.producer.Publish(ctx, p.topic, []byte(b.Symbol), b)
}

func (p *KafkaBarPublisher) PublishBatch(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(bars))
	for i, b := range bars {
		msgs[i] = pkgkafka.Message{Key: []byte(b.Symbol), Value: b}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaBarPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
