package usecase

import (
	"context"
	"encoding/json"
	"time"

	"QuantDesk/internal/domain/models"
	domrepo "QuantDesk/internal/domain/repository"
	pkgkafka "QuantDesk/pkg/kafka"
	"QuantDesk/pkg/util"
)

// KafkaBarsHandler consumes the daily-bar topic and writes rows to storage.
type KafkaBarsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

func (h *KafkaBarsHandler) Handle(ctx context.Context, data []byte) error {
	var b models.Bar
	if err := json.Unmarshal(data, &b); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if _, ok := util.ParseDay(b.Date); !ok {
		h.metrics.RecordError("consumer_bad_date")
		return nil // poison row, not retryable
	}

	start := time.Now()
	if err := h.storage.Store(ctx, &b); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	h.metrics.RecordBarStored("clickhouse", b.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
