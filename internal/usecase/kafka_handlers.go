package usecase

import (
	"context"
	"encoding/json"
	"time"

	"PowerDesk/internal/domain/models"
	domrepo "PowerDesk/internal/domain/repository"
	"PowerDesk/internal/repository"
	pkgkafka "PowerDesk/pkg/kafka"
)

// KafkaPricesHandler consumes the price ticks topic and writes to storage.
type KafkaPricesHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaPricesHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaPricesHandler {
	return &KafkaPricesHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaPricesHandler) Topic() string { return h.topic }

func (h *KafkaPricesHandler) Handle(ctx context.Context, b []byte) error {
	var m repository.PriceMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	p := m.MarketPrice()
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(p.Timestamp).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, p)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent(BackendClickHouse, p.Region)
	return nil
}

// KafkaReportsHandler consumes the reports topic into the report store.
type KafkaReportsHandler struct {
	topic   string
	store   domrepo.ReportStore
	metrics domrepo.Metrics
}

func NewKafkaReportsHandler(topic string, store domrepo.ReportStore, metrics domrepo.Metrics) *KafkaReportsHandler {
	return &KafkaReportsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaReportsHandler) Topic() string { return h.topic }

func (h *KafkaReportsHandler) Handle(ctx context.Context, b []byte) error {
	var a models.Analysis
	if err := json.Unmarshal(b, &a); err != nil {
		h.metrics.RecordError("report_unmarshal")
		return err
	}
	if err := h.store.Save(ctx, &a); err != nil {
		h.metrics.RecordError("report_store")
		return err
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*KafkaPricesHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaReportsHandler)(nil)
)
