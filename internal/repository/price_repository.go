package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/internal/domain/repository"
	pkgch "PowerDesk/pkg/clickhouse"
	pkgkafka "PowerDesk/pkg/kafka"

	"github.com/shopspring/decimal"
)

// PriceMessage is the wire format of the price ticks topic.
type PriceMessage struct {
	Region string          `json:"region"`
	T      int64           `json:"t"` // unix ms
	Price  decimal.Decimal `json:"price"`
	Volume float64         `json:"volume"`
	Unit   string          `json:"unit,omitempty"`
	Source string          `json:"source"`
}

func NewPriceMessage(p *models.MarketPrice) PriceMessage {
	return PriceMessage{
		Region: p.Region,
		T:      p.Timestamp.UnixMilli(),
		Price:  p.Price,
		Volume: p.Volume,
		Unit:   p.Unit,
		Source: p.Source,
	}
}

func (m PriceMessage) MarketPrice() *models.MarketPrice {
	return &models.MarketPrice{
		Region:    m.Region,
		Timestamp: time.UnixMilli(m.T).UTC(),
		Price:     m.Price,
		Volume:    m.Volume,
		Unit:      m.Unit,
		Source:    m.Source,
	}
}

// eventID makes replays of the same tick collapse in ReplacingMergeTree.
func eventID(p *models.MarketPrice) string {
	return fmt.Sprintf("%s-%s-%d", p.Source, p.Region, p.Timestamp.UnixMilli())
}

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
}

func NewClickHouseStorage(ch *pkgch.Client, database string) *ClickHouseStorage {
	return &ClickHouseStorage{ch: ch, db: ch.DB(), table: database + "." + PricesTable}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return s.Health(ctx)
}

func (s *ClickHouseStorage) insertQuery() string {
	return fmt.Sprintf("INSERT INTO %s (ts, region, price, volume, unit, source, event_id) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
}

func priceRow(p *models.MarketPrice) []interface{} {
	return []interface{}{p.Timestamp.UTC(), p.Region, p.Price, p.Volume, p.Unit, p.Source, eventID(p)}
}

func (s *ClickHouseStorage) Store(ctx context.Context, p *models.MarketPrice) error {
	if _, err := s.db.ExecContext(ctx, s.insertQuery(), priceRow(p)...); err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

// StoreBatch inserts in chunks; ticks without region or timestamp are skipped.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, prices []*models.MarketPrice) error {
	const chunkSize = 2000
	rows := make([][]interface{}, 0, len(prices))
	for _, p := range prices {
		if p == nil || p.Region == "" || p.Timestamp.IsZero() {
			continue
		}
		rows = append(rows, priceRow(p))
	}
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.ch.InsertBatch(ctx, s.insertQuery(), rows[start:end]); err != nil {
			return fmt.Errorf("insert prices: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) Query(ctx context.Context, region string, from, to time.Time, limit int) ([]*models.MarketPrice, error) {
	q := fmt.Sprintf("SELECT region, ts, price, volume, unit, source FROM %s WHERE region = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, region, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var out []*models.MarketPrice
	for rows.Next() {
		var p models.MarketPrice
		if err := rows.Scan(&p.Region, &p.Timestamp, &p.Price, &p.Volume, &p.Unit, &p.Source); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the client is shared and closed by the app.
func (s *ClickHouseStorage) Close() error { return nil }

// KafkaPublisher implements Publisher for Kafka, keyed by region.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, price *models.MarketPrice) error {
	return p.producer.Publish(ctx, p.topic, []byte(price.Region), NewPriceMessage(price))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, prices []*models.MarketPrice) error {
	if len(prices) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(prices))
	for i, price := range prices {
		msgs[i] = pkgkafka.Message{Key: []byte(price.Region), Value: NewPriceMessage(price)}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close is a no-op; the producer is shared and closed by the app.
func (p *KafkaPublisher) Close() error { return nil }

var (
	_ repository.Storage   = (*ClickHouseStorage)(nil)
	_ repository.Publisher = (*KafkaPublisher)(nil)
)
