package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"PowerDesk/internal/domain/models"
	"PowerDesk/internal/domain/repository"
	pkgch "PowerDesk/pkg/clickhouse"
	pkgkafka "PowerDesk/pkg/kafka"

	"github.com/google/uuid"
)

// CHReportStore persists analyses in ClickHouse. Figures are stored as JSON
// text and come back as generic JSON values.
type CHReportStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
}

func NewCHReportStore(ch *pkgch.Client, database string) *CHReportStore {
	return &CHReportStore{ch: ch, db: ch.DB(), table: database + "." + ReportsTable}
}

func reportRow(a *models.Analysis) ([]interface{}, error) {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return nil, fmt.Errorf("report id: %w", err)
	}
	figures := ""
	if a.Figures != nil {
		b, err := json.Marshal(a.Figures)
		if err != nil {
			return nil, fmt.Errorf("encode figures: %w", err)
		}
		figures = string(b)
	}
	var cached uint8
	if a.Cached {
		cached = 1
	}
	sources := a.Sources
	if sources == nil {
		sources = []string{}
	}
	return []interface{}{id, a.SessionID, string(a.Kind), a.CreatedAt.UTC(), a.Provider, a.Model, cached, a.Summary, figures, sources}, nil
}

func (s *CHReportStore) Save(ctx context.Context, a *models.Analysis) error {
	row, err := reportRow(a)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (id, session_id, kind, created_at, provider, model, cached, summary, figures, sources) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	if err := s.ch.InsertBatch(ctx, q, [][]interface{}{row}); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// List returns the newest reports first. Empty sessionID or kind match all.
func (s *CHReportStore) List(ctx context.Context, sessionID string, kind models.AnalysisKind, limit int) ([]*models.Analysis, error) {
	var (
		where []string
		args  []interface{}
	)
	if sessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, sessionID)
	}
	if kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(kind))
	}
	q := fmt.Sprintf("SELECT id, session_id, kind, created_at, provider, model, cached, summary, figures, sources FROM %s", s.table)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []*models.Analysis
	for rows.Next() {
		var (
			a       models.Analysis
			id      uuid.UUID
			kind    string
			cached  uint8
			figures string
		)
		if err := rows.Scan(&id, &a.SessionID, &kind, &a.CreatedAt, &a.Provider, &a.Model, &cached, &a.Summary, &figures, &a.Sources); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		a.ID = id.String()
		a.Kind = models.AnalysisKind(kind)
		a.Cached = cached == 1
		if figures != "" {
			a.Figures = json.RawMessage(figures)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// KafkaReportPublisher ships analyses to the reports topic keyed by session.
type KafkaReportPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaReportPublisher(producer *pkgkafka.Producer, topic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: producer, topic: topic}
}

func (p *KafkaReportPublisher) PublishReport(ctx context.Context, a *models.Analysis) error {
	return p.producer.Publish(ctx, p.topic, []byte(a.SessionID), a)
}

var (
	_ repository.ReportStore     = (*CHReportStore)(nil)
	_ repository.ReportPublisher = (*KafkaReportPublisher)(nil)
)
