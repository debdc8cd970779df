package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domrepo "PowerDesk/internal/domain/repository"
	pkgch "PowerDesk/pkg/clickhouse"
	applogger "PowerDesk/pkg/logger"
)

// CHPriceHistory implements PriceHistory over the raw ticks table, bucketing
// at query time.
type CHPriceHistory struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHPriceHistory(ch *pkgch.Client, database string) *CHPriceHistory {
	return &CHPriceHistory{db: ch.DB(), table: database + "." + PricesTable}
}

// SetLogger injects a structured logger.
func (s *CHPriceHistory) SetLogger(l *applogger.Logger) { s.l = l }

func bucketExpr(res domrepo.Resolution) (string, error) {
	switch res {
	case domrepo.ResRaw:
		return "ts", nil
	case domrepo.ResSettlement:
		return "toStartOfInterval(ts, INTERVAL 30 minute)", nil
	case domrepo.ResHour:
		return "toStartOfHour(ts)", nil
	case domrepo.ResDay:
		return "toDateTime64(toStartOfDay(ts), 3, 'UTC')", nil
	default:
		return "", fmt.Errorf("unsupported resolution: %s", res)
	}
}

func (s *CHPriceHistory) GetPrices(ctx context.Context, region string, from, to time.Time, res domrepo.Resolution) ([]domrepo.PricePoint, error) {
	bucket, err := bucketExpr(res)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT %s AS bucket, region, toFloat64(avg(price)) AS price, sum(volume) AS volume
        FROM %s
        WHERE region = ? AND ts >= ? AND ts <= ?
        GROUP BY bucket, region
        ORDER BY bucket ASC
    `
	out, err := s.query(ctx, "get_prices", fmt.Sprintf(qtpl, bucket, s.table), region, from, to)
	if err != nil {
		return nil, err
	}
	s.debug("get_prices", region, res, len(out))
	return out, nil
}

// GetLatestN returns the newest n buckets in ascending order.
func (s *CHPriceHistory) GetLatestN(ctx context.Context, region string, n int, res domrepo.Resolution) ([]domrepo.PricePoint, error) {
	bucket, err := bucketExpr(res)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT %s AS bucket, region, toFloat64(avg(price)) AS price, sum(volume) AS volume
        FROM %s
        WHERE region = ?
        GROUP BY bucket, region
        ORDER BY bucket DESC
        LIMIT ?
    `
	out, err := s.query(ctx, "latest_prices", fmt.Sprintf(qtpl, bucket, s.table), region, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.debug("latest_prices", region, res, len(out))
	return out, nil
}

// Regions lists regions with ticks since the given time.
func (s *CHPriceHistory) Regions(ctx context.Context, since time.Time) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT region FROM %s WHERE ts >= ? ORDER BY region", s.table)
	rows, err := s.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("regions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CHPriceHistory) query(ctx context.Context, op, q string, args ...interface{}) ([]domrepo.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse "+op+" query error", applogger.String("table", s.table), applogger.Error(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]domrepo.PricePoint, 0, 256)
	for rows.Next() {
		var p domrepo.PricePoint
		if err := rows.Scan(&p.Bucket, &p.Region, &p.Price, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHPriceHistory) debug(op, region string, res domrepo.Resolution, n int) {
	if s.l != nil {
		s.l.Debug("clickhouse "+op+" ok",
			applogger.String("region", region),
			applogger.String("resolution", string(res)),
			applogger.Int("rows", n),
		)
	}
}

var _ domrepo.PriceHistory = (*CHPriceHistory)(nil)
