package repository

import "fmt"

const (
	PricesTable  = "market_prices"
	ReportsTable = "analysis_reports"
)

// Schema returns the idempotent DDL for database.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			ts DateTime64(3, 'UTC'),
			region LowCardinality(String),
			price Decimal(18, 6),
			volume Float64,
			unit LowCardinality(String),
			source LowCardinality(String),
			event_id String
		) ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (region, ts, event_id)`, database, PricesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			id UUID,
			session_id String,
			kind LowCardinality(String),
			created_at DateTime64(3, 'UTC'),
			provider LowCardinality(String),
			model String,
			cached UInt8,
			summary String,
			figures String,
			sources Array(String)
		) ENGINE = MergeTree
		ORDER BY (session_id, kind, created_at)`, database, ReportsTable),
	}
}
