package repository

import (
	"context"
	"time"
)

// Resolution is the bucket width of aggregated prices.
type Resolution string

const (
	ResRaw        Resolution = "raw"
	ResSettlement Resolution = "30m"
	ResHour       Resolution = "1h"
	ResDay        Resolution = "1d"
)

// PricePoint is the mean price and summed volume of one bucket.
type PricePoint struct {
	Bucket time.Time `json:"bucket"`
	Region string    `json:"region"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}

// PriceHistory provides read-only access to aggregated prices for analysis.
type PriceHistory interface {
	GetPrices(ctx context.Context, region string, from, to time.Time, res Resolution) ([]PricePoint, error)
	GetLatestN(ctx context.Context, region string, n int, res Resolution) ([]PricePoint, error)
	Regions(ctx context.Context, since time.Time) ([]string, error)
}

func IsValidResolution(r Resolution) bool {
	switch r {
	case ResRaw, ResSettlement, ResHour, ResDay:
		return true
	default:
		return false
	}
}

// DefaultResolution returns the default resolution.
func DefaultResolution() Resolution { return ResDay }

// NormalizeResolution converts raw string to a valid resolution (or default).
func NormalizeResolution(s string) Resolution {
	if s == "" {
		return DefaultResolution()
	}
	r := Resolution(s)
	if IsValidResolution(r) {
		return r
	}
	return DefaultResolution()
}

// Interval returns the bucket width, zero for raw.
func (r Resolution) Interval() time.Duration {
	switch r {
	case ResSettlement:
		return 30 * time.Minute
	case ResHour:
		return time.Hour
	case ResDay:
		return 24 * time.Hour
	}
	return 0
}
