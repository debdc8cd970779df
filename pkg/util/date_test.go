package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeSpreadsheetLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-01":       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		"01/03/2024":       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		"2024-03-01 13:30": time.Date(2024, 3, 1, 13, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, ok := ParseTime(in)
		if !ok || !got.Equal(want) {
			t.Fatalf("ParseTime(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	if got := ParseTimeDefault("not a date", def); !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestSettlementPeriod(t *testing.T) {
	if p := SettlementPeriod(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); p != 1 {
		t.Fatalf("midnight should be period 1, got %d", p)
	}
	if p := SettlementPeriod(time.Date(2024, 1, 1, 23, 45, 0, 0, time.UTC)); p != 48 {
		t.Fatalf("23:45 should be period 48, got %d", p)
	}
}

func TestParseNumber(t *testing.T) {
	if v, ok := ParseNumber("£1,250.50"); !ok || v != 1250.5 {
		t.Fatalf("unexpected %v %v", v, ok)
	}
	if _, ok := ParseNumber("n/a"); ok {
		t.Fatalf("expected failure")
	}
	for _, s := range []string{"NaN", "nan", "inf", "+Inf", "-Infinity", "1e400"} {
		if v, ok := ParseNumber(s); ok {
			t.Fatalf("%q should be rejected, got %v", s, v)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" Forecast (MW) "); got != "forecast_mw" {
		t.Fatalf("got %q", got)
	}
	if got := Normalize("Price_GBP/kWh"); got != "price_gbp_kwh" {
		t.Fatalf("got %q", got)
	}
}
