package features

import (
	"math"
	"testing"
	"time"

	domrepo "PowerDesk/internal/domain/repository"
)

func TestComputeLogReturns(t *testing.T) {
	if got := ComputeLogReturns([]float64{0.12}); got != nil {
		t.Fatalf("single price: got %v, want nil", got)
	}
	got := ComputeLogReturns([]float64{0.10, 0.20, -0.05, 0.10})
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if math.Abs(got[0]-math.Log(2)) > 1e-12 {
		t.Errorf("r0 = %v, want ln 2", got[0])
	}
	if got[1] != 0 || got[2] != 0 {
		t.Errorf("negative price returns = %v, want zeros", got[1:])
	}
}

func TestRealizedVolatility(t *testing.T) {
	flat := []float64{0.01, 0.01, 0.01, 0.01}
	if v := RealizedVolatility(flat, 4, 365); v != 0 {
		t.Errorf("constant returns vol = %v, want 0", v)
	}
	if v := RealizedVolatility(flat, 10, 365); v != 0 {
		t.Errorf("short series vol = %v, want 0", v)
	}
	alt := []float64{0.1, -0.1, 0.1, -0.1}
	if v := RealizedVolatility(alt, 4, 1); v <= 0 {
		t.Errorf("alternating returns vol = %v, want > 0", v)
	}
}

func TestMeanStdAndZScores(t *testing.T) {
	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Errorf("mean = %v, want 5", mean)
	}
	if math.Abs(std-2.138) > 1e-3 {
		t.Errorf("std = %v, want ~2.138", std)
	}
	z := ZScores([]float64{1, 1, 1})
	for _, v := range z {
		if v != 0 {
			t.Fatalf("zscores of constant = %v", z)
		}
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 6, 1, 10, 47, 0, 0, time.UTC)
	to := time.Date(2024, 6, 2, 23, 59, 0, 0, time.UTC)

	f, tt := AlignFromTo(from, to, domrepo.ResSettlement)
	if f.Minute() != 30 || tt.Minute() != 30 {
		t.Errorf("settlement align = %v %v", f, tt)
	}
	f, tt = AlignFromTo(from, to, domrepo.ResDay)
	if f.Hour() != 0 || tt.Day() != 2 || tt.Hour() != 0 {
		t.Errorf("day align = %v %v", f, tt)
	}
	f, _ = AlignFromTo(from, to, domrepo.ResRaw)
	if !f.Equal(from) {
		t.Errorf("raw align changed from: %v", f)
	}
}
