package vault

import (
	"math/big"
	"testing"
)

func TestMulDivTruncates(t *testing.T) {
	// 10000000 * 1e8 / 100200000 = 9980039.92..., truncated.
	got := mulDiv(big.NewInt(10_000_000), rateBase, big.NewInt(100_200_000))
	if got.Int64() != 9_980_039 {
		t.Fatalf("expected 9980039, got %s", got)
	}
	if got := mulDiv(big.NewInt(1), big.NewInt(1), big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("zero denominator must yield zero, got %s", got)
	}
}

func TestApplyRatio(t *testing.T) {
	if got := applyRatio(big.NewInt(1_000_000), 30); got.Int64() != 3_000 {
		t.Fatalf("expected 3000, got %s", got)
	}
	if got := applyRatio(big.NewInt(50_000), 5000); got.Int64() != 25_000 {
		t.Fatalf("expected 25000, got %s", got)
	}
	if got := applyRatio(big.NewInt(1_000_000), 0); got.Sign() != 0 {
		t.Fatalf("zero bps must yield zero, got %s", got)
	}
	if got := applyRatio(nil, 5000); got.Sign() != 0 {
		t.Fatalf("nil amount must yield zero, got %s", got)
	}
	// Sub-unit fee floors to zero.
	if got := applyRatio(big.NewInt(100), 30); got.Sign() != 0 {
		t.Fatalf("expected floored zero, got %s", got)
	}
}

func TestPow10(t *testing.T) {
	if got := pow10(4); got.Int64() != 10_000 {
		t.Fatalf("expected 10000, got %s", got)
	}
	if got := pow10(0); got.Int64() != 1 {
		t.Fatalf("expected 1, got %s", got)
	}
}
