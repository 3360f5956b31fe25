package vault

import "math/big"

const (
	// RateBase scales the integer exchange rate: a rate of RateBase means
	// one claim unit redeems exactly one deposit unit.
	RateBase = 100_000_000
	// RatioBasis is the basis-point scale for all policy ratios.
	RatioBasis = 10_000
)

var (
	rateBase   = big.NewInt(RateBase)
	ratioBasis = big.NewInt(RatioBasis)
)

// mulDiv computes floor(a * num / den) in one combined operation so the
// intermediate product cannot overflow and rounding always truncates.
func mulDiv(a, num, den *big.Int) *big.Int {
	if a == nil || num == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, num)
	return out.Quo(out, den)
}

// applyRatio computes floor(amount * bps / RatioBasis).
func applyRatio(amount *big.Int, bps uint16) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	return mulDiv(amount, new(big.Int).SetUint64(uint64(bps)), ratioBasis)
}

// pow10 returns 10^precision as a big integer.
func pow10(precision uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
}
