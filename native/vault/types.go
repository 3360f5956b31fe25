package vault

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/defiboxswap/DefiboxVault/core/types"
)

// Status values stored in the config flags. The flags are tri-state integers
// on the wire; only StatusEnabled permits the gated operation.
const (
	StatusDisabled uint8 = 0
	StatusEnabled  uint8 = 1
)

// DeriveIssueSymbol returns the claim-asset symbol for a deposit symbol: the
// code prefixed with "S" at the same precision (USDT -> SUSDT).
func DeriveIssueSymbol(deposit types.Symbol) types.Symbol {
	return types.Symbol{Code: "S" + deposit.Code, Precision: deposit.Precision}
}

// Collateral is a registered deposit-asset/claim-asset pair together with its
// income and fee policy. Identity fields (ID, DepositContract, DepositSymbol,
// IssueSymbol) are immutable after creation; only policy fields may change.
type Collateral struct {
	ID              uint64
	DepositContract string
	DepositSymbol   types.Symbol
	IssueSymbol     types.Symbol
	IncomeAccount   string
	FeesAccount     string
	// IncomeRatio is the basis-point rate applied per full income epoch.
	IncomeRatio uint16
	// ReleaseFees is the basis-point fee charged on settlement principal.
	ReleaseFees uint16
	// RefundRatio is the basis-point share of fee plus rate appreciation
	// refunded to the income account.
	RefundRatio uint16
	// MinQuantity is the smallest accepted deposit, in deposit-asset units.
	MinQuantity *big.Int
	// LastIncome and TotalIncome are denominated in the deposit asset.
	LastIncome  *big.Int
	TotalIncome *big.Int
}

// Clone returns a deep copy so callers can mutate the copy safely.
func (c *Collateral) Clone() *Collateral {
	if c == nil {
		return nil
	}
	clone := *c
	clone.MinQuantity = cloneBigInt(c.MinQuantity)
	clone.LastIncome = cloneBigInt(c.LastIncome)
	clone.TotalIncome = cloneBigInt(c.TotalIncome)
	return &clone
}

// Release is a pending, time-locked redemption request. Quantity and Rate are
// immutable after creation; the record is consumed atomically at settlement.
type Release struct {
	ID    uint64
	Owner string
	// Quantity is the locked claim-asset amount in Symbol units.
	Quantity *big.Int
	Symbol   types.Symbol
	// Rate is the exchange rate snapshotted at withdrawal time, scaled by
	// RateBase.
	Rate *big.Int
	// Time is the unix timestamp after which the release becomes settleable.
	Time int64
}

// Clone returns a deep copy of the release record.
func (r *Release) Clone() *Release {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Quantity = cloneBigInt(r.Quantity)
	clone.Rate = cloneBigInt(r.Rate)
	return &clone
}

// Config is the vault-wide singleton: the shared income-accrual timestamp, the
// operation status flags, and the monotonically increasing log counter.
type Config struct {
	LastIncomeTime int64
	TransferStatus uint8
	DepositStatus  uint8
	WithdrawStatus uint8
	LogID          uint64
}

// Clone returns a copy of the config row.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// CollateralParams carries the caller-supplied policy fields for collateral
// creation and updates.
type CollateralParams struct {
	DepositContract string
	DepositSymbol   types.Symbol
	IncomeAccount   string
	FeesAccount     string
	IncomeRatio     uint16
	ReleaseFees     uint16
	RefundRatio     uint16
	MinQuantity     *big.Int
}

func (p CollateralParams) validate() error {
	if p.IncomeRatio > RatioBasis {
		return fmt.Errorf("vault: income ratio %d exceeds basis %d", p.IncomeRatio, RatioBasis)
	}
	if p.ReleaseFees > RatioBasis {
		return fmt.Errorf("vault: release fees %d exceeds basis %d", p.ReleaseFees, RatioBasis)
	}
	if p.RefundRatio > RatioBasis {
		return fmt.Errorf("vault: refund ratio %d exceeds basis %d", p.RefundRatio, RatioBasis)
	}
	if strings.TrimSpace(p.IncomeAccount) == "" {
		return fmt.Errorf("vault: income account required")
	}
	if strings.TrimSpace(p.FeesAccount) == "" {
		return fmt.Errorf("vault: fees account required")
	}
	if p.MinQuantity != nil && p.MinQuantity.Sign() < 0 {
		return fmt.Errorf("vault: min quantity must be non-negative")
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
