package vault

import (
	"math/big"
	"strconv"

	"github.com/defiboxswap/DefiboxVault/core/events"
)

const (
	EventTypeStatusUpdated     = "vault.status.updated"
	EventTypeCollateralCreated = "vault.collateral.created"
	EventTypeCollateralUpdated = "vault.collateral.updated"
	EventTypeProxyUpdated      = "vault.proxy.updated"
	EventTypeIncomeAccrued     = "vault.income.accrued"
	EventTypeDeposit           = "vault.deposit"
	EventTypeWithdrawLocked    = "vault.withdraw.locked"
	EventTypeReleaseSettled    = "vault.release.settled"
)

// NewStatusUpdatedEvent returns the canonical payload for a config flag update.
func NewStatusUpdatedEvent(cfg *Config) *events.Typed {
	attrs := make(map[string]string)
	if cfg != nil {
		attrs["transferStatus"] = strconv.FormatUint(uint64(cfg.TransferStatus), 10)
		attrs["depositStatus"] = strconv.FormatUint(uint64(cfg.DepositStatus), 10)
		attrs["withdrawStatus"] = strconv.FormatUint(uint64(cfg.WithdrawStatus), 10)
	}
	return &events.Typed{Type: EventTypeStatusUpdated, Attributes: attrs}
}

// NewCollateralCreatedEvent returns the payload for a new collateral row.
func NewCollateralCreatedEvent(c *Collateral) *events.Typed {
	return newCollateralEvent(EventTypeCollateralCreated, c)
}

// NewCollateralUpdatedEvent returns the payload for a policy update.
func NewCollateralUpdatedEvent(c *Collateral) *events.Typed {
	return newCollateralEvent(EventTypeCollateralUpdated, c)
}

// NewProxyUpdatedEvent returns the payload for an admin proxy delegation.
func NewProxyUpdatedEvent(proxy string) *events.Typed {
	return &events.Typed{Type: EventTypeProxyUpdated, Attributes: map[string]string{"proxy": proxy}}
}

// NewIncomeAccruedEvent returns the payload for one collateral's accrual step.
func NewIncomeAccruedEvent(c *Collateral, amount *big.Int, accruedAt int64) *events.Typed {
	attrs := make(map[string]string)
	if c != nil {
		attrs["collateralId"] = strconv.FormatUint(c.ID, 10)
		attrs["depositSymbol"] = c.DepositSymbol.String()
		attrs["totalIncome"] = bigString(c.TotalIncome)
	}
	attrs["amount"] = bigString(amount)
	attrs["accruedAt"] = strconv.FormatInt(accruedAt, 10)
	return &events.Typed{Type: EventTypeIncomeAccrued, Attributes: attrs}
}

// NewDepositEvent returns the payload for a deposit conversion.
func NewDepositEvent(c *Collateral, owner string, quantity, rate, issued *big.Int, at int64) *events.Typed {
	attrs := map[string]string{
		"owner":    owner,
		"quantity": bigString(quantity),
		"rate":     bigString(rate),
		"issued":   bigString(issued),
		"time":     strconv.FormatInt(at, 10),
	}
	if c != nil {
		attrs["collateralId"] = strconv.FormatUint(c.ID, 10)
		attrs["issueSymbol"] = c.IssueSymbol.String()
	}
	return &events.Typed{Type: EventTypeDeposit, Attributes: attrs}
}

// NewWithdrawLockedEvent returns the payload for a newly queued release.
func NewWithdrawLockedEvent(c *Collateral, r *Release) *events.Typed {
	attrs := make(map[string]string)
	if c != nil {
		attrs["collateralId"] = strconv.FormatUint(c.ID, 10)
	}
	if r != nil {
		attrs["releaseId"] = strconv.FormatUint(r.ID, 10)
		attrs["owner"] = r.Owner
		attrs["quantity"] = bigString(r.Quantity)
		attrs["rate"] = bigString(r.Rate)
		attrs["unlockTime"] = strconv.FormatInt(r.Time, 10)
	}
	return &events.Typed{Type: EventTypeWithdrawLocked, Attributes: attrs}
}

// NewReleaseSettledEvent returns the payload for a settled release, carrying
// the full payout split for audit trails.
func NewReleaseSettledEvent(c *Collateral, r *Release, withdraw, incomeRefund, feeIncome *big.Int, at int64) *events.Typed {
	attrs := make(map[string]string)
	if c != nil {
		attrs["collateralId"] = strconv.FormatUint(c.ID, 10)
	}
	if r != nil {
		attrs["releaseId"] = strconv.FormatUint(r.ID, 10)
		attrs["owner"] = r.Owner
		attrs["quantity"] = bigString(r.Quantity)
		attrs["rate"] = bigString(r.Rate)
	}
	attrs["withdrawAmount"] = bigString(withdraw)
	attrs["incomeRefund"] = bigString(incomeRefund)
	attrs["feeAccountIncome"] = bigString(feeIncome)
	attrs["time"] = strconv.FormatInt(at, 10)
	return &events.Typed{Type: EventTypeReleaseSettled, Attributes: attrs}
}

func newCollateralEvent(eventType string, c *Collateral) *events.Typed {
	attrs := make(map[string]string)
	if c != nil {
		attrs["collateralId"] = strconv.FormatUint(c.ID, 10)
		attrs["depositContract"] = c.DepositContract
		attrs["depositSymbol"] = c.DepositSymbol.String()
		attrs["issueSymbol"] = c.IssueSymbol.String()
		attrs["incomeAccount"] = c.IncomeAccount
		attrs["feesAccount"] = c.FeesAccount
		attrs["incomeRatio"] = strconv.FormatUint(uint64(c.IncomeRatio), 10)
		attrs["releaseFees"] = strconv.FormatUint(uint64(c.ReleaseFees), 10)
		attrs["refundRatio"] = strconv.FormatUint(uint64(c.RefundRatio), 10)
		attrs["minQuantity"] = bigString(c.MinQuantity)
	}
	return &events.Typed{Type: eventType, Attributes: attrs}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
