package vault

import (
	"errors"
	"math/big"
	"time"

	"github.com/defiboxswap/DefiboxVault/core/events"
	"github.com/defiboxswap/DefiboxVault/core/types"
	nativecommon "github.com/defiboxswap/DefiboxVault/native/common"
)

var (
	ErrUnauthorized       = errors.New("vault engine: caller not authorized")
	ErrNotFound           = errors.New("vault engine: collateral not found")
	ErrFeatureDisabled    = errors.New("vault engine: feature disabled")
	ErrBelowMinimum       = errors.New("vault engine: deposit below minimum")
	ErrInvariantViolation = errors.New("vault engine: settlement conservation violated")

	errNilState         = errors.New("vault engine: state not configured")
	errNilLedger        = errors.New("vault engine: token ledger not configured")
	errInvalidAmount    = errors.New("vault engine: amount must be positive")
	errCollateralExists = errors.New("vault engine: collateral already registered")
	errSupplySymbol     = errors.New("vault engine: deposit symbol does not match issuer supply")
	errIssueSymbol      = errors.New("vault engine: derived claim symbol invalid")
	errReservedAccount  = errors.New("vault engine: income and fees accounts must not be the vault account")
)

const moduleName = "vault"

// engineState is the narrow persistence surface consumed by the engine. All
// mutations performed through it are expected to commit atomically with the
// surrounding call under the serialized transaction model.
type engineState interface {
	ConfigGet() (*Config, error)
	ConfigPut(*Config) error
	CollateralGet(id uint64) (*Collateral, bool, error)
	CollateralByDeposit(contract string, sym types.Symbol) (*Collateral, bool, error)
	CollateralByIssue(sym types.Symbol) (*Collateral, bool, error)
	CollateralPut(*Collateral) error
	CollateralList() ([]*Collateral, error)
	NextCollateralID() (uint64, error)
	ReleasePut(*Release) error
	ReleaseList(owner string) ([]*Release, error)
	ReleaseDelete(owner string, id uint64) error
}

// TokenLedger is the external token-issuer collaborator. Balance and supply
// reads reflect all prior calls; transfer, issue and retire apply
// synchronously within the current serialized step.
type TokenLedger interface {
	BalanceOf(contract, account string, sym types.Symbol) (*big.Int, error)
	SupplyOf(contract string, sym types.Symbol) (*big.Int, error)
	Create(contract, issuer string, sym types.Symbol, maxSupply *big.Int) error
	Transfer(contract, from, to string, sym types.Symbol, amount *big.Int, memo string) error
	Issue(contract, to string, sym types.Symbol, amount *big.Int, memo string) error
	Retire(contract, from string, sym types.Symbol, amount *big.Int, memo string) error
}

// Engine implements the vault accounting state machine: collateral registry,
// income accrual, deposit conversion and the withdraw/release pipeline. It
// holds no locks; the caller serializes operations externally.
type Engine struct {
	state   engineState
	ledger  TokenLedger
	emitter events.Emitter
	params  Params
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine constructs a vault engine with the given module parameters, a
// no-op emitter and the wall clock.
func NewEngine(params Params) *Engine {
	params.EnsureDefaults()
	return &Engine{
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the engine to the token-issuer collaborator.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetPauses installs the operator pause switch checked ahead of the config
// status flags.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Params returns the engine's module parameters.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) requireAdmin(caller string) error {
	if caller != e.params.AdminAccount {
		return ErrUnauthorized
	}
	return nil
}

// checkReservedAccounts rejects policy accounts that would make income or
// settlement transfers self-transfers from the vault account.
func (e *Engine) checkReservedAccounts(params CollateralParams) error {
	if params.IncomeAccount == e.params.VaultAccount || params.FeesAccount == e.params.VaultAccount {
		return errReservedAccount
	}
	return nil
}

func (e *Engine) loadConfig() (*Config, error) {
	cfg, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &Config{}
	}
	return cfg, nil
}

func (e *Engine) nextLogID(cfg *Config) (uint64, error) {
	cfg.LogID++
	if err := e.state.ConfigPut(cfg); err != nil {
		return 0, err
	}
	return cfg.LogID, nil
}

// SetStatus overwrites the three operation flags. Admin only.
func (e *Engine) SetStatus(caller string, transfer, deposit, withdraw uint8) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	cfg.TransferStatus = transfer
	cfg.DepositStatus = deposit
	cfg.WithdrawStatus = withdraw
	if err := e.state.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(NewStatusUpdatedEvent(cfg))
	return nil
}

// CreateCollateral registers a new deposit-asset/claim-asset pair and creates
// the claim token on the issuer contract. Admin only; duplicate registrations
// of the same deposit contract and symbol are rejected.
func (e *Engine) CreateCollateral(caller string, params CollateralParams) (*Collateral, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := e.checkReservedAccounts(params); err != nil {
		return nil, err
	}
	if !params.DepositSymbol.Valid() {
		return nil, errSupplySymbol
	}
	issueSymbol := DeriveIssueSymbol(params.DepositSymbol)
	if !issueSymbol.Valid() {
		return nil, errIssueSymbol
	}
	if _, ok, err := e.state.CollateralByDeposit(params.DepositContract, params.DepositSymbol); err != nil {
		return nil, err
	} else if ok {
		return nil, errCollateralExists
	}
	// Two deposit assets with the same code on different contracts derive
	// the same claim symbol; the claim registry must stay one-to-one.
	if _, ok, err := e.state.CollateralByIssue(issueSymbol); err != nil {
		return nil, err
	} else if ok {
		return nil, errCollateralExists
	}
	// The deposit asset must already exist on its issuer contract.
	if _, err := e.ledger.SupplyOf(params.DepositContract, params.DepositSymbol); err != nil {
		return nil, errSupplySymbol
	}

	id, err := e.state.NextCollateralID()
	if err != nil {
		return nil, err
	}
	if id == 0 {
		id = 1
	}
	coll := &Collateral{
		ID:              id,
		DepositContract: params.DepositContract,
		DepositSymbol:   params.DepositSymbol,
		IssueSymbol:     issueSymbol,
		IncomeAccount:   params.IncomeAccount,
		FeesAccount:     params.FeesAccount,
		IncomeRatio:     params.IncomeRatio,
		ReleaseFees:     params.ReleaseFees,
		RefundRatio:     params.RefundRatio,
		MinQuantity:     cloneBigInt(params.MinQuantity),
		LastIncome:      big.NewInt(0),
		TotalIncome:     big.NewInt(0),
	}

	// Claim token first: a rejected create must leave no registry row.
	maxSupply := new(big.Int).Mul(big.NewInt(e.params.ClaimMaxSupply), pow10(issueSymbol.Precision))
	if err := e.ledger.Create(e.params.TokenContract, e.params.VaultAccount, issueSymbol, maxSupply); err != nil {
		return nil, err
	}
	if err := e.state.CollateralPut(coll); err != nil {
		return nil, err
	}

	e.emit(NewCollateralCreatedEvent(coll))
	return coll.Clone(), nil
}

// UpdateCollateral overwrites the mutable policy fields of an existing
// collateral, leaving identity fields untouched. Admin only.
func (e *Engine) UpdateCollateral(caller string, id uint64, params CollateralParams) (*Collateral, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := e.checkReservedAccounts(params); err != nil {
		return nil, err
	}
	coll, ok, err := e.state.CollateralGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	coll.IncomeAccount = params.IncomeAccount
	coll.FeesAccount = params.FeesAccount
	coll.IncomeRatio = params.IncomeRatio
	coll.ReleaseFees = params.ReleaseFees
	coll.RefundRatio = params.RefundRatio
	coll.MinQuantity = cloneBigInt(params.MinQuantity)
	if err := e.state.CollateralPut(coll); err != nil {
		return nil, err
	}
	e.emit(NewCollateralUpdatedEvent(coll))
	return coll.Clone(), nil
}

// ProxyTo records a vote-proxy delegation. The delegation itself is an
// external concern; the engine validates authorization and emits the event.
func (e *Engine) ProxyTo(caller, proxy string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.emit(NewProxyUpdatedEvent(proxy))
	return nil
}

// Rate computes the current exchange rate between the deposit asset and the
// claim asset, scaled by RateBase. extra adjusts the vault balance before the
// division; deposit handling passes the negated inbound amount so the rate
// excludes the very deposit being converted.
func (e *Engine) Rate(coll *Collateral, extra *big.Int) (*big.Int, error) {
	if coll == nil {
		return nil, ErrNotFound
	}
	supply, err := e.ledger.SupplyOf(e.params.TokenContract, coll.IssueSymbol)
	if err != nil {
		return nil, err
	}
	if supply == nil || supply.Sign() == 0 {
		return big.NewInt(RateBase), nil
	}
	balance, err := e.ledger.BalanceOf(coll.DepositContract, e.params.VaultAccount, coll.DepositSymbol)
	if err != nil {
		return nil, err
	}
	total := cloneBigInt(balance)
	if extra != nil {
		total.Add(total, extra)
	}
	if total.Sign() < 0 {
		total.SetInt64(0)
	}
	return mulDiv(total, rateBase, supply), nil
}

// CollateralRate returns the current rate for a collateral id.
func (e *Engine) CollateralRate(id uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	coll, ok, err := e.state.CollateralGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return e.Rate(coll, nil)
}

// Collaterals lists the registered collaterals in id order.
func (e *Engine) Collaterals() ([]*Collateral, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	list, err := e.state.CollateralList()
	if err != nil {
		return nil, err
	}
	out := make([]*Collateral, 0, len(list))
	for _, c := range list {
		out = append(out, c.Clone())
	}
	return out, nil
}

// Releases lists the pending release queue for an owner in FIFO order.
func (e *Engine) Releases(owner string) ([]*Release, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	list, err := e.state.ReleaseList(owner)
	if err != nil {
		return nil, err
	}
	out := make([]*Release, 0, len(list))
	for _, r := range list {
		out = append(out, r.Clone())
	}
	return out, nil
}

// AccrueIncome advances every collateral's income balance by the elapsed time
// since the previous accrual. Permissionless; safe to call arbitrarily often.
// The very first call only establishes the baseline timestamp.
func (e *Engine) AccrueIncome() error {
	if err := e.ready(); err != nil {
		return err
	}
	epoch := e.params.IncomeEpochSeconds
	now := e.now()
	thisTime := now - now%epoch

	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if cfg.LastIncomeTime == thisTime {
		return nil
	}
	prevTime := cfg.LastIncomeTime

	// The watermark advances before any funds move: a retry after a partial
	// failure must not re-accrue the same window.
	cfg.LastIncomeTime = thisTime
	if err := e.state.ConfigPut(cfg); err != nil {
		return err
	}
	if prevTime <= 0 || thisTime <= prevTime {
		return nil
	}
	period := (thisTime - prevTime) / epoch
	if period <= 0 {
		return nil
	}
	colls, err := e.state.CollateralList()
	if err != nil {
		return err
	}
	for _, coll := range colls {
		if err := e.accrueCollateral(coll, period, thisTime); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) accrueCollateral(coll *Collateral, period int64, accruedAt int64) error {
	totalRatio := new(big.Int).Mul(big.NewInt(period), big.NewInt(int64(coll.IncomeRatio)))
	if totalRatio.Cmp(ratioBasis) > 0 {
		totalRatio.Set(ratioBasis)
	}
	award, err := e.ledger.BalanceOf(coll.DepositContract, coll.IncomeAccount, coll.DepositSymbol)
	if err != nil {
		return err
	}
	amount := mulDiv(award, totalRatio, ratioBasis)
	if amount.Sign() > 0 {
		if err := e.ledger.Transfer(coll.DepositContract, coll.IncomeAccount, e.params.VaultAccount, coll.DepositSymbol, amount, "award"); err != nil {
			return err
		}
	}
	coll.LastIncome = cloneBigInt(amount)
	coll.TotalIncome = new(big.Int).Add(cloneBigInt(coll.TotalIncome), amount)
	if err := e.state.CollateralPut(coll); err != nil {
		return err
	}
	e.emit(NewIncomeAccruedEvent(coll, amount, accruedAt))
	return nil
}

// OnDepositTransfer is the hook invoked after the collaborator has moved a
// deposit-asset transfer into the vault account. It converts the deposit into
// newly issued claim tokens at the pre-deposit rate and returns the issued
// amount. Transfers from the vault itself, the admin or the collateral's
// income account are not deposits and are skipped with a nil result.
func (e *Engine) OnDepositTransfer(owner, contract string, sym types.Symbol, quantity *big.Int, memo string) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if owner == e.params.VaultAccount || owner == e.params.AdminAccount {
		return nil, nil
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DepositStatus != StatusEnabled {
		return nil, ErrFeatureDisabled
	}
	coll, ok, err := e.state.CollateralByDeposit(contract, sym)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if owner == coll.IncomeAccount {
		return nil, nil
	}
	if coll.MinQuantity != nil && quantity.Cmp(coll.MinQuantity) < 0 {
		return nil, ErrBelowMinimum
	}

	// The transfer has already landed; back it out so the issuance rate
	// reflects the pool state excluding this deposit.
	rate, err := e.Rate(coll, new(big.Int).Neg(quantity))
	if err != nil {
		return nil, err
	}
	issued := mulDiv(quantity, rateBase, rate)
	if err := e.ledger.Issue(e.params.TokenContract, owner, coll.IssueSymbol, issued, "deposit"); err != nil {
		return nil, err
	}
	e.emit(NewDepositEvent(coll, owner, quantity, rate, issued, e.now()))
	return issued, nil
}

// OnWithdrawTransfer is the hook invoked after the collaborator has moved a
// claim-asset transfer into the vault account. The claim tokens stay escrowed
// in the vault until settlement; the hook snapshots the current rate and
// appends a locked release to the owner's queue.
func (e *Engine) OnWithdrawTransfer(owner string, sym types.Symbol, quantity *big.Int, memo string) (*Release, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if owner == e.params.VaultAccount || owner == e.params.AdminAccount {
		return nil, nil
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.WithdrawStatus != StatusEnabled {
		return nil, ErrFeatureDisabled
	}
	coll, ok, err := e.state.CollateralByIssue(sym)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	rate, err := e.Rate(coll, nil)
	if err != nil {
		return nil, err
	}
	id, err := e.nextLogID(cfg)
	if err != nil {
		return nil, err
	}
	rel := &Release{
		ID:       id,
		Owner:    owner,
		Quantity: cloneBigInt(quantity),
		Symbol:   sym,
		Rate:     rate,
		Time:     e.now() + e.params.LockDurationSeconds,
	}
	if err := e.state.ReleasePut(rel); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawLockedEvent(coll, rel))
	return rel.Clone(), nil
}

// Release settles every matured release in the given owners' queues in FIFO
// order, leaving unmatured rows untouched. Omitting owners settles the
// caller's own queue. Each owner must be the caller, or the caller the admin
// settling on their behalf. It returns the number of releases settled.
func (e *Engine) Release(caller string, owners ...string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if len(owners) == 0 {
		owners = []string{caller}
	}
	admin := caller == e.params.AdminAccount
	for _, owner := range owners {
		if owner != caller && !admin {
			return 0, ErrUnauthorized
		}
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return 0, err
	}
	if cfg.WithdrawStatus != StatusEnabled || cfg.TransferStatus != StatusEnabled {
		return 0, ErrFeatureDisabled
	}
	now := e.now()
	settled := 0
	for _, owner := range owners {
		queue, err := e.state.ReleaseList(owner)
		if err != nil {
			return settled, err
		}
		for _, rel := range queue {
			if rel.Time > now {
				continue
			}
			if err := e.settleRelease(rel, now); err != nil {
				return settled, err
			}
			settled++
		}
	}
	return settled, nil
}

func (e *Engine) settleRelease(rel *Release, now int64) error {
	coll, ok, err := e.state.CollateralByIssue(rel.Symbol)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	lockedRate := cloneBigInt(rel.Rate)
	currentRate, err := e.Rate(coll, nil)
	if err != nil {
		return err
	}
	// The rate is monotonically non-decreasing absent a negative income
	// event; floor the fresh observation at the locked rate so the
	// appreciation term cannot go negative.
	if currentRate.Cmp(lockedRate) < 0 {
		currentRate = lockedRate
	}

	releaseAmount := mulDiv(rel.Quantity, lockedRate, rateBase)
	newRatioAmount := mulDiv(rel.Quantity, currentRate, rateBase)

	if err := e.ledger.Retire(e.params.TokenContract, e.params.VaultAccount, rel.Symbol, rel.Quantity, "withdraw retire"); err != nil {
		return err
	}

	releaseFee := applyRatio(releaseAmount, coll.ReleaseFees)
	withdrawAmount := new(big.Int).Sub(releaseAmount, releaseFee)
	extraRewards := new(big.Int).Sub(newRatioAmount, releaseAmount)

	incomeRefund := new(big.Int).Add(applyRatio(releaseFee, coll.RefundRatio), applyRatio(extraRewards, coll.RefundRatio))
	feeAccountIncome := new(big.Int).Add(releaseFee, extraRewards)
	feeAccountIncome.Sub(feeAccountIncome, incomeRefund)

	check := new(big.Int).Add(withdrawAmount, incomeRefund)
	check.Add(check, feeAccountIncome)
	if check.Cmp(newRatioAmount) != 0 {
		return ErrInvariantViolation
	}

	if withdrawAmount.Sign() > 0 {
		if err := e.ledger.Transfer(coll.DepositContract, e.params.VaultAccount, rel.Owner, coll.DepositSymbol, withdrawAmount, "withdraw"); err != nil {
			return err
		}
	}
	if incomeRefund.Sign() > 0 {
		if err := e.ledger.Transfer(coll.DepositContract, e.params.VaultAccount, coll.IncomeAccount, coll.DepositSymbol, incomeRefund, "refund"); err != nil {
			return err
		}
	}
	if feeAccountIncome.Sign() > 0 {
		if err := e.ledger.Transfer(coll.DepositContract, e.params.VaultAccount, coll.FeesAccount, coll.DepositSymbol, feeAccountIncome, "withdraw fees"); err != nil {
			return err
		}
	}
	if err := e.state.ReleaseDelete(rel.Owner, rel.ID); err != nil {
		return err
	}
	e.emit(NewReleaseSettledEvent(coll, rel, withdrawAmount, incomeRefund, feeAccountIncome, now))
	return nil
}
