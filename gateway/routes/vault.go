package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/defiboxswap/DefiboxVault/core/types"
	nativecommon "github.com/defiboxswap/DefiboxVault/native/common"
	"github.com/defiboxswap/DefiboxVault/native/token"
	"github.com/defiboxswap/DefiboxVault/native/vault"
)

// CallerHeader names the account on whose behalf a request runs. Admin
// endpoints reject requests whose header does not match the admin account.
const CallerHeader = "X-Vault-Account"

const vaultRequestLimit = 1 << 20 // 1 MiB

// VaultRoutes wires the HTTP surface to the vault engine. A single mutex
// serializes every state-changing request so engine operations observe the
// serialized transaction model they are written against.
type VaultRoutes struct {
	engine *vault.Engine
	ledger *token.Ledger
	logger *slog.Logger

	mu sync.Mutex
}

func NewVaultRoutes(engine *vault.Engine, ledger *token.Ledger, logger *slog.Logger) *VaultRoutes {
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultRoutes{engine: engine, ledger: ledger, logger: logger}
}

func (vr *VaultRoutes) mount(r chi.Router) {
	r.Get("/collaterals", vr.listCollaterals)
	r.Get("/collaterals/{id}/rate", vr.collateralRate)
	r.Get("/releases/{owner}", vr.listReleases)
	r.Post("/status", vr.setStatus)
	r.Post("/collaterals", vr.createCollateral)
	r.Post("/collaterals/{id}", vr.updateCollateral)
	r.Post("/proxy", vr.proxyTo)
	r.Post("/income", vr.accrueIncome)
	r.Post("/deposit", vr.deposit)
	r.Post("/withdraw", vr.withdraw)
	r.Post("/release", vr.release)
}

type collateralView struct {
	ID              uint64 `json:"id"`
	DepositContract string `json:"deposit_contract"`
	DepositSymbol   string `json:"deposit_symbol"`
	IssueSymbol     string `json:"issue_symbol"`
	IncomeAccount   string `json:"income_account"`
	FeesAccount     string `json:"fees_account"`
	IncomeRatio     uint16 `json:"income_ratio"`
	ReleaseFees     uint16 `json:"release_fees"`
	RefundRatio     uint16 `json:"refund_ratio"`
	MinQuantity     string `json:"min_quantity"`
	LastIncome      string `json:"last_income"`
	TotalIncome     string `json:"total_income"`
}

type releaseView struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Quantity string `json:"quantity"`
	Symbol   string `json:"symbol"`
	Rate     string `json:"rate"`
	Time     int64  `json:"time"`
}

type collateralRequest struct {
	DepositContract string `json:"deposit_contract"`
	DepositSymbol   string `json:"deposit_symbol"`
	IncomeAccount   string `json:"income_account"`
	FeesAccount     string `json:"fees_account"`
	IncomeRatio     uint16 `json:"income_ratio"`
	ReleaseFees     uint16 `json:"release_fees"`
	RefundRatio     uint16 `json:"refund_ratio"`
	MinQuantity     string `json:"min_quantity"`
}

type statusRequest struct {
	Transfer uint8 `json:"transfer"`
	Deposit  uint8 `json:"deposit"`
	Withdraw uint8 `json:"withdraw"`
}

type transferRequest struct {
	Contract string `json:"contract"`
	Symbol   string `json:"symbol"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

type releaseRequest struct {
	Owner  string   `json:"owner,omitempty"`
	Owners []string `json:"owners,omitempty"`
}

func newCollateralView(c *vault.Collateral) collateralView {
	return collateralView{
		ID:              c.ID,
		DepositContract: c.DepositContract,
		DepositSymbol:   c.DepositSymbol.String(),
		IssueSymbol:     c.IssueSymbol.String(),
		IncomeAccount:   c.IncomeAccount,
		FeesAccount:     c.FeesAccount,
		IncomeRatio:     c.IncomeRatio,
		ReleaseFees:     c.ReleaseFees,
		RefundRatio:     c.RefundRatio,
		MinQuantity:     c.MinQuantity.String(),
		LastIncome:      c.LastIncome.String(),
		TotalIncome:     c.TotalIncome.String(),
	}
}

func newReleaseView(r *vault.Release) releaseView {
	return releaseView{
		ID:       r.ID,
		Owner:    r.Owner,
		Quantity: r.Quantity.String(),
		Symbol:   r.Symbol.String(),
		Rate:     r.Rate.String(),
		Time:     r.Time,
	}
}

func caller(r *http.Request) string {
	return r.Header.Get(CallerHeader)
}

func decodeRequest(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, vaultRequestLimit))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func parseQuantity(raw string) (*big.Int, error) {
	quantity, ok := new(big.Int).SetString(raw, 10)
	if !ok || quantity.Sign() <= 0 {
		return nil, fmt.Errorf("invalid quantity %q", raw)
	}
	return quantity, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, token.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrFeatureDisabled):
		return http.StatusConflict
	case errors.Is(err, vault.ErrBelowMinimum),
		errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrMaxSupplyExceeded):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (vr *VaultRoutes) writeEngineError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		vr.logger.Error("vault operation failed", "op", op, "error", err)
	}
	writeError(w, status, err)
}

func (vr *VaultRoutes) listCollaterals(w http.ResponseWriter, r *http.Request) {
	vr.mu.Lock()
	list, err := vr.engine.Collaterals()
	vr.mu.Unlock()
	if err != nil {
		vr.writeEngineError(w, "collaterals", err)
		return
	}
	views := make([]collateralView, 0, len(list))
	for _, c := range list {
		views = append(views, newCollateralView(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (vr *VaultRoutes) collateralRate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid collateral id"))
		return
	}
	vr.mu.Lock()
	rate, err := vr.engine.CollateralRate(id)
	vr.mu.Unlock()
	if err != nil {
		vr.writeEngineError(w, "rate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rate": rate.String()})
}

func (vr *VaultRoutes) listReleases(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	vr.mu.Lock()
	list, err := vr.engine.Releases(owner)
	vr.mu.Unlock()
	if err != nil {
		vr.writeEngineError(w, "releases", err)
		return
	}
	views := make([]releaseView, 0, len(list))
	for _, rel := range list {
		views = append(views, newReleaseView(rel))
	}
	writeJSON(w, http.StatusOK, views)
}

func (vr *VaultRoutes) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vr.mu.Lock()
	err := vr.engine.SetStatus(caller(r), req.Transfer, req.Deposit, req.Withdraw)
	vr.mu.Unlock()
	if err != nil {
		vr.writeEngineError(w, "set_status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (vr *VaultRoutes) collateralParams(req collateralRequest) (vault.CollateralParams, error) {
	sym, err := types.ParseSymbol(req.DepositSymbol)
	if err != nil {
		return vault.CollateralParams{}, err
	}
	params := vault.CollateralParams{
		DepositContract: req.DepositContract,
		DepositSymbol:   sym,
		IncomeAccount:   req.IncomeAccount,
		FeesAccount:     req.FeesAccount,
		IncomeRatio:     req.IncomeRatio,
		ReleaseFees:     req.ReleaseFees,
		RefundRatio:     req.RefundRatio,
	}
	if req.MinQuantity != "" {
		min, ok := new(big.Int).SetString(req.MinQuantity, 10)
		if !ok {
			return vault.CollateralParams{}, fmt.Errorf("invalid min quantity %q", req.MinQuantity)
		}
		params.MinQuantity = min
	}
	return params, nil
}

func (vr *VaultRoutes) createCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	params, err := vr.collateralParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vr.mu.Lock()
	coll, err := vr.engine.CreateCollateral(caller(r), params)
	vr.mu.Unlock()
	if err != nil {
		vr.writeEngineError(w, "create_collateral", err)
		return
	}
	writeJSON(w, http.StatusCreated, newCollateralView(coll))
}

func (vr *VaultRoutes) updateCollateral(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid collateral id"))
		return
	}
	var req collateralRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	params, err := vr.collateralParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vr.mu.Lock()
	coll, err := vr.engine.UpdateCollateral(caller(r), id, params)
	vr.mu.Unlock()
	if err != nil {
		vr.writeEngineError(w, "update_collateral", err)
		return
	}
	writeJSON(w, http.StatusOK, newCollateralView(coll))
}

func (vr *VaultRoutes) proxyTo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Proxy string `json:"proxy"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vr.mu.Lock()
	err := vr.engine.ProxyTo(caller(r), req.Proxy)
	vr.mu.Unlock()
	if err != nil {
		vr.writeEngineError(w, "proxy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (vr *VaultRoutes) accrueIncome(w http.ResponseWriter, r *http.Request) {
	vr.mu.Lock()
	err := vr.engine.AccrueIncome()
	vr.mu.Unlock()
	if err != nil {
		vr.writeEngineError(w, "income", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// deposit moves the deposit-asset transfer into the vault account first and
// then runs the conversion hook, mirroring the transfer-then-notify flow. A
// hook failure refunds the landed transfer.
func (vr *VaultRoutes) deposit(w http.ResponseWriter, r *http.Request) {
	owner := caller(r)
	if owner == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing %s header", CallerHeader))
		return
	}
	var req transferRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sym, err := types.ParseSymbol(req.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quantity, err := parseQuantity(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vaultAccount := vr.engine.Params().VaultAccount

	vr.mu.Lock()
	defer vr.mu.Unlock()

	if err := vr.ledger.Transfer(req.Contract, owner, vaultAccount, sym, quantity, req.Memo); err != nil {
		vr.writeEngineError(w, "deposit_transfer", err)
		return
	}
	issued, err := vr.engine.OnDepositTransfer(owner, req.Contract, sym, quantity, req.Memo)
	if err != nil {
		if refundErr := vr.ledger.Transfer(req.Contract, vaultAccount, owner, sym, quantity, "refund"); refundErr != nil {
			vr.logger.Error("deposit refund failed", "owner", owner, "error", refundErr)
		}
		vr.writeEngineError(w, "deposit", err)
		return
	}
	result := "0"
	if issued != nil {
		result = issued.String()
	}
	writeJSON(w, http.StatusOK, map[string]string{"issued": result})
}

// withdraw escrows the claim tokens in the vault account and locks a release.
func (vr *VaultRoutes) withdraw(w http.ResponseWriter, r *http.Request) {
	owner := caller(r)
	if owner == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing %s header", CallerHeader))
		return
	}
	var req transferRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sym, err := types.ParseSymbol(req.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quantity, err := parseQuantity(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	params := vr.engine.Params()

	vr.mu.Lock()
	defer vr.mu.Unlock()

	if err := vr.ledger.Transfer(params.TokenContract, owner, params.VaultAccount, sym, quantity, req.Memo); err != nil {
		vr.writeEngineError(w, "withdraw_transfer", err)
		return
	}
	rel, err := vr.engine.OnWithdrawTransfer(owner, sym, quantity, req.Memo)
	if err != nil {
		if refundErr := vr.ledger.Transfer(params.TokenContract, params.VaultAccount, owner, sym, quantity, "refund"); refundErr != nil {
			vr.logger.Error("withdraw refund failed", "owner", owner, "error", refundErr)
		}
		vr.writeEngineError(w, "withdraw", err)
		return
	}
	if rel == nil {
		writeJSON(w, http.StatusOK, map[string]string{"result": "skipped"})
		return
	}
	writeJSON(w, http.StatusOK, newReleaseView(rel))
}

func (vr *VaultRoutes) release(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	owners := req.Owners
	if req.Owner != "" {
		owners = append(owners, req.Owner)
	}
	vr.mu.Lock()
	settled, err := vr.engine.Release(caller(r), owners...)
	vr.mu.Unlock()
	if err != nil {
		vr.writeEngineError(w, "release", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"settled": settled})
}
