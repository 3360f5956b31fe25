package routes

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/defiboxswap/DefiboxVault/core/types"
	"github.com/defiboxswap/DefiboxVault/gateway/middleware"
	"github.com/defiboxswap/DefiboxVault/native/token"
	"github.com/defiboxswap/DefiboxVault/native/vault"
	"github.com/defiboxswap/DefiboxVault/storage"
)

type gatewayHarness struct {
	handler http.Handler
	engine  *vault.Engine
	ledger  *token.Ledger
	now     int64
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	db := storage.NewMemDB()
	ledger := token.NewLedger(db)
	engine := vault.NewEngine(vault.Params{})
	engine.SetState(vault.NewStore(db))
	engine.SetLedger(ledger)

	h := &gatewayHarness{engine: engine, ledger: ledger, now: 600_000}
	engine.SetNowFunc(func() int64 { return h.now })

	obs := middleware.NewObservability(middleware.ObservabilityConfig{}, nil)
	h.handler = New(Config{
		Vault:         NewVaultRoutes(engine, ledger, nil),
		Observability: obs,
	})
	return h
}

func (h *gatewayHarness) request(t *testing.T, method, path, caller string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *gatewayHarness) setup(t *testing.T) {
	t.Helper()
	sym := types.Symbol{Code: "USDT", Precision: 4}
	require.NoError(t, h.ledger.Create("tethertether", "tethertether", sym, big.NewInt(1_000_000_000_0000)))

	rec := h.request(t, http.MethodPost, "/v1/vault/status", "admin.vault", statusRequest{Transfer: 1, Deposit: 1, Withdraw: 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.request(t, http.MethodPost, "/v1/vault/collaterals", "admin.vault", collateralRequest{
		DepositContract: "tethertether",
		DepositSymbol:   "4,USDT",
		IncomeAccount:   "income.vault",
		FeesAccount:     "fees.vault",
		IncomeRatio:     50,
		ReleaseFees:     30,
		RefundRatio:     5000,
		MinQuantity:     "100000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (h *gatewayHarness) fund(t *testing.T, account string, amount int64) {
	t.Helper()
	sym := types.Symbol{Code: "USDT", Precision: 4}
	require.NoError(t, h.ledger.Issue("tethertether", account, sym, big.NewInt(amount), "fund"))
}

func TestGatewayHealthAndMetrics(t *testing.T) {
	h := newGatewayHarness(t)
	rec := h.request(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = h.request(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayAdminAuthorization(t *testing.T) {
	h := newGatewayHarness(t)
	rec := h.request(t, http.MethodPost, "/v1/vault/status", "mallory", statusRequest{Transfer: 1, Deposit: 1, Withdraw: 1})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGatewayCollateralLifecycle(t *testing.T) {
	h := newGatewayHarness(t)
	h.setup(t)

	rec := h.request(t, http.MethodGet, "/v1/vault/collaterals", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []collateralView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, "4,SUSDT", list[0].IssueSymbol)

	rec = h.request(t, http.MethodPost, "/v1/vault/collaterals/1", "admin.vault", collateralRequest{
		DepositContract: "tethertether",
		DepositSymbol:   "4,USDT",
		IncomeAccount:   "income.vault",
		FeesAccount:     "fees.vault",
		ReleaseFees:     100,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated collateralView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, uint16(100), updated.ReleaseFees)

	rec = h.request(t, http.MethodGet, "/v1/vault/collaterals/1/rate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rate map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rate))
	require.Equal(t, "100000000", rate["rate"])

	rec = h.request(t, http.MethodGet, "/v1/vault/collaterals/42/rate", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayDeposit(t *testing.T) {
	h := newGatewayHarness(t)
	h.setup(t)
	h.fund(t, "alice", 1000_0000)

	rec := h.request(t, http.MethodPost, "/v1/vault/deposit", "alice", transferRequest{
		Contract: "tethertether",
		Symbol:   "4,USDT",
		Quantity: "10000000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "10000000", resp["issued"])

	claim, err := h.ledger.BalanceOf("stoken", "alice", types.Symbol{Code: "SUSDT", Precision: 4})
	require.NoError(t, err)
	require.EqualValues(t, 1000_0000, claim.Int64())
}

func TestGatewayDepositRefundsOnHookFailure(t *testing.T) {
	h := newGatewayHarness(t)
	h.setup(t)
	h.fund(t, "alice", 1000_0000)

	// Below the collateral minimum: the transfer lands, the hook rejects,
	// and the gateway refunds.
	rec := h.request(t, http.MethodPost, "/v1/vault/deposit", "alice", transferRequest{
		Contract: "tethertether",
		Symbol:   "4,USDT",
		Quantity: "50000",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	balance, err := h.ledger.BalanceOf("tethertether", "alice", types.Symbol{Code: "USDT", Precision: 4})
	require.NoError(t, err)
	require.EqualValues(t, 1000_0000, balance.Int64())
}

func TestGatewayDepositInsufficientFunds(t *testing.T) {
	h := newGatewayHarness(t)
	h.setup(t)

	rec := h.request(t, http.MethodPost, "/v1/vault/deposit", "alice", transferRequest{
		Contract: "tethertether",
		Symbol:   "4,USDT",
		Quantity: "10000000",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayWithdrawAndRelease(t *testing.T) {
	h := newGatewayHarness(t)
	h.setup(t)
	h.fund(t, "alice", 100_0000)

	rec := h.request(t, http.MethodPost, "/v1/vault/deposit", "alice", transferRequest{
		Contract: "tethertether",
		Symbol:   "4,USDT",
		Quantity: "1000000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.request(t, http.MethodPost, "/v1/vault/withdraw", "alice", transferRequest{
		Symbol:   "4,SUSDT",
		Quantity: "1000000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rel releaseView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rel))
	require.EqualValues(t, 1, rel.ID)
	require.Equal(t, "100000000", rel.Rate)

	rec = h.request(t, http.MethodGet, "/v1/vault/releases/alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue []releaseView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	require.Len(t, queue, 1)

	// Settling before maturity leaves the queue untouched.
	rec = h.request(t, http.MethodPost, "/v1/vault/release", "alice", releaseRequest{Owner: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	var settled map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settled))
	require.Equal(t, 0, settled["settled"])

	h.now = rel.Time + 1
	rec = h.request(t, http.MethodPost, "/v1/vault/release", "admin.vault", releaseRequest{Owners: []string{"alice"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settled))
	require.Equal(t, 1, settled["settled"])

	balance, err := h.ledger.BalanceOf("tethertether", "alice", types.Symbol{Code: "USDT", Precision: 4})
	require.NoError(t, err)
	// 1000000 principal less the 30 bps release fee.
	require.EqualValues(t, 99_7000, balance.Int64())

	rec = h.request(t, http.MethodPost, "/v1/vault/release", "mallory", releaseRequest{Owner: "alice"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGatewayIncomeEndpoint(t *testing.T) {
	h := newGatewayHarness(t)
	h.setup(t)
	h.fund(t, "alice", 1000_0000)
	h.fund(t, "income.vault", 200_0000)

	rec := h.request(t, http.MethodPost, "/v1/vault/deposit", "alice", transferRequest{
		Contract: "tethertether",
		Symbol:   "4,USDT",
		Quantity: "10000000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Baseline, then two epochs later.
	rec = h.request(t, http.MethodPost, "/v1/vault/income", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.now += 1200
	rec = h.request(t, http.MethodPost, "/v1/vault/income", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.request(t, http.MethodGet, "/v1/vault/collaterals/1/rate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rate map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rate))
	require.Equal(t, "100200000", rate["rate"])
}
