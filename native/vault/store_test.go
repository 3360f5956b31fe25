package vault

import (
	"math/big"
	"testing"

	"github.com/defiboxswap/DefiboxVault/core/types"
	"github.com/defiboxswap/DefiboxVault/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemDB())
}

func testCollateral(id uint64, code string) *Collateral {
	deposit := types.Symbol{Code: code, Precision: 4}
	return &Collateral{
		ID:              id,
		DepositContract: "tethertether",
		DepositSymbol:   deposit,
		IssueSymbol:     DeriveIssueSymbol(deposit),
		IncomeAccount:   "income.vault",
		FeesAccount:     "fees.vault",
		IncomeRatio:     50,
		ReleaseFees:     30,
		RefundRatio:     5000,
		MinQuantity:     big.NewInt(10_0000),
		LastIncome:      big.NewInt(0),
		TotalIncome:     big.NewInt(0),
	}
}

func TestStoreConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)

	cfg, err := store.ConfigGet()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.LastIncomeTime != 0 || cfg.LogID != 0 {
		t.Fatalf("expected zero config, got %+v", cfg)
	}

	cfg.LastIncomeTime = 600_000
	cfg.TransferStatus = StatusEnabled
	cfg.DepositStatus = StatusEnabled
	cfg.LogID = 7
	if err := store.ConfigPut(cfg); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, err := store.ConfigGet()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.LastIncomeTime != 600_000 || loaded.TransferStatus != StatusEnabled || loaded.LogID != 7 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.WithdrawStatus != StatusDisabled {
		t.Fatalf("untouched flag changed: %+v", loaded)
	}
}

func TestStoreCollateralLookups(t *testing.T) {
	store := newTestStore(t)

	first := testCollateral(1, "USDT")
	second := testCollateral(2, "USDC")
	if err := store.CollateralPut(first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := store.CollateralPut(second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	byDeposit, ok, err := store.CollateralByDeposit("tethertether", second.DepositSymbol)
	if err != nil || !ok {
		t.Fatalf("by deposit: ok=%v err=%v", ok, err)
	}
	if byDeposit.ID != 2 {
		t.Fatalf("expected id 2, got %d", byDeposit.ID)
	}

	byIssue, ok, err := store.CollateralByIssue(first.IssueSymbol)
	if err != nil || !ok {
		t.Fatalf("by issue: ok=%v err=%v", ok, err)
	}
	if byIssue.ID != 1 {
		t.Fatalf("expected id 1, got %d", byIssue.ID)
	}

	if _, ok, err := store.CollateralByIssue(types.Symbol{Code: "SDOGE", Precision: 4}); err != nil || ok {
		t.Fatalf("unknown symbol should miss: ok=%v err=%v", ok, err)
	}

	list, err := store.CollateralList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != 1 || list[1].ID != 2 {
		t.Fatalf("unexpected list order: %+v", list)
	}

	next, err := store.NextCollateralID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if next != 3 {
		t.Fatalf("expected next id 3, got %d", next)
	}
}

func TestStoreCollateralUpdateKeepsIndex(t *testing.T) {
	store := newTestStore(t)
	coll := testCollateral(1, "USDT")
	if err := store.CollateralPut(coll); err != nil {
		t.Fatalf("put: %v", err)
	}
	coll.TotalIncome = big.NewInt(42)
	if err := store.CollateralPut(coll); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, err := store.CollateralList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("update duplicated index entry: %d rows", len(list))
	}
	if list[0].TotalIncome.Int64() != 42 {
		t.Fatalf("update not persisted: %s", list[0].TotalIncome)
	}
}

func TestStoreReleaseQueue(t *testing.T) {
	store := newTestStore(t)
	sym := types.Symbol{Code: "SUSDT", Precision: 4}

	for i := uint64(1); i <= 3; i++ {
		rel := &Release{
			ID:       i,
			Owner:    "alice",
			Quantity: big.NewInt(int64(i) * 10_0000),
			Symbol:   sym,
			Rate:     big.NewInt(RateBase),
			Time:     600_000 + int64(i),
		}
		if err := store.ReleasePut(rel); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	queue, err := store.ReleaseList("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(queue))
	}
	for i, rel := range queue {
		if rel.ID != uint64(i+1) {
			t.Fatalf("queue out of insertion order: %+v", queue)
		}
	}
	if queue[1].Quantity.Int64() != 20_0000 || queue[1].Time != 600_002 {
		t.Fatalf("round trip mismatch: %+v", queue[1])
	}

	if err := store.ReleaseDelete("alice", 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	queue, err = store.ReleaseList("alice")
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
	if len(queue) != 2 || queue[0].ID != 1 || queue[1].ID != 3 {
		t.Fatalf("unexpected queue after delete: %+v", queue)
	}

	other, err := store.ReleaseList("bob")
	if err != nil {
		t.Fatalf("other owner: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("queues must be per owner, got %d rows", len(other))
	}
}
