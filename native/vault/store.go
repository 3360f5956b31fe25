package vault

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/defiboxswap/DefiboxVault/core/types"
	"github.com/defiboxswap/DefiboxVault/storage"
)

var (
	configKey           = []byte("vault/config")
	collateralIndexKey  = []byte("vault/collateral/index")
	collateralKeyPrefix = "vault/collateral/"
	releaseKeyPrefix    = "vault/release/"
)

// Store persists vault records in the underlying key-value store. Collateral
// rows and per-owner release queues keep explicit index keys so iteration
// order is deterministic without native KV range scans.
type Store struct {
	db storage.Database
}

// NewStore constructs a store bound to the provided database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// storedConfig mirrors Config with RLP-friendly unsigned fields.
type storedConfig struct {
	LastIncomeTime uint64
	TransferStatus uint8
	DepositStatus  uint8
	WithdrawStatus uint8
	LogID          uint64
}

// releaseRecord mirrors Release with RLP-friendly unsigned fields.
type releaseRecord struct {
	ID       uint64
	Owner    string
	Quantity *big.Int
	Symbol   types.Symbol
	Rate     *big.Int
	Time     uint64
}

func collateralKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", collateralKeyPrefix, id))
}

func releaseKey(owner string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%d", releaseKeyPrefix, owner, id))
}

func releaseIndexKey(owner string) []byte {
	return []byte(fmt.Sprintf("%s%s/index", releaseKeyPrefix, owner))
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) put(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

// ConfigGet loads the config singleton, returning a zero-value row when the
// vault has not been configured yet.
func (s *Store) ConfigGet() (*Config, error) {
	var stored storedConfig
	ok, err := s.get(configKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Config{}, nil
	}
	return &Config{
		LastIncomeTime: int64(stored.LastIncomeTime),
		TransferStatus: stored.TransferStatus,
		DepositStatus:  stored.DepositStatus,
		WithdrawStatus: stored.WithdrawStatus,
		LogID:          stored.LogID,
	}, nil
}

// ConfigPut persists the config singleton.
func (s *Store) ConfigPut(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("vault store: nil config")
	}
	if cfg.LastIncomeTime < 0 {
		return fmt.Errorf("vault store: negative income time")
	}
	return s.put(configKey, &storedConfig{
		LastIncomeTime: uint64(cfg.LastIncomeTime),
		TransferStatus: cfg.TransferStatus,
		DepositStatus:  cfg.DepositStatus,
		WithdrawStatus: cfg.WithdrawStatus,
		LogID:          cfg.LogID,
	})
}

func (s *Store) collateralIndex() ([]uint64, error) {
	var index []uint64
	if _, err := s.get(collateralIndexKey, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// CollateralGet loads a collateral row by id.
func (s *Store) CollateralGet(id uint64) (*Collateral, bool, error) {
	coll := new(Collateral)
	ok, err := s.get(collateralKey(id), coll)
	if err != nil || !ok {
		return nil, false, err
	}
	return coll, true, nil
}

// CollateralByDeposit scans the registry for the row matching a deposit
// contract and symbol. Registries are small; the scan mirrors the original
// table walk.
func (s *Store) CollateralByDeposit(contract string, sym types.Symbol) (*Collateral, bool, error) {
	return s.findCollateral(func(c *Collateral) bool {
		return c.DepositContract == contract && c.DepositSymbol.Equal(sym)
	})
}

// CollateralByIssue scans the registry for the row issuing the given claim
// symbol.
func (s *Store) CollateralByIssue(sym types.Symbol) (*Collateral, bool, error) {
	return s.findCollateral(func(c *Collateral) bool {
		return c.IssueSymbol.Equal(sym)
	})
}

func (s *Store) findCollateral(match func(*Collateral) bool) (*Collateral, bool, error) {
	index, err := s.collateralIndex()
	if err != nil {
		return nil, false, err
	}
	for _, id := range index {
		coll, ok, err := s.CollateralGet(id)
		if err != nil {
			return nil, false, err
		}
		if ok && match(coll) {
			return coll, true, nil
		}
	}
	return nil, false, nil
}

// CollateralPut persists a collateral row, maintaining the id index on first
// insert.
func (s *Store) CollateralPut(coll *Collateral) error {
	if coll == nil || coll.ID == 0 {
		return fmt.Errorf("vault store: invalid collateral")
	}
	stored := coll.Clone()
	if err := s.put(collateralKey(stored.ID), stored); err != nil {
		return err
	}
	index, err := s.collateralIndex()
	if err != nil {
		return err
	}
	for _, id := range index {
		if id == stored.ID {
			return nil
		}
	}
	index = append(index, stored.ID)
	return s.put(collateralIndexKey, index)
}

// CollateralList returns all collateral rows in id order.
func (s *Store) CollateralList() ([]*Collateral, error) {
	index, err := s.collateralIndex()
	if err != nil {
		return nil, err
	}
	out := make([]*Collateral, 0, len(index))
	for _, id := range index {
		coll, ok, err := s.CollateralGet(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, coll)
		}
	}
	return out, nil
}

// NextCollateralID allocates the next collateral id, starting at 1.
func (s *Store) NextCollateralID() (uint64, error) {
	index, err := s.collateralIndex()
	if err != nil {
		return 0, err
	}
	if len(index) == 0 {
		return 1, nil
	}
	return index[len(index)-1] + 1, nil
}

func (s *Store) releaseIndex(owner string) ([]uint64, error) {
	var index []uint64
	if _, err := s.get(releaseIndexKey(owner), &index); err != nil {
		return nil, err
	}
	return index, nil
}

// ReleasePut appends a release record to its owner's queue.
func (s *Store) ReleasePut(rel *Release) error {
	if rel == nil || rel.ID == 0 || rel.Owner == "" {
		return fmt.Errorf("vault store: invalid release")
	}
	if rel.Time < 0 {
		return fmt.Errorf("vault store: negative release time")
	}
	stored := releaseRecord{
		ID:       rel.ID,
		Owner:    rel.Owner,
		Quantity: cloneBigInt(rel.Quantity),
		Symbol:   rel.Symbol,
		Rate:     cloneBigInt(rel.Rate),
		Time:     uint64(rel.Time),
	}
	if err := s.put(releaseKey(rel.Owner, rel.ID), &stored); err != nil {
		return err
	}
	index, err := s.releaseIndex(rel.Owner)
	if err != nil {
		return err
	}
	for _, id := range index {
		if id == rel.ID {
			return nil
		}
	}
	index = append(index, rel.ID)
	return s.put(releaseIndexKey(rel.Owner), index)
}

// ReleaseList returns the owner's pending releases in FIFO (insertion) order.
func (s *Store) ReleaseList(owner string) ([]*Release, error) {
	index, err := s.releaseIndex(owner)
	if err != nil {
		return nil, err
	}
	out := make([]*Release, 0, len(index))
	for _, id := range index {
		var stored releaseRecord
		ok, err := s.get(releaseKey(owner, id), &stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, &Release{
			ID:       stored.ID,
			Owner:    stored.Owner,
			Quantity: stored.Quantity,
			Symbol:   stored.Symbol,
			Rate:     stored.Rate,
			Time:     int64(stored.Time),
		})
	}
	return out, nil
}

// ReleaseDelete removes a settled release from the owner's queue and index.
func (s *Store) ReleaseDelete(owner string, id uint64) error {
	if err := s.db.Delete(releaseKey(owner, id)); err != nil {
		return err
	}
	index, err := s.releaseIndex(owner)
	if err != nil {
		return err
	}
	next := index[:0]
	for _, existing := range index {
		if existing != id {
			next = append(next, existing)
		}
	}
	if len(next) == 0 {
		return s.db.Delete(releaseIndexKey(owner))
	}
	return s.put(releaseIndexKey(owner), next)
}
