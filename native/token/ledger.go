package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/defiboxswap/DefiboxVault/core/types"
	"github.com/defiboxswap/DefiboxVault/storage"
)

var (
	ErrTokenExists        = errors.New("token ledger: token already created")
	ErrTokenNotFound      = errors.New("token ledger: token not found")
	ErrInsufficientFunds  = errors.New("token ledger: insufficient balance")
	ErrMaxSupplyExceeded  = errors.New("token ledger: max supply exceeded")
	errInvalidTokenAmount = errors.New("token ledger: amount must be positive")
)

const (
	statKeyPrefix    = "token/stat/"
	balanceKeyPrefix = "token/balance/"
)

// Stat is the per-token supply row kept by the issuer contract.
type Stat struct {
	Symbol    types.Symbol
	Supply    *big.Int
	MaxSupply *big.Int
	Issuer    string
}

// Clone returns a deep copy of the stat row.
func (s *Stat) Clone() *Stat {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Supply != nil {
		clone.Supply = new(big.Int).Set(s.Supply)
	} else {
		clone.Supply = big.NewInt(0)
	}
	if s.MaxSupply != nil {
		clone.MaxSupply = new(big.Int).Set(s.MaxSupply)
	} else {
		clone.MaxSupply = big.NewInt(0)
	}
	return &clone
}

// Ledger tracks balances and supply for every (contract, symbol) pair. It is
// the token-issuer collaborator consumed by the vault engine: all mutations
// run synchronously within the caller's serialized step.
type Ledger struct {
	db storage.Database
}

// NewLedger constructs a ledger bound to the provided database.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func statKey(contract string, sym types.Symbol) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", statKeyPrefix, contract, sym.Code))
}

func balanceKey(contract, account string, sym types.Symbol) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%s", balanceKeyPrefix, contract, sym.Code, account))
}

func (l *Ledger) get(key []byte, out interface{}) (bool, error) {
	raw, err := l.db.Get(key)
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

func (l *Ledger) put(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return l.db.Put(key, raw)
}

func (l *Ledger) stat(contract string, sym types.Symbol) (*Stat, error) {
	stat := new(Stat)
	ok, err := l.get(statKey(contract, sym), stat)
	if err != nil {
		return nil, err
	}
	if !ok || !stat.Symbol.Equal(sym) {
		return nil, ErrTokenNotFound
	}
	return stat, nil
}

// Create registers a new token with zero supply and the given ceiling.
func (l *Ledger) Create(contract, issuer string, sym types.Symbol, maxSupply *big.Int) error {
	if !sym.Valid() {
		return fmt.Errorf("token ledger: invalid symbol %s", sym)
	}
	if maxSupply == nil || maxSupply.Sign() <= 0 {
		return errInvalidTokenAmount
	}
	ok, err := l.db.Has(statKey(contract, sym))
	if err != nil {
		return err
	}
	if ok {
		return ErrTokenExists
	}
	return l.put(statKey(contract, sym), &Stat{
		Symbol:    sym,
		Supply:    big.NewInt(0),
		MaxSupply: new(big.Int).Set(maxSupply),
		Issuer:    issuer,
	})
}

// SupplyOf returns the circulating supply of a token, failing when the token
// has never been created.
func (l *Ledger) SupplyOf(contract string, sym types.Symbol) (*big.Int, error) {
	stat, err := l.stat(contract, sym)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(stat.Supply), nil
}

// BalanceOf returns an account's balance, zero when no row exists.
func (l *Ledger) BalanceOf(contract, account string, sym types.Symbol) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := l.get(balanceKey(contract, account, sym), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (l *Ledger) setBalance(contract, account string, sym types.Symbol, amount *big.Int) error {
	if amount.Sign() == 0 {
		return l.db.Delete(balanceKey(contract, account, sym))
	}
	return l.put(balanceKey(contract, account, sym), amount)
}

// Issue mints amount to the recipient, bounded by the token's max supply.
func (l *Ledger) Issue(contract, to string, sym types.Symbol, amount *big.Int, memo string) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidTokenAmount
	}
	stat, err := l.stat(contract, sym)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(stat.Supply, amount)
	if stat.MaxSupply.Sign() > 0 && next.Cmp(stat.MaxSupply) > 0 {
		return ErrMaxSupplyExceeded
	}
	stat.Supply = next
	if err := l.put(statKey(contract, sym), stat); err != nil {
		return err
	}
	balance, err := l.BalanceOf(contract, to, sym)
	if err != nil {
		return err
	}
	return l.setBalance(contract, to, sym, balance.Add(balance, amount))
}

// Retire burns amount from the holder and reduces circulating supply.
func (l *Ledger) Retire(contract, from string, sym types.Symbol, amount *big.Int, memo string) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidTokenAmount
	}
	stat, err := l.stat(contract, sym)
	if err != nil {
		return err
	}
	balance, err := l.BalanceOf(contract, from, sym)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if stat.Supply.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	stat.Supply = new(big.Int).Sub(stat.Supply, amount)
	if err := l.put(statKey(contract, sym), stat); err != nil {
		return err
	}
	return l.setBalance(contract, from, sym, balance.Sub(balance, amount))
}

// Transfer moves amount between two accounts of the same token.
func (l *Ledger) Transfer(contract, from, to string, sym types.Symbol, amount *big.Int, memo string) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidTokenAmount
	}
	if from == to {
		return fmt.Errorf("token ledger: self transfer")
	}
	if _, err := l.stat(contract, sym); err != nil {
		return err
	}
	fromBalance, err := l.BalanceOf(contract, from, sym)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toBalance, err := l.BalanceOf(contract, to, sym)
	if err != nil {
		return err
	}
	if err := l.setBalance(contract, from, sym, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.setBalance(contract, to, sym, toBalance.Add(toBalance, amount))
}
