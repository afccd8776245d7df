package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gagliardetto/solana-go"

	"metapool/internal/liquidity"
)

type balanceKey struct {
	account solana.PublicKey
	asset   liquidity.AssetKind
}

// Entry is one non-zero balance.
type Entry struct {
	Account solana.PublicKey `json:"account"`
	Asset   string           `json:"asset"`
	Amount  uint64           `json:"amount"`
}

// Book holds the pool state and every balance. It implements liquidity.Tx and
// is not safe for concurrent use; hosts hand each transaction its own clone.
type Book struct {
	pool     *liquidity.State
	balances map[balanceKey]uint64
	supply   map[liquidity.AssetKind]uint64
}

func NewBook() *Book {
	return &Book{
		balances: make(map[balanceKey]uint64),
		supply:   make(map[liquidity.AssetKind]uint64),
	}
}

// RestoreBook rebuilds a book from a persisted pool state and balances.
func RestoreBook(pool *liquidity.State, entries []Entry) (*Book, error) {
	b := NewBook()
	if pool != nil {
		state := *pool
		b.pool = &state
	}
	for _, entry := range entries {
		asset, err := liquidity.ParseAsset(entry.Asset)
		if err != nil {
			return nil, err
		}
		if err := b.credit(entry.Account, entry.Amount, asset); err != nil {
			return nil, fmt.Errorf("restore %s balance of %s: %w", asset, entry.Account, err)
		}
	}
	return b, nil
}

// Clone returns a deep copy.
func (b *Book) Clone() *Book {
	out := NewBook()
	if b.pool != nil {
		state := *b.pool
		out.pool = &state
	}
	for k, v := range b.balances {
		out.balances[k] = v
	}
	for k, v := range b.supply {
		out.supply[k] = v
	}
	return out
}

// PoolState returns the stored pool, if created.
func (b *Book) PoolState() (liquidity.State, bool) {
	if b.pool == nil {
		return liquidity.State{}, false
	}
	return *b.pool, true
}

// Entries lists non-zero balances ordered by account then asset.
func (b *Book) Entries() []Entry {
	keys := make([]balanceKey, 0, len(b.balances))
	for k, v := range b.balances {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].account[:], keys[j].account[:]); c != 0 {
			return c < 0
		}
		return keys[i].asset < keys[j].asset
	})

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Account: k.account, Asset: k.asset.String(), Amount: b.balances[k]})
	}
	return entries
}

func (b *Book) Transfer(_ context.Context, from, to solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	if amount == 0 || from.Equals(to) {
		return b.requireBalance(from, amount, asset)
	}
	if err := b.requireBalance(from, amount, asset); err != nil {
		return err
	}
	toKey := balanceKey{account: to, asset: asset}
	credited, overflow := math.SafeAdd(b.balances[toKey], amount)
	if overflow {
		return &liquidity.Error{Kind: liquidity.KindOverflow, Op: "transfer", Asset: asset, Requested: amount}
	}
	b.balances[balanceKey{account: from, asset: asset}] -= amount
	b.balances[toKey] = credited
	return nil
}

func (b *Book) Mint(_ context.Context, to solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	return b.credit(to, amount, asset)
}

func (b *Book) Burn(_ context.Context, from solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	if err := b.requireBalance(from, amount, asset); err != nil {
		return err
	}
	b.balances[balanceKey{account: from, asset: asset}] -= amount
	b.supply[asset] -= amount
	return nil
}

func (b *Book) Balance(_ context.Context, account solana.PublicKey, asset liquidity.AssetKind) (uint64, error) {
	return b.balances[balanceKey{account: account, asset: asset}], nil
}

func (b *Book) Supply(_ context.Context, asset liquidity.AssetKind) (uint64, error) {
	return b.supply[asset], nil
}

func (b *Book) LoadPool(context.Context) (liquidity.State, error) {
	if b.pool == nil {
		return liquidity.State{}, liquidity.ErrPoolNotInitialized
	}
	return *b.pool, nil
}

func (b *Book) StorePool(_ context.Context, next liquidity.State) error {
	if b.pool == nil {
		return liquidity.ErrPoolNotInitialized
	}
	if next.Sequence == 0 || b.pool.Sequence != next.Sequence-1 {
		return liquidity.ConcurrentModification(next.Sequence-1, b.pool.Sequence)
	}
	state := next
	b.pool = &state
	return nil
}

func (b *Book) CreatePool(_ context.Context, initial liquidity.State) error {
	if b.pool != nil {
		return liquidity.ErrPoolExists
	}
	state := initial
	b.pool = &state
	return nil
}

func (b *Book) requireBalance(account solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	balance := b.balances[balanceKey{account: account, asset: asset}]
	if balance < amount {
		return liquidity.InsufficientBalance(asset, amount, balance)
	}
	return nil
}

func (b *Book) credit(account solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	key := balanceKey{account: account, asset: asset}
	balance, overflow := math.SafeAdd(b.balances[key], amount)
	if overflow {
		return &liquidity.Error{Kind: liquidity.KindOverflow, Op: "mint", Asset: asset, Requested: amount}
	}
	supply, overflow := math.SafeAdd(b.supply[asset], amount)
	if overflow {
		return &liquidity.Error{Kind: liquidity.KindOverflow, Op: "mint", Asset: asset, Requested: amount}
	}
	b.balances[key] = balance
	b.supply[asset] = supply
	return nil
}
