package ledger

import "sync"

// Balances is the escrow book: bond refunds and claim payouts are credited
// here rather than settled externally.
type Balances struct {
	mu    sync.RWMutex
	funds map[string]uint64
}

// NewBalances returns an empty balance book.
func NewBalances() *Balances {
	return &Balances{funds: make(map[string]uint64)}
}

// Credit adds amount to an address.
func (b *Balances) Credit(addr string, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.funds[addr] += amount
}

// BalanceOf returns the credited balance for an address.
func (b *Balances) BalanceOf(addr string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.funds[addr]
}

// All returns a copy of every non-zero balance.
func (b *Balances) All() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]uint64, len(b.funds))
	for addr, amt := range b.funds {
		out[addr] = amt
	}
	return out
}

// Restore replaces the balance book when reloading from storage.
func (b *Balances) Restore(funds map[string]uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.funds = make(map[string]uint64, len(funds))
	for addr, amt := range funds {
		b.funds[addr] = amt
	}
}
