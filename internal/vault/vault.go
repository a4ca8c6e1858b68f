package vault

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInsufficientFunds means the source account cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAccountFrozen means the destination refuses incoming value.
	ErrAccountFrozen = errors.New("destination account is frozen")
)

// Payout is one leg of an atomic batch transfer.
type Payout struct {
	To     string
	Amount uint64
}

// Vault is an in-memory account ledger. It is the single custody point
// for pooled value: deposits land in an escrow account and leave it only
// through Transfer or PayoutBatch.
type Vault struct {
	mu       sync.Mutex
	balances map[string]uint64
	frozen   map[string]bool
}

// New creates an empty vault.
func New() *Vault {
	return &Vault{
		balances: make(map[string]uint64),
		frozen:   make(map[string]bool),
	}
}

// Credit mints value into an account. Used by the faucet endpoint and tests.
func (v *Vault) Credit(addr string, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[addr] += amount
}

// Balance reports the current balance of an account.
func (v *Vault) Balance(addr string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[addr]
}

// Freeze makes an account reject all incoming transfers until Unfreeze.
func (v *Vault) Freeze(addr string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frozen[addr] = true
}

// Unfreeze lifts a freeze.
func (v *Vault) Unfreeze(addr string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.frozen, addr)
}

// Transfer moves amount from one account to another. The failure is
// observable, never partial: either both balances change or neither does.
func (v *Vault) Transfer(from, to string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balances[from] < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, ErrInsufficientFunds)
	}
	if v.frozen[to] {
		return fmt.Errorf("transfer to %s: %w", to, ErrAccountFrozen)
	}
	v.balances[from] -= amount
	v.balances[to] += amount
	return nil
}

// PayoutBatch applies every payout from a single source, all or nothing.
// Feasibility is validated in full before any balance moves, so a
// rejecting destination in the middle of the batch cannot strand a
// partial disbursement.
func (v *Vault) PayoutBatch(from string, payouts []Payout) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var total uint64
	for _, p := range payouts {
		if v.frozen[p.To] {
			return fmt.Errorf("payout to %s: %w", p.To, ErrAccountFrozen)
		}
		total += p.Amount
	}
	if v.balances[from] < total {
		return fmt.Errorf("payout batch of %d from %s: %w", total, from, ErrInsufficientFunds)
	}

	v.balances[from] -= total
	for _, p := range payouts {
		v.balances[p.To] += p.Amount
	}
	return nil
}
