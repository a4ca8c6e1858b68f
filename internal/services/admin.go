package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/logger"
)

// UpdatePlatformFee changes the fee taken from future settlements.
// Admin only; capped at MaxFeeBps. Drops already settled keep the fee
// they were settled with.
func (s *DropService) UpdatePlatformFee(caller string, bps int) error {
	if caller != s.cfg.AdminAddress {
		return fmt.Errorf("fee update by %s: %w", caller, ErrUnauthorized)
	}
	if bps < 0 || bps > MaxFeeBps {
		return fmt.Errorf("fee %d bps: %w", bps, ErrFeeTooHigh)
	}
	s.mu.Lock()
	s.feeBps = bps
	s.mu.Unlock()
	logger.Infof("platform fee updated to %d bps by %s", bps, caller)
	return nil
}

// PlatformFeeBps reports the fee applied to the next settlement.
func (s *DropService) PlatformFeeBps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeBps
}

// WithdrawExcess moves escrow balance beyond what open drops are owed to
// dest. Admin only. The owed amount is tracked ahead of every deposit,
// so a withdrawal can never touch value a drop still has a claim on.
func (s *DropService) WithdrawExcess(caller, dest string) (uint64, error) {
	if caller != s.cfg.AdminAddress {
		return 0, fmt.Errorf("withdraw by %s: %w", caller, ErrUnauthorized)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.treasury.Balance(s.cfg.EscrowAccount)
	if balance <= s.locked {
		return 0, nil
	}
	excess := balance - s.locked
	if err := s.treasury.Transfer(s.cfg.EscrowAccount, dest, excess); err != nil {
		return 0, fmt.Errorf("withdraw %d to %s: %w", excess, dest, err)
	}
	logger.Infof("withdrew %d excess escrow to %s", excess, dest)
	return excess, nil
}

// LockedValue reports the escrow value currently owed to open drops.
func (s *DropService) LockedValue() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}

// StrandedDrops lists drops whose randomness request has gone unfulfilled
// for longer than olderThan. Such drops are permanently inactive and
// uncompleted with funds locked; there is no force-cancel, so they are
// surfaced to operators instead. Drops with an operation in flight are
// skipped and picked up on the next sweep.
func (s *DropService) StrandedDrops(olderThan time.Duration) []uint64 {
	cutoff := s.clock.Now().Add(-olderThan)

	s.mu.RLock()
	states := make([]*dropState, 0, len(s.drops))
	for _, st := range s.drops {
		states = append(states, st)
	}
	s.mu.RUnlock()

	var ids []uint64
	for _, st := range states {
		if !st.gate.TryLock() {
			continue
		}
		d := &st.drop
		if !d.IsActive && !d.IsCompleted {
			for _, req := range st.requests {
				if !req.Fulfilled && req.RequestedAt.Before(cutoff) {
					ids = append(ids, d.ID)
					break
				}
			}
		}
		st.gate.Unlock()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
