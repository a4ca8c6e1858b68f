package services

import (
	"fmt"
	"strings"

	"github.com/google/logger"

	"drops/internal/models"
	"drops/internal/vault"
)

// tieredSplits maps winner count to percentage shares by rank.
var tieredSplits = map[int][]uint64{
	1: {100},
	2: {60, 40},
	3: {50, 30, 20},
}

// TriggerSelection lets the host of a manual-selection drop close
// enrollment early, once at least numWinners participants have joined.
func (s *DropService) TriggerSelection(dropID uint64, caller string) error {
	st, err := s.lookup(dropID)
	if err != nil {
		return err
	}
	if !st.gate.TryLock() {
		return fmt.Errorf("trigger drop %d: %w", dropID, ErrDropBusy)
	}
	defer st.gate.Unlock()

	d := &st.drop
	switch {
	case caller != d.Host:
		return fmt.Errorf("trigger drop %d by %s: %w", dropID, caller, ErrUnauthorized)
	case !d.IsManualSelection:
		return fmt.Errorf("trigger drop %d: %w", dropID, ErrNotManualSelection)
	case !d.IsActive:
		return fmt.Errorf("trigger drop %d: %w", dropID, ErrDropNotActive)
	case d.IsCompleted:
		return fmt.Errorf("trigger drop %d: %w", dropID, ErrDropCompleted)
	case d.CurrentParticipants < d.NumWinners:
		return fmt.Errorf("trigger drop %d: %d joined, need %d: %w", dropID, d.CurrentParticipants, d.NumWinners, ErrNotEnoughJoined)
	}
	return s.requestSelection(st)
}

// requestSelection closes enrollment and issues the randomness request.
// This is the only place IsActive is cleared before terminal settlement,
// and it is irreversible. Callers hold the drop's gate.
func (s *DropService) requestSelection(st *dropState) error {
	requestID, err := s.oracle.RequestRandomness(st.drop.NumWinners)
	if err != nil {
		return fmt.Errorf("randomness request for drop %d: %w", st.drop.ID, err)
	}

	st.drop.IsActive = false
	req := &models.RandomnessRequest{
		ID:          requestID,
		DropID:      st.drop.ID,
		RequestedAt: s.clock.Now(),
	}
	st.requests = append(st.requests, req)
	s.mu.Lock()
	s.requests[requestID] = req
	s.mu.Unlock()

	st.events = append(st.events, models.DropEvent{
		Type:   models.EventRequestSent,
		Detail: fmt.Sprintf("request %s for %d winners", requestID, st.drop.NumWinners),
		At:     req.RequestedAt,
	})
	logger.Infof("drop %d: randomness request %s sent (%d words)", st.drop.ID, requestID, st.drop.NumWinners)
	return nil
}

// OnRandomnessFulfilled is the oracle's callback entry point. It arrives
// on the oracle's own goroutine after arbitrary delay and is treated as
// untrusted input: unknown identifiers, completed drops and duplicate
// deliveries are rejected without mutation. Acceptance settles the drop
// in the same operation; if any transfer fails, nothing is committed,
// not even the fulfilled flag, so the delivery can be retried.
func (s *DropService) OnRandomnessFulfilled(requestID string, randomWords []uint64) error {
	s.mu.RLock()
	req := s.requests[requestID]
	s.mu.RUnlock()
	if req == nil {
		return fmt.Errorf("fulfillment %s: %w", requestID, ErrUnknownRequest)
	}

	st, err := s.lookup(req.DropID)
	if err != nil {
		return err
	}
	st.gate.Lock()
	defer st.gate.Unlock()

	d := &st.drop
	if req.Fulfilled {
		return fmt.Errorf("fulfillment %s for drop %d: %w", requestID, d.ID, ErrDuplicateFulfillment)
	}
	if d.IsCompleted {
		return fmt.Errorf("fulfillment %s for drop %d: %w", requestID, d.ID, ErrDropCompleted)
	}
	if len(randomWords) != d.NumWinners {
		return fmt.Errorf("fulfillment %s carries %d words, want %d: %w", requestID, len(randomWords), d.NumWinners, ErrBadRandomWords)
	}

	// Compute everything first, with no side effects. Index collisions
	// are allowed: the same participant can take more than one slot.
	winners := make([]models.Winner, d.NumWinners)
	for i, word := range randomWords {
		idx := word % uint64(d.CurrentParticipants)
		winners[i].Address = d.Participants[idx].Address
	}
	s.mu.RLock()
	feeBps := s.feeBps
	s.mu.RUnlock()
	fee, shares := computePayouts(d.RewardAmount, feeBps, d.NumWinners, s.cfg.PayoutMode)
	for i := range winners {
		winners[i].Amount = shares[i]
	}

	payouts := make([]vault.Payout, 0, d.NumWinners+1)
	if fee > 0 {
		payouts = append(payouts, vault.Payout{To: s.cfg.FeeReceiver, Amount: fee})
	}
	for _, w := range winners {
		payouts = append(payouts, vault.Payout{To: w.Address, Amount: w.Amount})
	}
	if err := s.treasury.PayoutBatch(s.cfg.EscrowAccount, payouts); err != nil {
		return fmt.Errorf("settlement of drop %d: %w", d.ID, err)
	}

	req.Fulfilled = true
	d.Winners = winners
	d.IsCompleted = true
	s.subLocked(d.RewardAmount)

	names := make([]string, len(winners))
	for i, w := range winners {
		names[i] = fmt.Sprintf("%s:%d", w.Address, w.Amount)
	}
	st.events = append(st.events, models.DropEvent{
		Type:   models.EventWinnersSelected,
		Detail: fmt.Sprintf("fee %d, winners %s", fee, strings.Join(names, ", ")),
		At:     s.clock.Now(),
	})
	logger.Infof("drop %d settled: fee=%d winners=%s", d.ID, fee, strings.Join(names, ", "))
	return nil
}

// CancelDrop reverses an unselected drop's custody: entry fees go back to
// every participant, or the pool back to the host. Refunds are
// all-or-nothing; the terminal flags commit only after they succeed.
func (s *DropService) CancelDrop(dropID uint64, caller string) error {
	st, err := s.lookup(dropID)
	if err != nil {
		return err
	}
	if !st.gate.TryLock() {
		return fmt.Errorf("cancel drop %d: %w", dropID, ErrDropBusy)
	}
	defer st.gate.Unlock()

	d := &st.drop
	switch {
	case caller != d.Host && caller != s.cfg.AdminAddress:
		return fmt.Errorf("cancel drop %d by %s: %w", dropID, caller, ErrUnauthorized)
	case !d.IsActive:
		return fmt.Errorf("cancel drop %d: %w", dropID, ErrDropNotActive)
	case d.IsCompleted:
		return fmt.Errorf("cancel drop %d: %w", dropID, ErrDropCompleted)
	}

	var refunds []vault.Payout
	var total uint64
	if d.IsPaidEntry {
		for _, p := range d.Participants {
			refunds = append(refunds, vault.Payout{To: p.Address, Amount: d.EntryFee})
			total += d.EntryFee
		}
	} else {
		refunds = append(refunds, vault.Payout{To: d.Host, Amount: d.RewardAmount})
		total = d.RewardAmount
	}
	if len(refunds) > 0 {
		if err := s.treasury.PayoutBatch(s.cfg.EscrowAccount, refunds); err != nil {
			return fmt.Errorf("refund for drop %d: %w", dropID, err)
		}
	}

	d.IsActive = false
	d.IsCompleted = true
	s.subLocked(total)

	st.events = append(st.events, models.DropEvent{
		Type:   models.EventCancelled,
		Detail: fmt.Sprintf("by %s, refunded %d", caller, total),
		At:     s.clock.Now(),
	})
	logger.Infof("drop %d cancelled by %s, refunded %d", dropID, caller, total)
	return nil
}

// computePayouts splits the pool into the platform fee and per-winner
// shares. Conservation holds exactly: fee + sum(shares) == reward. The
// integer remainder of either split mode lands on the first winner.
func computePayouts(reward uint64, feeBps, numWinners int, mode models.PayoutMode) (uint64, []uint64) {
	fee := reward * uint64(feeBps) / 10000
	total := reward - fee

	shares := make([]uint64, numWinners)
	var distributed uint64
	if mode == models.PayoutEqual {
		each := total / uint64(numWinners)
		for i := range shares {
			shares[i] = each
			distributed += each
		}
	} else {
		for i, pct := range tieredSplits[numWinners] {
			shares[i] = total * pct / 100
			distributed += shares[i]
		}
	}
	shares[0] += total - distributed
	return fee, shares
}
