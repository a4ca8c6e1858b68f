package services

import (
	"fmt"
	"sync"

	"github.com/google/logger"
	"github.com/jonboulle/clockwork"

	"drops/internal/models"
	"drops/internal/vault"
)

// MaxFeeBps caps the platform fee at 10%.
const MaxFeeBps = 1000

// Treasury is the value-movement primitive the engine needs. Transfers
// are synchronous and fallible; PayoutBatch is all-or-nothing.
type Treasury interface {
	Transfer(from, to string, amount uint64) error
	PayoutBatch(from string, payouts []vault.Payout) error
	Balance(addr string) uint64
}

// Oracle issues asynchronous randomness requests. The returned request
// identifier is opaque; the fulfillment arrives later through
// OnRandomnessFulfilled carrying the same identifier.
type Oracle interface {
	RequestRandomness(numWords int) (string, error)
}

// Config carries the engine parameters fixed at construction.
type Config struct {
	EscrowAccount  string
	FeeReceiver    string
	AdminAddress   string
	PlatformFeeBps int
	PayoutMode     models.PayoutMode
}

// dropState is the registry's record for one drop. The gate serializes
// every operation against the drop; operations that move value acquire
// it with TryLock so a reentrant call during an active transfer fails
// immediately instead of proceeding or deadlocking.
type dropState struct {
	gate     sync.Mutex
	drop     models.Drop
	members  map[string]bool
	requests []*models.RandomnessRequest
	events   []models.DropEvent
}

// DropService owns every drop record. All mutation goes through its
// operations; there is no other write path into a drop.
type DropService struct {
	mu       sync.RWMutex
	drops    map[uint64]*dropState
	requests map[string]*models.RandomnessRequest
	nextID   uint64
	feeBps   int
	locked   uint64 // escrow value owed to open drops

	treasury Treasury
	oracle   Oracle
	clock    clockwork.Clock
	cfg      Config
}

// NewDropService creates an engine backed by the given treasury and oracle.
func NewDropService(treasury Treasury, orc Oracle, clock clockwork.Clock, cfg Config) *DropService {
	return &DropService{
		drops:    make(map[uint64]*dropState),
		requests: make(map[string]*models.RandomnessRequest),
		feeBps:   cfg.PlatformFeeBps,
		treasury: treasury,
		oracle:   orc,
		clock:    clock,
		cfg:      cfg,
	}
}

// CreateDrop validates the terms, takes custody of host funding when the
// drop is host-funded, and registers the drop under the next sequential id.
func (s *DropService) CreateDrop(host string, entryFee, rewardAmount uint64, maxParticipants, numWinners int, isPaidEntry, isManualSelection bool, suppliedValue uint64) (uint64, error) {
	if numWinners < 1 || numWinners > models.MaxWinners {
		return 0, fmt.Errorf("numWinners %d out of range 1..%d: %w", numWinners, models.MaxWinners, ErrInvalidTerms)
	}
	if maxParticipants <= numWinners {
		return 0, fmt.Errorf("maxParticipants %d must exceed numWinners %d: %w", maxParticipants, numWinners, ErrInvalidTerms)
	}
	if isPaidEntry {
		if entryFee == 0 {
			return 0, fmt.Errorf("paid-entry drop needs a non-zero entry fee: %w", ErrInvalidTerms)
		}
		if rewardAmount != entryFee*uint64(maxParticipants) {
			return 0, fmt.Errorf("rewardAmount %d != entryFee %d * maxParticipants %d: %w", rewardAmount, entryFee, maxParticipants, ErrInvalidTerms)
		}
		if suppliedValue != 0 {
			return 0, fmt.Errorf("paid-entry drop takes no host funding, got %d: %w", suppliedValue, ErrFundingMismatch)
		}
	} else {
		if entryFee != 0 {
			return 0, fmt.Errorf("host-funded drop must have a zero entry fee: %w", ErrInvalidTerms)
		}
		if rewardAmount == 0 {
			return 0, fmt.Errorf("host-funded drop needs a non-zero reward: %w", ErrInvalidTerms)
		}
		if suppliedValue != rewardAmount {
			return 0, fmt.Errorf("host funding %d != rewardAmount %d: %w", suppliedValue, rewardAmount, ErrFundingMismatch)
		}
		// The funding deposit is part of creation: no drop may exist
		// under-funded, so a failed transfer aborts the whole call.
		s.addLocked(rewardAmount)
		if err := s.treasury.Transfer(host, s.cfg.EscrowAccount, suppliedValue); err != nil {
			s.subLocked(rewardAmount)
			return 0, fmt.Errorf("host funding deposit: %w", err)
		}
	}

	// Paid-entry pools start empty and grow with each accepted payment;
	// the declared rewardAmount only pins down the terms.
	initialReward := rewardAmount
	if isPaidEntry {
		initialReward = 0
	}

	now := s.clock.Now()
	st := &dropState{
		drop: models.Drop{
			Host:              host,
			IsPaidEntry:       isPaidEntry,
			IsManualSelection: isManualSelection,
			EntryFee:          entryFee,
			RewardAmount:      initialReward,
			MaxParticipants:   maxParticipants,
			NumWinners:        numWinners,
			IsActive:          true,
			CreatedAt:         now,
		},
		members: make(map[string]bool),
	}
	st.events = append(st.events, models.DropEvent{
		Type:   models.EventCreated,
		Detail: fmt.Sprintf("host %s, reward %d, capacity %d, winners %d", host, rewardAmount, maxParticipants, numWinners),
		At:     now,
	})

	s.mu.Lock()
	s.nextID++
	st.drop.ID = s.nextID
	s.drops[st.drop.ID] = st
	s.mu.Unlock()

	logger.Infof("drop %d created by %s (paidEntry=%v manual=%v reward=%d)", st.drop.ID, host, isPaidEntry, isManualSelection, rewardAmount)
	return st.drop.ID, nil
}

// JoinDrop enrolls a participant. For paid-entry drops the entry fee is
// collected into escrow atomically with the join; when the join fills an
// automatic-selection drop, the randomness request goes out as part of
// the same operation.
func (s *DropService) JoinDrop(dropID uint64, participant, name string, suppliedValue uint64) error {
	st, err := s.lookup(dropID)
	if err != nil {
		return err
	}
	if !st.gate.TryLock() {
		return fmt.Errorf("join drop %d: %w", dropID, ErrDropBusy)
	}
	defer st.gate.Unlock()

	d := &st.drop
	switch {
	case !d.IsActive:
		return fmt.Errorf("join drop %d: %w", dropID, ErrDropNotActive)
	case d.IsCompleted:
		return fmt.Errorf("join drop %d: %w", dropID, ErrDropCompleted)
	case st.members[participant]:
		return fmt.Errorf("join drop %d as %s: %w", dropID, participant, ErrAlreadyJoined)
	case d.CurrentParticipants >= d.MaxParticipants:
		return fmt.Errorf("join drop %d: %w", dropID, ErrDropFull)
	case name == "":
		return fmt.Errorf("join drop %d: %w", dropID, ErrInvalidName)
	}
	if d.IsPaidEntry {
		if suppliedValue != d.EntryFee {
			return fmt.Errorf("join drop %d: supplied %d, fee is %d: %w", dropID, suppliedValue, d.EntryFee, ErrIncorrectPayment)
		}
		s.addLocked(suppliedValue)
		if err := s.treasury.Transfer(participant, s.cfg.EscrowAccount, suppliedValue); err != nil {
			s.subLocked(suppliedValue)
			return fmt.Errorf("entry fee deposit: %w", err)
		}
	} else if suppliedValue != 0 {
		return fmt.Errorf("join drop %d: %w", dropID, ErrUnexpectedPayment)
	}

	now := s.clock.Now()
	st.members[participant] = true
	d.Participants = append(d.Participants, models.Participant{Address: participant, Name: name, JoinedAt: now})
	d.CurrentParticipants++
	if d.IsPaidEntry {
		d.RewardAmount += suppliedValue
	}
	st.events = append(st.events, models.DropEvent{
		Type:   models.EventJoined,
		Detail: fmt.Sprintf("%s (%s), %d/%d", participant, name, d.CurrentParticipants, d.MaxParticipants),
		At:     now,
	})
	logger.Infof("drop %d: %s joined (%d/%d)", dropID, participant, d.CurrentParticipants, d.MaxParticipants)

	if !d.IsManualSelection && d.CurrentParticipants == d.MaxParticipants {
		if err := s.requestSelection(st); err != nil {
			// The join and the trigger are one atomic operation: unwind
			// the enrollment and hand the fee back before failing.
			delete(st.members, participant)
			d.Participants = d.Participants[:len(d.Participants)-1]
			d.CurrentParticipants--
			st.events = st.events[:len(st.events)-1]
			if d.IsPaidEntry {
				d.RewardAmount -= suppliedValue
				s.subLocked(suppliedValue)
				if rerr := s.treasury.Transfer(s.cfg.EscrowAccount, participant, suppliedValue); rerr != nil {
					logger.Errorf("drop %d: entry fee refund to %s failed: %v", dropID, participant, rerr)
				}
			}
			return err
		}
	}
	return nil
}

// GetDrop returns a point-in-time snapshot of a drop. Unknown ids report
// ErrNotFound rather than a zero record.
func (s *DropService) GetDrop(dropID uint64) (models.Drop, error) {
	st, err := s.lookup(dropID)
	if err != nil {
		return models.Drop{}, err
	}
	st.gate.Lock()
	defer st.gate.Unlock()
	return snapshot(&st.drop), nil
}

// Participants returns the ordered participant list with display names.
func (s *DropService) Participants(dropID uint64) ([]models.Participant, error) {
	st, err := s.lookup(dropID)
	if err != nil {
		return nil, err
	}
	st.gate.Lock()
	defer st.gate.Unlock()
	out := make([]models.Participant, len(st.drop.Participants))
	copy(out, st.drop.Participants)
	return out, nil
}

// IsParticipant reports whether the address has joined the drop.
func (s *DropService) IsParticipant(dropID uint64, addr string) (bool, error) {
	st, err := s.lookup(dropID)
	if err != nil {
		return false, err
	}
	st.gate.Lock()
	defer st.gate.Unlock()
	return st.members[addr], nil
}

// Requests returns the drop's randomness request history, oldest first.
func (s *DropService) Requests(dropID uint64) ([]models.RandomnessRequest, error) {
	st, err := s.lookup(dropID)
	if err != nil {
		return nil, err
	}
	st.gate.Lock()
	defer st.gate.Unlock()
	out := make([]models.RandomnessRequest, len(st.requests))
	for i, r := range st.requests {
		out[i] = *r
	}
	return out, nil
}

// Events returns the drop's event trail, oldest first.
func (s *DropService) Events(dropID uint64) ([]models.DropEvent, error) {
	st, err := s.lookup(dropID)
	if err != nil {
		return nil, err
	}
	st.gate.Lock()
	defer st.gate.Unlock()
	out := make([]models.DropEvent, len(st.events))
	copy(out, st.events)
	return out, nil
}

func (s *DropService) lookup(dropID uint64) (*dropState, error) {
	s.mu.RLock()
	st := s.drops[dropID]
	s.mu.RUnlock()
	if st == nil {
		return nil, fmt.Errorf("drop %d: %w", dropID, ErrNotFound)
	}
	return st, nil
}

func (s *DropService) addLocked(amount uint64) {
	s.mu.Lock()
	s.locked += amount
	s.mu.Unlock()
}

func (s *DropService) subLocked(amount uint64) {
	s.mu.Lock()
	s.locked -= amount
	s.mu.Unlock()
}

func snapshot(d *models.Drop) models.Drop {
	out := *d
	out.Participants = make([]models.Participant, len(d.Participants))
	copy(out.Participants, d.Participants)
	out.Winners = make([]models.Winner, len(d.Winners))
	copy(out.Winners, d.Winners)
	return out
}
