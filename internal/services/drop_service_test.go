package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"drops/internal/models"
	"drops/internal/vault"
)

// scriptedOracle hands out deterministic request identifiers and records
// every request so tests can drive fulfillment by hand.
type scriptedOracle struct {
	requests []int
	nextID   int
	fail     bool
}

func (o *scriptedOracle) RequestRandomness(numWords int) (string, error) {
	if o.fail {
		return "", errors.New("oracle unavailable")
	}
	o.requests = append(o.requests, numWords)
	o.nextID++
	return fmt.Sprintf("req-%d", o.nextID), nil
}

func (o *scriptedOracle) lastRequestID() string {
	return fmt.Sprintf("req-%d", o.nextID)
}

func newTestService(t *testing.T, mode models.PayoutMode) (*DropService, *vault.Vault, *scriptedOracle, *clockwork.FakeClock) {
	t.Helper()
	v := vault.New()
	orc := &scriptedOracle{}
	clock := clockwork.NewFakeClock()
	svc := NewDropService(v, orc, clock, Config{
		EscrowAccount:  "escrow",
		FeeReceiver:    "platform",
		AdminAddress:   "admin",
		PlatformFeeBps: 250,
		PayoutMode:     mode,
	})
	return svc, v, orc, clock
}

func TestCreateDrop_Validation(t *testing.T) {
	svc, v, _, _ := newTestService(t, models.PayoutTiered)
	v.Credit("host", 10_000)

	cases := []struct {
		name          string
		entryFee      uint64
		reward        uint64
		maxP, winners int
		paid, manual  bool
		supplied      uint64
		want          error
	}{
		{"zero winners", 100, 400, 4, 0, true, false, 0, ErrInvalidTerms},
		{"too many winners", 100, 500, 5, 4, true, false, 0, ErrInvalidTerms},
		{"capacity not above winners", 100, 200, 2, 2, true, false, 0, ErrInvalidTerms},
		{"paid with zero fee", 0, 400, 4, 1, true, false, 0, ErrInvalidTerms},
		{"paid reward mismatch", 100, 500, 4, 1, true, false, 0, ErrInvalidTerms},
		{"paid with host funding", 100, 400, 4, 1, true, false, 400, ErrFundingMismatch},
		{"host funded with entry fee", 5, 400, 4, 1, false, false, 400, ErrInvalidTerms},
		{"host funded zero reward", 0, 0, 4, 1, false, false, 0, ErrInvalidTerms},
		{"host funding mismatch", 0, 400, 4, 1, false, false, 300, ErrFundingMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateDrop("host", tc.entryFee, tc.reward, tc.maxP, tc.winners, tc.paid, tc.manual, tc.supplied)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	t.Run("rejects entryFee=100 maxParticipants=4 with any reward other than 400", func(t *testing.T) {
		for _, reward := range []uint64{0, 100, 399, 401, 4000} {
			if _, err := svc.CreateDrop("host", 100, reward, 4, 1, true, false, 0); !errors.Is(err, ErrInvalidTerms) {
				t.Errorf("reward %d: expected ErrInvalidTerms, got %v", reward, err)
			}
		}
		if _, err := svc.CreateDrop("host", 100, 400, 4, 1, true, false, 0); err != nil {
			t.Errorf("reward 400: expected success, got %v", err)
		}
	})
}

func TestCreateDrop_HostFunding(t *testing.T) {
	svc, v, _, _ := newTestService(t, models.PayoutTiered)
	v.Credit("host", 1000)

	id, err := svc.CreateDrop("host", 0, 1000, 4, 1, false, true, 1000)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if id != 1 {
		t.Errorf("expected first drop id 1, got %d", id)
	}
	if got := v.Balance("escrow"); got != 1000 {
		t.Errorf("expected escrow to hold 1000, got %d", got)
	}
	if got := v.Balance("host"); got != 0 {
		t.Errorf("expected host balance 0, got %d", got)
	}

	t.Run("under-funded host cannot create", func(t *testing.T) {
		_, err := svc.CreateDrop("host", 0, 500, 4, 1, false, true, 500)
		if !errors.Is(err, vault.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
		if got := svc.LockedValue(); got != 1000 {
			t.Errorf("failed creation must not change locked value: got %d", got)
		}
	})

	t.Run("ids are sequential", func(t *testing.T) {
		v.Credit("host", 500)
		id2, err := svc.CreateDrop("host", 0, 500, 4, 1, false, true, 500)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if id2 != 2 {
			t.Errorf("expected drop id 2, got %d", id2)
		}
	})
}

func TestGetDrop_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t, models.PayoutTiered)
	if _, err := svc.GetDrop(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJoinDrop_PaidEntry(t *testing.T) {
	svc, v, orc, _ := newTestService(t, models.PayoutTiered)
	for _, p := range []string{"p1", "p2", "p3", "p4", "p5"} {
		v.Credit(p, 100)
	}
	id, err := svc.CreateDrop("host", 100, 400, 4, 1, true, false, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("wrong payment", func(t *testing.T) {
		if err := svc.JoinDrop(id, "p1", "Alice", 50); !errors.Is(err, ErrIncorrectPayment) {
			t.Fatalf("expected ErrIncorrectPayment, got %v", err)
		}
	})
	t.Run("empty name", func(t *testing.T) {
		if err := svc.JoinDrop(id, "p1", "", 100); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName, got %v", err)
		}
	})
	t.Run("join accrues the pool", func(t *testing.T) {
		if err := svc.JoinDrop(id, "p1", "Alice", 100); err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := svc.JoinDrop(id, "p2", "Bob", 100); err != nil {
			t.Fatalf("join: %v", err)
		}
		d, _ := svc.GetDrop(id)
		if d.RewardAmount != 200 {
			t.Errorf("expected pool 200 after two joins, got %d", d.RewardAmount)
		}
		if d.CurrentParticipants != 2 {
			t.Errorf("expected 2 participants, got %d", d.CurrentParticipants)
		}
		if got := v.Balance("escrow"); got != 200 {
			t.Errorf("expected escrow 200, got %d", got)
		}
	})
	t.Run("double join rejected", func(t *testing.T) {
		if err := svc.JoinDrop(id, "p1", "Alice again", 100); !errors.Is(err, ErrAlreadyJoined) {
			t.Fatalf("expected ErrAlreadyJoined, got %v", err)
		}
	})
	t.Run("capacity join triggers selection in the same call", func(t *testing.T) {
		if err := svc.JoinDrop(id, "p3", "Cara", 100); err != nil {
			t.Fatalf("join: %v", err)
		}
		if len(orc.requests) != 0 {
			t.Fatalf("no request expected before capacity, got %d", len(orc.requests))
		}
		if err := svc.JoinDrop(id, "p4", "Dan", 100); err != nil {
			t.Fatalf("capacity join: %v", err)
		}
		if len(orc.requests) != 1 || orc.requests[0] != 1 {
			t.Fatalf("expected one request for 1 word, got %v", orc.requests)
		}
		d, _ := svc.GetDrop(id)
		if d.IsActive {
			t.Error("drop must close the moment capacity is reached")
		}
		if d.RewardAmount != 400 {
			t.Errorf("pool at selection must equal entryFee*participants, got %d", d.RewardAmount)
		}
		reqs, _ := svc.Requests(id)
		if len(reqs) != 1 || reqs[0].Fulfilled {
			t.Fatalf("expected one unfulfilled request, got %+v", reqs)
		}
	})
	t.Run("join after close rejected", func(t *testing.T) {
		if err := svc.JoinDrop(id, "p5", "Eve", 100); !errors.Is(err, ErrDropNotActive) {
			t.Fatalf("expected ErrDropNotActive, got %v", err)
		}
	})
	t.Run("participant order matches join order", func(t *testing.T) {
		ps, err := svc.Participants(id)
		if err != nil {
			t.Fatalf("participants: %v", err)
		}
		want := []string{"p1", "p2", "p3", "p4"}
		if len(ps) != len(want) {
			t.Fatalf("expected %d participants, got %d", len(want), len(ps))
		}
		for i, addr := range want {
			if ps[i].Address != addr {
				t.Errorf("slot %d: expected %s, got %s", i, addr, ps[i].Address)
			}
		}
	})
	t.Run("membership check", func(t *testing.T) {
		if ok, _ := svc.IsParticipant(id, "p2"); !ok {
			t.Error("p2 should be a member")
		}
		if ok, _ := svc.IsParticipant(id, "p5"); ok {
			t.Error("p5 should not be a member")
		}
	})
}

func TestJoinDrop_HostFunded(t *testing.T) {
	svc, v, _, _ := newTestService(t, models.PayoutTiered)
	v.Credit("host", 1000)
	id, err := svc.CreateDrop("host", 0, 1000, 4, 2, false, true, 1000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.JoinDrop(id, "p1", "Alice", 10); !errors.Is(err, ErrUnexpectedPayment) {
		t.Fatalf("expected ErrUnexpectedPayment, got %v", err)
	}
	if err := svc.JoinDrop(id, "p1", "Alice", 0); err != nil {
		t.Fatalf("join: %v", err)
	}
	d, _ := svc.GetDrop(id)
	if d.RewardAmount != 1000 {
		t.Errorf("host-funded pool must not change on join, got %d", d.RewardAmount)
	}
}

func TestJoinDrop_InsufficientFunds(t *testing.T) {
	svc, v, _, _ := newTestService(t, models.PayoutTiered)
	v.Credit("p1", 10)
	id, _ := svc.CreateDrop("host", 100, 400, 4, 1, true, false, 0)

	if err := svc.JoinDrop(id, "p1", "Alice", 100); !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	d, _ := svc.GetDrop(id)
	if d.CurrentParticipants != 0 || d.RewardAmount != 0 {
		t.Errorf("failed deposit must not mutate the drop: %+v", d)
	}
	if got := svc.LockedValue(); got != 0 {
		t.Errorf("failed deposit must not change locked value: got %d", got)
	}
}

func TestJoinDrop_OracleFailureUnwindsJoin(t *testing.T) {
	svc, v, orc, _ := newTestService(t, models.PayoutTiered)
	for _, p := range []string{"p1", "p2"} {
		v.Credit(p, 100)
	}
	id, _ := svc.CreateDrop("host", 100, 200, 2, 1, true, false, 0)
	if err := svc.JoinDrop(id, "p1", "Alice", 100); err != nil {
		t.Fatalf("join: %v", err)
	}

	orc.fail = true
	if err := svc.JoinDrop(id, "p2", "Bob", 100); err == nil {
		t.Fatal("expected the capacity join to fail when the oracle is down")
	}
	d, _ := svc.GetDrop(id)
	if d.CurrentParticipants != 1 || !d.IsActive || d.RewardAmount != 100 {
		t.Errorf("failed trigger must unwind the join: %+v", d)
	}
	if got := v.Balance("p2"); got != 100 {
		t.Errorf("entry fee must be refunded, p2 balance %d", got)
	}

	orc.fail = false
	if err := svc.JoinDrop(id, "p2", "Bob", 100); err != nil {
		t.Fatalf("retry join: %v", err)
	}
}

func TestTriggerSelection_Manual(t *testing.T) {
	svc, v, orc, _ := newTestService(t, models.PayoutTiered)
	for _, p := range []string{"p1", "p2", "p3"} {
		v.Credit(p, 100)
	}
	id, err := svc.CreateDrop("host", 100, 400, 4, 2, true, true, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("host only", func(t *testing.T) {
		if err := svc.TriggerSelection(id, "p1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
	t.Run("below winner threshold", func(t *testing.T) {
		if err := svc.JoinDrop(id, "p1", "Alice", 100); err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := svc.TriggerSelection(id, "host"); !errors.Is(err, ErrNotEnoughJoined) {
			t.Fatalf("expected ErrNotEnoughJoined, got %v", err)
		}
	})
	t.Run("at winner threshold", func(t *testing.T) {
		if err := svc.JoinDrop(id, "p2", "Bob", 100); err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := svc.TriggerSelection(id, "host"); err != nil {
			t.Fatalf("trigger: %v", err)
		}
		if len(orc.requests) != 1 || orc.requests[0] != 2 {
			t.Fatalf("expected one request for 2 words, got %v", orc.requests)
		}
	})
	t.Run("second trigger rejected", func(t *testing.T) {
		if err := svc.TriggerSelection(id, "host"); !errors.Is(err, ErrDropNotActive) {
			t.Fatalf("expected ErrDropNotActive, got %v", err)
		}
	})
	t.Run("automatic drops refuse manual trigger", func(t *testing.T) {
		autoID, _ := svc.CreateDrop("host", 100, 400, 4, 1, true, false, 0)
		if err := svc.TriggerSelection(autoID, "host"); !errors.Is(err, ErrNotManualSelection) {
			t.Fatalf("expected ErrNotManualSelection, got %v", err)
		}
	})
}

func TestCancelDrop_PaidEntry(t *testing.T) {
	svc, v, _, _ := newTestService(t, models.PayoutTiered)
	for _, p := range []string{"p1", "p2", "p3"} {
		v.Credit(p, 10)
	}
	id, err := svc.CreateDrop("host", 10, 40, 4, 1, true, true, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, p := range []string{"p1", "p2", "p3"} {
		if err := svc.JoinDrop(id, p, fmt.Sprintf("name%d", i), 10); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}

	if err := svc.CancelDrop(id, "stranger"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.CancelDrop(id, "host"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, p := range []string{"p1", "p2", "p3"} {
		if got := v.Balance(p); got != 10 {
			t.Errorf("%s: expected full refund of 10, got %d", p, got)
		}
	}
	if got := v.Balance("escrow"); got != 0 {
		t.Errorf("escrow should be empty after refunds, got %d", got)
	}
	d, _ := svc.GetDrop(id)
	if d.IsActive || !d.IsCompleted {
		t.Errorf("expected isActive=false isCompleted=true, got %+v", d)
	}
	if err := svc.CancelDrop(id, "host"); !errors.Is(err, ErrDropNotActive) {
		t.Fatalf("second cancellation must fail, got %v", err)
	}
}

func TestCancelDrop_HostFunded(t *testing.T) {
	svc, v, _, _ := newTestService(t, models.PayoutTiered)
	v.Credit("host", 1000)
	id, _ := svc.CreateDrop("host", 0, 1000, 4, 1, false, true, 1000)
	if err := svc.JoinDrop(id, "p1", "Alice", 0); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Admin may cancel on the host's behalf; the pool goes back to the host.
	if err := svc.CancelDrop(id, "admin"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := v.Balance("host"); got != 1000 {
		t.Errorf("expected pool returned to host, got %d", got)
	}
	if got := svc.LockedValue(); got != 0 {
		t.Errorf("expected no locked value after cancel, got %d", got)
	}
}

func TestStrandedDrops(t *testing.T) {
	svc, v, orc, clock := newTestService(t, models.PayoutTiered)
	for _, p := range []string{"p1", "p2"} {
		v.Credit(p, 100)
	}
	id, _ := svc.CreateDrop("host", 100, 200, 2, 1, true, false, 0)
	if err := svc.JoinDrop(id, "p1", "Alice", 100); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.JoinDrop(id, "p2", "Bob", 100); err != nil {
		t.Fatalf("join: %v", err)
	}

	if ids := svc.StrandedDrops(time.Hour); len(ids) != 0 {
		t.Fatalf("fresh request is not stranded, got %v", ids)
	}
	clock.Advance(2 * time.Hour)
	if ids := svc.StrandedDrops(time.Hour); len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected drop %d stranded, got %v", id, ids)
	}

	if err := svc.OnRandomnessFulfilled(orc.lastRequestID(), []uint64{3}); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if ids := svc.StrandedDrops(time.Hour); len(ids) != 0 {
		t.Fatalf("settled drop is not stranded, got %v", ids)
	}
}
