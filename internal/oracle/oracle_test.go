package oracle

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type delivery struct {
	requestID string
	words     []uint64
}

func TestRequestRandomness(t *testing.T) {
	clock := clockwork.NewFakeClock()
	orc := New(clock, 5*time.Second)

	got := make(chan delivery, 1)
	orc.SetFulfiller(func(requestID string, words []uint64) error {
		got <- delivery{requestID: requestID, words: words}
		return nil
	})

	requestID, err := orc.RequestRandomness(3)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := uuid.Parse(requestID); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", requestID, err)
	}

	select {
	case <-got:
		t.Fatal("fulfillment must not arrive before the delay elapses")
	default:
	}

	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)

	select {
	case d := <-got:
		if d.requestID != requestID {
			t.Errorf("fulfillment carries id %q, requested %q", d.requestID, requestID)
		}
		if len(d.words) != 3 {
			t.Errorf("expected 3 random words, got %d", len(d.words))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fulfillment never arrived")
	}
}

func TestRequestRandomness_UniqueIDs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	orc := New(clock, time.Minute)
	orc.SetFulfiller(func(string, []uint64) error { return nil })

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := orc.RequestRandomness(1)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("request id %q repeated", id)
		}
		seen[id] = true
	}
}

func TestRequestRandomness_NoFulfiller(t *testing.T) {
	orc := New(clockwork.NewFakeClock(), time.Second)
	if _, err := orc.RequestRandomness(1); !errors.Is(err, ErrNoFulfiller) {
		t.Fatalf("expected ErrNoFulfiller, got %v", err)
	}
}
