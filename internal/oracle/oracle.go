package oracle

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrNoFulfiller means RequestRandomness was called before SetFulfiller.
var ErrNoFulfiller = errors.New("oracle has no fulfillment callback wired")

// FulfillFunc is the engine's callback for delivering random words.
type FulfillFunc func(requestID string, randomWords []uint64) error

// SimOracle stands in for an external verifiable-randomness provider.
// It accepts requests synchronously, returning an opaque request
// identifier, and delivers the random words on a separate goroutine
// after a configurable delay. Delivery order between requests is not
// guaranteed, matching the real provider's contract.
type SimOracle struct {
	clock clockwork.Clock
	delay time.Duration

	mu      sync.Mutex
	rng     *rand.Rand
	fulfill FulfillFunc
}

// New creates a SimOracle that delivers fulfillments after delay.
func New(clock clockwork.Clock, delay time.Duration) *SimOracle {
	return &SimOracle{
		clock: clock,
		delay: delay,
		rng:   rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// SetFulfiller wires the engine callback. The oracle and the engine
// reference each other, so the callback is attached after construction.
func (o *SimOracle) SetFulfiller(f FulfillFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fulfill = f
}

// RequestRandomness accepts a request for numWords random values and
// returns the opaque identifier the fulfillment will carry.
func (o *SimOracle) RequestRandomness(numWords int) (string, error) {
	o.mu.Lock()
	fulfill := o.fulfill
	words := make([]uint64, numWords)
	for i := range words {
		words[i] = o.rng.Uint64()
	}
	o.mu.Unlock()

	if fulfill == nil {
		return "", ErrNoFulfiller
	}

	requestID := uuid.NewString()
	go func() {
		o.clock.Sleep(o.delay)
		if err := fulfill(requestID, words); err != nil {
			logger.Errorf("oracle: fulfillment of request %s rejected: %v", requestID, err)
		}
	}()
	return requestID, nil
}
