package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/abx/internal/retailer"
	"github.com/desertthunder/abx/internal/shared"
)

// Rendezvous hands a single answer from an asynchronous producer to a waiting sign-in flow.
//
// At most one challenge is outstanding. The slot is cleared when an answer is delivered, when the waiting
// context is cancelled, or when the wait times out.
type Rendezvous struct {
	mu      sync.Mutex
	pending *retailer.Challenge
	answers chan string
}

// NewRendezvous creates an empty [Rendezvous].
func NewRendezvous() *Rendezvous {
	return &Rendezvous{}
}

// Await publishes c, calls announce, and blocks until an answer arrives.
//
// A timeout of zero waits until ctx is done. Fails with [shared.ErrChallengePending] when another challenge is
// already outstanding and with [shared.ErrTimeout] when the wait expires.
func (r *Rendezvous) Await(ctx context.Context, c retailer.Challenge, announce func(retailer.Challenge) error, timeout time.Duration) (string, error) {
	answers, err := r.open(c)
	if err != nil {
		return "", err
	}
	defer r.clear(answers)

	// The slot is open before announcing so an immediate answer is not lost.
	if announce != nil {
		if err := announce(c); err != nil {
			return "", err
		}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case answer := <-answers:
		return answer, nil
	case <-expired:
		return "", fmt.Errorf("%w: no answer to %s challenge after %s", shared.ErrTimeout, c.Kind, timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver passes answer to the outstanding challenge and reports whether one was waiting.
func (r *Rendezvous) Deliver(answer string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		return false
	}

	// Buffered with room for exactly one answer per challenge.
	r.answers <- answer
	r.pending = nil
	r.answers = nil
	return true
}

// Pending returns the outstanding challenge, if any.
func (r *Rendezvous) Pending() (retailer.Challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		return retailer.Challenge{}, false
	}
	return *r.pending, true
}

func (r *Rendezvous) open(c retailer.Challenge) (chan string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrChallengePending, r.pending.Kind)
	}

	r.pending = &c
	r.answers = make(chan string, 1)
	return r.answers, nil
}

// clear empties the slot if it still belongs to answers.
func (r *Rendezvous) clear(answers chan string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.answers == answers {
		r.pending = nil
		r.answers = nil
	}
}
