// Package subgroup models the intra-workgroup synchronization
// primitives the protocol consumes from GPU hardware: a workgroup-wide
// barrier, and the ballot and lane-exchange operations used by the two
// split lanes. On hardware these execute in lock-step within one
// subgroup; here each lane is a goroutine and the primitives are built
// on channels, which keeps the same convergence requirement: every
// participating lane must reach the call before any lane passes it.
package subgroup

import (
	"errors"
	"sync"
)

// ErrCancelled is returned when a lane is released from a primitive by
// cancellation (watchdog or forced termination) instead of by its peers.
var ErrCancelled = errors.New("subgroup: cancelled while converged peers were pending")

// Barrier is a reusable rendezvous for a fixed set of lanes, the
// equivalent of workgroupBarrier(). All lanes must call Await for any
// of them to proceed.
type Barrier struct {
	mu      sync.Mutex
	lanes   int
	arrived int
	release chan struct{}
}

// NewBarrier returns a barrier for the given number of lanes.
func NewBarrier(lanes int) *Barrier {
	return &Barrier{lanes: lanes, release: make(chan struct{})}
}

// Await blocks until every lane has arrived, or until cancel fires.
// The barrier is cyclic: it resets itself for the next phase.
func (b *Barrier) Await(cancel <-chan struct{}) error {
	b.mu.Lock()
	ch := b.release
	b.arrived++
	if b.arrived == b.lanes {
		b.arrived = 0
		b.release = make(chan struct{})
		close(ch)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-cancel:
		return ErrCancelled
	}
}

// Pair is the rendezvous shared by the two split lanes. It provides
// the convergent Ballot and Exchange primitives; both lanes must reach
// each call with no divergent control flow between them.
type Pair struct {
	vals [2]uint32
	gate [2]chan struct{}
}

// NewPair returns the primitives for one split-lane pair.
func NewPair() *Pair {
	return &Pair{gate: [2]chan struct{}{
		make(chan struct{}, 1),
		make(chan struct{}, 1),
	}}
}

// rendezvous is a two-party barrier: each lane deposits a token on its
// own gate and collects the sibling's.
func (p *Pair) rendezvous(lane int, cancel <-chan struct{}) error {
	select {
	case p.gate[lane] <- struct{}{}:
	case <-cancel:
		return ErrCancelled
	}
	select {
	case <-p.gate[lane^1]:
		return nil
	case <-cancel:
		return ErrCancelled
	}
}

// Ballot returns a bitmask of which of the two lanes satisfied pred,
// bit i for lane i. Both lanes observe the same mask.
func (p *Pair) Ballot(lane int, pred bool, cancel <-chan struct{}) (uint32, error) {
	var v uint32
	if pred {
		v = 1
	}
	p.vals[lane] = v
	if err := p.rendezvous(lane, cancel); err != nil {
		return 0, err
	}
	mask := p.vals[0] | p.vals[1]<<1
	// Hold the slots stable until both lanes have read them.
	if err := p.rendezvous(lane, cancel); err != nil {
		return 0, err
	}
	return mask, nil
}

// Exchange swaps a 32-bit value with the sibling lane and returns the
// sibling's value, the subgroupShuffle of the protocol's join step.
func (p *Pair) Exchange(lane int, value uint32, cancel <-chan struct{}) (uint32, error) {
	p.vals[lane] = value
	if err := p.rendezvous(lane, cancel); err != nil {
		return 0, err
	}
	out := p.vals[lane^1]
	if err := p.rendezvous(lane, cancel); err != nil {
		return 0, err
	}
	return out, nil
}
