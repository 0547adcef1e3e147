package sim

import (
	"runtime"
	"sync/atomic"

	"github.com/lookback-dev/lookback/internal/scan"
	"github.com/lookback-dev/lookback/internal/slot"
)

const bothLanes = 0b11

// kernel is one lane's execution of the stress dispatch: claim a
// partition, run the lookback protocol on the two split lanes, retire
// through the workgroup barrier.
func (d *Device) kernel(a *arena, g *workgroup, lane int, cancel <-chan struct{}) {
	// Partition index allocation: lane 0 bumps the global counter, the
	// barrier orders the broadcast read after the write.
	if lane == 0 {
		g.broadcast = atomic.AddUint32(&a.bump[0], 1) - 1
	}
	if g.barrier.Await(cancel) != nil {
		return
	}
	p := g.broadcast
	if lane == 0 {
		atomic.AddUint32(&a.claims[p], 1)
	}

	// Hardware-assumption check: both split lanes must be co-resident.
	// Fatal for this invocation, recorded by the first lane only.
	if d.width < scan.SplitLanes {
		if lane == 0 {
			d.report(a, p, 0, scan.ErrWidth, uint32(d.width))
		}
		g.barrier.Await(cancel)
		return
	}

	if lane < scan.SplitLanes {
		d.lookback(a, g, p, lane, cancel)
	}

	// Retire barrier: drain the workgroup before any lane exits.
	g.barrier.Await(cancel)
}

// lookback runs the split-lane protocol for partition p.
func (d *Device) lookback(a *arena, g *workgroup, p uint32, lane int, cancel <-chan struct{}) {
	local := scan.LocalPartial

	// Partition 0 has no predecessors: publish Inclusive directly.
	if p == 0 {
		atomic.StoreUint32(&a.table[2*p+uint32(lane)], slot.Pack(local, lane, slot.Inclusive))
		return
	}

	// Publish own partial as Ready.
	atomic.StoreUint32(&a.table[2*p+uint32(lane)], slot.Pack(local, lane, slot.Ready))

	if d.stall == int64(p) {
		// Injected fault: this partition never runs its lookback.
		<-cancel
		return
	}

	lookbackID := p - 1
	var accumulated uint32

	for {
		word := atomic.LoadUint32(&a.table[2*lookbackID+uint32(lane)])
		d.checkMessage(a, p, lane, lookbackID, word)

		// Both lanes must see the predecessor published before either
		// half can be consumed.
		mask, err := g.pair.Ballot(lane, slot.StatusOf(word) != slot.NotReady, cancel)
		if err != nil {
			return
		}
		if mask != bothLanes {
			runtime.Gosched()
			continue
		}

		incMask, err := g.pair.Ballot(lane, slot.StatusOf(word) == slot.Inclusive, cancel)
		if err != nil {
			return
		}

		if incMask == 0 {
			// Both exactly Ready: fold in the predecessor's partial
			// and keep walking back.
			full, err := d.join(g, lane, slot.Chunk(word), cancel)
			if err != nil {
				return
			}
			accumulated += full
			if accumulated != (p-lookbackID)*local {
				d.report(a, p, lane, scan.ErrShuffle, accumulated)
			}
			lookbackID--
			continue
		}

		// At least one lane saw Inclusive. The two halves of the pair
		// may land at slightly different real times; wait until both
		// lanes confirm before consuming the value.
		for incMask != bothLanes {
			select {
			case <-cancel:
				return
			default:
			}
			runtime.Gosched()
			word = atomic.LoadUint32(&a.table[2*lookbackID+uint32(lane)])
			incMask, err = g.pair.Ballot(lane, slot.StatusOf(word) == slot.Inclusive, cancel)
			if err != nil {
				return
			}
		}
		d.checkMessage(a, p, lane, lookbackID, word)

		// The predecessor's value is its total inclusive sum: fold it
		// in, add our own contribution, publish Inclusive, done.
		full, err := d.join(g, lane, slot.Chunk(word), cancel)
		if err != nil {
			return
		}
		accumulated += full
		if accumulated != p*local {
			d.report(a, p, lane, scan.ErrShuffle, accumulated)
		}
		inclusive := accumulated + local
		atomic.StoreUint32(&a.table[2*p+uint32(lane)], slot.Pack(inclusive, lane, slot.Inclusive))
		return
	}
}

// join reconstructs a full 32-bit value from this lane's chunk and the
// sibling's, via the lane exchange. Both lanes compute the same result.
func (d *Device) join(g *workgroup, lane int, chunk uint32, cancel <-chan struct{}) (uint32, error) {
	peer, err := g.pair.Exchange(lane, chunk, cancel)
	if err != nil {
		return 0, err
	}
	return slot.Place(chunk, lane) | slot.Place(peer, lane^1), nil
}

// checkMessage validates a loaded table word against the only three
// patterns a conforming predecessor can have published: the NotReady
// zero word, this lane's chunk of the local partial tagged Ready, or
// this lane's chunk of the predecessor's inclusive sum tagged
// Inclusive.
func (d *Device) checkMessage(a *arena, p uint32, lane int, lookbackID, word uint32) {
	switch {
	case word == uint32(slot.NotReady):
		return
	case word == slot.Pack(scan.LocalPartial, lane, slot.Ready):
		return
	case word == slot.Pack((lookbackID+1)*scan.LocalPartial, lane, slot.Inclusive):
		return
	}
	d.report(a, p, lane, scan.ErrMessage, word)
}

// report writes a diagnostics entry for (partition, lane). Later
// violations overwrite earlier ones; one real fault corrupts
// everything downstream anyway, so only the kinds matter.
func (d *Device) report(a *arena, p uint32, lane int, kind, value uint32) {
	base := (p*scan.SplitLanes + uint32(lane)) * 2
	atomic.StoreUint32(&a.diag[base], kind)
	atomic.StoreUint32(&a.diag[base+1], value)
}
