package subgroup

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrierReleasesAllLanes(t *testing.T) {
	const lanes = 8
	b := NewBarrier(lanes)

	var passed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < lanes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, b.Await(nil))
			passed.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(lanes), passed.Load())
}

func TestBarrierIsCyclic(t *testing.T) {
	const lanes = 4
	const phases = 10
	b := NewBarrier(lanes)

	// Each lane counts phases; the barrier must not let any lane run a
	// phase ahead of the slowest.
	var maxSkew atomic.Int32
	var phase [lanes]atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < lanes; i++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			for p := 0; p < phases; p++ {
				phase[lane].Store(int32(p))
				require.NoError(t, b.Await(nil))
				for j := 0; j < lanes; j++ {
					if d := int32(p) - phase[j].Load(); d > maxSkew.Load() {
						maxSkew.Store(d)
					}
				}
				require.NoError(t, b.Await(nil))
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSkew.Load(), int32(0), "a lane passed the barrier ahead of a peer")
}

func TestBarrierCancellation(t *testing.T) {
	b := NewBarrier(2)
	cancel := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- b.Await(cancel)
	}()

	// The second lane never arrives.
	close(cancel)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("Await did not unblock on cancellation")
	}
}

func TestPairBallot(t *testing.T) {
	tests := []struct {
		name  string
		preds [2]bool
		want  uint32
	}{
		{"neither", [2]bool{false, false}, 0b00},
		{"lane0", [2]bool{true, false}, 0b01},
		{"lane1", [2]bool{false, true}, 0b10},
		{"both", [2]bool{true, true}, 0b11},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPair()
			var got [2]uint32
			var wg sync.WaitGroup
			for lane := 0; lane < 2; lane++ {
				wg.Add(1)
				go func(lane int) {
					defer wg.Done()
					mask, err := p.Ballot(lane, tc.preds[lane], nil)
					require.NoError(t, err)
					got[lane] = mask
				}(lane)
			}
			wg.Wait()

			assert.Equal(t, tc.want, got[0])
			assert.Equal(t, tc.want, got[1], "lanes must observe the same mask")
		})
	}
}

func TestPairExchange(t *testing.T) {
	p := NewPair()
	var got [2]uint32
	var wg sync.WaitGroup
	for lane := 0; lane < 2; lane++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			out, err := p.Exchange(lane, uint32(0x1000+lane), nil)
			require.NoError(t, err)
			got[lane] = out
		}(lane)
	}
	wg.Wait()

	assert.Equal(t, uint32(0x1001), got[0])
	assert.Equal(t, uint32(0x1000), got[1])
}

func TestPairRepeatedRounds(t *testing.T) {
	// Ballot and Exchange interleaved over many rounds must stay in
	// lock-step, mirroring the lookback loop's usage pattern.
	const rounds = 1000
	p := NewPair()

	var wg sync.WaitGroup
	for lane := 0; lane < 2; lane++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				mask, err := p.Ballot(lane, r%2 == 0, nil)
				require.NoError(t, err)
				if r%2 == 0 {
					require.Equal(t, uint32(0b11), mask, "round %d", r)
				} else {
					require.Equal(t, uint32(0b00), mask, "round %d", r)
				}

				out, err := p.Exchange(lane, uint32(r*2+lane), nil)
				require.NoError(t, err)
				require.Equal(t, uint32(r*2+(lane^1)), out, "round %d", r)
			}
		}(lane)
	}
	wg.Wait()
}

func TestPairCancellation(t *testing.T) {
	p := NewPair()
	cancel := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Ballot(0, true, cancel)
		done <- err
	}()

	close(cancel)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("Ballot did not unblock on cancellation")
	}
}
