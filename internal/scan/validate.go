package scan

import (
	"fmt"
	"strings"

	"github.com/lookback-dev/lookback/internal/slot"
)

// SlotState classifies one partition's final slot.
type SlotState int

const (
	// SlotOK: Inclusive with the closed-form value.
	SlotOK SlotState = iota
	// SlotStalled: published Ready but never reached Inclusive; the
	// group started and then lost forward progress.
	SlotStalled
	// SlotNeverStarted: still NotReady; the partition's group never
	// executed ("silent non-start"). Whether the scheduler never
	// dispatched it or a forced termination wiped it is not
	// determinable from the readback, so no cause is attributed.
	SlotNeverStarted
	// SlotTorn: the two words carry different status tags. Both words
	// of a transition are written together, so this is a protocol
	// violation, not a transient.
	SlotTorn
	// SlotBadValue: Inclusive, but not the closed-form value.
	SlotBadValue
)

func (s SlotState) String() string {
	switch s {
	case SlotOK:
		return "ok"
	case SlotStalled:
		return "stalled"
	case SlotNeverStarted:
		return "never-started"
	case SlotTorn:
		return "torn-pair"
	case SlotBadValue:
		return "bad-value"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// SlotReport describes one non-conforming partition slot.
type SlotReport struct {
	Partition uint32
	State     SlotState
	Status    slot.Status
	Value     uint32
	Words     [2]uint32
}

func (r SlotReport) String() string {
	return fmt.Sprintf("partition %d: %s (status %s, value %d, words %#08x %#08x)",
		r.Partition, r.State, r.Status, r.Value, r.Words[0], r.Words[1])
}

// Violation is one decoded diagnostics entry.
type Violation struct {
	Partition uint32
	Lane      uint32
	Kind      uint32
	Value     uint32
}

// String renders the violation with the expected-pattern detail for
// its kind.
func (v Violation) String() string {
	switch v.Kind {
	case ErrMessage:
		readyWord := slot.Pack(LocalPartial, int(v.Lane), slot.Ready)
		return fmt.Sprintf(
			"message-passing violation at partition %d, lane %d: got %#08x; "+
				"valid patterns: %#08x (NotReady), %#08x (Ready: chunk %#04x of local partial), "+
				"(chunk & %#04x) | %#08x (Inclusive: chunk of a predecessor's inclusive sum)",
			v.Partition, v.Lane, v.Value,
			uint32(slot.NotReady), readyWord, slot.Chunk(readyWord),
			uint32(slot.ValueMask), uint32(slot.Inclusive))
	case ErrShuffle:
		return fmt.Sprintf(
			"shuffle/reconvergence violation at partition %d, lane %d: accumulated %#08x; "+
				"expected (partition - lookbackID) * %d for the step it was taken at",
			v.Partition, v.Lane, v.Value, LocalPartial)
	case ErrWidth:
		return fmt.Sprintf(
			"configuration violation at partition %d, lane %d: subgroup width %d cannot host %d split lanes",
			v.Partition, v.Lane, v.Value, SplitLanes)
	default:
		return fmt.Sprintf("unknown violation kind %d at partition %d, lane %d: got %#08x",
			v.Kind, v.Partition, v.Lane, v.Value)
	}
}

// Report is the validation outcome of one run.
type Report struct {
	Status     RunStatus
	Partitions uint32
	// Failures lists every non-conforming slot, in partition order.
	Failures []SlotReport
	// Violations lists every non-zero diagnostics entry.
	Violations []Violation
	// DuplicateClaims counts partition indices claimed more than once,
	// when the substrate recorded claims. An unclaimed index shows up
	// as a never-started slot, not an allocator defect.
	DuplicateClaims int
}

// Passed reports whether the run conformed: every slot at its
// closed-form Inclusive value, diagnostics all-zero, allocator clean.
func (r *Report) Passed() bool {
	return r.Status == RunSuccess && len(r.Failures) == 0 &&
		len(r.Violations) == 0 && r.DuplicateClaims == 0
}

// LivenessFailure reports whether the run's only defects are loss of
// forward progress: a watchdog timeout, or stalled / never-started
// partitions with no protocol violation recorded. Liveness failures
// are reported separately from logic defects.
func (r *Report) LivenessFailure() bool {
	if r.Passed() || len(r.Violations) > 0 || r.DuplicateClaims > 0 {
		return false
	}
	for _, f := range r.Failures {
		if f.State != SlotStalled && f.State != SlotNeverStarted {
			return false
		}
	}
	return true
}

// Summary renders a one-line outcome.
func (r *Report) Summary() string {
	if r.Passed() {
		return "pass"
	}
	parts := []string{fmt.Sprintf("status=%s", r.Status)}
	if n := len(r.Violations); n > 0 {
		parts = append(parts, fmt.Sprintf("violations=%d", n))
	}
	if n := len(r.Failures); n > 0 {
		parts = append(parts, fmt.Sprintf("bad_slots=%d", n))
	}
	if r.DuplicateClaims > 0 {
		parts = append(parts, fmt.Sprintf("duplicate_claims=%d", r.DuplicateClaims))
	}
	if r.LivenessFailure() {
		parts = append(parts, "class=liveness")
	}
	return "fail " + strings.Join(parts, " ")
}

// Validate checks one run's readback against the protocol's testable
// properties and classifies every defect.
func Validate(res *RunResult, params Params) *Report {
	report := &Report{Status: res.Status, Partitions: params.Partitions}

	for p := uint32(0); p < params.Partitions; p++ {
		w0 := res.Table[2*p]
		w1 := res.Table[2*p+1]
		value := slot.Join(w0, w1)

		status, ok := slot.PairStatus(w0, w1)
		state := SlotOK
		switch {
		case !ok:
			state = SlotTorn
		case status == slot.NotReady:
			state = SlotNeverStarted
		case status == slot.Ready:
			state = SlotStalled
		case value != ExpectedInclusive(p):
			state = SlotBadValue
		}
		if state != SlotOK {
			report.Failures = append(report.Failures, SlotReport{
				Partition: p,
				State:     state,
				Status:    status,
				Value:     value,
				Words:     [2]uint32{w0, w1},
			})
		}

		for lane := uint32(0); lane < SplitLanes; lane++ {
			base := (p*SplitLanes + lane) * 2
			if kind := res.Diag[base]; kind != ErrNone {
				report.Violations = append(report.Violations, Violation{
					Partition: p,
					Lane:      lane,
					Kind:      kind,
					Value:     res.Diag[base+1],
				})
			}
		}

		if res.Claims != nil && res.Claims[p] > 1 {
			report.DuplicateClaims++
		}
	}

	return report
}
