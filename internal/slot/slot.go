// Package slot implements the bit-packed encoding of a partition's
// (value, status) pair across two 32-bit table words.
//
// Each word carries the slot's status tag in bits 31:30 and one 16-bit
// half of the 32-bit value in bits 15:0. Lane 0 holds bits 15:0 of the
// value, lane 1 holds bits 31:16. Packing the same status into both
// words lets either split lane learn the slot's state from a single
// 32-bit atomic load; the halves are rejoined with a lane exchange.
package slot

import "fmt"

// Status occupies bits 31:30 of every table word.
type Status uint32

const (
	NotReady  Status = 0x00000000
	Ready     Status = 0x40000000
	Inclusive Status = 0x80000000
)

const (
	// StatusMask selects the status tag bits of a word.
	StatusMask = 0xC0000000
	// ValueMask selects the 16-bit value chunk of a word.
	ValueMask = 0x0000FFFF

	// ChunkBits is the width of the value half carried per word.
	ChunkBits = 16

	// SplitLanes is the number of lanes a value is split across.
	SplitLanes = 2
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Inclusive:
		return "Inclusive"
	default:
		return fmt.Sprintf("Status(%#08x)", uint32(s))
	}
}

// Split returns the 16-bit chunk of full held by the given split lane:
// bits [16*lane, 16*lane+16).
func Split(full uint32, lane int) uint32 {
	return (full >> (uint(lane) * ChunkBits)) & ValueMask
}

// Place positions a lane's chunk at its bit offset within the full value.
func Place(chunk uint32, lane int) uint32 {
	return (chunk & ValueMask) << (uint(lane) * ChunkBits)
}

// Pack encodes the table word a split lane publishes for a slot:
// its chunk of full in the low bits, the status tag in bits 31:30.
func Pack(full uint32, lane int, status Status) uint32 {
	return Split(full, lane) | uint32(status)
}

// StatusOf decodes the status tag of a table word.
func StatusOf(word uint32) Status {
	return Status(word & StatusMask)
}

// Chunk decodes the 16-bit value chunk of a table word.
func Chunk(word uint32) uint32 {
	return word & ValueMask
}

// JoinChunks reconstructs the full 32-bit value from the two lanes'
// chunks. Both split lanes must compute an identical result.
func JoinChunks(c0, c1 uint32) uint32 {
	return Place(c0, 0) | Place(c1, 1)
}

// Join reconstructs a slot's full value from its two table words,
// ignoring the status tags.
func Join(w0, w1 uint32) uint32 {
	return JoinChunks(Chunk(w0), Chunk(w1))
}

// PairStatus decodes the status of a two-word slot. ok is false when
// the words disagree: the protocol writes both words of a status
// transition together, so a disagreeing pair is a torn observation,
// not a valid transient state.
func PairStatus(w0, w1 uint32) (status Status, ok bool) {
	s0, s1 := StatusOf(w0), StatusOf(w1)
	return s0, s0 == s1
}
