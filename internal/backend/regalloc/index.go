// Package regalloc implements liveness-interval construction and the
// linear-scan register allocator that maps virtual registers onto the
// ARM pool, spilling to the stack frame when the pool is exhausted.
package regalloc

import "fmt"

// InstructionIndex is a position in a function's linear instruction
// order: a block index paired with an instruction index within that
// block. Comparison is lexicographic.
type InstructionIndex struct {
	Block int
	Instr int
}

// Before reports whether i precedes other in program order.
func (i InstructionIndex) Before(other InstructionIndex) bool {
	if i.Block == other.Block {
		return i.Instr < other.Instr
	}
	return i.Block < other.Block
}

// String implements fmt.Stringer.
func (i InstructionIndex) String() string {
	return fmt.Sprintf("%d:%d", i.Block, i.Instr)
}
