package regalloc

import (
	"math"

	"github.com/armlet/armlet/internal/ir"
)

// Interval is the contiguous lifetime [Start, End] of a virtual
// register over the function's linear instruction order.
type Interval struct {
	Reg   *ir.VirtualRegisterName
	Start InstructionIndex
	End   InstructionIndex

	// Filled in by the allocator.
	phys      *ir.PhysicalRegisterName
	spilled   bool
	slotOffset int
}

// PhysicalRegister returns the register assigned by allocation, nil for
// spilled intervals.
func (iv *Interval) PhysicalRegister() *ir.PhysicalRegisterName { return iv.phys }

// Spilled reports whether the interval lives in a stack slot.
func (iv *Interval) Spilled() bool { return iv.spilled }

// ComputeIntervals builds the live interval for every virtual register
// in fn. Liveness must already be computed.
//
// Within one block, a register not crossing the boundary starts at its
// defining write and ends at its last read. Registers crossing the
// boundary start at (block, 0) when live-in, end at (block, len) when
// live-out and otherwise extend to their last intra-block read.
// Write-only registers with no reads anywhere span from their first to
// their last write, which is a single index when they are written once.
func ComputeIntervals(fn *ir.Function) map[*ir.VirtualRegisterName]*Interval {
	intervals := map[*ir.VirtualRegisterName]*Interval{}

	for blockIndex, bb := range fn.Blocks() {
		liveIn := bb.LiveIn()
		liveOut := bb.LiveOut()
		crosses := func(v *ir.VirtualRegisterName) bool {
			_, in := liveIn[v]
			_, out := liveOut[v]
			return in || out
		}

		// Reads first: remember the last intra-block read of every
		// register local to this block.
		uses := map[*ir.VirtualRegisterName]*Interval{}
		instrIndex := 0
		for i := bb.First(); i != nil; i = i.Next() {
			for idx := 0; idx < i.CountOperands(); idx++ {
				if !i.OperandHasFlags(idx, ir.OperandRead) {
					continue
				}
				vreg, ok := i.Operand(idx).(*ir.VirtualRegisterName)
				if !ok || crosses(vreg) {
					continue
				}
				uses[vreg] = &Interval{Reg: vreg, End: InstructionIndex{Block: blockIndex, Instr: instrIndex}}
			}
			instrIndex++
		}

		// Writes: pin the start of block-local intervals, and collapse
		// registers that are written but never read.
		instrIndex = 0
		for i := bb.First(); i != nil; i = i.Next() {
			for idx := 0; idx < i.CountOperands(); idx++ {
				if !i.OperandHasFlags(idx, ir.OperandWrite) {
					continue
				}
				vreg, ok := i.Operand(idx).(*ir.VirtualRegisterName)
				if !ok {
					continue
				}
				here := InstructionIndex{Block: blockIndex, Instr: instrIndex}

				if ir.CountReadUsers(vreg) == 0 {
					if iv, exists := intervals[vreg]; exists {
						iv.End = here
					} else {
						intervals[vreg] = &Interval{Reg: vreg, Start: here, End: here}
					}
					continue
				}

				pending, sawRead := uses[vreg]
				if !sawRead {
					continue
				}
				if _, exists := intervals[vreg]; !crosses(vreg) && !exists {
					pending.Start = here
					intervals[vreg] = pending
					delete(uses, vreg)
				}
			}
			instrIndex++
		}

		// Live-in registers start at the block head; if the register
		// dies here, its end is the last read in this block.
		for _, vreg := range ir.SortedRegSet(liveIn) {
			if _, exists := intervals[vreg]; !exists {
				intervals[vreg] = &Interval{
					Reg:   vreg,
					Start: InstructionIndex{Block: blockIndex, Instr: 0},
				}
			}
			if _, out := liveOut[vreg]; !out {
				intervals[vreg].End = lastReadIndex(bb, blockIndex, vreg)
			}
		}

		// Live-out registers either extend to the block end (when also
		// live-in) or start at their first write here.
		for _, vreg := range ir.SortedRegSet(liveOut) {
			_, in := liveIn[vreg]
			if _, exists := intervals[vreg]; !in && !exists {
				intervals[vreg] = &Interval{
					Reg:   vreg,
					Start: firstWriteIndex(bb, blockIndex, vreg),
				}
			} else if in {
				intervals[vreg].End = InstructionIndex{Block: blockIndex, Instr: bb.Len()}
			} else {
				intervals[vreg].End = lastReadIndex(bb, blockIndex, vreg)
			}
		}
	}

	return intervals
}

func lastReadIndex(bb *ir.BasicBlock, blockIndex int, vreg *ir.VirtualRegisterName) InstructionIndex {
	end := InstructionIndex{Block: blockIndex, Instr: math.MaxInt}
	instrIndex := 0
	for i := bb.First(); i != nil; i = i.Next() {
		if operandWithFlag(i, vreg, ir.OperandRead) {
			end.Instr = instrIndex
		}
		instrIndex++
	}
	return end
}

func firstWriteIndex(bb *ir.BasicBlock, blockIndex int, vreg *ir.VirtualRegisterName) InstructionIndex {
	start := InstructionIndex{Block: blockIndex, Instr: math.MaxInt}
	instrIndex := 0
	for i := bb.First(); i != nil; i = i.Next() {
		if operandWithFlag(i, vreg, ir.OperandWrite) {
			start.Instr = instrIndex
			break
		}
		instrIndex++
	}
	return start
}

func operandWithFlag(i *ir.Instruction, vreg *ir.VirtualRegisterName, flag ir.OperandFlags) bool {
	for idx := 0; idx < i.CountOperands(); idx++ {
		if i.Operand(idx) == vreg && i.OperandHasFlags(idx, flag) {
			return true
		}
	}
	return false
}
