package ir

import "fmt"

// BasicBlock is an intrusive sequence of instructions ending in a single
// terminator. Each block owns a BlockBranchTarget value so branch
// instructions can reference it as an operand, and records the LiveIn/
// LiveOut sets computed by Function.RunLivenessAnalysis.
type BasicBlock struct {
	id          int
	first, last *Instruction
	target      *BlockBranchTarget
	parent      *Function

	liveIn  map[*VirtualRegisterName]struct{}
	liveOut map[*VirtualRegisterName]struct{}
}

var blockSeq int

// NewBasicBlock creates a detached, empty basic block.
func NewBasicBlock() *BasicBlock {
	blockSeq++
	bb := &BasicBlock{
		id:      blockSeq,
		liveIn:  map[*VirtualRegisterName]struct{}{},
		liveOut: map[*VirtualRegisterName]struct{}{},
	}
	bb.target = &BlockBranchTarget{valueBase: newValueBase(Label), block: bb}
	return bb
}

// Target returns the block's branch-target value.
func (bb *BasicBlock) Target() *BlockBranchTarget { return bb.target }

// Parent returns the owning function, or nil when detached.
func (bb *BasicBlock) Parent() *Function { return bb.parent }

// First returns the first instruction, or nil when empty.
func (bb *BasicBlock) First() *Instruction { return bb.first }

// Last returns the last instruction, or nil when empty.
func (bb *BasicBlock) Last() *Instruction { return bb.last }

// Empty reports whether the block holds no instructions.
func (bb *BasicBlock) Empty() bool { return bb.first == nil }

// Len returns the number of instructions.
func (bb *BasicBlock) Len() int {
	n := 0
	for i := bb.first; i != nil; i = i.next {
		n++
	}
	return n
}

// Append inserts insn at the end of the block.
func (bb *BasicBlock) Append(insn *Instruction) *Instruction {
	return bb.InsertAfter(bb.last, insn)
}

// Prepend inserts insn at the head of the block.
func (bb *BasicBlock) Prepend(insn *Instruction) *Instruction {
	return bb.InsertBefore(bb.first, insn)
}

// InsertBefore inserts insn immediately before pos. A nil pos appends.
// Returns insn for chaining.
func (bb *BasicBlock) InsertBefore(pos, insn *Instruction) *Instruction {
	if insn.parent != nil {
		panic("BUG: inserting an instruction that already has a parent")
	}
	insn.parent = bb
	if pos == nil {
		insn.prev = bb.last
		if bb.last != nil {
			bb.last.next = insn
		} else {
			bb.first = insn
		}
		bb.last = insn
		return insn
	}
	if pos.parent != bb {
		panic("BUG: insertion position belongs to another block")
	}
	insn.prev = pos.prev
	insn.next = pos
	if pos.prev != nil {
		pos.prev.next = insn
	} else {
		bb.first = insn
	}
	pos.prev = insn
	return insn
}

// InsertAfter inserts insn immediately after pos. A nil pos prepends.
// Returns insn for chaining.
func (bb *BasicBlock) InsertAfter(pos, insn *Instruction) *Instruction {
	if insn.parent != nil {
		panic("BUG: inserting an instruction that already has a parent")
	}
	if pos == nil {
		if bb.first == nil {
			insn.parent = bb
			bb.first, bb.last = insn, insn
			return insn
		}
		return bb.InsertBefore(bb.first, insn)
	}
	if pos.parent != bb {
		panic("BUG: insertion position belongs to another block")
	}
	insn.parent = bb
	insn.next = pos.next
	insn.prev = pos
	if pos.next != nil {
		pos.next.prev = insn
	} else {
		bb.last = insn
	}
	pos.next = insn
	return insn
}

// remove unlinks insn without touching its operands.
func (bb *BasicBlock) remove(insn *Instruction) {
	if insn.parent != bb {
		panic("BUG: removing an instruction from the wrong block")
	}
	if insn.prev != nil {
		insn.prev.next = insn.next
	} else {
		bb.first = insn.next
	}
	if insn.next != nil {
		insn.next.prev = insn.prev
	} else {
		bb.last = insn.prev
	}
	insn.prev, insn.next, insn.parent = nil, nil, nil
}

// Detach unlinks insn from this block, preserving its operands, so it
// can be re-inserted elsewhere (e.g. stack_alloc hoisting).
func (bb *BasicBlock) Detach(insn *Instruction) { bb.remove(insn) }

// Replace substitutes old with repl in place. old's operands are
// released and it is unlinked.
func (bb *BasicBlock) Replace(old, repl *Instruction) {
	bb.InsertBefore(old, repl)
	old.DeleteFromParent()
}

// LiveIn returns the block's live-in set.
func (bb *BasicBlock) LiveIn() map[*VirtualRegisterName]struct{} { return bb.liveIn }

// LiveOut returns the block's live-out set.
func (bb *BasicBlock) LiveOut() map[*VirtualRegisterName]struct{} { return bb.liveOut }

// Successors returns the blocks this block can branch to, in operand
// order of appearance. After machine expansion a block may end with a
// conditional branch followed by an unconditional one, so every branch
// operand in the block contributes.
func (bb *BasicBlock) Successors() []*BasicBlock {
	var succ []*BasicBlock
	seen := map[*BasicBlock]struct{}{}
	for i := bb.first; i != nil; i = i.next {
		for idx := 0; idx < i.CountOperands(); idx++ {
			if t, ok := i.Operand(idx).(*BlockBranchTarget); ok {
				if _, dup := seen[t.Block()]; !dup {
					seen[t.Block()] = struct{}{}
					succ = append(succ, t.Block())
				}
			}
		}
	}
	return succ
}

// Predecessors returns the blocks that branch to this one, ordered by
// block creation for determinism.
func (bb *BasicBlock) Predecessors() []*BasicBlock {
	var preds []*BasicBlock
	seen := map[*BasicBlock]struct{}{}
	for _, use := range bb.target.Uses() {
		p := use.User.Parent()
		if p == nil {
			continue
		}
		if _, dup := seen[p]; !dup {
			seen[p] = struct{}{}
			preds = append(preds, p)
		}
	}
	sortBlocksBySeq(preds)
	return preds
}

// CalculateUsesDefs computes the block's upward-exposed uses and its
// defs in one forward sweep: a read of a register counts as a use only
// when the register has no earlier def in the block; a write counts as
// a def only when the register has no earlier use.
func (bb *BasicBlock) CalculateUsesDefs() (uses, defs map[*VirtualRegisterName]struct{}) {
	uses = map[*VirtualRegisterName]struct{}{}
	defs = map[*VirtualRegisterName]struct{}{}
	for i := bb.first; i != nil; i = i.next {
		for idx := 0; idx < i.CountOperands(); idx++ {
			if !i.OperandHasFlags(idx, OperandRead) {
				continue
			}
			if vreg, ok := i.Operand(idx).(*VirtualRegisterName); ok {
				if _, defined := defs[vreg]; !defined {
					uses[vreg] = struct{}{}
				}
			}
		}
		for idx := 0; idx < i.CountOperands(); idx++ {
			if !i.OperandHasFlags(idx, OperandWrite) {
				continue
			}
			if vreg, ok := i.Operand(idx).(*VirtualRegisterName); ok {
				if _, used := uses[vreg]; !used {
					defs[vreg] = struct{}{}
				}
			}
		}
	}
	return uses, defs
}

func (bb *BasicBlock) String() string { return fmt.Sprintf("bb%d", bb.id) }
