package ir

import "fmt"

// OperandFlags describe how an instruction accesses one of its operands.
// The flags drive def/use analysis, liveness and the register allocator.
type OperandFlags uint8

const (
	// OperandNone marks an operand that is neither read nor written.
	OperandNone OperandFlags = 0
	// OperandRead marks an operand read by the instruction.
	OperandRead OperandFlags = 1 << iota
	// OperandWrite marks an operand written by the instruction.
	OperandWrite
)

// Instruction is a single IR instruction: an opcode plus an ordered
// operand vector. Instructions form an intrusive doubly-linked list
// owned by their parent block.
//
// A handful of forms carry extra immutable attributes that are not
// operands: the allocated type of a stack_alloc, the base type of a
// lea/lfa and the field index of a lfa.
type Instruction struct {
	opcode   Opcode
	operands []Value
	comment  string

	parent     *BasicBlock
	prev, next *Instruction

	allocatedType Type
	baseType      Type
	fieldIndex    int
}

func newInstruction(op Opcode, nOperands int) *Instruction {
	return &Instruction{opcode: op, operands: make([]Value, nOperands)}
}

// Opcode returns the instruction's opcode.
func (i *Instruction) Opcode() Opcode { return i.opcode }

// CountOperands returns the number of operand slots.
func (i *Instruction) CountOperands() int { return len(i.operands) }

// Operand returns the operand at index. Panics when out of bounds.
func (i *Instruction) Operand(index int) Value {
	if index < 0 || index >= len(i.operands) {
		panic(fmt.Sprintf("BUG: operand index %d out of bounds for %s", index, i.opcode))
	}
	return i.operands[index]
}

// SetOperand installs value at the given index, transferring use-list
// membership atomically: the old operand (if any) drops this use, the
// new one gains it. A nil value clears the slot.
func (i *Instruction) SetOperand(index int, value Value) {
	if index < 0 || index >= len(i.operands) {
		panic(fmt.Sprintf("BUG: operand index %d out of bounds for %s", index, i.opcode))
	}
	use := Use{User: i, Index: index}
	if old := i.operands[index]; old != nil {
		old.removeUse(use)
	}
	i.operands[index] = value
	if value != nil {
		value.addUse(use)
	}
}

// Clear releases every operand, removing this instruction from all
// use-lists.
func (i *Instruction) Clear() {
	for idx := range i.operands {
		i.SetOperand(idx, nil)
	}
}

// SetComment attaches a debug comment, printed by the annotated dump.
func (i *Instruction) SetComment(comment string) { i.comment = comment }

// Comment returns the debug comment, or "".
func (i *Instruction) Comment() string { return i.comment }

// Parent returns the owning basic block, or nil when detached.
func (i *Instruction) Parent() *BasicBlock { return i.parent }

// Prev returns the previous instruction in the block, or nil.
func (i *Instruction) Prev() *Instruction { return i.prev }

// Next returns the next instruction in the block, or nil.
func (i *Instruction) Next() *Instruction { return i.next }

// IsTerminator reports whether the instruction ends its block.
func (i *Instruction) IsTerminator() bool { return i.opcode.IsTerminator() }

// DeleteFromParent clears all operands and unlinks the instruction from
// its parent block. The instruction must not be reused afterwards.
func (i *Instruction) DeleteFromParent() {
	i.Clear()
	if i.parent != nil {
		i.parent.remove(i)
	}
}

// AllocatedType returns the type allocated by a stack_alloc.
func (i *Instruction) AllocatedType() Type {
	if i.opcode != OpStackAlloc {
		panic("BUG: AllocatedType on non stack_alloc")
	}
	return i.allocatedType
}

// SetAllocatedType rewrites a stack_alloc's allocated type.
func (i *Instruction) SetAllocatedType(t Type) {
	if i.opcode != OpStackAlloc {
		panic("BUG: SetAllocatedType on non stack_alloc")
	}
	i.allocatedType = t
}

// BaseType returns the element/struct base type of a lea or lfa.
func (i *Instruction) BaseType() Type {
	if i.opcode != OpLea && i.opcode != OpLfa {
		panic("BUG: BaseType on non lea/lfa")
	}
	return i.baseType
}

// FieldIndex returns the field index attribute of a lfa.
func (i *Instruction) FieldIndex() int {
	if i.opcode != OpLfa {
		panic("BUG: FieldIndex on non lfa")
	}
	return i.fieldIndex
}

// OperandFlags returns the access flags for the operand at index.
func (i *Instruction) OperandFlags(index int) OperandFlags {
	if index < 0 || index >= len(i.operands) {
		panic(fmt.Sprintf("BUG: operand index %d out of bounds for %s", index, i.opcode))
	}
	op := i.opcode
	switch {
	case op.IsBinaryOp() || op.IsCompare():
		if index == 2 {
			return OperandWrite
		}
		return OperandRead
	case op.IsCast():
		if index == 1 {
			return OperandWrite
		}
		return OperandRead
	}
	switch op {
	case OpLoad:
		if index == 1 {
			return OperandWrite
		}
		return OperandRead
	case OpStore, OpBr, OpCbr, OpRet:
		return OperandRead
	case OpStackAlloc:
		return OperandWrite
	case OpLea:
		if index == 2 {
			return OperandWrite
		}
		return OperandRead
	case OpLfa:
		if index == 1 {
			return OperandWrite
		}
		return OperandRead
	case OpSet:
		if index == 0 {
			return OperandWrite
		}
		return OperandRead
	case OpCall:
		if index == 1 {
			return OperandWrite
		}
		return OperandRead

	case OpArmMovwi, OpArmMov, OpArmMovi, OpArmMovweqi, OpArmMovwnei, OpArmMovwgti,
		OpArmMovwgei, OpArmMovwlti, OpArmMovwlei, OpArmMovwGl16:
		if index == 0 {
			return OperandWrite
		}
		return OperandRead
	case OpArmMovti, OpArmMovtGu16:
		// movt preserves the low half written by the paired movw; the
		// pair is always adjacent so a plain write flag is sound for
		// block-level analysis.
		if index == 0 {
			return OperandWrite
		}
		return OperandRead
	case OpArmLdr, OpArmLdrb, OpArmLdrh, OpArmLdrsb, OpArmLdrsh:
		if index == 0 {
			return OperandWrite
		}
		return OperandRead
	case OpArmStr, OpArmStrb, OpArmStrh, OpArmCmp, OpArmCmpi,
		OpArmB, OpArmBeq, OpArmBne, OpArmBge, OpArmBgt, OpArmBlt, OpArmBle:
		return OperandRead
	case OpArmAdd, OpArmSub, OpArmMul, OpArmSdiv, OpArmUdiv,
		OpArmAnd, OpArmOrr, OpArmEor, OpArmLsl, OpArmLsr,
		OpArmAddR32I32, OpArmSubR32I32:
		if index == 2 {
			return OperandWrite
		}
		return OperandRead
	case OpArmRet:
		return OperandNone
	}
	return OperandNone
}

// OperandHasFlags reports whether the operand at index has all the
// given flags set.
func (i *Instruction) OperandHasFlags(index int, flags OperandFlags) bool {
	return i.OperandFlags(index)&flags == flags
}
