package ir

import "fmt"

// Constructors for each instruction form. Each fixes the form's arity
// and checks the operand contracts that must hold by construction;
// violations are invalid IR and panic immediately rather than
// surfacing later as miscompiles.

func invalidIR(format string, args ...interface{}) {
	panic("invalid IR: " + fmt.Sprintf(format, args...))
}

// NewBinOp builds `<op> lhs, rhs, result`. All three types must match.
func NewBinOp(op Opcode, lhs, rhs, result Value) *Instruction {
	if !op.IsBinaryOp() {
		invalidIR("%s is not a binary opcode", op)
	}
	if lhs.Type() != rhs.Type() || lhs.Type() != result.Type() {
		invalidIR("binop %s operand types differ: %s, %s, %s", op, lhs.Type(), rhs.Type(), result.Type())
	}
	i := newInstruction(op, 3)
	i.SetOperand(0, lhs)
	i.SetOperand(1, rhs)
	i.SetOperand(2, result)
	return i
}

// NewCompare builds `<icmp_op> lhs, rhs, result`. The result holds 0 or
// 1 and is i32.
func NewCompare(op Opcode, lhs, rhs, result Value) *Instruction {
	if !op.IsCompare() {
		invalidIR("%s is not a comparison opcode", op)
	}
	if lhs.Type() != rhs.Type() {
		invalidIR("compare %s operand types differ: %s, %s", op, lhs.Type(), rhs.Type())
	}
	if result.Type() != I32 {
		invalidIR("compare result must be i32, got %s", result.Type())
	}
	i := newInstruction(op, 3)
	i.SetOperand(0, lhs)
	i.SetOperand(1, rhs)
	i.SetOperand(2, result)
	return i
}

// NewLoad builds `load src, dst`: read memory at pointer src into dst.
// The destination type drives the access width.
func NewLoad(src, dst Value) *Instruction {
	if !IsPointer(src.Type()) && !IsGlobal(src) {
		if _, phys := src.(*PhysicalRegisterName); !phys {
			invalidIR("load source must be pointer-typed, got %s", src.Type())
		}
	}
	i := newInstruction(OpLoad, 2)
	i.SetOperand(0, src)
	i.SetOperand(1, dst)
	return i
}

// NewStore builds `store src, dst`: write src to memory at pointer dst.
func NewStore(src, dst Value) *Instruction {
	i := newInstruction(OpStore, 2)
	i.SetOperand(0, src)
	i.SetOperand(1, dst)
	return i
}

// NewStackAlloc builds `stack_alloc dst`: allocate typ bytes of stack
// and leave the address in pointer dst.
func NewStackAlloc(dst Value, typ Type) *Instruction {
	i := newInstruction(OpStackAlloc, 1)
	i.SetOperand(0, dst)
	i.allocatedType = typ
	return i
}

// NewLea builds `lea [base*], ptr, index, out`: the address of element
// index of an array of base starting at ptr.
func NewLea(baseType Type, ptr, index, out Value) *Instruction {
	i := newInstruction(OpLea, 3)
	i.SetOperand(0, ptr)
	i.SetOperand(1, index)
	i.SetOperand(2, out)
	i.baseType = baseType
	return i
}

// NewLfa builds `lfa [struct:field], ptr, out`: the address of a struct
// field. The field index is an attribute, not an operand.
func NewLfa(baseType *StructType, ptr Value, fieldIndex int, out Value) *Instruction {
	if fieldIndex < 0 || fieldIndex >= len(baseType.Fields()) {
		invalidIR("lfa field index %d out of range for %s", fieldIndex, baseType)
	}
	i := newInstruction(OpLfa, 2)
	i.SetOperand(0, ptr)
	i.SetOperand(1, out)
	i.baseType = baseType
	i.fieldIndex = fieldIndex
	return i
}

// NewSet builds `set reg, value`: install value into a virtual register
// without memory traffic.
func NewSet(reg, value Value) *Instruction {
	i := newInstruction(OpSet, 2)
	i.SetOperand(0, reg)
	i.SetOperand(1, value)
	return i
}

// NewCast builds a cast of the given kind from src into dst.
func NewCast(op Opcode, src, dst Value) *Instruction {
	if !op.IsCast() {
		invalidIR("%s is not a cast opcode", op)
	}
	i := newInstruction(op, 2)
	i.SetOperand(0, src)
	i.SetOperand(1, dst)
	return i
}

// NewPtrToInt builds `ptrtoint src, dst`.
func NewPtrToInt(src, dst Value) *Instruction { return NewCast(OpPtrToInt, src, dst) }

// NewIntToPtr builds `inttoptr src, dst`.
func NewIntToPtr(src, dst Value) *Instruction { return NewCast(OpIntToPtr, src, dst) }

// NewZExt builds `zext src, dst`.
func NewZExt(src, dst Value) *Instruction { return NewCast(OpZExt, src, dst) }

// NewSExt builds `sext src, dst`.
func NewSExt(src, dst Value) *Instruction { return NewCast(OpSExt, src, dst) }

// NewBr builds `br target`.
func NewBr(target *BasicBlock) *Instruction {
	i := newInstruction(OpBr, 1)
	i.SetOperand(0, target.Target())
	return i
}

// NewCbr builds `cbr trueBB, falseBB, cond`.
func NewCbr(trueBB, falseBB *BasicBlock, cond Value) *Instruction {
	i := newInstruction(OpCbr, 3)
	i.SetOperand(0, trueBB.Target())
	i.SetOperand(1, falseBB.Target())
	i.SetOperand(2, cond)
	return i
}

// NewRet builds `ret` with no value.
func NewRet() *Instruction {
	return newInstruction(OpRet, 0)
}

// NewRetValue builds `ret value`.
func NewRetValue(value Value) *Instruction {
	i := newInstruction(OpRet, 1)
	i.SetOperand(0, value)
	return i
}

// NewCall builds `call fn, ret, params...`. ret receives the return
// value; for void calls pass the undef of Void.
func NewCall(fn Value, ret Value, params []Value) *Instruction {
	i := newInstruction(OpCall, 2+len(params))
	i.SetOperand(0, fn)
	i.SetOperand(1, ret)
	for idx, p := range params {
		i.SetOperand(2+idx, p)
	}
	return i
}

// NewMachineInstr builds a MIR instruction with the given operands.
// Target packages layer their own constructors over this.
func NewMachineInstr(op Opcode, operands ...Value) *Instruction {
	if !op.IsMachine() {
		invalidIR("%s is not a machine opcode", op)
	}
	i := newInstruction(op, len(operands))
	for idx, v := range operands {
		i.SetOperand(idx, v)
	}
	return i
}

// Instruction form accessors. Each reads a fixed operand position and
// does not check the opcode it is applied to.

// BinOpLHS returns operand 0 of a binop or compare.
func (i *Instruction) BinOpLHS() Value { return i.Operand(0) }

// BinOpRHS returns operand 1 of a binop or compare.
func (i *Instruction) BinOpRHS() Value { return i.Operand(1) }

// BinOpResult returns operand 2 of a binop or compare.
func (i *Instruction) BinOpResult() Value { return i.Operand(2) }

// LoadSrc returns the address operand of a load.
func (i *Instruction) LoadSrc() Value { return i.Operand(0) }

// LoadDst returns the destination register of a load.
func (i *Instruction) LoadDst() Value { return i.Operand(1) }

// StoreSrc returns the stored value of a store.
func (i *Instruction) StoreSrc() Value { return i.Operand(0) }

// StoreDst returns the address operand of a store.
func (i *Instruction) StoreDst() Value { return i.Operand(1) }

// AllocDst returns the pointer produced by a stack_alloc.
func (i *Instruction) AllocDst() Value { return i.Operand(0) }

// SetRegister returns the register written by a set.
func (i *Instruction) SetRegister() Value { return i.Operand(0) }

// SetValue returns the value installed by a set.
func (i *Instruction) SetValue() Value { return i.Operand(1) }

// CastSrc returns the source of a cast.
func (i *Instruction) CastSrc() Value { return i.Operand(0) }

// CastDst returns the destination of a cast.
func (i *Instruction) CastDst() Value { return i.Operand(1) }

// BranchTarget returns the destination block of a br.
func (i *Instruction) BranchTarget() *BasicBlock {
	return i.Operand(0).(*BlockBranchTarget).Block()
}

// CbrTrue returns the true destination of a cbr.
func (i *Instruction) CbrTrue() *BasicBlock { return i.Operand(0).(*BlockBranchTarget).Block() }

// CbrFalse returns the false destination of a cbr.
func (i *Instruction) CbrFalse() *BasicBlock { return i.Operand(1).(*BlockBranchTarget).Block() }

// CbrCond returns the condition of a cbr.
func (i *Instruction) CbrCond() Value { return i.Operand(2) }

// HasReturnValue reports whether a ret carries a value.
func (i *Instruction) HasReturnValue() bool {
	if i.opcode != OpRet {
		panic("BUG: HasReturnValue on non ret")
	}
	return len(i.operands) == 1 && i.operands[0] != nil
}

// ReturnValue returns the value of a non-void ret.
func (i *Instruction) ReturnValue() Value { return i.Operand(0) }

// MakeVoid strips the value from a ret.
func (i *Instruction) MakeVoid() {
	if i.opcode != OpRet {
		panic("BUG: MakeVoid on non ret")
	}
	if len(i.operands) == 1 {
		i.SetOperand(0, nil)
		i.operands = i.operands[:0]
	}
}
