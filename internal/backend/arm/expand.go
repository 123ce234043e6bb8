package arm

import (
	"github.com/pkg/errors"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

// MachineExpander rewrites every remaining HLIR instruction into one or
// more MIR instructions according to the machine description. Expanders
// may insert address-materialisation code before the instruction being
// rewritten; the returned instruction replaces the original. Stack
// allocations survive untouched for the register allocator to turn into
// frame address arithmetic.
type MachineExpander struct{}

// Name implements Pass.Name.
func (MachineExpander) Name() string { return "match" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (MachineExpander) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	for _, bb := range fn.Blocks() {
		it := bb.First()
		for it != nil {
			old := it
			if old.Opcode() == ir.OpStackAlloc || old.Opcode().IsMachine() {
				it = it.Next()
				continue
			}

			repl, err := expand(old)
			if err != nil {
				return errors.Wrapf(err, "%s", fn.Name())
			}

			// The expansion may have consumed a later instruction (the
			// fused cbr), so recompute the resume point now.
			it = old.Next()

			if repl == nil {
				// Forwarding expansion: the instruction dissolved.
				old.DeleteFromParent()
				continue
			}
			if repl.Parent() != nil {
				// The replacement was already inserted by the expander.
				old.DeleteFromParent()
				continue
			}
			bb.Replace(old, repl)
		}
	}
	return nil
}

// expand dispatches one HLIR instruction to its expander. A nil
// replacement (with nil error) means the instruction is a no-op at the
// machine level and its result was forwarded.
func expand(insn *ir.Instruction) (*ir.Instruction, error) {
	op := insn.Opcode()
	switch {
	case op.IsBinaryOp():
		return NewBinOpFor(op, insn.BinOpLHS(), insn.BinOpRHS(), insn.BinOpResult())
	case op.IsCompare():
		return expandICmp(insn)
	case op.IsCast():
		return expandCast(insn)
	}
	switch op {
	case ir.OpLoad:
		return expandLoad(insn)
	case ir.OpStore:
		return expandStore(insn)
	case ir.OpSet:
		return expandSet(insn)
	case ir.OpBr:
		return NewB(insn.Operand(0)), nil
	case ir.OpCbr:
		return expandCbr(insn)
	case ir.OpRet:
		if insn.HasReturnValue() {
			return nil, errors.New("value-carrying ret reached the machine expander")
		}
		return NewMachineRet(), nil
	case ir.OpCall:
		return nil, errors.New("unsupported: no machine pattern for call")
	default:
		return nil, errors.Errorf("cannot expand %s", op)
	}
}

// materialiseGlobalAddress inserts the movw/movt pair that loads a
// global's address into dst before insn, returning the movt.
func materialiseGlobalAddress(insn *ir.Instruction, dst, global ir.Value) *ir.Instruction {
	bb := insn.Parent()
	movw := bb.InsertBefore(insn, NewMovwGl16(dst, global))
	return bb.InsertAfter(movw, NewMovtGu16(dst, global))
}

func expandLoad(insn *ir.Instruction) (*ir.Instruction, error) {
	src, dst := insn.LoadSrc(), insn.LoadDst()

	mode, err := ModeOf(dst.Type())
	if err != nil {
		return nil, err
	}

	// A single zext/sext consumer fuses into the load: sign extension
	// selects the ldrs* variants, zero extension is what ldr*
	// already does. Either way the cast dissolves and the load's
	// destination becomes a full register.
	signExtend := false
	if use, ok := ir.SingleUser(insn, dst); ok {
		switch use.User.Opcode() {
		case ir.OpSExt:
			signExtend = true
			fallthrough
		case ir.OpZExt:
			cast := use.User
			if cast.CastSrc() != dst {
				return nil, errors.New("load/cast destination mismatch")
			}
			ir.ReplaceAllUsesWith(cast.CastDst(), dst)
			cast.DeleteFromParent()
			if TypeSize(dst.Type()) > 4 {
				return nil, errors.New("unsupported: load destination wider than a register")
			}
			dst.SetType(ir.I32)
		}
	}

	switch {
	case ir.IsRegister(src) && ir.IsRegister(dst):
		return NewLoadFor(mode, signExtend, dst, src)
	case ir.IsGlobal(src) && ir.IsRegister(dst):
		address := ir.NewVReg(ir.Pointer)
		materialiseGlobalAddress(insn, address, src)
		return NewLoadFor(mode, signExtend, dst, address)
	default:
		return nil, errors.New("unexpected operand kinds for load")
	}
}

func expandStore(insn *ir.Instruction) (*ir.Instruction, error) {
	src, dst := insn.StoreSrc(), insn.StoreDst()

	switch {
	case ir.IsGlobal(src):
		// Storing the address of a global to memory.
		address := ir.NewVReg(ir.I32)
		materialiseGlobalAddress(insn, address, src)
		return ir.NewMachineInstr(ir.OpArmStr, address, dst), nil
	case ir.IsGlobal(dst):
		mode, err := ModeOf(src.Type())
		if err != nil {
			return nil, err
		}
		if mode != SImode {
			return nil, errors.New("unsupported machine mode for store to global")
		}
		address := ir.NewVReg(ir.I32)
		materialiseGlobalAddress(insn, address, dst)
		return ir.NewMachineInstr(ir.OpArmStr, src, address), nil
	case ir.IsRegister(src) && ir.IsRegister(dst):
		mode, err := ModeOf(src.Type())
		if err != nil {
			return nil, err
		}
		return NewStoreFor(mode, src, dst)
	default:
		return nil, errors.New("cannot expand this form of store")
	}
}

func expandICmp(insn *ir.Instruction) (*ir.Instruction, error) {
	result := insn.BinOpResult()

	// icmp whose single consumer is a cbr in the same block fuses into
	// a compare-and-branch pair.
	if use, ok := ir.SingleUser(insn, result); ok {
		if use.User.Opcode() == ir.OpCbr && use.User.Parent() == insn.Parent() {
			return expandICmpBranchPair(insn, use.User), nil
		}
	}

	// Standalone comparisons materialise a boolean:
	//
	//	cmp    lhs, rhs
	//	mov    result, #0
	//	movw<cond> result, #1
	bb := insn.Parent()
	zero := ir.NewConstantInt(ir.I32, 0)
	one := ir.NewConstantInt(ir.I32, 1)

	pos := bb.InsertBefore(insn, NewCmp(insn.BinOpLHS(), insn.BinOpRHS()))
	bb.InsertAfter(pos, NewMovi(result, zero))
	return NewMovwCondI(insn.Opcode(), result, one), nil
}

func expandICmpBranchPair(cmp, branch *ir.Instruction) *ir.Instruction {
	trueTarget := branch.Operand(0)
	falseTarget := branch.Operand(1)

	condBranch := NewCondBranch(cmp.Opcode(), trueTarget)
	falseBranch := NewB(falseTarget)

	branch.DeleteFromParent()

	bb := cmp.Parent()
	pos := bb.InsertBefore(cmp, NewCmp(cmp.BinOpLHS(), cmp.BinOpRHS()))
	bb.InsertAfter(pos, condBranch)

	return falseBranch
}

// expandCbr lowers an unfused conditional branch:
//
//	cmp condition, #1
//	bge true_target
//	b   false_target
func expandCbr(insn *ir.Instruction) (*ir.Instruction, error) {
	bb := insn.Parent()
	one := ir.NewConstantInt(ir.I32, 1)

	pos := bb.InsertBefore(insn, NewCmpi(insn.CbrCond(), one))
	bb.InsertAfter(pos, NewBge(insn.Operand(0)))
	return NewB(insn.Operand(1)), nil
}

func expandSet(insn *ir.Instruction) (*ir.Instruction, error) {
	dst, src := insn.SetRegister(), insn.SetValue()
	if ir.IsConstantInt(src) {
		return NewMovi(dst, src), nil
	}
	return NewMov(dst, src), nil
}

func expandCast(insn *ir.Instruction) (*ir.Instruction, error) {
	src, dst := insn.CastSrc(), insn.CastDst()

	// ptrtoint of a global materialises the address directly.
	if insn.Opcode() == ir.OpPtrToInt && ir.IsGlobal(src) {
		return materialiseGlobalAddress(insn, dst, src), nil
	}

	// Pointers are 32-bit integers at this level, so ptrtoint/inttoptr
	// between registers is a no-op: forward the source.
	switch insn.Opcode() {
	case ir.OpPtrToInt, ir.OpIntToPtr:
		ir.ReplaceAllUsesWith(dst, src)
		return nil, nil
	case ir.OpZExt, ir.OpSExt:
		// Width-preserving extensions forward; narrowing sources reach
		// here only when the extension was not fused into a load, which
		// the pipeline does not produce.
		if TypeSize(src.Type()) == TypeSize(dst.Type()) {
			ir.ReplaceAllUsesWith(dst, src)
			return nil, nil
		}
		return nil, errors.Errorf("unsupported: unfused %s from %s to %s", insn.Opcode(), src.Type(), dst.Type())
	default:
		return nil, errors.Errorf("cannot expand cast %s", insn.Opcode())
	}
}
