package passes

import (
	"github.com/pkg/errors"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
	"github.com/armlet/armlet/internal/logging"
)

// Validate re-checks the IR construction invariants at a pipeline
// boundary: operand contracts per instruction form, block terminator
// placement and use-list consistency.
type Validate struct{}

// Name implements Pass.Name.
func (Validate) Name() string { return "validate" }

// RunOnModule implements ModulePass.RunOnModule.
func (Validate) RunOnModule(m *ir.Module, _ *pass.RunInformation) error {
	for _, fn := range m.Functions() {
		for _, bb := range fn.Blocks() {
			if err := validateBlock(fn, bb); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateBlock(fn *ir.Function, bb *ir.BasicBlock) error {
	for i := bb.First(); i != nil; i = i.Next() {
		if i.IsTerminator() && i.Next() != nil {
			return errors.Errorf("%s: terminator %s is not last in its block", fn.Name(), i.Opcode())
		}
		if !i.IsTerminator() && i.Next() == nil {
			return errors.Errorf("%s: block does not end in a terminator", fn.Name())
		}
		if err := validateInstruction(fn, i); err != nil {
			return err
		}
		if err := validateUses(i); err != nil {
			return err
		}
	}
	return nil
}

func validateInstruction(fn *ir.Function, i *ir.Instruction) error {
	op := i.Opcode()
	switch {
	case op.IsBinaryOp():
		if i.BinOpLHS().Type() != i.BinOpRHS().Type() {
			logging.Errorf(logging.Validate, "invalid binop: lhs/rhs type mismatch in %s", fn.Name())
			return errors.Errorf("%s: binop %s operand types differ", fn.Name(), op)
		}
	case op == ir.OpLoad:
		if !pointerOperand(i.LoadSrc()) {
			logging.Errorf(logging.Validate, "invalid load: source not a pointer in %s", fn.Name())
			return errors.Errorf("%s: load source must be pointer-typed", fn.Name())
		}
	case op == ir.OpStore:
		if !pointerOperand(i.StoreDst()) {
			logging.Errorf(logging.Validate, "invalid store: destination not a pointer in %s", fn.Name())
			return errors.Errorf("%s: store destination must be pointer-typed", fn.Name())
		}
	case op == ir.OpStackAlloc:
		if !pointerOperand(i.AllocDst()) {
			return errors.Errorf("%s: stack_alloc output must be pointer-typed", fn.Name())
		}
	case op == ir.OpCbr:
		if i.CbrTrue() == i.CbrFalse() {
			return errors.Errorf("%s: conditional branch with identical targets", fn.Name())
		}
		if !ir.IsIntegral(i.CbrCond().Type()) {
			return errors.Errorf("%s: conditional branch condition must be integral", fn.Name())
		}
	case op == ir.OpRet:
		if i.HasReturnValue() && fn.IsVoidReturn() {
			return errors.Errorf("%s: value return from a void function", fn.Name())
		}
		if !i.HasReturnValue() && !fn.IsVoidReturn() {
			return errors.Errorf("%s: missing return value from a non-void function", fn.Name())
		}
		if i.HasReturnValue() && i.ReturnValue().Type() != fn.ReturnType() {
			if _, phys := i.ReturnValue().(*ir.PhysicalRegisterName); !phys {
				return errors.Errorf("%s: return value type %s does not match return type %s",
					fn.Name(), i.ReturnValue().Type(), fn.ReturnType())
			}
		}
	}
	return nil
}

// pointerOperand accepts pointer-typed values, global references and
// physical registers. Once lowering has substituted physical registers
// the pointer/integer distinction is already gone.
func pointerOperand(v ir.Value) bool {
	if ir.IsPointer(v.Type()) || ir.IsGlobal(v) {
		return true
	}
	_, phys := v.(*ir.PhysicalRegisterName)
	return phys
}

// validateUses checks both directions of the use-list invariant for
// every operand of i.
func validateUses(i *ir.Instruction) error {
	for idx := 0; idx < i.CountOperands(); idx++ {
		v := i.Operand(idx)
		if v == nil {
			return errors.Errorf("nil operand %d on %s", idx, i.Opcode())
		}
		matches := 0
		for _, use := range v.Uses() {
			if use.User == i && use.Index == idx {
				matches++
			}
		}
		if matches != 1 {
			return errors.Errorf("use-list inconsistency: operand %d of %s recorded %d times", idx, i.Opcode(), matches)
		}
	}
	return nil
}
