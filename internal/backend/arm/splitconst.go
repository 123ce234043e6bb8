package arm

import (
	"github.com/pkg/errors"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

// ArmSplitConstants runs after matching: every 32-bit integer constant
// still sitting in a register-expecting operand position is
// materialised with a movw/movt pair into a fresh virtual register and
// the operand rewritten. Immediate-form machine instructions keep their
// constants. Widths other than 32 bits are a precondition violation.
type ArmSplitConstants struct{}

// Name implements Pass.Name.
func (ArmSplitConstants) Name() string { return "armsplitconstants" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (ArmSplitConstants) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	type constantRef struct {
		insn  *ir.Instruction
		value *ir.ConstantInt
		index int
	}

	var refs []constantRef
	for _, bb := range fn.Blocks() {
		for i := bb.First(); i != nil; i = i.Next() {
			if immediateForm[i.Opcode()] {
				continue
			}
			for idx := 0; idx < i.CountOperands(); idx++ {
				if c, ok := i.Operand(idx).(*ir.ConstantInt); ok {
					refs = append(refs, constantRef{insn: i, value: c, index: idx})
				}
			}
		}
	}

	for _, ref := range refs {
		it, ok := ref.value.Type().(*ir.IntegerType)
		if !ok || it.Bits() != 32 {
			return errors.Errorf("unsupported: cannot split %s constant", ref.value.Type())
		}

		full := ref.value.Value()
		bottom := full & 0xffff
		top := (full >> 16) & 0xffff

		result := ir.NewVReg(ir.I32)
		movw := NewMovwi(result, ir.NewConstantInt(ir.I32, bottom))
		movt := NewMovti(result, ir.NewConstantInt(ir.I32, top))

		bb := ref.insn.Parent()
		bb.InsertBefore(ref.insn, movw)
		bb.InsertAfter(movw, movt)

		ref.insn.SetOperand(ref.index, result)
	}
	return nil
}
