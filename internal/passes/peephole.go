package passes

import (
	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
	"github.com/armlet/armlet/internal/logging"
)

// PeepholeGeneric applies local, target-neutral rewrites to a fixed
// point: folding binops whose operands are both integer constants
// (iadd/isub/imul only; division stays unfolded) and forwarding
// `x * 1` to x.
type PeepholeGeneric struct{}

// Name implements Pass.Name.
func (PeepholeGeneric) Name() string { return "peepholegeneric" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (PeepholeGeneric) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	sweeps := 0
	for {
		changed := false
		for _, bb := range fn.Blocks() {
			i := bb.First()
			for i != nil {
				i = peepholeOne(i, &changed)
			}
		}
		sweeps++
		if !changed {
			break
		}
	}
	logging.Debugf(logging.Peephole, "%s: peephole reached fixed point after %d sweeps", fn.Name(), sweeps)
	return nil
}

// peepholeOne rewrites the instruction if a rule matches and returns
// the next instruction to visit.
func peepholeOne(i *ir.Instruction, changed *bool) *ir.Instruction {
	if !i.Opcode().IsBinaryOp() {
		return i.Next()
	}

	lhs, rhs := i.BinOpLHS(), i.BinOpRHS()

	if lc, ok := lhs.(*ir.ConstantInt); ok {
		if rc, ok := rhs.(*ir.ConstantInt); ok {
			if result := foldConstantBinOp(i.Opcode(), lc, rc); result != nil {
				ir.ReplaceAllUsesWith(i.BinOpResult(), result)
				next := i.Next()
				i.DeleteFromParent()
				*changed = true
				return next
			}
		}
	}

	if i.Opcode() == ir.OpIMul {
		if rc, ok := rhs.(*ir.ConstantInt); ok && rc.Value() == 1 {
			ir.ReplaceAllUsesWith(i.BinOpResult(), lhs)
			next := i.Next()
			i.DeleteFromParent()
			*changed = true
			return next
		}
	}

	return i.Next()
}
