package passes

import (
	"fmt"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

// ConstantHoisting replaces every integer-constant operand with a load
// from a freshly generated read-only global, one global per distinct
// (type, value) pair. Globals are named ci0, ci1, ...
type ConstantHoisting struct {
	globals map[*ir.ConstantInt]*ir.GlobalVariable
	next    int
}

// NewConstantHoisting creates the pass with an empty global cache.
func NewConstantHoisting() *ConstantHoisting {
	return &ConstantHoisting{globals: map[*ir.ConstantInt]*ir.GlobalVariable{}}
}

// Name implements Pass.Name.
func (*ConstantHoisting) Name() string { return "constanthoisting" }

// RunOnBlock implements BasicBlockPass.RunOnBlock.
func (p *ConstantHoisting) RunOnBlock(bb *ir.BasicBlock, _ *pass.RunInformation) error {
	var withConstants []*ir.Instruction
	for i := bb.First(); i != nil; i = i.Next() {
		for idx := 0; idx < i.CountOperands(); idx++ {
			if ir.IsConstantInt(i.Operand(idx)) {
				withConstants = append(withConstants, i)
				break
			}
		}
	}

	for _, insn := range withConstants {
		for idx := 0; idx < insn.CountOperands(); idx++ {
			cint, ok := insn.Operand(idx).(*ir.ConstantInt)
			if !ok {
				continue
			}
			global := p.globalFor(bb.Parent().Parent(), cint)
			loaded := ir.NewVReg(cint.Type())
			bb.InsertBefore(insn, ir.NewLoad(global, loaded))
			insn.SetOperand(idx, loaded)
		}
	}
	return nil
}

// globalFor returns the hoisting global for cint, registering a new one
// in the module on first sight. ConstantInt interning makes the map key
// exactly the (type, value) pair.
func (p *ConstantHoisting) globalFor(m *ir.Module, cint *ir.ConstantInt) *ir.GlobalVariable {
	if g, ok := p.globals[cint]; ok {
		return g
	}
	g := ir.NewGlobalVariable(fmt.Sprintf("ci%d", p.next), cint.Type(), cint)
	p.next++
	m.RegisterGlobal(g)
	p.globals[cint] = g
	return g
}
