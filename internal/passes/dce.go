package passes

import (
	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

// DCE deletes every instruction whose written operand has no read
// users. A single sweep suffices: no later pass in the pipeline
// introduces new dead writes before the backend takes over.
type DCE struct{}

// Name implements Pass.Name.
func (DCE) Name() string { return "dce" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (DCE) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	var kill []*ir.Instruction
	for _, bb := range fn.Blocks() {
		for i := bb.First(); i != nil; i = i.Next() {
			for idx := 0; idx < i.CountOperands(); idx++ {
				if !i.OperandHasFlags(idx, ir.OperandWrite) {
					continue
				}
				if ir.CountReadUsers(i.Operand(idx)) == 0 {
					kill = append(kill, i)
					break
				}
			}
		}
	}
	for _, insn := range kill {
		insn.DeleteFromParent()
	}
	return nil
}
