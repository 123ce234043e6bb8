package passes

import (
	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

// ReturnCombine rewrites a function to have exactly one exit block.
// Non-void functions get a stack slot for the return value: every
// original `ret v` becomes `store v, slot; br exit` and the exit block
// loads the slot and returns it. Void functions just branch to an exit
// block holding the lone ret.
type ReturnCombine struct{}

// Name implements Pass.Name.
func (ReturnCombine) Name() string { return "retcomb" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (ReturnCombine) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	returns := ir.CollectInstructions(fn, ir.OpRet)

	// Always create the tail block, even for a single-ret function:
	// later passes assume an epilogue block exists.
	tail := ir.NewBasicBlock()
	fn.Append(tail)

	var slot *ir.VirtualRegisterName
	if !fn.IsVoidReturn() {
		returnType := fn.ReturnType()
		slot = ir.NewVReg(ir.Pointer)
		fn.HeadBlock().Prepend(ir.NewStackAlloc(slot, returnType))

		loaded := ir.NewVReg(returnType)
		tail.Append(ir.NewLoad(slot, loaded))
		tail.Append(ir.NewRetValue(loaded))
	} else {
		tail.Append(ir.NewRet())
	}

	for _, ret := range returns {
		bb := ret.Parent()
		pos := ret
		if ret.HasReturnValue() {
			pos = bb.InsertAfter(pos, ir.NewStore(ret.ReturnValue(), slot))
		}
		bb.InsertAfter(pos, ir.NewBr(tail))
		ret.DeleteFromParent()
	}
	return nil
}
