package passes

import (
	"github.com/pkg/errors"

	"github.com/armlet/armlet/internal/backend/arm"
	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

// CConv lowers the single combined return to the platform ABI: the
// return value moves to R0, the ret loses its operand and the function
// type is rewritten to return void. ReturnCombine must already have
// run. Return values wider than 4 bytes are not supported.
type CConv struct{}

// Name implements Pass.Name.
func (CConv) Name() string { return "cconv" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (CConv) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	tail := fn.TailBlock()
	if tail == nil {
		return nil
	}
	ret := ir.FindFirst(tail, ir.OpRet)
	if ret == nil {
		return errors.Errorf("%s: no return in the tail block", fn.Name())
	}
	if !ret.HasReturnValue() {
		return nil
	}

	r0 := arm.PhysReg(arm.R0)
	returnValue := ret.ReturnValue()
	if arm.TypeSize(returnValue.Type()) > arm.TypeSize(r0.Type()) {
		return errors.Errorf("unsupported: %s returns a value wider than 4 bytes", fn.Name())
	}

	ir.ReplaceAllUsesWith(returnValue, r0)
	ret.MakeVoid()

	fn.SetType(fn.FunctionType().CopyWithReturnType(ir.Void))
	return nil
}
