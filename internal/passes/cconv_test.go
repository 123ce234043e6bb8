package passes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/armlet/armlet/internal/backend/arm"
	"github.com/armlet/armlet/internal/ir"
)

func TestCConvLowersReturnToR0(t *testing.T) {
	_, fn, bb := newTestFunction(t, "ret_r0", ir.FuncType(ir.I32, ir.I32), ir.NewVReg(ir.I32))

	// The shape ReturnCombine leaves behind: store to the slot, branch
	// to the tail, load + ret there.
	bb.Append(ir.NewRetValue(fn.Parameter(0)))
	require.NoError(t, ReturnCombine{}.RunOnFunction(fn, noTrace))

	require.NoError(t, CConv{}.RunOnFunction(fn, noTrace))

	// Return type is now void and the ret carries no value.
	require.True(t, fn.IsVoidReturn())
	rets := ir.CollectInstructions(fn, ir.OpRet)
	require.Len(t, rets, 1)
	require.False(t, rets[0].HasReturnValue())

	// The tail load now writes straight into R0.
	tail := fn.TailBlock()
	load := ir.FindFirst(tail, ir.OpLoad)
	require.NotNil(t, load)
	require.Same(t, arm.PhysReg(arm.R0), load.LoadDst())
}

func TestCConvVoidFunctionUntouched(t *testing.T) {
	_, fn, bb := newTestFunction(t, "void_fn", ir.FuncType(ir.Void))
	bb.Append(ir.NewRet())
	require.NoError(t, ReturnCombine{}.RunOnFunction(fn, noTrace))

	require.NoError(t, CConv{}.RunOnFunction(fn, noTrace))
	require.True(t, fn.IsVoidReturn())
}

func TestCConvRejectsWideReturns(t *testing.T) {
	_, fn, bb := newTestFunction(t, "wide", ir.FuncType(ir.I64))
	v := ir.NewVReg(ir.I64)
	bb.Append(ir.NewSet(v, ir.NewConstantInt(ir.I64, 1)))
	bb.Append(ir.NewRetValue(v))
	require.NoError(t, ReturnCombine{}.RunOnFunction(fn, noTrace))

	err := CConv{}.RunOnFunction(fn, noTrace)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")
}
