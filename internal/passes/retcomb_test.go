package passes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/armlet/armlet/internal/ir"
)

func TestReturnCombineMergesReturns(t *testing.T) {
	_, fn, entry := newTestFunction(t, "two_rets", ir.FuncType(ir.I32, ir.I32), ir.NewVReg(ir.I32))
	left, right := ir.NewBasicBlock(), ir.NewBasicBlock()
	fn.Append(left)
	fn.Append(right)

	entry.Append(ir.NewCbr(left, right, fn.Parameter(0)))
	left.Append(ir.NewRetValue(ir.NewConstantInt(ir.I32, 1)))
	right.Append(ir.NewRetValue(ir.NewConstantInt(ir.I32, 0)))

	require.NoError(t, ReturnCombine{}.RunOnFunction(fn, noTrace))

	// Exactly one ret, in the new tail block.
	rets := ir.CollectInstructions(fn, ir.OpRet)
	require.Len(t, rets, 1)
	tail := fn.TailBlock()
	require.Same(t, tail, rets[0].Parent())

	// The tail loads the return slot and returns it.
	require.Equal(t, []ir.Opcode{ir.OpLoad, ir.OpRet}, opcodes(tail))
	require.True(t, rets[0].HasReturnValue())

	// The return slot is allocated at the head of the entry block.
	require.Equal(t, ir.OpStackAlloc, fn.HeadBlock().First().Opcode())
	require.Equal(t, ir.I32, fn.HeadBlock().First().AllocatedType())

	// Each original ret became store + br.
	require.Equal(t, []ir.Opcode{ir.OpStore, ir.OpBr}, opcodes(left))
	require.Equal(t, []ir.Opcode{ir.OpStore, ir.OpBr}, opcodes(right))
	require.Same(t, tail, left.Last().BranchTarget())
}

func TestReturnCombineVoid(t *testing.T) {
	_, fn, entry := newTestFunction(t, "void_ret", ir.FuncType(ir.Void))
	entry.Append(ir.NewRet())

	require.NoError(t, ReturnCombine{}.RunOnFunction(fn, noTrace))

	require.Equal(t, 2, fn.CountBlocks())
	require.Equal(t, []ir.Opcode{ir.OpBr}, opcodes(fn.HeadBlock()))
	require.Equal(t, []ir.Opcode{ir.OpRet}, opcodes(fn.TailBlock()))
	require.False(t, fn.TailBlock().First().HasReturnValue())
	require.Equal(t, 0, countOpcode(fn, ir.OpStackAlloc))
}
