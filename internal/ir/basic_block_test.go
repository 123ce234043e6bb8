package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func blockOpcodes(bb *BasicBlock) []Opcode {
	var ops []Opcode
	for i := bb.First(); i != nil; i = i.Next() {
		ops = append(ops, i.Opcode())
	}
	return ops
}

func TestBlockInsertionOrder(t *testing.T) {
	bb := NewBasicBlock()
	v := NewVReg(I32)

	set := bb.Append(NewSet(v, NewConstantInt(I32, 1)))
	bb.Append(NewRet())
	cmp := NewCompare(OpICmpEq, v, v, NewVReg(I32))
	bb.InsertAfter(set, cmp)
	alloc := NewStackAlloc(NewVReg(Pointer), I32)
	bb.Prepend(alloc)

	require.Equal(t, []Opcode{OpStackAlloc, OpSet, OpICmpEq, OpRet}, blockOpcodes(bb))
	require.Equal(t, 4, bb.Len())
	require.Same(t, alloc, bb.First())
	require.Equal(t, OpRet, bb.Last().Opcode())
}

func TestBlockDetachAndReinsert(t *testing.T) {
	a, b := NewBasicBlock(), NewBasicBlock()
	alloc := a.Append(NewStackAlloc(NewVReg(Pointer), I32))
	a.Append(NewRet())

	a.Detach(alloc)
	require.Equal(t, []Opcode{OpRet}, blockOpcodes(a))
	require.Len(t, alloc.AllocDst().Uses(), 1) // operands preserved

	b.Prepend(alloc)
	require.Equal(t, []Opcode{OpStackAlloc}, blockOpcodes(b))
	require.Same(t, b, alloc.Parent())
}

func TestBlockReplace(t *testing.T) {
	bb := NewBasicBlock()
	v := NewVReg(I32)
	old := bb.Append(NewSet(v, NewConstantInt(I32, 3)))
	bb.Append(NewRet())

	repl := NewSet(v, NewConstantInt(I32, 4))
	bb.Replace(old, repl)

	require.Equal(t, []Opcode{OpSet, OpRet}, blockOpcodes(bb))
	require.Same(t, repl, bb.First())
	require.Nil(t, old.Parent())
}

func TestSuccessorsAndPredecessors(t *testing.T) {
	fn := NewFunction(FuncType(Void), "cfg", nil)
	entry, left, right, exit := NewBasicBlock(), NewBasicBlock(), NewBasicBlock(), NewBasicBlock()
	for _, bb := range []*BasicBlock{entry, left, right, exit} {
		fn.Append(bb)
	}

	cond := NewVReg(I32)
	entry.Append(NewSet(cond, NewConstantInt(I32, 0)))
	entry.Append(NewCbr(left, right, cond))
	left.Append(NewBr(exit))
	right.Append(NewBr(exit))
	exit.Append(NewRet())

	require.Equal(t, []*BasicBlock{left, right}, entry.Successors())
	require.Equal(t, []*BasicBlock{exit}, left.Successors())
	require.Empty(t, exit.Successors())

	require.Equal(t, []*BasicBlock{entry}, left.Predecessors())
	require.Equal(t, []*BasicBlock{left, right}, exit.Predecessors())
	require.Empty(t, entry.Predecessors())
}

func TestRemoveBlockInvariants(t *testing.T) {
	fn := NewFunction(FuncType(Void), "rm", nil)
	bb := NewBasicBlock()
	fn.Append(bb)
	bb.Append(NewRet())

	// Non-empty blocks cannot be destroyed.
	require.Panics(t, func() { fn.RemoveBlock(bb) })

	// Referenced blocks cannot be destroyed even when empty.
	other := NewBasicBlock()
	fn.Append(other)
	br := bb.First()
	br.DeleteFromParent()
	branch := other.Append(NewBr(bb))
	require.Panics(t, func() { fn.RemoveBlock(bb) })

	branch.DeleteFromParent()
	fn.RemoveBlock(bb)
	require.Equal(t, 1, fn.CountBlocks())
}

func TestCalculateUsesDefs(t *testing.T) {
	bb := NewBasicBlock()
	in := NewVReg(I32)   // read before any def: upward-exposed use
	local := NewVReg(I32) // defined then read: def only

	bb.Append(NewSet(local, in))
	bb.Append(NewBinOp(OpIAdd, local, local, local))
	bb.Append(NewRet())

	uses, defs := bb.CalculateUsesDefs()
	require.Contains(t, uses, in)
	require.NotContains(t, uses, local)
	require.Contains(t, defs, local)
	require.NotContains(t, defs, in)
}
