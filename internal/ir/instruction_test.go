package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOperandFlagsPerForm(t *testing.T) {
	a, b, dst := NewVReg(I32), NewVReg(I32), NewVReg(I32)
	ptr := NewVReg(Pointer)

	for _, tc := range []struct {
		name  string
		insn  *Instruction
		flags []OperandFlags
	}{
		{
			name:  "binop",
			insn:  NewBinOp(OpIAdd, a, b, dst),
			flags: []OperandFlags{OperandRead, OperandRead, OperandWrite},
		},
		{
			name:  "icmp",
			insn:  NewCompare(OpICmpEq, a, b, dst),
			flags: []OperandFlags{OperandRead, OperandRead, OperandWrite},
		},
		{
			name:  "load",
			insn:  NewLoad(ptr, NewVReg(I32)),
			flags: []OperandFlags{OperandRead, OperandWrite},
		},
		{
			name:  "store",
			insn:  NewStore(a, ptr),
			flags: []OperandFlags{OperandRead, OperandRead},
		},
		{
			name:  "stack_alloc",
			insn:  NewStackAlloc(NewVReg(Pointer), I32),
			flags: []OperandFlags{OperandWrite},
		},
		{
			name:  "lea",
			insn:  NewLea(I32, ptr, a, NewVReg(Pointer)),
			flags: []OperandFlags{OperandRead, OperandRead, OperandWrite},
		},
		{
			name:  "set",
			insn:  NewSet(dst, a),
			flags: []OperandFlags{OperandWrite, OperandRead},
		},
		{
			name:  "cast",
			insn:  NewZExt(NewVReg(I8), NewVReg(I32)),
			flags: []OperandFlags{OperandRead, OperandWrite},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, len(tc.flags), tc.insn.CountOperands())
			for i, exp := range tc.flags {
				require.Equal(t, exp, tc.insn.OperandFlags(i), "operand %d", i)
			}
		})
	}
}

func TestLfaCarriesFieldIndex(t *testing.T) {
	st := NamedStruct("lfa_pair", I32, I16)
	insn := NewLfa(st, NewVReg(Pointer), 1, NewVReg(Pointer))
	require.Equal(t, 1, insn.FieldIndex())
	require.Equal(t, st, insn.BaseType())
	require.Equal(t, 2, insn.CountOperands())

	require.Panics(t, func() { NewLfa(st, NewVReg(Pointer), 2, NewVReg(Pointer)) })
}

func TestInvalidIRConstruction(t *testing.T) {
	require.Panics(t, func() {
		NewBinOp(OpIAdd, NewVReg(I32), NewVReg(I64), NewVReg(I32))
	})
	require.Panics(t, func() {
		NewLoad(NewVReg(I32), NewVReg(I32)) // source not a pointer
	})
	require.Panics(t, func() {
		NewCompare(OpICmpLt, NewVReg(I32), NewVReg(I32), NewVReg(I64))
	})
	require.Panics(t, func() {
		NewBinOp(OpLoad, NewVReg(I32), NewVReg(I32), NewVReg(I32))
	})
}

func TestOperandIndexOutOfBounds(t *testing.T) {
	insn := NewSet(NewVReg(I32), NewVReg(I32))
	require.Panics(t, func() { insn.Operand(2) })
	require.Panics(t, func() { insn.SetOperand(5, NewVReg(I32)) })
}

func TestRetForms(t *testing.T) {
	void := NewRet()
	require.False(t, void.HasReturnValue())

	v := NewVReg(I32)
	ret := NewRetValue(v)
	require.True(t, ret.HasReturnValue())
	require.Same(t, v, ret.ReturnValue())

	ret.MakeVoid()
	require.False(t, ret.HasReturnValue())
	require.Empty(t, v.Uses())
}

func TestDeleteFromParentReleasesUses(t *testing.T) {
	bb := NewBasicBlock()
	v := NewVReg(I32)
	insn := bb.Append(NewSet(NewVReg(I32), v))

	require.Len(t, v.Uses(), 1)
	insn.DeleteFromParent()
	require.Empty(t, v.Uses())
	require.True(t, bb.Empty())
}

func TestTerminatorClassification(t *testing.T) {
	require.True(t, OpRet.IsTerminator())
	require.True(t, OpBr.IsTerminator())
	require.True(t, OpCbr.IsTerminator())
	require.True(t, OpArmBeq.IsTerminator())
	require.True(t, OpArmRet.IsTerminator())
	require.False(t, OpLoad.IsTerminator())
	require.False(t, OpArmCmp.IsTerminator())
}

func TestMachineOpcodeRange(t *testing.T) {
	require.False(t, OpIAdd.IsMachine())
	require.False(t, OpCall.IsMachine())
	require.True(t, OpArmMovwi.IsMachine())
	require.True(t, OpArmRet.IsMachine())
}
