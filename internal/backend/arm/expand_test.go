package arm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

var noTrace = &pass.RunInformation{}

func newExpandFunction(t *testing.T, name string, typ *ir.FunctionType, params ...ir.Value) (*ir.Function, *ir.BasicBlock) {
	t.Helper()
	fn := ir.NewFunction(typ, name, params)
	bb := ir.NewBasicBlock()
	fn.Append(bb)
	return fn, bb
}

func opcodes(bb *ir.BasicBlock) []ir.Opcode {
	var ops []ir.Opcode
	for i := bb.First(); i != nil; i = i.Next() {
		ops = append(ops, i.Opcode())
	}
	return ops
}

func TestExpandBinOps(t *testing.T) {
	for _, tc := range []struct {
		hlir ir.Opcode
		mir  ir.Opcode
	}{
		{hlir: ir.OpIAdd, mir: ir.OpArmAdd},
		{hlir: ir.OpISub, mir: ir.OpArmSub},
		{hlir: ir.OpIMul, mir: ir.OpArmMul},
		{hlir: ir.OpISDiv, mir: ir.OpArmSdiv},
		{hlir: ir.OpIUDiv, mir: ir.OpArmUdiv},
		{hlir: ir.OpAnd, mir: ir.OpArmAnd},
		{hlir: ir.OpOr, mir: ir.OpArmOrr},
		{hlir: ir.OpXor, mir: ir.OpArmEor},
		{hlir: ir.OpShl, mir: ir.OpArmLsl},
		{hlir: ir.OpShr, mir: ir.OpArmLsr},
	} {
		t.Run(tc.hlir.String(), func(t *testing.T) {
			fn, bb := newExpandFunction(t, "binop", ir.FuncType(ir.Void, ir.I32, ir.I32),
				ir.NewVReg(ir.I32), ir.NewVReg(ir.I32))
			a, b := fn.Parameter(0), fn.Parameter(1)
			dst := ir.NewVReg(ir.I32)
			bb.Append(ir.NewBinOp(tc.hlir, a, b, dst))
			bb.Append(ir.NewSet(ir.NewVReg(ir.I32), dst)) // keep dst read
			bb.Append(ir.NewRet())

			require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))

			require.Equal(t, tc.mir, bb.First().Opcode())
			require.Same(t, a, bb.First().Operand(0))
			require.Same(t, b, bb.First().Operand(1))
			require.Same(t, dst, bb.First().Operand(2))
		})
	}
}

func TestExpandFusesICmpWithCbr(t *testing.T) {
	fn, entry := newExpandFunction(t, "fuse", ir.FuncType(ir.Void, ir.I32), ir.NewVReg(ir.I32))
	trueBB, falseBB := ir.NewBasicBlock(), ir.NewBasicBlock()
	fn.Append(trueBB)
	fn.Append(falseBB)
	trueBB.Append(ir.NewRet())
	falseBB.Append(ir.NewRet())

	zero := ir.NewVReg(ir.I32)
	cond := ir.NewVReg(ir.I32)
	entry.Append(ir.NewSet(zero, ir.NewConstantInt(ir.I32, 0)))
	entry.Append(ir.NewCompare(ir.OpICmpEq, fn.Parameter(0), zero, cond))
	entry.Append(ir.NewCbr(trueBB, falseBB, cond))

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))

	// icmp_eq + cbr fuse into cmp; beq true; b false.
	require.Equal(t, []ir.Opcode{ir.OpArmMovi, ir.OpArmCmp, ir.OpArmBeq, ir.OpArmB}, opcodes(entry))

	beq := entry.First().Next().Next()
	require.Same(t, trueBB, beq.Operand(0).(*ir.BlockBranchTarget).Block())
	require.Same(t, falseBB, entry.Last().Operand(0).(*ir.BlockBranchTarget).Block())
}

func TestExpandStandaloneICmp(t *testing.T) {
	fn, bb := newExpandFunction(t, "standalone", ir.FuncType(ir.Void, ir.I32, ir.I32),
		ir.NewVReg(ir.I32), ir.NewVReg(ir.I32))

	result := ir.NewVReg(ir.I32)
	bb.Append(ir.NewCompare(ir.OpICmpLt, fn.Parameter(0), fn.Parameter(1), result))
	bb.Append(ir.NewSet(ir.NewVReg(ir.I32), result))
	bb.Append(ir.NewRet())

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))

	// cmp lhs, rhs; mov result, #0; movwlt result, #1.
	require.Equal(t, []ir.Opcode{ir.OpArmCmp, ir.OpArmMovi, ir.OpArmMovwlti, ir.OpArmMov, ir.OpArmRet}, opcodes(bb))

	movi := bb.First().Next()
	require.Equal(t, uint64(0), movi.Operand(1).(*ir.ConstantInt).Value())
	cmov := movi.Next()
	require.Same(t, result, cmov.Operand(0))
	require.Equal(t, uint64(1), cmov.Operand(1).(*ir.ConstantInt).Value())
}

func TestExpandUnfusedCbr(t *testing.T) {
	fn, entry := newExpandFunction(t, "unfused", ir.FuncType(ir.Void, ir.I32), ir.NewVReg(ir.I32))
	trueBB, falseBB := ir.NewBasicBlock(), ir.NewBasicBlock()
	fn.Append(trueBB)
	fn.Append(falseBB)
	trueBB.Append(ir.NewRet())
	falseBB.Append(ir.NewRet())

	entry.Append(ir.NewCbr(trueBB, falseBB, fn.Parameter(0)))

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))

	// cmp cond, #1; bge true; b false.
	require.Equal(t, []ir.Opcode{ir.OpArmCmpi, ir.OpArmBge, ir.OpArmB}, opcodes(entry))
	cmpi := entry.First()
	require.Same(t, fn.Parameter(0), cmpi.Operand(0))
	require.Equal(t, uint64(1), cmpi.Operand(1).(*ir.ConstantInt).Value())
}

func TestExpandLoadVariants(t *testing.T) {
	for _, tc := range []struct {
		typ ir.Type
		exp ir.Opcode
	}{
		{typ: ir.I8, exp: ir.OpArmLdrb},
		{typ: ir.I16, exp: ir.OpArmLdrh},
		{typ: ir.I32, exp: ir.OpArmLdr},
	} {
		t.Run(tc.typ.String(), func(t *testing.T) {
			fn, bb := newExpandFunction(t, "load", ir.FuncType(ir.Void, ir.Pointer), ir.NewVReg(ir.Pointer))
			dst := ir.NewVReg(tc.typ)
			bb.Append(ir.NewLoad(fn.Parameter(0), dst))
			bb.Append(ir.NewRet())

			require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))
			require.Equal(t, []ir.Opcode{tc.exp, ir.OpArmRet}, opcodes(bb))
		})
	}
}

func TestExpandLoadFusesSignExtension(t *testing.T) {
	fn, bb := newExpandFunction(t, "sext_load", ir.FuncType(ir.Void, ir.Pointer), ir.NewVReg(ir.Pointer))

	narrow := ir.NewVReg(ir.I8)
	wide := ir.NewVReg(ir.I32)
	bb.Append(ir.NewLoad(fn.Parameter(0), narrow))
	bb.Append(ir.NewSExt(narrow, wide))
	bb.Append(ir.NewSet(ir.NewVReg(ir.I32), wide))
	bb.Append(ir.NewRet())

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))

	// The cast dissolved into a sign-extending load and the destination
	// became a full register.
	require.Equal(t, []ir.Opcode{ir.OpArmLdrsb, ir.OpArmMov, ir.OpArmRet}, opcodes(bb))
	require.Equal(t, ir.I32, narrow.Type())

	// The former sext users now read the load result directly.
	mov := bb.First().Next()
	require.Same(t, narrow, mov.Operand(1))
}

func TestExpandLoadFusesZeroExtension(t *testing.T) {
	fn, bb := newExpandFunction(t, "zext_load", ir.FuncType(ir.Void, ir.Pointer), ir.NewVReg(ir.Pointer))

	narrow := ir.NewVReg(ir.I16)
	wide := ir.NewVReg(ir.I32)
	bb.Append(ir.NewLoad(fn.Parameter(0), narrow))
	bb.Append(ir.NewZExt(narrow, wide))
	bb.Append(ir.NewSet(ir.NewVReg(ir.I32), wide))
	bb.Append(ir.NewRet())

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))

	// Plain ldrh zero-extends already.
	require.Equal(t, []ir.Opcode{ir.OpArmLdrh, ir.OpArmMov, ir.OpArmRet}, opcodes(bb))
}

func TestExpandLoadFromGlobal(t *testing.T) {
	g := ir.NewGlobalVariable("expand_g", ir.I32, nil)
	fn, bb := newExpandFunction(t, "load_global", ir.FuncType(ir.Void))
	dst := ir.NewVReg(ir.I32)
	bb.Append(ir.NewLoad(g, dst))
	bb.Append(ir.NewSet(ir.NewVReg(ir.I32), dst))
	bb.Append(ir.NewRet())

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))

	// movw/movt materialise the address, then the load goes through it.
	require.Equal(t, []ir.Opcode{ir.OpArmMovwGl16, ir.OpArmMovtGu16, ir.OpArmLdr, ir.OpArmMov, ir.OpArmRet}, opcodes(bb))

	movw := bb.First()
	movt := movw.Next()
	ldr := movt.Next()
	require.Same(t, g, movw.Operand(1))
	require.Same(t, g, movt.Operand(1))
	require.Same(t, movw.Operand(0), ldr.Operand(1))
}

func TestExpandStoreVariants(t *testing.T) {
	for _, tc := range []struct {
		typ ir.Type
		exp ir.Opcode
	}{
		{typ: ir.I8, exp: ir.OpArmStrb},
		{typ: ir.I16, exp: ir.OpArmStrh},
		{typ: ir.I32, exp: ir.OpArmStr},
	} {
		t.Run(tc.typ.String(), func(t *testing.T) {
			fn, bb := newExpandFunction(t, "store", ir.FuncType(ir.Void, ir.Pointer), ir.NewVReg(ir.Pointer))
			src := ir.NewVReg(tc.typ)
			bb.Append(ir.NewStore(src, fn.Parameter(0)))
			bb.Append(ir.NewRet())

			require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))
			require.Equal(t, []ir.Opcode{tc.exp, ir.OpArmRet}, opcodes(bb))
		})
	}
}

func TestExpandStoreToGlobal(t *testing.T) {
	g := ir.NewGlobalVariable("expand_sg", ir.I32, nil)
	fn, bb := newExpandFunction(t, "store_global", ir.FuncType(ir.Void, ir.I32), ir.NewVReg(ir.I32))
	bb.Append(ir.NewStore(fn.Parameter(0), g))
	bb.Append(ir.NewRet())

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))
	require.Equal(t, []ir.Opcode{ir.OpArmMovwGl16, ir.OpArmMovtGu16, ir.OpArmStr, ir.OpArmRet}, opcodes(bb))
}

func TestExpandPtrToIntOfGlobal(t *testing.T) {
	g := ir.NewGlobalVariable("expand_pg", ir.I32, nil)
	fn, bb := newExpandFunction(t, "ptrtoint_global", ir.FuncType(ir.Void))
	dst := ir.NewVReg(ir.I32)
	bb.Append(ir.NewPtrToInt(g, dst))
	bb.Append(ir.NewSet(ir.NewVReg(ir.I32), dst))
	bb.Append(ir.NewRet())

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))
	require.Equal(t, []ir.Opcode{ir.OpArmMovwGl16, ir.OpArmMovtGu16, ir.OpArmMov, ir.OpArmRet}, opcodes(bb))
}

func TestExpandRegisterCastsDissolve(t *testing.T) {
	fn, bb := newExpandFunction(t, "casts", ir.FuncType(ir.Void, ir.Pointer), ir.NewVReg(ir.Pointer))

	asInt := ir.NewVReg(ir.I32)
	bb.Append(ir.NewPtrToInt(fn.Parameter(0), asInt))
	bb.Append(ir.NewSet(ir.NewVReg(ir.I32), asInt))
	bb.Append(ir.NewRet())

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))

	// ptrtoint between registers is free: the set reads the pointer.
	require.Equal(t, []ir.Opcode{ir.OpArmMov, ir.OpArmRet}, opcodes(bb))
	require.Same(t, fn.Parameter(0), bb.First().Operand(1))
}

func TestExpandSetForms(t *testing.T) {
	fn, bb := newExpandFunction(t, "sets", ir.FuncType(ir.Void, ir.I32), ir.NewVReg(ir.I32))
	a := ir.NewVReg(ir.I32)
	b := ir.NewVReg(ir.I32)
	bb.Append(ir.NewSet(a, fn.Parameter(0)))
	bb.Append(ir.NewSet(b, ir.NewConstantInt(ir.I32, 3)))
	bb.Append(ir.NewRet())

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))
	require.Equal(t, []ir.Opcode{ir.OpArmMov, ir.OpArmMovi, ir.OpArmRet}, opcodes(bb))
}

func TestExpandStackAllocSurvives(t *testing.T) {
	fn, bb := newExpandFunction(t, "alloca", ir.FuncType(ir.Void))
	bb.Append(ir.NewStackAlloc(ir.NewVReg(ir.Pointer), ir.I32))
	bb.Append(ir.NewRet())

	require.NoError(t, MachineExpander{}.RunOnFunction(fn, noTrace))
	require.Equal(t, []ir.Opcode{ir.OpStackAlloc, ir.OpArmRet}, opcodes(bb))
}

func TestExpandRejectsCalls(t *testing.T) {
	callee := ir.NewFunction(ir.FuncType(ir.Void), "callee", nil)
	fn, bb := newExpandFunction(t, "caller", ir.FuncType(ir.Void))
	bb.Append(ir.NewCall(callee, ir.NewUndef(ir.Void), nil))
	bb.Append(ir.NewRet())

	err := MachineExpander{}.RunOnFunction(fn, noTrace)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")
}

func TestExpandRejectsValueReturn(t *testing.T) {
	fn, bb := newExpandFunction(t, "bad_ret", ir.FuncType(ir.I32))
	bb.Append(ir.NewRetValue(ir.NewVReg(ir.I32)))

	err := MachineExpander{}.RunOnFunction(fn, noTrace)
	require.Error(t, err)
}
