package passes

import (
	"github.com/armlet/armlet/internal/backend/arm"
	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
	"github.com/armlet/armlet/internal/logging"
)

// GenericLowering decomposes the remaining high-level address and
// arithmetic forms into primitive integer arithmetic: lea and lfa
// become ptrtoint/mul/add/inttoptr chains, and the remainder ops become
// div/mul/sub sequences (signedness preserved).
type GenericLowering struct{}

// Name implements Pass.Name.
func (GenericLowering) Name() string { return "genlower" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (GenericLowering) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	var worklist []*ir.Instruction
	for _, bb := range fn.Blocks() {
		for i := bb.First(); i != nil; i = i.Next() {
			switch i.Opcode() {
			case ir.OpLea, ir.OpLfa, ir.OpISRem, ir.OpIURem:
				worklist = append(worklist, i)
			}
		}
	}
	logging.Debugf(logging.GenLower, "%s: %d instructions require lowering", fn.Name(), len(worklist))

	for _, insn := range worklist {
		switch insn.Opcode() {
		case ir.OpLea:
			lowerLea(insn)
		case ir.OpLfa:
			lowerLfa(insn)
		case ir.OpISRem, ir.OpIURem:
			lowerIRem(insn)
		}
	}
	return nil
}

// lowerLea rewrites `lea [T*], p, idx, out` into
// `ptrtoint p; imul idx, sizeof(T); iadd; inttoptr`.
func lowerLea(insn *ir.Instruction) {
	bb := insn.Parent()

	ptrInt := ir.NewVReg(ir.I32)
	offset := ir.NewVReg(ir.I32)
	address := ir.NewVReg(ir.I32)
	result := ir.NewVReg(ir.Pointer)

	elementSize := ir.NewConstantInt(ir.I32, uint64(arm.TypeSize(insn.BaseType())))

	pos := insn
	pos = bb.InsertAfter(pos, ir.NewPtrToInt(insn.Operand(0), ptrInt))
	pos = bb.InsertAfter(pos, ir.NewBinOp(ir.OpIMul, insn.Operand(1), elementSize, offset))
	pos = bb.InsertAfter(pos, ir.NewBinOp(ir.OpIAdd, ptrInt, offset, address))
	bb.InsertAfter(pos, ir.NewIntToPtr(address, result))

	ir.ReplaceAllUsesWith(insn.Operand(2), result)
	insn.DeleteFromParent()
}

// lowerLfa rewrites `lfa [S:i], p, out` into `ptrtoint p; iadd offset;
// inttoptr` where offset is the sum of the sizes of fields 0..i-1.
func lowerLfa(insn *ir.Instruction) {
	bb := insn.Parent()
	structType := insn.BaseType().(*ir.StructType)

	offsetValue := 0
	for i := 0; i < insn.FieldIndex(); i++ {
		offsetValue += arm.TypeSize(structType.Field(i))
	}

	ptrInt := ir.NewVReg(ir.I32)
	address := ir.NewVReg(ir.I32)
	result := ir.NewVReg(ir.Pointer)
	offset := ir.NewConstantInt(ir.I32, uint64(offsetValue))

	pos := insn
	pos = bb.InsertAfter(pos, ir.NewPtrToInt(insn.Operand(0), ptrInt))
	pos = bb.InsertAfter(pos, ir.NewBinOp(ir.OpIAdd, ptrInt, offset, address))
	bb.InsertAfter(pos, ir.NewIntToPtr(address, result))

	ir.ReplaceAllUsesWith(insn.Operand(1), result)
	insn.DeleteFromParent()
}

// lowerIRem rewrites `a % b` as `a - ((a / b) * b)`, keeping the
// division's signedness.
func lowerIRem(insn *ir.Instruction) {
	bb := insn.Parent()
	lhs, rhs, dst := insn.BinOpLHS(), insn.BinOpRHS(), insn.BinOpResult()
	operandType := lhs.Type()

	divop := ir.OpIUDiv
	if insn.Opcode() == ir.OpISRem {
		divop = ir.OpISDiv
	}

	t0 := ir.NewVReg(operandType)
	t1 := ir.NewVReg(operandType)

	pos := insn
	pos = bb.InsertAfter(pos, ir.NewBinOp(divop, lhs, rhs, t0))
	pos = bb.InsertAfter(pos, ir.NewBinOp(ir.OpIMul, t0, rhs, t1))
	bb.InsertAfter(pos, ir.NewBinOp(ir.OpISub, lhs, t1, dst))

	insn.DeleteFromParent()
}
