package passes

import (
	"github.com/pkg/errors"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
	"github.com/armlet/armlet/internal/backend/arm"
)

// LegaliseStructs replaces each load of a struct value whose result
// feeds stores with memberwise copies: for every field, compute the
// source and destination field addresses and move the field through a
// scalar register.
type LegaliseStructs struct{}

// Name implements Pass.Name.
func (LegaliseStructs) Name() string { return "structslegal" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (LegaliseStructs) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	type loadStores struct {
		load   *ir.Instruction
		stores []*ir.Instruction
	}
	var work []loadStores

	for _, bb := range fn.Blocks() {
		for i := bb.First(); i != nil; i = i.Next() {
			if i.Opcode() != ir.OpLoad || !ir.IsStruct(i.LoadDst().Type()) {
				continue
			}
			ls := loadStores{load: i}
			usedInRet := false
			for _, use := range i.LoadDst().Uses() {
				switch use.User.Opcode() {
				case ir.OpStore:
					ls.stores = append(ls.stores, use.User)
				case ir.OpRet:
					usedInRet = true
				}
			}
			if usedInRet {
				// Struct returns are left to CConv, which rejects
				// those wider than 4 bytes.
				continue
			}
			if len(ls.stores) == 0 {
				return errors.Errorf("%s: struct load with no consuming store", fn.Name())
			}
			work = append(work, ls)
		}
	}

	for _, ls := range work {
		srcPtr := ls.load.LoadSrc()
		structType := ls.load.LoadDst().Type().(*ir.StructType)
		for _, store := range ls.stores {
			copyStruct(srcPtr, store.StoreDst(), structType, store)
			store.DeleteFromParent()
		}
		ls.load.DeleteFromParent()
	}
	return nil
}

// copyStruct emits the memberwise copy before `where` is deleted,
// inserting after it so field order is preserved.
func copyStruct(src, dst ir.Value, structType *ir.StructType, where *ir.Instruction) {
	bb := where.Parent()
	pos := where
	for fieldIndex, fieldType := range structType.Fields() {
		srcField := ir.NewVReg(ir.Pointer)
		dstField := ir.NewVReg(ir.Pointer)
		tmp := ir.NewVReg(fieldType)

		pos = bb.InsertAfter(pos, ir.NewLfa(structType, src, fieldIndex, srcField))
		pos = bb.InsertAfter(pos, ir.NewLfa(structType, dst, fieldIndex, dstField))
		pos = bb.InsertAfter(pos, ir.NewLoad(srcField, tmp))
		pos = bb.InsertAfter(pos, ir.NewStore(tmp, dstField))
	}
}

// LowerStructStackAllocation rewrites stack allocations of struct type
// to allocate a byte array of the struct's ARM size instead, erasing
// field structure before register allocation sizes the frame.
type LowerStructStackAllocation struct{}

// Name implements Pass.Name.
func (LowerStructStackAllocation) Name() string { return "lowerallocastructs" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (LowerStructStackAllocation) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	for _, bb := range fn.Blocks() {
		for i := bb.First(); i != nil; i = i.Next() {
			if i.Opcode() != ir.OpStackAlloc {
				continue
			}
			if st, ok := i.AllocatedType().(*ir.StructType); ok {
				size := arm.TypeSize(st)
				i.SetAllocatedType(ir.ArrayOf(ir.I8, size))
			}
		}
	}
	return nil
}
