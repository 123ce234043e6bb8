package passes

import (
	"github.com/pkg/errors"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

// GenericLegalizer rewrites constructs later stages refuse to see:
// stores of constant aggregates become elementwise lea/lfa + store
// chains, and stack allocations outside the entry block are hoisted to
// its front. Repeats until neither rule fires.
type GenericLegalizer struct{}

// Name implements Pass.Name.
func (GenericLegalizer) Name() string { return "genlegal" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (GenericLegalizer) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	if fn.CountBlocks() == 0 {
		return errors.New("function must have at least one basic block")
	}

	for {
		var illegalStores []*ir.Instruction
		var illegalAllocs []*ir.Instruction

		for _, bb := range fn.Blocks() {
			for i := bb.First(); i != nil; i = i.Next() {
				switch i.Opcode() {
				case ir.OpStore:
					switch i.StoreSrc().(type) {
					case *ir.ConstantArray, *ir.ConstantStruct:
						illegalStores = append(illegalStores, i)
					}
				case ir.OpStackAlloc:
					if bb != fn.HeadBlock() {
						illegalAllocs = append(illegalAllocs, i)
					}
				}
			}
		}

		for _, store := range illegalStores {
			if err := legaliseStore(store); err != nil {
				return err
			}
		}

		head := fn.HeadBlock()
		for _, alloc := range illegalAllocs {
			alloc.Parent().Detach(alloc)
			head.Prepend(alloc)
		}

		if len(illegalStores) == 0 && len(illegalAllocs) == 0 {
			return nil
		}
	}
}

func legaliseStore(store *ir.Instruction) error {
	src, dst := store.StoreSrc(), store.StoreDst()
	bb := store.Parent()

	switch c := src.(type) {
	case *ir.ConstantArray:
		arrayType := c.Type().(*ir.ArrayType)
		where := store
		for idx, elem := range c.Values() {
			ptr := ir.NewVReg(ir.Pointer)
			index := ir.NewConstantInt(ir.I32, uint64(idx))
			where = bb.InsertAfter(where, ir.NewLea(arrayType.Element(), dst, index, ptr))
			where = bb.InsertAfter(where, ir.NewStore(elem, ptr))
		}
	case *ir.ConstantStruct:
		structType := c.Type().(*ir.StructType)
		where := store
		for idx, field := range c.Values() {
			ptr := ir.NewVReg(ir.Pointer)
			where = bb.InsertAfter(where, ir.NewLfa(structType, dst, idx, ptr))
			where = bb.InsertAfter(where, ir.NewStore(field, ptr))
		}
	default:
		return errors.Errorf("cannot legalise store of %T", src)
	}

	store.DeleteFromParent()
	return nil
}
