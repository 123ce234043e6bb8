package passes

import (
	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

// Mem2Reg promotes stack slots to virtual registers. A slot is
// promotable when its allocated type is integer or pointer and its only
// users are loads and stores of the slot address; loads become uses of
// a single fresh register and stores become set instructions assigning
// to it. Aggregate or address-taken slots stay in memory.
type Mem2Reg struct{}

// Name implements Pass.Name.
func (Mem2Reg) Name() string { return "mem2reg" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (Mem2Reg) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	head := fn.HeadBlock()
	if head == nil {
		return nil
	}

	var allocs []*ir.Instruction
	for i := head.First(); i != nil; i = i.Next() {
		if i.Opcode() == ir.OpStackAlloc {
			allocs = append(allocs, i)
		}
	}

	var promotable []*ir.Instruction
	for _, alloc := range allocs {
		ptr := alloc.AllocDst()

		if len(ptr.Uses()) == 0 {
			promotable = append(promotable, alloc)
			continue
		}
		t := alloc.AllocatedType()
		if !ir.IsIntegral(t) && !ir.IsPointer(t) {
			continue
		}

		ok := true
		for _, use := range ptr.Uses() {
			if use.User == alloc {
				continue
			}
			if use.User.Opcode() != ir.OpLoad && use.User.Opcode() != ir.OpStore {
				ok = false
			}
			// A store OF the slot address (rather than to it) takes the
			// address; the slot must stay in memory.
			if use.User.Opcode() == ir.OpStore && use.Index == 0 {
				ok = false
			}
		}
		if ok {
			promotable = append(promotable, alloc)
		}
	}

	for _, alloc := range promotable {
		ptr := alloc.AllocDst()
		replacement := ir.NewVReg(alloc.AllocatedType())

		var kill []*ir.Instruction
		for _, use := range append([]ir.Use(nil), ptr.Uses()...) {
			user := use.User
			switch user.Opcode() {
			case ir.OpLoad:
				kill = append(kill, user)
				ir.ReplaceAllUsesWith(user.LoadDst(), replacement)
			case ir.OpStore:
				kill = append(kill, user)
				set := ir.NewSet(replacement, user.StoreSrc())
				user.Parent().InsertBefore(user, set)
			}
		}
		for _, insn := range kill {
			insn.DeleteFromParent()
		}
		alloc.DeleteFromParent()
	}
	return nil
}
