package regalloc

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/armlet/armlet/internal/backend/arm"
	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/logging"
	"github.com/armlet/armlet/internal/pass"
)

// LinearScan is the register allocation pass: it runs liveness, builds
// intervals, walks them in start order assigning registers from the
// fixed pool (when the pool is full, the furthest-ending active interval
// is spilled if the current one ends sooner, otherwise the current one
// is), then rewrites every virtual register reference and materialises
// the stack frame.
type LinearScan struct {
	// TraceWriter receives the interval analysis trace when the run is
	// flagged with TestTrace. Defaults to stdout.
	TraceWriter io.Writer
}

// Name implements Pass.Name.
func (*LinearScan) Name() string { return "regalloc" }

// RunOnFunction implements FunctionPass.RunOnFunction.
func (ra *LinearScan) RunOnFunction(fn *ir.Function, info *pass.RunInformation) error {
	fn.RunLivenessAnalysis()

	intervals := ComputeIntervals(fn)
	if info.TestTrace {
		ra.printIntervalTrace(fn, intervals)
	}

	var frame StackFrame

	// Stack slots for the surviving stack allocations, in program order.
	type allocSlot struct {
		insn   *ir.Instruction
		offset int
	}
	var allocSlots []allocSlot
	if head := fn.HeadBlock(); head != nil {
		for i := head.First(); i != nil; i = i.Next() {
			if i.Opcode() == ir.OpStackAlloc {
				offset := frame.Allocate(arm.TypeSize(i.AllocatedType()))
				allocSlots = append(allocSlots, allocSlot{insn: i, offset: offset})
			}
		}
	}

	sorted := make([]*Interval, 0, len(intervals))
	for _, iv := range intervals {
		sorted = append(sorted, iv)
	}
	// Stable order: by start index, then by register creation order.
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].Reg.Seq() < sorted[j].Reg.Seq()
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	allocate(sorted, &frame)

	frameSize := frame.AlignedSize(8)

	// Rewrite virtual registers to their physical homes, injecting
	// spill code around spilled references.
	assigned := map[*ir.VirtualRegisterName]*Interval{}
	for _, iv := range sorted {
		assigned[iv.Reg] = iv
	}
	if err := rewrite(fn, assigned, frameSize); err != nil {
		return err
	}

	// Surviving stack allocations become frame address arithmetic.
	sp := arm.PhysReg(arm.SP)
	for _, slot := range allocSlots {
		dst := slot.insn.AllocDst()
		offset := ir.NewConstantInt(ir.I32, uint64(frameSize-slot.offset))
		slot.insn.Parent().Replace(slot.insn, arm.NewAddR32I32(sp, offset, dst))
	}

	// Frame setup and teardown around the function body.
	sizeConstant := ir.NewConstantInt(ir.I32, uint64(frameSize))
	head, tail := fn.HeadBlock(), fn.TailBlock()
	head.Prepend(arm.NewSubR32I32(sp, sizeConstant, sp))
	tail.InsertBefore(tail.Last(), arm.NewAddR32I32(sp, sizeConstant, sp))

	logging.Debugf(logging.RegAlloc, "%s: %d intervals, frame size %d", fn.Name(), len(sorted), frameSize)
	return nil
}

// allocate runs the linear scan proper over start-sorted intervals.
func allocate(sorted []*Interval, frame *StackFrame) {
	pool := arm.AllocatableRegs()
	free := append([]*ir.PhysicalRegisterName(nil), pool...)
	var active []*Interval

	sortActive := func() {
		sort.Slice(active, func(i, j int) bool {
			if active[i].End == active[j].End {
				return active[i].Reg.Seq() < active[j].Reg.Seq()
			}
			return active[i].End.Before(active[j].End)
		})
	}

	for _, current := range sorted {
		// Expire: return the registers of intervals that ended before
		// this one starts.
		keep := active[:0]
		for _, a := range active {
			if a.End.Before(current.Start) {
				free = append(free, a.phys)
				continue
			}
			keep = append(keep, a)
		}
		active = keep
		sortActive()
		// Keep the free list in pool order so allocation is stable.
		sort.Slice(free, func(i, j int) bool { return free[i].ID() < free[j].ID() })

		if len(active) >= len(pool) {
			// Spill: the active interval ending furthest away loses its
			// register if the current interval ends sooner.
			spill := active[len(active)-1]
			if current.End.Before(spill.End) {
				current.phys = spill.phys
				spill.phys = nil
				spill.spilled = true
				spill.slotOffset = frame.Allocate(arm.TypeSize(spill.Reg.Type()))
				active[len(active)-1] = current
			} else {
				current.spilled = true
				current.slotOffset = frame.Allocate(arm.TypeSize(current.Reg.Type()))
			}
			sortActive()
			continue
		}

		current.phys = free[0]
		free = free[1:]
		active = append(active, current)
		sortActive()
	}
}

// rewrite replaces virtual-register operands with physical registers.
// Spilled registers load before each read and store after each write,
// through the reserved scratch pair.
func rewrite(fn *ir.Function, assigned map[*ir.VirtualRegisterName]*Interval, frameSize int) error {
	sp := arm.PhysReg(arm.SP)
	dataScratch, addrScratch := arm.SpillScratchRegs()

	for _, bb := range fn.Blocks() {
		for i := bb.First(); i != nil; i = i.Next() {
			scratches := []*ir.PhysicalRegisterName{dataScratch, addrScratch}

			for idx := 0; idx < i.CountOperands(); idx++ {
				vreg, ok := i.Operand(idx).(*ir.VirtualRegisterName)
				if !ok {
					continue
				}
				iv, found := assigned[vreg]
				if !found {
					return errors.Errorf("%s: no interval for a surviving virtual register", fn.Name())
				}

				if !iv.spilled {
					i.SetOperand(idx, iv.phys)
					continue
				}

				offset := ir.NewConstantInt(ir.I32, uint64(frameSize-iv.slotOffset))
				switch {
				case i.OperandHasFlags(idx, ir.OperandRead):
					if len(scratches) == 0 {
						return errors.Errorf("%s: out of spill scratch registers", fn.Name())
					}
					scratch := scratches[0]
					scratches = scratches[1:]
					// Reload through the scratch register itself.
					bb.InsertBefore(i, arm.NewAddR32I32(sp, offset, scratch))
					bb.InsertBefore(i, ir.NewMachineInstr(ir.OpArmLdr, scratch, scratch))
					i.SetOperand(idx, scratch)
				case i.OperandHasFlags(idx, ir.OperandWrite):
					i.SetOperand(idx, dataScratch)
					store := ir.NewMachineInstr(ir.OpArmStr, dataScratch, addrScratch)
					bb.InsertAfter(i, store)
					bb.InsertAfter(i, arm.NewAddR32I32(sp, offset, addrScratch))
				}
			}
		}
	}
	return nil
}

// printIntervalTrace dumps the function and its intervals in a stable
// order for golden tests.
func (ra *LinearScan) printIntervalTrace(fn *ir.Function, intervals map[*ir.VirtualRegisterName]*Interval) {
	w := ra.TraceWriter
	if w == nil {
		w = os.Stdout
	}

	fmt.Fprint(w, ir.FormatFunction(fn, false))

	slots := ir.NewSlotTracker()
	slots.CacheFunction(fn)

	sorted := make([]*Interval, 0, len(intervals))
	for _, iv := range intervals {
		sorted = append(sorted, iv)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return slots.ValueSlot(sorted[i].Reg) < slots.ValueSlot(sorted[j].Reg)
	})

	fmt.Fprintln(w, "********** Interval Analysis **********")
	for _, iv := range sorted {
		fmt.Fprintf(w, "\t%%%d = %s -> %s\n", slots.ValueSlot(iv.Reg), iv.Start, iv.End)
	}
	fmt.Fprintln(w, "***************************************")
}
