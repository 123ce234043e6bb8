package ir

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// SlotTracker hands out stable per-function display slots for values
// and basic blocks, in order of first appearance. The text dump is
// human-readable only and is not parsed back.
type SlotTracker struct {
	values     map[Value]int
	blocks     map[*BasicBlock]int
	nextValue  int
	nextBlock  int
}

// NewSlotTracker creates an empty tracker.
func NewSlotTracker() *SlotTracker {
	return &SlotTracker{values: map[Value]int{}, blocks: map[*BasicBlock]int{}}
}

// CacheFunction walks fn in program order, assigning slots to its
// parameters, blocks and instruction operands.
func (s *SlotTracker) CacheFunction(fn *Function) {
	for _, p := range fn.Parameters() {
		s.ValueSlot(p)
	}
	for _, bb := range fn.Blocks() {
		s.BlockSlot(bb)
		for i := bb.First(); i != nil; i = i.Next() {
			for idx := 0; idx < i.CountOperands(); idx++ {
				if v := i.Operand(idx); v != nil {
					if _, ok := v.(*VirtualRegisterName); ok {
						s.ValueSlot(v)
					}
				}
			}
		}
	}
}

// ValueSlot returns the slot for v, assigning the next free one on
// first sight.
func (s *SlotTracker) ValueSlot(v Value) int {
	if slot, ok := s.values[v]; ok {
		return slot
	}
	slot := s.nextValue
	s.values[v] = slot
	s.nextValue++
	return slot
}

// BlockSlot returns the slot for bb, assigning on first sight.
func (s *SlotTracker) BlockSlot(bb *BasicBlock) int {
	if slot, ok := s.blocks[bb]; ok {
		return slot
	}
	slot := s.nextBlock
	s.blocks[bb] = slot
	s.nextBlock++
	return slot
}

// FormatValue renders an operand the way the text IR spells it.
func FormatValue(s *SlotTracker, v Value) string {
	switch val := v.(type) {
	case *ConstantInt:
		return fmt.Sprintf("%d:%s", val.Value(), val.Type())
	case *VirtualRegisterName:
		if name := val.DebugName(); name != "" {
			return fmt.Sprintf("%%%s:%s", name, val.Type())
		}
		return fmt.Sprintf("%%%d:%s", s.ValueSlot(val), val.Type())
	case *PhysicalRegisterName:
		return fmt.Sprintf("$%s:%s", val.Name(), val.Type())
	case *BlockBranchTarget:
		return fmt.Sprintf(".%d", s.BlockSlot(val.Block()))
	case *GlobalVariable:
		return "@" + val.Name()
	case *UndefValue:
		return "undef"
	case *Function:
		params := lo.Map(val.FunctionType().ParamTypes(), func(t Type, _ int) string {
			return t.String()
		})
		return fmt.Sprintf("%s(%s)", val.Name(), strings.Join(params, ", "))
	case *ConstantArray:
		elems := lo.Map(val.Values(), func(e Value, _ int) string { return FormatValue(s, e) })
		return fmt.Sprintf("[%s]", strings.Join(elems, ", "))
	case *ConstantStruct:
		elems := lo.Map(val.Values(), func(e Value, _ int) string { return FormatValue(s, e) })
		return fmt.Sprintf("{%s}", strings.Join(elems, ", "))
	case *ConstantByteArray:
		return fmt.Sprintf("bytes[%d]", len(val.Bytes()))
	default:
		return "?"
	}
}

// FormatInstruction renders one instruction line, without indentation.
func FormatInstruction(s *SlotTracker, i *Instruction, annotate bool) string {
	var b strings.Builder
	b.WriteString(i.Opcode().String())

	if i.CountOperands() > 0 || i.Opcode() == OpStackAlloc {
		b.WriteString(" ")
	}

	switch {
	case i.Opcode() == OpStackAlloc:
		// Scalar allocations keep the historical "[T x 1]" spelling.
		if at, ok := i.AllocatedType().(*ArrayType); ok {
			b.WriteString(at.String())
		} else {
			fmt.Fprintf(&b, "[%s x 1]", i.AllocatedType())
		}
		b.WriteString(", ")
	case i.Opcode() == OpLea:
		fmt.Fprintf(&b, "[%s*], ", i.BaseType())
	case i.Opcode() == OpLfa:
		fmt.Fprintf(&b, "[%s:%d], ", i.BaseType(), i.FieldIndex())
	case i.Opcode().IsCast():
		fmt.Fprintf(&b, "[%s -> %s], ", i.CastSrc().Type(), i.CastDst().Type())
	}

	for idx := 0; idx < i.CountOperands(); idx++ {
		if v := i.Operand(idx); v != nil {
			b.WriteString(FormatValue(s, v))
		} else {
			b.WriteString("?")
		}
		if idx < i.CountOperands()-1 {
			b.WriteString(", ")
		}
	}

	if annotate && i.Comment() != "" {
		b.WriteString("  # " + i.Comment())
	}
	return b.String()
}

// FormatFunction renders a whole function definition.
func FormatFunction(fn *Function, annotate bool) string {
	s := NewSlotTracker()
	s.CacheFunction(fn)

	var b strings.Builder
	params := lo.Map(fn.Parameters(), func(p Value, _ int) string {
		return FormatValue(s, p)
	})
	fmt.Fprintf(&b, "function %s(%s): %s {\n", fn.Name(), strings.Join(params, ", "), fn.ReturnType())
	for _, bb := range fn.Blocks() {
		fmt.Fprintf(&b, ".%d:\n", s.BlockSlot(bb))
		for i := bb.First(); i != nil; i = i.Next() {
			b.WriteString("\t" + FormatInstruction(s, i, annotate) + "\n")
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// FormatModule renders the module: struct declarations, globals, then
// functions.
func FormatModule(m *Module, annotate bool) string {
	var b strings.Builder
	for _, st := range m.Structs() {
		fields := lo.Map(st.Fields(), func(t Type, _ int) string { return t.String() })
		fmt.Fprintf(&b, "%s = struct { %s }\n", st.Name(), strings.Join(fields, ", "))
	}
	s := NewSlotTracker()
	for _, g := range m.Globals() {
		fmt.Fprintf(&b, "@%s:ptr = global %s", g.Name(), g.BaseType())
		if g.Init() != nil {
			b.WriteString(" " + FormatValue(s, g.Init()))
		}
		b.WriteString("\n")
	}
	for _, fn := range m.Functions() {
		if !fn.HasBody() {
			params := lo.Map(fn.FunctionType().ParamTypes(), func(t Type, _ int) string { return t.String() })
			fmt.Fprintf(&b, "declare %s(%s): %s\n", fn.Name(), strings.Join(params, ", "), fn.ReturnType())
			continue
		}
		b.WriteString(FormatFunction(fn, annotate))
	}
	return b.String()
}
