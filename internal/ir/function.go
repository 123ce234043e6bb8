package ir

import (
	"sort"

	"github.com/armlet/armlet/internal/logging"
)

// Function is a sequence of basic blocks plus a typed parameter list.
// A function with no blocks is a declaration. Functions are themselves
// values (of their FunctionType) so calls can reference them.
type Function struct {
	valueBase
	name   string
	params []Value
	blocks []*BasicBlock
	parent *Module
}

// NewFunction creates a function with the given signature and
// parameter values (one per signature parameter).
func NewFunction(typ *FunctionType, name string, params []Value) *Function {
	return &Function{
		valueBase: newValueBase(typ),
		name:      name,
		params:    append([]Value(nil), params...),
	}
}

// Name returns the function's symbol name.
func (f *Function) Name() string { return f.name }

// Parent returns the owning module, or nil.
func (f *Function) Parent() *Module { return f.parent }

// FunctionType returns the function's signature.
func (f *Function) FunctionType() *FunctionType { return f.typ.(*FunctionType) }

// ReturnType returns the signature's return type.
func (f *Function) ReturnType() Type { return f.FunctionType().ReturnType() }

// IsVoidReturn reports whether the function returns no value.
func (f *Function) IsVoidReturn() bool { return f.ReturnType() == Void }

// Parameters returns the parameter values in order.
func (f *Function) Parameters() []Value { return f.params }

// Parameter returns the i-th parameter value, or nil when out of range.
func (f *Function) Parameter(i int) Value {
	if i < 0 || i >= len(f.params) {
		return nil
	}
	return f.params[i]
}

// HasBody reports whether the function has any blocks.
func (f *Function) HasBody() bool { return len(f.blocks) > 0 }

// CountBlocks returns the number of blocks.
func (f *Function) CountBlocks() int { return len(f.blocks) }

// Blocks returns the block list in layout order. The returned slice is
// the function's own; callers iterate, they do not mutate.
func (f *Function) Blocks() []*BasicBlock { return f.blocks }

// HeadBlock returns the entry block, or nil for declarations.
func (f *Function) HeadBlock() *BasicBlock {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

// TailBlock returns the last block in layout order, or nil.
func (f *Function) TailBlock() *BasicBlock {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[len(f.blocks)-1]
}

// Append adds bb at the end of the block list.
func (f *Function) Append(bb *BasicBlock) {
	bb.parent = f
	f.blocks = append(f.blocks, bb)
}

// InsertBlockAfter places bb immediately after pos in layout order.
func (f *Function) InsertBlockAfter(pos, bb *BasicBlock) {
	bb.parent = f
	for i, b := range f.blocks {
		if b == pos {
			f.blocks = append(f.blocks[:i+1], append([]*BasicBlock{bb}, f.blocks[i+1:]...)...)
			return
		}
	}
	panic("BUG: insertion position block not in function")
}

// RemoveBlock detaches bb. A block may be removed only when it is empty
// and its branch target is unreferenced.
func (f *Function) RemoveBlock(bb *BasicBlock) {
	if !bb.Empty() {
		panic("BUG: destroying a non-empty basic block")
	}
	if len(bb.target.Uses()) != 0 {
		panic("BUG: destroying a basic block that is still branched to")
	}
	for i, b := range f.blocks {
		if b == bb {
			f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
			bb.parent = nil
			return
		}
	}
	panic("BUG: removing a block not in this function")
}

// BlockIndex returns bb's position in layout order, or -1.
func (f *Function) BlockIndex(bb *BasicBlock) int {
	for i, b := range f.blocks {
		if b == bb {
			return i
		}
	}
	return -1
}

// RunLivenessAnalysis computes LiveIn/LiveOut for every block by
// iterating the standard backward dataflow equations to a fixed point:
//
//	OUT[B] = union of IN[S] over successors S
//	IN[B]  = Uses[B] union (OUT[B] \ Defs[B])
func (f *Function) RunLivenessAnalysis() {
	type blockSets struct {
		uses, defs map[*VirtualRegisterName]struct{}
	}
	sets := make(map[*BasicBlock]blockSets, len(f.blocks))
	for _, bb := range f.blocks {
		uses, defs := bb.CalculateUsesDefs()
		sets[bb] = blockSets{uses: uses, defs: defs}
		bb.liveIn = map[*VirtualRegisterName]struct{}{}
		bb.liveOut = map[*VirtualRegisterName]struct{}{}
	}

	iterations := 0
	for {
		dirty := false
		for _, bb := range f.blocks {
			out := map[*VirtualRegisterName]struct{}{}
			for _, succ := range bb.Successors() {
				for v := range succ.liveIn {
					out[v] = struct{}{}
				}
			}
			bb.liveOut = out

			in := map[*VirtualRegisterName]struct{}{}
			for v := range sets[bb].uses {
				in[v] = struct{}{}
			}
			for v := range out {
				if _, defined := sets[bb].defs[v]; !defined {
					in[v] = struct{}{}
				}
			}
			if !sameRegSet(in, bb.liveIn) {
				dirty = true
			}
			bb.liveIn = in
		}
		iterations++
		if !dirty {
			break
		}
	}
	logging.Debugf(logging.General, "liveness analysis for %s finished in %d iterations", f.name, iterations)
}

func sameRegSet(a, b map[*VirtualRegisterName]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if _, ok := b[v]; !ok {
			return false
		}
	}
	return true
}

// SortedRegSet drains a register set in creation order, the canonical
// deterministic order for IR output.
func SortedRegSet(set map[*VirtualRegisterName]struct{}) []*VirtualRegisterName {
	regs := make([]*VirtualRegisterName, 0, len(set))
	for v := range set {
		regs = append(regs, v)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Seq() < regs[j].Seq() })
	return regs
}

func sortBlocksBySeq(blocks []*BasicBlock) {
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].id < blocks[j].id })
}
