package passes

import (
	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
	"github.com/armlet/armlet/internal/logging"
)

// SCP implements Kildall's Simple Constant propagation over a linear
// node graph: one node per instruction, with predecessor edges from the
// previous instruction and, for block-leading nodes, from the
// terminators of predecessor blocks.
//
// The lattice is {Top, Const(i), Bottom}; Top is the meet identity,
// Bottom absorbs, distinct constants meet to Bottom. Division is
// deliberately never folded.
type SCP struct{}

// Name implements Pass.Name.
func (SCP) Name() string { return "scp" }

type latticeCell struct {
	constant *ir.ConstantInt // nil for top/bottom
	top      bool
	bottom   bool
}

var (
	cellTop    = &latticeCell{top: true}
	cellBottom = &latticeCell{bottom: true}
	cellConsts = map[*ir.ConstantInt]*latticeCell{}
)

func cellFor(c *ir.ConstantInt) *latticeCell {
	if cell, ok := cellConsts[c]; ok {
		return cell
	}
	cell := &latticeCell{constant: c}
	cellConsts[c] = cell
	return cell
}

func meet(a, b *latticeCell) *latticeCell {
	if b.top {
		return a
	}
	if b.bottom {
		return cellBottom
	}
	if a.top {
		return b
	}
	if a == b {
		return b
	}
	return cellBottom
}

// variableMap maps virtual registers to lattice cells. Missing entries
// read as Top.
type variableMap map[*ir.VirtualRegisterName]*latticeCell

func (m variableMap) get(v *ir.VirtualRegisterName) *latticeCell {
	if cell, ok := m[v]; ok {
		return cell
	}
	return cellTop
}

func (m variableMap) clone() variableMap {
	out := make(variableMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m variableMap) equal(other variableMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if other[k] != v {
			return false
		}
	}
	return true
}

type scpNode struct {
	insn   *ir.Instruction
	index  int
	preds  []int
	input  variableMap
	output variableMap
}

func (n *scpNode) addPred(index int) {
	for _, p := range n.preds {
		if p == index {
			return
		}
	}
	n.preds = append(n.preds, index)
}

// RunOnFunction implements FunctionPass.RunOnFunction.
func (SCP) RunOnFunction(fn *ir.Function, _ *pass.RunInformation) error {
	nodes := buildNodeGraph(fn)
	if len(nodes) == 0 {
		return nil
	}

	// Worklist iteration to the fixed point.
	worklist := make([]*scpNode, 0, len(nodes))
	for i := range nodes {
		worklist = append(worklist, &nodes[i])
	}
	rounds := 0
	for len(worklist) > 0 {
		node := worklist[0]
		worklist = worklist[1:]
		rounds++

		next := computeInputs(nodes, node)
		if !next.equal(node.input) {
			node.input = next
			for _, pred := range node.preds {
				worklist = append(worklist, &nodes[pred])
			}
			worklist = append(worklist, node)
		}
		computeOutputs(node)
	}
	logging.Debugf(logging.SCP, "%s: fixed point after %d worklist rounds over %d nodes", fn.Name(), rounds, len(nodes))

	// Rewrite: constant binop results become set instructions; constant
	// reads are replaced inline.
	for i := range nodes {
		node := &nodes[i]
		insn := node.insn

		if insn.Opcode().IsBinaryOp() {
			if result, ok := insn.BinOpResult().(*ir.VirtualRegisterName); ok {
				if cell := node.output.get(result); cell.constant != nil {
					set := ir.NewSet(result, cell.constant)
					insn.Parent().Replace(insn, set)
					continue
				}
			}
		}

		for idx := 0; idx < insn.CountOperands(); idx++ {
			if !insn.OperandHasFlags(idx, ir.OperandRead) {
				continue
			}
			if vreg, ok := insn.Operand(idx).(*ir.VirtualRegisterName); ok {
				if cell := node.input.get(vreg); cell.constant != nil {
					insn.SetOperand(idx, cell.constant)
				}
			}
		}
	}
	return nil
}

func buildNodeGraph(fn *ir.Function) []scpNode {
	type blockRange struct{ start, end int }

	var nodes []scpNode
	ranges := map[*ir.BasicBlock]blockRange{}
	registers := map[*ir.VirtualRegisterName]struct{}{}

	index := 0
	for _, bb := range fn.Blocks() {
		start := index
		for i := bb.First(); i != nil; i = i.Next() {
			nodes = append(nodes, scpNode{insn: i, index: index, input: variableMap{}, output: variableMap{}})
			index++
			for idx := 0; idx < i.CountOperands(); idx++ {
				if vreg, ok := i.Operand(idx).(*ir.VirtualRegisterName); ok {
					registers[vreg] = struct{}{}
				}
			}
		}
		ranges[bb] = blockRange{start: start, end: index}
	}
	if len(nodes) == 0 {
		return nil
	}

	for _, bb := range fn.Blocks() {
		info := ranges[bb]
		if info.start == info.end {
			continue
		}
		for _, pred := range bb.Predecessors() {
			predInfo := ranges[pred]
			if predInfo.start == predInfo.end {
				continue
			}
			nodes[info.start].addPred(predInfo.end - 1)
		}
	}
	for i := 1; i < len(nodes); i++ {
		nodes[i].addPred(i - 1)
	}

	// Every variable starts Bottom at the entry node: nothing is known
	// about values flowing in from outside the function.
	entry := nodes[0].input
	for _, vreg := range ir.SortedRegSet(registers) {
		entry[vreg] = cellBottom
	}
	return nodes
}

func computeInputs(nodes []scpNode, node *scpNode) variableMap {
	result := node.input.clone()

	merged := map[*ir.VirtualRegisterName]*latticeCell{}
	seen := map[*ir.VirtualRegisterName]bool{}
	for _, predIndex := range node.preds {
		pred := &nodes[predIndex]
		for v, cell := range pred.output {
			if !seen[v] {
				merged[v] = cell
				seen[v] = true
			} else {
				merged[v] = meet(merged[v], cell)
			}
		}
	}
	for v, cell := range merged {
		result[v] = cell
	}
	return result
}

func evaluateToConstant(node *scpNode, v ir.Value) *ir.ConstantInt {
	if c, ok := v.(*ir.ConstantInt); ok {
		return c
	}
	if vreg, ok := v.(*ir.VirtualRegisterName); ok {
		if cell := node.input.get(vreg); cell.constant != nil {
			return cell.constant
		}
	}
	return nil
}

func computeOutputs(node *scpNode) {
	out := node.input.clone()
	node.output = out
	insn := node.insn

	if insn.Opcode() == ir.OpSet {
		vreg, ok := insn.SetRegister().(*ir.VirtualRegisterName)
		if !ok {
			return
		}
		switch rhs := insn.SetValue().(type) {
		case *ir.ConstantInt:
			out[vreg] = cellFor(rhs)
			return
		case *ir.VirtualRegisterName:
			out[vreg] = node.input.get(rhs)
			return
		}
	}

	if insn.Opcode().IsBinaryOp() {
		lhs := evaluateToConstant(node, insn.BinOpLHS())
		rhs := evaluateToConstant(node, insn.BinOpRHS())
		if lhs != nil && rhs != nil {
			if result := foldConstantBinOp(insn.Opcode(), lhs, rhs); result != nil {
				if vreg, ok := insn.BinOpResult().(*ir.VirtualRegisterName); ok {
					out[vreg] = cellFor(result)
					return
				}
			}
		} else if vreg, ok := insn.BinOpResult().(*ir.VirtualRegisterName); ok {
			out[vreg] = cellBottom
			return
		}
	}

	// Anything else that writes a register kills what was known.
	for idx := 0; idx < insn.CountOperands(); idx++ {
		if !insn.OperandHasFlags(idx, ir.OperandWrite) {
			continue
		}
		if vreg, ok := insn.Operand(idx).(*ir.VirtualRegisterName); ok {
			out[vreg] = cellBottom
		}
	}
}

// foldConstantBinOp evaluates iadd/isub/imul over constants. Division
// and the remaining binops are left unfolded.
func foldConstantBinOp(op ir.Opcode, lhs, rhs *ir.ConstantInt) *ir.ConstantInt {
	if lhs.Type() != rhs.Type() {
		panic("BUG: folding binop with mismatched operand types")
	}
	var result uint64
	switch op {
	case ir.OpIAdd:
		result = lhs.Value() + rhs.Value()
	case ir.OpISub:
		result = lhs.Value() - rhs.Value()
	case ir.OpIMul:
		result = lhs.Value() * rhs.Value()
	default:
		return nil
	}
	return ir.NewConstantInt(lhs.Type(), result)
}
