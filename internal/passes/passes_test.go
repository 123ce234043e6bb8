package passes

import (
	"testing"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
)

var noTrace = &pass.RunInformation{}

// newTestFunction wraps a fresh single-block function in a module, the
// minimum environment most passes expect.
func newTestFunction(t *testing.T, name string, typ *ir.FunctionType, params ...ir.Value) (*ir.Module, *ir.Function, *ir.BasicBlock) {
	t.Helper()
	m := ir.NewModule(name + ".c")
	fn := ir.NewFunction(typ, name, params)
	m.RegisterFunction(fn)
	bb := ir.NewBasicBlock()
	fn.Append(bb)
	return m, fn, bb
}

func opcodes(bb *ir.BasicBlock) []ir.Opcode {
	var ops []ir.Opcode
	for i := bb.First(); i != nil; i = i.Next() {
		ops = append(ops, i.Opcode())
	}
	return ops
}

func countOpcode(fn *ir.Function, op ir.Opcode) int {
	return len(ir.CollectInstructions(fn, op))
}
