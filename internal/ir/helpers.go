package ir

// ReplaceAllUsesWith rewrites every operand referencing old to refer to
// repl instead.
func ReplaceAllUsesWith(old, repl Value) {
	// The use list shrinks as operands are rewritten; take a snapshot.
	uses := append([]Use(nil), old.Uses()...)
	for _, use := range uses {
		use.User.SetOperand(use.Index, repl)
	}
}

// SingleUser returns the unique use of value excluding self, or false
// when the value has zero or multiple distinct users.
func SingleUser(self *Instruction, value Value) (Use, bool) {
	var found Use
	var n int
	for _, use := range value.Uses() {
		if use.User == self {
			continue
		}
		if n == 0 {
			found = use
		}
		n++
	}
	return found, n == 1
}

// CountReadUsers returns the number of uses of value in read-flagged
// operand positions.
func CountReadUsers(value Value) int {
	n := 0
	for _, use := range value.Uses() {
		if use.User.OperandHasFlags(use.Index, OperandRead) {
			n++
		}
	}
	return n
}

// FindFirst returns the first instruction with the given opcode in bb,
// or nil.
func FindFirst(bb *BasicBlock, op Opcode) *Instruction {
	for i := bb.First(); i != nil; i = i.Next() {
		if i.Opcode() == op {
			return i
		}
	}
	return nil
}

// CollectInstructions returns every instruction in fn with the given
// opcode, in program order.
func CollectInstructions(fn *Function, op Opcode) []*Instruction {
	var out []*Instruction
	for _, bb := range fn.Blocks() {
		for i := bb.First(); i != nil; i = i.Next() {
			if i.Opcode() == op {
				out = append(out, i)
			}
		}
	}
	return out
}
