// Package arm is the ARMv7 target: type sizing, the physical register
// table, the machine description, HLIR-to-MIR expansion, constant
// splitting and textual assembly emission.
package arm

import (
	"fmt"

	"github.com/armlet/armlet/internal/ir"
)

// TypeSize returns the ARM size in bytes of t: i8=1, i16=2, i32=4,
// i64=8, ptr=4, arrays and structs by summation.
func TypeSize(t ir.Type) int {
	switch typ := t.(type) {
	case *ir.PointerType:
		return 4
	case *ir.IntegerType:
		return typ.Bits() / 8
	case *ir.ArrayType:
		return typ.Count() * TypeSize(typ.Element())
	case *ir.StructType:
		size := 0
		for _, f := range typ.Fields() {
			size += TypeSize(f)
		}
		return size
	default:
		panic(fmt.Sprintf("BUG: no ARM size for type %s", t))
	}
}

// MachineMode classifies a type by access width, mirroring the
// QI/HI/SI/DI modes of the machine description.
type MachineMode int

// Access widths.
const (
	QImode MachineMode = iota // 8-bit
	HImode                    // 16-bit
	SImode                    // 32-bit
	DImode                    // 64-bit
)

// ModeOf returns the machine mode for t. Pointers are SImode.
func ModeOf(t ir.Type) (MachineMode, error) {
	if ir.IsPointer(t) {
		return SImode, nil
	}
	if it, ok := t.(*ir.IntegerType); ok {
		switch it.Bits() {
		case 8:
			return QImode, nil
		case 16:
			return HImode, nil
		case 32:
			return SImode, nil
		case 64:
			return DImode, nil
		}
	}
	return 0, fmt.Errorf("no machine mode for type %s", t)
}

// Register numbers. R0-R3 are the AAPCS argument/result registers, SP,
// LR and PC have their usual roles and are never allocated.
const (
	R0 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
)

var regNames = [...]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
}

var physRegs [len(regNames)]*ir.PhysicalRegisterName

func init() {
	for id, name := range regNames {
		physRegs[id] = ir.NewPhysReg(ir.I32, id, name)
	}
}

// PhysReg returns the interned physical register value for the given
// register number. All registers are 32 bits wide.
func PhysReg(id int) *ir.PhysicalRegisterName {
	if id < 0 || id >= len(physRegs) {
		panic(fmt.Sprintf("BUG: no physical register %d", id))
	}
	return physRegs[id]
}

// AllocatableRegs returns the fixed linear-scan pool, in allocation
// preference order: the callee-saved registers R4-R8. R9 and R10 are
// reserved for spill scratch, R11 is the frame pointer.
func AllocatableRegs() []*ir.PhysicalRegisterName {
	return []*ir.PhysicalRegisterName{
		PhysReg(R4), PhysReg(R5), PhysReg(R6), PhysReg(R7), PhysReg(R8),
	}
}

// SpillScratchRegs returns the register pair reserved for spill code:
// a spilled write keeps its value in the first and its address in the
// second; each spilled read reloads through one of the two, which also
// holds its address.
func SpillScratchRegs() (data, addr *ir.PhysicalRegisterName) {
	return PhysReg(R10), PhysReg(R9)
}
