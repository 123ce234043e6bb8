package arm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/armlet/armlet/internal/ir"
)

// The machine description: one assembly template per MIR opcode,
// interpreted by the emitter. $0..$n substitute the instruction's
// operands; registers print bare, constants as #imm, branch targets as
// block labels and globals as their symbol name. Multi-line templates
// (the ret epilogue) separate lines with ';'.
var asmTemplates = map[ir.Opcode]string{
	ir.OpArmMovwi:    "movw $0, $1",
	ir.OpArmMovti:    "movt $0, $1",
	ir.OpArmMov:      "mov $0, $1",
	ir.OpArmMovi:     "mov $0, $1",
	ir.OpArmMovweqi:  "movweq $0, $1",
	ir.OpArmMovwnei:  "movwne $0, $1",
	ir.OpArmMovwgti:  "movwgt $0, $1",
	ir.OpArmMovwgei:  "movwge $0, $1",
	ir.OpArmMovwlti:  "movwlt $0, $1",
	ir.OpArmMovwlei:  "movwle $0, $1",
	ir.OpArmMovwGl16: "movw $0, #:lower16:$1",
	ir.OpArmMovtGu16: "movt $0, #:upper16:$1",

	ir.OpArmLdr:   "ldr $0, [$1]",
	ir.OpArmLdrb:  "ldrb $0, [$1]",
	ir.OpArmLdrh:  "ldrh $0, [$1]",
	ir.OpArmLdrsb: "ldrsb $0, [$1]",
	ir.OpArmLdrsh: "ldrsh $0, [$1]",
	ir.OpArmStr:   "str $0, [$1]",
	ir.OpArmStrb:  "strb $0, [$1]",
	ir.OpArmStrh:  "strh $0, [$1]",

	ir.OpArmCmp:  "cmp $0, $1",
	ir.OpArmCmpi: "cmp $0, $1",

	ir.OpArmAdd:  "add $2, $0, $1",
	ir.OpArmSub:  "sub $2, $0, $1",
	ir.OpArmMul:  "mul $2, $0, $1",
	ir.OpArmSdiv: "sdiv $2, $0, $1",
	ir.OpArmUdiv: "udiv $2, $0, $1",
	ir.OpArmAnd:  "and $2, $0, $1",
	ir.OpArmOrr:  "orr $2, $0, $1",
	ir.OpArmEor:  "eor $2, $0, $1",
	ir.OpArmLsl:  "lsl $2, $0, $1",
	ir.OpArmLsr:  "lsr $2, $0, $1",

	ir.OpArmAddR32I32: "add $2, $0, $1",
	ir.OpArmSubR32I32: "sub $2, $0, $1",

	ir.OpArmB:   "b $0",
	ir.OpArmBeq: "beq $0",
	ir.OpArmBne: "bne $0",
	ir.OpArmBge: "bge $0",
	ir.OpArmBgt: "bgt $0",
	ir.OpArmBlt: "blt $0",
	ir.OpArmBle: "ble $0",

	ir.OpArmRet: "mov sp, r11;pop {r4, r5, r6, r7, r8, r10, r11, lr};bx lr",
}

// immediateForm marks the MIR opcodes whose ConstantInt operands are
// true immediates: the constant splitter must leave them alone.
var immediateForm = map[ir.Opcode]bool{
	ir.OpArmMovwi:    true,
	ir.OpArmMovti:    true,
	ir.OpArmMovi:     true,
	ir.OpArmMovweqi:  true,
	ir.OpArmMovwnei:  true,
	ir.OpArmMovwgti:  true,
	ir.OpArmMovwgei:  true,
	ir.OpArmMovwlti:  true,
	ir.OpArmMovwlei:  true,
	ir.OpArmMovwGl16: true,
	ir.OpArmMovtGu16: true,
	ir.OpArmCmpi:     true,
	ir.OpArmAddR32I32: true,
	ir.OpArmSubR32I32: true,
}

// RenderInstruction interprets the machine description template for
// insn, yielding one or more finished assembly lines.
func RenderInstruction(insn *ir.Instruction, blockLabel func(*ir.BasicBlock) string) ([]string, error) {
	template, ok := asmTemplates[insn.Opcode()]
	if !ok {
		return nil, errors.Errorf("no assembly pattern for opcode %s", insn.Opcode())
	}

	expand := func(tpl string) (string, error) {
		out := tpl
		for idx := insn.CountOperands() - 1; idx >= 0; idx-- {
			text, err := renderOperand(insn.Operand(idx), blockLabel)
			if err != nil {
				return "", err
			}
			out = strings.ReplaceAll(out, "$"+strconv.Itoa(idx), text)
		}
		return out, nil
	}

	var lines []string
	for _, part := range strings.Split(template, ";") {
		line, err := expand(part)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func renderOperand(v ir.Value, blockLabel func(*ir.BasicBlock) string) (string, error) {
	switch val := v.(type) {
	case *ir.PhysicalRegisterName:
		return val.Name(), nil
	case *ir.ConstantInt:
		return fmt.Sprintf("#%d", val.Value()), nil
	case *ir.BlockBranchTarget:
		return blockLabel(val.Block()), nil
	case *ir.GlobalVariable:
		return val.Name(), nil
	case *ir.VirtualRegisterName:
		panic("BUG: virtual register survived register allocation")
	default:
		return "", errors.Errorf("cannot render %T as an assembly operand", v)
	}
}

// Machine instruction constructors, one per pattern, fixing the operand
// order the templates expect.

// NewMovwi builds `movw dst, #imm` (writes the low half, zeroes the top).
func NewMovwi(dst, imm ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmMovwi, dst, imm)
}

// NewMovti builds `movt dst, #imm` (writes the high half).
func NewMovti(dst, imm ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmMovti, dst, imm)
}

// NewMov builds a register-to-register `mov dst, src`.
func NewMov(dst, src ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmMov, dst, src)
}

// NewMovi builds `mov dst, #imm`.
func NewMovi(dst, imm ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmMovi, dst, imm)
}

// NewMovwCondI builds the conditional `movw<cond> dst, #imm` for the
// given comparison opcode.
func NewMovwCondI(cmp ir.Opcode, dst, imm ir.Value) *ir.Instruction {
	op, ok := condMoves[cmp]
	if !ok {
		panic(fmt.Sprintf("BUG: no conditional move for %s", cmp))
	}
	return ir.NewMachineInstr(op, dst, imm)
}

var condMoves = map[ir.Opcode]ir.Opcode{
	ir.OpICmpEq:  ir.OpArmMovweqi,
	ir.OpICmpNeq: ir.OpArmMovwnei,
	ir.OpICmpGt:  ir.OpArmMovwgti,
	ir.OpICmpGte: ir.OpArmMovwgei,
	ir.OpICmpLt:  ir.OpArmMovwlti,
	ir.OpICmpLte: ir.OpArmMovwlei,
}

var condBranches = map[ir.Opcode]ir.Opcode{
	ir.OpICmpEq:  ir.OpArmBeq,
	ir.OpICmpNeq: ir.OpArmBne,
	ir.OpICmpGt:  ir.OpArmBgt,
	ir.OpICmpGte: ir.OpArmBge,
	ir.OpICmpLt:  ir.OpArmBlt,
	ir.OpICmpLte: ir.OpArmBle,
}

// NewMovwGl16 builds `movw dst, #:lower16:global`.
func NewMovwGl16(dst, global ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmMovwGl16, dst, global)
}

// NewMovtGu16 builds `movt dst, #:upper16:global`.
func NewMovtGu16(dst, global ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmMovtGu16, dst, global)
}

// NewLoadFor builds the load variant for the given mode; sign-extending
// variants are selected for fused sext consumers.
func NewLoadFor(mode MachineMode, signExtend bool, dst, src ir.Value) (*ir.Instruction, error) {
	switch mode {
	case QImode:
		if signExtend {
			return ir.NewMachineInstr(ir.OpArmLdrsb, dst, src), nil
		}
		return ir.NewMachineInstr(ir.OpArmLdrb, dst, src), nil
	case HImode:
		if signExtend {
			return ir.NewMachineInstr(ir.OpArmLdrsh, dst, src), nil
		}
		return ir.NewMachineInstr(ir.OpArmLdrh, dst, src), nil
	case SImode:
		return ir.NewMachineInstr(ir.OpArmLdr, dst, src), nil
	default:
		return nil, errors.New("unsupported machine mode for load")
	}
}

// NewStoreFor builds the store variant for the given mode.
func NewStoreFor(mode MachineMode, src, dst ir.Value) (*ir.Instruction, error) {
	switch mode {
	case QImode:
		return ir.NewMachineInstr(ir.OpArmStrb, src, dst), nil
	case HImode:
		return ir.NewMachineInstr(ir.OpArmStrh, src, dst), nil
	case SImode:
		return ir.NewMachineInstr(ir.OpArmStr, src, dst), nil
	default:
		return nil, errors.New("unsupported machine mode for store")
	}
}

// NewCmp builds `cmp lhs, rhs`.
func NewCmp(lhs, rhs ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmCmp, lhs, rhs)
}

// NewCmpi builds `cmp lhs, #imm`.
func NewCmpi(lhs, imm ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmCmpi, lhs, imm)
}

// NewB builds the unconditional branch to target.
func NewB(target ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmB, target)
}

// NewCondBranch builds the conditional branch matching the given
// comparison opcode.
func NewCondBranch(cmp ir.Opcode, target ir.Value) *ir.Instruction {
	op, ok := condBranches[cmp]
	if !ok {
		panic(fmt.Sprintf("BUG: no conditional branch for %s", cmp))
	}
	return ir.NewMachineInstr(op, target)
}

// NewBge builds `bge target`.
func NewBge(target ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmBge, target)
}

// NewBinOpFor builds the register-form machine binop corresponding to
// the HLIR opcode, with operands (lhs, rhs, dst).
func NewBinOpFor(op ir.Opcode, lhs, rhs, dst ir.Value) (*ir.Instruction, error) {
	mapped, ok := machineBinOps[op]
	if !ok {
		return nil, errors.Errorf("no machine binop for %s", op)
	}
	return ir.NewMachineInstr(mapped, lhs, rhs, dst), nil
}

var machineBinOps = map[ir.Opcode]ir.Opcode{
	ir.OpIAdd:  ir.OpArmAdd,
	ir.OpISub:  ir.OpArmSub,
	ir.OpIMul:  ir.OpArmMul,
	ir.OpISDiv: ir.OpArmSdiv,
	ir.OpIUDiv: ir.OpArmUdiv,
	ir.OpAnd:   ir.OpArmAnd,
	ir.OpOr:    ir.OpArmOrr,
	ir.OpXor:   ir.OpArmEor,
	ir.OpShl:   ir.OpArmLsl,
	ir.OpShr:   ir.OpArmLsr,
}

// NewAddR32I32 builds `add dst, src, #imm`.
func NewAddR32I32(src, imm, dst ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmAddR32I32, src, imm, dst)
}

// NewSubR32I32 builds `sub dst, src, #imm`.
func NewSubR32I32(src, imm, dst ir.Value) *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmSubR32I32, src, imm, dst)
}

// NewMachineRet builds the machine return, whose pattern prints the
// whole epilogue.
func NewMachineRet() *ir.Instruction {
	return ir.NewMachineInstr(ir.OpArmRet)
}
