package arm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/logging"
	"github.com/armlet/armlet/internal/pass"
)

// AssemblyEmitter writes the final GNU-style ARM assembly: the data
// section for globals, then per function a fixed prologue, block labels
// and the machine-description rendering of every instruction. The
// epilogue comes from the ret pattern itself.
//
// An output path of "-" writes to standard output (which is never
// closed); any other path is created, written and closed.
type AssemblyEmitter struct {
	// OutputPath is the destination file, or "-" for stdout.
	OutputPath string

	// Stdout overrides the "-" sink, for tests.
	Stdout io.Writer
}

// Name implements Pass.Name.
func (*AssemblyEmitter) Name() string { return "emit" }

// RunOnModule implements ModulePass.RunOnModule.
func (e *AssemblyEmitter) RunOnModule(m *ir.Module, _ *pass.RunInformation) error {
	var sink io.Writer
	if e.OutputPath == "-" {
		sink = e.Stdout
		if sink == nil {
			sink = os.Stdout
		}
	} else {
		f, err := os.Create(e.OutputPath)
		if err != nil {
			return errors.Wrapf(err, "failed to open output assembly file %q", e.OutputPath)
		}
		defer f.Close()
		sink = f
	}
	logging.Infof(logging.Emit, "outputting assembly to %q", e.OutputPath)

	w := bufio.NewWriter(sink)
	if err := emitModule(w, m); err != nil {
		return err
	}
	return errors.Wrap(w.Flush(), "failed to write assembly output")
}

func emitModule(w *bufio.Writer, m *ir.Module) error {
	// Block label slots are handed out module-wide, in emission order.
	slots := ir.NewSlotTracker()
	label := func(bb *ir.BasicBlock) string {
		return fmt.Sprintf(".bb%d", slots.BlockSlot(bb))
	}

	fmt.Fprintf(w, ".section .data\n")
	for _, global := range m.Globals() {
		if err := emitGlobal(w, global); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, ".text\n")
	for _, fn := range m.Functions() {
		if !fn.HasBody() {
			fmt.Fprintf(w, ".globl %s\n", fn.Name())
			continue
		}
		fmt.Fprintf(w, ".globl %s\n%s:\n", fn.Name(), fn.Name())

		// The prologue sits above the first block label so branches back
		// to the entry block cannot re-run it.
		fmt.Fprintf(w, "\tpush {r4, r5, r6, r7, r8, r10, r11, lr}\n")
		fmt.Fprintf(w, "\tmov r11, sp\n")

		for _, bb := range fn.Blocks() {
			fmt.Fprintf(w, "%s:\n", label(bb))
			for i := bb.First(); i != nil; i = i.Next() {
				lines, err := RenderInstruction(i, label)
				if err != nil {
					return errors.Wrapf(err, "%s", fn.Name())
				}
				for _, line := range lines {
					fmt.Fprintf(w, "\t%s\n", line)
				}
			}
		}
	}
	return nil
}

func emitGlobal(w *bufio.Writer, global *ir.GlobalVariable) error {
	init := global.Init()
	if init == nil {
		fmt.Fprintf(w, "%s:\n\t.space %d\n", global.Name(), TypeSize(global.BaseType()))
		return nil
	}

	fmt.Fprintf(w, "%s:\n", global.Name())
	if cs, ok := init.(*ir.ConstantStruct); ok {
		for _, field := range cs.Values() {
			if err := emitDataDirective(w, field); err != nil {
				return err
			}
		}
		return nil
	}
	return emitDataDirective(w, init)
}

func emitDataDirective(w *bufio.Writer, init ir.Value) error {
	directive, err := dataDirectiveFor(init)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\t.%s ", directive)

	switch v := init.(type) {
	case *ir.ConstantInt:
		fmt.Fprintf(w, "%d\n", v.Value())
	case *ir.ConstantByteArray:
		if !v.IsString() {
			return errors.New("cannot print a raw byte-array global initialiser")
		}
		escaped := lo.Map(v.Bytes(), func(b byte, _ int) string {
			if b < unicode.MaxASCII && unicode.IsPrint(rune(b)) {
				return string(rune(b))
			}
			return fmt.Sprintf("\\%x", b)
		})
		fmt.Fprintf(w, "\"%s\"\n", strings.Join(escaped, ""))
	case *ir.GlobalVariable:
		fmt.Fprintf(w, "%s\n", v.Name())
	default:
		return errors.Errorf("cannot print %T as a global initialiser", init)
	}
	return nil
}

// dataDirectiveFor picks the assembler directive for an initialiser:
// strings use .ascii (the NUL is explicit in the data), everything else
// goes by type width.
func dataDirectiveFor(init ir.Value) (string, error) {
	if cba, ok := init.(*ir.ConstantByteArray); ok && cba.IsString() {
		return "ascii", nil
	}
	return dataDirectiveForType(init.Type())
}

func dataDirectiveForType(t ir.Type) (string, error) {
	switch typ := t.(type) {
	case *ir.PointerType:
		return "4byte", nil
	case *ir.IntegerType:
		switch typ.Bits() {
		case 8:
			return "byte", nil
		case 16:
			return "2byte", nil
		case 32:
			return "4byte", nil
		case 64:
			return "8byte", nil
		}
	case *ir.ArrayType:
		return dataDirectiveForType(typ.Element())
	}
	return "", errors.Errorf("no assembly directive for type %s", t)
}
