// Package pass defines the pass manager: the pass categories every
// pipeline stage implements and the driver that runs an ordered list of
// them over one module.
package pass

import (
	"fmt"

	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/logging"
)

// RunInformation carries per-run flags into every pass.
type RunInformation struct {
	// TestTrace makes analysis passes print their intermediate results,
	// used by golden tests.
	TestTrace bool
}

// Pass is the common surface of every pipeline stage.
type Pass interface {
	Name() string
}

// ModulePass runs once over the whole module.
type ModulePass interface {
	Pass
	RunOnModule(m *ir.Module, info *RunInformation) error
}

// FunctionPass runs over every function that has a body.
type FunctionPass interface {
	Pass
	RunOnFunction(fn *ir.Function, info *RunInformation) error
}

// BasicBlockPass runs over every block of every function body.
type BasicBlockPass interface {
	Pass
	RunOnBlock(bb *ir.BasicBlock, info *RunInformation) error
}

// Manager executes an ordered list of passes over one module.
type Manager struct {
	passes []Pass
	info   RunInformation

	// EmitIRPost, when set to a pass name, dumps the module after that
	// pass runs.
	EmitIRPost string
	// AnnotateIR includes instruction debug comments in dumps.
	AnnotateIR bool
	// DumpSink receives the post-pass dumps. Defaults to the general
	// logging channel when nil.
	DumpSink func(string)
}

// NewManager creates an empty manager with the given run flags.
func NewManager(info RunInformation) *Manager {
	return &Manager{info: info}
}

// Add appends a pass to the pipeline.
func (m *Manager) Add(p Pass) { m.passes = append(m.passes, p) }

// Passes returns the registered pipeline, in order.
func (m *Manager) Passes() []Pass { return m.passes }

// Run executes the pipeline in order, stopping at the first error.
func (m *Manager) Run(mod *ir.Module) error {
	for _, p := range m.passes {
		if err := m.runOne(p, mod); err != nil {
			return fmt.Errorf("pass %s: %w", p.Name(), err)
		}
		if m.EmitIRPost == p.Name() {
			dump := ir.FormatModule(mod, m.AnnotateIR)
			if m.DumpSink != nil {
				m.DumpSink(dump)
			} else {
				logging.Infof(logging.General, "IR after %s:\n%s", p.Name(), dump)
			}
		}
	}
	return nil
}

func (m *Manager) runOne(p Pass, mod *ir.Module) error {
	switch pass := p.(type) {
	case ModulePass:
		return pass.RunOnModule(mod, &m.info)
	case FunctionPass:
		for _, fn := range mod.Functions() {
			if !fn.HasBody() {
				continue
			}
			if err := pass.RunOnFunction(fn, &m.info); err != nil {
				return err
			}
		}
		return nil
	case BasicBlockPass:
		for _, fn := range mod.Functions() {
			for _, bb := range fn.Blocks() {
				if err := pass.RunOnBlock(bb, &m.info); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		panic(fmt.Sprintf("BUG: pass %s implements no pass category", p.Name()))
	}
}
