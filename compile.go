// Package armlet is an ahead-of-time compiler back end that lowers a
// typed, SSA-style intermediate representation to 32-bit ARMv7 textual
// assembly.
//
// A front-end builds an ir.Module (fully-typed functions whose blocks
// all terminate, plus struct declarations and initialised globals) and
// hands it to Compile, which runs the fixed lowering pipeline:
// legalisation, generic lowering, the scalar optimisations, calling
// convention, machine pattern matching, linear-scan register
// allocation and assembly emission.
package armlet

import (
	"github.com/pkg/errors"

	"github.com/armlet/armlet/internal/backend/arm"
	"github.com/armlet/armlet/internal/backend/regalloc"
	"github.com/armlet/armlet/internal/ir"
	"github.com/armlet/armlet/internal/pass"
	"github.com/armlet/armlet/internal/passes"
)

// Compile lowers mod to ARMv7 assembly per cfg. The module is consumed:
// passes rewrite it in place all the way down to machine form.
func Compile(mod *ir.Module, cfg *Config) error {
	if mod == nil {
		return errors.New("no module to compile")
	}
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg.applyLogging()

	manager := NewPipeline(cfg)
	return manager.Run(mod)
}

// NewPipeline builds the fixed pass pipeline for cfg. Exposed so
// drivers and tests can run a prefix of the pipeline or inspect pass
// names for option validation.
func NewPipeline(cfg *Config) *pass.Manager {
	manager := pass.NewManager(pass.RunInformation{TestTrace: cfg.testTrace})
	manager.EmitIRPost = cfg.emitIRPost
	manager.AnnotateIR = cfg.annotateIR
	manager.DumpSink = cfg.dumpSink

	manager.Add(passes.Validate{})
	manager.Add(passes.GenericLegalizer{})
	manager.Add(passes.LegaliseStructs{})
	manager.Add(passes.LowerStructStackAllocation{})
	manager.Add(passes.Mem2Reg{})
	manager.Add(passes.SCP{})
	manager.Add(passes.DCE{})
	manager.Add(passes.PeepholeGeneric{})
	manager.Add(passes.ReturnCombine{})
	manager.Add(passes.GenericLowering{})
	manager.Add(passes.NewConstantHoisting())
	manager.Add(passes.CConv{})
	manager.Add(arm.MachineExpander{})
	manager.Add(arm.ArmSplitConstants{})
	manager.Add(&regalloc.LinearScan{})
	manager.Add(&arm.AssemblyEmitter{OutputPath: cfg.outputPath, Stdout: cfg.stdout})

	return manager
}
