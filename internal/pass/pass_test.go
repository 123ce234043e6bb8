package pass

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/armlet/armlet/internal/ir"
)

type recordingPass struct {
	name string
	log  *[]string
	fail bool
}

func (p recordingPass) Name() string { return p.name }

func (p recordingPass) RunOnModule(_ *ir.Module, _ *RunInformation) error {
	*p.log = append(*p.log, p.name)
	if p.fail {
		return errors.New("boom")
	}
	return nil
}

type recordingFunctionPass struct {
	name string
	log  *[]string
}

func (p recordingFunctionPass) Name() string { return p.name }

func (p recordingFunctionPass) RunOnFunction(fn *ir.Function, _ *RunInformation) error {
	*p.log = append(*p.log, p.name+":"+fn.Name())
	return nil
}

func newModuleWithBodies(names ...string) *ir.Module {
	m := ir.NewModule("test.c")
	for _, name := range names {
		fn := ir.NewFunction(ir.FuncType(ir.Void), name, nil)
		bb := ir.NewBasicBlock()
		fn.Append(bb)
		bb.Append(ir.NewRet())
		m.RegisterFunction(fn)
	}
	return m
}

func TestManagerRunsPassesInOrder(t *testing.T) {
	var log []string
	mgr := NewManager(RunInformation{})
	mgr.Add(recordingPass{name: "first", log: &log})
	mgr.Add(recordingFunctionPass{name: "second", log: &log})
	mgr.Add(recordingPass{name: "third", log: &log})

	require.NoError(t, mgr.Run(newModuleWithBodies("a", "b")))
	require.Equal(t, []string{"first", "second:a", "second:b", "third"}, log)
}

func TestManagerStopsAtFirstError(t *testing.T) {
	var log []string
	mgr := NewManager(RunInformation{})
	mgr.Add(recordingPass{name: "ok", log: &log})
	mgr.Add(recordingPass{name: "bad", log: &log, fail: true})
	mgr.Add(recordingPass{name: "never", log: &log})

	err := mgr.Run(newModuleWithBodies("a"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "pass bad")
	require.Equal(t, []string{"ok", "bad"}, log)
}

func TestManagerSkipsDeclarationsForFunctionPasses(t *testing.T) {
	var log []string
	m := newModuleWithBodies("body")
	m.RegisterFunction(ir.NewFunction(ir.FuncType(ir.Void), "decl", nil))

	mgr := NewManager(RunInformation{})
	mgr.Add(recordingFunctionPass{name: "fp", log: &log})
	require.NoError(t, mgr.Run(m))
	require.Equal(t, []string{"fp:body"}, log)
}

func TestManagerEmitIRPost(t *testing.T) {
	var dumps []string
	mgr := NewManager(RunInformation{})
	mgr.EmitIRPost = "marker"
	mgr.DumpSink = func(s string) { dumps = append(dumps, s) }

	var log []string
	mgr.Add(recordingPass{name: "other", log: &log})
	mgr.Add(recordingPass{name: "marker", log: &log})

	require.NoError(t, mgr.Run(newModuleWithBodies("dumped")))
	require.Len(t, dumps, 1)
	require.Contains(t, dumps[0], "function dumped(): void {")
}
