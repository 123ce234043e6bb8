package ir

import "fmt"

// Use records a single reference to a value: the using instruction and
// the operand index within it. Every value keeps a list of its uses,
// maintained automatically by Instruction.SetOperand.
type Use struct {
	User  *Instruction
	Index int
}

// Value is anything that can appear as an instruction operand.
type Value interface {
	// Type returns the value's type.
	Type() Type

	// SetType retypes the value in place. Used by the machine expander
	// when fusing extending loads.
	SetType(Type)

	// Uses returns the current use list, in insertion order.
	Uses() []Use

	// Seq returns the value's process-wide creation index. All
	// deterministic orderings over otherwise unordered value sets sort
	// by this.
	Seq() int

	addUse(u Use)
	removeUse(u Use)
}

// valueBase carries the state shared by every Value implementation.
type valueBase struct {
	typ  Type
	uses []Use
	seq  int
}

var valueSeq int

func newValueBase(t Type) valueBase {
	valueSeq++
	return valueBase{typ: t, seq: valueSeq}
}

func (v *valueBase) Type() Type     { return v.typ }
func (v *valueBase) SetType(t Type) { v.typ = t }
func (v *valueBase) Uses() []Use    { return v.uses }
func (v *valueBase) Seq() int       { return v.seq }

func (v *valueBase) addUse(u Use) {
	v.uses = append(v.uses, u)
}

func (v *valueBase) removeUse(u Use) {
	for i := range v.uses {
		if v.uses[i] == u {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
	panic("BUG: removing a use that was never recorded")
}

// VirtualRegisterName is an SSA-style virtual register. It may carry a
// debug name originating from the source program.
type VirtualRegisterName struct {
	valueBase
	debugName string
}

// NewVReg creates a fresh unnamed virtual register of the given type.
func NewVReg(t Type) *VirtualRegisterName {
	return &VirtualRegisterName{valueBase: newValueBase(t)}
}

// NewNamedVReg creates a fresh virtual register carrying a debug name.
func NewNamedVReg(t Type, name string) *VirtualRegisterName {
	return &VirtualRegisterName{valueBase: newValueBase(t), debugName: name}
}

// DebugName returns the source-level name, or "" if none.
func (v *VirtualRegisterName) DebugName() string { return v.debugName }

// PhysicalRegisterName is a target machine register. Instances are
// interned by the target package at start-up and never mutated.
type PhysicalRegisterName struct {
	valueBase
	id   int
	name string
}

// NewPhysReg creates a physical register value. Intended for target
// packages building their register tables once at init.
func NewPhysReg(t Type, id int, name string) *PhysicalRegisterName {
	return &PhysicalRegisterName{valueBase: newValueBase(t), id: id, name: name}
}

// ID returns the target-assigned register number.
func (v *PhysicalRegisterName) ID() int { return v.id }

// Name returns the assembly spelling, e.g. "r4".
func (v *PhysicalRegisterName) Name() string { return v.name }

// ConstantInt is an integer constant, interned by (type, value).
type ConstantInt struct {
	valueBase
	value uint64
}

type constantIntKey struct {
	typ   Type
	value uint64
}

var constantInts = map[constantIntKey]*ConstantInt{}

// NewConstantInt returns the interned constant of the given type and
// value: identical (type, value) pairs yield identical objects.
func NewConstantInt(t Type, value uint64) *ConstantInt {
	key := constantIntKey{typ: t, value: value}
	if c, ok := constantInts[key]; ok {
		return c
	}
	c := &ConstantInt{valueBase: newValueBase(t), value: value}
	constantInts[key] = c
	return c
}

// Value returns the constant's integral value.
func (v *ConstantInt) Value() uint64 { return v.value }

// SetType on an interned constant is forbidden.
func (v *ConstantInt) SetType(Type) { panic("BUG: retyping an interned ConstantInt") }

// UndefValue is the undefined value of a type, interned per type.
type UndefValue struct {
	valueBase
}

var undefs = map[Type]*UndefValue{}

// NewUndef returns the interned undefined value of type t.
func NewUndef(t Type) *UndefValue {
	if u, ok := undefs[t]; ok {
		return u
	}
	u := &UndefValue{valueBase: newValueBase(t)}
	undefs[t] = u
	return u
}

// SetType on an interned undef is forbidden.
func (v *UndefValue) SetType(Type) { panic("BUG: retyping an interned UndefValue") }

// ConstantArray is an aggregate constant over an array type.
type ConstantArray struct {
	valueBase
	values []Value
}

// NewConstantArray creates an array constant; t.Count() must equal
// len(values).
func NewConstantArray(t *ArrayType, values []Value) *ConstantArray {
	if t.Count() != len(values) {
		panic(fmt.Sprintf("BUG: array constant arity mismatch: %d != %d", t.Count(), len(values)))
	}
	return &ConstantArray{valueBase: newValueBase(t), values: append([]Value(nil), values...)}
}

// Values returns the element constants in order.
func (v *ConstantArray) Values() []Value { return v.values }

// ConstantStruct is an aggregate constant over a struct type.
type ConstantStruct struct {
	valueBase
	values []Value
}

// NewConstantStruct creates a struct constant; one value per field.
func NewConstantStruct(t *StructType, values []Value) *ConstantStruct {
	if len(t.Fields()) != len(values) {
		panic(fmt.Sprintf("BUG: struct constant arity mismatch: %d != %d", len(t.Fields()), len(values)))
	}
	return &ConstantStruct{valueBase: newValueBase(t), values: append([]Value(nil), values...)}
}

// Values returns the field constants in order.
func (v *ConstantStruct) Values() []Value { return v.values }

// ConstantByteArray is a raw byte blob, typically a string literal
// (including its explicit NUL terminator).
type ConstantByteArray struct {
	valueBase
	bytes    []byte
	isString bool
}

// NewConstantByteArray creates a byte blob of type [i8 x len(b)].
// isString marks blobs that came from string literals, which the
// emitter prints with .ascii.
func NewConstantByteArray(b []byte, isString bool) *ConstantByteArray {
	return &ConstantByteArray{
		valueBase: newValueBase(ArrayOf(I8, len(b))),
		bytes:     append([]byte(nil), b...),
		isString:  isString,
	}
}

// Bytes returns the raw contents.
func (v *ConstantByteArray) Bytes() []byte { return v.bytes }

// IsString reports whether the blob came from a string literal.
func (v *ConstantByteArray) IsString() bool { return v.isString }

// GlobalVariable is a module-level variable. Its value type is always
// the opaque pointer; the pointee type is BaseType.
type GlobalVariable struct {
	valueBase
	name     string
	baseType Type
	init     Value
}

// NewGlobalVariable creates a global of the given pointee type with an
// optional initialiser (nil for uninitialised).
func NewGlobalVariable(name string, baseType Type, init Value) *GlobalVariable {
	return &GlobalVariable{valueBase: newValueBase(Pointer), name: name, baseType: baseType, init: init}
}

// Name returns the global's symbol name.
func (v *GlobalVariable) Name() string { return v.name }

// BaseType returns the pointee type.
func (v *GlobalVariable) BaseType() Type { return v.baseType }

// Init returns the initialiser, or nil.
func (v *GlobalVariable) Init() Value { return v.init }

// BlockBranchTarget wraps a basic block so branch instructions can
// reference it as an operand. Each block owns exactly one.
type BlockBranchTarget struct {
	valueBase
	block *BasicBlock
}

// Block returns the wrapped basic block.
func (v *BlockBranchTarget) Block() *BasicBlock { return v.block }

// IsRegister reports whether v names a register at either level.
func IsRegister(v Value) bool {
	switch v.(type) {
	case *VirtualRegisterName, *PhysicalRegisterName:
		return true
	}
	return false
}

// IsGlobal reports whether v is a global variable reference.
func IsGlobal(v Value) bool {
	_, ok := v.(*GlobalVariable)
	return ok
}

// IsConstantInt reports whether v is an integer constant.
func IsConstantInt(v Value) bool {
	_, ok := v.(*ConstantInt)
	return ok
}
