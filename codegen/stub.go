package codegen

import (
	"fmt"

	"github.com/chazu/shapecache/vm"
)

// GuardKind selects the check a guard performs.
type GuardKind uint8

const (
	// GuardShape compares an object's shape with a constant.
	GuardShape GuardKind = iota
	// GuardNegativeLookup proves a name absent from a dictionary-mode
	// object's property dictionary.
	GuardNegativeLookup
	// GuardPropertyCell requires a global property cell to hold the hole.
	GuardPropertyCell
	// GuardAccessCheck compares a global proxy's security token.
	GuardAccessCheck
	// GuardCellValue requires a property cell to hold a specific value.
	GuardCellValue
)

var guardNames = [...]string{"shape", "negative-lookup", "property-cell", "access-check", "cell-value"}

func (k GuardKind) String() string {
	if int(k) < len(guardNames) {
		return guardNames[k]
	}
	return "?"
}

// Guard is one check emitted before a handler's body.
type Guard struct {
	Kind  GuardKind
	Depth int

	// Object is the checked object; the zero literal means the receiver.
	Object Literal
	Shape  Literal
	Cell   Literal
	Name   Literal
	Token  Literal
	Value  Literal
}

// Op selects the body template of a stub.
type Op uint8

const (
	OpLoadField Op = iota
	OpLoadConstant
	OpLoadCallback
	OpLoadViaGetter
	OpLoadInterceptor
	OpLoadNonexistent
	OpLoadNormal
	OpLoadGlobal
	OpLoadArrayLength
	OpLoadStringLength
	OpStoreField
	OpStoreTransition
	OpStoreCallback
	OpStoreViaSetter
	OpStoreInterceptor
	OpStoreNormal
	OpStoreGlobal
	OpStoreArrayLength
	OpKeyedLoadElement
	OpKeyedStoreElement
	OpCallConstant
	OpTailCallRuntime
)

var opNames = [...]string{
	"load-field", "load-constant", "load-callback", "load-via-getter", "load-interceptor",
	"load-nonexistent", "load-normal", "load-global", "load-array-length", "load-string-length",
	"store-field", "store-transition", "store-callback", "store-via-setter", "store-interceptor",
	"store-normal", "store-global", "store-array-length", "keyed-load-element",
	"keyed-store-element", "call-constant", "tail-call-runtime",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "?"
}

// Stub describes a handler in enough detail to emit its fast path.
type Stub struct {
	Name   string
	Op     Op
	Guards []Guard

	// Holder is the object the property lives on; zero means the
	// receiver.
	Holder   Literal
	InObject bool
	Offset   int
	Repr     vm.Representation
	Barrier  bool

	Constant Literal
	NewShape Literal
	// ExtendStorage routes a transitioning store through Runtime because
	// the properties array has to grow first.
	ExtendStorage bool

	Callee Literal
	Data   Literal

	ElementsKind vm.ElementsKind
	// GrowElements lets a keyed store append one past the end.
	GrowElements bool
	// IgnoreOutOfBounds drops out-of-bounds typed array stores.
	IgnoreOutOfBounds bool

	// StringWrapper loads the length of a wrapped string.
	StringWrapper bool

	// Post is the inlined lookup step after an interceptor declines.
	Post *Stub

	Runtime Literal
	Miss    Literal

	// Resolve maps builtin names to their external reference values.
	Resolve func(name string) uint64
}

// Layout offsets of the runtime's heap objects that compiled code reads.
const (
	StringLengthOffset      = vm.SlotSize
	WrapperValueOffset      = vm.ObjectHeaderSize
	ProxyTokenOffset        = vm.ObjectHeaderSize
	callbackReturnSlot      = vm.ArgsReturnValueIndex * vm.SlotSize
	heapNumberMapBuiltin    = "heap_number_map"
	recordWriteBuiltin      = "record_write"
	allocateNumberBuiltin   = "allocate_heap_number"
	callFunctionBuiltin     = "call_function"
	dictionaryLookupBuiltin = "name_dictionary_lookup"
	dictionaryStoreBuiltin  = "name_dictionary_store"
	numberLookupBuiltin     = "number_dictionary_lookup"
	negativeLookupBuiltin   = "negative_dictionary_lookup"
)

// Builtins lists the builtin entry points stub templates call.
func Builtins() []string {
	return []string{
		heapNumberMapBuiltin, recordWriteBuiltin, allocateNumberBuiltin, callFunctionBuiltin,
		dictionaryLookupBuiltin, dictionaryStoreBuiltin, numberLookupBuiltin, negativeLookupBuiltin,
	}
}

func (s *Stub) builtin(name string) Literal {
	var v uint64
	if s.Resolve != nil {
		v = s.Resolve(name)
	}
	return Literal{Value: v, Comment: name}
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

// Assemble emits the arm64 fast path for s. Every guard branches to one
// shared miss label that drops the frame and tail-calls the miss entry.
func Assemble(s Stub) (*Code, error) {
	e := newEmitter()
	miss := e.newLabel()
	done := e.newLabel()

	e.pushFrame()
	if needsReceiverHeapCheck(&s) {
		e.tbz(ReceiverReg, 0, miss)
	}
	for _, g := range s.Guards {
		emitGuard(e, &s, g, miss)
	}
	if err := emitBody(e, &s, miss, done); err != nil {
		return nil, err
	}

	e.bind(done)
	e.popFrame()
	e.ret()

	e.bind(miss)
	e.popFrame()
	e.ldrLiteral(IP0, s.Miss.Value, s.Miss.Comment)
	e.br(IP0)

	return e.finish(s.Name)
}

// needsReceiverHeapCheck reports whether the first guard dereferences the
// receiver, which must therefore not be a smi.
func needsReceiverHeapCheck(s *Stub) bool {
	for _, g := range s.Guards {
		if g.Object.Value == 0 && g.Kind == GuardShape {
			return true
		}
	}
	return false
}

func emitGuard(e *emitter, s *Stub, g Guard, miss label) {
	obj := ReceiverReg
	if g.Object.Value != 0 {
		e.ldrLiteral(HolderReg, g.Object.Value, g.Object.Comment)
		obj = HolderReg
	}
	switch g.Kind {
	case GuardShape:
		e.fieldLoad(Scratch1, obj, vm.ShapeOffset)
		e.ldrLiteral(Scratch2, g.Shape.Value, g.Shape.Comment)
		e.cmp(Scratch1, Scratch2)
		e.bcond(CondNE, miss)
	case GuardNegativeLookup:
		e.fieldLoad(Scratch1, obj, vm.ShapeOffset)
		e.ldrLiteral(Scratch2, g.Shape.Value, g.Shape.Comment)
		e.cmp(Scratch1, Scratch2)
		e.bcond(CondNE, miss)
		e.fieldLoad(Scratch1, obj, vm.PropertiesOffset)
		e.ldrLiteral(Scratch2, g.Name.Value, g.Name.Comment)
		b := s.builtin(negativeLookupBuiltin)
		e.ldrLiteral(IP0, b.Value, b.Comment)
		e.blr(IP0)
		e.cbnz(Scratch2, miss)
	case GuardPropertyCell:
		e.ldrLiteral(Scratch1, g.Cell.Value, g.Cell.Comment)
		e.fieldLoad(Scratch1, Scratch1, vm.CellValueOffset)
		e.ldrLiteral(Scratch2, uint64(vm.TheHole), "the_hole")
		e.cmp(Scratch1, Scratch2)
		e.bcond(CondNE, miss)
	case GuardAccessCheck:
		e.fieldLoad(Scratch1, obj, vm.ShapeOffset)
		e.ldrLiteral(Scratch2, g.Shape.Value, g.Shape.Comment)
		e.cmp(Scratch1, Scratch2)
		e.bcond(CondNE, miss)
		e.fieldLoad(Scratch1, obj, ProxyTokenOffset)
		e.ldrLiteral(Scratch2, g.Token.Value, g.Token.Comment)
		e.cmp(Scratch1, Scratch2)
		e.bcond(CondNE, miss)
	case GuardCellValue:
		e.ldrLiteral(Scratch1, g.Cell.Value, g.Cell.Comment)
		e.fieldLoad(Scratch1, Scratch1, vm.CellValueOffset)
		e.ldrLiteral(Scratch2, g.Value.Value, g.Value.Comment)
		e.cmp(Scratch1, Scratch2)
		e.bcond(CondNE, miss)
	}
}

// holder leaves the holder object in HolderReg.
func holder(e *emitter, s *Stub) Reg {
	if s.Holder.Value == 0 {
		return ReceiverReg
	}
	e.ldrLiteral(HolderReg, s.Holder.Value, s.Holder.Comment)
	return HolderReg
}

// fieldBase returns the register holding the object or properties array
// the field offset is relative to.
func fieldBase(e *emitter, s *Stub, obj Reg) Reg {
	if s.InObject {
		return obj
	}
	e.fieldLoad(Scratch3, obj, vm.PropertiesOffset)
	return Scratch3
}

func callBuiltin(e *emitter, s *Stub, name string) {
	b := s.builtin(name)
	e.ldrLiteral(IP0, b.Value, b.Comment)
	e.blr(IP0)
}

func callRuntime(e *emitter, s *Stub) {
	e.ldrLiteral(IP0, s.Runtime.Value, s.Runtime.Comment)
	e.blr(IP0)
}

func emitBody(e *emitter, s *Stub, miss, done label) error {
	switch s.Op {
	case OpLoadField:
		base := fieldBase(e, s, holder(e, s))
		e.fieldLoad(ReceiverReg, base, s.Offset)
		if s.Repr == vm.ReprDouble {
			e.lduD(0, ReceiverReg, vm.HeapNumberValueOffset)
			callBuiltin(e, s, allocateNumberBuiltin)
		}
	case OpLoadConstant:
		e.ldrLiteral(ReceiverReg, s.Constant.Value, s.Constant.Comment)
	case OpLoadCallback, OpStoreCallback:
		emitCallbackCall(e, s)
	case OpLoadViaGetter:
		e.ldrLiteral(ValueReg, s.Callee.Value, s.Callee.Comment)
		callBuiltin(e, s, callFunctionBuiltin)
	case OpStoreViaSetter:
		e.mov(KeyedValue, ValueReg)
		e.ldrLiteral(ValueReg, s.Callee.Value, s.Callee.Comment)
		callBuiltin(e, s, callFunctionBuiltin)
		e.mov(ReceiverReg, KeyedValue)
	case OpLoadInterceptor:
		e.mov(Scratch3, ReceiverReg)
		callRuntime(e, s)
		e.ldrLiteral(Scratch1, uint64(vm.NoInterceptorResult), "no_interceptor_result")
		e.cmp(ReceiverReg, Scratch1)
		e.bcond(CondNE, done)
		e.mov(ReceiverReg, Scratch3)
		if s.Post == nil {
			return fmt.Errorf("%s: interceptor stub without post-interceptor step", s.Name)
		}
		post := *s.Post
		post.Resolve = s.Resolve
		for _, g := range post.Guards {
			emitGuard(e, &post, g, miss)
		}
		return emitBody(e, &post, miss, done)
	case OpLoadNonexistent:
		e.ldrLiteral(ReceiverReg, uint64(vm.Undefined), "undefined")
	case OpLoadNormal:
		e.fieldLoad(Scratch1, ReceiverReg, vm.PropertiesOffset)
		e.mov(Scratch2, NameReg)
		callBuiltin(e, s, dictionaryLookupBuiltin)
		e.cbz(Scratch2, miss)
	case OpStoreNormal:
		e.fieldLoad(Scratch1, ReceiverReg, vm.PropertiesOffset)
		e.mov(Scratch2, NameReg)
		callBuiltin(e, s, dictionaryStoreBuiltin)
		e.cbz(Scratch2, miss)
		e.mov(ReceiverReg, ValueReg)
	case OpLoadGlobal:
		e.ldrLiteral(Scratch1, s.Callee.Value, s.Callee.Comment)
		e.fieldLoad(ReceiverReg, Scratch1, vm.CellValueOffset)
		e.ldrLiteral(Scratch2, uint64(vm.TheHole), "the_hole")
		e.cmp(ReceiverReg, Scratch2)
		e.bcond(CondEQ, miss)
	case OpStoreGlobal:
		e.ldrLiteral(Scratch1, s.Callee.Value, s.Callee.Comment)
		e.fieldLoad(Scratch2, Scratch1, vm.CellValueOffset)
		e.ldrLiteral(Scratch3, uint64(vm.TheHole), "the_hole")
		e.cmp(Scratch2, Scratch3)
		e.bcond(CondEQ, miss)
		e.fieldStore(ValueReg, Scratch1, vm.CellValueOffset)
		callBuiltin(e, s, recordWriteBuiltin)
		e.mov(ReceiverReg, ValueReg)
	case OpLoadArrayLength:
		e.fieldLoad(ReceiverReg, ReceiverReg, vm.ArrayLengthOffset)
	case OpLoadStringLength:
		if s.StringWrapper {
			e.fieldLoad(ReceiverReg, ReceiverReg, WrapperValueOffset)
		}
		e.fieldLoad(ReceiverReg, ReceiverReg, StringLengthOffset)
	case OpStoreField:
		emitValueCheck(e, s, miss)
		emitFieldStore(e, s, ReceiverReg)
		e.mov(ReceiverReg, ValueReg)
	case OpStoreTransition:
		emitValueCheck(e, s, miss)
		if s.ExtendStorage {
			e.ldrLiteral(Scratch1, s.NewShape.Value, s.NewShape.Comment)
			callRuntime(e, s)
			break
		}
		if s.Repr == vm.ReprDouble {
			callBuiltin(e, s, allocateNumberBuiltin)
		}
		e.ldrLiteral(Scratch1, s.NewShape.Value, s.NewShape.Comment)
		e.fieldStore(Scratch1, ReceiverReg, vm.ShapeOffset)
		callBuiltin(e, s, recordWriteBuiltin)
		emitFieldStore(e, s, ReceiverReg)
		e.mov(ReceiverReg, ValueReg)
	case OpStoreInterceptor, OpTailCallRuntime:
		e.popFrame()
		e.ldrLiteral(IP0, s.Runtime.Value, s.Runtime.Comment)
		e.br(IP0)
		return nil
	case OpStoreArrayLength:
		e.tbnz(ValueReg, 0, miss)
		callRuntime(e, s)
	case OpKeyedLoadElement:
		emitElementAccess(e, s, miss, false)
	case OpKeyedStoreElement:
		emitElementAccess(e, s, miss, true)
	case OpCallConstant:
		e.ldrLiteral(ValueReg, s.Callee.Value, s.Callee.Comment)
		callBuiltin(e, s, callFunctionBuiltin)
	default:
		return fmt.Errorf("%s: no template for %s", s.Name, s.Op)
	}
	return nil
}

// emitValueCheck rejects values that do not fit the field's
// representation.
func emitValueCheck(e *emitter, s *Stub, miss label) {
	switch s.Repr {
	case vm.ReprSmi:
		e.tbnz(ValueReg, 0, miss)
	case vm.ReprHeapObject:
		e.tbz(ValueReg, 0, miss)
	}
}

// emitFieldStore writes ValueReg into the field at s.Offset of obj.
// Double fields write the unboxed bits into the existing box: smis are
// converted inline, heap numbers are type checked first.
func emitFieldStore(e *emitter, s *Stub, obj Reg) {
	base := fieldBase(e, s, obj)
	if s.Repr == vm.ReprDouble {
		heapNumber := e.newLabel()
		store := e.newLabel()
		e.fieldLoad(Scratch1, base, s.Offset)
		e.tbnz(ValueReg, 0, heapNumber)
		e.asr1(Scratch2, ValueReg)
		e.scvtf(0, Scratch2)
		e.b(store)
		e.bind(heapNumber)
		e.fieldLoad(Scratch2, ValueReg, vm.ShapeOffset)
		m := s.builtin(heapNumberMapBuiltin)
		e.ldrLiteral(HolderReg, m.Value, m.Comment)
		e.cmp(Scratch2, HolderReg)
		e.bcond(CondNE, store)
		e.lduD(0, ValueReg, vm.HeapNumberValueOffset)
		e.bind(store)
		e.stuD(0, Scratch1, vm.HeapNumberValueOffset)
		return
	}
	e.fieldStore(ValueReg, base, s.Offset)
	if s.Barrier && s.Repr != vm.ReprSmi {
		e.mov(Scratch1, base)
		callBuiltin(e, s, recordWriteBuiltin)
	}
}

// emitCallbackCall lays out the property callback argument block on the
// stack in ABI order and calls the native callback.
func emitCallbackCall(e *emitter, s *Stub) {
	n := vm.ArgsGetterLength
	if s.Op == OpStoreCallback {
		n = vm.ArgsSetterLength
	}
	size := (n*vm.SlotSize + 15) &^ 15
	e.subImm(SP, SP, size)
	h := holder(e, s)
	e.stur(h, SP, vm.ArgsHolderIndex*vm.SlotSize)
	e.ldrLiteral(Scratch1, 0, "isolate")
	e.stur(Scratch1, SP, vm.ArgsIsolateIndex*vm.SlotSize)
	e.ldrLiteral(Scratch1, uint64(vm.NoInterceptorResult), "no_interceptor_result")
	e.stur(Scratch1, SP, callbackReturnSlot)
	e.ldrLiteral(Scratch1, s.Data.Value, s.Data.Comment)
	e.stur(Scratch1, SP, vm.ArgsDataIndex*vm.SlotSize)
	e.stur(ReceiverReg, SP, vm.ArgsThisIndex*vm.SlotSize)
	if s.Op == OpStoreCallback {
		e.stur(ValueReg, SP, vm.ArgsValueIndex*vm.SlotSize)
	}
	e.addImm(X0, SP, 0)
	e.ldrLiteral(IP0, s.Callee.Value, s.Callee.Comment)
	e.blr(IP0)
	e.ldur(X0, SP, callbackReturnSlot)
	e.addImm(SP, SP, size)
}

// elementShift returns log2 of the element width of kind.
func elementShift(kind vm.ElementsKind) uint32 {
	if !kind.IsTyped() {
		return 3
	}
	switch kind.ElementSize() {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	}
	return 3
}

// emitElementAccess emits a bounds-checked element load or store with the
// key in ValueReg and, for stores, the value in KeyedValue.
func emitElementAccess(e *emitter, s *Stub, miss label, store bool) {
	e.tbnz(ValueReg, 0, miss)
	if s.ElementsKind.IsDictionary() {
		e.fieldLoad(Scratch1, ReceiverReg, vm.ElementsOffset)
		e.mov(Scratch2, ValueReg)
		callBuiltin(e, s, numberLookupBuiltin)
		e.cbz(Scratch2, miss)
		return
	}
	outOfBounds := miss
	if store && s.IgnoreOutOfBounds {
		outOfBounds = e.newLabel()
		defer func() {
			e.bind(outOfBounds)
			e.mov(ReceiverReg, KeyedValue)
		}()
	}
	e.fieldLoad(Scratch1, ReceiverReg, vm.ElementsOffset)
	e.fieldLoad(Scratch2, Scratch1, vm.FixedArrayLengthOffset)
	e.asr1(Scratch3, ValueReg)
	e.cmp(Scratch3, Scratch2)
	if store && s.GrowElements {
		inBounds := e.newLabel()
		e.bcond(CondLO, inBounds)
		e.bcond(CondNE, outOfBounds)
		callRuntime(e, s)
		e.fieldLoad(Scratch1, ReceiverReg, vm.ElementsOffset)
		e.bind(inBounds)
	} else {
		e.bcond(CondHS, outOfBounds)
	}
	e.addShifted(Scratch1, Scratch1, Scratch3, elementShift(s.ElementsKind))
	switch {
	case store && (s.ElementsKind.IsFastDouble() || s.ElementsKind.IsTyped()):
		e.tbnz(KeyedValue, 0, miss)
		e.asr1(Scratch2, KeyedValue)
		e.scvtf(0, Scratch2)
		e.stuD(0, Scratch1, vm.FixedArrayHeaderSize)
		e.mov(ReceiverReg, KeyedValue)
	case store:
		if s.ElementsKind == vm.FastSmiElements {
			e.tbnz(KeyedValue, 0, miss)
		}
		e.fieldStore(KeyedValue, Scratch1, vm.FixedArrayHeaderSize)
		if s.ElementsKind != vm.FastSmiElements {
			callBuiltin(e, s, recordWriteBuiltin)
		}
		e.mov(ReceiverReg, KeyedValue)
	case s.ElementsKind.IsFastDouble() || s.ElementsKind.IsTyped():
		e.lduD(0, Scratch1, vm.FixedArrayHeaderSize)
		callBuiltin(e, s, allocateNumberBuiltin)
	default:
		e.fieldLoad(ReceiverReg, Scratch1, vm.FixedArrayHeaderSize)
		e.ldrLiteral(Scratch2, uint64(vm.TheHole), "the_hole")
		e.cmp(ReceiverReg, Scratch2)
		e.bcond(CondEQ, miss)
	}
}
