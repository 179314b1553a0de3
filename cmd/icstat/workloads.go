package main

import (
	"fmt"
	"sort"

	"github.com/chazu/shapecache/ic"
	"github.com/chazu/shapecache/vm"
)

// runner drives one workload against an isolate's engine.
type runner struct {
	iso *vm.Isolate
	e   *ic.Engine
	n   int
}

type workload struct {
	name string
	desc string
	run  func(r *runner) error
}

var workloads = []workload{
	{"points", "monomorphic field loads and stores on one shape", runPoints},
	{"shapes", "one load site fed objects of many shapes", runShapes},
	{"arrays", "keyed loads and stores over smi, double and typed arrays", runArrays},
	{"calls", "constant, API and global function calls", runCalls},
	{"accessors", "native accessors and getter functions", runAccessors},
	{"compare", "comparisons widening from smi to generic", runCompare},
}

func workloadNames() []string {
	names := make([]string, len(workloads))
	for i, w := range workloads {
		names[i] = w.name
	}
	return names
}

// selectWorkloads resolves names; an empty list selects every workload.
func selectWorkloads(names []string) ([]workload, error) {
	if len(names) == 0 {
		return workloads, nil
	}
	byName := make(map[string]workload, len(workloads))
	for _, w := range workloads {
		byName[w.name] = w
	}
	var out []workload
	for _, n := range names {
		w, ok := byName[n]
		if !ok {
			sorted := workloadNames()
			sort.Strings(sorted)
			return nil, fmt.Errorf("unknown workload %q (have %v)", n, sorted)
		}
		out = append(out, w)
	}
	return out, nil
}

// Site ids are spaced per workload so several workloads can share an
// engine.
func siteID(base, i int) int { return base*100 + i }

func (r *runner) object(props ...any) (*vm.JSObject, error) {
	o := r.iso.NewObject()
	for i := 0; i < len(props); i += 2 {
		name := r.iso.Name(props[i].(string))
		if err := r.iso.SetProperty(r.iso.ValueOf(o), name, props[i+1].(vm.Value), true); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func runPoints(r *runner) error {
	points := make([]*vm.JSObject, 16)
	for i := range points {
		p, err := r.object("x", vm.FromSmi(int64(i)), "y", vm.FromSmi(int64(-i)))
		if err != nil {
			return err
		}
		points[i] = p
	}
	loadX := r.e.Site(siteID(1, 0), ic.KindLoad, "x")
	loadY := r.e.Site(siteID(1, 1), ic.KindLoad, "y")
	storeX := r.e.Site(siteID(1, 2), ic.KindStore, "x")
	for i := 0; i < r.n; i++ {
		p := r.iso.ValueOf(points[i%len(points)])
		x, err := r.e.Load(loadX, p)
		if err != nil {
			return err
		}
		y, err := r.e.Load(loadY, p)
		if err != nil {
			return err
		}
		if err := r.e.Store(storeX, p, vm.FromSmi(x.Smi()+y.Smi()+1), true); err != nil {
			return err
		}
	}
	return nil
}

func runShapes(r *runner) error {
	var objs []*vm.JSObject
	for i := 0; i < 12; i++ {
		props := []any{"id", vm.FromSmi(int64(i))}
		for j := 0; j < i%6; j++ {
			props = append(props, fmt.Sprintf("f%d_%d", i, j), vm.True)
		}
		o, err := r.object(props...)
		if err != nil {
			return err
		}
		objs = append(objs, o)
	}
	few := r.e.Site(siteID(2, 0), ic.KindLoad, "id")
	many := r.e.Site(siteID(2, 1), ic.KindLoad, "id")
	for i := 0; i < r.n; i++ {
		if _, err := r.e.Load(few, r.iso.ValueOf(objs[i%3])); err != nil {
			return err
		}
		if _, err := r.e.Load(many, r.iso.ValueOf(objs[i%len(objs)])); err != nil {
			return err
		}
	}
	return nil
}

func runArrays(r *runner) error {
	smis := r.iso.NewArrayFrom(vm.FromSmi(1), vm.FromSmi(2), vm.FromSmi(3), vm.FromSmi(4))
	doubles := r.iso.NewArrayFrom(vm.FromFloat64(0.5), vm.FromFloat64(1.5))
	bytes := r.iso.NewTypedArray(vm.Uint8Elements, 8)
	growing := r.iso.NewArrayFrom()

	load := r.e.Site(siteID(3, 0), ic.KindKeyedLoad, "")
	store := r.e.Site(siteID(3, 1), ic.KindKeyedStore, "")
	push := r.e.Site(siteID(3, 2), ic.KindKeyedStore, "")
	arrays := []*vm.JSObject{smis, doubles, bytes}
	for i := 0; i < r.n; i++ {
		a := arrays[i%len(arrays)]
		idx := vm.FromSmi(int64(i % a.Length()))
		v, err := r.e.KeyedLoad(load, r.iso.ValueOf(a), idx)
		if err != nil {
			return err
		}
		if err := r.e.KeyedStore(store, r.iso.ValueOf(a), idx, v, true); err != nil {
			return err
		}
		if i < 256 {
			if err := r.e.KeyedStore(push, r.iso.ValueOf(growing), vm.FromSmi(int64(i)), vm.FromSmi(int64(i)), true); err != nil {
				return err
			}
		}
	}
	return nil
}

func runCalls(r *runner) error {
	iso := r.iso
	point := &vm.FunctionTemplate{Name: "Point"}
	norm := iso.NewTemplateFunction(&vm.FunctionTemplate{
		Name: "norm",
		CallHandler: &vm.CallHandlerInfo{Callback: func(info *vm.FunctionCallbackInfo) error {
			info.SetReturnValue(vm.FromSmi(int64(info.Len())))
			return nil
		}},
		Signature: &vm.Signature{Receiver: point},
	})
	inc := iso.NewFunction("inc", func(_ *vm.Isolate, _ vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 0 || !args[0].IsSmi() {
			return vm.FromSmi(0), nil
		}
		return vm.FromSmi(args[0].Smi() + 1), nil
	})

	proto := iso.NewObject()
	if err := iso.DefineMethod(proto, iso.Name("norm"), norm); err != nil {
		return err
	}
	if err := iso.DefineMethod(proto, iso.Name("inc"), inc); err != nil {
		return err
	}
	p := iso.ValueOf(iso.NewInstance(point, proto))
	if err := iso.SetProperty(iso.ValueOf(iso.Global), iso.Name("helper"), iso.ValueOf(inc), false); err != nil {
		return err
	}

	callNorm := r.e.Site(siteID(4, 0), ic.KindCall, "norm")
	callInc := r.e.Site(siteID(4, 1), ic.KindCall, "inc")
	callHelper := r.e.Site(siteID(4, 2), ic.KindCall, "helper")
	global := iso.ValueOf(iso.Global)
	acc := vm.FromSmi(0)
	for i := 0; i < r.n; i++ {
		if _, err := r.e.Call(callNorm, p, []vm.Value{acc}); err != nil {
			return err
		}
		v, err := r.e.Call(callInc, p, []vm.Value{acc})
		if err != nil {
			return err
		}
		if acc, err = r.e.Call(callHelper, global, []vm.Value{v}); err != nil {
			return err
		}
	}
	return nil
}

func runAccessors(r *runner) error {
	iso := r.iso
	tmpl := &vm.FunctionTemplate{Name: "Counter"}
	var reads int64
	tmpl.SetAccessor("count", func(_ *vm.Name, info *vm.PropertyCallbackArguments) error {
		reads++
		info.SetReturnValue(vm.FromSmi(reads))
		return nil
	}, nil, vm.Undefined)
	counter := iso.ValueOf(iso.NewInstance(tmpl, iso.ObjectPrototype))

	getter := iso.NewFunction("get area", func(iso *vm.Isolate, this vm.Value, _ []vm.Value) (vm.Value, error) {
		return iso.GetProperty(this, iso.Name("side"))
	})
	proto := iso.NewObject()
	iso.DefineAccessor(proto, iso.Name("area"), iso.ValueOf(getter), vm.Undefined, vm.AttrNone)
	sq := iso.NewObjectWithPrototype(proto)
	if err := iso.SetProperty(iso.ValueOf(sq), iso.Name("side"), vm.FromSmi(3), true); err != nil {
		return err
	}

	loadCount := r.e.Site(siteID(5, 0), ic.KindLoad, "count")
	loadArea := r.e.Site(siteID(5, 1), ic.KindLoad, "area")
	for i := 0; i < r.n; i++ {
		if _, err := r.e.Load(loadCount, counter); err != nil {
			return err
		}
		if _, err := r.e.Load(loadArea, iso.ValueOf(sq)); err != nil {
			return err
		}
	}
	return nil
}

func runCompare(r *runner) error {
	lt := r.e.CompareSite(siteID(6, 0), vm.OpLT)
	eq := r.e.CompareSite(siteID(6, 1), vm.OpStrictEq)
	a, b := r.iso.InternalizedString("left"), r.iso.InternalizedString("right")
	for i := 0; i < r.n; i++ {
		x := vm.FromSmi(int64(i))
		y := vm.FromSmi(int64(r.n - i))
		if i > r.n/2 {
			y = vm.FromFloat64(float64(r.n-i) + 0.5)
		}
		if _, err := r.e.Compare(lt, x, y); err != nil {
			return err
		}
		if _, err := r.e.Compare(eq, a, b); err != nil {
			return err
		}
	}
	return nil
}
