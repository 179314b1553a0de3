package vm

import (
	"math"
	"testing"
)

func TestNumberRoundTrip(t *testing.T) {
	tests := []float64{
		0.5,
		-1.25,
		3.14159265358979,
		math.MaxFloat64,
		math.SmallestNonzeroFloat64,
		math.Inf(1),
		math.Inf(-1),
	}

	for _, f := range tests {
		v := FromFloat64(f)
		if !v.IsNumber() {
			t.Errorf("FromFloat64(%v).IsNumber() = false", f)
			continue
		}
		if got := v.Float64(); got != f {
			t.Errorf("FromFloat64(%v).Float64() = %v", f, got)
		}
	}

	if !FromFloat64(math.NaN()).IsNumber() {
		t.Error("NaN should be a number")
	}
}

func TestSmiRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, MaxSmi, MinSmi} {
		v := FromSmi(n)
		if !v.IsSmi() {
			t.Errorf("FromSmi(%d).IsSmi() = false", n)
		}
		if v.IsNumber() || v.IsRef() || v.IsName() {
			t.Errorf("FromSmi(%d) has more than one tag", n)
		}
		if got := v.Smi(); got != n {
			t.Errorf("FromSmi(%d).Smi() = %d", n, got)
		}
	}

	if _, ok := TryFromSmi(MaxSmi + 1); ok {
		t.Error("TryFromSmi should reject values above MaxSmi")
	}
}

func TestFromNumberCanonicalizes(t *testing.T) {
	if v := FromNumber(7); !v.IsSmi() || v.Smi() != 7 {
		t.Errorf("FromNumber(7) = %v, want smi", v)
	}
	if v := FromNumber(7.5); !v.IsNumber() {
		t.Errorf("FromNumber(7.5) = %v, want double", v)
	}
	negZero := math.Copysign(0, -1)
	if v := FromNumber(negZero); !v.IsNumber() || !math.Signbit(v.Float64()) {
		t.Error("FromNumber(-0) must stay a double")
	}
}

func TestOddballs(t *testing.T) {
	specials := []Value{Undefined, Null, True, False, TheHole, NoInterceptorResult}
	for i, a := range specials {
		if !a.IsSpecial() {
			t.Errorf("%v should be special", a)
		}
		for j, b := range specials {
			if i != j && a == b {
				t.Errorf("%v and %v collide", a, b)
			}
		}
	}
	if !Undefined.IsNullish() || !Null.IsNullish() || False.IsNullish() {
		t.Error("IsNullish mismatch")
	}
}

func TestRefAndNameTags(t *testing.T) {
	r := FromRef(12345)
	if !r.IsRef() || r.Ref() != 12345 {
		t.Errorf("FromRef round trip failed: %v", r)
	}
	n := FromNameID(77)
	if !n.IsName() || n.NameID() != 77 {
		t.Errorf("FromNameID round trip failed: %v", n)
	}
	if r.IsName() || n.IsRef() {
		t.Error("tags overlap")
	}
}

func TestTruthiness(t *testing.T) {
	falsy := []Value{False, Null, Undefined, FromSmi(0), FromFloat64(math.NaN())}
	for _, v := range falsy {
		if v.IsTruthy() {
			t.Errorf("%v should be falsy", v)
		}
	}
	truthy := []Value{True, FromSmi(3), FromFloat64(0.1), FromRef(1)}
	for _, v := range truthy {
		if !v.IsTruthy() {
			t.Errorf("%v should be truthy", v)
		}
	}
}

func TestRepresentationLattice(t *testing.T) {
	tests := []struct {
		a, b, want Representation
	}{
		{ReprNone, ReprSmi, ReprSmi},
		{ReprSmi, ReprDouble, ReprDouble},
		{ReprSmi, ReprHeapObject, ReprTagged},
		{ReprDouble, ReprHeapObject, ReprTagged},
		{ReprHeapObject, ReprHeapObject, ReprHeapObject},
		{ReprTagged, ReprSmi, ReprTagged},
	}
	for _, tt := range tests {
		if got := tt.a.Generalize(tt.b); got != tt.want {
			t.Errorf("%s.Generalize(%s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
		if got := tt.b.Generalize(tt.a); got != tt.want {
			t.Errorf("%s.Generalize(%s) = %s, want %s", tt.b, tt.a, got, tt.want)
		}
	}

	if !ReprDouble.Fits(FromSmi(1)) {
		t.Error("double fields accept smis")
	}
	if ReprSmi.Fits(FromFloat64(1.5)) {
		t.Error("smi fields reject doubles")
	}
	if ReprHeapObject.Fits(FromSmi(1)) {
		t.Error("heap-object fields reject smis")
	}
}
