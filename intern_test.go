package faerie

import "testing"

func TestInternerRoundTrip(t *testing.T) {
	in := NewInterner()

	a := in.Intern("alpha")
	b := in.Intern("beta")
	a2 := in.Intern("alpha")

	if a != a2 {
		t.Fatalf("interning the same string twice gave different ids: %d != %d", a, a2)
	}
	if a == b {
		t.Fatalf("distinct strings got the same id")
	}

	if s, ok := in.Lookup(a); !ok || s != "alpha" {
		t.Fatalf("Lookup(a) = %q, %v, want \"alpha\", true", s, ok)
	}
	if in.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", in.Len())
	}
}

func TestInternerLookupUnknown(t *testing.T) {
	in := NewInterner()
	in.Intern("only")

	if _, ok := in.Lookup(NameID(5)); ok {
		t.Fatalf("Lookup of an unissued id succeeded")
	}
	if _, ok := in.Lookup(NameID(-1)); ok {
		t.Fatalf("Lookup of a negative id succeeded")
	}
}

func TestInternerMustLookupPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLookup on an unissued id did not panic")
		}
	}()
	in := NewInterner()
	in.MustLookup(NameID(0))
}
