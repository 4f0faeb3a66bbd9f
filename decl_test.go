package faerie

import (
	"errors"
	"testing"
)

func TestAbsorbImportThenDefined(t *testing.T) {
	imp := FunctionImport{}
	fn := NewFunction().Global().Into()

	merged, ok := absorb(imp, fn)
	if !ok {
		t.Fatalf("absorb(import, defined) should succeed")
	}
	if _, isFunc := merged.(Function); !isFunc {
		t.Fatalf("absorb(import, defined) should upgrade to the defined decl, got %T", merged)
	}
}

func TestAbsorbDefinedThenImportIsNoOp(t *testing.T) {
	fn := NewFunction().Global().Into()
	imp := FunctionImport{}

	merged, ok := absorb(fn, imp)
	if !ok {
		t.Fatalf("absorb(defined, import) should succeed (redundant forward decl)")
	}
	if merged != fn {
		t.Fatalf("absorb(defined, import) should keep the defined decl")
	}
}

func TestAbsorbEqualDefinedIsNoOp(t *testing.T) {
	a := NewData().Writable().Into()
	b := NewData().Writable().Into()

	merged, ok := absorb(a, b)
	if !ok || merged != a {
		t.Fatalf("absorb of two equal Data decls should no-op to the first, got %v, %v", merged, ok)
	}
}

func TestAbsorbIncompatibleKinds(t *testing.T) {
	imp := FunctionImport{}
	data := DataImport{}

	if _, ok := absorb(imp, data); ok {
		t.Fatalf("absorb(FunctionImport, DataImport) should fail")
	}
}

func TestAbsorbUnequalDefinedIsIncompatible(t *testing.T) {
	global := NewFunction().Global().Into()
	local := NewFunction().Local().Into()

	if _, ok := absorb(global, local); ok {
		t.Fatalf("absorb of two structurally different Function decls should fail")
	}
}

// TestDuplicateCompatibleDeclarations checks that "f" declared as
// FunctionImport three times and Function{global} twice, ending with
// Function, converges to a single defined declaration.
func TestDuplicateCompatibleDeclarations(t *testing.T) {
	a := NewArtifact(NewTarget(ArchX86_64, OSLinux), "t.o", false)

	must(t, a.Declare("f", NewFunctionImport().Into()))
	must(t, a.Declare("f", NewFunctionImport().Into()))
	must(t, a.Declare("f", NewFunctionImport().Into()))
	must(t, a.Declare("f", NewFunction().Global().Into()))
	must(t, a.Declare("f", NewFunction().Global().Into()))

	id := a.interner.ids["f"]
	if isImport(a.decls[id]) {
		t.Fatalf("\"f\" should have converged to a defined Function, still an import")
	}
}

// TestIncompatibleDeclarations checks that redeclaring a name as a
// structurally different kind is rejected.
func TestIncompatibleDeclarations(t *testing.T) {
	a := NewArtifact(NewTarget(ArchX86_64, OSLinux), "t.o", false)

	must(t, a.Declare("f", NewFunctionImport().Into()))
	err := a.Declare("f", NewData().Into())

	var incompat *IncompatibleDeclarationError
	if !errors.As(err, &incompat) {
		t.Fatalf("expected *IncompatibleDeclarationError, got %v (%T)", err, err)
	}
}

// TestDeclareInvalidAlignment checks that a non-power-of-two alignment is
// rejected at Declare time, across all three defined Decl kinds.
func TestDeclareInvalidAlignment(t *testing.T) {
	a := NewArtifact(NewTarget(ArchX86_64, OSLinux), "t.o", false)

	cases := []Decl{
		NewFunction().WithAlign(3).Into(),
		NewData().WithAlign(6).Into(),
		NewSection(SectionKindData).WithAlign(5).Into(),
	}
	for i, decl := range cases {
		err := a.Declare("bad", decl)
		var invalid *InvalidAlignmentError
		if !errors.As(err, &invalid) {
			t.Fatalf("case %d: expected *InvalidAlignmentError, got %v (%T)", i, err, err)
		}
	}
}

// TestDeclareValidAlignmentIsAccepted checks that power-of-two alignments,
// including zero (unset), are accepted.
func TestDeclareValidAlignmentIsAccepted(t *testing.T) {
	a := NewArtifact(NewTarget(ArchX86_64, OSLinux), "t.o", false)

	must(t, a.Declare("f", NewFunction().WithAlign(16).Into()))
	must(t, a.Declare("d", NewData().WithAlign(32).Executable().Into()))
	must(t, a.Declare("s", NewSection(SectionKindData).WithAlign(0).Into()))

	id := a.interner.ids["f"]
	fn, ok := a.decls[id].(Function)
	if !ok || fn.Align != 16 {
		t.Fatalf("expected Function with Align=16, got %v", a.decls[id])
	}
	id = a.interner.ids["d"]
	d, ok := a.decls[id].(Data)
	if !ok || d.Align != 32 || !d.Executable {
		t.Fatalf("expected Data with Align=32, Executable=true, got %v", a.decls[id])
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
