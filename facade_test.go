package faerie

import (
	"errors"
	"testing"
)

func TestArtifactBuilderDefaults(t *testing.T) {
	a := ArtifactBuilder(NewTarget(ArchX86_64, OSLinux)).Finish()
	if a.Name != "faerie.o" {
		t.Fatalf("default artifact name = %q, want \"faerie.o\"", a.Name)
	}
}

func TestArtifactBuilderChaining(t *testing.T) {
	a := ArtifactBuilder(NewTarget(ArchX86_64, OSLinux)).
		Name("mylib.o").
		Library(true).
		Finish()

	if a.Name != "mylib.o" {
		t.Fatalf("Name() = %q, want \"mylib.o\"", a.Name)
	}
	if !a.IsLibrary {
		t.Fatalf("IsLibrary should be true")
	}
}

// TestFormatDispatch checks that Emit dispatches ELF and Mach-O targets to
// their respective backends.
func TestFormatDispatch(t *testing.T) {
	elfArtifact := simpleHelloArtifact(NewTarget(ArchX86_64, OSLinux))
	if _, err := Emit(elfArtifact); err != nil {
		t.Fatalf("Emit(elf target) failed: %v", err)
	}

	machoArtifact := simpleHelloArtifact(NewTarget(ArchX86_64, OSDarwin))
	if _, err := Emit(machoArtifact); err != nil {
		t.Fatalf("Emit(macho target) failed: %v", err)
	}

	// A zero Target still resolves to ELF via Format(), so exercise the
	// unsupported-format path directly against a format with no backend.
	coffLikeArtifact := simpleHelloArtifact(Target{})
	_, err := emitAsFormat(coffLikeArtifact, Format(99))
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("emitting an unknown format should fail with *UnsupportedFormatError, got %v", err)
	}
}

// emitAsFormat exercises the same dispatch Emit uses but against an
// explicit format, the way a hypothetical COFF request would.
func emitAsFormat(a *Artifact, f Format) ([]byte, error) {
	switch f {
	case FormatELF:
		return EmitELF(a)
	case FormatMachO:
		return EmitMachO(a)
	default:
		return nil, &UnsupportedFormatError{Format: f}
	}
}

func simpleHelloArtifact(target Target) *Artifact {
	a := NewArtifact(target, "hello.o", false)
	_ = a.Declare("msg", NewData().ReadOnly().CString().Into())
	_ = a.Define("msg", []byte("hi\x00"))
	return a
}
