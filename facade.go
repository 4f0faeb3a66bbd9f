package faerie

// Builder assembles an Artifact's top-level identity before handing control
// to Declare/Define/Link calls on the Artifact itself.
type Builder struct {
	target    Target
	name      string
	isLibrary bool
}

// ArtifactBuilder starts building an Artifact for target.
func ArtifactBuilder(target Target) *Builder {
	return &Builder{target: target}
}

// Name sets the artifact's output name, used as the STT_FILE symbol on ELF
// and reported in diagnostics. Defaults to "faerie.o".
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Library marks the artifact as a library rather than an object destined to
// be linked into an executable. Present for parity with the Rust ancestor;
// it does not currently change backend behavior, since both ELF and Mach-O
// relocatable objects are built identically either way.
func (b *Builder) Library(isLibrary bool) *Builder {
	b.isLibrary = isLibrary
	return b
}

// Finish produces the empty Artifact described by the builder so far.
func (b *Builder) Finish() *Artifact {
	return NewArtifact(b.target, b.name, b.isLibrary)
}

// Emit renders a as an object file for its Target's format, dispatching to
// EmitELF or EmitMachO. Returns *UnsupportedFormatError for any format
// without a backend (e.g. a hypothetical COFF request).
func Emit(a *Artifact) ([]byte, error) {
	switch a.Target.Format() {
	case FormatELF:
		return EmitELF(a)
	case FormatMachO:
		return EmitMachO(a)
	default:
		return nil, &UnsupportedFormatError{Format: a.Target.Format()}
	}
}
