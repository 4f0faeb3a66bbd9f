package faerie

import "fmt"

// UndeclaredError is returned when an operation (define, link, ...)
// references a name that was never declared.
type UndeclaredError struct {
	Name string
}

func (e *UndeclaredError) Error() string {
	return fmt.Sprintf("faerie: %q was never declared", e.Name)
}

// ImportDefinedError is returned when a caller tries to Define a name that
// was declared as an import.
type ImportDefinedError struct {
	Name string
}

func (e *ImportDefinedError) Error() string {
	return fmt.Sprintf("faerie: %q is an import and cannot be defined", e.Name)
}

// RelocateImportError is returned when Link (rather than LinkImport) is
// asked to create a relocation targeting an imported symbol.
type RelocateImportError struct {
	Name string
}

func (e *RelocateImportError) Error() string {
	return fmt.Sprintf("faerie: %q is an import, use LinkImport", e.Name)
}

// DuplicateDefinitionError is returned when Define is called twice for the
// same name.
type DuplicateDefinitionError struct {
	Name string
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("faerie: %q is already defined", e.Name)
}

// IncompatibleDeclarationError is returned when a second Declare call for
// a name cannot be absorbed into the first.
type IncompatibleDeclarationError struct {
	Name     string
	Old, New Decl
}

func (e *IncompatibleDeclarationError) Error() string {
	return fmt.Sprintf("faerie: %q redeclared as %s, previously declared as %s",
		e.Name, e.New.declString(), e.Old.declString())
}

// InvalidZeroInitError is returned when DefineZero is used against a
// declaration that does not permit a zero-initialized (bss-style)
// definition: a Function, Section or CString decl.
type InvalidZeroInitError struct {
	Name string
	Decl Decl
}

func (e *InvalidZeroInitError) Error() string {
	return fmt.Sprintf("faerie: %q (%s) cannot be zero-initialized", e.Name, e.Decl.declString())
}

// NonSectionCustomSymbolsError is returned when DefineWithSymbols targets a
// name that was not declared as a Section -- custom section-relative
// symbols only make sense against raw sections.
type NonSectionCustomSymbolsError struct {
	Name    string
	Decl    Decl
	Symbols map[string]uint64
}

func (e *NonSectionCustomSymbolsError) Error() string {
	return fmt.Sprintf("faerie: %q (%s) is not a Section, cannot attach custom symbols",
		e.Name, e.Decl.declString())
}

// InvalidAlignmentError is returned when a declaration's alignment is
// non-zero but not a power of two.
type InvalidAlignmentError struct {
	Name  string
	Align int
}

func (e *InvalidAlignmentError) Error() string {
	return fmt.Sprintf("faerie: %q has alignment %d, which is not a power of two", e.Name, e.Align)
}

// UndefinedSymbolsError is returned by Emit, EmitELF and EmitMachO when one or more
// declared-but-not-defined, non-import names remain unresolved.
type UndefinedSymbolsError struct {
	Names []string
}

func (e *UndefinedSymbolsError) Error() string {
	return fmt.Sprintf("faerie: %d undefined symbol(s): %v", len(e.Names), e.Names)
}

// UnsupportedFormatError is returned when a Format has no backend (e.g. a
// hypothetical COFF request).
type UnsupportedFormatError struct {
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("faerie: unsupported object format %q", e.Format)
}

// UnsupportedArchitectureError is returned when a backend cannot compute
// relocations or machine tags for an architecture (x86_64 is the only
// fully supported relocation target).
type UnsupportedArchitectureError struct {
	Arch   Arch
	Format Format
}

func (e *UnsupportedArchitectureError) Error() string {
	return fmt.Sprintf("faerie: architecture %q is not supported for %q relocations", e.Arch, e.Format)
}
