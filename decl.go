package faerie

// Scope is the linker visibility of a defined symbol: local symbols are not
// exported from the object file, global symbols are.
type Scope int

const (
	ScopeLocal Scope = iota
	ScopeGlobal
)

// Visibility refines a global symbol's binding in the emitted symbol table.
type Visibility int

const (
	VisibilityDefault Visibility = iota
	VisibilityWeak
	VisibilityHidden
	VisibilityProtected
)

// DataType distinguishes what kind of bytes a Data/Section declaration
// holds, for section-placement purposes (e.g. NUL-terminated string
// literals get the mergeable-cstring section, everything else a plain
// data section).
type DataType int

const (
	DataTypeBytes DataType = iota
	DataTypeCString
)

// SectionKind names the family a raw Section declaration belongs to, for
// clients that want to place bytes into a section literally instead of a
// per-symbol section (used by define_with_symbols).
type SectionKind int

const (
	SectionKindText SectionKind = iota
	SectionKindData
	SectionKindCString
	SectionKindDebug
)

// Decl is the sum type of everything a name can be declared as: an import
// of a function or data symbol from elsewhere, or a definition of a
// function, data object, or raw section owned by this artifact. Modeled as
// a small closed interface instead of a tagged union, the idiomatic Go
// rendering of a sum type.
type Decl interface {
	// equalDefined reports whether two *defined* declarations of the same
	// concrete type describe an identical symbol -- the "structurally
	// equal" half of the absorption rule.
	equalDefined(other Decl) bool
	declString() string
}

// FunctionImport declares a function symbol defined elsewhere.
type FunctionImport struct{}

// DataImport declares a data symbol defined elsewhere.
type DataImport struct{}

// Function declares a defined, executable symbol. Writable is almost
// always false (a function's own bytes are not normally patched at
// runtime); Align, when non-zero, must be a power of two.
type Function struct {
	Scope      Scope
	Visibility Visibility
	Align      int
	Writable   bool
}

// Data declares a defined data symbol: writable (.data) or not (.rodata),
// whether it holds a NUL-terminated string literal, and whether the bytes
// should additionally be marked executable (self-modifying or JIT-adjacent
// data). Align, when non-zero, must be a power of two.
type Data struct {
	Scope      Scope
	Visibility Visibility
	Align      int
	Writable   bool
	Executable bool
	DataType   DataType
}

// Section declares a raw section-literal target for define_with_symbols:
// bytes placed directly into a named section rather than a fresh
// per-symbol section, with custom symbols at caller-supplied offsets into
// it. Align, when non-zero, must be a power of two.
type Section struct {
	Kind       SectionKind
	DataType   DataType
	Align      int
	Writable   bool
	Executable bool
	Loaded     bool
}

func (FunctionImport) declString() string { return "FunctionImport" }
func (DataImport) declString() string     { return "DataImport" }
func (Function) declString() string       { return "Function" }
func (Data) declString() string           { return "Data" }
func (Section) declString() string        { return "Section" }

func (FunctionImport) equalDefined(Decl) bool { return true }
func (DataImport) equalDefined(Decl) bool     { return true }

func (f Function) equalDefined(other Decl) bool {
	o, ok := other.(Function)
	return ok && f == o
}

func (d Data) equalDefined(other Decl) bool {
	o, ok := other.(Data)
	return ok && d == o
}

func (s Section) equalDefined(other Decl) bool {
	o, ok := other.(Section)
	return ok && s == o
}

// declAlign returns the requested byte alignment of a declaration, or 0 if
// it did not request one (the backend then falls back to a type-appropriate
// default).
func declAlign(d Decl) int {
	switch d := d.(type) {
	case Function:
		return d.Align
	case Data:
		return d.Align
	case Section:
		return d.Align
	default:
		return 0
	}
}

// isImport reports whether d is one of the two import variants.
func isImport(d Decl) bool {
	switch d.(type) {
	case FunctionImport, DataImport:
		return true
	default:
		return false
	}
}

// absorb implements the Decl absorption state machine: a name may be
// declared more than once as long as the declarations are compatible.
//
//   - import, then matching import again: no-op, import kept.
//   - import, then matching defined symbol: upgrade to the defined symbol.
//   - defined symbol, then a matching import: no-op, defined kept (a
//     redundant forward declaration).
//   - defined symbol, then an equal defined symbol: no-op.
//   - anything else (mismatched kinds, or unequal defined/defined): a
//     structural error.
func absorb(old, new Decl) (result Decl, ok bool) {
	switch o := old.(type) {
	case FunctionImport:
		switch new.(type) {
		case FunctionImport:
			return old, true
		case Function:
			return new, true
		default:
			return nil, false
		}
	case DataImport:
		switch new.(type) {
		case DataImport:
			return old, true
		case Data:
			return new, true
		default:
			return nil, false
		}
	case Function:
		switch new.(type) {
		case FunctionImport:
			return old, true
		case Function:
			return old, o.equalDefined(new)
		default:
			return nil, false
		}
	case Data:
		switch new.(type) {
		case DataImport:
			return old, true
		case Data:
			return old, o.equalDefined(new)
		default:
			return nil, false
		}
	case Section:
		s, isSection := new.(Section)
		return old, isSection && o.equalDefined(s)
	default:
		return nil, false
	}
}

// Builder types

// FunctionDecl builds a Function declaration with chainable modifiers.
type FunctionDecl struct {
	scope      Scope
	visibility Visibility
	align      int
	writable   bool
}

func NewFunction() *FunctionDecl { return &FunctionDecl{scope: ScopeLocal} }

func (b *FunctionDecl) Global() *FunctionDecl { b.scope = ScopeGlobal; return b }
func (b *FunctionDecl) Local() *FunctionDecl  { b.scope = ScopeLocal; return b }
func (b *FunctionDecl) Weak() *FunctionDecl   { b.visibility = VisibilityWeak; return b }
func (b *FunctionDecl) Hidden() *FunctionDecl { b.visibility = VisibilityHidden; return b }
func (b *FunctionDecl) Protected() *FunctionDecl {
	b.visibility = VisibilityProtected
	return b
}
func (b *FunctionDecl) WithAlign(align int) *FunctionDecl { b.align = align; return b }
func (b *FunctionDecl) Writable() *FunctionDecl           { b.writable = true; return b }

func (b *FunctionDecl) Into() Decl {
	return Function{Scope: b.scope, Visibility: b.visibility, Align: b.align, Writable: b.writable}
}

// DataDecl builds a Data declaration with chainable modifiers.
type DataDecl struct {
	scope      Scope
	visibility Visibility
	align      int
	writable   bool
	executable bool
	dataType   DataType
}

func NewData() *DataDecl { return &DataDecl{scope: ScopeLocal} }

func (b *DataDecl) Global() *DataDecl { b.scope = ScopeGlobal; return b }
func (b *DataDecl) Local() *DataDecl  { b.scope = ScopeLocal; return b }
func (b *DataDecl) Weak() *DataDecl   { b.visibility = VisibilityWeak; return b }
func (b *DataDecl) Hidden() *DataDecl { b.visibility = VisibilityHidden; return b }
func (b *DataDecl) Protected() *DataDecl {
	b.visibility = VisibilityProtected
	return b
}
func (b *DataDecl) WithAlign(align int) *DataDecl { b.align = align; return b }
func (b *DataDecl) Writable() *DataDecl           { b.writable = true; return b }
func (b *DataDecl) ReadOnly() *DataDecl           { b.writable = false; return b }
func (b *DataDecl) Executable() *DataDecl         { b.executable = true; return b }
func (b *DataDecl) CString() *DataDecl            { b.dataType = DataTypeCString; return b }

func (b *DataDecl) Into() Decl {
	return Data{
		Scope:      b.scope,
		Visibility: b.visibility,
		Align:      b.align,
		Writable:   b.writable,
		Executable: b.executable,
		DataType:   b.dataType,
	}
}

// SectionDecl builds a raw Section declaration for define_with_symbols.
type SectionDecl struct {
	kind       SectionKind
	dataType   DataType
	align      int
	writable   bool
	executable bool
	loaded     bool
}

func NewSection(kind SectionKind) *SectionDecl {
	return &SectionDecl{kind: kind, loaded: true}
}

func (b *SectionDecl) WithAlign(align int) *SectionDecl { b.align = align; return b }
func (b *SectionDecl) Writable() *SectionDecl           { b.writable = true; return b }
func (b *SectionDecl) ReadOnly() *SectionDecl           { b.writable = false; return b }
func (b *SectionDecl) Executable() *SectionDecl         { b.executable = true; return b }
func (b *SectionDecl) NotLoaded() *SectionDecl {
	b.loaded = false
	return b
}

func (b *SectionDecl) Into() Decl {
	return Section{
		Kind:       b.kind,
		DataType:   b.dataType,
		Align:      b.align,
		Writable:   b.writable,
		Executable: b.executable,
		Loaded:     b.loaded,
	}
}

// FunctionImportDecl builds a FunctionImport declaration.
type FunctionImportDecl struct{}

func NewFunctionImport() *FunctionImportDecl { return &FunctionImportDecl{} }
func (b *FunctionImportDecl) Into() Decl      { return FunctionImport{} }

// DataImportDecl builds a DataImport declaration.
type DataImportDecl struct{}

func NewDataImport() *DataImportDecl { return &DataImportDecl{} }
func (b *DataImportDecl) Into() Decl  { return DataImport{} }
