package faerie

import "sort"

// Artifact accumulates declarations, definitions and relocations for one
// object file before it is handed to a backend to emit. It owns the single
// Interner for the object, so every name referenced anywhere in the
// Artifact resolves to the same NameID.
type Artifact struct {
	Target    Target
	Name      string
	IsLibrary bool

	interner *Interner

	decls    map[NameID]Decl
	defs     *orderedDefs
	contents map[NameID]Contents

	links       []Link
	importLinks []ImportLink

	customSymbols map[NameID]map[string]uint64
}

// NewArtifact creates an empty Artifact for target, named name.
func NewArtifact(target Target, name string, isLibrary bool) *Artifact {
	if name == "" {
		name = "faerie.o"
	}
	return &Artifact{
		Target:        target,
		Name:          name,
		IsLibrary:     isLibrary,
		interner:      NewInterner(),
		decls:         make(map[NameID]Decl),
		defs:          newOrderedDefs(),
		contents:      make(map[NameID]Contents),
		customSymbols: make(map[NameID]map[string]uint64),
	}
}

// Declare declares name as decl, absorbing it into any prior declaration
// of the same name per the rules in decl.go. Returns
// *IncompatibleDeclarationError if the two declarations cannot coexist.
func (a *Artifact) Declare(name string, decl Decl) error {
	if align := declAlign(decl); align != 0 && align&(align-1) != 0 {
		return &InvalidAlignmentError{Name: name, Align: align}
	}
	id := a.interner.Intern(name)
	if old, ok := a.decls[id]; ok {
		merged, ok := absorb(old, decl)
		if !ok {
			return &IncompatibleDeclarationError{Name: name, Old: old, New: decl}
		}
		a.decls[id] = merged
		return nil
	}
	a.decls[id] = decl
	return nil
}

// DeclareWith declares every name in decls, in a stable (sorted by key)
// order so repeated calls with the same map produce identical results.
func (a *Artifact) DeclareWith(decls map[string]Decl) error {
	names := make([]string, 0, len(decls))
	for n := range decls {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := a.Declare(n, decls[n]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Artifact) mustBeDefinable(name string) (NameID, Decl, error) {
	id, ok := a.interner.ids[name]
	if !ok {
		return 0, nil, &UndeclaredError{Name: name}
	}
	decl := a.decls[id]
	if isImport(decl) {
		return 0, nil, &ImportDefinedError{Name: name}
	}
	if _, defined := a.contents[id]; defined {
		return 0, nil, &DuplicateDefinitionError{Name: name}
	}
	return id, decl, nil
}

func declIsGlobal(decl Decl) bool {
	switch d := decl.(type) {
	case Function:
		return d.Scope == ScopeGlobal
	case Data:
		return d.Scope == ScopeGlobal
	case Section:
		return true
	default:
		return false
	}
}

// Define supplies the bytes for a previously declared name.
func (a *Artifact) Define(name string, data []byte) error {
	id, decl, err := a.mustBeDefinable(name)
	if err != nil {
		return err
	}
	a.contents[id] = bytesContents(data)
	a.defs.add(id, declIsGlobal(decl))
	return nil
}

// DefineZero supplies a zero-initialized, size-byte definition (ELF .bss /
// Mach-O S_ZEROFILL) for a previously declared Data name. Function,
// Section and CString declarations cannot be zero-initialized.
func (a *Artifact) DefineZero(name string, size uint64) error {
	id, decl, err := a.mustBeDefinable(name)
	if err != nil {
		return err
	}
	switch d := decl.(type) {
	case Data:
		if d.DataType == DataTypeCString {
			return &InvalidZeroInitError{Name: name, Decl: decl}
		}
	case Function, Section:
		return &InvalidZeroInitError{Name: name, Decl: decl}
	}
	a.contents[id] = zeroContents(size)
	a.defs.add(id, declIsGlobal(decl))
	return nil
}

// DefineWithSymbols supplies the bytes for a name declared as a raw
// Section, and additionally places custom symbols at caller-given byte
// offsets within it. Per REDESIGN FLAGS, this is implemented uniformly for
// both backends (the Rust ancestor left the Mach-O side unimplemented).
func (a *Artifact) DefineWithSymbols(name string, data []byte, symbols map[string]uint64) error {
	id, decl, err := a.mustBeDefinable(name)
	if err != nil {
		return err
	}
	if _, ok := decl.(Section); !ok {
		return &NonSectionCustomSymbolsError{Name: name, Decl: decl, Symbols: symbols}
	}
	a.contents[id] = bytesContents(data)
	a.defs.add(id, declIsGlobal(decl))
	a.customSymbols[id] = symbols
	for symName := range symbols {
		a.interner.Intern(symName)
	}
	return nil
}

// Link creates a relocation at byte offset `at` within `from`'s contents,
// referencing the defined symbol `to`, auto-selecting the relocation kind.
// Use LinkImport instead when `to` is an import, or LinkWith to override
// the relocation kind with a Reloc value.
func (a *Artifact) Link(from, to string, at uint64) error {
	return a.LinkWith(from, to, at, RelocAuto{})
}

// LinkImport creates a relocation at byte offset `at` within `caller`'s
// contents, referencing the imported symbol `imp`, auto-selecting the
// relocation kind. Use LinkImportWith to override the relocation kind.
func (a *Artifact) LinkImport(caller, imp string, at uint64) error {
	return a.LinkImportWith(caller, imp, at, RelocAuto{})
}

// LinkWith creates a relocation at byte offset `at` within `from`'s
// contents, referencing the defined symbol `to`, resolved per spec.md
// §4.3's `link_with(Link, Reloc)`: reloc overrides auto-selection with an
// explicit RelocRaw/RelocDebug, or RelocAuto/nil to keep the default
// (from-decl, to-decl) table lookup.
func (a *Artifact) LinkWith(from, to string, at uint64, reloc Reloc) error {
	fromID, ok := a.interner.ids[from]
	if !ok {
		return &UndeclaredError{Name: from}
	}
	toID, ok := a.interner.ids[to]
	if !ok {
		return &UndeclaredError{Name: to}
	}
	if isImport(a.decls[toID]) {
		return &RelocateImportError{Name: to}
	}
	a.links = append(a.links, Link{From: fromID, To: toID, At: at, Reloc: normalizeReloc(reloc)})
	return nil
}

// LinkImportWith creates a relocation at byte offset `at` within
// `caller`'s contents, referencing the imported symbol `imp`, with the
// same Reloc override semantics as LinkWith.
func (a *Artifact) LinkImportWith(caller, imp string, at uint64, reloc Reloc) error {
	callerID, ok := a.interner.ids[caller]
	if !ok {
		return &UndeclaredError{Name: caller}
	}
	impID, ok := a.interner.ids[imp]
	if !ok {
		return &UndeclaredError{Name: imp}
	}
	if !isImport(a.decls[impID]) {
		return &RelocateImportError{Name: imp}
	}
	a.importLinks = append(a.importLinks, ImportLink{Caller: callerID, Import: impID, At: at, Reloc: normalizeReloc(reloc)})
	return nil
}

// LinkEntry is one request for Artifact.LinkBatch: exactly one of To or
// Import should be non-empty. Reloc selects the relocation kind, nil
// behaving as RelocAuto.
type LinkEntry struct {
	From, To, Import string
	At               uint64
	Reloc            Reloc
}

// LinkBatch applies a batch of Link/LinkImport requests in order, stopping
// at the first error.
func (a *Artifact) LinkBatch(entries []LinkEntry) error {
	for _, e := range entries {
		if e.Import != "" {
			if err := a.LinkImportWith(e.From, e.Import, e.At, e.Reloc); err != nil {
				return err
			}
			continue
		}
		if err := a.LinkWith(e.From, e.To, e.At, e.Reloc); err != nil {
			return err
		}
	}
	return nil
}

// UndefinedSymbols returns the names of every declared, non-import symbol
// that has no Define/DefineZero/DefineWithSymbols call backing it, sorted
// by name.
func (a *Artifact) UndefinedSymbols() []string {
	var names []string
	for id, decl := range a.decls {
		if isImport(decl) {
			continue
		}
		if _, ok := a.contents[id]; !ok {
			names = append(names, a.interner.MustLookup(id))
		}
	}
	sort.Strings(names)
	return names
}

// validate returns *UndefinedSymbolsError if any declared symbol lacks a
// definition; called by both backends before they start emitting bytes.
func (a *Artifact) validate() error {
	if undef := a.UndefinedSymbols(); len(undef) > 0 {
		return &UndefinedSymbolsError{Names: undef}
	}
	return nil
}

func (a *Artifact) nameOf(id NameID) string {
	return a.interner.MustLookup(id)
}
