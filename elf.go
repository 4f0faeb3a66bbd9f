package faerie

import (
	"encoding/binary"
	"sort"
)

// ELF identification, type and class constants.
const (
	ELFMAG0 = 0x7f
	ELFMAG1 = 'E'
	ELFMAG2 = 'L'
	ELFMAG3 = 'F'

	ELFCLASS32 = 1
	ELFCLASS64 = 2

	ELFDATA2LSB = 1
	ELFDATA2MSB = 2

	EV_CURRENT = 1

	ELFOSABI_NONE = 0

	ET_REL = 1

	SHT_NULL          = 0
	SHT_PROGBITS      = 1
	SHT_SYMTAB        = 2
	SHT_STRTAB        = 3
	SHT_RELA          = 4
	SHT_NOBITS        = 8
	SHT_SYMTAB_SHNDX  = 18

	SHF_WRITE     = 0x1
	SHF_ALLOC     = 0x2
	SHF_EXECINSTR = 0x4
	SHF_MERGE     = 0x10
	SHF_STRINGS   = 0x20

	STB_LOCAL  = 0
	STB_GLOBAL = 1
	STB_WEAK   = 2

	STT_NOTYPE  = 0
	STT_OBJECT  = 1
	STT_FUNC    = 2
	STT_SECTION = 3
	STT_FILE    = 4

	STV_DEFAULT   = 0
	STV_HIDDEN    = 2
	STV_PROTECTED = 3

	SHN_UNDEF     = 0
	SHN_ABS       = 0xfff1
	SHN_LORESERVE = 0xff00
	SHN_XINDEX    = 0xffff
)

func elfSymInfo(bind, typ byte) byte { return bind<<4 | (typ & 0xf) }

// elfStringTable is a deduplicating, NUL-separated string table: the first
// byte is always a NUL so offset 0 means "no name", matching both ELF's
// strtab/shstrtab convention and arc-language's StringTable.
type elfStringTable struct {
	buf  *byteWriter
	offs map[string]uint32
}

func newELFStringTable() *elfStringTable {
	t := &elfStringTable{buf: newByteWriter(), offs: make(map[string]uint32)}
	t.buf.Write(0)
	return t
}

func (t *elfStringTable) add(s string) uint32 {
	if s == "" {
		return 0
	}
	if off, ok := t.offs[s]; ok {
		return off
	}
	off := uint32(t.buf.Len())
	t.buf.WriteCString(s)
	t.offs[s] = off
	return off
}

// elfSection is one entry in the final section header table.
type elfSection struct {
	name      string
	typ       uint32
	flags     uint64
	content   []byte
	nobitsLen uint64 // SHT_NOBITS sections track size without content bytes
	addralign uint64

	index   int
	nameOff uint32
	offset  uint64
	created bool
}

// elfSymbol is one entry in the symbol table being assembled.
type elfSymbol struct {
	name    string
	nameOff uint32
	bind    byte
	typ     byte
	other   byte
	shndx   int // -1 for SHN_UNDEF, -2 for SHN_ABS, else a section index
	value   uint64
	size    uint64
}

// elfReloc is one pending relocation, resolved against the final symbol
// table once it has been fully built.
type elfReloc struct {
	sectionName string // section the relocation patches
	offset      uint64
	targetName  string
	rtype       uint32
	addend      int64
}

// elfBuilder accumulates sections, symbols and relocations while walking
// an Artifact, then serializes them in write().
type elfBuilder struct {
	artifact    *Artifact
	sections    []*elfSection
	sectionIdx  map[string]int
	symbols     []*elfSymbol
	symIndex    map[string]int
	relocs      []elfReloc
	sectionOf   map[NameID]string // defined symbol name -> section name holding its bytes
	offsetOf    map[NameID]uint64
	shstrtab    *elfStringTable
	strtab      *elfStringTable
}

func newELFBuilder(a *Artifact) *elfBuilder {
	return &elfBuilder{
		artifact:   a,
		sectionIdx: make(map[string]int),
		symIndex:   make(map[string]int),
		sectionOf:  make(map[NameID]string),
		offsetOf:   make(map[NameID]uint64),
		shstrtab:   newELFStringTable(),
		strtab:     newELFStringTable(),
	}
}

func (b *elfBuilder) addSection(s *elfSection) *elfSection {
	s.index = len(b.sections)
	b.sections = append(b.sections, s)
	b.sectionIdx[s.name] = s.index
	return s
}

// getOrCreateSection returns the named section, creating it (and reporting
// wasCreated=true) the first time it is referenced.
func (b *elfBuilder) getOrCreateSection(name string, typ uint32, flags uint64, align uint64) (sec *elfSection, wasCreated bool) {
	if idx, ok := b.sectionIdx[name]; ok {
		return b.sections[idx], false
	}
	sec = b.addSection(&elfSection{name: name, typ: typ, flags: flags, addralign: align})
	sec.created = true
	return sec, true
}

func (b *elfBuilder) addSymbol(sym *elfSymbol) int {
	idx := len(b.symbols)
	b.symbols = append(b.symbols, sym)
	b.symIndex[sym.name] = idx
	return idx
}

// sectionNameFor picks the per-symbol section name for a declared,
// defined name: .text.<name> for functions, .data.<name>/.rodata.<name>
// for data depending on writability, .bss.<name> for zero-initialized
// data, and the literal name itself for a raw Section declaration. The
// returned align is the declaration's requested alignment, or 0 to let the
// caller fall back to a type-appropriate default.
func sectionNameFor(name string, decl Decl, zero bool) (sectionName string, typ uint32, flags uint64, align uint64) {
	switch d := decl.(type) {
	case Function:
		flags = SHF_ALLOC | SHF_EXECINSTR
		if d.Writable {
			flags |= SHF_WRITE
		}
		return ".text." + name, SHT_PROGBITS, flags, uint64(d.Align)
	case Data:
		if d.Executable {
			flags |= SHF_EXECINSTR
		}
		if zero {
			return ".bss." + name, SHT_NOBITS, flags | SHF_ALLOC | SHF_WRITE, uint64(d.Align)
		}
		if d.DataType == DataTypeCString {
			return ".rodata.str1.1." + name, SHT_PROGBITS, flags | SHF_ALLOC | SHF_MERGE | SHF_STRINGS, uint64(d.Align)
		}
		if d.Writable {
			return ".data." + name, SHT_PROGBITS, flags | SHF_ALLOC | SHF_WRITE, uint64(d.Align)
		}
		return ".rodata." + name, SHT_PROGBITS, flags | SHF_ALLOC, uint64(d.Align)
	case Section:
		flags = SHF_ALLOC
		if d.Writable {
			flags |= SHF_WRITE
		}
		typ = SHT_PROGBITS
		if d.Kind == SectionKindText || d.Executable {
			flags |= SHF_EXECINSTR
		}
		return name, typ, flags, uint64(d.Align)
	default:
		return ".data." + name, SHT_PROGBITS, SHF_ALLOC, 0
	}
}

// EmitELF renders a as an ET_REL ELF object file for a.Target. The output
// is always ELFCLASS64 (64-bit header, symbol and relocation records),
// whatever the target's pointer width; 32-bit ELF is not produced.
func EmitELF(a *Artifact) ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	machine := a.Target.ELFMachine()
	if machine == 0 {
		return nil, &UnsupportedArchitectureError{Arch: a.Target.Arch(), Format: FormatELF}
	}

	b := newELFBuilder(a)

	// Section 0 is always the null section.
	b.addSection(&elfSection{name: ""})

	// Symbol 0 is always the null (STN_UNDEF) symbol.
	b.addSymbol(&elfSymbol{shndx: -1})

	// STT_FILE symbol for the artifact name, SHN_ABS, local. Emitted even
	// when a defined symbol shares the artifact's name: the FILE symbol
	// and a same-named FUNC/OBJECT symbol coexist because they are
	// distinct symbol table entries.
	b.addSymbol(&elfSymbol{name: a.Name, bind: STB_LOCAL, typ: STT_FILE, shndx: -2})

	// Walk definitions in locals-then-globals order, creating one section
	// per symbol (or reusing the literal section for raw Section decls)
	// plus a matching STT_SECTION local symbol for each newly created
	// section, exactly as elf.rs's add_code/add_data do.
	order := a.defs.order()
	for _, id := range order {
		name := a.nameOf(id)
		decl := a.decls[id]
		contents := a.contents[id]
		secName, typ, flags, align := sectionNameFor(name, decl, contents.Zero)
		if align == 0 {
			align = uint64(a.Target.PointerWidth())
		}
		sec, wasCreated := b.getOrCreateSection(secName, typ, flags, align)
		if wasCreated {
			b.addSymbol(&elfSymbol{name: "", bind: STB_LOCAL, typ: STT_SECTION, shndx: sec.index})
		}
		b.sectionOf[id] = secName
		b.offsetOf[id] = sec.size()
		if contents.Zero {
			sec.nobitsLen += contents.Size
		} else {
			sec.content = append(sec.content, contents.Bytes...)
		}
		if syms, ok := a.customSymbols[id]; ok {
			for symName, off := range syms {
				extraID := a.interner.Intern(symName)
				b.sectionOf[extraID] = secName
				b.offsetOf[extraID] = b.offsetOf[id] + off
			}
		}
	}

	// Now that every section exists, emit the real symbol for each
	// definition, locals first then globals (sh_info's delimiter).
	for _, id := range order {
		name := a.nameOf(id)
		decl := a.decls[id]
		secName := b.sectionOf[id]
		secIdx := b.sectionIdx[secName]
		bind := byte(STB_LOCAL)
		typ := byte(STT_OBJECT)
		var vis byte = STV_DEFAULT
		switch d := decl.(type) {
		case Function:
			typ = STT_FUNC
			if d.Scope == ScopeGlobal {
				bind = STB_GLOBAL
			}
			if d.Visibility == VisibilityWeak {
				bind = STB_WEAK
			}
			vis = visibilityOf(d.Visibility)
		case Data:
			typ = STT_OBJECT
			if d.Scope == ScopeGlobal {
				bind = STB_GLOBAL
			}
			if d.Visibility == VisibilityWeak {
				bind = STB_WEAK
			}
			vis = visibilityOf(d.Visibility)
		case Section:
			typ = STT_NOTYPE
			bind = STB_GLOBAL
		}
		b.addSymbol(&elfSymbol{
			name: name, bind: bind, typ: typ, other: vis,
			shndx: secIdx, value: b.offsetOf[id], size: a.contents[id].Size,
		})
		if syms, ok := a.customSymbols[id]; ok {
			for symName := range syms {
				extraID := a.interner.ids[symName]
				b.addSymbol(&elfSymbol{
					name: symName, bind: STB_GLOBAL, typ: STT_NOTYPE,
					shndx: secIdx, value: b.offsetOf[extraID],
				})
			}
		}
	}

	// An empty .note.GNU-stack section marks the object as not requiring an
	// executable stack, matching every modern assembler's default ET_REL
	// output; its absence makes some linkers emit an executable-stack
	// warning or fall back to a conservative default.
	b.addSection(&elfSection{name: ".note.GNU-stack", typ: SHT_PROGBITS, addralign: 1})

	// Import symbols: STB_GLOBAL, STT_NOTYPE, SHN_UNDEF. Sorted by name so
	// output is deterministic across runs (map iteration over a.decls is not).
	var importNames []string
	for id, decl := range a.decls {
		if isImport(decl) {
			importNames = append(importNames, a.nameOf(id))
		}
	}
	sort.Strings(importNames)
	for _, name := range importNames {
		decl := a.decls[a.interner.ids[name]]
		typ := byte(STT_NOTYPE)
		if _, ok := decl.(FunctionImport); ok {
			typ = STT_FUNC
		}
		b.addSymbol(&elfSymbol{name: name, bind: STB_GLOBAL, typ: typ, shndx: -1})
	}

	// Relocations. An explicit RelocRaw/RelocDebug on the Link overrides
	// auto-selection; otherwise the addend accounts for the width of the
	// patched field itself: a PC-relative call/load computes its target
	// relative to the address of the *next* instruction, so a field-end
	// relocation needs a -4 correction, while an absolute, data-sourced
	// reference needs none.
	pointerWidth := a.Target.PointerWidth()
	for _, l := range a.links {
		fromKind := kindOf(a.decls[l.From])
		rtype, addend := resolveELFReloc(l.Reloc, fromKind, kindOf(a.decls[l.To]), pointerWidth)
		b.relocs = append(b.relocs, elfReloc{
			sectionName: b.sectionOf[l.From], offset: l.At,
			targetName: a.nameOf(l.To), rtype: rtype, addend: addend,
		})
	}
	for _, l := range a.importLinks {
		fromKind := kindOf(a.decls[l.Caller])
		rtype, addend := resolveELFReloc(l.Reloc, fromKind, kindOf(a.decls[l.Import]), pointerWidth)
		b.relocs = append(b.relocs, elfReloc{
			sectionName: b.sectionOf[l.Caller], offset: l.At,
			targetName: a.nameOf(l.Import), rtype: rtype, addend: addend,
		})
	}

	return b.write(a.Target)
}

func visibilityOf(v Visibility) byte {
	switch v {
	case VisibilityHidden:
		return STV_HIDDEN
	case VisibilityProtected:
		return STV_PROTECTED
	default:
		return STV_DEFAULT
	}
}

func (s *elfSection) size() uint64 {
	if s.typ == SHT_NOBITS {
		return s.nobitsLen
	}
	return uint64(len(s.content))
}

// write serializes the builder's sections, symbol table, string tables and
// relocations into a full ELF64 file, laid out as: ELF header, code/data
// bytes, symbol table (locals before globals, sh_info = count of locals),
// the .symtab_shndx table when extended numbering is needed, string table,
// one .rela<section> per referencing section, .shstrtab, then the section
// header array. Each region after the section bytes starts at a multiple of
// the target's pointer size, zero-padded up to it.
func (b *elfBuilder) write(t Target) ([]byte, error) {
	// Group relocations by the section they patch: one .rela<section>
	// per referencing section.
	relocSections := make(map[string][]elfReloc)
	var relocOrder []string
	for _, r := range b.relocs {
		if _, ok := relocSections[r.sectionName]; !ok {
			relocOrder = append(relocOrder, r.sectionName)
		}
		relocSections[r.sectionName] = append(relocSections[r.sectionName], r)
	}
	sort.Strings(relocOrder)

	// Section header table layout, in the exact order headers are written
	// below: [0]=null, [1..]=per-symbol/custom sections, symtab, strtab,
	// [symtab_shndx], rela sections (sorted), shstrtab (self-referential,
	// always last).
	symtabIdx := len(b.sections)
	strtabIdx := symtabIdx + 1
	nextIdx := strtabIdx + 1

	needShndx := (nextIdx + len(relocOrder) + 1) >= SHN_LORESERVE
	if needShndx {
		nextIdx++ // shndx section's own index, computed only for the count below
	}
	nextIdx += len(relocOrder) // one index per .rela<section>
	shstrtabIdx := nextIdx

	for _, s := range b.sections {
		s.nameOff = b.shstrtab.add(sectionLabel(s.name))
	}
	symtabNameOff := b.shstrtab.add(".symtab")
	strtabNameOff := b.shstrtab.add(".strtab")
	var shndxNameOff uint32
	if needShndx {
		shndxNameOff = b.shstrtab.add(".symtab_shndx")
	}
	relaNameOff := make(map[string]uint32, len(relocOrder))
	for _, name := range relocOrder {
		relaNameOff[name] = b.shstrtab.add(".rela" + sectionLabel(name))
	}
	shstrtabNameOff := b.shstrtab.add(".shstrtab")

	for _, sym := range b.symbols {
		sym.nameOff = b.strtab.add(sym.name)
	}

	const elfHeaderSize = 64
	offset := uint64(elfHeaderSize)
	for _, s := range b.sections {
		if s.typ != SHT_NOBITS {
			s.offset = offset
			offset += s.size()
		}
	}

	pw := uint64(t.PointerWidth())
	pad := func() { offset = (offset + pw - 1) &^ (pw - 1) }
	pad()
	symtabOffset := offset
	symtab := newByteWriter()
	shndxTab := newByteWriter()
	nlocal := 0
	for _, sym := range b.symbols {
		shndx, extended := elfShndxFor(sym.shndx)
		if sym.bind == STB_LOCAL {
			nlocal++
		}
		binary.Write(symtab.buf, binary.LittleEndian, elf64Sym{
			Name:  sym.nameOff,
			Info:  elfSymInfo(sym.bind, sym.typ),
			Other: sym.other,
			Shndx: shndx,
			Value: sym.value,
			Size:  sym.size,
		})
		shndxTab.Write4(extended)
	}
	offset += uint64(symtab.Len())

	var shndxOffset uint64
	if needShndx {
		pad()
		shndxOffset = offset
		offset += uint64(shndxTab.Len())
	}

	pad()
	strtabOffset := offset
	offset += uint64(b.strtab.buf.Len())

	relaOffsets := make(map[string]uint64, len(relocOrder))
	relaBufs := make(map[string]*byteWriter, len(relocOrder))
	for _, name := range relocOrder {
		buf := newByteWriter()
		for _, r := range relocSections[name] {
			symIdx, ok := b.symIndex[r.targetName]
			if !ok {
				return nil, &UndeclaredError{Name: r.targetName}
			}
			binary.Write(buf.buf, binary.LittleEndian, elf64Rela{
				Offset: r.offset,
				Info:   uint64(symIdx)<<32 | uint64(r.rtype),
				Addend: r.addend,
			})
		}
		pad()
		relaOffsets[name] = offset
		relaBufs[name] = buf
		offset += uint64(buf.Len())
	}

	pad()
	shstrtabOffset := offset
	offset += uint64(b.shstrtab.buf.Len())

	pad()
	shoff := offset
	realShnum := shstrtabIdx + 1

	// Extended numbering: once the real section count reaches
	// SHN_LORESERVE, e_shnum and e_shstrndx can no
	// longer hold it directly. The real count moves into
	// section_headers[0].sh_size, and e_shstrndx becomes SHN_XINDEX with the
	// real shstrtab index moving into section_headers[0].sh_link.
	headerShnum := realShnum
	headerShstrndx := uint16(shstrtabIdx)
	if needShndx {
		headerShnum = 0
		headerShstrndx = SHN_XINDEX
	}

	out := newByteWriter()
	writeELFHeader(out, t, shoff, headerShnum, headerShstrndx)

	// Section contents, in section-table order, then symtab/strtab/rela/shstrtab.
	for _, s := range b.sections {
		if s.typ != SHT_NOBITS {
			out.WriteBytes(s.content)
		}
	}
	out.alignTo(int(pw))
	out.WriteBytes(symtab.Bytes())
	if needShndx {
		out.alignTo(int(pw))
		out.WriteBytes(shndxTab.Bytes())
	}
	out.alignTo(int(pw))
	out.WriteBytes(b.strtab.buf.Bytes())
	for _, name := range relocOrder {
		out.alignTo(int(pw))
		out.WriteBytes(relaBufs[name].Bytes())
	}
	out.alignTo(int(pw))
	out.WriteBytes(b.shstrtab.buf.Bytes())
	out.alignTo(int(pw))

	// Section header table, matching the index assignment above exactly.
	nullEntry := shEntry{}
	if needShndx {
		nullEntry.size = uint64(realShnum)
		nullEntry.link = uint32(shstrtabIdx)
	}
	writeSHEntry(out, nullEntry) // [0] null section header
	for _, s := range b.sections[1:] {
		writeSHEntry(out, shEntry{
			name: s.nameOff, typ: s.typ, flags: s.flags,
			offset: s.offset, size: s.size(), addralign: max1(s.addralign),
		})
	}
	writeSHEntry(out, shEntry{ // symtabIdx
		name: symtabNameOff, typ: SHT_SYMTAB, offset: symtabOffset,
		size: uint64(symtab.Len()), link: uint32(strtabIdx), info: uint32(nlocal),
		addralign: 8, entsize: 24,
	})
	writeSHEntry(out, shEntry{ // strtabIdx
		name: strtabNameOff, typ: SHT_STRTAB, offset: strtabOffset,
		size: uint64(b.strtab.buf.Len()), addralign: 1,
	})
	if needShndx {
		writeSHEntry(out, shEntry{
			name: shndxNameOff, typ: SHT_SYMTAB_SHNDX,
			offset: shndxOffset, size: uint64(shndxTab.Len()), link: uint32(symtabIdx),
			addralign: 4, entsize: 4,
		})
	}
	for _, name := range relocOrder {
		writeSHEntry(out, shEntry{
			name: relaNameOff[name], typ: SHT_RELA,
			offset: relaOffsets[name], size: uint64(relaBufs[name].Len()),
			link: uint32(symtabIdx), info: uint32(b.sectionIdx[name]),
			addralign: 8, entsize: 24,
		})
	}
	writeSHEntry(out, shEntry{ // shstrtabIdx
		name: shstrtabNameOff, typ: SHT_STRTAB, offset: shstrtabOffset,
		size: uint64(b.shstrtab.buf.Len()), addralign: 1,
	})

	return out.Bytes(), nil
}

func sectionLabel(name string) string {
	if name == "" {
		return "(null)"
	}
	return name
}

func max1(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	return v
}

func elfShndxFor(shndx int) (val uint16, extended uint32) {
	switch {
	case shndx == -1:
		return SHN_UNDEF, 0
	case shndx == -2:
		return SHN_ABS, 0
	case shndx >= SHN_LORESERVE:
		return SHN_XINDEX, uint32(shndx)
	default:
		return uint16(shndx), 0
	}
}

// elf64Sym mirrors Elf64_Sym.
type elf64Sym struct {
	Name  uint32
	Info  byte
	Other byte
	Shndx uint16
	Value uint64
	Size  uint64
}

// elf64Rela mirrors Elf64_Rela.
type elf64Rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

type shEntry struct {
	name      uint32
	typ       uint32
	flags     uint64
	addr      uint64
	offset    uint64
	size      uint64
	link      uint32
	info      uint32
	addralign uint64
	entsize   uint64
}

func writeSHEntry(w *byteWriter, e shEntry) {
	w.Write4(e.name)
	w.Write4(e.typ)
	w.Write8(e.flags)
	w.Write8(e.addr)
	w.Write8(e.offset)
	w.Write8(e.size)
	w.Write4(e.link)
	w.Write4(e.info)
	w.Write8(e.addralign)
	w.Write8(e.entsize)
}

func writeELFHeader(w *byteWriter, t Target, shoff uint64, shnum int, shstrndx uint16) {
	w.Write(ELFMAG0)
	w.Write(ELFMAG1)
	w.Write(ELFMAG2)
	w.Write(ELFMAG3)
	w.Write(ELFCLASS64)
	if t.Endian() == BigEndian {
		w.Write(ELFDATA2MSB)
	} else {
		w.Write(ELFDATA2LSB)
	}
	w.Write(EV_CURRENT)
	w.Write(ELFOSABI_NONE)
	w.WriteN(0, 8) // ABI version + padding
	w.Write2(ET_REL)
	w.Write2(t.ELFMachine())
	w.Write4(EV_CURRENT)
	w.Write8(0) // e_entry: none for ET_REL
	w.Write8(0) // e_phoff: no program headers
	w.Write8(shoff)
	w.Write4(0) // e_flags
	w.Write2(64) // e_ehsize
	w.Write2(0)  // e_phentsize
	w.Write2(0)  // e_phnum
	w.Write2(64) // e_shentsize
	w.Write2(uint16(shnum))
	w.Write2(shstrndx)
}
