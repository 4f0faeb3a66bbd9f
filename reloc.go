package faerie

// Reloc selects how a Link's relocation is resolved: automatically, from a
// caller-supplied raw backend code, or as an absolute reference sized for
// debug-section data (DWARF's .debug_* sections reference code and data by
// plain absolute address, not through the PLT/GOT machinery Auto selects
// for ordinary code).
type Reloc interface {
	isReloc()
}

// RelocAuto lets the backend choose a relocation kind from the (from-decl,
// to-decl) pair, per selectRelocKind/machSelectRelocKind. The zero value of
// the Reloc field on Link/ImportLink behaves as RelocAuto.
type RelocAuto struct{}

func (RelocAuto) isReloc() {}

// RelocRaw overrides auto-selection with an explicit backend relocation
// code and addend. Reloc is interpreted as an R_X86_64_* constant by the
// ELF backend and as an X86_64_RELOC_* constant (truncated to a byte) by
// the Mach-O backend; Addend is honored by the ELF backend only, since
// Mach-O's relocation_info record has no explicit addend field.
type RelocRaw struct {
	Reloc  uint32
	Addend int64
}

func (RelocRaw) isReloc() {}

// RelocDebug requests an absolute relocation sized for debug-section data:
// Size must be 4 or 8, the byte width of the patched field. Addend is
// applied as given. The Mach-O backend, whose relocation_info has no
// addend field, ignores Addend and packs only the size and absolute kind.
type RelocDebug struct {
	Size   int
	Addend int64
}

func (RelocDebug) isReloc() {}

// normalizeReloc treats a nil Reloc (the zero value of a Link/ImportLink
// literal that never set one) the same as an explicit RelocAuto.
func normalizeReloc(r Reloc) Reloc {
	if r == nil {
		return RelocAuto{}
	}
	return r
}

// relocKind abstracts over the two backends' relocation type codes so the
// auto-selection logic only has to be written once; each backend maps a
// relocKind to its own numeric constant when it writes the relocation
// record.
type relocKind int

const (
	relocPLT32    relocKind = iota // call through the PLT / a lazily-bound stub
	relocPC32                      // PC-relative reference to locally defined data
	relocGOTPCREL                  // PC-relative reference to a GOT slot
	relocAbs64                     // absolute 64-bit address
	relocAbs32                     // absolute 32-bit address
)

// refKind classifies a symbol reference by what it points at, for
// relocation-kind selection: a call/branch target vs a data reference,
// whether the target is locally defined or imported, and whether it is a
// CString literal (Mach-O's table treats that case specially).
type refKind struct {
	isFunction bool
	isImport   bool
	isCString  bool
}

func kindOf(decl Decl) refKind {
	switch d := decl.(type) {
	case Function, FunctionImport:
		return refKind{isFunction: true, isImport: isImport(decl)}
	case Data:
		return refKind{isCString: d.DataType == DataTypeCString}
	case Section:
		return refKind{isCString: d.DataType == DataTypeCString || d.Kind == SectionKindCString}
	default:
		return refKind{isImport: isImport(decl)}
	}
}

// selectRelocKind implements the ELF x86_64 auto-relocation table, keyed
// on both where the relocation is patched from and what it targets. Every
// call, whether to a locally defined function or
// an import, goes through the PLT; a reference to local data is a direct
// PC-relative load, a reference to imported data goes through the GOT.
// A relocation patched into data is never PC-relative -- the patched
// bytes hold a plain absolute address, sized to pointerWidth (in bytes,
// 4 or 8), regardless of what kind of symbol it addresses.
func selectRelocKind(from, to refKind, pointerWidth int) relocKind {
	if from.isFunction {
		switch {
		case to.isFunction:
			return relocPLT32
		case to.isImport:
			return relocGOTPCREL
		default:
			return relocPC32
		}
	}
	if pointerWidth == 8 {
		return relocAbs64
	}
	return relocAbs32
}

// machSelectRelocKind implements the Mach-O x86_64 auto-relocation table,
// which differs from the ELF table in two ways: any reference to a CString
// literal is PC-relative even when it originates from data, and any
// reference to imported data goes through the GOT, also from data. As in
// the ELF table, a function pointer stored in data is an absolute
// reference rather than a branch.
func machSelectRelocKind(from, to refKind, pointerWidth int) relocKind {
	abs := func() relocKind {
		if pointerWidth == 8 {
			return relocAbs64
		}
		return relocAbs32
	}
	switch {
	case to.isCString:
		return relocPC32
	case to.isImport && !to.isFunction:
		return relocGOTPCREL
	case to.isFunction:
		if !from.isFunction {
			return abs()
		}
		return relocPLT32
	default:
		if !from.isFunction {
			return abs()
		}
		return relocPC32
	}
}

// relocIsPCRelative reports whether k patches a PC-relative field (a call
// or a RIP-relative load) as opposed to a plain absolute address.
func relocIsPCRelative(k relocKind) bool {
	switch k {
	case relocAbs64, relocAbs32:
		return false
	default:
		return true
	}
}

// relocLength reports the patched field's size using Mach-O's r_length
// encoding: 0=byte, 1=word, 2=long (4 bytes), 3=quad (8 bytes).
func relocLength(k relocKind) uint8 {
	if k == relocAbs64 {
		return 3
	}
	return 2
}

// x86_64 ELF relocation type codes (r_info's low 32 bits).
const (
	rX86_64_64       = 1
	rX86_64_PC32     = 2
	rX86_64_PLT32    = 4
	rX86_64_32       = 10
	rX86_64_GOTPCREL = 9
)

// elfRelocType maps a relocKind to the r_info type field for x86_64 ELF.
func elfRelocType(k relocKind) uint32 {
	switch k {
	case relocPLT32:
		return rX86_64_PLT32
	case relocGOTPCREL:
		return rX86_64_GOTPCREL
	case relocAbs64:
		return rX86_64_64
	case relocAbs32:
		return rX86_64_32
	case relocPC32:
		return rX86_64_PC32
	default:
		return rX86_64_PC32
	}
}

// resolveELFReloc computes the r_info type and addend for one link,
// honoring an explicit Raw/Debug override before falling back to Auto's
// (from-decl, to-decl) table.
func resolveELFReloc(reloc Reloc, from, to refKind, pointerWidth int) (rtype uint32, addend int64) {
	switch r := normalizeReloc(reloc).(type) {
	case RelocRaw:
		return r.Reloc, r.Addend
	case RelocDebug:
		if r.Size == 8 {
			return rX86_64_64, r.Addend
		}
		return rX86_64_32, r.Addend
	default:
		kind := selectRelocKind(from, to, pointerWidth)
		addend = int64(0)
		if from.isFunction {
			addend = -4
		}
		return elfRelocType(kind), addend
	}
}

// resolveMachReloc computes the packed relocation_info fields for one
// link. Mach-O's record has no addend field, so RelocRaw/RelocDebug
// overrides only affect the type/pcrel/length bits; Addend is ignored.
func resolveMachReloc(reloc Reloc, from, to refKind, pointerWidth int) (rtype uint8, pcrel bool, length uint8) {
	switch r := normalizeReloc(reloc).(type) {
	case RelocRaw:
		return uint8(r.Reloc), false, 2
	case RelocDebug:
		length = 2
		if r.Size == 8 {
			length = 3
		}
		return machRelocType(relocAbs64), false, length
	default:
		kind := machSelectRelocKind(from, to, pointerWidth)
		return machRelocType(kind), relocIsPCRelative(kind), relocLength(kind)
	}
}

// machRelocType maps a relocKind to the r_type field for x86_64 Mach-O.
func machRelocType(k relocKind) uint8 {
	const (
		x86_64RelocUnsigned = 0
		x86_64RelocBranch   = 2
		x86_64RelocSigned   = 1
		x86_64RelocGotLoad  = 3
	)
	switch k {
	case relocPLT32:
		return x86_64RelocBranch
	case relocGOTPCREL:
		return x86_64RelocGotLoad
	case relocAbs64, relocAbs32:
		return x86_64RelocUnsigned
	case relocPC32:
		return x86_64RelocSigned
	default:
		return x86_64RelocSigned
	}
}
