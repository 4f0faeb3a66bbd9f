package faerie

// Contents is the payload behind a defined symbol: either concrete bytes,
// or a zero-initialized allocation of Size bytes that the backend places in
// a NOBITS-style section (ELF .bss) rather than writing Size zero bytes
// into the file.
type Contents struct {
	Bytes []byte
	Size  uint64
	Zero  bool
}

func bytesContents(b []byte) Contents {
	return Contents{Bytes: b, Size: uint64(len(b))}
}

func zeroContents(size uint64) Contents {
	return Contents{Size: size, Zero: true}
}

// Link records a relocation from one defined symbol into another, applied
// at a byte offset within the referencing symbol's contents. Reloc selects
// how the relocation is resolved; nil behaves as RelocAuto.
type Link struct {
	From, To NameID
	At       uint64
	Reloc    Reloc
}

// ImportLink records a relocation from a defined symbol to an imported
// one, applied at a byte offset within the referencing symbol's contents.
// Reloc selects how the relocation is resolved; nil behaves as RelocAuto.
type ImportLink struct {
	Caller, Import NameID
	At             uint64
	Reloc          Reloc
}

// orderedDefs is a two-bucket ordered set of NameIDs: all locals, in
// definition order, followed by all globals, in definition order. This
// is the exact ordering ELF's symbol table (and the sh_info local/global
// delimiter) and Mach-O's symtab both require. Modeled on elf.rs's use of
// ordermap::OrderMap, reimplemented with a slice since no ordered-map
// package appears in the reference corpus (see DESIGN.md).
type orderedDefs struct {
	locals  []NameID
	globals []NameID
	seen    map[NameID]bool
}

func newOrderedDefs() *orderedDefs {
	return &orderedDefs{seen: make(map[NameID]bool)}
}

func (d *orderedDefs) add(id NameID, global bool) {
	if d.seen[id] {
		return
	}
	d.seen[id] = true
	if global {
		d.globals = append(d.globals, id)
	} else {
		d.locals = append(d.locals, id)
	}
}

// order returns all NameIDs locals-first, then globals, each bucket in
// insertion order.
func (d *orderedDefs) order() []NameID {
	out := make([]NameID, 0, len(d.locals)+len(d.globals))
	out = append(out, d.locals...)
	out = append(out, d.globals...)
	return out
}

func (d *orderedDefs) numLocals() int { return len(d.locals) }
