package faerie

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
)

func TestSelectRelocKind(t *testing.T) {
	fn := refKind{isFunction: true}
	fnImport := refKind{isFunction: true, isImport: true}
	data := refKind{}
	dataImport := refKind{isImport: true}

	cases := []struct {
		name string
		from refKind
		to   refKind
		want relocKind
	}{
		{"call to import", fn, fnImport, relocPLT32},
		{"call to local function", fn, fn, relocPLT32},
		{"data ref from code to import", fn, dataImport, relocGOTPCREL},
		{"data ref from code to local data", fn, data, relocPC32},
		{"data to data, 64-bit target", data, data, relocAbs64},
		{"data to function, 64-bit target", data, fn, relocAbs64},
	}
	for _, c := range cases {
		if got := selectRelocKind(c.from, c.to, 8); got != c.want {
			t.Errorf("%s: selectRelocKind(%+v, %+v, 8) = %v, want %v", c.name, c.from, c.to, got, c.want)
		}
	}

	if got := selectRelocKind(data, data, 4); got != relocAbs32 {
		t.Errorf("selectRelocKind(data, data, 4) = %v, want relocAbs32", got)
	}
}

// TestMachSelectRelocKind exercises the Mach-O table: a function pointer
// stored in data is absolute rather than a branch (as in the ELF table),
// and any reference to a CString is PC-relative even from data (unlike
// the ELF table).
func TestMachSelectRelocKind(t *testing.T) {
	fn := refKind{isFunction: true}
	data := refKind{}
	dataImport := refKind{isImport: true}
	cstring := refKind{isCString: true}

	cases := []struct {
		name string
		from refKind
		to   refKind
		want relocKind
	}{
		{"data to function is absolute, not branch", data, fn, relocAbs64},
		{"function to function is a branch", fn, fn, relocPLT32},
		{"data to cstring is PC-relative", data, cstring, relocPC32},
		{"function to cstring is PC-relative", fn, cstring, relocPC32},
		{"function to data import is GOT", fn, dataImport, relocGOTPCREL},
		{"data to data is absolute", data, data, relocAbs64},
		{"function to data is PC-relative", fn, data, relocPC32},
	}
	for _, c := range cases {
		if got := machSelectRelocKind(c.from, c.to, 8); got != c.want {
			t.Errorf("%s: machSelectRelocKind(%+v, %+v, 8) = %v, want %v", c.name, c.from, c.to, got, c.want)
		}
	}
}

func TestMachRelocTypes(t *testing.T) {
	if got := machRelocType(relocPLT32); got != 2 {
		t.Errorf("machRelocType(relocPLT32) = %d, want X86_64_RELOC_BRANCH (2)", got)
	}
	if got := machRelocType(relocGOTPCREL); got != 3 {
		t.Errorf("machRelocType(relocGOTPCREL) = %d, want X86_64_RELOC_GOT_LOAD (3)", got)
	}
	if !relocIsPCRelative(relocPC32) || relocIsPCRelative(relocAbs64) {
		t.Errorf("relocIsPCRelative should hold for relocPC32 only, not relocAbs64")
	}
	if relocLength(relocAbs64) != 3 || relocLength(relocAbs32) != 2 {
		t.Errorf("relocLength should be 3 for a quad-sized absolute reloc, 2 otherwise")
	}
}

func TestKindOf(t *testing.T) {
	if k := kindOf(FunctionImport{}); !k.isFunction || !k.isImport {
		t.Errorf("kindOf(FunctionImport{}) = %+v, want function+import", k)
	}
	if k := kindOf(Data{}); k.isFunction || k.isImport || k.isCString {
		t.Errorf("kindOf(Data{}) = %+v, want data+local, not cstring", k)
	}
	if k := kindOf(Data{DataType: DataTypeCString}); !k.isCString {
		t.Errorf("kindOf(Data{CString}) = %+v, want isCString", k)
	}
}

// TestELFRelocationKinds exercises selectRelocKind's full table through
// the real Artifact -> EmitELF flow rather than calling the relocation
// helpers directly: a call to an import, a call to a local function (both
// PLT32 -- the linker resolves the PLT stub away when the target turns out
// to be local), a data reference from code to an imported symbol, and a
// data-to-data reference (an absolute pointer stored in one Data
// definition pointing at another) each route to a distinct R_X86_64_*
// type and addend.
func TestELFRelocationKinds(t *testing.T) {
	a := NewArtifact(elfTarget(), "reloc.o", false)
	must(t, a.Declare("main", NewFunction().Global().Into()))
	must(t, a.Declare("callee", NewFunction().Into()))
	must(t, a.Declare("extfn", NewFunctionImport().Into()))
	must(t, a.Declare("extdata", NewDataImport().Into()))
	must(t, a.Declare("target", NewData().Global().Into()))
	must(t, a.Declare("ptr", NewData().Global().Writable().Into()))

	must(t, a.Define("main", make([]byte, 20)))
	must(t, a.Define("callee", []byte{0xc3}))
	must(t, a.Define("target", []byte{1, 2, 3, 4}))
	must(t, a.Define("ptr", make([]byte, 8)))

	must(t, a.LinkImport("main", "extfn", 0))
	must(t, a.Link("main", "callee", 5))
	must(t, a.LinkImport("main", "extdata", 10))
	must(t, a.Link("ptr", "target", 0))

	data, err := EmitELF(a)
	if err != nil {
		t.Fatalf("EmitELF: %v", err)
	}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parsing emitted ELF: %v", err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		t.Fatalf("Symbols(): %v", err)
	}
	// debug/elf's Symbols() strips the null first entry, so the original
	// symbol-table index of syms[i] is i+1.
	symName := make(map[uint32]string, len(syms))
	for i, s := range syms {
		symName[uint32(i+1)] = s.Name
	}

	type want struct {
		target string
		typ    elf.R_X86_64
		addend int64
		seen   bool
	}
	byOffset := map[uint64]*want{
		0:  {target: "extfn", typ: elf.R_X86_64_PLT32, addend: -4},
		5:  {target: "callee", typ: elf.R_X86_64_PLT32, addend: -4},
		10: {target: "extdata", typ: elf.R_X86_64_GOTPCREL, addend: -4},
	}
	dataAbs := &want{target: "target", typ: elf.R_X86_64_64, addend: 0}

	for _, s := range f.Sections {
		if s.Type != elf.SHT_RELA {
			continue
		}
		raw, err := s.Data()
		if err != nil {
			t.Fatalf("reading %s: %v", s.Name, err)
		}
		r := bytes.NewReader(raw)
		for r.Len() > 0 {
			var rel elf.Rela64
			if err := binary.Read(r, binary.LittleEndian, &rel); err != nil {
				t.Fatalf("decoding %s: %v", s.Name, err)
			}
			name := symName[elf.R_SYM64(rel.Info)]
			typ := elf.R_X86_64(elf.R_TYPE64(rel.Info))

			if w, ok := byOffset[rel.Off]; ok && name == w.target {
				if typ != w.typ || rel.Addend != w.addend {
					t.Errorf("reloc at offset %d (-> %s) = {%v, %d}, want {%v, %d}",
						rel.Off, name, typ, rel.Addend, w.typ, w.addend)
				}
				w.seen = true
			}
			if name == dataAbs.target && typ == dataAbs.typ {
				if rel.Addend != dataAbs.addend {
					t.Errorf("data-to-data reloc addend = %d, want %d", rel.Addend, dataAbs.addend)
				}
				dataAbs.seen = true
			}
		}
	}

	for off, w := range byOffset {
		if !w.seen {
			t.Errorf("no relocation found at offset %d targeting %q as %v", off, w.target, w.typ)
		}
	}
	if !dataAbs.seen {
		t.Errorf("no absolute data-to-data relocation found targeting %q", dataAbs.target)
	}
}
