package main

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"fmt"
	"os"

	"github.com/xyproto/faerie"
)

// faerie-objdump builds one hardcoded sample Artifact, emits it as both ELF
// and Mach-O, and prints a symbol/section summary of each using the
// standard library's own object-file readers; relocations are not printed. It exists to exercise the
// library end to end outside of go test; it is not a general assembler or
// compiler front end.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "faerie-objdump:", err)
		os.Exit(1)
	}
}

func run() error {
	a := sampleArtifact()

	elfBytes, err := faerie.EmitELF(a)
	if err != nil {
		return fmt.Errorf("emit elf: %w", err)
	}
	if err := os.WriteFile("sample.o", elfBytes, 0o644); err != nil {
		return err
	}
	fmt.Println("=== ELF (sample.o) ===")
	if err := dumpELF(elfBytes); err != nil {
		return err
	}

	machoBytes, err := faerie.EmitMachO(a)
	if err != nil {
		return fmt.Errorf("emit macho: %w", err)
	}
	if err := os.WriteFile("sample.macho.o", machoBytes, 0o644); err != nil {
		return err
	}
	fmt.Println("\n=== Mach-O (sample.macho.o) ===")
	return dumpMachO(machoBytes)
}

// sampleArtifact declares a global function that calls an imported function
// and references a local string constant -- enough to exercise both
// relocation kinds (PLT32/BRANCH for the import call, PC32/SIGNED for the
// local data reference) on both backends.
func sampleArtifact() *faerie.Artifact {
	target := faerie.NewTarget(faerie.ArchX86_64, faerie.OSLinux)
	a := faerie.NewArtifact(target, "sample.o", false)

	must(a.Declare("main", faerie.NewFunction().Global().Into()))
	must(a.Declare("greeting", faerie.NewData().ReadOnly().CString().Into()))
	must(a.Declare("puts", faerie.NewFunctionImport().Into()))

	must(a.Define("greeting", []byte("hello from faerie\x00")))
	must(a.Define("main", sampleMainBody()))

	must(a.Link("main", "greeting", 3))
	must(a.LinkImport("main", "puts", 8))

	return a
}

// sampleMainBody is a minimal x86_64 instruction sequence: lea the string
// into rdi, call puts, ret. The actual bytes don't need to assemble to
// anything meaningful for this tool's purpose -- only their length and the
// two patched offsets above matter.
func sampleMainBody() []byte {
	return []byte{
		0x48, 0x8d, 0x3d, 0x00, 0x00, 0x00, 0x00, // lea 0(%rip), %rdi
		0xe8, 0x00, 0x00, 0x00, 0x00, // call puts
		0xc3, // ret
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func dumpELF(data []byte) error {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("machine=%s type=%s sections=%d\n", f.Machine, f.Type, len(f.Sections))
	for _, s := range f.Sections {
		fmt.Printf("  section %-20s type=%-10v size=%d\n", s.Name, s.Type, s.Size)
	}
	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return err
	}
	for _, sym := range syms {
		fmt.Printf("  symbol  %-20s bind=%-8v value=0x%x size=%d\n",
			sym.Name, elf.ST_BIND(sym.Info), sym.Value, sym.Size)
	}
	return nil
}

func dumpMachO(data []byte) error {
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("cpu=%s type=%s sections=%d\n", f.Cpu, f.Type, len(f.Sections))
	for _, s := range f.Sections {
		fmt.Printf("  section %s,%-20s size=%d\n", s.Seg, s.Name, s.Size)
	}
	if f.Symtab != nil {
		for _, sym := range f.Symtab.Syms {
			fmt.Printf("  symbol  %-20s type=0x%x value=0x%x\n", sym.Name, sym.Type, sym.Value)
		}
	}
	return nil
}
