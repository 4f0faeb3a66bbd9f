package faerie

import "testing"

func TestByteWriterLittleEndian(t *testing.T) {
	w := newByteWriter()
	w.Write(0xAB)
	w.Write2(0x1234)
	w.Write4(0xDEADBEEF)
	w.Write8(0x0102030405060708)

	want := []byte{
		0xAB,
		0x34, 0x12,
		0xEF, 0xBE, 0xAD, 0xDE,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}
	got := w.Bytes()
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d (%x)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x (full: %x)", i, got[i], want[i], got)
		}
	}
}

func TestByteWriterCStringAndAlign(t *testing.T) {
	w := newByteWriter()
	w.WriteCString("hi")
	if w.Len() != 3 {
		t.Fatalf("Len() after WriteCString = %d, want 3", w.Len())
	}
	if got := w.Bytes(); got[2] != 0 {
		t.Fatalf("WriteCString did not NUL-terminate: %x", got)
	}

	w.alignTo(8)
	if w.Len()%8 != 0 {
		t.Fatalf("alignTo(8) left Len() = %d, not a multiple of 8", w.Len())
	}
}

func TestByteWriterWriteN(t *testing.T) {
	w := newByteWriter()
	w.WriteN(0x7f, 4)
	for i, b := range w.Bytes() {
		if b != 0x7f {
			t.Fatalf("byte %d = %#x, want 0x7f", i, b)
		}
	}
}
