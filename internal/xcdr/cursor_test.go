package xcdr

import "testing"

func TestWriterReaderRoundTripScalars(t *testing.T) {
	w := NewWriter(XCDR2LE)
	w.WriteU8(0x7F)
	w.WriteU16(0x1234)
	w.WriteU32(0xDEADBEEF)
	w.WriteU64(0x0102030405060708)
	w.WriteBool(true)

	r := NewReader(XCDR2LE, w.Bytes())
	if v, err := r.ReadU8(); err != nil || v != 0x7F {
		t.Fatalf("ReadU8() = %#x, %v; want 0x7f, nil", v, err)
	}
	if v, err := r.ReadU16(); err != nil || v != 0x1234 {
		t.Fatalf("ReadU16() = %#x, %v; want 0x1234, nil", v, err)
	}
	if v, err := r.ReadU32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("ReadU32() = %#x, %v; want 0xdeadbeef, nil", v, err)
	}
	if v, err := r.ReadU64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("ReadU64() = %#x, %v; want 0x0102030405060708, nil", v, err)
	}
	if v, err := r.ReadBool(); err != nil || v != true {
		t.Fatalf("ReadBool() = %v, %v; want true, nil", v, err)
	}
}

func TestXCDR2CapsU64AlignmentAtFour(t *testing.T) {
	w := NewWriter(XCDR2LE)
	w.WriteU8(1) // push the cursor to offset 1
	w.WriteU64(0xFF)
	// XCDR2 caps natural alignment at 4 bytes: offset 1 rounds up to 4, not 8.
	if got, want := w.Len(), 4+8; got != want {
		t.Errorf("Len() = %d, want %d (aligned to 4, not 8)", got, want)
	}
}

func TestXCDR1AlignsU64ToEight(t *testing.T) {
	w := NewWriter(XCDR1LE)
	w.WriteU8(1)
	w.WriteU64(0xFF)
	if got, want := w.Len(), 8+8; got != want {
		t.Errorf("Len() = %d, want %d (aligned to 8)", got, want)
	}
}

func TestStringRoundTrip(t *testing.T) {
	w := NewWriter(XCDR2LE)
	w.WriteString("hello")
	r := NewReader(XCDR2LE, w.Bytes())
	s, err := r.ReadString()
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	if s != "hello" {
		t.Errorf("ReadString() = %q, want %q", s, "hello")
	}
}

func TestPlaceholderPatch(t *testing.T) {
	w := NewWriter(XCDR2LE)
	pos := w.ReservePlaceholder()
	w.WriteU32(42)
	w.PatchU32(pos, 99)

	r := NewReader(XCDR2LE, w.Bytes())
	got, _ := r.ReadU32()
	if got != 99 {
		t.Errorf("patched placeholder = %d, want 99", got)
	}
	got2, _ := r.ReadU32()
	if got2 != 42 {
		t.Errorf("trailing word = %d, want 42", got2)
	}
}

func TestReadPastEndReturnsErrBadData(t *testing.T) {
	r := NewReader(XCDR2LE, []byte{1, 2})
	if _, err := r.ReadU32(); err != ErrBadData {
		t.Errorf("ReadU32() on truncated buffer = %v, want ErrBadData", err)
	}
}

func TestBigEndianWriteU32(t *testing.T) {
	w := NewWriter(XCDR1BE)
	w.WriteU32(0x01020304)
	if got, want := w.Bytes(), []byte{0x01, 0x02, 0x03, 0x04}; string(got) != string(want) {
		t.Errorf("big-endian WriteU32 bytes = %v, want %v", got, want)
	}
}
