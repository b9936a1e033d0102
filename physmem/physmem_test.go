package physmem

import "testing"

func TestMmapFirstFit(t *testing.T) {
	m := New(nil)

	bases, err := m.Mmap(3)
	if err != nil {
		t.Fatalf("Mmap: %v", err)
	}
	if len(bases) != 3 {
		t.Fatalf("expected 3 bases, got %d", len(bases))
	}
	seen := map[uint32]bool{}
	for _, b := range bases {
		if seen[b] {
			t.Fatalf("duplicate physical base %#x", b)
		}
		seen[b] = true
		if b%PageSize != 0 {
			t.Fatalf("base %#x is not page aligned", b)
		}
	}
}

func TestMmapExhaustion(t *testing.T) {
	m := New(nil)

	if _, err := m.Mmap(pageCount); err != nil {
		t.Fatalf("Mmap(all): %v", err)
	}
	if _, err := m.Mmap(1); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
}

func TestMmapAtomicFailureLeavesNoPartialReservation(t *testing.T) {
	m := New(nil)

	if _, err := m.Mmap(pageCount - 1); err != nil {
		t.Fatalf("Mmap: %v", err)
	}
	if _, err := m.Mmap(5); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
	// the single remaining free page must still be available.
	if _, err := m.Mmap(1); err != nil {
		t.Fatalf("expected the last free page to still be reservable: %v", err)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	m := New(nil)
	bases, err := m.Mmap(1)
	if err != nil {
		t.Fatalf("Mmap: %v", err)
	}

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := m.Write(bases[0], data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := m.Read(bases[0], len(data))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, got[i], data[i])
		}
	}
}

func TestOutOfBounds(t *testing.T) {
	m := New(nil)
	if _, err := m.Read(Size-1, 2); err != ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if err := m.Write(Size, []byte{1}); err != ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}
