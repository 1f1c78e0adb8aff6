package access

import (
	"testing"

	"github.com/argus-xyz/argus/common"
)

func addr(b byte) common.Address {
	var a common.Address
	a[len(a)-1] = b
	return a
}

func slot(b byte) common.SlotKey {
	var s common.SlotKey
	s[len(s)-1] = b
	return s
}

func TestNormalizeDedup(t *testing.T) {
	buf := NewBuffer()
	a, s := addr(1), slot(1)
	buf.Read(a, s)
	buf.Read(a, s)
	buf.Write(a, s)
	buf.Write(a, s)

	set := buf.Normalize(false)
	if len(set.Reads) != 1 || len(set.Writes) != 1 {
		t.Fatalf("expected dedup to 1 read + 1 write, got %d reads %d writes", len(set.Reads), len(set.Writes))
	}
	key := common.StorageKey{Address: a, Slot: s}
	if _, ok := set.Reads[key]; !ok {
		t.Fatal("missing read")
	}
	if _, ok := set.Writes[key]; !ok {
		t.Fatal("missing write")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	buf := NewBuffer()
	buf.Write(addr(1), slot(1))
	buf.Read(addr(2), slot(2))

	once := buf.Normalize(false)

	buf2 := NewBuffer()
	buf2.Write(addr(1), slot(1))
	buf2.Read(addr(2), slot(2))
	twice := buf2.Normalize(false)
	twiceAgain := buf2.Normalize(false)

	if len(once.Reads) != len(twice.Reads) || len(once.Writes) != len(twice.Writes) {
		t.Fatal("normalize not stable across equivalent buffers")
	}
	if len(twice.Reads) != len(twiceAgain.Reads) || len(twice.Writes) != len(twiceAgain.Writes) {
		t.Fatal("normalize not idempotent")
	}
}

func TestRevertDiscardsWrites(t *testing.T) {
	buf := NewBuffer()
	a, s := addr(0xAA), slot(1)
	buf.Write(a, s)

	set := buf.Normalize(true)
	if len(set.Writes) != 0 {
		t.Fatalf("expected reverted tx to discard writes, got %d", len(set.Writes))
	}
}

func TestRevertKeepsReads(t *testing.T) {
	buf := NewBuffer()
	a, s := addr(0xAA), slot(1)
	buf.Read(a, s)

	set := buf.Normalize(true)
	if len(set.Reads) != 1 {
		t.Fatalf("expected reverted tx to keep reads, got %d", len(set.Reads))
	}
}

func TestWriteThenReadSameSlotInBoth(t *testing.T) {
	buf := NewBuffer()
	a, s := addr(0xAA), slot(1)
	buf.Write(a, s)
	buf.Read(a, s)

	set := buf.Normalize(false)
	key := common.StorageKey{Address: a, Slot: s}
	if _, ok := set.Reads[key]; !ok {
		t.Fatal("expected slot in reads")
	}
	if _, ok := set.Writes[key]; !ok {
		t.Fatal("expected slot in writes")
	}
}

func TestSpillBeyondInlineCapacity(t *testing.T) {
	buf := NewBuffer()
	a := addr(1)
	for i := 0; i < inlineCap*3; i++ {
		buf.Write(a, slot(byte(i)))
	}
	if buf.Len() != inlineCap*3 {
		t.Fatalf("expected %d records, got %d", inlineCap*3, buf.Len())
	}
	set := buf.Normalize(false)
	if len(set.Writes) != inlineCap*3 {
		t.Fatalf("expected %d distinct writes, got %d", inlineCap*3, len(set.Writes))
	}
}
