package object

import (
	"bytes"
	"testing"
)

func TestAttrFile_RoundTrip(t *testing.T) {
	set := NewAttrSet()
	set.Set("color", []byte("red"), AttrOriginal)
	set.Set("weight", []byte{0x00, 0x01, 0x02}, AttrComputed)
	set.Set("empty", nil, AttrOriginal)

	var buf bytes.Buffer
	if err := WriteAttrFile(&buf, set); err != nil {
		t.Fatalf("WriteAttrFile: %v", err)
	}

	got, err := ReadAttrFile(&buf)
	if err != nil {
		t.Fatalf("ReadAttrFile: %v", err)
	}
	if got.Len() != set.Len() {
		t.Fatalf("round-tripped Len() = %d, want %d", got.Len(), set.Len())
	}

	for _, name := range []string{"color", "weight", "empty"} {
		want, _ := set.Get(name)
		have, ok := got.Get(name)
		if !ok {
			t.Fatalf("round-tripped set missing attribute %q", name)
		}
		if !bytes.Equal(want, have) {
			t.Fatalf("attribute %q = %v, want %v", name, have, want)
		}
	}
}

func TestAttrFile_EmptySet(t *testing.T) {
	set := NewAttrSet()
	var buf bytes.Buffer
	if err := WriteAttrFile(&buf, set); err != nil {
		t.Fatalf("WriteAttrFile: %v", err)
	}
	got, err := ReadAttrFile(&buf)
	if err != nil {
		t.Fatalf("ReadAttrFile: %v", err)
	}
	if got.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", got.Len())
	}
}

func TestAttrFile_OriginAlwaysOriginalOnRead(t *testing.T) {
	set := NewAttrSet()
	set.Set("k", []byte("v"), AttrComputed)

	var buf bytes.Buffer
	_ = WriteAttrFile(&buf, set)
	got, _ := ReadAttrFile(&buf)

	var origin AttrOrigin
	got.Range(func(a Attr) bool {
		origin = a.Origin
		return false
	})
	if origin != AttrOriginal {
		t.Fatalf("origin after read = %v, want AttrOriginal", origin)
	}
}
