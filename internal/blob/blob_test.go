package blob

import (
	"bytes"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if s.Exists("evidence/42.jpg") {
		t.Fatal("ref should not exist yet")
	}
	if err := s.Put("evidence/42.jpg", []byte("jpeg")); err != nil {
		t.Fatal(err)
	}
	if !s.Exists("evidence/42.jpg") {
		t.Fatal("ref should exist after Put")
	}
	got, err := s.Get("evidence/42.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("jpeg")) {
		t.Fatalf("got %q", got)
	}
}

func TestFileStoreRejectsEscapingRefs(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{"../outside", "a/../../b", "/etc/passwd", "."} {
		if err := s.Put(ref, []byte("x")); err == nil {
			t.Errorf("Put(%q) accepted", ref)
		}
		if _, err := s.Get(ref); err == nil {
			t.Errorf("Get(%q) accepted", ref)
		}
		if s.Exists(ref) {
			t.Errorf("Exists(%q) true", ref)
		}
	}
}
