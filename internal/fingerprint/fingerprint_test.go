package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestComputeDeterministic(t *testing.T) {
	a := Compute("Text", "", []byte("hello"))
	b := Compute("Text", "", []byte("hello"))
	if a != b {
		t.Fatalf("same inputs produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%s)", len(a), a)
	}
}

func TestComputeSensitiveToEachInput(t *testing.T) {
	base := Compute("Text", "", []byte("hello"))

	cases := []struct {
		desc string
		got  string
	}{
		{"different content", Compute("Text", "", []byte("hello!"))},
		{"different kind", Compute("Image", "", []byte("hello"))},
		{"different aux name", Compute("Text", "a.png", []byte("hello"))},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			if tc.got == base {
				t.Errorf("fingerprint did not change for %s", tc.desc)
			}
		})
	}
}

func TestKindNameContentBoundariesDoNotCollide(t *testing.T) {
	// "ab"+"c" vs "a"+"bc" must not hash alike across field boundaries.
	x := Compute("ab", "c", []byte("d"))
	y := Compute("a", "bc", []byte("d"))
	if x == y {
		t.Fatal("field boundary collision between (ab,c) and (a,bc)")
	}
}

func TestFileDigestMatchesBytesDigest(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("wire payload")
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatal(err)
	}
	fd, err := FileDigest(path)
	if err != nil {
		t.Fatal(err)
	}
	if fd != BytesDigest(payload) {
		t.Fatalf("FileDigest %s != BytesDigest %s", fd, BytesDigest(payload))
	}
}

func TestQuickChangesWithContent(t *testing.T) {
	if Quick([]byte("a")) == Quick([]byte("b")) {
		t.Fatal("quick hash collision on trivial inputs")
	}
	if Quick([]byte("a")) != Quick([]byte("a")) {
		t.Fatal("quick hash not deterministic")
	}
}
