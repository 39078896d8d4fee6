package fingerprint

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Compute derives the canonical fingerprint for a history item from its
// kind, auxiliary file name and payload bytes. The same inputs always
// produce the same value, so two devices holding identical content
// converge on one fingerprint regardless of where it originated.
//
// MD5 matches the hash the remote store expects in the Clipboard field
// for file payloads; adversarial collision resistance is not a goal here,
// only dedup stability.
func Compute(kind string, auxFileName string, content []byte) string {
	h := md5.New()
	io.WriteString(h, kind)
	io.WriteString(h, "\x00")
	io.WriteString(h, auxFileName)
	io.WriteString(h, "\x00")
	h.Write(content)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// FileDigest hashes just the raw bytes of a file, with no kind/name
// salting. This is the value the wire protocol carries in the Clipboard
// field for Image/File uploads.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %v", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %v", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// BytesDigest is FileDigest over an in-memory payload.
func BytesDigest(b []byte) string {
	return fmt.Sprintf("%x", md5.Sum(b))
}

// Quick is the cheap non-cryptographic hash used by the clipboard poll
// watcher to decide changed/unchanged between ticks.
func Quick(b []byte) uint64 {
	return xxhash.Sum64(b)
}
