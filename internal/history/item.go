package history

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"clipsync/internal/fingerprint"
)

// Kind classifies the payload of a history item.
type Kind string

const (
	KindText  Kind = "Text"
	KindImage Kind = "Image"
	KindFile  Kind = "File"
)

// Provenance records which side of the sync relation an item came from.
// Merged means the item was recognized as identical to an item from the
// other origin and collapsed into one canonical row.
type Provenance string

const (
	ProvenanceLocal  Provenance = "Local"
	ProvenanceRemote Provenance = "Remote"
	ProvenanceMerged Provenance = "Merged"
)

// HistoryItem is the unit of synchronized clipboard content.
//
// Content holds literal text for Text items; for Image/File items it holds
// the payload's content digest while the bytes live in CacheFilePath.
// Fingerprint is the dedup key and is deliberately not unique at the store
// level: duplicate rows may coexist until the resolver collapses them.
type HistoryItem struct {
	ID             string
	Content        string
	Kind           Kind
	CreatedAt      int64 // epoch millis
	LastModified   int64 // epoch millis
	OriginDevice   string
	AuxFileName    string
	AuxFileSize    int64
	AuxMimeType    string
	CacheFilePath  string
	Synced         bool
	Provenance     Provenance
	Fingerprint    string
	DisplayContent string
}

// NowMillis is the single time source for item timestamps.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

const displayLimit = 120

// MakeDisplayContent renders a single-line, rune-safe preview of content.
// It is presentation-only and never feeds hashing or upload.
func MakeDisplayContent(content string) string {
	s := strings.ReplaceAll(content, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	runes := []rune(s)
	if len(runes) > displayLimit {
		return string(runes[:displayLimit]) + "…"
	}
	return s
}

// NewTextItem builds a locally-captured text item, unsynced, with its
// fingerprint precomputed.
func NewTextItem(text string, deviceName string) *HistoryItem {
	now := NowMillis()
	return &HistoryItem{
		ID:             uuid.NewString(),
		Content:        text,
		Kind:           KindText,
		CreatedAt:      now,
		LastModified:   now,
		OriginDevice:   deviceName,
		Provenance:     ProvenanceLocal,
		Fingerprint:    fingerprint.Compute(string(KindText), "", []byte(text)),
		DisplayContent: MakeDisplayContent(text),
	}
}

// NewRemoteItem builds an item accepted from the remote store. The caller
// supplies the already-computed fingerprint since binary payloads are
// hashed while they are downloaded.
func NewRemoteItem(kind Kind, content string, fp string) *HistoryItem {
	now := NowMillis()
	return &HistoryItem{
		ID:             uuid.NewString(),
		Content:        content,
		Kind:           kind,
		CreatedAt:      now,
		LastModified:   now,
		Provenance:     ProvenanceRemote,
		Fingerprint:    fp,
		DisplayContent: MakeDisplayContent(content),
	}
}
