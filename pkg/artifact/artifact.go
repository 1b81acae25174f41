package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes image and video artifacts.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Artifact represents an immutable piece of generated media.
type Artifact struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Data      []byte         `json:"-"`
	Path      string         `json:"path,omitempty"`
	MIMEType  string         `json:"mime_type,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Hash      string         `json:"hash"`
}

// New creates an Artifact that takes ownership of data. The caller must not
// modify data afterwards.
func New(kind Kind, data []byte, metadata map[string]any) *Artifact {
	a := &Artifact{
		ID:        uuid.NewString(),
		Kind:      kind,
		Data:      data,
		MIMEType:  sniffMIME(kind, data),
		Metadata:  copyMetadata(metadata),
		CreatedAt: time.Now().UTC(),
	}
	a.Hash = computeHash(data)
	return a
}

// WithMetadata returns a new artifact with additional metadata.
func (a *Artifact) WithMetadata(key string, value any) *Artifact {
	next := a.clone()
	next.Metadata[key] = value
	return next
}

// WithPath returns a new artifact that records where its content lives.
func (a *Artifact) WithPath(path string) *Artifact {
	next := a.clone()
	next.Path = path
	return next
}

// Meta returns a single metadata value.
func (a *Artifact) Meta(key string) (any, bool) {
	v, ok := a.Metadata[key]
	return v, ok
}

// MetaString returns a metadata value as a string, or "" when absent or not a
// string.
func (a *Artifact) MetaString(key string) string {
	v, _ := a.Metadata[key].(string)
	return v
}

// MetadataCopy returns a copy callers may modify freely.
func (a *Artifact) MetadataCopy() map[string]any {
	return copyMetadata(a.Metadata)
}

// Size is the content length in bytes.
func (a *Artifact) Size() int { return len(a.Data) }

func (a *Artifact) clone() *Artifact {
	return &Artifact{
		ID:        a.ID,
		Kind:      a.Kind,
		Data:      a.Data,
		Path:      a.Path,
		MIMEType:  a.MIMEType,
		Metadata:  copyMetadata(a.Metadata),
		CreatedAt: a.CreatedAt,
		Hash:      a.Hash,
	}
}

func computeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

func sniffMIME(kind Kind, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	mime := http.DetectContentType(data)
	if kind == KindVideo && !strings.HasPrefix(mime, "video/") {
		return "video/mp4"
	}
	return mime
}

func copyMetadata(m map[string]any) map[string]any {
	newM := make(map[string]any, len(m))
	for k, v := range m {
		newM[k] = v
	}
	return newM
}
