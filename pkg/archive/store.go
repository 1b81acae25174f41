package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zen-systems/mediagate/pkg/artifact"
)

// Ref points at stored content.
type Ref struct {
	Kind   artifact.Kind `json:"kind"`
	SHA256 string        `json:"sha256"`
	Path   string        `json:"path"`
}

// Record is the JSON sidecar written next to every stored artifact.
type Record struct {
	ArtifactID string         `json:"artifact_id"`
	Provider   string         `json:"provider"`
	Model      string         `json:"model"`
	Prompt     string         `json:"prompt"`
	MIMEType   string         `json:"mime_type"`
	Size       int            `json:"size"`
	Object     Ref            `json:"object"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	StoredAt   time.Time      `json:"stored_at"`
}

// Store manages the content-addressed archive.
type Store struct {
	BasePath string
}

// NewStore creates a new archive store.
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Join(home, ".mediagate", "archive")
	}

	dirs := []string{
		filepath.Join(basePath, "objects"),
		filepath.Join(basePath, "records"),
	}

	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, err
		}
	}

	return &Store{BasePath: basePath}, nil
}

// StoreBlob stores raw bytes by SHA256 in a sharded directory structure.
// Storing identical content twice writes it once.
func (s *Store) StoreBlob(kind artifact.Kind, data []byte, ext string) (Ref, error) {
	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	// Shard by first 2 chars
	shard := hash[:2]
	dir := filepath.Join(s.BasePath, "objects", shard)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Ref{}, err
	}

	path := filepath.Join(dir, hash+ext)
	if _, err := os.Stat(path); err == nil {
		return Ref{Kind: kind, SHA256: hash, Path: path}, nil
	}
	if err := writeAtomic(path, data); err != nil {
		return Ref{}, err
	}

	return Ref{Kind: kind, SHA256: hash, Path: path}, nil
}

// Put stores an artifact's content plus a sidecar record and returns the
// artifact annotated with its object path.
func (s *Store) Put(a *artifact.Artifact, prompt string) (*artifact.Artifact, Record, error) {
	if len(a.Data) == 0 {
		return nil, Record{}, fmt.Errorf("artifact %s has no content", a.ID)
	}

	ref, err := s.StoreBlob(a.Kind, a.Data, Extension(a.MIMEType))
	if err != nil {
		return nil, Record{}, fmt.Errorf("store object: %w", err)
	}

	rec := Record{
		ArtifactID: a.ID,
		Provider:   a.MetaString("provider"),
		Model:      a.MetaString("model"),
		Prompt:     prompt,
		MIMEType:   a.MIMEType,
		Size:       a.Size(),
		Object:     ref,
		Metadata:   a.MetadataCopy(),
		StoredAt:   time.Now().UTC(),
	}

	data, err := json.MarshalIndent(rec, "", "  ") // Indent for human readability
	if err != nil {
		return nil, Record{}, err
	}

	// Naming: timestamp__artifactID.json
	filename := fmt.Sprintf("%s__%s.json", rec.StoredAt.Format("20060102150405"), a.ID)
	if err := writeAtomic(filepath.Join(s.BasePath, "records", filename), data); err != nil {
		return nil, Record{}, fmt.Errorf("store record: %w", err)
	}

	return a.WithPath(ref.Path), rec, nil
}

// Records returns every sidecar, oldest first.
func (s *Store) Records() ([]Record, error) {
	dir := filepath.Join(s.BasePath, "records")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Record, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Load reads stored content back by hash.
func (s *Store) Load(ref Ref) ([]byte, error) {
	if ref.Path != "" {
		return os.ReadFile(ref.Path)
	}
	if len(ref.SHA256) < 2 {
		return nil, fmt.Errorf("invalid ref %q", ref.SHA256)
	}
	matches, err := filepath.Glob(filepath.Join(s.BasePath, "objects", ref.SHA256[:2], ref.SHA256+"*"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("object %s not found", ref.SHA256)
	}
	return os.ReadFile(matches[0])
}

// Export writes an artifact's content to dir under a readable name and
// returns the artifact annotated with that path.
func Export(dir, prefix string, a *artifact.Artifact) (*artifact.Artifact, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s_%s%s", prefix, a.Hash, Extension(a.MIMEType))
	path := filepath.Join(dir, name)
	if err := writeAtomic(path, a.Data); err != nil {
		return nil, err
	}
	return a.WithPath(path), nil
}

// Restore copies the content behind rec out of the archive into dir and
// returns the written path.
func (s *Store) Restore(rec Record, dir string) (string, error) {
	data, err := s.Load(rec.Object)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", rec.ArtifactID, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	hash := rec.Object.SHA256
	if len(hash) > 16 {
		hash = hash[:16]
	}
	name := fmt.Sprintf("%s_%s_%s%s", rec.Provider, rec.StoredAt.Format("20060102_150405"), hash, Extension(rec.MIMEType))
	path := filepath.Join(dir, name)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Extension maps a content type to a file extension.
func Extension(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(mt) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ".bin"
	}
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
