// Package document defines documents, chunks, and edit proposals.
package document

import (
	"crypto/md5" //nolint:gosec // md5 is the storage identity format, not a security boundary
	"encoding/hex"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DocType categorizes a document within the knowledge base.
type DocType string

// Known document types. The empty value means uncategorized.
const (
	TypeArchitecture   DocType = "architecture"
	TypeTestingPattern DocType = "testing-pattern"
	TypeContract       DocType = "contract"
	TypeMeta           DocType = "meta"
	TypeTemplate       DocType = "template"
)

// Visibility controls whether a document is searchable outside its project.
type Visibility string

// Visibility values.
const (
	VisibilityProject Visibility = "project"
	VisibilityShared  Visibility = "shared"
)

// Input size limits enforced at the tool layer.
const (
	MaxContentBytes  = 500_000
	MaxEvidenceBytes = 10_000
	MaxReasoningLen  = 5000
	MaxQueryLen      = 1000
	MaxDocIDLen      = 500
	MaxReadChunkIDs  = 20
)

// Document is a versioned knowledge-base file within a project.
// (project_id, file_path) is unique; checksum is md5 of content at rest.
type Document struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	FilePath    string     `json:"file_path"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Checksum    string     `json:"checksum"`
	DocType     DocType    `json:"doc_type,omitempty"`
	Visibility  Visibility `json:"visibility"`
	Version     int        `json:"version"`
	LastUpdated time.Time  `json:"last_updated"`
	AgentID     string     `json:"agent_id,omitempty"`
}

// ChunkMetadata travels with every stored chunk.
type ChunkMetadata struct {
	ChunkIndex    int    `json:"chunk_index"`
	Language      string `json:"language,omitempty"`
	StartLine     int    `json:"start_line,omitempty"`
	EndLine       int    `json:"end_line,omitempty"`
	ParentContext string `json:"parent_context,omitempty"`
	Source        string `json:"source,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
}

// Chunk is the unit of embedding and retrieval. The id is write-once:
// a chunk whose hash survives a re-sync keeps its id and embedding.
type Chunk struct {
	ID             string        `json:"id"`
	DocumentID     string        `json:"document_id"`
	Content        string        `json:"content_chunk"`
	Hash           string        `json:"chunk_hash"`
	Embedding      []float32     `json:"-"`
	EmbeddingModel string        `json:"embedding_model"`
	Metadata       ChunkMetadata `json:"metadata"`
}

// Checksum returns the md5 hex digest of content, the document identity
// used for no-op sync detection.
func Checksum(content string) string {
	sum := md5.Sum([]byte(content)) //nolint:gosec // identity format
	return hex.EncodeToString(sum[:])
}

// frontmatter is the subset of YAML frontmatter the indexer inspects.
type frontmatter struct {
	Type    string `yaml:"type"`
	DocType string `yaml:"doc_type"`
}

// TypeFromFrontmatter extracts the doc type from a leading YAML
// frontmatter block, if present and recognized.
func TypeFromFrontmatter(content string) (DocType, bool) {
	if !strings.HasPrefix(content, "---\n") {
		return "", false
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", false
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return "", false
	}
	raw := fm.DocType
	if raw == "" {
		raw = fm.Type
	}
	dt := DocType(raw)
	switch dt {
	case TypeArchitecture, TypeTestingPattern, TypeContract, TypeMeta, TypeTemplate:
		return dt, true
	}
	return "", false
}

// InferType categorizes a document by its path prefix. Returns the empty
// type when no prefix matches.
func InferType(filePath string) DocType {
	switch {
	case strings.HasPrefix(filePath, "architecture/"):
		return TypeArchitecture
	case strings.HasPrefix(filePath, "patterns/"):
		return TypeTestingPattern
	case strings.HasPrefix(filePath, "contracts/"):
		return TypeContract
	case strings.HasPrefix(filePath, "meta/"):
		return TypeMeta
	case strings.HasPrefix(filePath, "templates/"):
		return TypeTemplate
	}
	return ""
}
