// Package chunk splits documents into ordered, self-contained chunks.
// Code files split on syntactic boundaries via tree-sitter; prose splits
// on level-2 markdown headers. The package is pure: no I/O, no clock.
package chunk

import (
	"crypto/md5" //nolint:gosec // chunk identity format, not a security boundary
	"encoding/hex"
	"path/filepath"
	"strings"
)

// minChunkLen is the minimum trimmed chunk length kept by the splitter.
const minChunkLen = 50

// Meta carries position and context for a chunk.
type Meta struct {
	Language      string
	StartLine     int
	EndLine       int
	ParentContext string
}

// Chunk is one self-contained fragment of a document.
type Chunk struct {
	Content string
	Meta    Meta
}

// Hash returns the md5 hex digest of the trimmed content, the identity
// key for incremental re-indexing.
func Hash(content string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(content))) //nolint:gosec // identity format
	return hex.EncodeToString(sum[:])
}

// Split chunks content according to the file path's extension: AST-aware
// for recognized languages, header-aware otherwise. Chunks shorter than
// 50 characters after trimming are dropped; when everything is dropped
// the whole document becomes a single chunk.
func Split(filePath, content string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var chunks []Chunk
	ext := strings.ToLower(filepath.Ext(filePath))
	if lang, ok := languageForExt(ext); ok {
		chunks = splitCode(lang, content)
	} else {
		chunks = splitMarkdown(content)
	}

	kept := chunks[:0]
	for _, c := range chunks {
		if len(strings.TrimSpace(c.Content)) >= minChunkLen {
			c.Content = strings.TrimSpace(c.Content)
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return []Chunk{{
			Content: strings.TrimSpace(content),
			Meta:    Meta{EndLine: strings.Count(content, "\n") + 1},
		}}
	}
	return kept
}
