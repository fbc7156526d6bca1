package chunk

import (
	"strings"
	"testing"
)

func TestSplitMarkdownOnH2Headers(t *testing.T) {
	content := `Intro paragraph before any header, long enough to survive the length filter.

## First Section

Body of the first section, also comfortably above the fifty character minimum.

## Second Section

Body of the second section, likewise above the fifty character minimum here.
`
	chunks := Split("guide.md", content)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3 (intro plus two sections)", len(chunks))
	}
	if !strings.HasPrefix(chunks[1].Content, "## First Section") {
		t.Fatalf("chunk 1 = %q, want to start at the header", chunks[1].Content[:30])
	}
	if chunks[0].Meta.StartLine != 1 {
		t.Fatalf("intro start line = %d, want 1", chunks[0].Meta.StartLine)
	}
	if chunks[1].Meta.StartLine != 3 {
		t.Fatalf("first section start line = %d, want 3", chunks[1].Meta.StartLine)
	}
	if chunks[2].Meta.EndLine != 10 {
		t.Fatalf("last section end line = %d, want 10", chunks[2].Meta.EndLine)
	}
}

func TestSplitDropsShortChunks(t *testing.T) {
	content := `## Stub

tiny

## Real Section

This section has enough content to clear the minimum chunk length comfortably.
`
	chunks := Split("notes.md", content)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1 (the stub is under 50 chars)", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "Real Section") {
		t.Fatalf("kept chunk = %q", chunks[0].Content)
	}
}

func TestSplitAllDroppedFallsBackToWholeDocument(t *testing.T) {
	content := "## A\n\nshort\n\n## B\n\nalso short\n"
	chunks := Split("notes.md", content)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want single-chunk fallback", len(chunks))
	}
	if chunks[0].Content != strings.TrimSpace(content) {
		t.Fatal("fallback chunk should carry the whole document")
	}
}

func TestSplitEmptyContent(t *testing.T) {
	if chunks := Split("empty.md", "   \n  "); chunks != nil {
		t.Fatalf("chunks = %v, want nil for blank content", chunks)
	}
}

func TestSplitFrontmatterStaysWithFirstChunk(t *testing.T) {
	content := `---
type: architecture
---

The gateway sits in front of every internal service and owns the public edge.

## Overview

The gateway terminates TLS and forwards requests over mutual TLS internally.
`
	chunks := Split("architecture/gateway.md", content)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Content, "---") {
		t.Fatal("frontmatter must stay attached to the first chunk")
	}
}

func TestSplitGoDeclarations(t *testing.T) {
	content := `package cache

import "sync"

// Store is a small in-memory map guarded by a mutex for concurrent use.
type Store struct {
	mu sync.Mutex
	m  map[string]string
}

// Get returns the value for key and whether it was present in the map.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}
`
	chunks := Split("cache.go", content)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want type and method declarations", len(chunks))
	}
	for _, c := range chunks {
		if c.Meta.Language != "go" {
			t.Fatalf("language = %q, want go", c.Meta.Language)
		}
	}
	if chunks[1].Meta.ParentContext != "(s *Store)" {
		t.Fatalf("parent context = %q, want the method receiver", chunks[1].Meta.ParentContext)
	}
	if chunks[0].Meta.StartLine == 0 || chunks[0].Meta.EndLine < chunks[0].Meta.StartLine {
		t.Fatalf("line range = %d..%d", chunks[0].Meta.StartLine, chunks[0].Meta.EndLine)
	}
}

func TestHashTrimsWhitespace(t *testing.T) {
	a := Hash("stable content here")
	b := Hash("  stable content here\n\n")
	if a != b {
		t.Fatal("hash must ignore surrounding whitespace")
	}
	if a == Hash("different content") {
		t.Fatal("distinct content must hash differently")
	}
	if len(a) != 32 {
		t.Fatalf("hash length = %d, want 32 hex chars", len(a))
	}
}

func TestClassify(t *testing.T) {
	code := `func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}`
	prose := `The retrieval pipeline embeds the query once and matches it against
stored chunk vectors. Results below the similarity floor are discarded
before any reranking happens. The remaining candidates are sorted by
their final relevance and trimmed at the dynamic cutoff.`

	if got := Classify(code); got != ContentCode {
		t.Fatalf("code classified as %s", got)
	}
	if got := Classify(prose); got != ContentText {
		t.Fatalf("prose classified as %s", got)
	}
	if got := Classify("   \n  "); got != ContentText {
		t.Fatalf("blank classified as %s", got)
	}
}
