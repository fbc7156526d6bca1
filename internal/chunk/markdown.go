package chunk

import "strings"

// splitMarkdown splits prose on level-2 headers. Each "## " heading plus
// its body up to the next "## " is one chunk; content before the first
// header is an implicit chunk. YAML frontmatter stays attached to the
// first chunk.
func splitMarkdown(content string) []Chunk {
	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var current []string
	startLine := 1

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Content: strings.Join(current, "\n"),
			Meta:    Meta{StartLine: startLine, EndLine: endLine},
		})
		current = nil
	}

	inFrontmatter := false
	for i, line := range lines {
		// Frontmatter delimiters are not headers; keep the block intact.
		if i == 0 && line == "---" {
			inFrontmatter = true
		} else if inFrontmatter && (line == "---" || line == "...") {
			inFrontmatter = false
		}

		if !inFrontmatter && strings.HasPrefix(line, "## ") {
			flush(i)
			startLine = i + 1
		}
		current = append(current, line)
	}
	flush(len(lines))

	return chunks
}
