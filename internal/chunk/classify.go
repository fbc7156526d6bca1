package chunk

import (
	"regexp"
	"strings"
)

// ContentType routes content to the matching embedding model.
type ContentType string

// Content types.
const (
	ContentText ContentType = "text"
	ContentCode ContentType = "code"
)

// codeKeywords covers common declaration keywords across mainstream
// languages. A line matching it counts as one code signal.
var codeKeywords = regexp.MustCompile(`\b(func|function|def|class|struct|enum|impl|trait|interface|import|from|return|const|let|var|pub|fn|package|void|int|string|bool)\b`)

const codeSignalRatio = 0.30

// Classify labels content as code or text using a line-level heuristic:
// each non-blank line contributes one signal per matched indicator
// (keyword, deep indent, fence marker, structural punctuation); content
// is code when signals divided by non-blank lines exceeds 0.30.
func Classify(content string) ContentType {
	lines := strings.Split(content, "\n")
	var nonBlank, signals int
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonBlank++
		if codeKeywords.MatchString(line) {
			signals++
		}
		if strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t") {
			signals++
		}
		if strings.HasPrefix(trimmed, "```") {
			signals++
		}
		if strings.ContainsAny(trimmed, "{}[]();") {
			signals++
		}
	}
	if nonBlank == 0 {
		return ContentText
	}
	if float64(signals)/float64(nonBlank) > codeSignalRatio {
		return ContentCode
	}
	return ContentText
}
