package service

import (
	"fmt"

	"github.com/quothlabs/quoth/internal/domain"
)

// GuidelineMode selects which guideline set to return.
type GuidelineMode string

// Guideline modes.
const (
	GuidelineCode     GuidelineMode = "code"
	GuidelineReview   GuidelineMode = "review"
	GuidelineDocument GuidelineMode = "document"
)

type guideline struct {
	compact string
	full    string
}

var guidelines = map[GuidelineMode]guideline{
	GuidelineCode: {
		compact: `Before writing code: search the knowledge base for the relevant architecture and pattern documents, follow the documented conventions, and cite the document you followed in your summary.`,
		full: `# Coding Guidelines

1. **Search first.** Call quoth_search_index with the feature area before touching code. HIGH-trust results are authoritative; MEDIUM results need verification against the code.
2. **Follow documented patterns.** If a patterns/ document covers the situation (error handling, testing, layering), match it exactly. Deviations require a propose_update explaining why the pattern changed.
3. **Keep tenant predicates explicit.** Every query that touches project or organization data carries the tenant id; never rely on ambient scoping.
4. **Update as you go.** When your change invalidates a document, submit the correction through quoth_propose_update in the same session, with the diff as evidence.
5. **Small chunks.** Write documents with ## section headers so the indexer produces focused, searchable chunks.`,
	},
	GuidelineReview: {
		compact: `When reviewing: check the change against the documented architecture and patterns, flag undocumented deviations as drift, and verify that affected documents were updated.`,
		full: `# Review Guidelines

1. **Anchor the review in documents.** Pull the architecture and pattern documents covering the changed area and review against them, not against personal preference.
2. **Flag drift.** A change that contradicts a document is either a bug or an undocumented decision; require either a code fix or a propose_update, never silence.
3. **Check the proposals queue.** Pending proposals touching the same files should be reconciled before merge.
4. **Tenant safety.** Reject any query or handler that drops a project_id or organization_id predicate.
5. **Evidence over assertion.** Review comments citing a document chunk carry the document path and section.`,
	},
	GuidelineDocument: {
		compact: `When documenting: one question per document, YAML frontmatter with a type, ## section headers, concrete code references, and submission via propose_update.`,
		full: `# Documentation Guidelines

1. **One document, one question.** Each document answers a single question a coding agent would ask. Split anything that needs more than ~5 sections.
2. **Frontmatter.** Start with YAML frontmatter declaring type: one of architecture, testing-pattern, contract, meta, template.
3. **Structure for chunking.** Use ## headers; each section should stand alone when retrieved without its siblings.
4. **Ground in code.** Name the files and symbols the document describes; an unverifiable claim is worse than no claim.
5. **Propose, don't push.** All writes go through quoth_propose_update with reasoning and an evidence snippet.`,
	},
}

// Guidelines returns the canonical guideline text for a mode, compact
// unless full is requested.
func Guidelines(mode GuidelineMode, full bool) (string, error) {
	g, ok := guidelines[mode]
	if !ok {
		return "", fmt.Errorf("unknown guideline mode %q: %w", mode, domain.ErrValidation)
	}
	if full {
		return g.full, nil
	}
	return g.compact, nil
}
