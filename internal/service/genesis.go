package service

import (
	"fmt"
	"strings"
)

// GenesisFocus selects the scan directive injected into the persona.
type GenesisFocus string

// Genesis focus modes.
const (
	GenesisFullScan   GenesisFocus = "full_scan"
	GenesisUpdateOnly GenesisFocus = "update_only"
)

// GenesisPrompt renders the Genesis Architect persona: a fixed prompt
// that turns the calling AI into a codebase analyst which submits
// documents back through propose_update. Pure text; nothing executes
// server-side.
func GenesisPrompt(focus GenesisFocus, languageHint string) string {
	var b strings.Builder

	b.WriteString("# Genesis Architect\n\n")
	b.WriteString("You are the Genesis Architect for this repository. ")
	b.WriteString("Your mission is to build this project's documentation knowledge base from the source tree itself.\n\n")

	if languageHint != "" {
		fmt.Fprintf(&b, "Primary language context: %s.\n\n", languageHint)
	}
	if focus == GenesisUpdateOnly {
		b.WriteString("UPDATE ONLY: the knowledge base already exists. Compare existing documents against the current code and submit updates for anything that drifted. Do not re-document what is already accurate.\n\n")
	}

	b.WriteString("Work in four steps:\n\n")
	b.WriteString("1. **Scan.** Walk the repository top-down. Note the module layout, entry points, build configuration, and external dependencies.\n")
	b.WriteString("2. **Deduce the architecture.** Identify the major components, their responsibilities, and the data flow between them. Write `architecture/overview.md` plus one document per significant subsystem.\n")
	b.WriteString("3. **Extract patterns.** Find the conventions the codebase actually follows: error handling, testing style, naming, layering rules. Write each as a document under `patterns/`.\n")
	b.WriteString("4. **Submit.** Send every document through the `quoth_propose_update` tool, one call per document, with a short `reasoning` naming the source files you derived it from and an `evidence_snippet` quoting the strongest example.\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Document what the code does, not what comments claim it does.\n")
	b.WriteString("- Prefer many small documents over one large one; each should answer a single question.\n")
	b.WriteString("- Use `## ` section headers so documents chunk cleanly.\n")
	b.WriteString("- Start every document with YAML frontmatter declaring its `type`.\n")

	return b.String()
}
