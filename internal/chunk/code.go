package chunk

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// language pairs a tree-sitter grammar with the node types that count as
// top-level declarations for chunking.
type language struct {
	name     string
	grammar  *sitter.Language
	declares map[string]bool
}

var languages = map[string]language{
	".go": {
		name:    "go",
		grammar: golang.GetLanguage(),
		declares: map[string]bool{
			"function_declaration": true,
			"method_declaration":   true,
			"type_declaration":     true,
			"const_declaration":    true,
			"var_declaration":      true,
		},
	},
	".py": {
		name:    "python",
		grammar: python.GetLanguage(),
		declares: map[string]bool{
			"function_definition":  true,
			"class_definition":     true,
			"decorated_definition": true,
		},
	},
	".rs": {
		name:    "rust",
		grammar: rust.GetLanguage(),
		declares: map[string]bool{
			"function_item": true,
			"struct_item":   true,
			"enum_item":     true,
			"impl_item":     true,
			"trait_item":    true,
			"const_item":    true,
		},
	},
	".js": {
		name:    "javascript",
		grammar: javascript.GetLanguage(),
		declares: map[string]bool{
			"function_declaration": true,
			"class_declaration":    true,
			"lexical_declaration":  true,
			"export_statement":     true,
		},
	},
	".ts": {
		name:    "typescript",
		grammar: typescript.GetLanguage(),
		declares: map[string]bool{
			"function_declaration":  true,
			"class_declaration":     true,
			"interface_declaration": true,
			"lexical_declaration":   true,
			"export_statement":      true,
		},
	},
}

func init() {
	languages[".tsx"] = languages[".ts"]
	languages[".jsx"] = languages[".js"]
}

func languageForExt(ext string) (language, bool) {
	l, ok := languages[ext]
	return l, ok
}

// splitCode emits one chunk per top-level declaration. When parsing
// fails the whole file falls back to a single chunk via the caller's
// discard-and-fallback rule.
func splitCode(lang language, content string) []Chunk {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.grammar)

	src := []byte(content)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil
	}
	defer tree.Close()

	var chunks []Chunk
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if !lang.declares[node.Type()] {
			continue
		}
		chunks = append(chunks, Chunk{
			Content: node.Content(src),
			Meta: Meta{
				Language:      lang.name,
				StartLine:     int(node.StartPoint().Row) + 1,
				EndLine:       int(node.EndPoint().Row) + 1,
				ParentContext: declarationContext(node, src),
			},
		})
	}
	return chunks
}

// declarationContext names the enclosing scope of a declaration: the
// receiver type for Go methods, the impl target for Rust, empty for
// plain top-level declarations.
func declarationContext(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "method_declaration":
		if recv := node.ChildByFieldName("receiver"); recv != nil {
			return recv.Content(src)
		}
	case "impl_item":
		if typ := node.ChildByFieldName("type"); typ != nil {
			return typ.Content(src)
		}
	}
	return ""
}
