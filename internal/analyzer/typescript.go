package analyzer

import (
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"lattice/internal/fingerprint"
)

// tsAnalyzerVersion bumps whenever the extraction output changes shape or
// meaning. Cached analyses from older versions are discarded on load.
const tsAnalyzerVersion = "3"

// TypeScriptAnalyzer extracts imports, exports, and top-level declarations
// from TypeScript and JavaScript modules using tree-sitter. A fresh parser
// is created per call; tree-sitter parsers are not goroutine safe.
type TypeScriptAnalyzer struct{}

// NewTypeScript returns the production TS/JS analyzer.
func NewTypeScript() *TypeScriptAnalyzer {
	return &TypeScriptAnalyzer{}
}

func (a *TypeScriptAnalyzer) ID() string      { return "typescript" }
func (a *TypeScriptAnalyzer) Version() string { return tsAnalyzerVersion }

func (a *TypeScriptAnalyzer) SourceHash(source []byte) string {
	return fingerprint.HashBytes(source)
}

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	default:
		return nil
	}
}

func (a *TypeScriptAnalyzer) ParseModule(input ParseInput) ModuleAnalysis {
	analysis := ModuleAnalysis{
		FilePath:  input.FilePath,
		Signature: a.SourceHash(input.Source),
	}

	lang := languageFor(input.FilePath)
	if lang == nil {
		analysis.Diagnostics = append(analysis.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Message:  "unsupported file extension " + filepath.Ext(input.FilePath),
			Loc:      Location{Line: 1, Column: 1},
		})
		return analysis
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree := parser.Parse(nil, input.Source)
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		analysis.Diagnostics = append(analysis.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Message:  "syntax error",
			Loc:      firstErrorLocation(root),
		})
	}

	ex := &extraction{source: input.Source, analysis: &analysis}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		ex.topLevel(root.NamedChild(i))
	}

	sort.Strings(analysis.Exports)
	return analysis
}

type extraction struct {
	source   []byte
	analysis *ModuleAnalysis
}

func (ex *extraction) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(ex.source)
}

func (ex *extraction) loc(n *sitter.Node) Location {
	p := n.StartPoint()
	return Location{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func (ex *extraction) topLevel(n *sitter.Node) {
	switch n.Type() {
	case "import_statement":
		ex.importStatement(n)
	case "export_statement":
		ex.exportStatement(n)
	case "lexical_declaration", "variable_declaration":
		ex.variableDeclaration(n, false)
	case "function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration",
		"interface_declaration", "type_alias_declaration", "enum_declaration":
		ex.namedDeclaration(n, false)
	}
}

func (ex *extraction) importStatement(n *sitter.Node) {
	spec := trimQuotes(ex.text(n.ChildByFieldName("source")))
	if spec == "" {
		return
	}
	ex.analysis.Imports = append(ex.analysis.Imports, ModuleImport{
		Specifier: spec,
		Names:     importedNames(n, ex.source),
		Loc:       ex.loc(n),
	})
}

// importedNames collects the local bindings an import introduces: the
// default binding, namespace alias, and each named specifier.
func importedNames(stmt *sitter.Node, source []byte) []string {
	var names []string
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "identifier":
			names = append(names, n.Content(source))
			return
		case "import_specifier":
			// "a as b" binds b locally; plain "a" binds a.
			if alias := n.ChildByFieldName("alias"); alias != nil {
				names = append(names, alias.Content(source))
			} else if name := n.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(source))
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		if child.Type() == "import_clause" {
			walk(child)
		}
	}
	return names
}

func (ex *extraction) exportStatement(n *sitter.Node) {
	// Re-export: "export { a } from './x'" or "export * from './x'".
	if src := n.ChildByFieldName("source"); src != nil {
		spec := trimQuotes(ex.text(src))
		if spec != "" {
			ex.analysis.Imports = append(ex.analysis.Imports, ModuleImport{
				Specifier: spec,
				Loc:       ex.loc(n),
			})
		}
		ex.exportClauseNames(n)
		return
	}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		switch decl.Type() {
		case "lexical_declaration", "variable_declaration":
			ex.variableDeclaration(decl, true)
		default:
			ex.namedDeclaration(decl, true)
		}
		return
	}

	// "export default <expr>".
	if value := n.ChildByFieldName("value"); value != nil {
		ex.addDefinition(ModuleDefinition{
			ExportName: "default",
			ASTPath:    "default",
			IsTopLevel: true,
			IsExported: true,
			Expression: ex.text(value),
			Loc:        ex.loc(n),
		})
		return
	}

	// "export { a, b as c }" referencing earlier declarations.
	ex.exportClauseNames(n)
}

func (ex *extraction) exportClauseNames(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "export_clause" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			spec := child.NamedChild(j)
			if spec.Type() != "export_specifier" {
				continue
			}
			name := spec.ChildByFieldName("alias")
			if name == nil {
				name = spec.ChildByFieldName("name")
			}
			if exported := strings.TrimSpace(ex.text(name)); exported != "" {
				ex.analysis.Exports = append(ex.analysis.Exports, exported)
			}
		}
	}
}

func (ex *extraction) namedDeclaration(n *sitter.Node, exported bool) {
	name := strings.TrimSpace(ex.text(n.ChildByFieldName("name")))
	if name == "" {
		return
	}
	ex.addDefinition(ModuleDefinition{
		ExportName: name,
		ASTPath:    name,
		IsTopLevel: true,
		IsExported: exported,
		Expression: ex.text(n),
		Loc:        ex.loc(n),
	})
}

func (ex *extraction) variableDeclaration(n *sitter.Node, exported bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		name := strings.TrimSpace(ex.text(decl.ChildByFieldName("name")))
		if name == "" {
			continue
		}
		value := decl.ChildByFieldName("value")
		ex.addDefinition(ModuleDefinition{
			ExportName: name,
			ASTPath:    name,
			IsTopLevel: true,
			IsExported: exported,
			Expression: ex.text(value),
			Loc:        ex.loc(decl),
		})
		// Bindings nested inside an object literal keep their property
		// path, so two "query.list(...)" under different parents stay
		// distinct.
		if value != nil && value.Type() == "object" {
			ex.objectBindings(name, value, exported)
		}
	}
}

func (ex *extraction) objectBindings(prefix string, obj *sitter.Node, exported bool) {
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		pair := obj.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key := strings.TrimSpace(trimQuotes(ex.text(pair.ChildByFieldName("key"))))
		if key == "" {
			continue
		}
		value := pair.ChildByFieldName("value")
		path := prefix + "." + key
		ex.addDefinition(ModuleDefinition{
			ExportName: key,
			ASTPath:    path,
			IsTopLevel: false,
			IsExported: exported,
			Expression: ex.text(value),
			Loc:        ex.loc(pair),
		})
		if value != nil && value.Type() == "object" {
			ex.objectBindings(path, value, exported)
		}
	}
}

func (ex *extraction) addDefinition(def ModuleDefinition) {
	ex.analysis.Definitions = append(ex.analysis.Definitions, def)
	if def.IsExported && def.IsTopLevel {
		ex.analysis.Exports = append(ex.analysis.Exports, def.ExportName)
	}
}

func firstErrorLocation(root *sitter.Node) Location {
	var find func(*sitter.Node) *sitter.Node
	find = func(n *sitter.Node) *sitter.Node {
		if n.Type() == "ERROR" {
			return n
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if hit := find(n.Child(i)); hit != nil {
				return hit
			}
		}
		return nil
	}
	if hit := find(root); hit != nil {
		p := hit.StartPoint()
		return Location{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
	}
	return Location{Line: 1, Column: 1}
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}
