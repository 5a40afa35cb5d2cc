package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// File size limits for parser input validation.
const (
	// DefaultMaxFileSize is the maximum file size the parsers accept (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold at which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// GoParser implements the Parser interface for Go source code.
//
// Each Parse call creates its own tree-sitter parser instance internally,
// so GoParser instances are safe for concurrent use.
type GoParser struct {
	maxFileSize int64
}

// GoParserOption configures a GoParser instance.
type GoParserOption func(*GoParser)

// WithGoMaxFileSize sets the maximum file size the parser will accept.
func WithGoMaxFileSize(bytes int64) GoParserOption {
	return func(p *GoParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// NewGoParser creates a new GoParser with the given options.
func NewGoParser(opts ...GoParserOption) *GoParser {
	p := &GoParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language returns "go".
func (p *GoParser) Language() string { return "go" }

// Extensions returns the file extensions this parser handles.
func (p *GoParser) Extensions() []string { return []string{".go"} }

// Parse extracts symbols from Go source code.
//
// Description:
//
//	Walks the tree-sitter parse tree and extracts functions, methods,
//	type declarations, and top-level var/const declarations. The parser
//	is error-tolerant: syntactically invalid code yields partial results
//	with problems recorded in ParseResult.Errors.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing;
//     tree-sitter itself cannot be interrupted mid-parse.
//   - content: Raw Go source bytes. Must be valid UTF-8.
//   - filePath: Path relative to scan root, forward slashes.
//
// Outputs:
//   - *ParseResult: Extracted symbols and metadata. Never nil on success.
//   - error: Non-nil for complete failures (ErrFileTooLarge,
//     ErrInvalidContent, context errors).
//
// Thread Safety: safe for concurrent use.
func (p *GoParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		return nil, ErrInvalidContent
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath:      filePath,
		Language:      "go",
		Hash:          hex.EncodeToString(hash[:]),
		ParsedAtMilli: time.Now().UnixMilli(),
		Symbols:       make([]*Symbol, 0),
		TotalLines:    countLines(content),
	}

	root := tree.RootNode()
	if root == nil {
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		return result, nil
	}
	if root.HasError() {
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	result.Module = goPackageName(root, content)

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_declaration":
			p.addFunction(child, content, filePath, result.Module, SymbolKindFunction, result)
		case "method_declaration":
			p.addFunction(child, content, filePath, result.Module, SymbolKindMethod, result)
		case "type_declaration":
			p.addTypes(child, content, filePath, result.Module, result)
		case "var_declaration", "const_declaration":
			p.addValueSpecs(child, content, filePath, result.Module, result)
		}
	}

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("result validation failed: %w", err)
	}
	return result, nil
}

// goPackageName extracts the package clause identifier.
func goPackageName(root *sitter.Node, content []byte) string {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child.Type() != "package_clause" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			name := child.Child(j)
			if name.Type() == "package_identifier" {
				return nodeText(name, content)
			}
		}
	}
	return ""
}

// addFunction extracts a function or method declaration.
func (p *GoParser) addFunction(node *sitter.Node, content []byte, filePath, module string, kind SymbolKind, result *ParseResult) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	// Signature is the declaration without the body.
	signature := nodeText(node, content)
	if body := node.ChildByFieldName("body"); body != nil {
		signature = strings.TrimSpace(string(content[node.StartByte():body.StartByte()]))
	}

	result.Symbols = append(result.Symbols, &Symbol{
		ID:        SymbolID(filePath, name, kind, signature),
		Name:      name,
		Kind:      kind,
		FilePath:  filePath,
		Language:  "go",
		Module:    module,
		StartLine: int(node.StartPoint().Row + 1),
		EndLine:   int(node.EndPoint().Row + 1),
		Signature: signature,
		Exported:  isGoExported(name),
		Source:    nodeText(node, content),
	})
}

// addTypes extracts struct and interface definitions from a type declaration.
func (p *GoParser) addTypes(node *sitter.Node, content []byte, filePath, module string, result *ParseResult) {
	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil || typeNode == nil {
			continue
		}
		switch typeNode.Type() {
		case "struct_type", "interface_type":
		default:
			continue
		}
		name := nodeText(nameNode, content)
		signature := "type " + name + " " + typeNode.Type()

		result.Symbols = append(result.Symbols, &Symbol{
			ID:        SymbolID(filePath, name, SymbolKindClass, signature),
			Name:      name,
			Kind:      SymbolKindClass,
			FilePath:  filePath,
			Language:  "go",
			Module:    module,
			StartLine: int(spec.StartPoint().Row + 1),
			EndLine:   int(spec.EndPoint().Row + 1),
			Signature: signature,
			Exported:  isGoExported(name),
			Source:    nodeText(spec, content),
		})
	}
}

// addValueSpecs extracts top-level var and const declarations.
func (p *GoParser) addValueSpecs(node *sitter.Node, content []byte, filePath, module string, result *ParseResult) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "var_spec", "const_spec":
				nameNode := child.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				name := nodeText(nameNode, content)
				signature := strings.TrimSpace(nodeText(child, content))
				result.Symbols = append(result.Symbols, &Symbol{
					ID:        SymbolID(filePath, name, SymbolKindVariable, signature),
					Name:      name,
					Kind:      SymbolKindVariable,
					FilePath:  filePath,
					Language:  "go",
					Module:    module,
					StartLine: int(child.StartPoint().Row + 1),
					EndLine:   int(child.EndPoint().Row + 1),
					Signature: signature,
					Exported:  isGoExported(name),
					Source:    nodeText(child, content),
				})
			case "var_spec_list", "const_spec_list":
				walk(child)
			}
		}
	}
	walk(node)
}

// isGoExported reports whether the identifier starts with an uppercase rune.
func isGoExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// nodeText returns the source text covered by a node.
func nodeText(n *sitter.Node, content []byte) string {
	return string(content[n.StartByte():n.EndByte()])
}

// countLines returns the number of lines in the content.
func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	lines := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		lines++
	}
	return lines
}
