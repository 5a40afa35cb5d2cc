package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonParser implements the Parser interface for Python source code.
//
// Thread Safety: safe for concurrent use; each Parse call creates its own
// tree-sitter parser.
type PythonParser struct {
	maxFileSize int64
}

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the maximum file size the parser will accept.
func WithPythonMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// NewPythonParser creates a new PythonParser with the given options.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language returns "python".
func (p *PythonParser) Language() string { return "python" }

// Extensions returns the file extensions this parser handles.
func (p *PythonParser) Extensions() []string { return []string{".py"} }

// Parse extracts symbols from Python source code.
//
// Top-level functions become SymbolKindFunction, class definitions become
// SymbolKindClass with their methods extracted as SymbolKindMethod, and
// module-level assignments become SymbolKindVariable. Decorated definitions
// are unwrapped so the symbol span includes the decorators.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
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
	parser.SetLanguage(python.GetLanguage())

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
		Language:      "python",
		Module:        pythonModuleName(filePath),
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

	seenVars := make(map[string]struct{})
	for i := 0; i < int(root.ChildCount()); i++ {
		p.addTopLevel(root.Child(i), content, filePath, seenVars, result)
	}

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("result validation failed: %w", err)
	}
	return result, nil
}

// pythonModuleName derives a dotted module path from the file path.
// "pkg/util/helpers.py" becomes "pkg.util.helpers".
func pythonModuleName(filePath string) string {
	path := strings.TrimSuffix(filePath, ".py")
	path = strings.TrimSuffix(path, "/__init__")
	return strings.ReplaceAll(path, "/", ".")
}

// addTopLevel dispatches a module-level node. Decorated definitions are
// unwrapped here so decorators count toward the symbol span.
func (p *PythonParser) addTopLevel(node *sitter.Node, content []byte, filePath string, seenVars map[string]struct{}, result *ParseResult) {
	span := node
	if node.Type() == "decorated_definition" {
		if def := node.ChildByFieldName("definition"); def != nil {
			node = def
		}
	}

	switch node.Type() {
	case "function_definition":
		p.addPyFunction(node, span, content, filePath, result.Module, SymbolKindFunction, result)
	case "class_definition":
		p.addPyClass(node, span, content, filePath, result)
	case "expression_statement":
		p.addPyAssignment(node, content, filePath, seenVars, result)
	}
}

// addPyFunction extracts a function or method definition. span carries the
// outer decorated_definition node when decorators are present.
func (p *PythonParser) addPyFunction(node, span *sitter.Node, content []byte, filePath, module string, kind SymbolKind, result *ParseResult) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	signature := "def " + name
	if params := node.ChildByFieldName("parameters"); params != nil {
		signature += nodeText(params, content)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		signature += " -> " + nodeText(ret, content)
	}

	result.Symbols = append(result.Symbols, &Symbol{
		ID:        SymbolID(filePath, name, kind, signature),
		Name:      name,
		Kind:      kind,
		FilePath:  filePath,
		Language:  "python",
		Module:    module,
		StartLine: int(span.StartPoint().Row + 1),
		EndLine:   int(span.EndPoint().Row + 1),
		Signature: signature,
		Exported:  isPythonExported(name),
		Source:    nodeText(span, content),
	})
}

// addPyClass extracts a class definition and its method definitions.
func (p *PythonParser) addPyClass(node, span *sitter.Node, content []byte, filePath string, result *ParseResult) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	signature := "class " + name
	if args := node.ChildByFieldName("superclasses"); args != nil {
		signature += nodeText(args, content)
	}

	result.Symbols = append(result.Symbols, &Symbol{
		ID:        SymbolID(filePath, name, SymbolKindClass, signature),
		Name:      name,
		Kind:      SymbolKindClass,
		FilePath:  filePath,
		Language:  "python",
		Module:    result.Module,
		StartLine: int(span.StartPoint().Row + 1),
		EndLine:   int(span.EndPoint().Row + 1),
		Signature: signature,
		Exported:  isPythonExported(name),
		Source:    nodeText(span, content),
	})

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		memberSpan := member
		if member.Type() == "decorated_definition" {
			if def := member.ChildByFieldName("definition"); def != nil {
				member = def
			}
		}
		if member.Type() == "function_definition" {
			p.addPyFunction(member, memberSpan, content, filePath, result.Module, SymbolKindMethod, result)
		}
	}
}

// addPyAssignment extracts module-level variable assignments. Only simple
// identifier targets are recorded; tuple unpacking and attribute targets
// are skipped. A name rebound later in the module is the same variable, so
// the first binding defines the symbol and repeats are ignored.
func (p *PythonParser) addPyAssignment(node *sitter.Node, content []byte, filePath string, seenVars map[string]struct{}, result *ParseResult) {
	if node.ChildCount() == 0 {
		return
	}
	assign := node.Child(0)
	if assign.Type() != "assignment" {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := nodeText(left, content)
	if _, dup := seenVars[name]; dup {
		return
	}
	seenVars[name] = struct{}{}
	signature := strings.TrimSpace(nodeText(assign, content))
	if idx := strings.IndexByte(signature, '\n'); idx >= 0 {
		signature = signature[:idx]
	}

	result.Symbols = append(result.Symbols, &Symbol{
		ID:        SymbolID(filePath, name, SymbolKindVariable, signature),
		Name:      name,
		Kind:      SymbolKindVariable,
		FilePath:  filePath,
		Language:  "python",
		Module:    result.Module,
		StartLine: int(node.StartPoint().Row + 1),
		EndLine:   int(node.EndPoint().Row + 1),
		Signature: signature,
		Exported:  isPythonExported(name),
		Source:    nodeText(node, content),
	})
}

// isPythonExported reports whether a name is public by Python convention.
func isPythonExported(name string) bool {
	return !strings.HasPrefix(name, "_")
}
