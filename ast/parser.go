package ast

import (
	"context"
	"sync"
)

// Parser defines the contract for language-specific symbol extraction.
//
// Description:
//
//	Parser implementations extract symbol information from source code.
//	Each implementation handles one language but produces output in the
//	common ParseResult format defined in types.go. Extraction is a pure
//	function of the file content: parsers hold no mutable state shared
//	between calls.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. Multiple goroutines
//	may call Parse simultaneously with different content.
type Parser interface {
	// Parse extracts symbols from source code.
	//
	// Parsing is resilient to syntax errors, returning partial results
	// in ParseResult.Errors when possible. A non-nil error indicates a
	// complete failure (invalid UTF-8, oversized input, cancellation).
	Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error)

	// Language returns the canonical lowercase name of the language.
	Language() string

	// Extensions returns the file extensions this parser handles,
	// including the leading dot.
	Extensions() []string
}

// ParserRegistry manages parser instances by language and file extension.
//
// Thread Safety: fully thread-safe. Registration uses write locks, lookups
// use read locks.
type ParserRegistry struct {
	mu sync.RWMutex

	byLanguage  map[string]Parser
	byExtension map[string]Parser
}

// NewParserRegistry creates a new empty ParserRegistry.
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{
		byLanguage:  make(map[string]Parser),
		byExtension: make(map[string]Parser),
	}
}

// DefaultRegistry returns a registry with all built-in parsers registered.
func DefaultRegistry() *ParserRegistry {
	r := NewParserRegistry()
	r.Register(NewGoParser())
	r.Register(NewPythonParser())
	return r
}

// Register adds a parser under its Language() name and all its Extensions().
// Existing registrations for the same keys are overwritten.
func (r *ParserRegistry) Register(parser Parser) {
	if parser == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byLanguage[parser.Language()] = parser
	for _, ext := range parser.Extensions() {
		r.byExtension[ext] = parser
	}
}

// GetByLanguage returns the parser for the given language name.
func (r *ParserRegistry) GetByLanguage(language string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byLanguage[language]
	return parser, ok
}

// GetByExtension returns the parser for the given file extension
// (including the dot, e.g. ".go").
func (r *ParserRegistry) GetByExtension(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byExtension[ext]
	return parser, ok
}
