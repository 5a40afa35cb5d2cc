// Package ast provides language-agnostic symbol extraction for duplicate
// detection.
//
// Each parser implementation (Go, Python) walks a tree-sitter parse tree and
// produces Symbols in a common format. Symbols are the unit of comparison for
// the similarity pipeline: each one carries a stable identity, a location, a
// visibility flag, and the source text that gets embedded.
//
// Design principles:
//   - Language-agnostic: one Symbol type for every supported language
//   - Immutable after extraction: symbols are created once per scan run
//   - Timestamps as int64 UnixMilli per project conventions
package ast

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SymbolKind represents the type of code symbol extracted from source code.
//
// Only kinds that participate in duplicate detection are modeled. Language
// constructs are mapped to the closest general kind (a Python class and a Go
// struct both map to SymbolKindClass).
type SymbolKind int

const (
	// SymbolKindUnknown indicates an unrecognized or unparseable symbol.
	SymbolKindUnknown SymbolKind = iota

	// SymbolKindFunction represents a standalone function declaration.
	SymbolKindFunction

	// SymbolKindMethod represents a function attached to a type or class.
	SymbolKindMethod

	// SymbolKindClass represents a composite type: Go struct/interface,
	// Python class.
	SymbolKindClass

	// SymbolKindVariable represents a top-level variable or constant.
	SymbolKindVariable
)

var symbolKindNames = map[SymbolKind]string{
	SymbolKindUnknown:  "unknown",
	SymbolKindFunction: "function",
	SymbolKindMethod:   "method",
	SymbolKindClass:    "class",
	SymbolKindVariable: "variable",
}

// String returns the string representation of the SymbolKind.
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON serializes the kind as a JSON string for readability.
func (k SymbolKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts both string and numeric kind values.
func (k *SymbolKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = ParseSymbolKind(s)
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("SymbolKind must be string or int: %w", err)
	}
	*k = SymbolKind(i)
	return nil
}

// ParseSymbolKind converts a string to a SymbolKind.
//
// Returns SymbolKindUnknown if the string is not recognized.
func ParseSymbolKind(s string) SymbolKind {
	for kind, name := range symbolKindNames {
		if name == s {
			return kind
		}
	}
	return SymbolKindUnknown
}

// Symbol represents one named code unit extracted from a source file.
//
// Symbols are immutable once created and discarded at the end of a scan run
// unless persisted by the vector store. The Embedding field is populated by
// the scan engine after extraction; parsers leave it nil.
type Symbol struct {
	// ID is a stable hash of file path, name, kind, and signature.
	// Unique per extraction run.
	ID string `json:"id"`

	// Name is the symbol's identifier as it appears in source code.
	Name string `json:"name"`

	// Kind indicates what type of symbol this is.
	Kind SymbolKind `json:"kind"`

	// FilePath is the path to the containing file, relative to scan root.
	FilePath string `json:"file_path"`

	// Language is the programming language of the source file ("go", "python").
	Language string `json:"language"`

	// Module is the logical grouping used for cross-module detection.
	// For Go this is the package name, for Python the module path.
	Module string `json:"module"`

	// StartLine is the 1-indexed line where the symbol definition starts.
	StartLine int `json:"start_line"`

	// EndLine is the 1-indexed line where the symbol definition ends.
	EndLine int `json:"end_line"`

	// Signature is the declaration signature, used for identity hashing.
	Signature string `json:"signature"`

	// Exported indicates whether the symbol is publicly visible.
	// Go: starts with uppercase. Python: not underscore-prefixed.
	Exported bool `json:"exported"`

	// Source is the embeddable source text of the symbol body.
	Source string `json:"-"`

	// Embedding is the fixed-length vector for this symbol. Produced
	// externally; nil until the engine attaches it.
	Embedding []float32 `json:"-"`

	// LastModifiedMilli is the containing file's mtime in Unix milliseconds.
	LastModifiedMilli int64 `json:"last_modified_milli"`
}

// SymbolID computes the stable identifier for a symbol.
//
// The hash covers file path, name, kind, and signature so that a symbol keeps
// its identity across runs as long as its declaration is unchanged.
func SymbolID(filePath, name string, kind SymbolKind, signature string) string {
	h := sha256.New()
	h.Write([]byte(filePath))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(kind.String()))
	h.Write([]byte{0})
	h.Write([]byte(signature))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// LineCount returns the number of source lines the symbol spans.
func (s *Symbol) LineCount() int {
	return s.EndLine - s.StartLine + 1
}

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks if the Symbol has valid field values.
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return ValidationError{Field: "Name", Message: "must not be empty"}
	}
	if s.FilePath == "" {
		return ValidationError{Field: "FilePath", Message: "must not be empty"}
	}
	if strings.Contains(s.FilePath, "..") {
		return ValidationError{Field: "FilePath", Message: "must not contain path traversal (..)"}
	}
	if s.StartLine < 1 {
		return ValidationError{Field: "StartLine", Message: "must be >= 1 (1-indexed)"}
	}
	if s.EndLine < s.StartLine {
		return ValidationError{Field: "EndLine", Message: "must be >= StartLine"}
	}
	if s.Language == "" {
		return ValidationError{Field: "Language", Message: "must not be empty"}
	}
	return nil
}

// ParseResult contains the output of parsing a single source file.
//
// The parse is error-tolerant: syntactically invalid files may still yield
// partial results, with problems reported in Errors rather than failing the
// whole file.
type ParseResult struct {
	// FilePath is the path to the parsed file, relative to scan root.
	FilePath string `json:"file_path"`

	// Language is the detected or specified language of the file.
	Language string `json:"language"`

	// Module is the package/module name declared in or derived for the file.
	Module string `json:"module"`

	// Symbols contains all symbols extracted from the file, in source order.
	Symbols []*Symbol `json:"symbols"`

	// TotalLines is the number of lines in the file, for aggregate metrics.
	TotalLines int `json:"total_lines"`

	// ParsedAtMilli is the Unix timestamp in milliseconds when parsing completed.
	ParsedAtMilli int64 `json:"parsed_at_milli"`

	// Errors contains non-fatal parse errors encountered.
	Errors []string `json:"errors,omitempty"`

	// Hash is the SHA256 hash of the file content at parse time.
	Hash string `json:"hash"`
}

// HasErrors returns true if the parse result contains any errors.
func (r *ParseResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// SetParsedAt sets the ParsedAtMilli field to the current time.
func (r *ParseResult) SetParsedAt() {
	r.ParsedAtMilli = time.Now().UnixMilli()
}

// Validate checks if the ParseResult has valid field values.
func (r *ParseResult) Validate() error {
	if r.FilePath == "" {
		return ValidationError{Field: "FilePath", Message: "must not be empty"}
	}
	if strings.Contains(r.FilePath, "..") {
		return ValidationError{Field: "FilePath", Message: "must not contain path traversal (..)"}
	}
	if r.Language == "" {
		return ValidationError{Field: "Language", Message: "must not be empty"}
	}
	for i, sym := range r.Symbols {
		if err := sym.Validate(); err != nil {
			return ValidationError{
				Field:   fmt.Sprintf("Symbols[%d]", i),
				Message: err.Error(),
			}
		}
	}
	return nil
}
