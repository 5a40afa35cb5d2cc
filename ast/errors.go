package ast

import "errors"

// Sentinel errors for the ast package.
var (
	// ErrInvalidContent indicates the input is not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")

	// ErrFileTooLarge is returned when input exceeds the maximum file size.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrUnsupportedLanguage indicates no parser is registered for the file.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)
