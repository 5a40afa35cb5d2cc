package ast

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSample = `package widgets

import "fmt"

const MaxWidgets = 64

var defaultName = "widget"

// Widget is a thing.
type Widget struct {
	Name string
}

type Renderer interface {
	Render() string
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}

func (w *Widget) Render() string {
	return fmt.Sprintf("widget:%s", w.Name)
}

func internalHelper() int {
	return 42
}
`

func TestGoParser_Parse(t *testing.T) {
	parser := NewGoParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(goSample), "widgets/widget.go")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "go", result.Language)
	assert.Equal(t, "widgets", result.Module)
	assert.False(t, result.HasErrors())
	assert.NotEmpty(t, result.Hash)

	byName := make(map[string]*Symbol)
	for _, sym := range result.Symbols {
		byName[sym.Name] = sym
	}

	t.Run("functions and methods", func(t *testing.T) {
		fn := byName["NewWidget"]
		require.NotNil(t, fn)
		assert.Equal(t, SymbolKindFunction, fn.Kind)
		assert.True(t, fn.Exported)
		assert.Contains(t, fn.Signature, "func NewWidget(name string) *Widget")
		assert.NotContains(t, fn.Signature, "return")
		assert.Contains(t, fn.Source, "return &Widget{Name: name}")

		method := byName["Render"]
		require.NotNil(t, method)
		assert.Equal(t, SymbolKindMethod, method.Kind)

		helper := byName["internalHelper"]
		require.NotNil(t, helper)
		assert.False(t, helper.Exported)
	})

	t.Run("types map to class kind", func(t *testing.T) {
		for _, name := range []string{"Widget", "Renderer"} {
			sym := byName[name]
			require.NotNil(t, sym, name)
			assert.Equal(t, SymbolKindClass, sym.Kind, name)
			assert.True(t, sym.Exported, name)
		}
	})

	t.Run("top-level values", func(t *testing.T) {
		c := byName["MaxWidgets"]
		require.NotNil(t, c)
		assert.Equal(t, SymbolKindVariable, c.Kind)

		v := byName["defaultName"]
		require.NotNil(t, v)
		assert.Equal(t, SymbolKindVariable, v.Kind)
		assert.False(t, v.Exported)
	})

	t.Run("line numbers are 1-indexed and ordered", func(t *testing.T) {
		for _, sym := range result.Symbols {
			assert.GreaterOrEqual(t, sym.StartLine, 1, sym.Name)
			assert.GreaterOrEqual(t, sym.EndLine, sym.StartLine, sym.Name)
		}
	})
}

func TestGoParser_StableIDs(t *testing.T) {
	parser := NewGoParser()
	ctx := context.Background()

	first, err := parser.Parse(ctx, []byte(goSample), "widgets/widget.go")
	require.NoError(t, err)
	second, err := parser.Parse(ctx, []byte(goSample), "widgets/widget.go")
	require.NoError(t, err)

	require.Equal(t, len(first.Symbols), len(second.Symbols))
	for i := range first.Symbols {
		assert.Equal(t, first.Symbols[i].ID, second.Symbols[i].ID)
	}

	// Same declaration in a different file must get a different ID.
	other, err := parser.Parse(ctx, []byte(goSample), "other/widget.go")
	require.NoError(t, err)
	assert.NotEqual(t, first.Symbols[0].ID, other.Symbols[0].ID)
}

func TestGoParser_InputValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects oversized input", func(t *testing.T) {
		parser := NewGoParser(WithGoMaxFileSize(16))
		_, err := parser.Parse(ctx, []byte(goSample), "big.go")
		require.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("rejects invalid utf8", func(t *testing.T) {
		parser := NewGoParser()
		_, err := parser.Parse(ctx, []byte{0xff, 0xfe, 0xfd}, "bad.go")
		require.ErrorIs(t, err, ErrInvalidContent)
	})

	t.Run("honors canceled context", func(t *testing.T) {
		parser := NewGoParser()
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := parser.Parse(canceled, []byte(goSample), "x.go")
		require.Error(t, err)
	})
}

func TestGoParser_SyntaxErrorsArePartial(t *testing.T) {
	parser := NewGoParser()

	broken := "package broken\n\nfunc Good() int { return 1 }\n\nfunc Bad( {\n"
	result, err := parser.Parse(context.Background(), []byte(broken), "broken.go")
	require.NoError(t, err)
	assert.True(t, result.HasErrors())

	var names []string
	for _, sym := range result.Symbols {
		names = append(names, sym.Name)
	}
	assert.Contains(t, strings.Join(names, ","), "Good")
}

func TestParserRegistry(t *testing.T) {
	registry := DefaultRegistry()

	t.Run("lookup by language", func(t *testing.T) {
		p, ok := registry.GetByLanguage("go")
		require.True(t, ok)
		assert.Equal(t, "go", p.Language())

		_, ok = registry.GetByLanguage("rust")
		assert.False(t, ok)
	})

	t.Run("lookup by extension", func(t *testing.T) {
		p, ok := registry.GetByExtension(".py")
		require.True(t, ok)
		assert.Equal(t, "python", p.Language())

		_, ok = registry.GetByExtension(".js")
		assert.False(t, ok)
	})
}
