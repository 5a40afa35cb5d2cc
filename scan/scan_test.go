package scan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/dupscan/ast"
	"github.com/halcyonlabs/dupscan/config"
	"github.com/halcyonlabs/dupscan/detect"
	"github.com/halcyonlabs/dupscan/embed"
	"github.com/halcyonlabs/dupscan/memory"
	"github.com/halcyonlabs/dupscan/processor"
	"github.com/halcyonlabs/dupscan/routing"
	"github.com/halcyonlabs/dupscan/vectorstore"
)

const duplicatedSource = `package util

func mergeCounts(dst, src map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for key, value := range src {
		dst[key] += value
	}
	for key, value := range dst {
		if value == 0 {
			delete(dst, key)
		}
		_ = key
	}
	return dst
}
`

const unrelatedSource = `package web

type requestLog struct {
	method string
	path   string
	status int
}

func (l requestLog) isError() bool {
	return l.status >= 500
}
`

// writeTree lays out a small project with one duplicated function.
func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"alpha/util.go": duplicatedSource,
		"beta/util.go":  duplicatedSource,
		"web/log.go":    unrelatedSource,
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// newTestEngine wires a fully local pipeline over the given root.
func newTestEngine(t *testing.T, root string, opts ...Option) (*Engine, *routing.WriterSink, *bytes.Buffer) {
	t.Helper()

	cfg := config.DefaultConfig()
	monitor, err := memory.NewMonitor(cfg.Memory,
		memory.WithSampler(func() (float64, error) { return 40, nil }))
	require.NoError(t, err)

	proc := processor.New(cfg.Processor, root, ast.DefaultRegistry(), monitor)
	store := vectorstore.NewCachedStore(vectorstore.NewMemoryIndex(), cfg.Store.CacheTTL())

	var buf bytes.Buffer
	sink := routing.NewWriterSink(&buf)
	router := routing.NewRouter(sink, sink)

	engine := NewEngine(cfg, proc, embed.NewHashingEmbedder(0), store, router, opts...)
	return engine, sink, &buf
}

func TestDiscoverFiles(t *testing.T) {
	root := writeTree(t)

	// Noise that must be skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor", "dep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "vendor", "dep", "dep.go"), []byte("package dep\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha", "util_test.go"), []byte("package util\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# x\n"), 0o644))

	files, err := DiscoverFiles(root)
	require.NoError(t, err)

	paths := make(map[string]string)
	for _, f := range files {
		paths[f.Path] = f.Language
	}
	assert.Len(t, paths, 3)
	assert.Equal(t, "go", paths["alpha/util.go"])
	assert.Equal(t, "go", paths["beta/util.go"])
	assert.Equal(t, "go", paths["web/log.go"])
}

func TestEngine_Scan_FindsDuplicates(t *testing.T) {
	root := writeTree(t)
	engine, _, _ := newTestEngine(t, root)

	files, err := DiscoverFiles(root)
	require.NoError(t, err)

	report, err := engine.Scan(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Processing.FilesProcessed)
	assert.NotEmpty(t, report.RunID)
	assert.Greater(t, report.SymbolCount, 0)
	assert.Zero(t, report.QueriesFailed)

	require.NotEmpty(t, report.Findings, "identical functions across packages must be found")
	found := report.Findings[0]
	assert.Equal(t, "mergeCounts", found.SymbolA)
	assert.Equal(t, "mergeCounts", found.SymbolB)
	assert.InDelta(t, 1.0, found.Similarity, 1e-6)
	assert.Equal(t, "exact", found.Tier)
	assert.Equal(t, SeverityCritical, found.Severity)

	// Unknown coverage is read conservatively, so even an exact duplicate
	// lands in human review rather than auto-fix.
	assert.Equal(t, 0, report.AutoFixCount)
	assert.GreaterOrEqual(t, report.HumanReviewCount, 1)
}

// fixedFactors returns the same factors for every candidate.
type fixedFactors struct {
	factors detect.RiskFactors
}

func (f fixedFactors) Factors(*detect.Candidate) detect.RiskFactors { return f.factors }

func TestEngine_Scan_AutoFixWithTrustedSignals(t *testing.T) {
	root := writeTree(t)
	engine, _, buf := newTestEngine(t, root, WithFactorSource(fixedFactors{detect.RiskFactors{
		DependencyCount:  1,
		TestCoverage:     85,
		LastModifiedDays: 90,
		FilesAffected:    2,
	}}))

	files, err := DiscoverFiles(root)
	require.NoError(t, err)

	report, err := engine.Scan(context.Background(), files)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, report.AutoFixCount, 1)
	assert.Contains(t, buf.String(), "orchestration_plan")
	assert.Zero(t, report.RoutingFailures)
}

func TestEngine_Scan_EmptyRoot(t *testing.T) {
	engine, _, _ := newTestEngine(t, t.TempDir())

	report, err := engine.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.SymbolCount)
	assert.Empty(t, report.Findings)
}

func TestReport_Summary(t *testing.T) {
	clean := &Report{
		RunID:      "run-1",
		Processing: processor.Metrics{FilesProcessed: 10},
	}
	assert.Contains(t, clean.Summary(), "results are complete")

	failed := &Report{
		RunID:         "run-2",
		Processing:    processor.Metrics{FilesProcessed: 8, FilesFailed: 2},
		QueriesFailed: 3,
	}
	summary := failed.Summary()
	assert.Contains(t, summary, "2 files failed extraction")
	assert.Contains(t, summary, "3 similarity queries failed")
	assert.Contains(t, summary, "not conclusive")
	assert.True(t, failed.HasFailures())
}
