// Package processor runs symbol extraction over many files concurrently.
//
// The processor owns the interaction between the parser pool and the memory
// monitor: it sizes batches from current pressure, backs off when throttling
// engages, degrades to sequential processing if memory sampling itself
// fails, and returns whatever it extracted when the deadline expires.
// Individual file failures never abort a run.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/halcyonlabs/dupscan/ast"
	"github.com/halcyonlabs/dupscan/memory"
)

// Processor defaults.
const (
	DefaultWorkers       = 4
	DefaultBaseBatchSize = 32

	throttleBaseDelay = 100 * time.Millisecond
	throttleMaxDelay  = 3 * time.Second
)

// FileRef identifies one file to process.
type FileRef struct {
	// Path is relative to the processor's root.
	Path string `json:"path"`

	// Language optionally pins the parser. Empty means detect by extension.
	Language string `json:"language,omitempty"`
}

// FileError records a per-file failure.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Metrics aggregates the outcome of one processing run.
type Metrics struct {
	FilesProcessed     int           `json:"files_processed"`
	FilesFailed        int           `json:"files_failed"`
	SymbolsExtracted   int           `json:"symbols_extracted"`
	TotalDuration      time.Duration `json:"total_duration"`
	ThrottleEvents     int           `json:"throttle_events"`
	Partial            bool          `json:"partial"`
	MaxObservedWorkers int           `json:"max_observed_workers"`
	Errors             []FileError   `json:"errors,omitempty"`
}

// Result holds the parse results and metrics of one run.
type Result struct {
	Results []*ast.ParseResult `json:"results"`
	Metrics Metrics            `json:"metrics"`
}

// Config holds processor settings.
type Config struct {
	// Workers is the maximum number of concurrent parses.
	Workers int `yaml:"workers" validate:"gte=0"`

	// BaseBatchSize is the batch size under normal memory pressure.
	BaseBatchSize int `yaml:"base_batch_size" validate:"gte=0"`
}

// DefaultConfig returns the default processor configuration.
func DefaultConfig() Config {
	return Config{
		Workers:       DefaultWorkers,
		BaseBatchSize: DefaultBaseBatchSize,
	}
}

// applyDefaults fills zero values with defaults.
func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.BaseBatchSize <= 0 {
		c.BaseBatchSize = DefaultBaseBatchSize
	}
}

// Processor extracts symbols from files under a root directory.
//
// Thread Safety: safe for concurrent use; each Process call is independent.
type Processor struct {
	cfg      Config
	root     string
	registry *ast.ParserRegistry
	monitor  *memory.Monitor
	logger   *slog.Logger

	// readFile and statMtime are injectable for tests.
	readFile  func(path string) ([]byte, error)
	statMtime func(path string) (int64, error)
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFileReader replaces the file reading function.
func WithFileReader(read func(path string) ([]byte, error)) Option {
	return func(p *Processor) {
		if read != nil {
			p.readFile = read
		}
	}
}

// New creates a Processor rooted at root.
func New(cfg Config, root string, registry *ast.ParserRegistry, monitor *memory.Monitor, opts ...Option) *Processor {
	cfg.applyDefaults()
	p := &Processor{
		cfg:      cfg,
		root:     root,
		registry: registry,
		monitor:  monitor,
		logger:   slog.Default().With(slog.String("component", "symbol_processor")),
		readFile: os.ReadFile,
		statMtime: func(path string) (int64, error) {
			info, err := os.Stat(path)
			if err != nil {
				return 0, err
			}
			return info.ModTime().UnixMilli(), nil
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	initMetrics()
	return p
}

// fileOutcome is the merge channel payload for one processed file.
type fileOutcome struct {
	result *ast.ParseResult
	path   string
	err    error
}

// Process extracts symbols from all files, batching by memory pressure.
//
// Description:
//
//	Files are processed in batches whose size tracks the memory monitor's
//	recommendation. Within a batch, up to Workers files parse concurrently
//	under a weighted semaphore; a single merge goroutine collects results,
//	so no parse output is shared between writers. Failures of individual
//	files are recorded in Metrics.Errors and do not stop the run.
//
// Degradation:
//   - Throttling engaged: dispatch pauses with bounded exponential backoff
//     and resumes only once a re-sample shows pressure back below the
//     critical threshold.
//   - Memory sampling fails: the run continues sequentially with
//     single-file batches using the last known pressure level.
//   - Deadline or cancellation: scheduling stops, in-flight parses drain,
//     and the partial result is returned with Metrics.Partial set.
//
// Outputs:
//   - *Result: never nil; contains everything extracted before any cutoff.
//   - error: non-nil only for invalid input, never for per-file failures.
func (p *Processor) Process(ctx context.Context, files []FileRef) (*Result, error) {
	if p.registry == nil {
		return nil, errors.New("processor has no parser registry")
	}
	start := time.Now()

	res := &Result{Results: make([]*ast.ParseResult, 0, len(files))}
	if len(files) == 0 {
		res.Metrics.TotalDuration = time.Since(start)
		return res, nil
	}

	outcomes := make(chan fileOutcome)
	var mergeWG sync.WaitGroup
	mergeWG.Add(1)
	go func() {
		defer mergeWG.Done()
		for out := range outcomes {
			if out.err != nil {
				res.Metrics.FilesFailed++
				res.Metrics.Errors = append(res.Metrics.Errors, FileError{
					Path: out.path,
					Err:  out.err.Error(),
				})
				continue
			}
			res.Metrics.FilesProcessed++
			res.Metrics.SymbolsExtracted += len(out.result.Symbols)
			res.Results = append(res.Results, out.result)
		}
	}()

	workers := int64(p.cfg.Workers)
	sem := semaphore.NewWeighted(workers)
	var inFlight atomic.Int64
	var maxWorkers atomic.Int64
	var parseWG sync.WaitGroup

	sequential := false
	throttleDelay := throttleBaseDelay

	idx := 0
scheduling:
	for idx < len(files) {
		if err := ctx.Err(); err != nil {
			res.Metrics.Partial = true
			p.logger.WarnContext(ctx, "deadline reached, returning partial results",
				slog.Int("scheduled", idx),
				slog.Int("total", len(files)))
			break
		}

		batchSize := 1
		if !sequential {
			if _, err := p.monitor.Sample(ctx); err != nil {
				sequential = true
				p.logger.WarnContext(ctx, "memory sampling failed, degrading to sequential processing",
					slog.Any("error", err))
			} else {
				batchSize = p.monitor.OptimalBatchSize(p.cfg.BaseBatchSize)
			}
		}

		if p.monitor.ShouldThrottle() {
			res.Metrics.ThrottleEvents++
			recordThrottle(ctx)
			p.logger.InfoContext(ctx, "memory throttling engaged, pausing dispatch",
				slog.Duration("delay", throttleDelay))
			select {
			case <-time.After(throttleDelay):
			case <-ctx.Done():
				res.Metrics.Partial = true
				break scheduling
			}
			throttleDelay *= 2
			if throttleDelay > throttleMaxDelay {
				throttleDelay = throttleMaxDelay
			}
			// Nothing dispatches until a fresh sample releases the latch.
			// Without a working sampler that can never happen, so the
			// degraded sequential path dispatches after the backoff.
			if !sequential {
				continue
			}
		} else {
			throttleDelay = throttleBaseDelay
		}

		end := idx + batchSize
		if end > len(files) {
			end = len(files)
		}

		for _, ref := range files[idx:end] {
			if sequential {
				p.processOne(ctx, ref, outcomes)
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				res.Metrics.Partial = true
				break scheduling
			}
			parseWG.Add(1)
			go func(ref FileRef) {
				defer parseWG.Done()
				defer sem.Release(1)

				cur := inFlight.Add(1)
				for {
					prev := maxWorkers.Load()
					if cur <= prev || maxWorkers.CompareAndSwap(prev, cur) {
						break
					}
				}
				defer inFlight.Add(-1)

				p.processOne(ctx, ref, outcomes)
			}(ref)
		}
		idx = end
	}

	parseWG.Wait()
	close(outcomes)
	mergeWG.Wait()

	res.Metrics.MaxObservedWorkers = int(maxWorkers.Load())
	if sequential && res.Metrics.MaxObservedWorkers < 1 && res.Metrics.FilesProcessed > 0 {
		res.Metrics.MaxObservedWorkers = 1
	}
	res.Metrics.TotalDuration = time.Since(start)

	p.logger.InfoContext(ctx, "processing run finished",
		slog.Int("processed", res.Metrics.FilesProcessed),
		slog.Int("failed", res.Metrics.FilesFailed),
		slog.Int("symbols", res.Metrics.SymbolsExtracted),
		slog.Bool("partial", res.Metrics.Partial),
		slog.Duration("duration", res.Metrics.TotalDuration))
	return res, nil
}

// processOne parses a single file and reports the outcome.
func (p *Processor) processOne(ctx context.Context, ref FileRef, outcomes chan<- fileOutcome) {
	result, err := p.parseFile(ctx, ref)
	outcomes <- fileOutcome{result: result, path: ref.Path, err: err}
}

// parseFile reads, parses, and stamps one file.
func (p *Processor) parseFile(ctx context.Context, ref FileRef) (*ast.ParseResult, error) {
	parser, err := p.resolveParser(ref)
	if err != nil {
		return nil, err
	}

	abs := filepath.Join(p.root, ref.Path)
	content, err := p.readFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	result, err := parser.Parse(ctx, content, filepath.ToSlash(ref.Path))
	if err != nil {
		return nil, err
	}

	if mtime, statErr := p.statMtime(abs); statErr == nil {
		for _, sym := range result.Symbols {
			sym.LastModifiedMilli = mtime
		}
	}
	return result, nil
}

// resolveParser picks the parser for a file by pinned language or extension.
func (p *Processor) resolveParser(ref FileRef) (ast.Parser, error) {
	if ref.Language != "" {
		if parser, ok := p.registry.GetByLanguage(ref.Language); ok {
			return parser, nil
		}
		return nil, fmt.Errorf("%w: %s", ast.ErrUnsupportedLanguage, ref.Language)
	}
	ext := filepath.Ext(ref.Path)
	if parser, ok := p.registry.GetByExtension(ext); ok {
		return parser, nil
	}
	return nil, fmt.Errorf("%w: extension %q", ast.ErrUnsupportedLanguage, ext)
}
