// Package compiler provides the compile pipeline: source units lower to IR
// on a worker pool, results flow onto the event bus, and the shared AST
// caches keep unchanged units free.
package compiler

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumora-labs/lumora-core/coreengine/cache"
	"github.com/lumora-labs/lumora-core/coreengine/dart"
	"github.com/lumora-labs/lumora-core/coreengine/ir"
	"github.com/lumora-labs/lumora-core/coreengine/jsx"
	"github.com/lumora-labs/lumora-core/coreengine/observability"
	"github.com/lumora-labs/lumora-core/livebus"
)

// Logger is the structured logger interface of this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SourceUnit is one input to the pipeline.
type SourceUnit struct {
	Path    string
	Content []byte
}

// Result is the outcome of one compilation.
type Result struct {
	Path    string
	Dialect ir.Dialect
	Doc     *ir.IR
	Err     error
	Cached  bool
}

// Options bound the pipeline.
type Options struct {
	// Workers sizes the worker pool; zero means the host core count.
	Workers int
	// CacheMaxEntries / CacheTTL bound the shared AST caches; zero means
	// the defaults.
	CacheMaxEntries int
	CacheTTL        time.Duration
	// DisableCache turns every cache into a pass-through. Outputs must be
	// identical either way.
	DisableCache bool
}

// Pipeline compiles source units in parallel and publishes the results on
// the bus. Each worker owns its own front-end instances; the AST caches are
// shared per dialect.
type Pipeline struct {
	opts   Options
	bus    *livebus.Bus
	logger Logger
	tracer trace.Tracer

	jsxCache  *cache.ASTCache
	dartCache *cache.ASTCache

	jobs chan job
	wg   sync.WaitGroup
	stop chan struct{}
}

type job struct {
	ctx       context.Context
	unit      SourceUnit
	immediate bool
	result    chan Result
}

// New creates a pipeline. bus may be nil when no fan-out is wanted.
func New(opts Options, bus *livebus.Bus, logger Logger) *Pipeline {
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	p := &Pipeline{
		opts:      opts,
		bus:       bus,
		logger:    logger,
		tracer:    otel.Tracer("lumora-core/compiler"),
		jsxCache:  cache.NewASTCache(ir.DialectJSX, opts.CacheMaxEntries, opts.CacheTTL),
		dartCache: cache.NewASTCache(ir.DialectDart, opts.CacheMaxEntries, opts.CacheTTL),
		jobs:      make(chan job),
		stop:      make(chan struct{}),
	}
	if opts.DisableCache {
		p.jsxCache.Disable()
		p.dartCache.Disable()
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	logger.Info("pipeline_started", "workers", opts.Workers, "cache_disabled", opts.DisableCache)
	return p
}

// Bus returns the event bus the pipeline publishes on; nil when fan-out is
// disabled.
func (p *Pipeline) Bus() *livebus.Bus { return p.bus }

// Close drains the workers. Pending jobs finish; their results are still
// delivered.
func (p *Pipeline) Close() {
	close(p.stop)
	p.wg.Wait()
}

// worker owns one front-end instance per dialect; their fragment caches are
// instance-local and cleared on disposal.
func (p *Pipeline) worker() {
	defer p.wg.Done()
	jsxFE := jsx.NewFrontend(p.logger)
	dartFE := dart.NewFrontend(p.logger)
	defer jsxFE.Dispose()
	defer dartFE.Dispose()

	for {
		select {
		case <-p.stop:
			return
		case j := <-p.jobs:
			j.result <- p.compile(j.ctx, jsxFE, dartFE, j.unit, j.immediate)
		}
	}
}

// DialectFor selects the dialect by file extension.
func DialectFor(p string) (ir.Dialect, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".tsx", ".jsx", ".ts":
		return ir.DialectJSX, true
	case ".dart":
		return ir.DialectDart, true
	}
	return "", false
}

// Compile lowers a batch of source units in parallel, preserving input
// order in the result slice. A cancelled context stops dispatching; jobs
// already running complete and their partial results are never cached.
func (p *Pipeline) Compile(ctx context.Context, units []SourceUnit) []Result {
	results := make([]Result, len(units))
	// Buffered to the batch size so a busy worker never blocks handing a
	// result back while dispatch is still in progress.
	resultCh := make(chan Result, len(units))
	index := make(map[string]int, len(units))

	dispatched := 0
	for i, unit := range units {
		if ctx.Err() != nil {
			results[i] = Result{Path: unit.Path, Err: ctx.Err()}
			continue
		}
		index[unit.Path] = i
		select {
		case p.jobs <- job{ctx: ctx, unit: unit, result: resultCh}:
			dispatched++
		case <-ctx.Done():
			results[i] = Result{Path: unit.Path, Err: ctx.Err()}
		}
	}
	for ; dispatched > 0; dispatched-- {
		r := <-resultCh
		results[index[r.Path]] = r
	}
	return results
}

// CompileOne lowers a single unit, bypassing batch dispatch.
func (p *Pipeline) CompileOne(ctx context.Context, unit SourceUnit, immediate bool) Result {
	resultCh := make(chan Result, 1)
	select {
	case p.jobs <- job{ctx: ctx, unit: unit, immediate: immediate, result: resultCh}:
		return <-resultCh
	case <-ctx.Done():
		return Result{Path: unit.Path, Err: ctx.Err()}
	}
}

func (p *Pipeline) compile(ctx context.Context, jsxFE *jsx.Frontend, dartFE *dart.Frontend, unit SourceUnit, immediate bool) Result {
	dialect, ok := DialectFor(unit.Path)
	if !ok {
		return Result{Path: unit.Path, Err: fmt.Errorf("no dialect for %s", unit.Path)}
	}

	ctx, span := p.tracer.Start(ctx, "compile",
		trace.WithAttributes(
			attribute.String("source.path", unit.Path),
			attribute.String("source.dialect", string(dialect)),
		),
	)
	defer span.End()

	astCache := p.jsxCache
	if dialect == ir.DialectDart {
		astCache = p.dartCache
	}

	key := cache.KeyFor(unit.Content)
	if doc, hit := astCache.Get(key); hit {
		observability.RecordCompile(string(dialect), "cached", 0)
		p.publish(ctx, unit.Path, dialect, doc, true, immediate)
		return Result{Path: unit.Path, Dialect: dialect, Doc: doc, Cached: true}
	}

	start := time.Now()
	var doc *ir.IR
	var err error
	switch dialect {
	case ir.DialectJSX:
		doc, err = jsxFE.Lower(unit.Path, unit.Content)
	case ir.DialectDart:
		doc, err = dartFE.Lower(unit.Path, unit.Content)
	}
	durationMS := int(time.Since(start).Milliseconds())

	if err != nil {
		span.RecordError(err)
		observability.RecordCompile(string(dialect), "error", durationMS)
		p.logger.Error("compile_failed",
			"path", unit.Path,
			"dialect", string(dialect),
			"error", err.Error(),
		)
		if p.bus != nil {
			_ = p.bus.Publish(ctx, &livebus.CompileFailed{
				Path: unit.Path, Dialect: string(dialect), Reason: err.Error(),
			})
		}
		return Result{Path: unit.Path, Dialect: dialect, Err: err}
	}

	// Only fully produced, validated IRs enter the shared cache; a
	// cancelled or failed lowering never leaves partial results behind.
	if ctx.Err() == nil {
		astCache.Put(key, doc)
	}
	observability.RecordCompile(string(dialect), "success", durationMS)
	p.logger.Info("compile_succeeded",
		"path", unit.Path,
		"dialect", string(dialect),
		"nodes", len(doc.Nodes),
		"duration_ms", durationMS,
	)
	p.publish(ctx, unit.Path, dialect, doc, false, immediate)
	return Result{Path: unit.Path, Dialect: dialect, Doc: doc}
}

func (p *Pipeline) publish(ctx context.Context, path string, dialect ir.Dialect, doc *ir.IR, cached, immediate bool) {
	if p.bus == nil {
		return
	}
	_ = p.bus.Publish(ctx, &livebus.IRCompiled{
		Path:      path,
		Dialect:   string(dialect),
		Doc:       doc,
		Cached:    cached,
		Immediate: immediate,
	})
}
