// Package jit ties the pipeline together: guest instructions are
// translated to IR, allocated, generated into host code and kept in a
// translation cache.
package jit

import (
	"context"

	"golang.org/x/sync/errgroup"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/sarchlab/m2dbt/cache"
	"github.com/sarchlab/m2dbt/codegen"
	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
	"github.com/sarchlab/m2dbt/translate"
)

// RegisterAllocator replaces every virtual operand of a function with a
// host register or spill slot.
type RegisterAllocator interface {
	Allocate(fn *ir.Function) (codegen.AllocationResult, error)
}

// Unit is one guest code range to compile.
type Unit struct {
	Address      uint64
	Instructions []*insts.Instruction
}

// Result is the outcome of compiling one Unit.
type Result struct {
	Address uint64
	Func    *codegen.Func
	Err     error
}

// Compiler runs the translation pipeline. It is safe for concurrent use
// as long as the allocator is.
type Compiler struct {
	config     *Config
	translator *translate.Translator
	allocator  RegisterAllocator
	cache      *cache.TranslationCache
	genOpts    []codegen.Option
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithAllocator replaces the default linear allocator.
func WithAllocator(a RegisterAllocator) Option {
	return func(c *Compiler) {
		c.allocator = a
	}
}

// WithBreakpoints places a BRK at the entry of every generated unit.
func WithBreakpoints() Option {
	return func(c *Compiler) {
		c.genOpts = append(c.genOpts, codegen.WithBreakpoint())
	}
}

// NewCompiler creates a Compiler from a validated config.
func NewCompiler(config *Config, opts ...Option) (*Compiler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tc, err := cache.New(config.CacheConfig())
	if err != nil {
		return nil, err
	}

	c := &Compiler{
		config: config.Clone(),
		translator: translate.New(
			translate.WithStepCounting(config.StepCounting),
			translate.WithMaxInstructions(config.MaxUnitInstructions),
		),
		allocator: codegen.LinearAllocator{},
		cache:     tc,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Cache returns the translation cache.
func (c *Compiler) Cache() *cache.TranslationCache {
	return c.cache
}

// Compile returns the host code for the unit at addr, generating and
// caching it on a miss.
func (c *Compiler) Compile(ctx context.Context, addr uint64, list []*insts.Instruction) (_ *codegen.Func, err error) {
	if f, ok := c.cache.Lookup(addr); ok {
		return f, nil
	}

	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile unit", "addr", addr, "insts", len(list))
	defer tr.Finish("err", &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := c.generate(addr, list)
	if err != nil {
		return nil, errors.Wrap(err, "unit %#x", addr)
	}

	evicted, ok, err := c.cache.Insert(addr, f)
	if err != nil {
		return nil, err
	}
	if ok {
		tr.Printw("evicted", "addr", evicted)
	}

	tr.Printw("compiled", "size", f.Size, "blocks", len(f.BlockOffsets))

	return f, nil
}

func (c *Compiler) generate(addr uint64, list []*insts.Instruction) (*codegen.Func, error) {
	fn, err := c.translator.Translate(addr, list)
	if err != nil {
		return nil, err
	}

	alloc, err := c.allocator.Allocate(fn)
	if err != nil {
		return nil, errors.Wrap(err, "allocate")
	}

	return codegen.Generate(fn, alloc, c.genOpts...)
}

// CompileAll compiles independent units in parallel, at most
// Config.Workers at a time. A failing unit only fails its own Result;
// the returned error is set when ctx is cancelled.
func (c *Compiler) CompileAll(ctx context.Context, units []Unit) ([]Result, error) {
	results := make([]Result, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)

	for i, u := range units {
		results[i].Address = u.Address

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return err
			}

			results[i].Func, results[i].Err = c.Compile(gctx, u.Address, u.Instructions)
			return nil
		})
	}

	err := g.Wait()

	return results, err
}
