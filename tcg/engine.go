package tcg

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/go-lynx/emuplug"
	"github.com/go-lynx/emuplug/conf"
	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/log"
)

// Engine runs a Program on a number of vcpus. It implements
// emuplug.Translator: its code cache is dropped on every flush.
type Engine struct {
	prog *Program
	cfg  conf.Engine

	mu    sync.Mutex
	cache map[uint64]dyncb.RegionID

	blocks       atomic.Uint64
	insns        atomic.Uint64
	accesses     atomic.Uint64
	translations atomic.Uint64
	discards     atomic.Uint64
}

var _ emuplug.Translator = (*Engine)(nil)

// New creates an engine for prog
func New(prog *Program, cfg conf.Engine) *Engine {
	if cfg.VCPUs < 1 {
		cfg.VCPUs = 1
	}
	return &Engine{
		prog:  prog,
		cfg:   cfg,
		cache: make(map[uint64]dyncb.RegionID),
	}
}

// Discard drops every cached translation
func (e *Engine) Discard() {
	e.mu.Lock()
	clear(e.cache)
	e.mu.Unlock()
	e.discards.Add(1)
}

// Run executes cfg.Steps blocks on each of cfg.VCPUs vcpus, one goroutine
// per vcpu. It returns when every vcpu finished or ctx is done.
func (e *Engine) Run(ctx context.Context, r *emuplug.Registry) error {
	if len(e.prog.Blocks) == 0 {
		return errors.New("tcg: empty program")
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.VCPUs; i++ {
		index := i
		g.Go(func() error {
			return errors.Wrapf(e.runVCPU(ctx, r, index), "vcpu %d", index)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Infow("msg", "engine finished", "vcpus", e.cfg.VCPUs, "blocks", e.blocks.Load(),
		"insns", e.insns.Load(), "translations", e.translations.Load())
	return nil
}

func (e *Engine) runVCPU(ctx context.Context, r *emuplug.Registry, index int) error {
	v := r.VCPUInit(index)
	defer v.Exit()

	rng := rand.New(rand.NewSource(e.cfg.Seed + int64(index)))
	pc := index % len(e.prog.Blocks)
	for step := 0; step < e.cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		blk := &e.prog.Blocks[pc]

		v.ExecStart()
		region := e.lookup(r, blk)
		e.exec(v, region, blk)
		v.ExecEnd()

		if blk.Syscall >= 0 {
			var args [8]uint64
			for i := range args {
				args[i] = rng.Uint64()
			}
			v.Syscall(blk.Syscall, args)
			v.SyscallRet(blk.Syscall, 0)
		}
		if rng.Intn(64) == 0 {
			v.Idle()
			v.Resume()
		}
		if e.cfg.FlushEvery > 0 && (step+1)%e.cfg.FlushEvery == 0 {
			r.FlushCodeCache()
		}
		pc = blk.Next[rng.Intn(len(blk.Next))]
	}
	return nil
}

// lookup returns the cached region of blk, translating it on a miss.
// Called inside an execution section.
func (e *Engine) lookup(r *emuplug.Registry, blk *Block) *dyncb.Region {
	e.mu.Lock()
	id, ok := e.cache[blk.Vaddr]
	e.mu.Unlock()
	if ok {
		if region, ok := r.LookupRegion(id); ok {
			return region
		}
	}

	region := r.Translate(blk.Vaddr, blk.Infos())
	e.translations.Add(1)
	e.mu.Lock()
	e.cache[blk.Vaddr] = region.ID()
	e.mu.Unlock()
	return region
}

func (e *Engine) exec(v *emuplug.VCPU, region *dyncb.Region, blk *Block) {
	v.ExecBlock(region)
	for i := range blk.Insns {
		v.ExecInsn(region, i)
		for _, a := range blk.Insns[i].Access {
			v.ExecMem(region, i, a.Info, a.Vaddr)
		}
		e.accesses.Add(uint64(len(blk.Insns[i].Access)))
	}
	e.blocks.Add(1)
	e.insns.Add(uint64(len(blk.Insns)))
}

// Stats counts what the engine executed
type Stats struct {
	Blocks       uint64
	Insns        uint64
	Accesses     uint64
	Translations uint64
	Discards     uint64
}

// Stats returns the engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		Blocks:       e.blocks.Load(),
		Insns:        e.insns.Load(),
		Accesses:     e.accesses.Load(),
		Translations: e.translations.Load(),
		Discards:     e.discards.Load(),
	}
}
