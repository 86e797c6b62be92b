package tcg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-lynx/emuplug"
	"github.com/go-lynx/emuplug/conf"
	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/plugins"
	"github.com/go-lynx/emuplug/scoreboard"
)

func TestGenerateIsDeterministic(t *testing.T) {
	a, b := Generate(7, 32), Generate(7, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Generate(8, 32))

	require.Len(t, a.Blocks, 32)
	for i, blk := range a.Blocks {
		require.NotEmpty(t, blk.Insns, "block %d", i)
		require.NotEmpty(t, blk.Next)
		last := blk.Insns[len(blk.Insns)-1].Mnemonic
		assert.Contains(t, []string{"b", "svc"}, last)
		assert.Equal(t, last == "svc", blk.Syscall >= 0)
		for _, n := range blk.Next {
			assert.True(t, n >= 0 && n < len(a.Blocks))
		}
		assert.Len(t, blk.Infos(), len(blk.Insns))
	}
	assert.Len(t, Generate(1, 0).Blocks, 1)
}

type counts struct {
	sb    *scoreboard.Scoreboard
	insns scoreboard.Entry
	mem   scoreboard.Entry
}

func countingModule(c *counts) emuplug.InstallFunc {
	return func(r *emuplug.Registry, id plugins.ID, _ *plugins.Info, _ []string) error {
		c.sb = r.NewScoreboard(16)
		c.insns = c.sb.MustU64(0)
		c.mem = c.sb.MustU64(8)
		return r.RegisterTBTrans(id, func(_ plugins.ID, tb *dyncb.TB) {
			for i := 0; i < tb.NumInsns(); i++ {
				in := tb.Insn(i)
				if err := in.RegisterInline(dyncb.AddU64, c.insns, 1); err != nil {
					panic(err)
				}
				if err := in.RegisterMemInline(dyncb.ReadWrite, dyncb.AddU64, c.mem, 1); err != nil {
					panic(err)
				}
			}
		})
	}
}

func setup(t *testing.T, cfg conf.Engine) (*emuplug.Registry, *Engine, *counts) {
	t.Helper()
	eng := New(Generate(cfg.Seed, cfg.Blocks), cfg)
	c := &counts{}
	loader := plugins.NewStaticLoader()
	loader.Register("count", map[string]any{
		plugins.SymbolVersion: plugins.CurrentVersion,
		plugins.SymbolInstall: countingModule(c),
	})
	r := emuplug.New(emuplug.WithLoader(loader), emuplug.WithTranslator(eng))
	t.Cleanup(func() { _ = r.Close() })
	_, err := r.Install(plugins.Descriptor{Path: "count"})
	require.NoError(t, err)
	return r, eng, c
}

func TestRunCountsEveryInstruction(t *testing.T) {
	cfg := conf.Engine{VCPUs: 4, Steps: 500, Blocks: 24, Seed: 3}
	r, eng, c := setup(t, cfg)

	require.NoError(t, eng.Run(context.Background(), r))

	s := eng.Stats()
	assert.Equal(t, uint64(cfg.VCPUs*cfg.Steps), s.Blocks)
	assert.Equal(t, s.Insns, c.insns.Sum())
	assert.Equal(t, s.Accesses, c.mem.Sum())
	assert.LessOrEqual(t, s.Translations, uint64(cfg.VCPUs*cfg.Blocks))
	assert.Zero(t, s.Discards)
	assert.Equal(t, cfg.VCPUs, r.NumVCPUs())
	assert.GreaterOrEqual(t, c.sb.Len(), cfg.VCPUs)
	for i := 0; i < cfg.VCPUs; i++ {
		assert.NotZero(t, c.insns.Get(i), "vcpu %d", i)
	}
}

func TestRunWithPeriodicFlush(t *testing.T) {
	cfg := conf.Engine{VCPUs: 3, Steps: 200, Blocks: 8, Seed: 11, FlushEvery: 50}
	r, eng, c := setup(t, cfg)

	require.NoError(t, eng.Run(context.Background(), r))

	s := eng.Stats()
	assert.Equal(t, uint64(cfg.VCPUs*cfg.Steps/cfg.FlushEvery), s.Discards)
	assert.Equal(t, s.Discards, r.Stats().Flushes)
	// counting survives retranslation
	assert.Equal(t, s.Insns, c.insns.Sum())
	assert.Greater(t, s.Translations, uint64(cfg.Blocks))
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := conf.Engine{VCPUs: 2, Steps: 1 << 30, Blocks: 4, Seed: 1}
	r, eng, _ := setup(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := eng.Run(ctx, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "vcpu")
}

func TestRunEmptyProgram(t *testing.T) {
	eng := New(&Program{}, conf.Engine{})
	r := emuplug.New(emuplug.WithTranslator(eng))
	defer r.Close()
	assert.Error(t, eng.Run(context.Background(), r))
}
