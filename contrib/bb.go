package contrib

import (
	"fmt"
	"io"

	"github.com/go-lynx/emuplug"
	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/plugins"
)

// bb element layout, one word each
const (
	bbBlocks = iota * 8
	bbSince
	bbPeriods
	bbLast
	bbSize
)

func installBB(out io.Writer) emuplug.InstallFunc {
	return func(r *emuplug.Registry, id plugins.ID, _ *plugins.Info, list []string) error {
		a, err := parseArgs(list)
		if err != nil {
			return err
		}
		if err := a.check("every"); err != nil {
			return err
		}
		every, err := a.uint("every", 0)
		if err != nil {
			return err
		}

		sb := r.NewScoreboard(bbSize)
		blocks := sb.MustU64(bbBlocks)
		since := sb.MustU64(bbSince)
		periods := sb.MustU64(bbPeriods)
		last := sb.MustU64(bbLast)

		period := func(vcpu int, _ any) {
			since.Set(vcpu, 0)
			periods.Add(vcpu, 1)
		}
		tbTrans := func(id plugins.ID, tb *dyncb.TB) {
			errs := []error{
				tb.RegisterInline(dyncb.AddU64, blocks, 1),
				tb.RegisterInline(dyncb.StoreU64, last, tb.Vaddr()),
			}
			if every > 0 {
				errs = append(errs,
					tb.RegisterInline(dyncb.AddU64, since, 1),
					tb.RegisterCondExecCallback(period, dyncb.NoRegs, dyncb.GE, since, every, nil),
				)
			}
			for _, err := range errs {
				if err != nil {
					log.Warnw("msg", "instrumenting block failed", "plugin", id, "vaddr", tb.Vaddr(), "err", err)
				}
			}
		}
		if err := r.RegisterTBTrans(id, tbTrans); err != nil {
			return err
		}
		return r.RegisterAtExit(id, func(id plugins.ID, _ any) {
			fmt.Fprintf(out, "bb %s: blocks %d", id, blocks.Sum())
			if every > 0 {
				fmt.Fprintf(out, " periods %d (every %d)", periods.Sum(), every)
			}
			fmt.Fprintln(out)
			perVCPU(out, "bb", id, r.NumVCPUs(), sb, func(vcpu int) string {
				return fmt.Sprintf("blocks %d last %#x", blocks.Get(vcpu), last.Get(vcpu))
			})
			r.FreeScoreboard(sb)
		}, nil)
	}
}
