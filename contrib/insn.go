package contrib

import (
	"fmt"
	"io"

	"github.com/go-lynx/emuplug"
	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/plugins"
	"github.com/go-lynx/emuplug/scoreboard"
)

func installInsn(out io.Writer) emuplug.InstallFunc {
	return func(r *emuplug.Registry, id plugins.ID, _ *plugins.Info, list []string) error {
		a, err := parseArgs(list)
		if err != nil {
			return err
		}
		if err := a.check("inline"); err != nil {
			return err
		}
		inline, err := a.bool("inline", true)
		if err != nil {
			return err
		}

		sb := r.NewScoreboard(8)
		count := sb.MustU64(0)
		tbTrans := func(id plugins.ID, tb *dyncb.TB) {
			for i := 0; i < tb.NumInsns(); i++ {
				in := tb.Insn(i)
				var err error
				if inline {
					err = in.RegisterInline(dyncb.AddU64, count, 1)
				} else {
					err = in.RegisterExecCallback(func(vcpu int, _ any) { count.Add(vcpu, 1) }, dyncb.NoRegs, nil)
				}
				if err != nil {
					log.Warnw("msg", "instrumenting instruction failed", "plugin", id, "insn", in.String(), "err", err)
				}
			}
		}
		if err := r.RegisterTBTrans(id, tbTrans); err != nil {
			return err
		}
		return r.RegisterAtExit(id, func(id plugins.ID, _ any) {
			fmt.Fprintf(out, "insn %s: total %d\n", id, count.Sum())
			perVCPU(out, "insn", id, r.NumVCPUs(), sb, func(vcpu int) string {
				return fmt.Sprintf("%d", count.Get(vcpu))
			})
			r.FreeScoreboard(sb)
		}, nil)
	}
}

// perVCPU writes one report line per vcpu covered by sb
func perVCPU(out io.Writer, name string, id plugins.ID, vcpus int, sb *scoreboard.Scoreboard, line func(vcpu int) string) {
	n := min(vcpus, sb.Len())
	if n < 2 {
		return
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(out, "%s %s: vcpu %d %s\n", name, id, i, line(i))
	}
}
