package contrib

import (
	"fmt"
	"io"

	"github.com/go-lynx/emuplug"
	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/plugins"
)

func installMem(out io.Writer) emuplug.InstallFunc {
	return func(r *emuplug.Registry, id plugins.ID, _ *plugins.Info, list []string) error {
		a, err := parseArgs(list)
		if err != nil {
			return err
		}
		if err := a.check("rw", "inline"); err != nil {
			return err
		}
		rw := dyncb.ReadWrite
		if s, ok := a["rw"]; ok {
			if rw, err = dyncb.ParseRW(s); err != nil {
				return err
			}
		}
		inline, err := a.bool("inline", true)
		if err != nil {
			return err
		}

		sb := r.NewScoreboard(16)
		reads, writes := sb.MustU64(0), sb.MustU64(8)
		count := func(vcpu int, info dyncb.MemInfo, _ uint64, _ any) {
			if info.IsStore() {
				writes.Add(vcpu, 1)
			} else {
				reads.Add(vcpu, 1)
			}
		}
		tbTrans := func(id plugins.ID, tb *dyncb.TB) {
			for i := 0; i < tb.NumInsns(); i++ {
				in := tb.Insn(i)
				var errs []error
				switch {
				case !inline:
					errs = append(errs, in.RegisterMemCallback(count, dyncb.NoRegs, rw, nil))
				default:
					if rw.Matches(dyncb.Read) {
						errs = append(errs, in.RegisterMemInline(dyncb.Read, dyncb.AddU64, reads, 1))
					}
					if rw.Matches(dyncb.Write) {
						errs = append(errs, in.RegisterMemInline(dyncb.Write, dyncb.AddU64, writes, 1))
					}
				}
				for _, err := range errs {
					if err != nil {
						log.Warnw("msg", "instrumenting memory access failed", "plugin", id, "insn", in.String(), "err", err)
					}
				}
			}
		}
		if err := r.RegisterTBTrans(id, tbTrans); err != nil {
			return err
		}
		return r.RegisterAtExit(id, func(id plugins.ID, _ any) {
			fmt.Fprintf(out, "mem %s: reads %d writes %d (%s)\n", id, reads.Sum(), writes.Sum(), rw)
			perVCPU(out, "mem", id, r.NumVCPUs(), sb, func(vcpu int) string {
				return fmt.Sprintf("reads %d writes %d", reads.Get(vcpu), writes.Get(vcpu))
			})
			r.FreeScoreboard(sb)
		}, nil)
	}
}
