package log

import (
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
)

// stackPolicy decides which records carry a stack and how deep it goes
type stackPolicy struct {
	enabled   bool
	minLevel  log.Level
	skip      int
	maxFrames int
	// frames whose function starts with one of these are left out
	ignore []string
}

// frames of the logging pipeline itself
var pipelinePackages = []string{
	"github.com/go-kratos/kratos",
	"github.com/rs/zerolog",
	"github.com/go-lynx/emuplug/log",
}

var policy atomic.Pointer[stackPolicy]

func init() {
	setStackConfig(true, log.LevelError, 6, 32, nil)
}

func setStackConfig(enabled bool, minLevel log.Level, skip, maxFrames int, ignore []string) {
	p := &stackPolicy{
		enabled:   enabled,
		minLevel:  minLevel,
		skip:      max(skip, 0),
		maxFrames: maxFrames,
		ignore:    append(append([]string(nil), pipelinePackages...), ignore...),
	}
	if p.maxFrames <= 0 {
		p.maxFrames = 16
	}
	policy.Store(p)
}

// stackFor returns the stack to attach to a record at level, or ""
func stackFor(level log.Level) string {
	p := policy.Load()
	if p == nil || !p.enabled || level < p.minLevel {
		return ""
	}
	return p.capture()
}

// capture renders one "function file:line" line per frame
func (p *stackPolicy) capture() string {
	pcs := make([]uintptr, p.maxFrames)
	n := runtime.Callers(p.skip, pcs)
	if n == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for more := true; more; {
		var fr runtime.Frame
		fr, more = frames.Next()
		if fr.Function == "" && fr.File == "" {
			continue
		}
		if p.ignored(fr.Function) || p.ignored(fr.File) {
			continue
		}
		b.WriteString(fr.Function)
		b.WriteByte(' ')
		b.WriteString(fr.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(fr.Line))
		b.WriteByte('\n')
	}
	return b.String()
}

func (p *stackPolicy) ignored(s string) bool {
	for _, prefix := range p.ignore {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
