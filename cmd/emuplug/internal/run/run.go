package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/go-lynx/emuplug"
	"github.com/go-lynx/emuplug/conf"
	"github.com/go-lynx/emuplug/contrib"
	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/metrics"
	"github.com/go-lynx/emuplug/plugins"
	"github.com/go-lynx/emuplug/tcg"
)

var (
	configPath  string
	vcpus       int
	steps       int
	blocks      int
	seed        int64
	flushEvery  int
	pluginDescs []string
	logLevel    string
	dumpMetrics bool
)

// CmdRun represents the run command
var CmdRun = &cobra.Command{
	Use:   "run",
	Short: "Run a synthetic program with instrumentation modules",
	Long: `The run command generates a synthetic guest program, installs the requested
modules and executes the program on one goroutine per vcpu. Modules print
their reports when the program exits.`,
	Example: `  # Count instructions on four vcpus
  emuplug run --vcpus 4 --plugin builtin:insn

  # Count stores only, flushing the code cache every 100 blocks
  emuplug run --plugin builtin:mem,rw=w --flush-every 100

  # Take everything from a configuration file
  emuplug run --config ./emuplug.toml`,
	RunE: runCommand,
}

func init() {
	CmdRun.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file (yaml, json or toml)")
	CmdRun.Flags().IntVar(&vcpus, "vcpus", 0, "Number of vcpus (overrides engine.vcpus)")
	CmdRun.Flags().IntVar(&steps, "steps", 0, "Blocks executed per vcpu (overrides engine.steps)")
	CmdRun.Flags().IntVar(&blocks, "blocks", 0, "Blocks in the generated program (overrides engine.blocks)")
	CmdRun.Flags().Int64Var(&seed, "seed", 0, "Program generator seed (overrides engine.seed)")
	CmdRun.Flags().IntVar(&flushEvery, "flush-every", -1, "Flush the code cache every n blocks per vcpu, 0 never")
	CmdRun.Flags().StringArrayVarP(&pluginDescs, "plugin", "p", nil, "Module to install as path[,arg=value...]; repeatable")
	CmdRun.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error")
	CmdRun.Flags().BoolVar(&dumpMetrics, "metrics", false, "Print registry metrics after the run")
}

func loadConfig(cmd *cobra.Command) (*conf.Bootstrap, error) {
	b := conf.Default()
	if configPath != "" {
		var err error
		if b, err = conf.Load(configPath); err != nil {
			return nil, err
		}
	}
	e := &b.Emuplug.Engine
	flags := cmd.Flags()
	if flags.Changed("vcpus") {
		e.VCPUs = vcpus
		if b.Emuplug.Registry.SMPVCPUs < vcpus {
			b.Emuplug.Registry.SMPVCPUs = vcpus
		}
		if b.Emuplug.Registry.MaxVCPUs < vcpus {
			b.Emuplug.Registry.MaxVCPUs = vcpus
		}
	}
	if flags.Changed("steps") {
		e.Steps = steps
	}
	if flags.Changed("blocks") {
		e.Blocks = blocks
	}
	if flags.Changed("seed") {
		e.Seed = seed
	}
	if flags.Changed("flush-every") {
		e.FlushEvery = flushEvery
	}
	if logLevel != "" {
		b.Emuplug.Log.Level = logLevel
	}
	b.Emuplug.Plugins = append(b.Emuplug.Plugins, pluginDescs...)
	return b, nil
}

func runCommand(cmd *cobra.Command, _ []string) error {
	b, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	res := conf.Validate(b)
	for _, w := range res.Warnings {
		color.Yellow("warning: %s\n", w)
	}
	if err := res.Err(); err != nil {
		return err
	}
	cfg := b.Emuplug

	out := cmd.OutOrStdout()
	eng := tcg.New(tcg.Generate(cfg.Engine.Seed, cfg.Engine.Blocks), cfg.Engine)
	emuplug.ConfigureLockDetection(&cfg.Registry)
	loader := plugins.NewStaticLoader()
	contrib.Register(loader, out)
	r := emuplug.New(
		emuplug.WithLoader(loader),
		emuplug.WithTranslator(eng),
		emuplug.WithConfig(&cfg.Registry),
	)
	if err := log.Init(&cfg.Log, "registry.id", r.ID()); err != nil {
		return err
	}
	defer log.Sync()

	c := metrics.NewCollector(r)
	if err := metrics.RegisterCollector(c); err != nil {
		return errors.Wrap(err, "register metrics")
	}
	defer metrics.UnregisterCollector(c)

	ids, err := r.InstallAll(cfg.Plugins)
	if err != nil {
		_ = r.Close()
		return err
	}
	fmt.Fprintf(out, "%s %s\n", color.CyanString("Installed"), describe(r, ids))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	runErr := eng.Run(ctx, r)
	elapsed := time.Since(start)
	r.AtExit()

	s := eng.Stats()
	fmt.Fprintf(out, "%s %d blocks, %d insns, %d accesses on %d vcpu(s) in %s (%d translations, %d flushes)\n",
		color.GreenString("Executed"), s.Blocks, s.Insns, s.Accesses, cfg.Engine.VCPUs,
		elapsed.Round(time.Millisecond), s.Translations, s.Discards)

	if dumpMetrics {
		if err := writeMetrics(out); err != nil {
			log.Warnf("writing metrics failed: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		return err
	}
	if runErr != nil {
		color.Red("run interrupted: %v\n", runErr)
		return runErr
	}
	return nil
}

func describe(r *emuplug.Registry, ids []plugins.ID) string {
	if len(ids) == 0 {
		return "no modules"
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		c, err := r.Lookup(id)
		if err != nil {
			continue
		}
		names = append(names, fmt.Sprintf("%s %s", id, c.Descriptor()))
	}
	return strings.Join(names, ", ")
}

func writeMetrics(w io.Writer) error {
	mfs, err := metrics.Gatherer().Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
