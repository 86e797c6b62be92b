// Package emuplug is the instrumentation plugin registry of a CPU emulator.
//
// Modules are loaded through a plugins.Loader and installed into a Registry.
// From their install function, and later from their callbacks, they subscribe
// to emulator events and attach callbacks and inline counter updates to the
// blocks, instructions and memory accesses of translated code.
//
// # Architecture
//
// The registry is organized around the following concepts:
//
//   - Registry: module contexts, subscriber lists, region arena and scoreboards
//   - Context: one installed module, with its lifecycle status (package plugins)
//   - Event Dispatch: per-kind subscriber lists with a non-empty bitmask (package events)
//   - Dynamic Callbacks: per-point arrays built at translation time (package dyncb)
//   - Scoreboards: per-vcpu counter storage written by inline ops (package scoreboard)
//
// # File Organization
//
// The root package contains the following files:
//
//   - app.go: Registry structure, options, lookup and stats
//   - lifecycle.go: install, uninstall, reset and code-cache flush
//   - ops.go: event subscription
//   - topology.go: vcpu lifecycle and scoreboard allocation
//   - translate.go: translation and execution of instrumented regions
//   - thread.go: per-goroutine callback frames and safe points
//   - prepare.go: installing modules from descriptors
//   - recovery.go: module symbol resolution and install panic recovery
//
// # Quick Start
//
//	loader := plugins.NewStaticLoader()
//	contrib.Register(loader, os.Stdout)
//
//	r := emuplug.New(emuplug.WithLoader(loader))
//	defer r.Close()
//	if _, err := r.InstallAll([]string{"builtin:insn", "builtin:mem,rw=w"}); err != nil {
//	    log.Fatalf("install: %v", err)
//	}
//
//	v := r.VCPUInit(0)
//	v.ExecStart()
//	region := r.Translate(0x1000, insns)
//	v.ExecBlock(region)
//	v.ExecEnd()
//	v.Exit()
//	r.AtExit()
//
// # Concurrency
//
// Event dispatch and execution of translated code take no lock. Every other
// operation is serialized by one re-entrant lock, so a module may call back
// into the registry from its install function or from VCPUForEach.
//
// A module that uninstalls or resets itself from one of its own callbacks has
// the request applied when that callback returns. Discarding translated code
// waits until no vcpu is inside an execution section; requested from inside
// one, it runs when the section ends.
package emuplug
