package conf

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ValidationIssue represents a single validation message.
type ValidationIssue struct {
	Field   string
	Value   any
	Message string
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s (got %v)", i.Field, i.Message, i.Value)
}

// ValidationResult aggregates validation errors and warnings.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationIssue
	Warnings []ValidationIssue
	mu       sync.Mutex
}

// AddError records a validation error and marks the result invalid.
func (r *ValidationResult) AddError(field string, value any, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, ValidationIssue{Field: field, Value: value, Message: message})
	r.Valid = false
}

// AddWarning records a validation warning but does not change validity.
func (r *ValidationResult) AddWarning(field string, value any, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, ValidationIssue{Field: field, Value: value, Message: message})
}

// Err folds the errors into a single error, nil when valid
func (r *ValidationResult) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.String()
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// validateRange returns a check ensuring a value is in [min, max].
func validateRange(min, max int64) func(v int64) error {
	return func(v int64) error {
		if v < min || v > max {
			return fmt.Errorf("must be in range [%d,%d]", min, max)
		}
		return nil
	}
}

// validateDuration returns a check ensuring a duration is in [min, max].
func validateDuration(min, max time.Duration) func(d time.Duration) error {
	return func(d time.Duration) error {
		if d < min || d > max {
			return fmt.Errorf("duration must be in range [%s,%s]", min, max)
		}
		return nil
	}
}

var levels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}

// Validate checks a configuration tree
func Validate(b *Bootstrap) *ValidationResult {
	res := &ValidationResult{Valid: true}
	if b == nil {
		res.AddError(RootKey, nil, "config is nil")
		return res
	}
	e := &b.Emuplug
	vcpus := validateRange(1, 4096)

	r := &e.Registry
	if r.TargetName == "" {
		res.AddError("registry.target_name", r.TargetName, "field is required")
	}
	if err := vcpus(int64(r.SMPVCPUs)); err != nil {
		res.AddError("registry.smp_vcpus", r.SMPVCPUs, err.Error())
	}
	if err := vcpus(int64(r.MaxVCPUs)); err != nil {
		res.AddError("registry.max_vcpus", r.MaxVCPUs, err.Error())
	}
	if r.MaxVCPUs < r.SMPVCPUs {
		res.AddError("registry.max_vcpus", r.MaxVCPUs, "must not be below smp_vcpus")
	}
	if !r.SystemEmulation && r.SMPVCPUs > 1 {
		res.AddWarning("registry.smp_vcpus", r.SMPVCPUs, "ignored in user-mode emulation")
	}
	if r.DeadlockDetection {
		if err := validateDuration(time.Second, time.Hour)(r.DeadlockTimeout.Std()); err != nil {
			res.AddError("registry.deadlock_timeout", r.DeadlockTimeout, err.Error())
		}
	}

	l := &e.Log
	if !levels[strings.ToLower(l.Level)] {
		res.AddError("log.level", l.Level, "must be one of debug, info, warn, error, fatal")
	}
	if !l.ConsoleOutput && l.FilePath == "" {
		res.AddWarning("log.console_output", l.ConsoleOutput, "no log output configured, falling back to stdout")
	}
	if l.FilePath != "" {
		if err := validateRange(1, 10240)(int64(l.MaxSizeMB)); err != nil {
			res.AddError("log.max_size_mb", l.MaxSizeMB, err.Error())
		}
	}
	if l.Batch.Enabled {
		if l.FilePath == "" {
			res.AddWarning("log.batch.enabled", l.Batch.Enabled, "batching only applies to file output")
		}
		if err := validateRange(512, 16<<20)(int64(l.Batch.SizeBytes)); err != nil {
			res.AddError("log.batch.size_bytes", l.Batch.SizeBytes, err.Error())
		}
		if err := validateDuration(10*time.Millisecond, time.Minute)(l.Batch.FlushInterval.Std()); err != nil {
			res.AddError("log.batch.flush_interval", l.Batch.FlushInterval, err.Error())
		}
	}

	g := &e.Engine
	if err := vcpus(int64(g.VCPUs)); err != nil {
		res.AddError("engine.vcpus", g.VCPUs, err.Error())
	}
	if g.VCPUs > r.MaxVCPUs {
		res.AddWarning("engine.vcpus", g.VCPUs, "exceeds registry.max_vcpus")
	}
	if err := validateRange(1, 1<<16)(int64(g.Blocks)); err != nil {
		res.AddError("engine.blocks", g.Blocks, err.Error())
	}
	if g.Steps < 0 {
		res.AddError("engine.steps", g.Steps, "must not be negative")
	}
	if g.FlushEvery < 0 {
		res.AddError("engine.flush_every", g.FlushEvery, "must not be negative")
	}

	for i, p := range e.Plugins {
		if strings.HasPrefix(p, ",") || strings.TrimSpace(p) == "" {
			res.AddError(fmt.Sprintf("plugins[%d]", i), p, "empty plugin path")
		}
	}
	return res
}
