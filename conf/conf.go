// Package conf defines the emuplug configuration tree and loads it through the
// Kratos config system. YAML and JSON files use the Kratos codecs; TOML files
// use a codec backed by BurntSushi/toml.
package conf

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RootKey is the configuration key all emuplug settings live under
const RootKey = "emuplug"

// Bootstrap is the root of a configuration file
type Bootstrap struct {
	Emuplug Emuplug `json:"emuplug"`
}

// Emuplug groups every section
type Emuplug struct {
	Registry Registry `json:"registry"`
	Log      Log      `json:"log"`
	Engine   Engine   `json:"engine"`
	// Plugins are descriptors of the form "path,arg1,arg2" installed at start-up
	Plugins []string `json:"plugins"`
}

// Registry configures the instrumentation registry and the emulator info it
// advertises to modules
type Registry struct {
	TargetName      string `json:"target_name"`
	SystemEmulation bool   `json:"system_emulation"`
	SMPVCPUs        int    `json:"smp_vcpus"`
	MaxVCPUs        int    `json:"max_vcpus"`

	// DeadlockDetection enables the lock-wait detector on the registry lock
	DeadlockDetection bool     `json:"deadlock_detection"`
	DeadlockTimeout   Duration `json:"deadlock_timeout"`
}

// Log configures the logging backend
type Log struct {
	Level         string `json:"level"`
	ConsoleOutput bool   `json:"console_output"`
	NoColor       bool   `json:"no_color"`
	// FilePath enables rotating file output when set
	FilePath   string `json:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
	CallerSkip int    `json:"caller_skip"`
	Stack      Stack  `json:"stack"`
	Batch      Batch  `json:"batch"`
}

// Batch buffers file output
type Batch struct {
	Enabled       bool     `json:"enabled"`
	SizeBytes     int      `json:"size_bytes"`
	FlushInterval Duration `json:"flush_interval"`
}

// Stack configures stack capture on error logs
type Stack struct {
	Enabled   bool   `json:"enabled"`
	Level     string `json:"level"`
	MaxFrames int    `json:"max_frames"`
}

// Engine configures the synthetic translation engine
type Engine struct {
	VCPUs  int   `json:"vcpus"`
	Steps  int   `json:"steps"`
	Blocks int   `json:"blocks"`
	Seed   int64 `json:"seed"`
	// FlushEvery discards the code cache every n steps per vcpu; zero never does
	FlushEvery int `json:"flush_every"`
}

// Default returns the configuration used when no file is given
func Default() *Bootstrap {
	return &Bootstrap{Emuplug: Emuplug{
		Registry: Registry{
			TargetName:      "synthetic",
			SystemEmulation: true,
			SMPVCPUs:        1,
			MaxVCPUs:        1,
			DeadlockTimeout: Duration(30 * time.Second),
		},
		Log: Log{
			Level:         "info",
			ConsoleOutput: true,
			MaxSizeMB:     100,
			MaxBackups:    3,
			MaxAgeDays:    7,
			CallerSkip:    4,
			Stack:         Stack{Enabled: true, Level: "error", MaxFrames: 32},
			Batch:         Batch{SizeBytes: 64 << 10, FlushInterval: Duration(time.Second)},
		},
		Engine: Engine{
			VCPUs:  1,
			Steps:  1000,
			Blocks: 16,
			Seed:   1,
		},
	}}
}

// Duration is a time.Duration that decodes from "1.5s" style strings or
// from a number of nanoseconds
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON encodes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or an integer
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(n)
	return nil
}
