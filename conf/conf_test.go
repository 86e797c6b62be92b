package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "emuplug.yaml", `
emuplug:
  registry:
    target_name: aarch64
    smp_vcpus: 4
    max_vcpus: 8
    deadlock_detection: true
    deadlock_timeout: 5s
  log:
    level: debug
  engine:
    vcpus: 4
    steps: 200
  plugins:
    - builtin:insn,inline=true
    - builtin:mem,rw=w
`)
	b, err := Load(path)
	require.NoError(t, err)

	e := b.Emuplug
	assert.Equal(t, "aarch64", e.Registry.TargetName)
	assert.Equal(t, 4, e.Registry.SMPVCPUs)
	assert.Equal(t, 8, e.Registry.MaxVCPUs)
	assert.True(t, e.Registry.DeadlockDetection)
	assert.Equal(t, 5*time.Second, e.Registry.DeadlockTimeout.Std())
	assert.Equal(t, "debug", e.Log.Level)
	assert.Equal(t, 4, e.Engine.VCPUs)
	assert.Equal(t, 200, e.Engine.Steps)
	assert.Equal(t, []string{"builtin:insn,inline=true", "builtin:mem,rw=w"}, e.Plugins)

	// untouched keys keep their defaults
	assert.True(t, e.Registry.SystemEmulation)
	assert.True(t, e.Log.ConsoleOutput)
	assert.Equal(t, 16, e.Engine.Blocks)

	assert.True(t, Validate(b).Valid)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "emuplug.toml", `
[emuplug]
plugins = ["builtin:bb,every=4"]

[emuplug.registry]
target_name = "riscv64"
system_emulation = false
smp_vcpus = 1
max_vcpus = 2

[emuplug.engine]
vcpus = 2
steps = 50
flush_every = 10
`)
	b, err := Load(path)
	require.NoError(t, err)

	e := b.Emuplug
	assert.Equal(t, "riscv64", e.Registry.TargetName)
	assert.False(t, e.Registry.SystemEmulation)
	assert.Equal(t, 2, e.Registry.MaxVCPUs)
	assert.Equal(t, 2, e.Engine.VCPUs)
	assert.Equal(t, 10, e.Engine.FlushEvery)
	assert.Equal(t, []string{"builtin:bb,every=4"}, e.Plugins)
}

func TestLoadJSONWithoutSection(t *testing.T) {
	path := writeConfig(t, "other.json", `{"unrelated": {"x": 1}}`)
	b, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), b)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"250ms"`)))
	assert.Equal(t, 250*time.Millisecond, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	assert.Equal(t, time.Microsecond, d.Std())

	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))

	out, err := Duration(2 * time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(e *Emuplug)
		valid    bool
		field    string
		warnings int
	}{
		{"defaults", func(e *Emuplug) {}, true, "", 0},
		{"missing target", func(e *Emuplug) { e.Registry.TargetName = "" }, false, "registry.target_name", 0},
		{"max below smp", func(e *Emuplug) { e.Registry.SMPVCPUs = 4; e.Registry.MaxVCPUs = 2 }, false, "registry.max_vcpus", 0},
		{"bad level", func(e *Emuplug) { e.Log.Level = "loud" }, false, "log.level", 0},
		{"zero engine vcpus", func(e *Emuplug) { e.Engine.VCPUs = 0 }, false, "engine.vcpus", 0},
		{"negative flush", func(e *Emuplug) { e.Engine.FlushEvery = -1 }, false, "engine.flush_every", 0},
		{"empty plugin", func(e *Emuplug) { e.Plugins = []string{",a=b"} }, false, "plugins[0]", 0},
		{"short deadlock timeout", func(e *Emuplug) {
			e.Registry.DeadlockDetection = true
			e.Registry.DeadlockTimeout = Duration(time.Millisecond)
		}, false, "registry.deadlock_timeout", 0},
		{"engine exceeds max vcpus", func(e *Emuplug) { e.Engine.VCPUs = 2 }, true, "", 1},
		{"no output", func(e *Emuplug) { e.Log.ConsoleOutput = false }, true, "", 1},
		{"batch without file", func(e *Emuplug) { e.Log.Batch.Enabled = true }, true, "", 1},
		{"tiny batch", func(e *Emuplug) {
			e.Log.FilePath = "emuplug.log"
			e.Log.Batch.Enabled = true
			e.Log.Batch.SizeBytes = 10
		}, false, "log.batch.size_bytes", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Default()
			tt.mutate(&b.Emuplug)
			res := Validate(b)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Len(t, res.Warnings, tt.warnings)
			if tt.valid {
				assert.NoError(t, res.Err())
				return
			}
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, tt.field, res.Errors[0].Field)
			assert.Error(t, res.Err())
		})
	}

	assert.False(t, Validate(nil).Valid)
}
