package emuplug

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-lynx/emuplug/events"
	"github.com/go-lynx/emuplug/plugins"
)

func TestInstallVersionBounds(t *testing.T) {
	tests := []struct {
		name    string
		version any
		wantErr error
	}{
		{"oldest supported", plugins.MinVersion, nil},
		{"current", plugins.CurrentVersion, nil},
		{"pointer", func() *int { v := 3; return &v }(), nil},
		{"getter", func() int { return plugins.CurrentVersion }, nil},
		{"too old", plugins.MinVersion - 1, plugins.ErrUnsupportedVersion},
		{"too new", plugins.CurrentVersion + 1, plugins.ErrUnsupportedVersion},
		{"wrong type", "4", plugins.ErrLoadFailure},
		{"nil pointer", (*int)(nil), plugins.ErrLoadFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := plugins.NewStaticLoader()
			loader.Register("m", map[string]any{
				plugins.SymbolVersion: tt.version,
				plugins.SymbolInstall: InstallFunc(nopInstall),
			})
			r := New(WithLoader(loader))
			defer r.Close()

			id, err := r.Install(plugins.Descriptor{Path: "m"})
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.True(t, id.Valid())
				return
			}
			assert.ErrorIs(t, err, plugins.ErrLoadFailure)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, plugins.InvalidID, id)
			assert.Equal(t, 0, loader.OpenCount("m"))
			assert.Empty(t, r.IDs())
		})
	}
}

func TestInstallFailures(t *testing.T) {
	boom := errors.New("boom")
	subscribeThen := func(fail func() error) InstallFunc {
		return func(r *Registry, id plugins.ID, _ *plugins.Info, _ []string) error {
			if err := r.RegisterFlush(id, func(plugins.ID) { t.Error("flush reached a failed module") }); err != nil {
				return err
			}
			return fail()
		}
	}

	tests := []struct {
		name    string
		symbols map[string]any
		wantErr error
	}{
		{
			name:    "missing version",
			symbols: map[string]any{plugins.SymbolInstall: InstallFunc(nopInstall)},
			wantErr: plugins.ErrSymbolNotFound,
		},
		{
			name:    "missing install",
			symbols: map[string]any{plugins.SymbolVersion: plugins.CurrentVersion},
			wantErr: plugins.ErrSymbolNotFound,
		},
		{
			name: "install of wrong type",
			symbols: map[string]any{
				plugins.SymbolVersion: plugins.CurrentVersion,
				plugins.SymbolInstall: func() error { return nil },
			},
		},
		{
			name:    "install error",
			symbols: module(subscribeThen(func() error { return boom })),
			wantErr: boom,
		},
		{
			name:    "install panic",
			symbols: module(subscribeThen(func() error { panic("bad module") })),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := plugins.NewStaticLoader()
			loader.Register("m", tt.symbols)
			r := New(WithLoader(loader))
			defer r.Close()

			id, err := r.Install(plugins.Descriptor{Path: "m"})
			require.Error(t, err)
			assert.ErrorIs(t, err, plugins.ErrLoadFailure)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			var pe *plugins.PluginError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "install", pe.Operation)

			assert.Equal(t, plugins.InvalidID, id)
			assert.Empty(t, r.IDs())
			assert.Equal(t, 0, loader.OpenCount("m"))
			assert.Equal(t, 0, r.Stats().Subscribers[events.Flush])
			assert.Equal(t, uint64(1), r.Stats().InstallFailures)

			// the registry keeps working
			r.FlushCodeCache()
		})
	}
}

func TestInstallAcceptsUnnamedFuncType(t *testing.T) {
	loader := plugins.NewStaticLoader()
	loader.Register("m", map[string]any{
		plugins.SymbolVersion: plugins.CurrentVersion,
		plugins.SymbolInstall: func(*Registry, plugins.ID, *plugins.Info, []string) error { return nil },
	})
	r := New(WithLoader(loader))
	defer r.Close()
	_, err := r.Install(plugins.Descriptor{Path: "m"})
	assert.NoError(t, err)
}

func TestUnknownModulePath(t *testing.T) {
	r := New()
	defer r.Close()
	_, err := r.Install(plugins.Descriptor{Path: "/nonexistent.so"})
	assert.ErrorIs(t, err, plugins.ErrLoadFailure)
}
