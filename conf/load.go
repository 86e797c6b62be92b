package conf

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/encoding"

	// codecs for the file formats kratos decodes by extension
	_ "github.com/go-kratos/kratos/v2/encoding/json"
	_ "github.com/go-kratos/kratos/v2/encoding/yaml"
)

// tomlCodec lets Kratos config decode .toml files
type tomlCodec struct{}

func (tomlCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (tomlCodec) Unmarshal(data []byte, v any) error {
	return toml.Unmarshal(data, v)
}

func (tomlCodec) Name() string {
	return "toml"
}

func init() {
	encoding.RegisterCodec(tomlCodec{})
}

// Load reads a configuration file, overlaying it on Default.
// The format follows the file extension: .yaml, .yml, .json or .toml.
func Load(path string) (*Bootstrap, error) {
	c := config.New(config.WithSource(file.NewSource(path)))
	defer c.Close()
	if err := c.Load(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return Scan(c)
}

// Scan extracts the emuplug section of an already loaded Kratos config,
// overlaying it on Default. A missing section yields the defaults.
func Scan(c config.Config) (*Bootstrap, error) {
	b := Default()
	v := c.Value(RootKey)
	if _, err := v.Map(); err != nil {
		return b, nil
	}
	if err := v.Scan(&b.Emuplug); err != nil {
		return nil, fmt.Errorf("scan %s: %w", RootKey, err)
	}
	return b, nil
}
