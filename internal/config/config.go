// Package config reads the llamabridge configuration file. The file may be
// YAML or TOML; every field is optional and command-line flags win over it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/llamabridge/internal/inference"
	"github.com/samcharles93/llamabridge/internal/llm"
)

// EnvPath names the environment variable that overrides the file location.
const EnvPath = "LLAMABRIDGE_CONFIG"

type File struct {
	Model    Model               `yaml:"model" toml:"model"`
	Sampling inference.Overrides `yaml:"sampling" toml:"sampling"`
	Server   Server              `yaml:"server" toml:"server"`
	Log      Log                 `yaml:"log" toml:"log"`
}

type Model struct {
	Path     string          `yaml:"path" toml:"path"`
	Provider string          `yaml:"provider" toml:"provider"`
	Options  llm.LoadOptions `yaml:"options" toml:"options"`
}

type Server struct {
	Address     string              `yaml:"address" toml:"address"`
	ReadTimeout *inference.Duration `yaml:"read_timeout" toml:"read_timeout"`
	// RecordTTL is how long generation records stay retrievable.
	RecordTTL *inference.Duration `yaml:"record_ttl" toml:"record_ttl"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Path returns the configuration file location: $LLAMABRIDGE_CONFIG, then
// $XDG_CONFIG_HOME/llamabridge/config.yaml, then
// ~/.config/llamabridge/config.yaml. It returns "" when no home directory
// can be determined.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "llamabridge", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "llamabridge", "config.yaml")
}

// Load reads the file at path. A missing file yields a zero File.
func Load(path string) (File, error) {
	if path == "" {
		return File{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, nil
		}
		return File{}, err
	}
	cfg, err := Decode(data, formatOf(path))
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// Decode parses data as "yaml" or "toml". Unknown keys are errors.
func Decode(data []byte, format string) (File, error) {
	var cfg File
	switch format {
	case "toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return File{}, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return File{}, fmt.Errorf("unknown key %q", undecoded[0].String())
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return File{}, err
		}
	default:
		return File{}, fmt.Errorf("unsupported config format %q", format)
	}
	return cfg, nil
}

// EngineConfig applies the sampling section to the defaults.
func (f File) EngineConfig() inference.Config {
	cfg := inference.DefaultConfig()
	cfg.Apply(f.Sampling)
	return cfg
}
