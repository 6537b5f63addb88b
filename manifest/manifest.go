// Package manifest handles tape.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/tapevm/pkg/bytecode"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "tape.toml"

// Manifest represents a tape.toml configuration.
type Manifest struct {
	VM     VMConfig     `toml:"vm" json:"vm"`
	Server ServerConfig `toml:"server" json:"server"`
	Store  StoreConfig  `toml:"store" json:"store"`
	Log    LogConfig    `toml:"log" json:"log"`

	// Dir is the directory containing the tape.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// VMConfig configures program execution.
type VMConfig struct {
	TapeSize int    `toml:"tape-size" json:"tape-size"`
	EOF      string `toml:"eof" json:"eof"`
	MaxSteps int64  `toml:"max-steps" json:"max-steps"`
}

// ServerConfig configures the execution service.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

// StoreConfig configures the compiled program cache.
type StoreConfig struct {
	Path string `toml:"path" json:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int `toml:"verbosity" json:"verbosity"`
}

// Default returns the configuration used when no tape.toml exists.
func Default() *Manifest {
	return &Manifest{
		VM: VMConfig{
			TapeSize: bytecode.DefaultTapeSize,
			EOF:      bytecode.EOFError.String(),
		},
		Server: ServerConfig{Addr: ":4567"},
		Store:  StoreConfig{Path: filepath.Join(".tape", "cache.db")},
		Log:    LogConfig{Verbosity: 1},
	}
}

// Load parses a tape.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Manifest, error) {
	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a tape.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// VMOptions converts the [vm] section to VM options.
func (m *Manifest) VMOptions() (bytecode.Options, error) {
	eof, err := bytecode.ParseEOFPolicy(m.VM.EOF)
	if err != nil {
		return bytecode.Options{}, err
	}
	return bytecode.Options{
		TapeSize: m.VM.TapeSize,
		EOF:      eof,
		MaxSteps: m.VM.MaxSteps,
	}, nil
}

// StorePath returns the cache database path, resolved against Dir when
// relative.
func (m *Manifest) StorePath() string {
	if m.Store.Path == "" || filepath.IsAbs(m.Store.Path) || m.Dir == "" {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}
