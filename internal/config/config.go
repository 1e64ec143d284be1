package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/okra-platform/breakiter/internal/wasm"
)

// FileName is the name of the configuration file
const FileName = "breakiter.json"

// Engine kinds
const (
	EngineNative = "native"
	EngineWASM   = "wasm"
)

// ErrNotFound is returned when no configuration file exists
var ErrNotFound = errors.New("no " + FileName + " found")

// Config represents the breakiter.json configuration file
type Config struct {
	Engine     string      `json:"engine"`
	Encoding   string      `json:"encoding"`
	WASM       WASMConfig  `json:"wasm"`
	Watch      WatchConfig `json:"watch"`
	AskTimeout Duration    `json:"askTimeout"`
}

// WASMConfig configures the wazero-hosted engine
type WASMConfig struct {
	Module     string       `json:"module"`
	ModuleName string       `json:"moduleName"`
	Exports    wasm.Exports `json:"exports"`
}

// WatchConfig contains file watching configuration
type WatchConfig struct {
	Patterns []string `json:"patterns"`
	Exclude  []string `json:"exclude"`
}

// Duration is a time.Duration that reads from a JSON string like "5s"
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the configuration used when no file exists
func Default() *Config {
	config := &Config{}
	config.setDefaults()
	return config
}

// ParsedEncoding returns the parsed default encoding
func (c *Config) ParsedEncoding() (engine.Encoding, error) {
	return engine.ParseEncoding(c.Encoding)
}

// Validate checks the configuration for inconsistent values
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineNative:
	case EngineWASM:
		if c.WASM.Module == "" {
			return fmt.Errorf("wasm engine requires wasm.module")
		}
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}

	if _, err := c.ParsedEncoding(); err != nil {
		return err
	}
	if c.AskTimeout < 0 {
		return fmt.Errorf("askTimeout cannot be negative")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Engine == "" {
		c.Engine = EngineNative
	}
	if c.Encoding == "" {
		c.Encoding = "utf8"
	}
	if c.WASM.ModuleName == "" {
		c.WASM.ModuleName = wasm.DefaultModuleName
	}
	if len(c.Watch.Patterns) == 0 {
		c.Watch.Patterns = []string{"*.txt", "**/*.txt", "*.md", "**/*.md"}
	}
	if len(c.Watch.Exclude) == 0 {
		c.Watch.Exclude = []string{".git", "node_modules", "*.tmp", "*~"}
	}
	if c.AskTimeout == 0 {
		c.AskTimeout = Duration(5 * time.Second)
	}
}

// LoadConfig loads breakiter.json from the current directory or a parent directory
func LoadConfig() (*Config, string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return loadConfigFromDir(dir)
}

// LoadConfigFromPath loads the configuration from a specific path
func LoadConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	// Relative module paths are resolved against the config file
	if config.WASM.Module != "" && !filepath.IsAbs(config.WASM.Module) {
		config.WASM.Module = filepath.Join(filepath.Dir(path), config.WASM.Module)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &config, nil
}

// loadConfigFromDir searches for breakiter.json in the given directory and its parents
func loadConfigFromDir(startDir string) (*Config, string, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			config, err := LoadConfigFromPath(configPath)
			if err != nil {
				return nil, "", err
			}
			return config, dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}

	return nil, "", fmt.Errorf("%w in %s or any parent directory", ErrNotFound, startDir)
}
