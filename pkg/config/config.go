// Package config reads the irule.yaml engine configuration.
//
//	rulesets: [core.re, app.re]
//	cond_index: true
//	gc_block_size: 65536
//	max_depth: 1000
//	log_level: info
//	microservices:
//	  wasm: [msi/hello.wasm]
//	  rate: 100
//	  burst: 10
//	catalog: rules.db
//
// Relative paths are resolved against the directory of the file.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sandrolain/goirl"
	"github.com/sandrolain/goirl/pkg/evaluator"
	"github.com/sandrolain/goirl/pkg/msi"
)

// Config is the engine configuration.
type Config struct {
	RuleSets      []string      `yaml:"rulesets"`
	CondIndex     bool          `yaml:"cond_index"`
	GCBlockSize   int           `yaml:"gc_block_size"`
	MaxDepth      int           `yaml:"max_depth"`
	LogLevel      string        `yaml:"log_level"`
	Microservices Microservices `yaml:"microservices"`
	Catalog       string        `yaml:"catalog"`
}

// Microservices configures the micro-service table.
type Microservices struct {
	Wasm []string `yaml:"wasm"`
	// Rate limits calls per second; 0 disables the limit.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		CondIndex:   true,
		GCBlockSize: evaluator.DefaultGCBlockSize,
		MaxDepth:    evaluator.DefaultMaxDepth,
		LogLevel:    "info",
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	c.resolve(filepath.Dir(path))
	return c, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i, p := range c.RuleSets {
		c.RuleSets[i] = abs(p)
	}
	for i, p := range c.Microservices.Wasm {
		c.Microservices.Wasm[i] = abs(p)
	}
	c.Catalog = abs(c.Catalog)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.GCBlockSize <= 0:
		return errors.Errorf("gc_block_size must be positive, got %d", c.GCBlockSize)
	case c.MaxDepth <= 0:
		return errors.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	case c.Microservices.Rate < 0:
		return errors.Errorf("microservices.rate must not be negative, got %g", c.Microservices.Rate)
	case c.Microservices.Burst < 0:
		return errors.Errorf("microservices.burst must not be negative, got %d", c.Microservices.Burst)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	return l, nil
}

// EngineOptions maps the configuration to engine options. Loading rule
// sets, WASM modules and the catalog is left to the caller.
func (c *Config) EngineOptions() []goirl.Option {
	return []goirl.Option{
		goirl.WithCondIndex(c.CondIndex),
		goirl.WithEvalOptions(
			evaluator.WithGCBlockSize(c.GCBlockSize),
			evaluator.WithMaxDepth(c.MaxDepth),
		),
	}
}

// TableOptions returns the options of the micro-service table.
func (c *Config) TableOptions() []msi.TableOption {
	return []msi.TableOption{msi.WithRateLimit(c.Microservices.Rate, c.Microservices.Burst)}
}
