package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ChristianF88/pradix/radix"
	"github.com/dustin/go-humanize"
)

const (
	DefaultPort          = "5044"
	DefaultListenTimeout = 30 * time.Second
	DefaultSeed          = 1
)

type SortConfig struct {
	KeyBits     int   `toml:"keyBits"`
	DigitBits   int   `toml:"digitBits"`
	Workers     int   `toml:"workers"`
	SmallCutoff int   `toml:"smallCutoff"`
	MemoryLimit int64 `toml:"memoryLimit"`

	// Raw value for validation reporting
	MemoryLimitRaw string `toml:"-"`
}

type InputConfig struct {
	File    string `toml:"file"`
	Format  string `toml:"format"`
	Random  int    `toml:"random"`
	Begin   uint64 `toml:"begin"`
	Seed    int64  `toml:"seed"`
	Uniform bool   `toml:"uniform"`
}

type OutputConfig struct {
	File        string `toml:"file"`
	Format      string `toml:"format"`
	Print       bool   `toml:"print"`
	PlotPath    string `toml:"plotPath"`
	MetricsFile string `toml:"metricsFile"`
	Verify      bool   `toml:"verify"`
}

type ListenConfig struct {
	Port    string        `toml:"port"`
	Count   int           `toml:"count"`
	Timeout time.Duration `toml:"timeout"`
}

type Config struct {
	Sort   *SortConfig   `toml:"sort"`
	Input  *InputConfig  `toml:"input"`
	Output *OutputConfig `toml:"output"`
	Listen *ListenConfig `toml:"listen"`
}

// Default returns a config with every section present and engine defaults.
func Default() *Config {
	d := radix.DefaultConfig()
	return &Config{
		Sort: &SortConfig{
			KeyBits:     d.KeyBits,
			DigitBits:   d.DigitBits,
			SmallCutoff: d.SmallCutoff,
		},
		Input:  &InputConfig{Format: "text", Seed: DefaultSeed},
		Output: &OutputConfig{Format: "text"},
		Listen: &ListenConfig{Port: DefaultPort, Timeout: DefaultListenTimeout},
	}
}

func LoadConfig(configPath string) (*Config, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig map[string]any
	if _, err := toml.Decode(string(configData), &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config := Default()
	for key, value := range rawConfig {
		section, ok := value.(map[string]any)
		if !ok {
			continue
		}
		switch key {
		case "sort":
			err = parseSortConfig(section, config.Sort)
		case "input":
			err = parseInputConfig(section, config.Input)
		case "output":
			err = parseOutputConfig(section, config.Output)
		case "listen":
			err = parseListenConfig(section, config.Listen)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing [%s]: %w", key, err)
		}
	}
	return config, nil
}

// intField reads an integer field. TOML integers decode as int64.
func intField(m map[string]any, key string) (int64, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, false, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
	return n, true, nil
}

func stringField(m map[string]any, key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, true, nil
}

func boolField(m map[string]any, key string) (bool, bool, error) {
	v, ok := m[key]
	if !ok {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, fmt.Errorf("%s must be a boolean, got %T", key, v)
	}
	return b, true, nil
}

func parseSortConfig(m map[string]any, config *SortConfig) error {
	for key, dst := range map[string]*int{
		"keyBits":     &config.KeyBits,
		"digitBits":   &config.DigitBits,
		"workers":     &config.Workers,
		"smallCutoff": &config.SmallCutoff,
	} {
		v, ok, err := intField(m, key)
		if err != nil {
			return err
		}
		if ok {
			*dst = int(v)
		}
	}

	switch v := m["memoryLimit"].(type) {
	case nil:
	case int64:
		config.MemoryLimit = v
		config.MemoryLimitRaw = fmt.Sprint(v)
	case string:
		config.MemoryLimitRaw = v
		limit, err := ParseMemoryLimit(v)
		if err != nil {
			return err
		}
		config.MemoryLimit = limit
	default:
		return fmt.Errorf("memoryLimit must be a size like \"512MiB\", got %T", v)
	}
	return nil
}

// ParseMemoryLimit parses sizes such as "1GiB", "512MB" or "0".
func ParseMemoryLimit(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid memoryLimit %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("memoryLimit %q is too large", s)
	}
	return int64(n), nil
}

func parseInputConfig(m map[string]any, config *InputConfig) error {
	for key, dst := range map[string]*string{
		"file":   &config.File,
		"format": &config.Format,
	} {
		v, ok, err := stringField(m, key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}
	if v, ok, err := intField(m, "random"); err != nil {
		return err
	} else if ok {
		config.Random = int(v)
	}
	if v, ok, err := intField(m, "begin"); err != nil {
		return err
	} else if ok {
		if v < 0 {
			return fmt.Errorf("begin must be >= 0, got %d", v)
		}
		config.Begin = uint64(v)
	}
	if v, ok, err := intField(m, "seed"); err != nil {
		return err
	} else if ok {
		config.Seed = v
	}
	if v, ok, err := boolField(m, "uniform"); err != nil {
		return err
	} else if ok {
		config.Uniform = v
	}
	return nil
}

func parseOutputConfig(m map[string]any, config *OutputConfig) error {
	for key, dst := range map[string]*string{
		"file":        &config.File,
		"format":      &config.Format,
		"plotPath":    &config.PlotPath,
		"metricsFile": &config.MetricsFile,
	} {
		v, ok, err := stringField(m, key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}
	for key, dst := range map[string]*bool{
		"print":  &config.Print,
		"verify": &config.Verify,
	} {
		v, ok, err := boolField(m, key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}
	return nil
}

func parseListenConfig(m map[string]any, config *ListenConfig) error {
	switch v := m["port"].(type) {
	case nil:
	case string:
		config.Port = v
	case int64:
		config.Port = fmt.Sprint(v)
	default:
		return fmt.Errorf("port must be a string, got %T", v)
	}
	if v, ok, err := intField(m, "count"); err != nil {
		return err
	} else if ok {
		config.Count = int(v)
	}
	if v, ok, err := stringField(m, "timeout"); err != nil {
		return err
	} else if ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		config.Timeout = d
	}
	return nil
}

// RadixConfig converts the [sort] section into an engine config.
func (c *Config) RadixConfig() radix.Config {
	s := c.Sort
	if s == nil {
		return radix.DefaultConfig()
	}
	return radix.Config{
		KeyBits:     s.KeyBits,
		DigitBits:   s.DigitBits,
		Workers:     s.Workers,
		SmallCutoff: s.SmallCutoff,
		MemoryLimit: s.MemoryLimit,
	}
}

func (c *Config) validateEngine() error {
	if c.Sort == nil {
		return fmt.Errorf("sort configuration section is required")
	}
	if c.Sort.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Sort.Workers)
	}
	return c.RadixConfig().Validate(64)
}

func (c *Config) validateOutput() error {
	if c.Output == nil {
		return nil
	}
	if c.Output.Format != "" && c.Output.Format != "text" && c.Output.Format != "binary" {
		return fmt.Errorf("output format must be text or binary, got %q", c.Output.Format)
	}
	return nil
}

// ValidateSort checks a config for the sort command.
func (c *Config) ValidateSort() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if c.Input == nil {
		return fmt.Errorf("input configuration section is required")
	}
	if c.Input.Random < 0 {
		return fmt.Errorf("random must be >= 0, got %d", c.Input.Random)
	}
	if c.Input.File == "" && c.Input.Random == 0 {
		return fmt.Errorf("either file or random is required in input configuration")
	}
	if c.Input.File != "" && c.Input.Random > 0 {
		return fmt.Errorf("file and random are mutually exclusive in input configuration")
	}
	if c.Input.Format != "" && c.Input.Format != "text" && c.Input.Format != "binary" {
		return fmt.Errorf("input format must be text or binary, got %q", c.Input.Format)
	}
	if c.Input.File != "" {
		if _, err := os.Stat(c.Input.File); os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", c.Input.File)
		}
	}
	return c.validateOutput()
}

// ValidateListen checks a config for the listen command.
func (c *Config) ValidateListen() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if c.Listen == nil {
		return fmt.Errorf("listen configuration section is required")
	}
	if c.Listen.Port == "" {
		return fmt.Errorf("port is required in listen configuration")
	}
	if c.Listen.Count < 0 {
		return fmt.Errorf("count must be >= 0, got %d", c.Listen.Count)
	}
	if c.Listen.Count == 0 && c.Listen.Timeout <= 0 {
		return fmt.Errorf("listen needs a count or a timeout to know when to stop")
	}
	return c.validateOutput()
}
