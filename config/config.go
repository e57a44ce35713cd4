// Package config holds the persisted state of the receiver: input, signal
// path settings and module instances.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/vfo"
)

// Input kinds.
const (
	InputWav  = "wav"
	InputTone = "tone"
)

// Defaults applied to missing values.
const (
	DefaultSampleRate = 2.4e6
	DefaultFFTSize    = 1024
	DefaultFFTRate    = 20
)

var (
	// ErrInvalid is returned when configuration fails validation.
	ErrInvalid = errors.New("invalid configuration")
)

// Config is the root document.
type Config struct {
	Input        Input    `yaml:"input"`
	Decimation   int      `yaml:"decimation,omitempty"`
	IQCorrection bool     `yaml:"iq_correction,omitempty"`
	FFT          FFT      `yaml:"fft"`
	Listen       string   `yaml:"listen,omitempty"`
	Modules      []Module `yaml:"modules,omitempty"`
}

// Input describes the IQ source.
type Input struct {
	Kind       string  `yaml:"kind"`
	Path       string  `yaml:"path,omitempty"`        // wav only
	SampleRate float64 `yaml:"sample_rate,omitempty"` // tone only, wav uses header
	Frequency  float64 `yaml:"frequency,omitempty"`   // tone only
}

// FFT settings of the display tap. Zero size disables the tap.
type FFT struct {
	Size int     `yaml:"size"`
	Rate float64 `yaml:"rate"`
}

// Module is an instance of a registered module.
type Module struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	VFO     VFO               `yaml:"vfo"`
	Options map[string]string `yaml:"options,omitempty"`
}

// VFO settings of a module instance.
type VFO struct {
	Offset     float64 `yaml:"offset"`
	Bandwidth  float64 `yaml:"bandwidth"`
	SampleRate float64 `yaml:"sample_rate"`
	Reference  string  `yaml:"reference,omitempty"`
}

// Option returns module option or default value if it's not set.
func (m Module) Option(key, def string) string {
	if v, ok := m.Options[key]; ok {
		return v
	}
	return def
}

// Load reads, parses and validates the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes the document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal encodes the document.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the document to the file.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetDefaults fills missing values.
func (c *Config) SetDefaults() {
	if c.Input.Kind == "" {
		c.Input.Kind = InputWav
	}
	if c.Input.Kind == InputTone && c.Input.SampleRate == 0 {
		c.Input.SampleRate = DefaultSampleRate
	}
	if c.Decimation == 0 {
		c.Decimation = 1
	}
	if c.FFT.Size > 0 && c.FFT.Rate == 0 {
		c.FFT.Rate = DefaultFFTRate
	}
}

// Validate checks the document and returns all problems at once.
func (c *Config) Validate() error {
	var errs sdr.Errors
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	switch c.Input.Kind {
	case InputWav:
		if c.Input.Path == "" {
			add("input: wav path is required")
		}
	case InputTone:
		if c.Input.SampleRate <= 0 {
			add("input: sample rate must be positive")
		}
	default:
		add("input: unknown kind %q", c.Input.Kind)
	}
	if c.Decimation < 1 {
		add("decimation must be positive")
	}
	if c.FFT.Size < 0 || (c.FFT.Size > 0 && c.FFT.Rate <= 0) {
		add("fft: size %d rate %v", c.FFT.Size, c.FFT.Rate)
	}
	names := make(map[string]struct{}, len(c.Modules))
	for i, m := range c.Modules {
		if m.Name == "" {
			add("module %d: name is required", i)
		} else if _, ok := names[m.Name]; ok {
			add("module %s: duplicate name", m.Name)
		}
		names[m.Name] = struct{}{}
		if m.Type == "" {
			add("module %s: type is required", m.Name)
		}
		if m.VFO.SampleRate <= 0 {
			add("module %s: vfo sample rate must be positive", m.Name)
		}
		if m.VFO.Bandwidth < 0 {
			add("module %s: vfo bandwidth is negative", m.Name)
		}
		if _, err := vfo.ParseReference(m.VFO.Reference); err != nil {
			add("module %s: %v", m.Name, err)
		}
	}
	return errs.Ret()
}
