package compositor

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a compositor configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Sort mode names accepted in configuration files.
const (
	SortModeNone        = "none"
	SortModeFrontToBack = "front_to_back"
	SortModeBackToFront = "back_to_front"
	SortModeStateChange = "state_change"
)

var (
	// ErrUnsupportedFormat is returned for configuration files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("compositor: unsupported configuration format")

	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("compositor: invalid configuration")
)

var knownFormats = []gpu.PixelFormat{
	gpu.PixelFormatRGBA8Unorm,
	gpu.PixelFormatBGRA8Unorm,
	gpu.PixelFormatRGBA16Float,
	gpu.PixelFormatR32Uint,
	gpu.PixelFormatR32Float,
	gpu.PixelFormatDepth24Plus,
	gpu.PixelFormatDepth32Float,
}

// OutputConfig describes the render targets of a stage.
type OutputConfig struct {
	Colors      []gpu.PixelFormat `yaml:"colors" toml:"colors"`
	Depth       gpu.PixelFormat   `yaml:"depth" toml:"depth"`
	Multisample uint32            `yaml:"multisample" toml:"multisample"`
}

// StageConfig describes one render stage.
type StageConfig struct {
	Name       string       `yaml:"name" toml:"name"`
	EffectSlot string       `yaml:"effect_slot" toml:"effect_slot"`
	SortMode   string       `yaml:"sort_mode" toml:"sort_mode"`
	Output     OutputConfig `yaml:"output" toml:"output"`
}

// ViewConfig describes one render view and the stages it renders, in draw order.
type ViewConfig struct {
	Name              string   `yaml:"name" toml:"name"`
	Culling           string   `yaml:"culling" toml:"culling"`
	CullingMask       *uint32  `yaml:"culling_mask" toml:"culling_mask"`
	IgnoreDepthPlanes bool     `yaml:"ignore_depth_planes" toml:"ignore_depth_planes"`
	Stages            []string `yaml:"stages" toml:"stages"`
	Near              float32  `yaml:"near" toml:"near"`
	Far               float32  `yaml:"far" toml:"far"`
}

// Config is the file form of a compositor: its stages, its views, and the render system tuning.
type Config struct {
	Stages              []StageConfig `yaml:"stages" toml:"stages"`
	Views               []ViewConfig  `yaml:"views" toml:"views"`
	CompileMode         string        `yaml:"compile_mode" toml:"compile_mode"`
	EffectRetryInterval string        `yaml:"effect_retry_interval" toml:"effect_retry_interval"`
	Workers             int           `yaml:"workers" toml:"workers"`
	BatchSize           int           `yaml:"batch_size" toml:"batch_size"`
}

// DefaultConfig returns a forward renderer with one opaque and one transparent stage drawn by a
// single main view.
//
// Returns:
//   - *Config: the configuration
func DefaultConfig() *Config {
	return &Config{
		Stages: []StageConfig{
			{
				Name:       "Opaque",
				EffectSlot: "Main",
				SortMode:   SortModeStateChange,
				Output:     OutputConfig{Colors: []gpu.PixelFormat{gpu.PixelFormatBGRA8Unorm}, Depth: gpu.PixelFormatDepth24Plus},
			},
			{
				Name:       "Transparent",
				EffectSlot: "Main",
				SortMode:   SortModeBackToFront,
				Output:     OutputConfig{Colors: []gpu.PixelFormat{gpu.PixelFormatBGRA8Unorm}, Depth: gpu.PixelFormatDepth24Plus},
			},
		},
		Views: []ViewConfig{
			{Name: "main", Culling: rendering.CullingModeFrustum.String(), Stages: []string{"Opaque", "Transparent"}},
		},
		CompileMode: rendering.CompileModeAsync.String(),
	}
}

// LoadConfig reads a configuration file, choosing the decoder from the file extension.
//
// Parameters:
//   - path: a .yaml, .yml or .toml file
//
// Returns:
//   - *Config: the validated configuration
//   - error: a read, decode or validation error
func LoadConfig(path string) (*Config, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".toml":
		format = FormatTOML
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read compositor config %q", path)
	}
	cfg, err := ParseConfig(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "%q", path)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a configuration. Unknown keys are rejected.
//
// Parameters:
//   - data: the encoded configuration
//   - format: the encoding
//
// Returns:
//   - *Config: the validated configuration
//   - error: a decode or validation error
func ParseConfig(data []byte, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "decode yaml")
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "decode toml")
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks names, references and enumerations.
//
// Returns:
//   - error: ErrInvalidConfig describing the first problem
func (c *Config) Validate() error {
	if len(c.Stages) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no stages")
	}
	stages := make(map[string]bool, len(c.Stages))
	for i, s := range c.Stages {
		if s.Name == "" {
			return errors.Wrapf(ErrInvalidConfig, "stage %d has no name", i)
		}
		if stages[s.Name] {
			return errors.Wrapf(ErrInvalidConfig, "duplicate stage %q", s.Name)
		}
		stages[s.Name] = true
		if _, err := ParseSortMode(s.SortMode); err != nil {
			return errors.Wrapf(err, "stage %q", s.Name)
		}
		for _, f := range s.Output.Colors {
			if !slices.Contains(knownFormats, f) {
				return errors.Wrapf(ErrInvalidConfig, "stage %q: unknown color format %q", s.Name, f)
			}
		}
		if s.Output.Depth != gpu.PixelFormatUndefined && !slices.Contains(knownFormats, s.Output.Depth) {
			return errors.Wrapf(ErrInvalidConfig, "stage %q: unknown depth format %q", s.Name, s.Output.Depth)
		}
	}

	if len(c.Views) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no views")
	}
	views := make(map[string]bool, len(c.Views))
	for i, v := range c.Views {
		if v.Name == "" {
			return errors.Wrapf(ErrInvalidConfig, "view %d has no name", i)
		}
		if views[v.Name] {
			return errors.Wrapf(ErrInvalidConfig, "duplicate view %q", v.Name)
		}
		views[v.Name] = true
		if _, err := ParseCullingMode(v.Culling); err != nil {
			return errors.Wrapf(err, "view %q", v.Name)
		}
		for _, s := range v.Stages {
			if !stages[s] {
				return errors.Wrapf(ErrInvalidConfig, "view %q renders unknown stage %q", v.Name, s)
			}
		}
	}

	if _, err := ParseCompileMode(c.CompileMode); err != nil {
		return err
	}
	if _, err := c.RetryInterval(); err != nil {
		return err
	}
	if c.Workers < 0 || c.BatchSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "workers and batch_size must not be negative")
	}
	return nil
}

// RetryInterval parses the effect retry interval, 0 when unset.
func (c *Config) RetryInterval() (time.Duration, error) {
	if c.EffectRetryInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.EffectRetryInterval)
	if err != nil || d < 0 {
		return 0, errors.Wrapf(ErrInvalidConfig, "effect_retry_interval %q", c.EffectRetryInterval)
	}
	return d, nil
}

// ParseSortMode maps a sort mode name to its policy. The empty name and "none" keep the
// extract order.
//
// Parameters:
//   - name: the sort mode name
//
// Returns:
//   - rendering.SortMode: the policy, nil for no sorting
//   - error: ErrInvalidConfig for an unknown name
func ParseSortMode(name string) (rendering.SortMode, error) {
	switch name {
	case "", SortModeNone:
		return nil, nil
	case SortModeFrontToBack:
		return rendering.NewFrontToBackSortMode(), nil
	case SortModeBackToFront:
		return rendering.NewBackToFrontSortMode(), nil
	case SortModeStateChange:
		return rendering.NewStateChangeSortMode(), nil
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown sort mode %q", name)
	}
}

// ParseCullingMode maps a culling mode name, frustum when empty.
//
// Parameters:
//   - name: "frustum" or "none"
//
// Returns:
//   - rendering.CullingMode: the mode
//   - error: ErrInvalidConfig for an unknown name
func ParseCullingMode(name string) (rendering.CullingMode, error) {
	switch name {
	case "", rendering.CullingModeFrustum.String():
		return rendering.CullingModeFrustum, nil
	case rendering.CullingModeNone.String():
		return rendering.CullingModeNone, nil
	default:
		return 0, errors.Wrapf(ErrInvalidConfig, "unknown culling mode %q", name)
	}
}

// ParseCompileMode maps a compile mode name, async when empty.
//
// Parameters:
//   - name: "async" or "sync"
//
// Returns:
//   - rendering.CompileMode: the mode
//   - error: ErrInvalidConfig for an unknown name
func ParseCompileMode(name string) (rendering.CompileMode, error) {
	switch name {
	case "", rendering.CompileModeAsync.String():
		return rendering.CompileModeAsync, nil
	case rendering.CompileModeSync.String():
		return rendering.CompileModeSync, nil
	default:
		return 0, errors.Wrapf(ErrInvalidConfig, "unknown compile mode %q", name)
	}
}
