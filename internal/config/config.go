// Package config loads the pipeline configuration directory: config.yaml,
// an optional .env file, AFRIGID_* environment variables and command line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/farnunglab/afrigid/internal/rigidbody"
	"github.com/farnunglab/afrigid/internal/segment"
)

// ErrInvalidConfig wraps every configuration loading or validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	// EnvPrefix prefixes environment overrides, e.g. AFRIGID_PAE_CUTOFF.
	EnvPrefix = "AFRIGID"
	// MethodBoth runs the soft and strict segmenters side by side.
	MethodBoth = "both"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the rigid body pipeline configuration.
type Config struct {
	PLDDTCutoff float64  `mapstructure:"plddt_cutoff" validate:"gte=0,lte=100"`
	PAECutoff   float64  `mapstructure:"pae_cutoff" validate:"gte=0"`
	PAEPower    float64  `mapstructure:"pae_power" validate:"gt=0"`
	Resolution  float64  `mapstructure:"resolution" validate:"gt=0"`
	Method      string   `mapstructure:"method" validate:"oneof=soft strict both"`
	MinSize     int      `mapstructure:"min_size" validate:"gte=1"`
	Formats     []string `mapstructure:"formats" validate:"min=1,dive,oneof=txt json csv"`
	Viz         []string `mapstructure:"viz" validate:"dive,oneof=pymol chimerax none"`
	AFDB        AFDB     `mapstructure:"afdb"`
}

// AFDB configures the AlphaFold DB client.
type AFDB struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	CacheDir          string        `mapstructure:"cache_dir"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Attempts          int           `mapstructure:"attempts" validate:"gte=1,lte=10"`
}

// SetDefaults registers every key with its default so environment
// overrides are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("plddt_cutoff", 70.0)
	v.SetDefault("pae_cutoff", 5.0)
	v.SetDefault("pae_power", 1.0)
	v.SetDefault("resolution", 0.5)
	v.SetDefault("method", string(segment.Soft))
	v.SetDefault("min_size", 1)
	v.SetDefault("formats", []string{"txt", "json", "csv"})
	v.SetDefault("viz", []string{"pymol"})
	v.SetDefault("afdb.base_url", "https://alphafold.ebi.ac.uk")
	v.SetDefault("afdb.cache_dir", "")
	v.SetDefault("afdb.cache_ttl", 30*24*time.Hour)
	v.SetDefault("afdb.requests_per_second", 2.0)
	v.SetDefault("afdb.timeout", 20*time.Second)
	v.SetDefault("afdb.attempts", 3)
}

// Load reads the configuration directory dir into v and returns the
// validated result. dir may be empty, in which case only defaults,
// environment and flags already bound to v apply.
func Load(dir string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: config directory: %v", ErrInvalidConfig, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidConfig, dir)
		}
		if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Method = strings.ToLower(strings.TrimSpace(cfg.Method))
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// loadDotEnv exports the variables of a .env file. Variables already set in
// the process environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// Methods expands the configured method into the segmenters to run.
func (c *Config) Methods() []segment.Method {
	if c.Method == MethodBoth {
		return segment.Methods
	}
	return []segment.Method{segment.Method(c.Method)}
}

// SegmentParams returns the segmenter parameters.
func (c *Config) SegmentParams() segment.Params {
	return segment.Params{Cutoff: c.PAECutoff, Power: c.PAEPower, Resolution: c.Resolution}
}

// Filter returns the confidence filter.
func (c *Config) Filter() rigidbody.Filter {
	return rigidbody.Filter{PLDDTCutoff: c.PLDDTCutoff, MinSize: c.MinSize}
}
