package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/couchcryptid/pollen-map/internal/render"
)

// EnvPrefix prefixes every environment override, e.g. POLLENMAP_OUTPUT_DIR.
const EnvPrefix = "POLLENMAP"

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "pollenmap.yaml"

// Config holds all settings. Precedence: flags > env > config file > defaults.
type Config struct {
	Input       string `mapstructure:"input"`
	InputFormat string `mapstructure:"input_format" validate:"omitempty,oneof=csv json jsonl"`
	OutputDir   string `mapstructure:"output_dir" validate:"required"`
	CitiesFile  string `mapstructure:"cities_file"`
	From        string `mapstructure:"from" validate:"omitempty,datetime=2006-01-02"`
	To          string `mapstructure:"to" validate:"omitempty,datetime=2006-01-02"`
	Workers     int    `mapstructure:"workers" validate:"min=1,max=64"`
	Precompress bool   `mapstructure:"precompress"`

	EchartsMirrors  []string `mapstructure:"echarts_mirrors" validate:"min=1,dive,url"`
	ChinaMapMirrors []string `mapstructure:"china_map_mirrors" validate:"min=1,dive,url"`

	HTTPAddr        string        `mapstructure:"http_addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"oneof=json text"`

	// Snapshot publishing is enabled when both brokers and a topic are set.
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	// Mapbox geocoding, used by `cities geocode` only.
	MapboxToken     string        `mapstructure:"mapbox_token"`
	MapboxTimeout   time.Duration `mapstructure:"mapbox_timeout" validate:"gt=0"`
	MapboxCacheSize int           `mapstructure:"mapbox_cache_size" validate:"min=1"`
}

// KafkaEnabled reports whether snapshots should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// Options control where Load looks for settings.
type Options struct {
	// File is an explicit config file; a missing explicit file is an error.
	File string
	// Flags are bound by name with dashes mapped to underscores, so
	// --output-dir overrides output_dir. Only flags the user set take effect.
	Flags *pflag.FlagSet
}

var defaults = map[string]any{
	"input":             "",
	"input_format":      "",
	"output_dir":        "output",
	"cities_file":       "",
	"from":              "",
	"to":                "",
	"workers":           4,
	"precompress":       false,
	"echarts_mirrors":   render.DefaultEchartsMirrors,
	"china_map_mirrors": render.DefaultChinaMapMirrors,
	"http_addr":         ":8080",
	"shutdown_timeout":  "10s",
	"log_level":         "info",
	"log_format":        "text",
	"kafka_brokers":     []string{},
	"kafka_topic":       "",
	"mapbox_token":      "",
	"mapbox_timeout":    "5s",
	"mapbox_cache_size": 1000,
}

// Load reads .env, the config file, the environment and flags, then
// validates the result.
func Load(opts Options) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigFile(DefaultFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("read config %s: %w", DefaultFile, err)
		}
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := defaults[key]; !known || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.EchartsMirrors = compact(cfg.EchartsMirrors)
	cfg.ChinaMapMirrors = compact(cfg.ChinaMapMirrors)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.From != "" && cfg.To != "" && cfg.To < cfg.From {
		return nil, errors.New("invalid config: to is before from")
	}
	return &cfg, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

// compact trims entries and drops empty ones, so "a, b," from the
// environment becomes [a b].
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
