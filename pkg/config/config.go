// Package config loads host configuration from plantarium.yaml and
// PLANTARIUM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/chazu/plantarium/pkg/expr"
	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

// EnvPrefix prefixes every environment override, e.g. PLANTARIUM_LOG_LEVEL.
const EnvPrefix = "PLANTARIUM"

// Config is the full host configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Geometry GeometryConfig `mapstructure:"geometry"`
	History  HistoryConfig  `mapstructure:"history"`
	Save     SaveConfig     `mapstructure:"save"`
	Expr     ExprConfig     `mapstructure:"expr"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

type GeometryConfig struct {
	ResX        int `mapstructure:"res_x" validate:"gte=3,lte=256"`
	SphereCells int `mapstructure:"sphere_cells" validate:"gte=4,lte=128"`
}

type HistoryConfig struct {
	Delay time.Duration `mapstructure:"delay" validate:"gt=0"`
}

type SaveConfig struct {
	Delay time.Duration `mapstructure:"delay" validate:"gt=0"`
}

type ExprConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// Disabled turns expression parameters off entirely.
	Disabled bool `mapstructure:"disabled"`
}

type StoreConfig struct {
	Path     string `mapstructure:"path" validate:"required_without=InMemory"`
	InMemory bool   `mapstructure:"in_memory"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

// Settings returns the node settings the configuration describes.
func (c *Config) Settings() nodesystem.Settings {
	return nodesystem.Settings{ResX: c.Geometry.ResX, SphereCells: c.Geometry.SphereCells}
}

// SystemOptions returns node system options for the configuration. The
// caller adds a logger and node types.
func (c *Config) SystemOptions() nodesystem.Options {
	return nodesystem.Options{
		Settings:           c.Settings(),
		HistoryDelay:       c.History.Delay,
		SaveDelay:          c.Save.Delay,
		ExprTimeout:        c.Expr.Timeout,
		DisableExpressions: c.Expr.Disabled,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("geometry.res_x", nodesystem.DefaultResX)
	v.SetDefault("geometry.sphere_cells", geometry.DefaultSphereCells)
	v.SetDefault("history.delay", nodesystem.DefaultHistoryDelay)
	v.SetDefault("save.delay", nodesystem.DefaultSaveDelay)
	v.SetDefault("expr.timeout", expr.DefaultTimeout)
	v.SetDefault("expr.disabled", false)
	v.SetDefault("store.path", "plantarium-data")
	v.SetDefault("store.in_memory", false)
	v.SetDefault("server.addr", "localhost:8080")
}

// New returns a viper instance with defaults, env overrides and the config
// search path set up. file, when non-empty, names an explicit config file.
func New(file string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("plantarium")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. A missing default config file is not an
// error; a missing explicit file is.
func Load(file string) (*Config, error) {
	return FromViper(New(file))
}

// FromViper reads, decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks every field and joins the failures into one error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(e.Namespace(), "Config."))
	switch e.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be positive", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
