// Package config provides Viper-based configuration loading for the dungeon
// compiler tools.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Content sources.
const (
	SourceFiles    = "files"
	SourcePostgres = "postgres"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Validate checks the database settings. Config.Validate calls it only when
// content is read from postgres; tools that always need a database call it
// directly.
//
// Postcondition: Returns nil if valid, or an error describing all violations.
func (d DatabaseConfig) Validate() error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when set, additionally writes logs to a rotating file.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ContentConfig locates the layered dungeon content.
type ContentConfig struct {
	// Root is the directory holding one directory per layer.
	Root string `mapstructure:"root"`
	// Base is the base layer, always applied first.
	Base string `mapstructure:"base"`
	// Mods lists overlay layers in application order.
	Mods []string `mapstructure:"mods"`
	// Source is "files" or "postgres".
	Source string `mapstructure:"source"`
	// ScriptsDir, when set, holds Lua helpers loaded before compilation.
	ScriptsDir string `mapstructure:"scripts_dir"`
	// AssetsDir is the root for background image lookups.
	AssetsDir string `mapstructure:"assets_dir"`
}

// Layers returns the base layer followed by the mods.
//
// Postcondition: The first element is always Base.
func (c ContentConfig) Layers() []string {
	return append([]string{c.Base}, c.Mods...)
}

// CompilerConfig tunes dungeon compilation.
type CompilerConfig struct {
	RoomIconSize           float64 `mapstructure:"room_icon_size"`
	ImageScale             float64 `mapstructure:"image_scale"`
	ScriptInstructionLimit int     `mapstructure:"script_instruction_limit"`
	// Workers bounds concurrent compilations when compiling every dungeon.
	Workers int `mapstructure:"workers"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Content  ContentConfig  `mapstructure:"content"`
	Compiler CompilerConfig `mapstructure:"compiler"`
	Database DatabaseConfig `mapstructure:"database"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCompiler(c.Compiler); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Content.Source == SourcePostgres {
		if err := c.Database.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" && (l.MaxSizeMB < 1 || l.MaxBackups < 0 || l.MaxAgeDays < 0) {
		return fmt.Errorf("logging rotation needs max_size_mb >= 1 and non-negative max_backups/max_age_days, got %d/%d/%d",
			l.MaxSizeMB, l.MaxBackups, l.MaxAgeDays)
	}
	return nil
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.Source != SourceFiles && c.Source != SourcePostgres {
		errs = append(errs, fmt.Sprintf("content.source must be one of [files, postgres], got %q", c.Source))
	}
	if c.Source == SourceFiles && c.Root == "" {
		errs = append(errs, "content.root must not be empty")
	}
	if c.Base == "" {
		errs = append(errs, "content.base must not be empty")
	}
	seen := map[string]bool{c.Base: true}
	for _, m := range c.Mods {
		if m == "" {
			errs = append(errs, "content.mods must not contain empty names")
			continue
		}
		if seen[m] {
			errs = append(errs, fmt.Sprintf("content.mods lists layer %q twice", m))
		}
		seen[m] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateCompiler(c CompilerConfig) error {
	var errs []string
	if c.RoomIconSize <= 0 {
		errs = append(errs, fmt.Sprintf("compiler.room_icon_size must be > 0, got %v", c.RoomIconSize))
	}
	if c.ImageScale <= 0 {
		errs = append(errs, fmt.Sprintf("compiler.image_scale must be > 0, got %v", c.ImageScale))
	}
	if c.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("compiler.script_instruction_limit must be >= 0, got %d", c.ScriptInstructionLimit))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Sprintf("compiler.workers must be >= 1, got %d", c.Workers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with DUNGEON_ prefix
	v.SetEnvPrefix("DUNGEON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewViper returns a Viper instance carrying the defaults, for callers that
// build configuration without a file.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("content.root", "content")
	v.SetDefault("content.base", "core")
	v.SetDefault("content.mods", []string{})
	v.SetDefault("content.source", SourceFiles)
	v.SetDefault("content.assets_dir", "assets")

	v.SetDefault("compiler.room_icon_size", 64)
	v.SetDefault("compiler.image_scale", 1.0)
	v.SetDefault("compiler.script_instruction_limit", 100000)
	v.SetDefault("compiler.workers", 4)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "dungeon")
	v.SetDefault("database.password", "dungeon")
	v.SetDefault("database.name", "dungeon")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
}
