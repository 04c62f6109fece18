package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = ".protopool/config.yaml"

// Config is the CLI configuration. Each layer (defaults, config file,
// environment, flags) is a Config of its own, merged with Apply.
type Config struct {
	DB          null.String `json:"db" envconfig:"PROTOPOOL_DB"`
	ProtoPaths  null.String `json:"proto_paths" envconfig:"PROTOPOOL_PROTO_PATHS"`
	ReflectAddr null.String `json:"reflect_addr" envconfig:"PROTOPOOL_REFLECT_ADDR"`
	LogLevel    null.String `json:"log_level" envconfig:"PROTOPOOL_LOG_LEVEL"`
	LogFormat   null.String `json:"log_format" envconfig:"PROTOPOOL_LOG_FORMAT"`
	Format      null.String `json:"format" envconfig:"PROTOPOOL_FORMAT"`
	Workers     null.Int    `json:"workers" envconfig:"PROTOPOOL_WORKERS"`
}

// defaultConfig holds the values used when no layer sets a key.
func defaultConfig() Config {
	return Config{
		LogLevel:  null.NewString("warn", false),
		LogFormat: null.NewString("text", false),
		Format:    null.NewString("json", false),
	}
}

// Apply overwrites the receiver's values with every value cfg sets.
func (c Config) Apply(cfg Config) Config {
	if cfg.DB.Valid && cfg.DB.String != "" {
		c.DB = cfg.DB
	}
	if cfg.ProtoPaths.Valid {
		c.ProtoPaths = cfg.ProtoPaths
	}
	if cfg.ReflectAddr.Valid {
		c.ReflectAddr = cfg.ReflectAddr
	}
	if cfg.LogLevel.Valid && cfg.LogLevel.String != "" {
		c.LogLevel = cfg.LogLevel
	}
	if cfg.LogFormat.Valid && cfg.LogFormat.String != "" {
		c.LogFormat = cfg.LogFormat
	}
	if cfg.Format.Valid && cfg.Format.String != "" {
		c.Format = cfg.Format
	}
	if cfg.Workers.Valid {
		c.Workers = cfg.Workers
	}
	return c
}

// protoPaths splits the comma-separated import path list.
func (c Config) protoPaths() []string {
	if !c.ProtoPaths.Valid {
		return nil
	}
	var out []string
	for _, p := range strings.Split(c.ProtoPaths.String, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// fileConfig is the on-disk YAML shape. Absent keys stay nil.
type fileConfig struct {
	DB          *string  `yaml:"db"`
	ProtoPaths  []string `yaml:"proto_paths"`
	ReflectAddr *string  `yaml:"reflect_addr"`
	LogLevel    *string  `yaml:"log_level"`
	LogFormat   *string  `yaml:"log_format"`
	Format      *string  `yaml:"format"`
	Workers     *int64   `yaml:"workers"`
}

func (f fileConfig) toConfig() Config {
	cfg := Config{
		DB:          null.StringFromPtr(f.DB),
		ReflectAddr: null.StringFromPtr(f.ReflectAddr),
		LogLevel:    null.StringFromPtr(f.LogLevel),
		LogFormat:   null.StringFromPtr(f.LogFormat),
		Format:      null.StringFromPtr(f.Format),
		Workers:     null.IntFromPtr(f.Workers),
	}
	if f.ProtoPaths != nil {
		cfg.ProtoPaths = null.StringFrom(strings.Join(f.ProtoPaths, ","))
	}
	return cfg
}

// readConfigFile loads the YAML config at path. A missing file is an empty
// Config unless required is set.
func readConfigFile(path string, required bool) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return fc.toConfig(), nil
}

// readEnvConfig loads PROTOPOOL_* variables through lookup.
func readEnvConfig(lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}

// readFlagConfig picks up only the flags the user actually set.
func readFlagConfig(flags *pflag.FlagSet) Config {
	var cfg Config
	str := func(name string) null.String {
		if !flags.Changed(name) {
			return null.String{}
		}
		v, _ := flags.GetString(name)
		return null.StringFrom(v)
	}
	cfg.DB = str("db")
	cfg.ReflectAddr = str("reflect-addr")
	cfg.LogLevel = str("log-level")
	cfg.LogFormat = str("log-format")
	cfg.Format = str("format")
	if flags.Changed("proto-path") {
		v, _ := flags.GetStringSlice("proto-path")
		cfg.ProtoPaths = null.StringFrom(strings.Join(v, ","))
	}
	if flags.Changed("workers") {
		v, _ := flags.GetInt("workers")
		cfg.Workers = null.IntFrom(int64(v))
	}
	return cfg
}

// loadConfig merges defaults < config file < environment < flags. The config
// file is looked up under repoRoot unless --config names one.
func loadConfig(flags *pflag.FlagSet, repoRoot string, lookup func(string) (string, bool)) (Config, error) {
	path := filepath.Join(repoRoot, defaultConfigPath)
	required := flags.Changed("config")
	if required {
		path, _ = flags.GetString("config")
	}
	fileCfg, err := readConfigFile(path, required)
	if err != nil {
		return Config{}, err
	}
	envCfg, err := readEnvConfig(lookup)
	if err != nil {
		return Config{}, err
	}
	cfg := defaultConfig().Apply(fileCfg).Apply(envCfg).Apply(readFlagConfig(flags))
	if err := validateFormat(cfg.Format.String); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
