// Package config loads and validates seedindex configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultUserAgent is sent with every fetch unless fetch.user_agent overrides it.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Paths       PathsConfig       `mapstructure:"paths"`
	Seeds       SeedsConfig       `mapstructure:"seeds"`
	Index       IndexConfig       `mapstructure:"index"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// FetchConfig governs the collection stage.
type FetchConfig struct {
	MaxWorkers     int    `mapstructure:"max_workers"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// PathsConfig locates every artifact the pipeline reads or writes.
type PathsConfig struct {
	OutputDir     string `mapstructure:"output_dir"`
	LogPath       string `mapstructure:"log_path"`
	IndexDir      string `mapstructure:"index_dir"`
	ReportDir     string `mapstructure:"report_dir"`
	ErrorListPath string `mapstructure:"error_list_path"`
	ArchiveDir    string `mapstructure:"archive_dir"`
	RunLogDir     string `mapstructure:"run_log_dir"`
}

// SeedsConfig names the delimited seed files and their URL column.
type SeedsConfig struct {
	Files     []string `mapstructure:"files"`
	URLColumn string   `mapstructure:"url_column"`
}

// IndexConfig controls text normalization and index persistence.
type IndexConfig struct {
	Language      string `mapstructure:"language"`
	StopwordsPath string `mapstructure:"stopwords_path"`
	Format        string `mapstructure:"format"`
	Shards        int    `mapstructure:"shards"`
}

// DiagnosticsConfig toggles the optional HTTP diagnostics listener.
type DiagnosticsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is applied to the environment first when present. With an empty
// path, a seedindex.{yaml,json,toml} in the working directory or
// $HOME/.seedindex is used if one exists.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SEEDINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("seedindex")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.seedindex")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.max_workers", 15)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.max_body_bytes", 10*1024*1024)
	v.SetDefault("paths.output_dir", "html_pages_temp")
	v.SetDefault("paths.log_path", "logs/collection_log.csv")
	v.SetDefault("paths.index_dir", "logs")
	v.SetDefault("paths.report_dir", ".")
	v.SetDefault("paths.error_list_path", "logs/error_log.txt")
	v.SetDefault("paths.archive_dir", "coletas_compactadas")
	v.SetDefault("paths.run_log_dir", "")
	v.SetDefault("seeds.files", []string{})
	v.SetDefault("seeds.url_column", "URL")
	v.SetDefault("index.language", "portuguese")
	v.SetDefault("index.stopwords_path", "")
	v.SetDefault("index.format", "json")
	v.SetDefault("index.shards", 1)
	v.SetDefault("diagnostics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Fetch.MaxWorkers <= 0 {
		return fmt.Errorf("fetch.max_workers must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.max_body_bytes must be >= 0")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return fmt.Errorf("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogPath) == "" {
		return fmt.Errorf("paths.log_path must be set")
	}
	if strings.TrimSpace(c.Seeds.URLColumn) == "" {
		return fmt.Errorf("seeds.url_column must be set")
	}
	switch c.Index.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("index.format must be json or yaml, got %q", c.Index.Format)
	}
	if c.Index.Shards <= 0 {
		return fmt.Errorf("index.shards must be > 0")
	}
	return nil
}

// FetchTimeout converts fetch.timeout_seconds into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
