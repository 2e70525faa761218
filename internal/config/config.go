// Package config loads process configuration from defaults, an optional
// YAML file, and CINEMATCH_* environment variables, in that precedence
// order (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigFile is loaded when present and no override is given via
// the CINEMATCH_CONFIG environment variable.
const DefaultConfigFile = "cinematch.yaml"

// envPrefix namespaces all environment overrides.
const envPrefix = "CINEMATCH_"

// envKeys maps recognized environment variable suffixes (after the
// CINEMATCH_ prefix) to config paths. Unknown variables are ignored.
var envKeys = map[string]string{
	"BUNDLE_PATH":        "bundle_path",
	"BASE_DIR":           "base_dir",
	"KEYWORD_ONLY":       "keyword_only",
	"MEMORY_CEILING_MB":  "memory_ceiling_mb",
	"REMOTE_ENCODER_URL": "remote_encoder_url",
	"CACHE_SIZE":         "cache_size",
	"WORKERS":            "workers",
	"LOG_LEVEL":          "log.level",
	"LOG_FORMAT":         "log.format",
}

// Log holds logging settings.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config holds all process settings.
type Config struct {
	// BundlePath is the embedding bundle to open. Relative paths resolve
	// against BaseDir first, then the working directory.
	BundlePath string `koanf:"bundle_path"`

	// BaseDir anchors relative bundle paths. Empty means working
	// directory only.
	BaseDir string `koanf:"base_dir"`

	// KeywordOnly disables semantic encoding entirely.
	KeywordOnly bool `koanf:"keyword_only"`

	// MemoryCeilingMB bounds projected process memory before a local
	// model load is allowed.
	MemoryCeilingMB int `koanf:"memory_ceiling_mb"`

	// RemoteEncoderURL points at a remote embedding service. Empty
	// disables remote encoding.
	RemoteEncoderURL string `koanf:"remote_encoder_url"`

	// CacheSize is the encoder's per-text vector cache capacity.
	CacheSize int `koanf:"cache_size"`

	// Workers is the similarity-scoring goroutine count. 0 means one per
	// CPU.
	Workers int `koanf:"workers"`

	Log Log `koanf:"log"`
}

func defaults() Config {
	return Config{
		BundlePath:      "movie_embeddings.db",
		MemoryCeilingMB: 512,
		CacheSize:       10000,
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the effective configuration. The config file path comes from
// CINEMATCH_CONFIG when set, otherwise DefaultConfigFile; a missing default
// file is not an error, a missing explicit file is.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}

	path := os.Getenv(envPrefix + "CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return envKeys[s[len(envPrefix):]]
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}
