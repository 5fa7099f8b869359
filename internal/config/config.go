package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

const appName = "loreterm"

// DefaultArchiveTimeout bounds each archive request when archive.timeout
// is empty or zero.
const DefaultArchiveTimeout = 30 * time.Second

// Config holds all loreterm configuration.
type Config struct {
	// DefaultTargets are applied to when no target is named. Empty means
	// every configured target.
	DefaultTargets []string                `toml:"default_targets" json:"default_targets"`
	Archive        ArchiveConfig           `toml:"archive" json:"archive"`
	Cache          CacheConfig             `toml:"cache" json:"cache"`
	Reply          ReplyConfig             `toml:"reply" json:"reply"`
	Apply          ApplyConfig             `toml:"apply" json:"apply"`
	UI             UIConfig                `toml:"ui" json:"ui"`
	Log            LogConfig               `toml:"log" json:"log"`
	Targets        map[string]TargetConfig `toml:"targets" json:"targets"`
}

// ArchiveConfig holds the lore connection settings.
type ArchiveConfig struct {
	BaseURL          string `toml:"base_url" json:"base_url"`
	Timeout          string `toml:"timeout" json:"timeout"`
	Retries          int    `toml:"retries" json:"retries"`
	DefaultListLimit int    `toml:"default_list_limit" json:"default_list_limit"`
}

// CacheConfig holds the garbage collection policy.
type CacheConfig struct {
	MaxEntries int    `toml:"max_entries" json:"max_entries"`
	MaxAge     string `toml:"max_age" json:"max_age"`
}

// ReplyConfig holds reply settings. An empty Identity falls back to git's
// user.name and user.email.
type ReplyConfig struct {
	Identity      string   `toml:"identity" json:"identity"`
	DryRun        bool     `toml:"dry_run" json:"dry_run"`
	SendEmailArgs []string `toml:"send_email_args" json:"send_email_args"`
}

type ApplyConfig struct {
	Parallelism int    `toml:"parallelism" json:"parallelism"`
	Git         string `toml:"git" json:"git"`
}

// UIConfig holds TUI display settings.
type UIConfig struct {
	PageSize    int    `toml:"page_size" json:"page_size"`
	DefaultList string `toml:"default_list" json:"default_list"`
}

type LogConfig struct {
	Level string `toml:"level" json:"level"`
}

// TargetConfig is one local tree patches can be applied to.
type TargetConfig struct {
	Path   string `toml:"path" json:"path"`
	Branch string `toml:"branch,omitempty" json:"branch,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Archive: ArchiveConfig{
			BaseURL:          "https://lore.kernel.org",
			Timeout:          "30s",
			Retries:          2,
			DefaultListLimit: 50,
		},
		Cache: CacheConfig{
			MaxEntries: 2000,
			MaxAge:     "720h",
		},
		Reply: ReplyConfig{
			DryRun: true,
		},
		Apply: ApplyConfig{
			Parallelism: 1,
			Git:         "git",
		},
		UI: UIConfig{
			PageSize: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads config from path. If path is empty or the file does not
// exist, returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed in the TOML types.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Archive.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Cache.MaxAgeDuration(); err != nil {
		errs = append(errs, err)
	}
	if c.Archive.Retries < 0 {
		errs = append(errs, fmt.Errorf("archive.retries must not be negative"))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must not be negative"))
	}
	if c.Apply.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("apply.parallelism must not be negative"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.DefaultTargets {
		if _, ok := c.Targets[name]; !ok {
			errs = append(errs, fmt.Errorf("default target %q is not defined under [targets]", name))
		}
	}
	return errors.Join(errs...)
}

// TimeoutDuration parses archive.timeout. Empty or zero means
// DefaultArchiveTimeout; requests are never unbounded.
func (a ArchiveConfig) TimeoutDuration() (time.Duration, error) {
	d, err := parseDuration("archive.timeout", a.Timeout)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return DefaultArchiveTimeout, nil
	}
	return d, nil
}

// MaxAgeDuration parses cache.max_age. Empty means no age limit.
func (c CacheConfig) MaxAgeDuration() (time.Duration, error) {
	return parseDuration("cache.max_age", c.MaxAge)
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Target returns the named target. Targets without a path are returned
// too; the apply action reports them as not configured.
func (c *Config) Target(name string) (domain.TreeTarget, bool) {
	t, ok := c.Targets[name]
	if !ok {
		return domain.TreeTarget{}, false
	}
	return domain.TreeTarget{Name: name, Path: expandHome(t.Path), Branch: t.Branch}, true
}

// AllTargets returns the default targets if any are set, otherwise every
// configured target sorted by name.
func (c *Config) AllTargets() []domain.TreeTarget {
	names := c.DefaultTargets
	if len(names) == 0 {
		names = c.TargetNames()
	}
	out := make([]domain.TreeTarget, 0, len(names))
	for _, name := range names {
		if t, ok := c.Target(name); ok {
			out = append(out, t)
		}
	}
	return out
}

// TargetNames returns every configured target name, sorted.
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dump renders c as TOML.
func (c *Config) Dump() ([]byte, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return []byte(b.String()), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ConfigDir returns the loreterm config directory path.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the loreterm data directory path. It holds the
// bookmark and review files and the log.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// CacheDir returns the loreterm cache directory path.
func CacheDir() string {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// DefaultPath returns the config file path used when none is given.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

func xdgDir(env, fallback string) string {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, fallback, appName)
}
