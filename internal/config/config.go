// Package config loads and validates warm run configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/cache-warmer/internal/fetcher/httpfetch"
)

// Default user agents, adapted from Google's crawler documentation.
const (
	DesktopUserAgent = "Mozilla/5.0 (compatible; Googlebot/cache_warmer; +https://example.com)"
	MobileUserAgent  = "Mozilla/5.0 (Linux; Android 6.0.1; Nexus 5X Build/MMB29P) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/41.0.2272.96 Mobile Safari/537.36 (compatible; Googlebot/cache_warmer; +https://example.com)"
)

// BypassCookie asks the cache layer to refresh instead of serving from cache.
var BypassCookie = httpfetch.Cookie{Name: "cacheupdate", Value: "true"}

// ErrInvalidConfig wraps every configuration failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Output formats accepted by Format.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Config is the immutable snapshot shared by every worker of a run.
type Config struct {
	Threads       int           `mapstructure:"threads"`
	DelayMs       int           `mapstructure:"delay"`
	BaseURI       string        `mapstructure:"base_uri"`
	URIFile       string        `mapstructure:"uri_file"`
	UserAgent     string        `mapstructure:"user_agent"`
	Mobile        bool          `mapstructure:"mobile"`
	KeepAlive     bool          `mapstructure:"keep_alive"`
	Compression   bool          `mapstructure:"compression"`
	Quiet         bool          `mapstructure:"quiet"`
	ProgressBar   bool          `mapstructure:"progress_bar"`
	CaptchaString string        `mapstructure:"captcha_string"`
	Cookies       []string      `mapstructure:"cookies"`
	Bypass        bool          `mapstructure:"bypass"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Format        string        `mapstructure:"format"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
	Logging       LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// New returns a Viper instance with defaults and environment overrides
// (CACHE_WARMER_THREADS, CACHE_WARMER_LOGGING_LEVEL, ...).
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CACHE_WARMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("threads", 4)
	v.SetDefault("delay", 0)
	v.SetDefault("base_uri", "")
	v.SetDefault("uri_file", "")
	v.SetDefault("user_agent", "")
	v.SetDefault("mobile", false)
	v.SetDefault("keep_alive", true)
	v.SetDefault("compression", true)
	v.SetDefault("quiet", false)
	v.SetDefault("progress_bar", true)
	v.SetDefault("captcha_string", "")
	v.SetDefault("cookies", []string{})
	v.SetDefault("bypass", false)
	v.SetDefault("timeout", "0s")
	v.SetDefault("format", FormatText)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Load reads the optional config file into v and returns a validated Config.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %w", ErrInvalidConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Threads <= 0 {
		return fmt.Errorf("%w: threads must be > 0", ErrInvalidConfig)
	}
	if c.DelayMs < 0 {
		return fmt.Errorf("%w: delay must be >= 0", ErrInvalidConfig)
	}
	if c.URIFile == "" {
		return fmt.Errorf("%w: uri_file is required", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0", ErrInvalidConfig)
	}
	switch c.Format {
	case FormatText, FormatJSON, FormatMarkdown:
	default:
		return fmt.Errorf("%w: format must be one of text, json, markdown", ErrInvalidConfig)
	}
	if _, err := ParseCookies(c.Cookies); err != nil {
		return err
	}
	return nil
}

// ParseCookies splits KEY=VALUE pairs on the first '='.
func ParseCookies(raw []string) ([]httpfetch.Cookie, error) {
	cookies := make([]httpfetch.Cookie, 0, len(raw))
	for _, pair := range raw {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: invalid cookie %q, expected key=val", ErrInvalidConfig, pair)
		}
		cookies = append(cookies, httpfetch.Cookie{Name: name, Value: value})
	}
	return cookies, nil
}

// RequestCookies returns the configured cookies plus the bypass cookie when
// requested. Validate has already rejected malformed pairs.
func (c Config) RequestCookies() []httpfetch.Cookie {
	cookies, _ := ParseCookies(c.Cookies)
	if c.Bypass {
		cookies = append(cookies, BypassCookie)
	}
	return cookies
}

// ResolvedUserAgent picks the explicit user agent or the preset.
func (c Config) ResolvedUserAgent() string {
	switch {
	case c.UserAgent != "":
		return c.UserAgent
	case c.Mobile:
		return MobileUserAgent
	default:
		return DesktopUserAgent
	}
}

// Delay is the per-worker pause after each request.
func (c Config) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// ShowProgress reports whether the progress bar should be drawn; quiet mode
// always suppresses it.
func (c Config) ShowProgress() bool {
	return c.ProgressBar && !c.Quiet
}

// FetcherConfig derives the transport settings.
func (c Config) FetcherConfig() httpfetch.Config {
	return httpfetch.Config{
		UserAgent:   c.ResolvedUserAgent(),
		Cookies:     c.RequestCookies(),
		KeepAlive:   c.KeepAlive,
		Compression: c.Compression,
		Timeout:     c.Timeout,
	}
}
