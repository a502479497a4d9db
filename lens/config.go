package lens

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"

	CompressionNone   = "none"
	CompressionZstd   = "zstd"
	CompressionSnappy = "snappy"

	// DefaultEndpoint is the base URL of a debug server on the local machine.
	DefaultEndpoint = "http://127.0.0.1:8448"
	// ConfigEnvPrefix is the prefix of environment variables read by LoadConfig.
	ConfigEnvPrefix = "LENS"
)

// Config holds the client settings. It is a plain value owned by the caller and threaded into
// the Client, there is no package level configuration.
type Config struct {
	// Enabled turns every client call into a no-op when false.
	Enabled bool
	// Endpoint is the base URL of the debug server.
	Endpoint string
	// Origin identifies the producing project, detected from go.mod when empty.
	Origin string
	// Environment tags the execution environment, defaults to GOOS/GOARCH.
	Environment string
	// Async sends envelopes without waiting for delivery.
	Async bool
	// Timeout bounds a single delivery.
	Timeout time.Duration
	// Codec selects the wire encoding, CodecJSON or CodecMsgpack.
	Codec string
	// Compression selects the content encoding, CompressionNone, CompressionZstd or CompressionSnappy.
	Compression string
	// SpoolDir stores undelivered envelopes on disk, in memory when empty.
	SpoolDir string
	// CacheMB is the memory budget of the on disk spool.
	CacheMB int
	// CaptureFile writes envelopes as JSON lines to this file instead of posting them.
	CaptureFile string
	// MaxDepth is the number of levels expanded by the inspector.
	MaxDepth int
	// MaxStringLength is the number of characters displayed before truncation.
	MaxStringLength int
	// MaxConcurrentSends bounds in-flight asynchronous deliveries.
	MaxConcurrentSends int
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		Endpoint:           DefaultEndpoint,
		Timeout:            10 * time.Second,
		Codec:              CodecJSON,
		Compression:        CompressionNone,
		CacheMB:            64,
		MaxDepth:           DefaultMaxDepth,
		MaxStringLength:    DefaultMaxStringLength,
		MaxConcurrentSends: 4,
	}
}

// LoadConfig builds a Config from defaults, an optional config file (any format viper supports),
// and LENS_* environment variables, in increasing priority. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ReadConfig works like LoadConfig without validating, so callers can apply further overrides first.
func ReadConfig(path string) (Config, error) {
	def := DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix(ConfigEnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("enabled", def.Enabled)
	v.SetDefault("endpoint", def.Endpoint)
	v.SetDefault("origin", def.Origin)
	v.SetDefault("environment", def.Environment)
	v.SetDefault("async", def.Async)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("codec", def.Codec)
	v.SetDefault("compression", def.Compression)
	v.SetDefault("spool_dir", def.SpoolDir)
	v.SetDefault("cache_mb", def.CacheMB)
	v.SetDefault("capture_file", def.CaptureFile)
	v.SetDefault("max_depth", def.MaxDepth)
	v.SetDefault("max_string_length", def.MaxStringLength)
	v.SetDefault("max_concurrent_sends", def.MaxConcurrentSends)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s failed: %w", path, err)
		}
	}

	cfg := Config{
		Enabled:            v.GetBool("enabled"),
		Endpoint:           v.GetString("endpoint"),
		Origin:             v.GetString("origin"),
		Environment:        v.GetString("environment"),
		Async:              v.GetBool("async"),
		Timeout:            v.GetDuration("timeout"),
		Codec:              v.GetString("codec"),
		Compression:        v.GetString("compression"),
		SpoolDir:           v.GetString("spool_dir"),
		CacheMB:            v.GetInt("cache_mb"),
		CaptureFile:        v.GetString("capture_file"),
		MaxDepth:           v.GetInt("max_depth"),
		MaxStringLength:    v.GetInt("max_string_length"),
		MaxConcurrentSends: v.GetInt("max_concurrent_sends"),
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Codec {
	case CodecJSON, CodecMsgpack:
	default:
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Codec))
	}
	switch c.Compression {
	case "", CompressionNone, CompressionZstd, CompressionSnappy:
	default:
		errs = append(errs, fmt.Errorf("unknown compression %q", c.Compression))
	}
	if c.Endpoint == "" && c.CaptureFile == "" {
		errs = append(errs, errors.New("endpoint or capture file must be set"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.MaxDepth <= 0 {
		errs = append(errs, errors.New("max depth must be positive"))
	}
	if c.MaxStringLength <= 0 {
		errs = append(errs, errors.New("max string length must be positive"))
	}
	if c.SpoolDir != "" && c.CacheMB <= 0 {
		errs = append(errs, errors.New("cache size must be positive for the disk spool"))
	}
	if c.Async && c.MaxConcurrentSends <= 0 {
		errs = append(errs, errors.New("max concurrent sends must be positive for async delivery"))
	}
	return errors.Join(errs...)
}

// inspectorOptions maps the config limits to inspector options.
func (c Config) inspectorOptions() Options {
	return Options{
		MaxDepth:        c.MaxDepth,
		MaxStringLength: c.MaxStringLength,
		LayoutCacheSize: 1024,
	}
}
