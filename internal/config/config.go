package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	LogLevel  string          `mapstructure:"log_level"`
}

// PathsConfig locates the model assets. When ManifestPath names an existing
// manifest, its model and vocabulary entries take precedence over ModelPath
// and VocabPath.
type PathsConfig struct {
	ManifestPath string `mapstructure:"manifest_path"`
	ModelPath    string `mapstructure:"model_path"`
	VocabPath    string `mapstructure:"vocab_path"`
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  int    `mapstructure:"ort_api_version"`
}

type AnalyzerConfig struct {
	MaxLen     int    `mapstructure:"max_len"`
	NumClasses int    `mapstructure:"num_classes"`
	OutputName string `mapstructure:"output_name"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	Tracing bool `mapstructure:"tracing"`
	Metrics bool `mapstructure:"metrics"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ManifestPath: "models/manifest.json",
			ModelPath:    "models/bert_28.onnx",
			VocabPath:    "models/vocab_bert.txt",
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
		},
		Analyzer: AnalyzerConfig{
			MaxLen:     64,
			NumClasses: 28,
			OutputName: "",
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MaxTextBytes:    4096,
			RequestTimeout:  30,
			ShutdownTimeout: 10,
		},
		Telemetry: TelemetryConfig{
			Tracing: false,
			Metrics: true,
		},
		LogLevel: "info",
	}
}

// Validate rejects settings the analyzer or server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Analyzer.MaxLen < 2 {
		errs = append(errs, fmt.Errorf("analyzer.max_len must be at least 2, got %d", c.Analyzer.MaxLen))
	}

	if c.Analyzer.NumClasses < 1 {
		errs = append(errs, fmt.Errorf("analyzer.num_classes must be positive, got %d", c.Analyzer.NumClasses))
	}

	if c.Runtime.ORTAPIVersion < 0 {
		errs = append(errs, fmt.Errorf("runtime.ort_api_version must not be negative, got %d", c.Runtime.ORTAPIVersion))
	}

	if c.Server.MaxTextBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_text_bytes must not be negative, got %d", c.Server.MaxTextBytes))
	}

	if c.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must not be negative, got %d", c.Server.RequestTimeout))
	}

	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative, got %d", c.Server.ShutdownTimeout))
	}

	return errors.Join(errs...)
}

// flagKeys binds each command-line flag to its nested config key.
var flagKeys = []struct{ flag, key string }{
	{"paths-manifest-path", "paths.manifest_path"},
	{"paths-model-path", "paths.model_path"},
	{"paths-vocab-path", "paths.vocab_path"},
	{"runtime-ort-library-path", "runtime.ort_library_path"},
	{"runtime-ort-version", "runtime.ort_version"},
	{"runtime-ort-api-version", "runtime.ort_api_version"},
	{"analyzer-max-len", "analyzer.max_len"},
	{"analyzer-num-classes", "analyzer.num_classes"},
	{"analyzer-output-name", "analyzer.output_name"},
	{"server-listen-addr", "server.listen_addr"},
	{"server-max-text-bytes", "server.max_text_bytes"},
	{"server-request-timeout", "server.request_timeout"},
	{"server-shutdown-timeout", "server.shutdown_timeout"},
	{"telemetry-tracing", "telemetry.tracing"},
	{"telemetry-metrics", "telemetry.metrics"},
	{"log-level", "log_level"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-manifest-path", defaults.Paths.ManifestPath, "Path to model manifest.json")
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Path to ONNX classifier (used when no manifest is found)")
	fs.String("paths-vocab-path", defaults.Paths.VocabPath, "Path to vocabulary file (used when no manifest is found)")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Int("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.Int("analyzer-max-len", defaults.Analyzer.MaxLen, "Encoded sequence length")
	fs.Int("analyzer-num-classes", defaults.Analyzer.NumClasses, "Number of classifier outputs")
	fs.String("analyzer-output-name", defaults.Analyzer.OutputName, "Graph output holding the logits (empty: single output)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum text size in bytes per request (0 = unlimited)")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds (0 = none)")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Bool("telemetry-tracing", defaults.Telemetry.Tracing, "Export trace spans to stdout")
	fs.Bool("telemetry-metrics", defaults.Telemetry.Metrics, "Expose Prometheus metrics on /metrics")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("EKMAN")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "EKMAN_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("ekman")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("%s: %w", fk.flag, err)
		}
	}

	// --ort-lib wins over --runtime-ort-library-path only when set.
	if f := fs.Lookup("ort-lib"); f != nil && f.Changed {
		if err := v.BindPFlag("runtime.ort_library_path", f); err != nil {
			return fmt.Errorf("ort-lib: %w", err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.manifest_path", c.Paths.ManifestPath)
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.vocab_path", c.Paths.VocabPath)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("analyzer.max_len", c.Analyzer.MaxLen)
	v.SetDefault("analyzer.num_classes", c.Analyzer.NumClasses)
	v.SetDefault("analyzer.output_name", c.Analyzer.OutputName)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("telemetry.tracing", c.Telemetry.Tracing)
	v.SetDefault("telemetry.metrics", c.Telemetry.Metrics)
	v.SetDefault("log_level", c.LogLevel)
}
