// Package config holds scoringd runtime parameters: defaults, file loading,
// environment overlay and validation.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"scoringd/internal/llamaclient"
	"scoringd/internal/supervisor"
)

// Duration is a time.Duration that reads as "30s" style text in every
// supported file format.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds runtime parameters for the service.
type Config struct {
	Addr         string   `json:"addr" yaml:"addr" toml:"addr"`
	ModelPath    string   `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelDir     string   `json:"model_dir" yaml:"model_dir" toml:"model_dir"`
	TaskOverride string   `json:"task_override" yaml:"task_override" toml:"task_override"`
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	ScoreTimeout Duration `json:"score_timeout" yaml:"score_timeout" toml:"score_timeout"`

	Server ServerConfig `json:"server" yaml:"server" toml:"server"`
	Client ClientConfig `json:"client" yaml:"client" toml:"client"`
	Log    LogConfig    `json:"log" yaml:"log" toml:"log"`
	CORS   CORSConfig   `json:"cors" yaml:"cors" toml:"cors"`
	NATS   NATSConfig   `json:"nats" yaml:"nats" toml:"nats"`
	Store  StoreConfig  `json:"store" yaml:"store" toml:"store"`
}

// ServerConfig describes how the backing inference server is launched.
// A nil GPU defers to the CUDA_VISIBLE_DEVICES marker.
type ServerConfig struct {
	Host         string   `json:"host" yaml:"host" toml:"host"`
	Port         int      `json:"port" yaml:"port" toml:"port"`
	Bin          string   `json:"bin" yaml:"bin" toml:"bin"`
	BaseArgs     []string `json:"base_args" yaml:"base_args" toml:"base_args"`
	ExtraArgs    []string `json:"extra_args" yaml:"extra_args" toml:"extra_args"`
	GPU          *bool    `json:"gpu" yaml:"gpu" toml:"gpu"`
	ProbeTimeout Duration `json:"probe_timeout" yaml:"probe_timeout" toml:"probe_timeout"`
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	WaitTimeout  Duration `json:"wait_timeout" yaml:"wait_timeout" toml:"wait_timeout"`
}

type ClientConfig struct {
	RequestTimeout  Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	TokenizeTimeout Duration `json:"tokenize_timeout" yaml:"tokenize_timeout" toml:"tokenize_timeout"`
	ConnectTimeout  Duration `json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout"`
	EnableFanOut    bool     `json:"enable_fan_out" yaml:"enable_fan_out" toml:"enable_fan_out"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	Format     string `json:"format" yaml:"format" toml:"format"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress" toml:"compress"`
}

type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// NATSConfig enables the request/reply transport when URL is set.
type NATSConfig struct {
	URL         string `json:"url" yaml:"url" toml:"url"`
	Subject     string `json:"subject" yaml:"subject" toml:"subject"`
	Queue       string `json:"queue" yaml:"queue" toml:"queue"`
	Concurrency int    `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
}

// StoreConfig enables the SQLite stats log when Path is set.
type StoreConfig struct {
	Path string `json:"path" yaml:"path" toml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:         ":5001",
		MaxBodyBytes: 4 << 20,
		Server: ServerConfig{
			Host:         supervisor.DefaultHost,
			Port:         supervisor.DefaultPort,
			Bin:          supervisor.DefaultBin,
			BaseArgs:     append([]string(nil), supervisor.DefaultBaseArgs...),
			ProbeTimeout: Duration(supervisor.DefaultProbeTimeout),
			PollInterval: Duration(supervisor.DefaultPollInterval),
			WaitTimeout:  Duration(supervisor.DefaultWaitTimeout),
		},
		Client: ClientConfig{
			RequestTimeout:  Duration(llamaclient.DefaultRequestTimeout),
			TokenizeTimeout: Duration(llamaclient.DefaultTokenizeTimeout),
			ConnectTimeout:  Duration(llamaclient.DefaultConnectTimeout),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		CORS: CORSConfig{
			Origins: []string{"*"},
			Methods: []string{"GET", "POST", "OPTIONS"},
			Headers: []string{"Content-Type", "Authorization"},
		},
		NATS: NATSConfig{
			Subject:     "scoringd.score",
			Queue:       "scoringd",
			Concurrency: 4,
		},
	}
}

// ApplyEnv overlays environment variables. model_path and AZUREML_MODEL_DIR
// are published by the deployment before the process starts.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Addr, "SCORINGD_ADDR")
	set(&cfg.Log.Level, "SCORINGD_LOG_LEVEL")
	set(&cfg.TaskOverride, "SCORINGD_TASK_OVERRIDE")
	set(&cfg.ModelPath, "model_path")
	set(&cfg.ModelDir, "AZUREML_MODEL_DIR")
	set(&cfg.NATS.URL, "SCORINGD_NATS_URL")
	set(&cfg.Store.Path, "SCORINGD_DB_PATH")
	if cfg.Server.GPU == nil {
		gpu := supervisor.GPUVisible(getenv)
		cfg.Server.GPU = &gpu
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	for name, d := range map[string]Duration{
		"server.probe_timeout":    c.Server.ProbeTimeout,
		"server.poll_interval":    c.Server.PollInterval,
		"server.wait_timeout":     c.Server.WaitTimeout,
		"client.request_timeout":  c.Client.RequestTimeout,
		"client.tokenize_timeout": c.Client.TokenizeTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.ScoreTimeout < 0 {
		errs = append(errs, errors.New("score_timeout must not be negative"))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Supervisor builds the process supervisor configuration for a resolved model.
func (c Config) Supervisor(modelPath string) supervisor.Config {
	gpu := false
	if c.Server.GPU != nil {
		gpu = *c.Server.GPU
	}
	return supervisor.Config{
		ModelPath:    modelPath,
		Host:         c.Server.Host,
		Port:         c.Server.Port,
		Bin:          c.Server.Bin,
		BaseArgs:     c.Server.BaseArgs,
		ExtraArgs:    c.Server.ExtraArgs,
		GPU:          gpu,
		ProbeTimeout: c.Server.ProbeTimeout.D(),
		PollInterval: c.Server.PollInterval.D(),
		WaitTimeout:  c.Server.WaitTimeout.D(),
	}
}

// AdapterConfig builds the protocol adapter configuration for a running server.
func (c Config) AdapterConfig(baseURL string) llamaclient.Config {
	return llamaclient.Config{
		BaseURL:         baseURL,
		RequestTimeout:  c.Client.RequestTimeout.D(),
		TokenizeTimeout: c.Client.TokenizeTimeout.D(),
		ConnectTimeout:  c.Client.ConnectTimeout.D(),
		EnableFanOut:    c.Client.EnableFanOut,
	}
}

// ServerAddr is the fixed host:port of the backing server.
func (c Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
