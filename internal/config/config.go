package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Stillpoint environment variables.
const EnvPrefix = "STILLPOINT_"

// Config holds all application configuration. Durations are kept as strings
// so the YAML file stays human-editable; use the Parsed* accessors.
type Config struct {
	BaseURL         string `yaml:"base_url"`
	DataDir         string `yaml:"data_dir"`
	SessionDuration string `yaml:"session_duration"`
	ChunkInterval   string `yaml:"chunk_interval"`
	FrameInterval   string `yaml:"frame_interval"`
	RequestTimeout  string `yaml:"request_timeout"`
	MicSampleRate   int    `yaml:"mic_sample_rate"`
	MicSampleRates  []int  `yaml:"mic_sample_rates"`
}

func defaults() Config {
	return Config{
		BaseURL:         "http://127.0.0.1:8000",
		DataDir:         "data",
		SessionDuration: "5m",
		ChunkInterval:   "5s",
		FrameInterval:   "100ms",
		RequestTimeout:  "30s",
		MicSampleRate:   16000,
		MicSampleRates:  []int{48000, 44100, 32000, 24000},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, and validates the result. It returns the
// config, any validation warnings, and an error if the file exists but
// cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// CachePath is the location of the durable summary cache inside DataDir.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "stillpoint.db")
}

// ParsedSessionDuration returns SessionDuration as a time.Duration,
// falling back to 5m if the value is invalid.
func (c *Config) ParsedSessionDuration() time.Duration {
	return durationOr(c.SessionDuration, 5*time.Minute)
}

// ParsedChunkInterval returns ChunkInterval as a time.Duration,
// falling back to 5s if the value is invalid.
func (c *Config) ParsedChunkInterval() time.Duration {
	return durationOr(c.ChunkInterval, 5*time.Second)
}

// ParsedFrameInterval returns FrameInterval as a time.Duration,
// falling back to 100ms if the value is invalid.
func (c *Config) ParsedFrameInterval() time.Duration {
	return durationOr(c.FrameInterval, 100*time.Millisecond)
}

// ParsedRequestTimeout returns RequestTimeout as a time.Duration,
// falling back to 30s if the value is invalid.
func (c *Config) ParsedRequestTimeout() time.Duration {
	return durationOr(c.RequestTimeout, 30*time.Second)
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "SESSION_DURATION"); v != "" {
		cfg.SessionDuration = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_INTERVAL"); v != "" {
		cfg.ChunkInterval = v
	}
	if v := os.Getenv(EnvPrefix + "FRAME_INTERVAL"); v != "" {
		cfg.FrameInterval = v
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
}

func validate(cfg *Config) []string {
	var warnings []string

	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		warnings = append(warnings, fmt.Sprintf("Invalid base_url %q \u2014 using default %s.", cfg.BaseURL, defaults().BaseURL))
		cfg.BaseURL = defaults().BaseURL
	}
	if _, err := time.ParseDuration(cfg.SessionDuration); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid session_duration %q \u2014 using default 5m.", cfg.SessionDuration))
	}
	if _, err := time.ParseDuration(cfg.ChunkInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid chunk_interval %q \u2014 using default 5s.", cfg.ChunkInterval))
	}
	if _, err := time.ParseDuration(cfg.FrameInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid frame_interval %q \u2014 using default 100ms.", cfg.FrameInterval))
	}
	if _, err := time.ParseDuration(cfg.RequestTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid request_timeout %q \u2014 using default 30s.", cfg.RequestTimeout))
	}

	return warnings
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
