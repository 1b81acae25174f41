package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/mediagate/pkg/provider"
)

// ErrMissingCredential is wrapped by ValidateFor when a provider has no key.
var ErrMissingCredential = errors.New("missing credential")

// DefaultLocalURL is where the local pipeline server is expected.
const DefaultLocalURL = "http://127.0.0.1:7860"

// DefaultRequestTimeout bounds a single outbound HTTP request. Poll loops are
// bounded separately by their attempt ceiling.
const DefaultRequestTimeout = 2 * time.Minute

// credentialEnv lists, per provider, the environment variables that may carry
// its credential. The first non-empty one wins.
var credentialEnv = map[provider.Provider][]string{
	provider.OpenAI:      {"OPENAI_API_KEY"},
	provider.Google:      {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	provider.StabilityAI: {"STABILITYAI_API_KEY", "STABILITY_API_KEY"},
	provider.Luma:        {"LUMA_API_KEY", "LUMAAI_API_KEY"},
	provider.HuggingFace: {"HUGGINGFACE_TOKEN", "HF_TOKEN"},
	provider.XAI:         {"XAI_API_KEY"},
	provider.Replicate:   {"REPLICATE_API_TOKEN"},
}

// RateLimit caps outbound requests to one provider.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
}

// Settings holds credentials and transport settings for every provider.
type Settings struct {
	Credentials    map[provider.Provider]string
	BaseURLs       map[provider.Provider]string
	RateLimits     map[provider.Provider]RateLimit
	RequestTimeout time.Duration
	LocalURL       string
	ConfigDir      string
}

// FileConfig represents the structure of ~/.mediagate/config.yaml
type FileConfig struct {
	APIKeys        map[string]string    `yaml:"api_keys"`
	BaseURLs       map[string]string    `yaml:"base_urls"`
	RateLimits     map[string]RateLimit `yaml:"rate_limits"`
	RequestTimeout string               `yaml:"request_timeout"`
	LocalURL       string               `yaml:"local_url"`
}

// Load reads ~/.mediagate/config.yaml and the environment.
// Environment variables take precedence over file configuration.
func Load() (*Settings, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileConfig, err := loadFileConfig(filepath.Join(configDir, "config.yaml"), false)
	if err != nil {
		return nil, err
	}
	s, err := build(fileConfig)
	if err != nil {
		return nil, err
	}
	s.ConfigDir = configDir
	return s, nil
}

// LoadFile is Load with an explicit config file, which must exist.
func LoadFile(path string) (*Settings, error) {
	fileConfig, err := loadFileConfig(path, true)
	if err != nil {
		return nil, err
	}
	s, err := build(fileConfig)
	if err != nil {
		return nil, err
	}
	s.ConfigDir = filepath.Dir(path)
	return s, nil
}

func build(fc *FileConfig) (*Settings, error) {
	s := &Settings{
		Credentials:    make(map[provider.Provider]string),
		BaseURLs:       make(map[provider.Provider]string),
		RateLimits:     make(map[provider.Provider]RateLimit),
		RequestTimeout: DefaultRequestTimeout,
	}

	for key, value := range fc.APIKeys {
		p, err := provider.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("api_keys: %w", err)
		}
		s.Credentials[p] = value
	}
	for p, vars := range credentialEnv {
		for _, v := range vars {
			if val := os.Getenv(v); val != "" {
				s.Credentials[p] = val
				break
			}
		}
	}

	for key, value := range fc.BaseURLs {
		p, err := provider.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("base_urls: %w", err)
		}
		s.BaseURLs[p] = strings.TrimRight(value, "/")
	}
	for _, p := range provider.All() {
		env := "MEDIAGATE_" + strings.ToUpper(string(p)) + "_BASE_URL"
		if val := os.Getenv(env); val != "" {
			s.BaseURLs[p] = strings.TrimRight(val, "/")
		}
	}

	for key, rl := range fc.RateLimits {
		p, err := provider.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("rate_limits: %w", err)
		}
		if rl.RequestsPerSecond <= 0 {
			return nil, fmt.Errorf("rate_limits.%s: rps must be positive", key)
		}
		if rl.Burst < 1 {
			rl.Burst = 1
		}
		s.RateLimits[p] = rl
	}

	timeout := getEnvOrDefault("MEDIAGATE_REQUEST_TIMEOUT", fc.RequestTimeout)
	if timeout != "" {
		d, err := parseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("request_timeout: %w", err)
		}
		s.RequestTimeout = d
	}

	s.LocalURL = strings.TrimRight(getEnvOrDefault("LOCAL_DIFFUSION_URL", fc.LocalURL), "/")
	if s.LocalURL == "" {
		s.LocalURL = DefaultLocalURL
	}
	return s, nil
}

// Credential returns the configured credential for p.
func (s *Settings) Credential(p provider.Provider) string {
	if s == nil {
		return ""
	}
	return s.Credentials[p]
}

// BaseURL returns the override for p, or fallback.
func (s *Settings) BaseURL(p provider.Provider, fallback string) string {
	if s != nil {
		if u := s.BaseURLs[p]; u != "" {
			return u
		}
	}
	return fallback
}

// HasProvider returns true if the credential for the given provider is
// configured. The local provider needs none.
func (s *Settings) HasProvider(p provider.Provider) bool {
	return s.ValidateFor(p) == nil
}

// ValidateFor fails when p cannot be constructed with these settings. It never
// touches the network.
func (s *Settings) ValidateFor(p provider.Provider) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", provider.ErrUnknown, p)
	}
	if p == provider.Local {
		return nil
	}
	if s.Credential(p) == "" {
		return fmt.Errorf("%w: %s requires %s", ErrMissingCredential, p, strings.Join(credentialEnv[p], " or "))
	}
	return nil
}

// EnvVars lists the credential variables read for p.
func EnvVars(p provider.Provider) []string {
	return append([]string(nil), credentialEnv[p]...)
}

// loadFileConfig reads the config file. A missing file yields an empty
// config unless required is set.
func loadFileConfig(path string, required bool) (*FileConfig, error) {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mediagate"), nil
}
