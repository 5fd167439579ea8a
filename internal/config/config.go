// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Supported values for enumerated settings.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DriverHost    = "host"
	DriverBrowser = "browser"
	DriverFake    = "fake"
)

// DefaultOpenAIBaseURL points at a local OpenAI compatible inference server.
const DefaultOpenAIBaseURL = "http://localhost:8000/v1"

// Config is the root configuration for a deskpilot process.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Agent       AgentConfig       `mapstructure:"agent" yaml:"agent"`
	Model       ModelConfig       `mapstructure:"model" yaml:"model"`
	Display     DisplayConfig     `mapstructure:"display" yaml:"display"`
	Humanoid    HumanoidConfig    `mapstructure:"humanoid" yaml:"humanoid"`
	Screenshots ScreenshotsConfig `mapstructure:"screenshots" yaml:"screenshots"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	// MaxTurns caps the number of model invocations per session.
	MaxTurns int `mapstructure:"max_turns" yaml:"max_turns"`
	// MaxConsecutiveViolations is how many malformed replies in a row abort a session.
	MaxConsecutiveViolations int `mapstructure:"max_consecutive_violations" yaml:"max_consecutive_violations"`
}

// ModelConfig describes the inference endpoint.
type ModelConfig struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Model             string        `mapstructure:"model" yaml:"model"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries        uint          `mapstructure:"max_retries" yaml:"max_retries"`
	MaxRetryElapsed   time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	// ImageHistory is how many of the newest screenshots are sent with each request. Zero sends all of them.
	ImageHistory int `mapstructure:"image_history" yaml:"image_history"`
}

// DisplayConfig selects and tunes the device driver.
type DisplayConfig struct {
	Driver       string        `mapstructure:"driver" yaml:"driver"`
	MonitorIndex int           `mapstructure:"monitor_index" yaml:"monitor_index"`
	MoveDuration time.Duration `mapstructure:"move_duration" yaml:"move_duration"`
	DragDuration time.Duration `mapstructure:"drag_duration" yaml:"drag_duration"`
	// ClampCoordinates pulls out of bounds targets onto the display instead of rejecting them.
	ClampCoordinates bool `mapstructure:"clamp_coordinates" yaml:"clamp_coordinates"`
	// FailSafe aborts the session when the pointer is parked in a display corner.
	FailSafe bool          `mapstructure:"fail_safe" yaml:"fail_safe"`
	Browser  BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// BrowserConfig configures the disposable headless browser display. Its
// viewport size is also used by the fake driver.
type BrowserConfig struct {
	Width    int    `mapstructure:"width" yaml:"width"`
	Height   int    `mapstructure:"height" yaml:"height"`
	StartURL string `mapstructure:"start_url" yaml:"start_url"`
	Headless bool   `mapstructure:"headless" yaml:"headless"`
}

// ScreenshotsConfig controls artifact persistence. An empty directory disables it.
type ScreenshotsConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// MetricsConfig controls the optional prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Agent --
	v.SetDefault("agent.max_turns", 200)
	v.SetDefault("agent.max_consecutive_violations", 3)

	// -- Model --
	v.SetDefault("model.provider", ProviderOpenAI)
	v.SetDefault("model.base_url", DefaultOpenAIBaseURL)
	v.SetDefault("model.api_key", "EMPTY")
	v.SetDefault("model.model", "Qwen/Qwen3-VL-30B-A3B-Instruct")
	v.SetDefault("model.temperature", 0.0)
	v.SetDefault("model.timeout", "600s")
	v.SetDefault("model.max_retries", 4)
	v.SetDefault("model.max_retry_elapsed", "2m")
	v.SetDefault("model.requests_per_second", 0.0)
	v.SetDefault("model.image_history", 3)

	// -- Display --
	v.SetDefault("display.driver", DriverHost)
	v.SetDefault("display.monitor_index", 1)
	v.SetDefault("display.move_duration", "0s")
	v.SetDefault("display.drag_duration", "150ms")
	v.SetDefault("display.clamp_coordinates", false)
	v.SetDefault("display.fail_safe", false)
	v.SetDefault("display.browser.width", 1280)
	v.SetDefault("display.browser.height", 800)
	v.SetDefault("display.browser.start_url", "about:blank")
	v.SetDefault("display.browser.headless", true)

	// -- Humanoid --
	setHumanoidDefaults(v)

	// -- Artifacts --
	v.SetDefault("screenshots.directory", "")
	v.SetDefault("metrics.listen_addr", "")
}

// NewConfigFromViper unmarshals, finalizes and validates a configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values are commonly supplied through the environment.
	_ = v.BindEnv("model.api_key", "DESKPILOT_MODEL_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Finalize resolves provider specific credential fallbacks and expands paths.
func (c *Config) Finalize() error {
	if c.Model.APIKey == "" || c.Model.APIKey == "EMPTY" {
		var fallback string
		switch c.Model.Provider {
		case ProviderOpenAI:
			fallback = os.Getenv("OPENAI_API_KEY")
		case ProviderGemini:
			fallback = os.Getenv("GEMINI_API_KEY")
		}
		if fallback != "" {
			c.Model.APIKey = fallback
		}
	}
	// The local server default means nothing to the Gemini API.
	if c.Model.Provider == ProviderGemini && c.Model.BaseURL == DefaultOpenAIBaseURL {
		c.Model.BaseURL = ""
	}

	if c.Screenshots.Directory != "" {
		dir, err := homedir.Expand(c.Screenshots.Directory)
		if err != nil {
			return fmt.Errorf("failed to expand screenshots.directory: %w", err)
		}
		c.Screenshots.Directory = dir
	}
	if c.Logger.LogFile != "" {
		file, err := homedir.Expand(c.Logger.LogFile)
		if err != nil {
			return fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		c.Logger.LogFile = file
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model configuration invalid: %w", err)
	}
	if err := c.Display.Validate(); err != nil {
		return fmt.Errorf("display configuration invalid: %w", err)
	}
	if err := c.Humanoid.Validate(); err != nil {
		return fmt.Errorf("humanoid configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the agent loop bounds.
func (a *AgentConfig) Validate() error {
	if a.MaxTurns <= 0 {
		return errors.New("agent.max_turns must be a positive integer")
	}
	if a.MaxConsecutiveViolations <= 0 {
		return errors.New("agent.max_consecutive_violations must be a positive integer")
	}
	return nil
}

// Validate checks the endpoint settings.
func (m *ModelConfig) Validate() error {
	switch m.Provider {
	case ProviderOpenAI:
		if m.BaseURL == "" {
			return errors.New("model.base_url is required for the openai provider")
		}
	case ProviderGemini:
		if m.APIKey == "" || m.APIKey == "EMPTY" {
			return errors.New("model.api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("model.provider must be one of %s, %s; got %q", ProviderOpenAI, ProviderGemini, m.Provider)
	}
	if strings.TrimSpace(m.Model) == "" {
		return errors.New("model.model is required")
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return errors.New("model.temperature must be within [0, 2]")
	}
	if m.Timeout <= 0 {
		return errors.New("model.timeout must be positive")
	}
	if m.RequestsPerSecond < 0 {
		return errors.New("model.requests_per_second must not be negative")
	}
	if m.ImageHistory < 0 {
		return errors.New("model.image_history must not be negative")
	}
	return nil
}

// Validate checks the display settings.
func (d *DisplayConfig) Validate() error {
	switch d.Driver {
	case DriverHost, DriverBrowser, DriverFake:
	default:
		return fmt.Errorf("display.driver must be one of %s, %s, %s; got %q", DriverHost, DriverBrowser, DriverFake, d.Driver)
	}
	if d.MonitorIndex < 0 {
		return errors.New("display.monitor_index must not be negative")
	}
	if d.MoveDuration < 0 || d.DragDuration < 0 {
		return errors.New("display.move_duration and display.drag_duration must not be negative")
	}
	if d.Driver != DriverHost && (d.Browser.Width <= 0 || d.Browser.Height <= 0) {
		return errors.New("display.browser.width and display.browser.height must be positive")
	}
	return nil
}
