// Package config provides configuration management for the presence engine
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/normanking/cortexpresence/internal/emotion"
	"github.com/normanking/cortexpresence/internal/orchestrator"
	"github.com/normanking/cortexpresence/internal/signals"
	"github.com/normanking/cortexpresence/internal/trigger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// EnvPrefix prefixes environment overrides, e.g. CORTEXPRESENCE_SERVER_ADDR.
const EnvPrefix = "CORTEXPRESENCE"

// Config holds all application configuration
type Config struct {
	Engine      EngineConfig      `mapstructure:"engine" yaml:"engine"`
	Preferences PreferencesConfig `mapstructure:"preferences" yaml:"preferences"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`

	// Source is the file the config was read from, empty for defaults.
	Source string `mapstructure:"-" yaml:"-"`
}

// EngineConfig holds the timing and threshold tuning of the reaction pipeline
type EngineConfig struct {
	TickInterval          time.Duration            `mapstructure:"tick_interval"`
	TypingWindow          time.Duration            `mapstructure:"typing_window"`
	DeletionCooldown      time.Duration            `mapstructure:"deletion_cooldown"`
	PointerIdleAfter      time.Duration            `mapstructure:"pointer_idle_after"`
	PointerThrottle       time.Duration            `mapstructure:"pointer_throttle"`
	DebounceInterval      time.Duration            `mapstructure:"debounce_interval"`
	MinTextLength         int                      `mapstructure:"min_text_length"`
	SignificanceThreshold float64                  `mapstructure:"significance_threshold"`
	HapticSpacing         time.Duration            `mapstructure:"haptic_spacing"`
	SilentTyping          bool                     `mapstructure:"silent_typing"` // no audio cue for typing reactions
	DuplicateWindow       time.Duration            `mapstructure:"duplicate_window"`
	HapticDelay           time.Duration            `mapstructure:"haptic_delay"`
	AudioFraction         float64                  `mapstructure:"audio_fraction"`
	PulseFraction         float64                  `mapstructure:"pulse_fraction"`
	CalmCueDelay          time.Duration            `mapstructure:"calm_cue_delay"`
	TransitionDurations   map[string]time.Duration `mapstructure:"transition_durations"`
	MaxMessages           int                      `mapstructure:"max_messages"`
}

// MarshalYAML writes the engine section with readable durations.
func (e EngineConfig) MarshalYAML() (any, error) {
	transitions := make(map[string]string, len(e.TransitionDurations))
	for name, d := range e.TransitionDurations {
		transitions[name] = d.String()
	}
	return map[string]any{
		"tick_interval":          e.TickInterval.String(),
		"typing_window":          e.TypingWindow.String(),
		"deletion_cooldown":      e.DeletionCooldown.String(),
		"pointer_idle_after":     e.PointerIdleAfter.String(),
		"pointer_throttle":       e.PointerThrottle.String(),
		"debounce_interval":      e.DebounceInterval.String(),
		"min_text_length":        e.MinTextLength,
		"significance_threshold": e.SignificanceThreshold,
		"haptic_spacing":         e.HapticSpacing.String(),
		"silent_typing":          e.SilentTyping,
		"duplicate_window":       e.DuplicateWindow.String(),
		"haptic_delay":           e.HapticDelay.String(),
		"audio_fraction":         e.AudioFraction,
		"pulse_fraction":         e.PulseFraction,
		"calm_cue_delay":         e.CalmCueDelay.String(),
		"transition_durations":   transitions,
		"max_messages":           e.MaxMessages,
	}, nil
}

// PreferencesConfig holds the user's persisted output preferences
type PreferencesConfig struct {
	SoundEnabled   bool `mapstructure:"sound_enabled" yaml:"sound_enabled" json:"soundEnabled"`
	HapticsEnabled bool `mapstructure:"haptics_enabled" yaml:"haptics_enabled" json:"hapticsEnabled"`
}

// ServerConfig configures the WebSocket hub
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
}

// MarshalYAML writes the server section with a readable grace period.
func (s ServerConfig) MarshalYAML() (any, error) {
	origins := s.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}
	return map[string]any{
		"addr":            s.Addr,
		"allowed_origins": origins,
		"shutdown_grace":  s.ShutdownGrace.String(),
	}, nil
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Dir        string `mapstructure:"dir" yaml:"dir"` // empty disables the log file
	Console    bool   `mapstructure:"console" yaml:"console"`
	MaxHistory int    `mapstructure:"max_history" yaml:"max_history"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	sig := signals.DefaultConfig()
	orch := orchestrator.DefaultConfig()
	trig := trigger.DefaultConfig()

	transitions := make(map[string]time.Duration, len(orch.TransitionDurations))
	for e, d := range orch.TransitionDurations {
		transitions[string(e)] = d
	}

	return &Config{
		Engine: EngineConfig{
			TickInterval:          sig.TickInterval,
			TypingWindow:          sig.TypingWindow,
			DeletionCooldown:      sig.DeletionCooldown,
			PointerIdleAfter:      sig.PointerIdleAfter,
			PointerThrottle:       sig.PointerThrottle,
			DebounceInterval:      trig.DebounceInterval,
			MinTextLength:         trig.MinTextLength,
			SignificanceThreshold: trig.SignificanceThreshold,
			HapticSpacing:         trig.HapticSpacing,
			SilentTyping:          trig.SkipSound,
			DuplicateWindow:       orch.DuplicateWindow,
			HapticDelay:           orch.HapticDelay,
			AudioFraction:         orch.AudioFraction,
			PulseFraction:         orch.PulseFraction,
			CalmCueDelay:          orch.CalmCueDelay,
			TransitionDurations:   transitions,
			MaxMessages:           200,
		},
		Preferences: PreferencesConfig{
			SoundEnabled:   true,
			HapticsEnabled: true,
		},
		Server: ServerConfig{
			Addr:          ":8787",
			ShutdownGrace: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			MaxHistory: 1000,
		},
	}
}

// Signals returns the collector settings.
func (e EngineConfig) Signals() signals.Config {
	return signals.Config{
		TickInterval:     e.TickInterval,
		TypingWindow:     e.TypingWindow,
		DeletionCooldown: e.DeletionCooldown,
		PointerIdleAfter: e.PointerIdleAfter,
		PointerThrottle:  e.PointerThrottle,
	}
}

// Orchestrator returns the orchestrator settings.
func (e EngineConfig) Orchestrator() orchestrator.Config {
	transitions := make(map[emotion.AgentEmotion]time.Duration, len(e.TransitionDurations))
	for name, d := range e.TransitionDurations {
		transitions[emotion.AgentEmotion(strings.ToLower(name))] = d
	}
	return orchestrator.Config{
		TransitionDurations: transitions,
		DuplicateWindow:     e.DuplicateWindow,
		HapticDelay:         e.HapticDelay,
		AudioFraction:       e.AudioFraction,
		PulseFraction:       e.PulseFraction,
		CalmCueDelay:        e.CalmCueDelay,
	}
}

// Trigger returns the debounced trigger settings.
func (e EngineConfig) Trigger() trigger.Config {
	return trigger.Config{
		DebounceInterval:      e.DebounceInterval,
		MinTextLength:         e.MinTextLength,
		SignificanceThreshold: e.SignificanceThreshold,
		HapticSpacing:         e.HapticSpacing,
		SkipSound:             e.SilentTyping,
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	e := c.Engine
	for name, d := range map[string]time.Duration{
		"tick_interval":      e.TickInterval,
		"typing_window":      e.TypingWindow,
		"deletion_cooldown":  e.DeletionCooldown,
		"pointer_idle_after": e.PointerIdleAfter,
		"pointer_throttle":   e.PointerThrottle,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: engine.%s must be positive, got %v", ErrInvalid, name, d)
		}
	}
	if e.MaxMessages <= 0 {
		return fmt.Errorf("%w: engine.max_messages must be positive, got %d", ErrInvalid, e.MaxMessages)
	}
	if err := e.Orchestrator().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := e.Trigger().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	if c.Server.ShutdownGrace < 0 {
		return fmt.Errorf("%w: server.shutdown_grace is negative", ErrInvalid)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalid, c.Logging.Level)
	}
	if c.Logging.MaxHistory < 0 {
		return fmt.Errorf("%w: logging.max_history is negative", ErrInvalid)
	}
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cortexpresence"), nil
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads configuration from path and the environment. An empty path
// searches the config directory and the working directory. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.Source); err != nil {
		cfg.Source = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	e := cfg.Engine
	v.SetDefault("engine.tick_interval", e.TickInterval)
	v.SetDefault("engine.typing_window", e.TypingWindow)
	v.SetDefault("engine.deletion_cooldown", e.DeletionCooldown)
	v.SetDefault("engine.pointer_idle_after", e.PointerIdleAfter)
	v.SetDefault("engine.pointer_throttle", e.PointerThrottle)
	v.SetDefault("engine.debounce_interval", e.DebounceInterval)
	v.SetDefault("engine.min_text_length", e.MinTextLength)
	v.SetDefault("engine.significance_threshold", e.SignificanceThreshold)
	v.SetDefault("engine.haptic_spacing", e.HapticSpacing)
	v.SetDefault("engine.silent_typing", e.SilentTyping)
	v.SetDefault("engine.duplicate_window", e.DuplicateWindow)
	v.SetDefault("engine.haptic_delay", e.HapticDelay)
	v.SetDefault("engine.audio_fraction", e.AudioFraction)
	v.SetDefault("engine.pulse_fraction", e.PulseFraction)
	v.SetDefault("engine.calm_cue_delay", e.CalmCueDelay)
	v.SetDefault("engine.max_messages", e.MaxMessages)

	v.SetDefault("preferences.sound_enabled", cfg.Preferences.SoundEnabled)
	v.SetDefault("preferences.haptics_enabled", cfg.Preferences.HapticsEnabled)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.shutdown_grace", cfg.Server.ShutdownGrace)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.dir", cfg.Logging.Dir)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.max_history", cfg.Logging.MaxHistory)
}
