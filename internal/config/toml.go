// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/tuispeak/internal/speech"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Practice PracticeConfig `toml:"practice"`
	Session  SessionConfig  `toml:"session"`
	Engine   EngineConfig   `toml:"engine"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// PracticeConfig maps practice-related settings.
type PracticeConfig struct {
	Lesson     *string  `toml:"lesson"`
	LessonFile *string  `toml:"lesson-file"`
	Order      *string  `toml:"order"`
	Timed      *bool    `toml:"timed"`
	FocusWeak  *bool    `toml:"focus-weak"`
	WeakTop    *int     `toml:"weak-top"`
	WeakFactor *float64 `toml:"weak-factor"`
	WeakWindow *int     `toml:"weak-window"`
}

// SessionConfig tunes the recognition session controller.
type SessionConfig struct {
	MaxRestarts   *int     `toml:"max-restarts"`
	SilenceMs     *int     `toml:"silence-ms"`
	StallMs       *int     `toml:"stall-ms"`
	SnapshotMs    *int     `toml:"snapshot-ms"`
	MaxSessionS   *int     `toml:"max-session-s"`
	MinConfidence *float64 `toml:"min-confidence"`
}

// EngineConfig selects and configures the speech recognizer.
type EngineConfig struct {
	Kind           *string `toml:"kind"`
	Command        *string `toml:"command"`
	CaptureCommand *string `toml:"capture-command"`
	DeepgramKey    *string `toml:"deepgram-key"`
	DeepgramModel  *string `toml:"deepgram-model"`
	Language       *string `toml:"language"`
	NatsURL        *string `toml:"nats-url"`
	NatsPrefix     *string `toml:"nats-subject-prefix"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr *string `toml:"addr"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Apply overlays the file values on base.
func (c SessionConfig) Apply(base speech.Config) speech.Config {
	if c.MaxRestarts != nil {
		base.MaxRestarts = *c.MaxRestarts
	}
	if c.SilenceMs != nil {
		base.SilenceThreshold = time.Duration(*c.SilenceMs) * time.Millisecond
	}
	if c.StallMs != nil {
		base.StallThreshold = time.Duration(*c.StallMs) * time.Millisecond
	}
	if c.SnapshotMs != nil {
		base.SnapshotDelay = time.Duration(*c.SnapshotMs) * time.Millisecond
	}
	if c.MaxSessionS != nil {
		base.MaxSessionDuration = time.Duration(*c.MaxSessionS) * time.Second
	}
	if c.MinConfidence != nil {
		base.MinConfidence = *c.MinConfidence
	}
	return base
}

// Validate rejects session values the controller cannot work with.
func (c SessionConfig) Validate() error {
	if c.MaxRestarts != nil && *c.MaxRestarts < 0 {
		return fmt.Errorf("max-restarts must be >= 0")
	}
	for name, v := range map[string]*int{"silence-ms": c.SilenceMs, "stall-ms": c.StallMs, "snapshot-ms": c.SnapshotMs, "max-session-s": c.MaxSessionS} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min-confidence must be between 0 and 1")
	}
	return nil
}
