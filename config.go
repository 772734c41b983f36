// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the declarative form of the runtime options, typically
// loaded from YAML:
//
//	max_ops: 1024
//	log_level: info
//	report_unhandled: true
//	queue_capacity: 4096
type Config struct {
	MaxOps          int    `yaml:"max_ops" validate:"gte=1"`
	LogLevel        string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	ReportUnhandled bool   `yaml:"report_unhandled"`
	QueueCapacity   int    `yaml:"queue_capacity" validate:"omitempty,gte=2"`
}

// DefaultConfig returns the configuration of a runtime built without options.
func DefaultConfig() Config {
	return Config{
		MaxOps:          DefaultMaxOps,
		LogLevel:        zerolog.WarnLevel.String(),
		ReportUnhandled: true,
		QueueCapacity:   DefaultLoopCapacity,
	}
}

var validate = validator.New()

// Validate checks the field constraints of c.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("fx: invalid config: %w", err)
	}
	return nil
}

// ParseConfig decodes YAML over [DefaultConfig] and validates the result.
func ParseConfig(data []byte) (Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("fx: parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("fx: load config: %w", err)
	}
	return ParseConfig(data)
}

// Options converts c into runtime options.
func (c Config) Options() ([]RuntimeOption, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts := []RuntimeOption{
		WithMaxOps(c.MaxOps),
		WithReportUnhandled(c.ReportUnhandled),
	}
	if c.LogLevel != "" {
		level, err := zerolog.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("fx: invalid config: %w", err)
		}
		opts = append(opts, WithLogger(defaultLogger().Level(level)))
	}
	if c.QueueCapacity > 0 {
		opts = append(opts, WithScheduler(NewEventLoop(c.QueueCapacity)))
	}
	return opts, nil
}
