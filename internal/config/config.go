package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SPI struct {
	Dev     string `yaml:"dev"`      // periph port name, "" picks the first one
	SpeedHz int    `yaml:"speed_hz"` // e.g. 1000000
}

// GPIO names the three 74HC595 lines for the bit-bang driver.
type GPIO struct {
	Data  string `yaml:"data"`  // SER, pin 14
	Clock string `yaml:"clock"` // SRCLK, pin 11
	Latch string `yaml:"latch"` // RCLK, pin 12
}

// Strip is an optional WS2812 strip that mirrors the channel levels.
type Strip struct {
	Enabled bool   `yaml:"enabled"`
	Dev     string `yaml:"dev"`
	SpeedHz int    `yaml:"speed_hz"`
}

type Animation struct {
	Kind   string  `yaml:"kind"` // "static" | "chase"
	Path   []int   `yaml:"path,omitempty"`
	TickMs int     `yaml:"tick_ms"`
	Step   float64 `yaml:"step"` // phase advance per tick
	Ease   string  `yaml:"ease,omitempty"`
}

type Config struct {
	Driver    string    `yaml:"driver"` // "spi" | "gpio" | "console" | "sim"
	SPI       SPI       `yaml:"spi,omitempty"`
	GPIO      GPIO      `yaml:"gpio,omitempty"`
	Strip     Strip     `yaml:"strip,omitempty"`
	QuantumUs int       `yaml:"quantum_us"`
	Levels    []int     `yaml:"levels"`
	Animation Animation `yaml:"animation"`
	Addr      string    `yaml:"addr"`
	LogLevel  string    `yaml:"log_level"`
}

// Defaults wires SER/SRCLK/RCLK to GPIO2-4.
func Defaults() Config {
	return Config{
		Driver:    "sim",
		SPI:       SPI{SpeedHz: 1000000},
		GPIO:      GPIO{Data: "GPIO2", Clock: "GPIO3", Latch: "GPIO4"},
		Strip:     Strip{SpeedHz: 2500000},
		QuantumUs: 10,
		Levels:    []int{0, 2, 5, 0, 0, 100, 0, 0},
		Animation: Animation{
			Kind:   "static",
			Path:   []int{1, 2, 3, 4, 5, 6, 7, 4},
			TickMs: 1000,
			Step:   0.05,
			Ease:   "linear",
		},
		Addr:     ":8080",
		LogLevel: "info",
	}
}

// Load reads path over Defaults, so a partial file only overrides what it names.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Defaults()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	if c.QuantumUs <= 0 {
		return fmt.Errorf("quantum_us must be positive, got %d", c.QuantumUs)
	}
	if len(c.Levels) > 8 {
		return fmt.Errorf("levels: at most 8 channels, got %d", len(c.Levels))
	}
	for i, v := range c.Levels {
		if v < 0 || v > 255 {
			return fmt.Errorf("levels[%d]=%d out of range 0..255", i, v)
		}
	}
	for i, ch := range c.Animation.Path {
		if ch < 0 || ch > 7 {
			return fmt.Errorf("animation.path[%d]=%d is not a channel", i, ch)
		}
	}
	switch c.Animation.Kind {
	case "", "static", "chase":
	default:
		return fmt.Errorf("unknown animation kind %q", c.Animation.Kind)
	}
	return nil
}
