package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

var ErrBadSetting = errors.New("invalid setting")

// Settings is what the host keeps between two runs. Counters are stored as
// text so that a hand edited file can be read back leniently.
type Settings struct {
	Output  string `yaml:"output"`
	Enabled bool   `yaml:"enabled"`
	States  string `yaml:"states,omitempty"`
	Infos   string `yaml:"infos,omitempty"`
	Skipped string `yaml:"skipped,omitempty"`
}

type Counters struct {
	States  int64
	Infos   int64
	Skipped int64
}

// Counters parses the stored counters. A missing counter is zero. A
// malformed one is also zero and reported in the returned error, which
// wraps ErrBadSetting once per bad field.
func (s Settings) Counters() (Counters, error) {
	var c Counters
	var err error
	c.States, err = parseCounter("states", s.States, err)
	c.Infos, err = parseCounter("infos", s.Infos, err)
	c.Skipped, err = parseCounter("skipped", s.Skipped, err)
	return c, err
}

func parseCounter(name, raw string, errs error) (int64, error) {
	if raw == "" {
		return 0, errs
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, multierr.Append(errs, fmt.Errorf("%w: %s %q", ErrBadSetting, name, raw))
	}
	return v, errs
}

func (s *Settings) SetCounters(c Counters) {
	s.States = strconv.FormatInt(c.States, 10)
	s.Infos = strconv.FormatInt(c.Infos, 10)
	s.Skipped = strconv.FormatInt(c.Skipped, 10)
}

func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return &s, nil
}

func SaveSettings(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
