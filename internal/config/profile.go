package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"beeper/backend/internal/timer"
)

// Profile is the beep timer profile, loaded from YAML. Durations use Go
// syntax ("90s", "20m").
type Profile struct {
	Strategy               string `yaml:"strategy"`
	MinDelay               string `yaml:"min_delay"`
	MaxDelay               string `yaml:"max_delay"`
	AvgDelay               string `yaml:"avg_delay"`
	UptimeSamplesForAvg    int    `yaml:"uptime_samples_for_average"`
	CancelledBeepsForAvg   int    `yaml:"cancelled_beeps_for_average"`
	MinIntervalSize        string `yaml:"min_interval_size"`
	DisableUptimeCap       bool   `yaml:"disable_uptime_cap"`
	DisableCancelShrinking bool   `yaml:"disable_cancel_shrinking"`
}

// DefaultProfile is used when no profile file is configured.
const DefaultProfile = `
strategy: random_average
min_delay: 2m
max_delay: 60m
avg_delay: 20m
uptime_samples_for_average: 3
cancelled_beeps_for_average: 5
min_interval_size: 4m
`

// LoadProfile reads a YAML profile from path and returns the timer
// configuration it describes. An empty path selects DefaultProfile.
func LoadProfile(path string) (timer.Config, error) {
	if path == "" {
		return ParseProfile([]byte(DefaultProfile))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return timer.Config{}, fmt.Errorf("profile: read %s: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile unmarshals YAML bytes into a validated timer configuration.
func ParseProfile(data []byte) (timer.Config, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return timer.Config{}, fmt.Errorf("profile: parse: %w", err)
	}
	p.applyDefaults()
	cfg, err := p.timerConfig()
	if err != nil {
		return timer.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return timer.Config{}, fmt.Errorf("profile: %w", err)
	}
	return cfg, nil
}

func (p *Profile) applyDefaults() {
	if p.Strategy == "" {
		p.Strategy = string(timer.RandomAverage)
	}
	p.Strategy = strings.ToLower(strings.TrimSpace(p.Strategy))
	if p.UptimeSamplesForAvg == 0 && !p.DisableUptimeCap {
		p.UptimeSamplesForAvg = 3
	}
	if p.CancelledBeepsForAvg == 0 && !p.DisableCancelShrinking {
		p.CancelledBeepsForAvg = 5
	}
	if p.DisableUptimeCap {
		p.UptimeSamplesForAvg = 0
	}
	if p.DisableCancelShrinking {
		p.CancelledBeepsForAvg = 0
	}
}

func (p *Profile) timerConfig() (timer.Config, error) {
	var errs []string
	parse := func(field, raw string) time.Duration {
		if raw == "" {
			return 0
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", field, err))
		}
		return d
	}

	cfg := timer.Config{
		Strategy:                 timer.Strategy(p.Strategy),
		MinDelay:                 parse("min_delay", p.MinDelay),
		MaxDelay:                 parse("max_delay", p.MaxDelay),
		AvgDelay:                 parse("avg_delay", p.AvgDelay),
		UptimeSamplesForAverage:  p.UptimeSamplesForAvg,
		CancelledBeepsForAverage: p.CancelledBeepsForAvg,
		MinIntervalSize:          parse("min_interval_size", p.MinIntervalSize),
	}
	if len(errs) > 0 {
		return timer.Config{}, fmt.Errorf("profile: validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}
