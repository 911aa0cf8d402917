package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models loopline.yml. It is the static policy source: cap-gate
// limits, auto-approval thresholds, trigger rules and executor assignments
// are loaded once at startup and read-only thereafter.
type Config struct {
	Company struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"company"`
	Policies struct {
		AutoApprove AutoApprovePolicy        `yaml:"auto_approve"`
		CapGates    map[string]CapGatePolicy `yaml:"cap_gates"`
	} `yaml:"policies"`
	Executors struct {
		// Assignments maps a step kind to an executor name; unmapped
		// kinds fall back to Default.
		Assignments map[string]string `yaml:"assignments"`
		Default     string            `yaml:"default"`
	} `yaml:"executors"`
	Triggers []TriggerRule `yaml:"triggers"`
	Watchdog struct {
		StaleAfterMinutes int `yaml:"stale_after_minutes"`
	} `yaml:"watchdog"`
}

// CapGatePolicy limits how many steps of one kind may start per window.
type CapGatePolicy struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"` // hourly or daily
}

// WindowDuration returns the rolling window length for the policy.
func (p CapGatePolicy) WindowDuration() time.Duration {
	if p.Window == "daily" {
		return 24 * time.Hour
	}
	return time.Hour
}

type AutoApprovePolicy struct {
	Enabled             bool     `yaml:"enabled"`
	AllowedStepKinds    []string `yaml:"allowed_step_kinds"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
}

// Allows reports whether the kind may be auto-approved.
func (p AutoApprovePolicy) Allows(kind string) bool {
	for _, k := range p.AllowedStepKinds {
		if k == kind {
			return true
		}
	}
	return false
}

type TriggerRule struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	Condition       string  `yaml:"condition"`
	Action          string  `yaml:"action"`
	CooldownMinutes int     `yaml:"cooldown_minutes"`
	Probability     float64 `yaml:"probability"`
}

// StaleAfter returns the watchdog staleness threshold (default 30 minutes).
func (c *Config) StaleAfter() time.Duration {
	if c.Watchdog.StaleAfterMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Watchdog.StaleAfterMinutes) * time.Minute
}

// Load reads and validates config from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with ll config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "loopline.yml")
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for kind, gate := range c.Policies.CapGates {
		if kind == "" {
			return fmt.Errorf("config.policies.cap_gates contains empty step kind")
		}
		if gate.Limit <= 0 {
			return fmt.Errorf("cap gate %s: limit must be positive", kind)
		}
		if gate.Window != "hourly" && gate.Window != "daily" {
			return fmt.Errorf("cap gate %s: window must be hourly or daily", kind)
		}
	}
	aa := c.Policies.AutoApprove
	if aa.ConfidenceThreshold < 0 || aa.ConfidenceThreshold > 1 {
		return fmt.Errorf("auto_approve.confidence_threshold must be in [0,1]")
	}
	for _, k := range aa.AllowedStepKinds {
		if k == "" {
			return fmt.Errorf("auto_approve.allowed_step_kinds contains empty kind")
		}
	}
	if c.Executors.Default == "" {
		return fmt.Errorf("config.executors.default is required")
	}
	seen := map[string]bool{}
	for _, tr := range c.Triggers {
		if tr.ID == "" {
			return fmt.Errorf("trigger rule with empty id")
		}
		if seen[tr.ID] {
			return fmt.Errorf("duplicate trigger rule id %s", tr.ID)
		}
		seen[tr.ID] = true
		if tr.Probability < 0 || tr.Probability > 1 {
			return fmt.Errorf("trigger %s: probability must be in [0,1]", tr.ID)
		}
		if tr.CooldownMinutes < 0 {
			return fmt.Errorf("trigger %s: cooldown_minutes must not be negative", tr.ID)
		}
	}
	if c.Watchdog.StaleAfterMinutes < 0 {
		return fmt.Errorf("watchdog.stale_after_minutes must not be negative")
	}
	return nil
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `company:
  id: nexus
  name: Nexus AI

policies:
  auto_approve:
    enabled: true
    allowed_step_kinds: [market_scan, tech_eval, financial_check, product_review]
    confidence_threshold: 0.7

  cap_gates:
    market_scan:
      limit: 10
      window: daily
    project_approval:
      limit: 3
      window: daily
    tweet_post:
      limit: 8
      window: daily

executors:
  assignments:
    market_scan: cmo
    tech_eval: cto
    financial_check: cfo
    product_review: cpo
    ops_eval: coo
    strategic_decision: ceo
  default: ceo

triggers:
  - id: trigger_market_opportunity
    name: market opportunity
    condition: market_scan.high_potential
    action: create_proposal:project_eval
    cooldown_minutes: 60
    probability: 0.8
  - id: trigger_mission_failed
    name: mission failure diagnosis
    condition: mission.failed
    action: create_proposal:diagnose
    cooldown_minutes: 30
    probability: 1.0

watchdog:
  stale_after_minutes: 30
`
