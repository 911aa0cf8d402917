package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loopline/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Company.ID == "" || cfg.Executors.Default == "" {
		t.Fatalf("default config incomplete: %+v", cfg)
	}
	if gate, ok := cfg.Policies.CapGates["market_scan"]; !ok || gate.Limit != 10 {
		t.Fatalf("unexpected market_scan gate %+v", gate)
	}
	if len(cfg.Triggers) != 2 {
		t.Fatalf("expected 2 default trigger rules, got %d", len(cfg.Triggers))
	}
}

func TestFromYAMLRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad window",
			yaml: "executors:\n  default: ceo\npolicies:\n  cap_gates:\n    market_scan:\n      limit: 5\n      window: weekly\n",
			want: "window must be hourly or daily",
		},
		{
			name: "bad limit",
			yaml: "executors:\n  default: ceo\npolicies:\n  cap_gates:\n    market_scan:\n      limit: 0\n      window: daily\n",
			want: "limit must be positive",
		},
		{
			name: "bad threshold",
			yaml: "executors:\n  default: ceo\npolicies:\n  auto_approve:\n    confidence_threshold: 1.5\n",
			want: "confidence_threshold",
		},
		{
			name: "missing default executor",
			yaml: "company:\n  id: x\n",
			want: "executors.default is required",
		},
		{
			name: "duplicate trigger",
			yaml: "executors:\n  default: ceo\ntriggers:\n  - id: t1\n  - id: t1\n",
			want: "duplicate trigger rule id",
		},
		{
			name: "bad probability",
			yaml: "executors:\n  default: ceo\ntriggers:\n  - id: t1\n    probability: 2\n",
			want: "probability must be in [0,1]",
		},
		{
			name: "not yaml",
			yaml: "{{nope",
			want: "invalid config yaml",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want contains %q", err, tc.want)
			}
		})
	}
}

func TestWindowDuration(t *testing.T) {
	if d := (config.CapGatePolicy{Window: "daily"}).WindowDuration(); d != 24*time.Hour {
		t.Fatalf("daily = %v", d)
	}
	if d := (config.CapGatePolicy{Window: "hourly"}).WindowDuration(); d != time.Hour {
		t.Fatalf("hourly = %v", d)
	}
}

func TestStaleAfterDefault(t *testing.T) {
	var cfg config.Config
	if d := cfg.StaleAfter(); d != 30*time.Minute {
		t.Fatalf("default stale after = %v", d)
	}
	cfg.Watchdog.StaleAfterMinutes = 5
	if d := cfg.StaleAfter(); d != 5*time.Minute {
		t.Fatalf("stale after = %v", d)
	}
}

func TestAutoApproveAllows(t *testing.T) {
	p := config.AutoApprovePolicy{AllowedStepKinds: []string{"market_scan", "tech_eval"}}
	if !p.Allows("tech_eval") {
		t.Fatalf("expected tech_eval allowed")
	}
	if p.Allows("strategic_decision") {
		t.Fatalf("expected strategic_decision not allowed")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(config.Path(dir))
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Company.ID != config.Default().Company.ID {
		t.Fatalf("expected default config for missing file")
	}

	path := filepath.Join(dir, "loopline.yml")
	if err := os.WriteFile(path, []byte("company:\n  id: acme\nexecutors:\n  default: ceo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.LoadOptional(path)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Company.ID != "acme" {
		t.Fatalf("company id = %s", cfg.Company.ID)
	}

	if _, err := config.Load(filepath.Join(dir, "nope.yml")); err == nil {
		t.Fatalf("expected error for missing required config")
	}
}
