package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
version: 1
global:
  polling_interval_seconds: 30
  confirm_timeout: 2m
chain:
  rpc_url: ${RPC_URL}
wallet:
  private_key: ${ETH_PRIVATE_KEY}
explorer:
  api_key: ${ETHERSCAN_API_KEY}
gates:
  max_mint_price: 0.08
  min_sample_count: 5
  max_gas_price: 30
  min_mint_ratio: "0.5"
  derivative_denylist: [goblin, town, ape, poop]
sinks:
  - id: ops
    type: slack
    webhook_url: ${SLACK_HOOK}
  - id: bus
    type: nats
    subject: mintwatch.cycles
    rejections: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func setEnv(t *testing.T) {
	t.Setenv("RPC_URL", "http://example-rpc")
	t.Setenv("ETH_PRIVATE_KEY", "deadbeef")
	t.Setenv("ETHERSCAN_API_KEY", "KEY")
	t.Setenv("SLACK_HOOK", "https://hooks.slack.test")
}

func TestLoadInterpolatesEnvAndValidates(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	setEnv(t)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("expected load to succeed: %v", err)
	}

	if got := cfg.Chain.RPCURL; got != "http://example-rpc" {
		t.Fatalf("rpc_url not interpolated, got %q", got)
	}
	if cfg.Gates.MaxMintPrice.String() != "0.08" || cfg.Gates.MaxGasPrice.String() != "30" || cfg.Gates.MinMintRatio.String() != "0.5" {
		t.Fatalf("unexpected gates %+v", cfg.Gates)
	}
	if len(cfg.Gates.DerivativeDenylist) != 4 {
		t.Fatalf("unexpected denylist %v", cfg.Gates.DerivativeDenylist)
	}
	if cfg.PollingInterval() != 30*time.Second || time.Duration(cfg.Global.ConfirmTimeout) != 2*time.Minute {
		t.Fatalf("unexpected durations %v %v", cfg.PollingInterval(), cfg.Global.ConfirmTimeout)
	}
	if !cfg.Sinks[1].Rejections || cfg.Sinks[0].Rejections {
		t.Fatalf("unexpected sink rejection flags")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, `
version: 1
chain: {rpc_url: http://rpc}
wallet: {private_key: abc}
explorer: {api_key: k}
gates: {max_mint_price: 0.1, max_gas_price: 40}
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Global.DBPath != DefaultDBPath || cfg.Global.PollingIntervalSeconds != DefaultPollingInterval {
		t.Fatalf("unexpected global defaults %+v", cfg.Global)
	}
	if cfg.Feed.URL != DefaultFeedURL || cfg.Feed.Limit != DefaultFeedLimit {
		t.Fatalf("unexpected feed defaults %+v", cfg.Feed)
	}
	if cfg.Cache.Type != "memory" || time.Duration(cfg.Cache.TTL) != DefaultCacheTTL {
		t.Fatalf("unexpected cache defaults %+v", cfg.Cache)
	}
	if cfg.Gates.MinSampleCount != DefaultMinSampleCount || !cfg.Gates.MinMintRatio.IsZero() {
		t.Fatalf("unexpected gate defaults %+v", cfg.Gates)
	}
}

func TestLoadFailsOnMissingEnv(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected missing env to fail")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	env := "RPC_URL=http://dotenv-rpc\nETH_PRIVATE_KEY=abc\nETHERSCAN_API_KEY=k\nSLACK_HOOK=https://hook\n"
	if err := os.WriteFile(filepath.Join(filepath.Dir(cfgPath), ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	for _, k := range []string{"RPC_URL", "ETH_PRIVATE_KEY", "ETHERSCAN_API_KEY", "SLACK_HOOK"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.RPCURL != "http://dotenv-rpc" {
		t.Fatalf("expected value from .env, got %q", cfg.Chain.RPCURL)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		wantErr string
	}{
		{"ratio above one", [2]string{`min_mint_ratio: "0.5"`, `min_mint_ratio: 1.5`}, "min_mint_ratio"},
		{"negative price", [2]string{`max_mint_price: 0.08`, `max_mint_price: -1`}, "max_mint_price"},
		{"missing gas cap", [2]string{`max_gas_price: 30`, `max_gas_price: 0`}, "max_gas_price"},
		{"bad recipient", [2]string{`private_key: ${ETH_PRIVATE_KEY}`, "private_key: ${ETH_PRIVATE_KEY}\n  recipient: nope"}, "recipient"},
		{"redis without url", [2]string{`gates:`, "cache:\n  type: redis\ngates:"}, "redis_url"},
		{"unknown cache", [2]string{`gates:`, "cache:\n  type: memcached\ngates:"}, "cache type"},
		{"duplicate sink", [2]string{`id: bus`, `id: ops`}, "duplicate sink"},
		{"nats without subject", [2]string{`subject: mintwatch.cycles`, `subject: ""`}, "subject"},
		{"bad duration", [2]string{`confirm_timeout: 2m`, `confirm_timeout: soon`}, "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.Replace(baseYAML, tt.replace[0], tt.replace[1], 1)
			if body == baseYAML {
				t.Fatalf("replacement %q did not apply", tt.replace[0])
			}
			setEnv(t)
			_, err := Load(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
