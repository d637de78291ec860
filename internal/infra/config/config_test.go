package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Workflow.Loop.MaxIterations != 10 {
		t.Errorf("Loop.MaxIterations = %d, want 10", cfg.Workflow.Loop.MaxIterations)
	}
	if cfg.Actions.TTL != 60*time.Second {
		t.Errorf("Actions.TTL = %v, want 60s", cfg.Actions.TTL)
	}
	if cfg.Actions.LedgerCapacity != 100 {
		t.Errorf("Actions.LedgerCapacity = %d, want 100", cfg.Actions.LedgerCapacity)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	require.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "assisted", cfg.Actions.Autonomy)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  default_provider: "groq"
  providers:
    - name: "groq"
      base_url: "https://api.groq.com/openai/v1"
      api_key: "test-key"
      model: "llama3-8b"
workflow:
  loop:
    max_iterations: 4
    stagnation_threshold: 2
    progress_epsilon: 0.05
    circuit_cooldown: 5s
actions:
  autonomy: autonomous
  known_domains: ["docs.example.com"]
logger:
  level: "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "groq", cfg.LLM.DefaultProvider)
	assert.Equal(t, 4, cfg.Workflow.Loop.MaxIterations)
	assert.Equal(t, 2, cfg.Workflow.Loop.StagnationThreshold)
	assert.Equal(t, 0.05, cfg.Workflow.Loop.ProgressEpsilon)
	assert.Equal(t, 5*time.Second, cfg.Workflow.Loop.CircuitCooldown)
	assert.Equal(t, "autonomous", cfg.Actions.Autonomy)
	assert.Equal(t, []string{"docs.example.com"}, cfg.Actions.KnownDomains)
	assert.Equal(t, "debug", cfg.Logger.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 100, cfg.Actions.LedgerCapacity)
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600))
	require.NoError(t, os.Chmod(path, 0666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("WAYFINDER_ACTIONS_AUTONOMY", "manual")
	t.Setenv("WAYFINDER_LOOP_STAGNATION_THRESHOLD", "7")
	t.Setenv("WAYFINDER_LOOP_CIRCUIT_COOLDOWN", "90s")
	t.Setenv("WAYFINDER_ACTIONS_KNOWN_DOMAINS", "a.example, b.example")
	t.Setenv("WAYFINDER_OPENAI_API_KEY", "sk-env")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "manual", cfg.Actions.Autonomy)
	assert.Equal(t, 7, cfg.Workflow.Loop.StagnationThreshold)
	assert.Equal(t, 90*time.Second, cfg.Workflow.Loop.CircuitCooldown)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Actions.KnownDomains)
	assert.Equal(t, "sk-env", cfg.LLM.Providers[0].APIKey)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("sk-secret", "passphrase")
	require.NoError(t, err)

	dec, err := DecryptValue(enc, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", dec)

	_, err = DecryptValue(enc, "wrong")
	assert.Error(t, err)
}

func TestLoadDecryptsSecrets(t *testing.T) {
	enc, err := EncryptValue("sk-secret", "k3y")
	require.NoError(t, err)
	t.Setenv("WAYFINDER_CONFIG_KEY", "k3y")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm:\n  providers:\n    - name: openai\n      base_url: https://api.openai.com/v1\n      api_key: \"enc:" + enc + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.LLM.Providers[0].APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad autonomy", func(c *Config) { c.Actions.Autonomy = "yolo" }, "actions.autonomy"},
		{"zero ledger", func(c *Config) { c.Actions.LedgerCapacity = 0 }, "ledger_capacity"},
		{"zero stagnation", func(c *Config) { c.Workflow.Loop.StagnationThreshold = 0 }, "stagnation_threshold"},
		{"unknown trigger", func(c *Config) { c.Workflow.Triggers["mouse_move"] = "loop" }, "unknown trigger"},
		{"unknown workflow", func(c *Config) { c.Workflow.Triggers["timer_tick"] = "nope" }, "unknown workflow"},
		{"unknown agent", func(c *Config) { c.Agents.Enabled = []string{"oracle"} }, "unknown agent"},
		{"decay out of range", func(c *Config) { c.Agents.Observer.Decay = 1 }, "decay"},
		{"default provider missing", func(c *Config) { c.LLM.DefaultProvider = "ghost" }, "default_provider"},
		{"mcp stdio without command", func(c *Config) {
			c.Capabilities.MCPServers = []MCPServer{{Name: "fs", Transport: "stdio"}}
		}, "command required"},
		{"unknown scheduler action", func(c *Config) {
			c.Scheduler.Tasks = append(c.Scheduler.Tasks, ScheduledTaskConfig{Name: "x", Schedule: "1m", Action: "memory_sync"})
		}, "not a known action"},
		{"bad retention", func(c *Config) { c.Security.Audit.Retention.MaxAge = "forever" }, "max_age"},
		{"bad max size", func(c *Config) { c.Security.Audit.Retention.MaxSize = "huge" }, "max_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"512", 512},
		{"10B", 10},
		{"4kb", 4 << 10},
		{" 100MB ", 100 << 20},
		{"2GB", 2 << 30},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"lots", "-5MB", "1.5GB", "MB"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}
