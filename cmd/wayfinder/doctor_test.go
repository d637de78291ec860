package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"wayfinder/internal/infra/config"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCheckConfigFile_Missing(t *testing.T) {
	result := checkConfigFile("/nonexistent/path/wayfinder.yaml", nil)(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
}

func TestCheckConfigFile_ParseError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "wayfinder.yaml")
	writeTestFile(t, cfgPath, "invalid: {{yaml")

	result := checkConfigFile(cfgPath, &config.ValidationError{Errors: []string{"bad yaml"}})(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for parse error, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for parse error")
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "wayfinder.yaml")
	writeTestFile(t, cfgPath, "actions:\n  autonomy: manual\n")

	result := checkConfigFile(cfgPath, nil)(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS for valid config, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckLLMAPIKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		want CheckStatus
	}{
		{"nil config", nil, StatusFail},
		{"no providers", &config.Config{}, StatusWarn},
		{"all missing", &config.Config{LLM: config.LLMConfig{Providers: []config.ProviderConfig{{Name: "a"}}}}, StatusFail},
		{"some missing", &config.Config{LLM: config.LLMConfig{Providers: []config.ProviderConfig{{Name: "a", APIKey: "k"}, {Name: "b"}}}}, StatusWarn},
		{"all set", &config.Config{LLM: config.LLMConfig{Providers: []config.ProviderConfig{{Name: "a", APIKey: "k"}}}}, StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkLLMAPIKey(tt.cfg).Status; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckLLMConnectivity_DefaultMissing(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{
		DefaultProvider: "nope",
		Providers:       []config.ProviderConfig{{Name: "a", APIKey: "k"}},
	}}
	if got := checkLLMConnectivity(cfg).Status; got != StatusFail {
		t.Errorf("status = %s, want FAIL", got)
	}
}

func TestProviderEndpoint(t *testing.T) {
	if got := providerEndpoint(&config.ProviderConfig{}); got != "https://api.openai.com/v1/models" {
		t.Errorf("default endpoint = %s", got)
	}
	if got := providerEndpoint(&config.ProviderConfig{BaseURL: "http://localhost:11434/v1/"}); got != "http://localhost:11434/v1/models" {
		t.Errorf("custom endpoint = %s", got)
	}
}

func TestCheckSandbox(t *testing.T) {
	cfg := &config.Config{}
	cfg.Capabilities.SandboxRoot = filepath.Join(t.TempDir(), "sandbox")
	result := checkSandbox(cfg)
	if result.Status != StatusPass {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}
	entries, _ := os.ReadDir(cfg.Capabilities.SandboxRoot)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestCheckStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Path = filepath.Join(t.TempDir(), "wayfinder.db")
	if result := checkStore(cfg); result.Status != StatusPass {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}

	cfg.Store.Encrypt = true
	t.Setenv("WAYFINDER_STORE_KEY", "")
	if result := checkStore(cfg); result.Status != StatusFail {
		t.Errorf("expected FAIL without a store key, got %s", result.Status)
	}

	t.Setenv("WAYFINDER_STORE_KEY", "correct horse")
	if result := checkStore(cfg); result.Status != StatusPass {
		t.Errorf("expected PASS with a store key, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckChromium(t *testing.T) {
	cfg := &config.Config{}
	if got := checkChromium(cfg).Status; got != StatusPass {
		t.Errorf("disabled browser: status = %s", got)
	}
	cfg.Capabilities.Browser.Enabled = true
	cfg.Capabilities.Browser.CDPURL = "ws://127.0.0.1:9222"
	if got := checkChromium(cfg).Status; got != StatusPass {
		t.Errorf("remote browser: status = %s", got)
	}
}

func TestCheckAllowedCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PATH lookup differs on windows")
	}
	cfg := &config.Config{}
	if got := checkAllowedCommands(cfg).Status; got != StatusPass {
		t.Errorf("no commands: status = %s", got)
	}
	cfg.Capabilities.AllowedCommands = []string{"sh", "definitely-not-a-command-xyz"}
	result := checkAllowedCommands(cfg)
	if result.Status != StatusWarn {
		t.Errorf("status = %s, want WARN", result.Status)
	}
	if !strings.Contains(result.Message, "definitely-not-a-command-xyz") || strings.Contains(result.Message, "sh,") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestCheckMCPServers(t *testing.T) {
	cfg := &config.Config{}
	cfg.Capabilities.MCPServers = []config.MCPServer{
		{Name: "files", Transport: "stdio", Command: "definitely-not-a-command-xyz"},
		{Name: "remote", Transport: "http"},
	}
	result := checkMCPServers(cfg)
	if result.Status != StatusWarn {
		t.Fatalf("status = %s, want WARN", result.Status)
	}
	for _, want := range []string{"files:", "remote: url missing"} {
		if !strings.Contains(result.Message, want) {
			t.Errorf("message %q missing %q", result.Message, want)
		}
	}
}

func TestStatusIcon(t *testing.T) {
	for s, want := range map[CheckStatus]string{StatusPass: "[PASS]", StatusWarn: "[WARN]", StatusFail: "[FAIL]", "x": "[????]"} {
		if got := statusIcon(s); got != want {
			t.Errorf("statusIcon(%s) = %s", s, got)
		}
	}
}
