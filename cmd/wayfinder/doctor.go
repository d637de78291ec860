package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"wayfinder/internal/adapter/store"
	"wayfinder/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "LLM API key", Fn: checkLLMAPIKey},
		{Name: "LLM connectivity", Fn: checkLLMConnectivity},
		{Name: "Sandbox", Fn: checkSandbox},
		{Name: "Store", Fn: checkStore},
		{Name: "Chromium", Fn: checkChromium},
		{Name: "Shell commands", Fn: checkAllowedCommands},
		{Name: "MCP servers", Fn: checkMCPServers},
	}

	fmt.Println("wayfinder doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before running wayfinder.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nwayfinder should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! wayfinder is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config parsed. A missing file is
// allowed: defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check " + cfgPath + " syntax and the WAYFINDER_* environment variables",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no LLM providers configured; agents will use canned replies",
			Fix:     "Add a provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			withKey = append(withKey, p.Name)
		} else {
			withoutKey = append(withoutKey, p.Name)
		}
	}
	if len(withKey) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set api_key (an enc: value works) or WAYFINDER_<NAME>_API_KEY",
		}
	}
	if len(withoutKey) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("API keys configured for: %s", strings.Join(withKey, ", ")),
	}
}

// checkLLMConnectivity tests if the default provider's endpoint answers.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{Status: StatusPass, Message: "no providers to reach"}
	}

	var provider *config.ProviderConfig
	for i := range cfg.LLM.Providers {
		if cfg.LLM.Providers[i].Name == cfg.LLM.DefaultProvider {
			provider = &cfg.LLM.Providers[i]
			break
		}
	}
	if provider == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}
	if provider.APIKey == "" {
		return CheckResult{Status: StatusWarn, Message: "skipped, no API key for default provider"}
	}

	endpoint := providerEndpoint(provider)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+provider.APIKey)
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check base_url, your connection and firewall settings",
		}
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s rejected the API key (%d)", provider.Name, resp.StatusCode),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, latency.Milliseconds()),
	}
}

// providerEndpoint returns the model listing URL of an OpenAI-compatible API.
func providerEndpoint(p *config.ProviderConfig) string {
	base := strings.TrimRight(p.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return base + "/models"
}

// checkSandbox verifies the sandbox root can be created and written.
func checkSandbox(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check, config not loaded"}
	}
	root := cfg.Capabilities.SandboxRoot
	if err := os.MkdirAll(root, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create %s: %v", root, err),
			Fix:     "Set capabilities.sandbox_root to a writable directory",
		}
	}
	f, err := os.CreateTemp(root, ".doctor-*")
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not writable: %v", root, err),
			Fix:     "Fix the directory permissions or choose another sandbox_root",
		}
	}
	f.Close()
	os.Remove(f.Name())
	return CheckResult{Status: StatusPass, Message: "writable at " + root}
}

// checkStore opens the SQLite store, migrating it if needed.
func checkStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check, config not loaded"}
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot open %s: %v", cfg.Store.Path, err),
			Fix:     "Set store.path to a writable location",
		}
	}
	defer db.Close()

	if cfg.Store.Encrypt {
		key := os.Getenv("WAYFINDER_STORE_KEY")
		if key == "" {
			return CheckResult{
				Status:  StatusFail,
				Message: "store.encrypt is set but WAYFINDER_STORE_KEY is empty",
				Fix:     "Export WAYFINDER_STORE_KEY or set store.encrypt: false",
			}
		}
		if err := db.EnableEncryption(context.Background(), key); err != nil {
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("encryption setup failed: %v", err)}
		}
		return CheckResult{Status: StatusPass, Message: "encrypted store at " + cfg.Store.Path}
	}
	return CheckResult{Status: StatusPass, Message: "store at " + cfg.Store.Path}
}

func checkChromium(cfg *config.Config) CheckResult {
	if cfg != nil && !cfg.Capabilities.Browser.Enabled {
		return CheckResult{Status: StatusPass, Message: "browser disabled, Chromium not required"}
	}
	if cfg != nil && cfg.Capabilities.Browser.CDPURL != "" {
		return CheckResult{Status: StatusPass, Message: "attaching to " + cfg.Capabilities.Browser.CDPURL}
	}

	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return CheckResult{Status: StatusPass, Message: fmt.Sprintf("found %s at %s", name, path)}
		}
	}

	status := StatusWarn
	msg := "Chromium not found"
	if cfg != nil && cfg.Capabilities.Browser.Enabled {
		status = StatusFail
		msg = "Chromium not found but the browser is enabled"
	}
	return CheckResult{
		Status:  status,
		Message: msg,
		Fix:     "Install Chromium, set capabilities.browser.cdp_url, or set capabilities.browser.enabled: false",
	}
}

// checkAllowedCommands warns about allowlisted commands missing from PATH.
func checkAllowedCommands(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check, config not loaded"}
	}
	if len(cfg.Capabilities.AllowedCommands) == 0 {
		return CheckResult{Status: StatusPass, Message: "shell tool disabled"}
	}
	var missing []string
	for _, c := range cfg.Capabilities.AllowedCommands {
		if _, err := exec.LookPath(c); err != nil {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "not on PATH: " + strings.Join(missing, ", "),
			Fix:     "Install them or remove them from capabilities.allowed_commands",
		}
	}
	return CheckResult{Status: StatusPass, Message: "all allowed commands found"}
}

// checkMCPServers verifies that stdio MCP servers can be launched.
func checkMCPServers(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check, config not loaded"}
	}
	if len(cfg.Capabilities.MCPServers) == 0 {
		return CheckResult{Status: StatusPass, Message: "none configured"}
	}
	var problems []string
	for _, s := range cfg.Capabilities.MCPServers {
		switch s.Transport {
		case "stdio", "":
			if _, err := exec.LookPath(s.Command); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %s not found", s.Name, s.Command))
			}
		case "http":
			if s.URL == "" {
				problems = append(problems, s.Name+": url missing")
			}
		}
	}
	if len(problems) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: strings.Join(problems, "; "),
			Fix:     "Fix capabilities.mcp_servers; unreachable servers are skipped at startup",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d server(s) configured", len(cfg.Capabilities.MCPServers))}
}
