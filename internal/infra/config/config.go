package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Agents       AgentsConfig       `yaml:"agents"`
	Workflow     WorkflowConfig     `yaml:"workflow"`
	Actions      ActionsConfig      `yaml:"actions"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Store        StoreConfig        `yaml:"store"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Presence     PresenceConfig     `yaml:"presence"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Security     SecurityConfig     `yaml:"security"`
}

// LLMConfig holds language-model router settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	ModelRouting    map[string]string    `yaml:"model_routing,omitempty"` // purpose -> provider name, e.g. "vision" -> "gpt4o"
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// ProviderConfig holds settings for a single OpenAI-compatible provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
}

// AgentsConfig tunes the built-in agents.
type AgentsConfig struct {
	Enabled   []string        `yaml:"enabled"` // empty = all built-ins
	Observer  ObserverConfig  `yaml:"observer"`
	Verifier  VerifierConfig  `yaml:"verifier"`
	Critic    CriticConfig    `yaml:"critic"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
}

// ObserverConfig weights the three relevance factors and the proximity smoothing.
type ObserverConfig struct {
	KeywordWeight float64 `yaml:"keyword_weight"`
	TitleWeight   float64 `yaml:"title_weight"`
	URLWeight     float64 `yaml:"url_weight"`
	Decay         float64 `yaml:"decay"` // weight of the previous proximity, 0..1
}

// VerifierConfig holds extra solution patterns applied to every goal.
type VerifierConfig struct {
	Patterns []string `yaml:"patterns,omitempty"`
}

// CriticConfig holds quality evaluation settings.
type CriticConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// GuardrailConfig holds content-safety settings.
type GuardrailConfig struct {
	Blocklist []string `yaml:"blocklist,omitempty"`
	UseLLM    bool     `yaml:"use_llm"`
}

// WatchdogConfig holds security anomaly thresholds.
type WatchdogConfig struct {
	MaxNavigationsPerMinute int      `yaml:"max_navigations_per_minute"`
	SuspiciousTLDs          []string `yaml:"suspicious_tlds,omitempty"`
}

// WorkflowConfig holds workflow engine settings.
type WorkflowConfig struct {
	Loop       LoopConfig        `yaml:"loop"`
	Reflection ReflectionConfig  `yaml:"reflection"`
	Parallel   ParallelConfig    `yaml:"parallel"`
	Triggers   map[string]string `yaml:"triggers"` // trigger -> workflow name
	DataDir    string            `yaml:"data_dir"`
}

// LoopConfig tunes the self-correcting loop.
type LoopConfig struct {
	MaxIterations       int           `yaml:"max_iterations"`
	Delay               time.Duration `yaml:"delay"`
	StagnationThreshold int           `yaml:"stagnation_threshold"`
	ProgressEpsilon     float64       `yaml:"progress_epsilon"`
	CircuitCooldown     time.Duration `yaml:"circuit_cooldown"`
	MaxCooldowns        int           `yaml:"max_cooldowns"`
}

// ReflectionConfig tunes the generator/critic loop.
type ReflectionConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Delay         time.Duration `yaml:"delay"`
}

// ParallelConfig bounds fan-out concurrency.
type ParallelConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

// ActionsConfig holds action confirmation queue settings.
type ActionsConfig struct {
	Autonomy       string        `yaml:"autonomy"` // "manual", "assisted", "autonomous"
	TTL            time.Duration `yaml:"ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	LedgerCapacity int           `yaml:"ledger_capacity"`
	UndoDepth      int           `yaml:"undo_depth"`
	KnownDomains   []string      `yaml:"known_domains,omitempty"`
	HighRiskTypes  []string      `yaml:"high_risk_types,omitempty"`
	ExecuteTimeout time.Duration `yaml:"execute_timeout"`
}

// CapabilitiesConfig holds capability server and provider settings.
type CapabilitiesConfig struct {
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Sanitize        SanitizeConfig  `yaml:"sanitize"`
	InvokeTimeout   time.Duration   `yaml:"invoke_timeout"`
	SandboxRoot     string          `yaml:"sandbox_root"`
	AllowedCommands []string        `yaml:"allowed_commands"`
	ShellTimeout    time.Duration   `yaml:"shell_timeout"`
	Browser         BrowserConfig   `yaml:"browser"`
	MCPServers      []MCPServer     `yaml:"mcp_servers,omitempty"`
}

// RateLimitConfig bounds tool invocations per tool.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	PerSec  float64 `yaml:"per_sec"`
	Burst   int     `yaml:"burst"`
}

// SanitizeConfig bounds tool results returned toward a language model.
type SanitizeConfig struct {
	MaxBytes     int `yaml:"max_bytes"`
	MinBlobChars int `yaml:"min_blob_chars"`
}

// BrowserConfig holds chromedp settings.
type BrowserConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Headless   bool          `yaml:"headless"`
	CDPURL     string        `yaml:"cdp_url,omitempty"` // attach to a running browser
	Timeout    time.Duration `yaml:"timeout"`
	MaxContent int           `yaml:"max_content"`
	// AllowedHosts bypass the private-address check, e.g. "localhost:3000".
	AllowedHosts []string `yaml:"allowed_hosts,omitempty"`
}

// MCPServer configures a remote MCP server connection.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// StoreConfig holds the scoped key-value store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
	// Encrypt seals values at rest. The passphrase comes from WAYFINDER_STORE_KEY.
	Encrypt bool `yaml:"encrypt"`
}

// SchedulerConfig holds cron/scheduler settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled task.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Action   string `yaml:"action"`
	OneShot  bool   `yaml:"one_shot,omitempty"`
}

// PresenceConfig holds idle detection settings.
type PresenceConfig struct {
	IdleThreshold time.Duration `yaml:"idle_threshold"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"` // "stdout", "stderr", "discard" or a file path

	// Rotation settings, used when Output is a file path.
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is "noop", "stdout" or "file".
	Exporter string `yaml:"exporter"`
	// Path is the span file for the "file" exporter.
	Path string `yaml:"path"`
}

// SecurityConfig holds audit settings.
type SecurityConfig struct {
	Audit AuditConfig `yaml:"audit"`
}

// AuditConfig holds audit logging settings.
type AuditConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Path      string          `yaml:"path"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig holds audit log retention policy settings.
type RetentionConfig struct {
	MaxAge  string `yaml:"max_age"`            // duration string, e.g. "2160h" (90 days)
	MaxSize string `yaml:"max_size,omitempty"` // e.g. "50MB"
}

// defaultDataDir returns the persistent data directory under $HOME/.wayfinder.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".wayfinder")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{
				{
					Name:    "openai",
					BaseURL: "https://api.openai.com/v1",
					Model:   "gpt-4o-mini",
				},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Agents: AgentsConfig{
			Observer: ObserverConfig{
				KeywordWeight: 0.5,
				TitleWeight:   0.3,
				URLWeight:     0.2,
				Decay:         0.6,
			},
			Critic: CriticConfig{Threshold: 0.7},
			Watchdog: WatchdogConfig{
				MaxNavigationsPerMinute: 30,
				SuspiciousTLDs:          []string{"zip", "mov", "xyz", "top"},
			},
		},
		Workflow: WorkflowConfig{
			Loop: LoopConfig{
				MaxIterations:       10,
				Delay:               2 * time.Second,
				StagnationThreshold: 3,
				ProgressEpsilon:     0.01,
				CircuitCooldown:     30 * time.Second,
				MaxCooldowns:        3,
			},
			Reflection: ReflectionConfig{
				MaxIterations: 3,
				Delay:         500 * time.Millisecond,
			},
			Parallel: ParallelConfig{MaxConcurrency: 4},
			Triggers: map[string]string{
				"timer_tick":   "background",
				"page_change":  "planning",
				"user_command": "narrate",
			},
			DataDir: filepath.Join(dataDir, "runs"),
		},
		Actions: ActionsConfig{
			Autonomy:       "assisted",
			TTL:            60 * time.Second,
			SweepInterval:  5 * time.Second,
			LedgerCapacity: 100,
			UndoDepth:      20,
			ExecuteTimeout: 30 * time.Second,
		},
		Capabilities: CapabilitiesConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				PerSec:  5,
				Burst:   10,
			},
			Sanitize: SanitizeConfig{
				MaxBytes:     16 * 1024,
				MinBlobChars: 64,
			},
			InvokeTimeout:   30 * time.Second,
			SandboxRoot:     filepath.Join(dataDir, "sandbox"),
			AllowedCommands: []string{"ls", "cat", "echo", "pwd", "grep", "wc", "head", "tail"},
			ShellTimeout:    30 * time.Second,
			Browser: BrowserConfig{
				Headless:   true,
				Timeout:    30 * time.Second,
				MaxContent: 50000,
			},
		},
		Store: StoreConfig{Path: filepath.Join(dataDir, "wayfinder.db")},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Tasks: []ScheduledTaskConfig{
				{Name: "observe", Schedule: "15s", Action: "observe_tick"},
				{Name: "sweep", Schedule: "5s", Action: "sweep_actions"},
				{Name: "audit-retention", Schedule: "@daily", Action: "audit_retention"},
			},
		},
		Presence: PresenceConfig{
			IdleThreshold: 5 * time.Minute,
			PollInterval:  10 * time.Second,
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Security: SecurityConfig{
			Audit: AuditConfig{
				Enabled:   true,
				Path:      filepath.Join(dataDir, "audit.jsonl"),
				Retention: RetentionConfig{MaxAge: "2160h"},
			},
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("WAYFINDER_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps WAYFINDER_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WAYFINDER_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("WAYFINDER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WAYFINDER_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("WAYFINDER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("WAYFINDER_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("WAYFINDER_TRACER_PATH"); v != "" {
		cfg.Tracer.Path = v
	}
	if v := os.Getenv("WAYFINDER_ACTIONS_AUTONOMY"); v != "" {
		cfg.Actions.Autonomy = v
	}
	if v := os.Getenv("WAYFINDER_ACTIONS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Actions.TTL = d
		}
	}
	if v := os.Getenv("WAYFINDER_ACTIONS_KNOWN_DOMAINS"); v != "" {
		cfg.Actions.KnownDomains = splitAndTrim(v, ",")
	}
	if v := os.Getenv("WAYFINDER_LOOP_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workflow.Loop.MaxIterations = n
		}
	}
	if v := os.Getenv("WAYFINDER_LOOP_STAGNATION_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workflow.Loop.StagnationThreshold = n
		}
	}
	if v := os.Getenv("WAYFINDER_LOOP_PROGRESS_EPSILON"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Workflow.Loop.ProgressEpsilon = f
		}
	}
	if v := os.Getenv("WAYFINDER_LOOP_CIRCUIT_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Workflow.Loop.CircuitCooldown = d
		}
	}
	if v := os.Getenv("WAYFINDER_SANDBOX_ROOT"); v != "" {
		cfg.Capabilities.SandboxRoot = v
	}
	if v := os.Getenv("WAYFINDER_ALLOWED_COMMANDS"); v != "" {
		cfg.Capabilities.AllowedCommands = splitAndTrim(v, ",")
	}
	if v := os.Getenv("WAYFINDER_BROWSER_ENABLED"); v != "" {
		cfg.Capabilities.Browser.Enabled = v == "true"
	}
	if v := os.Getenv("WAYFINDER_BROWSER_CDP_URL"); v != "" {
		cfg.Capabilities.Browser.CDPURL = v
	}
	if v := os.Getenv("WAYFINDER_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("WAYFINDER_AUDIT_PATH"); v != "" {
		cfg.Security.Audit.Path = v
	}

	// Provider API keys: WAYFINDER_<NAME>_API_KEY overrides an empty key.
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		envName := "WAYFINDER_" + strings.ToUpper(strings.ReplaceAll(p.Name, "-", "_")) + "_API_KEY"
		if v := os.Getenv(envName); v != "" && p.APIKey == "" {
			p.APIKey = v
		}
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." values in provider API keys and MCP server
// env entries and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}

	for i := range cfg.Capabilities.MCPServers {
		srv := &cfg.Capabilities.MCPServers[i]
		for k, v := range srv.Env {
			if !strings.HasPrefix(v, "enc:") {
				continue
			}
			decrypted, err := DecryptValue(strings.TrimPrefix(v, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("mcp server %s env %s: %w", srv.Name, k, err)
			}
			srv.Env[k] = decrypted
		}
	}

	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
