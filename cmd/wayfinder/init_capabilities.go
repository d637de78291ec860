package main

import (
	"context"
	"log/slog"

	"wayfinder/internal/adapter/tool"
	"wayfinder/internal/domain"
	"wayfinder/internal/infra/config"
	"wayfinder/internal/infra/logger"
	"wayfinder/internal/usecase/agents"
	"wayfinder/internal/usecase/capability"
)

const narratePromptBody = `You are a friendly companion guiding a user toward a goal while they browse.
The user's goal: {{.goal}}
They are on "{{.title}}" ({{.location}}), proximity {{.proximity}} on a 0-1 scale.
{{if eq .mode "celebrate"}}They just reached the goal. Celebrate with them in one or two sentences.
{{else if eq .mode "command"}}They said: "{{.command}}". Answer helpfully and briefly.
{{else}}Give a short, encouraging remark about their progress. Do not give the answer away.
{{end}}{{if .feedback}}A reviewer asked you to improve your last reply: {{.feedback}}
{{end}}Reply in plain text, no more than two sentences.`

// CapabilityComponents is the populated capability server and the
// resources behind it that need closing.
type CapabilityComponents struct {
	Server  *capability.Server
	Browser *tool.Browser // nil when the browser is disabled or failed to start
}

// initCapabilities builds the capability server and registers every
// configured tool provider plus the built-in prompts.
func initCapabilities(ctx context.Context, cfg *config.Config, sec *SecurityComponents, bus domain.EventBus, log *slog.Logger) (*CapabilityComponents, func(), error) {
	capCfg := capability.Config{
		InvokeTimeout: cfg.Capabilities.InvokeTimeout,
		Sanitize: capability.SanitizeConfig{
			MaxBytes:     cfg.Capabilities.Sanitize.MaxBytes,
			MinBlobChars: cfg.Capabilities.Sanitize.MinBlobChars,
		},
	}
	if cfg.Capabilities.RateLimit.Enabled {
		capCfg.RatePerSec = cfg.Capabilities.RateLimit.PerSec
		capCfg.Burst = cfg.Capabilities.RateLimit.Burst
	}
	srv := capability.NewServer(capCfg, bus, sec.AuditLogger, logger.Component(log, "capability"))
	comp := &CapabilityComponents{Server: srv}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	toolLog := logger.Component(log, "tool")
	providers := localProviders(cfg, sec, bus, toolLog)

	if bc := cfg.Capabilities.Browser; bc.Enabled {
		backend, err := tool.NewChromeDPBackend(tool.ChromeDPConfig{
			RemoteURL:  bc.CDPURL,
			Headless:   bc.Headless,
			Timeout:    bc.Timeout,
			MaxContent: bc.MaxContent,
		}, toolLog)
		if err != nil {
			// The companion still works without a browser; page updates can
			// arrive from an MCP host instead.
			log.Warn("browser unavailable, continuing without it", "error", err)
		} else {
			comp.Browser = tool.NewBrowser(backend, sec.URLGuard, toolLog)
			cleanups = append(cleanups, func() { comp.Browser.Close() })
			providers = append(providers, comp.Browser)
		}
	}

	if len(cfg.Capabilities.MCPServers) > 0 {
		bridge, err := tool.NewMCPBridge(ctx, cfg.Capabilities.MCPServers, toolLog)
		if err != nil {
			log.Warn("no mcp server reachable, continuing without remote tools", "error", err)
		} else {
			cleanups = append(cleanups, bridge.Close)
			providers = append(providers, bridge)
		}
	}

	n, err := tool.Register(srv, providers...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if err := srv.RegisterPrompt(capability.MustTemplatePrompt(domain.PromptDescriptor{
		Name:        agents.PromptNarrate,
		Description: "System prompt for the companion's narration",
		Arguments: []domain.PromptArgument{
			{Name: "mode", Description: "progress, command or celebrate", Required: true},
			{Name: "goal"},
			{Name: "location"},
			{Name: "title"},
			{Name: "proximity"},
			{Name: "command"},
			{Name: "feedback"},
		},
	}, narratePromptBody)); err != nil {
		cleanup()
		return nil, nil, err
	}

	log.Info("capabilities registered", "tools", n, "browser", comp.Browser != nil)
	return comp, cleanup, nil
}

// localProviders returns the in-process capability providers: filesystem,
// notify and, when commands are allowlisted, shell.
func localProviders(cfg *config.Config, sec *SecurityComponents, bus domain.EventBus, log *slog.Logger) []tool.Provider {
	providers := []tool.Provider{
		tool.NewFilesystem(tool.NewLocalFilesystemBackend(), sec.Sandbox, log),
		tool.Single{Tool: tool.NewNotifyTool(bus, log)},
	}
	if len(cfg.Capabilities.AllowedCommands) > 0 {
		providers = append(providers, tool.Single{Tool: tool.NewShellTool(
			tool.NewLocalShellBackend(cfg.Capabilities.ShellTimeout),
			cfg.Capabilities.AllowedCommands, sec.Sandbox, log)})
	}
	return providers
}
