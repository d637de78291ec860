package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"wayfinder/internal/adapter/console"
	"wayfinder/internal/adapter/mcpserve"
	"wayfinder/internal/infra/logger"
	"wayfinder/internal/infra/tracer"
	"wayfinder/internal/usecase/eventbus"
	"wayfinder/internal/usecase/workflow"
)

// runAgent starts the companion and serves the console until the user
// quits or a signal arrives.
func runAgent() error {
	mode := logDefault
	if stdinIsTerminal() {
		mode = logInteractive
	}
	cfg, log, err := loadConfig(mode)
	if err != nil {
		return err
	}
	defer log.close()

	ctx, stop := signalContext()
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracer(sctx)
	}()

	bus := eventbus.New(logger.Component(log.Logger, "eventbus"))
	defer bus.Close()

	sec, cleanupSec, err := initSecurity(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer cleanupSec()

	caps, cleanupCaps, err := initCapabilities(ctx, cfg, sec, bus, log.Logger)
	if err != nil {
		return err
	}
	defer cleanupCaps()

	provider, err := initLLM(cfg, log.Logger)
	if err != nil {
		return err
	}
	_, wfs, err := initAgents(cfg, provider, caps.Server, sec.AuditLogger, log.Logger)
	if err != nil {
		return err
	}

	rt, cleanupRT, err := initRuntime(ctx, cfg, sec, caps, wfs, bus, log.Logger)
	if err != nil {
		return err
	}
	defer cleanupRT()

	log.Info("wayfinder started", "version", version, "autonomy", cfg.Actions.Autonomy)
	cmds := console.NewCommands(rt.Dispatcher, rt.Queue, rt.Queue.Ledger(), bus)
	err = console.New(cmds, bus, logger.Component(log.Logger, "console")).Run(ctx, os.Stdin, os.Stdout)
	stop()
	log.Info("wayfinder stopping")
	return err
}

// runManifest prints the capability manifest without starting anything
// that reacts to events.
func runManifest() error {
	cfg, log, err := loadConfig(logStdoutReserved)
	if err != nil {
		return err
	}
	defer log.close()
	ctx, stop := signalContext()
	defer stop()

	sec, cleanupSec, err := initSecurity(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer cleanupSec()
	caps, cleanupCaps, err := initCapabilities(ctx, cfg, sec, nil, log.Logger)
	if err != nil {
		return err
	}
	defer cleanupCaps()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(caps.Server.Manifest())
}

// runMCP exposes the capability registry to an MCP host over stdio.
func runMCP() error {
	cfg, log, err := loadConfig(logStdoutReserved)
	if err != nil {
		return err
	}
	defer log.close()
	ctx, stop := signalContext()
	defer stop()

	bus := eventbus.New(logger.Component(log.Logger, "eventbus"))
	defer bus.Close()

	sec, cleanupSec, err := initSecurity(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer cleanupSec()
	caps, cleanupCaps, err := initCapabilities(ctx, cfg, sec, bus, log.Logger)
	if err != nil {
		return err
	}
	defer cleanupCaps()

	// Side-effecting tools stay behind the confirmation queue of the
	// interactive runtime; mcpserve publishes only the read-only ones.
	srv := mcpserve.New(caps.Server, version, logger.Component(log.Logger, "mcp"))
	log.Info("serving mcp on stdio")
	return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
}

// runLedger prints archived resolutions from the store.
func runLedger() error {
	cfg, log, err := loadConfig(logStdoutReserved)
	if err != nil {
		return err
	}
	defer log.close()
	ctx, stop := signalContext()
	defer stop()

	sec, cleanupSec, err := initSecurity(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer cleanupSec()

	entries, err := sec.Store.Ledger().Recent(ctx, intFlag("limit", 50))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No resolutions recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  #%-4d %-8s %-6s %-18s %s", e.ResolvedAt.Local().Format(time.DateTime), e.ID, e.Status, e.RiskLevel, e.ResolvedBy, e.Description)
		if e.Error != "" {
			fmt.Printf("  (%s)", e.Error)
		}
		fmt.Println()
	}
	return nil
}

func runRuns() error {
	cfg, log, err := loadConfig(logStdoutReserved)
	if err != nil {
		return err
	}
	defer log.close()

	history, err := workflow.NewFileStore(cfg.Workflow.DataDir)
	if err != nil {
		return err
	}
	runs, err := history.ListRuns(context.Background(), intFlag("limit", 20))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No workflow runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %-10s %-12s %-9s proximity %3.0f%%",
			r.CreatedAt.Local().Format(time.DateTime), r.ID, r.Workflow, r.Trigger, r.Status, r.Proximity*100)
		if r.Error != "" {
			fmt.Printf("  (%s)", r.Error)
		}
		fmt.Println()
	}
	return nil
}
