package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"wayfinder/internal/infra/config"
	"wayfinder/internal/infra/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd := "run"
	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "run":
		err = runAgent()
	case "manifest":
		err = runManifest()
	case "mcp":
		err = runMCP()
	case "ledger":
		err = runLedger()
	case "runs":
		err = runRuns()
	case "doctor":
		err = runDoctor()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'wayfinder --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`wayfinder - goal-directed browsing companion

USAGE:
    wayfinder [COMMAND] [FLAGS]

COMMANDS:
    run         Run the companion (default)
    manifest    Print the capability manifest as JSON
    mcp         Serve the capability registry as an MCP server on stdio
    ledger      Print archived action resolutions, newest first
                Flags: --limit N (default 50)
    runs        Print recent workflow runs, newest first
                Flags: --limit N (default 20)
    doctor      Run health checks on your setup

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./wayfinder.yaml)

CONFIGURATION:
    Config file: ./wayfinder.yaml (missing file = defaults)
    Environment: WAYFINDER_* variables override config
    Secrets:     WAYFINDER_CONFIG_KEY decrypts enc: values in the config
                 WAYFINDER_STORE_KEY seals the SQLite store when store.encrypt is set

RUN CONSOLE:
    goal <text> [| keyword, keyword]   set the current goal
    open <url>                         propose a navigation
    pending                            list actions awaiting confirmation
    edit <id> <json>                   replace a pending action's arguments
    approve <id> / deny <id> [reason]  resolve a pending action
    undo                               revert the last reversible action
    ledger                             show recent resolutions
    anything else                      sent to the companion as a command`)
}

// configPath resolves --config, then WAYFINDER_CONFIG, then the default.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("WAYFINDER_CONFIG"); p != "" {
		return p
	}
	return "wayfinder.yaml"
}

// intFlag reads "--name N" or "--name=N" from os.Args.
func intFlag(name string, def int) int {
	flag := "--" + name
	for i, arg := range os.Args {
		var v string
		switch {
		case arg == flag && i+1 < len(os.Args):
			v = os.Args[i+1]
		case strings.HasPrefix(arg, flag+"="):
			v = strings.TrimPrefix(arg, flag+"=")
		default:
			continue
		}
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// logMode says which standard streams the command needs for itself.
type logMode int

const (
	logDefault logMode = iota
	// logStdoutReserved keeps logs off stdout, which carries command output.
	logStdoutReserved
	// logInteractive keeps logs off the terminal entirely while the
	// full-screen console owns it.
	logInteractive
)

// loadConfig loads the config and opens the configured logger, moving log
// output out of the way of the streams mode reserves.
func loadConfig(mode logMode) (*config.Config, *loggerHandle, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, err
	}
	out := strings.ToLower(cfg.Logger.Output)
	switch {
	case mode == logStdoutReserved && (out == "stdout" || out == ""):
		cfg.Logger.Output = "stderr"
	case mode == logInteractive && (out == "stdout" || out == "stderr" || out == ""):
		cfg.Logger.Output = filepath.Join(filepath.Dir(cfg.Store.Path), "wayfinder.log")
	}
	if mode != logDefault && cfg.Tracer.Exporter == "stdout" {
		cfg.Tracer.Exporter = "file"
		if cfg.Tracer.Path == "" {
			cfg.Tracer.Path = filepath.Join(filepath.Dir(cfg.Store.Path), "spans.json")
		}
	}
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, &loggerHandle{Logger: log, close: closeLog}, nil
}

// stdinIsTerminal reports whether the full-screen console will be used.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
