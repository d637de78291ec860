package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"wayfinder/internal/adapter/store"
	"wayfinder/internal/domain"
	"wayfinder/internal/infra/config"
	"wayfinder/internal/security"
)

// loggerHandle pairs the process logger with its closer.
type loggerHandle struct {
	*slog.Logger
	close func() error
}

// SecurityComponents holds the sandbox, audit log and persistent store.
type SecurityComponents struct {
	Sandbox         *security.Sandbox
	URLGuard        *security.URLGuard
	AuditLogger     domain.AuditLogger
	FileAuditLogger *security.FileAuditLogger // nil when audit is disabled
	Store           *store.DB
}

// initSecurity opens everything the capability layer must be confined by,
// plus the SQLite store. The returned cleanup runs in reverse order.
func initSecurity(ctx context.Context, cfg *config.Config, log *slog.Logger) (*SecurityComponents, func(), error) {
	comp := &SecurityComponents{}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// 1. Sandbox
	sb, err := security.NewSandbox(cfg.Capabilities.SandboxRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("sandbox: %w", err)
	}
	comp.Sandbox = sb
	log.Info("sandbox initialized", "root", sb.Root())

	// 2. URL guard for browser navigation
	comp.URLGuard = security.NewURLGuard(nil, cfg.Capabilities.Browser.AllowedHosts)

	// 3. Audit log
	if cfg.Security.Audit.Enabled {
		policy, err := retentionPolicy(cfg.Security.Audit.Retention)
		if err != nil {
			return nil, nil, err
		}
		fa, err := security.NewFileAuditLogger(cfg.Security.Audit.Path, policy)
		if err != nil {
			return nil, nil, fmt.Errorf("audit logger: %w", err)
		}
		comp.AuditLogger = fa
		comp.FileAuditLogger = fa
		cleanups = append(cleanups, func() { fa.Close() })
		log.Info("audit logging enabled", "path", cfg.Security.Audit.Path)
	}

	// 4. Store
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	cleanups = append(cleanups, func() { db.Close() })
	if cfg.Store.Encrypt {
		passphrase := os.Getenv("WAYFINDER_STORE_KEY")
		if passphrase == "" {
			cleanup()
			return nil, nil, fmt.Errorf("store.encrypt is set but WAYFINDER_STORE_KEY is empty")
		}
		if err := db.EnableEncryption(ctx, passphrase); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("store encryption: %w", err)
		}
		log.Info("store encryption enabled")
	}
	comp.Store = db

	return comp, cleanup, nil
}

func retentionPolicy(rc config.RetentionConfig) (security.RetentionPolicy, error) {
	var p security.RetentionPolicy
	if rc.MaxAge != "" {
		d, err := time.ParseDuration(rc.MaxAge)
		if err != nil {
			return p, fmt.Errorf("audit retention max_age: %w", err)
		}
		p.MaxAge = d
	}
	size, err := security.ParseRetentionMaxSize(rc.MaxSize)
	if err != nil {
		return p, fmt.Errorf("audit retention max_size: %w", err)
	}
	p.MaxSize = size
	return p, nil
}
