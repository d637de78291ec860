package agents

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"wayfinder/internal/domain"
	"wayfinder/internal/security"
)

// WatchdogConfig holds anomaly thresholds.
type WatchdogConfig struct {
	MaxNavigationsPerMinute int
	SuspiciousTLDs          []string
}

// DefaultWatchdogConfig returns the stock thresholds.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		MaxNavigationsPerMinute: 20,
		SuspiciousTLDs:          []string{"zip", "mov", "top", "xyz", "tk"},
	}
}

// DataAnomalies is the output key listing detected anomalies.
const DataAnomalies = "anomalies"

// Watchdog looks for signs that the browsing session is being hijacked or
// steered somewhere dangerous. It keeps a short navigation history.
type Watchdog struct {
	Base
	cfg    WatchdogConfig
	tlds   map[string]bool
	audit  domain.AuditLogger // optional
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastLoc  string
	navTimes []time.Time
}

// NewWatchdog creates a Watchdog. audit may be nil.
func NewWatchdog(cfg WatchdogConfig, audit domain.AuditLogger, logger *slog.Logger) *Watchdog {
	if cfg.MaxNavigationsPerMinute <= 0 {
		cfg.MaxNavigationsPerMinute = DefaultWatchdogConfig().MaxNavigationsPerMinute
	}
	tlds := make(map[string]bool, len(cfg.SuspiciousTLDs))
	for _, t := range cfg.SuspiciousTLDs {
		tlds[strings.ToLower(strings.TrimPrefix(t, "."))] = true
	}
	return &Watchdog{
		Base:   NewBase(NameWatchdog, "Detects security anomalies in browsing activity"),
		cfg:    cfg,
		tlds:   tlds,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// CanHandle requires a location.
func (w *Watchdog) CanHandle(actx domain.AgentContext) bool {
	return actx.Location != ""
}

// Reset forgets the navigation history.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	w.lastLoc = ""
	w.navTimes = nil
	w.mu.Unlock()
}

func (w *Watchdog) Process(ctx context.Context, actx domain.AgentContext) (*domain.AgentOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(w.Name())
	}

	var anomalies []string
	if n := w.recordNavigation(actx.Location); n > w.cfg.MaxNavigationsPerMinute {
		anomalies = append(anomalies, fmt.Sprintf("%d navigations in the last minute", n))
	}
	anomalies = append(anomalies, w.inspect(actx)...)

	if len(anomalies) == 0 {
		return domain.NewAgentOutput(w.Name(), "no anomalies", 1).WithNext(domain.Continue), nil
	}

	w.logger.Warn("watchdog anomaly", "location", actx.Location, "anomalies", anomalies)
	w.report(ctx, actx.Location, anomalies)
	return domain.NewAgentOutput(w.Name(), "anomaly: "+strings.Join(anomalies, "; "), 1).
		WithData(DataAnomalies, anomalies).
		WithNext(domain.Stop), nil
}

// recordNavigation notes a location change and returns how many changes
// happened within the last minute.
func (w *Watchdog) recordNavigation(loc string) int {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	if loc != w.lastLoc {
		w.lastLoc = loc
		w.navTimes = append(w.navTimes, now)
	}
	cutoff := now.Add(-time.Minute)
	keep := w.navTimes[:0]
	for _, t := range w.navTimes {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	w.navTimes = keep
	return len(w.navTimes)
}

func (w *Watchdog) inspect(actx domain.AgentContext) []string {
	var out []string
	u, err := url.Parse(actx.Location)
	if err != nil {
		return []string{"unparseable location"}
	}

	switch strings.ToLower(u.Scheme) {
	case "javascript", "data", "file", "vbscript":
		out = append(out, fmt.Sprintf("dangerous scheme %q", u.Scheme))
	}

	host := strings.ToLower(u.Hostname())
	if host != "" {
		if ip := net.ParseIP(host); ip != nil {
			if security.IsPrivateIP(ip) {
				out = append(out, "navigation to a private network address")
			} else {
				out = append(out, "navigation to a raw IP address")
			}
		}
		if strings.HasPrefix(host, "xn--") || strings.Contains(host, ".xn--") {
			out = append(out, "punycode host, possible homograph")
		}
		if i := strings.LastIndexByte(host, '.'); i >= 0 && w.tlds[host[i+1:]] {
			out = append(out, fmt.Sprintf("suspicious top-level domain %q", host[i+1:]))
		}
	}

	if strings.EqualFold(u.Scheme, "http") && strings.Contains(strings.ToLower(actx.PageContent), "password") {
		out = append(out, "credential prompt over plain http")
	}
	return out
}

func (w *Watchdog) report(ctx context.Context, location string, anomalies []string) {
	if w.audit == nil {
		return
	}
	err := w.audit.Log(ctx, domain.AuditEvent{
		Timestamp: w.now(),
		Type:      domain.AuditAnomaly,
		Actor:     w.Name(),
		Resource:  location,
		Action:    "inspect",
		Outcome:   "anomaly",
		Detail:    map[string]string{"anomalies": strings.Join(anomalies, "; ")},
	})
	if err != nil {
		w.logger.Warn("watchdog audit write failed", "error", err)
	}
}
