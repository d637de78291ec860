package action

import (
	"context"
	"log/slog"
	"sync"

	"wayfinder/internal/domain"
	"wayfinder/internal/security"
)

// DefaultLedgerCapacity is used when NewLedger is given a non-positive capacity.
const DefaultLedgerCapacity = 100

// Ledger is the capped, append-only history of action resolutions. Beyond
// capacity the oldest entry is evicted first. Every append is mirrored
// best-effort into an optional durable archive.
type Ledger struct {
	mu      sync.RWMutex
	buf     []domain.LedgerEntry
	head    int // index of the oldest entry
	size    int
	archive domain.LedgerArchive
	logger  *slog.Logger
}

// NewLedger creates a ledger holding at most capacity entries. archive may be nil.
func NewLedger(capacity int, archive domain.LedgerArchive, logger *slog.Logger) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &Ledger{
		buf:     make([]domain.LedgerEntry, capacity),
		archive: archive,
		logger:  logger,
	}
}

// Append records entry, evicting the oldest when full.
func (l *Ledger) Append(ctx context.Context, entry domain.LedgerEntry) {
	entry.Arguments = cloneRaw(entry.Arguments)

	l.mu.Lock()
	err := security.Recover(l.logger, "ledger.append", func() {
		idx := (l.head + l.size) % len(l.buf)
		l.buf[idx] = entry
		if l.size < len(l.buf) {
			l.size++
		} else {
			l.head = (l.head + 1) % len(l.buf)
		}
	}, func() {
		l.buf = make([]domain.LedgerEntry, len(l.buf))
		l.head, l.size = 0, 0
	})
	l.mu.Unlock()
	if err != nil {
		return
	}

	if l.archive != nil {
		if err := l.archive.Append(ctx, entry); err != nil {
			l.logger.Warn("ledger archive append failed", "action_id", entry.ID, "error", err)
		}
	}
}

// Entries returns the ledger newest first. limit <= 0 returns everything.
func (l *Ledger) Entries(limit int) []domain.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.LedgerEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.head + l.size - 1 - i) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// ForAction returns every entry recorded for the action id, oldest first.
func (l *Ledger) ForAction(id uint64) []domain.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.LedgerEntry
	for i := 0; i < l.size; i++ {
		e := l.buf[(l.head+i)%len(l.buf)]
		if e.ID == id {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries held.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Cap returns the ledger capacity.
func (l *Ledger) Cap() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf)
}
