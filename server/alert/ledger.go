package alert

import (
	"context"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/cache"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
)

// LedgerEntry is the dispatch state of one (event, channel) pair.
type LedgerEntry struct {
	EventID   string                `json:"event_id"`
	Channel   string                `json:"channel"`
	Status    models.DispatchStatus `json:"status"`
	Attempts  int                   `json:"attempts"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Ledger remembers which (event, channel) pairs were already handed to a
// worker so a repeated dispatch never sends twice. Entries live for the
// retention period.
type Ledger struct {
	cache     cache.Cache
	retention time.Duration
}

func NewLedger(store cache.Cache, retention time.Duration) *Ledger {
	return &Ledger{cache: store, retention: retention}
}

func ledgerKey(eventID, channel string) string {
	return "dispatch:" + eventID + ":" + channel
}

func (l *Ledger) Get(ctx context.Context, eventID, channel string) (LedgerEntry, bool) {
	v, err := l.cache.Get(ctx, ledgerKey(eventID, channel))
	if err != nil {
		return LedgerEntry{}, false
	}
	entry, ok := v.(LedgerEntry)
	return entry, ok
}

func (l *Ledger) Put(ctx context.Context, entry LedgerEntry) error {
	return l.cache.SetWithTTL(ctx, ledgerKey(entry.EventID, entry.Channel), entry, l.retention)
}

func (l *Ledger) Delete(ctx context.Context, eventID, channel string) error {
	return l.cache.Delete(ctx, ledgerKey(eventID, channel))
}
