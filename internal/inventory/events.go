package inventory

import (
	"context"
	"log/slog"
	"sync"
)

// ChangeOp names a ledger mutation.
type ChangeOp string

const (
	ChangeInserted ChangeOp = "insert"
	ChangeUpdated  ChangeOp = "update"
	ChangeDeleted  ChangeOp = "delete"
)

// Change is one committed ledger mutation.
type Change struct {
	Op    ChangeOp
	Entry Entry
}

// Observer counts ledger activity.
type Observer interface {
	ObserveLedgerEntry(direction, cause, op string)
	ObserveStockRejection(cause string)
}

// Invalidator drops cached read models derived from the ledger.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Recorder wraps a LedgerTx and remembers every mutation made through it.
type Recorder struct {
	LedgerTx
	mu      sync.Mutex
	changes []Change
}

// Record starts recording mutations on tx.
func Record(tx LedgerTx) *Recorder {
	if r, ok := tx.(*Recorder); ok {
		return r
	}
	return &Recorder{LedgerTx: tx}
}

// InsertEntry records the inserted entry.
func (r *Recorder) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	saved, err := r.LedgerTx.InsertEntry(ctx, entry)
	if err == nil {
		r.add(ChangeInserted, saved)
	}
	return saved, err
}

// UpdateEntry records the updated entry.
func (r *Recorder) UpdateEntry(ctx context.Context, entry Entry) error {
	err := r.LedgerTx.UpdateEntry(ctx, entry)
	if err == nil {
		r.add(ChangeUpdated, entry)
	}
	return err
}

// DeleteEntry records the deletion. The entry is loaded first so the change carries its data.
func (r *Recorder) DeleteEntry(ctx context.Context, id int64) error {
	entry, err := r.LedgerTx.GetEntryForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if err := r.LedgerTx.DeleteEntry(ctx, id); err != nil {
		return err
	}
	r.add(ChangeDeleted, entry)
	return nil
}

// Changes returns the recorded mutations in order.
func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

func (r *Recorder) add(op ChangeOp, e Entry) {
	r.mu.Lock()
	r.changes = append(r.changes, Change{Op: op, Entry: e})
	r.mu.Unlock()
}

// Notifier fans committed changes out to metrics and cache invalidation.
type Notifier struct {
	observer Observer
	cache    Invalidator
	logger   *slog.Logger
}

// NewNotifier builds Notifier. Nil dependencies are skipped.
func NewNotifier(observer Observer, cache Invalidator, logger *slog.Logger) *Notifier {
	return &Notifier{observer: observer, cache: cache, logger: logger}
}

// LedgerChanged publishes changes after their transaction commits.
func (n *Notifier) LedgerChanged(ctx context.Context, changes []Change) {
	if n == nil || len(changes) == 0 {
		return
	}
	if n.observer != nil {
		for _, c := range changes {
			n.observer.ObserveLedgerEntry(string(c.Entry.Direction), string(c.Entry.Cause.Kind), string(c.Op))
		}
	}
	if n.cache != nil {
		if err := n.cache.Bump(ctx); err != nil && n.logger != nil {
			n.logger.Warn("ledger cache bump", slog.Any("error", err))
		}
	}
}

// StockRejected counts an insufficient-stock rejection for cause.
func (n *Notifier) StockRejected(cause CauseKind) {
	if n == nil || n.observer == nil {
		return
	}
	n.observer.ObserveStockRejection(string(cause))
}

// Invalidate bumps the derived-data cache for non-ledger changes such as order edits.
func (n *Notifier) Invalidate(ctx context.Context) {
	if n == nil || n.cache == nil {
		return
	}
	if err := n.cache.Bump(ctx); err != nil && n.logger != nil {
		n.logger.Warn("cache bump", slog.Any("error", err))
	}
}
