package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/CheRocks42/project-re-governance-protocol/internal/metrics"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/ledger"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/store"
)

// exportBatch bounds one AppendEvents call.
const exportBatch = 256

// Exporter periodically copies new ledger events into an EvidenceStore. It
// runs as a background goroutine and is stopped via its context or Stop,
// which performs a final flush.
//
// A nil store disables exporting entirely.
type Exporter struct {
	ledger   *ledger.Ledger
	store    store.EvidenceStore
	interval time.Duration
	logger   *log.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex // guards cursor; held for a whole flush
	cursor int64

	cancel context.CancelFunc
	done   chan struct{}
}

// ExporterConfig holds the parameters for NewExporter.
type ExporterConfig struct {
	// IntervalSeconds is how often new events are exported. Defaults to 5.
	IntervalSeconds int
}

// NewExporter creates an exporter but does not start it.
func NewExporter(l *ledger.Ledger, s store.EvidenceStore, cfg ExporterConfig, logger *log.Logger, m *metrics.Metrics) *Exporter {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Exporter{
		ledger:   l,
		store:    s,
		interval: interval,
		logger:   logger,
		metrics:  m,
		done:     make(chan struct{}),
	}
}

// Start resumes from the archive's last seq for this ledger run, then
// exports on every tick until ctx is cancelled or Stop is called.
func (e *Exporter) Start(ctx context.Context) {
	if e.store == nil {
		e.logger.Printf("evidence exporter disabled")
		close(e.done)
		return
	}

	if last, err := e.store.LastSeq(ctx, e.ledger.RunID()); err != nil {
		e.logger.Printf("evidence exporter: resume cursor: %v", err)
	} else {
		e.mu.Lock()
		e.cursor = last
		e.mu.Unlock()
	}

	ctx, e.cancel = context.WithCancel(ctx)
	go e.loop(ctx)

	e.logger.Printf("evidence exporter started (run=%s, interval=%s)", e.ledger.RunID(), e.interval)
}

// Stop signals the exporter to exit and waits for the final flush.
func (e *Exporter) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	<-e.done
}

// Done is closed once the exporter has exited.
func (e *Exporter) Done() <-chan struct{} { return e.done }

// Cursor returns the seq of the last exported event.
func (e *Exporter) Cursor() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

func (e *Exporter) loop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := e.Flush(flushCtx); err != nil {
				e.logger.Printf("evidence export final flush: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := e.Flush(ctx); err != nil {
				e.logger.Printf("evidence export error: %v", err)
			}
		}
	}
}

// Flush exports every event recorded since the cursor and returns how many
// were written. On error the cursor stays at the last successful batch.
func (e *Exporter) Flush(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	runID := e.ledger.RunID()
	total := 0
	batch := make([]store.ArchivedEvent, 0, exportBatch)

	write := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.store.AppendEvents(ctx, batch); err != nil {
			e.metrics.IncrementExportError()
			return err
		}
		e.cursor = batch[len(batch)-1].Seq
		total += len(batch)
		e.metrics.AddExported(len(batch))
		batch = batch[:0]
		return nil
	}

	for ev := range e.ledger.EntriesSince(e.cursor) {
		batch = append(batch, store.Archive(runID, ev))
		if len(batch) == exportBatch {
			if err := write(); err != nil {
				return total, err
			}
		}
	}
	if err := write(); err != nil {
		return total, err
	}

	if total > 0 {
		e.logger.Printf("evidence export: wrote %d events (cursor=%d)", total, e.cursor)
	}
	return total, nil
}
