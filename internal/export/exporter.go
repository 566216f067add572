// Package export copies committed ledger events into an analytics event store.
package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-presale/internal/domain"
	"solana-presale/internal/observability"
	"solana-presale/internal/storage"
)

// Exporter tails the ledger event log and appends new events to a sink.
// Progress is persisted per sink, so a restarted exporter resumes after the
// last exported sequence.
type Exporter struct {
	ledger       storage.Ledger
	sink         storage.EventStore
	progress     storage.ExportProgressStore
	sinkName     string
	batchSize    int
	pollInterval time.Duration
	logger       *log.Logger

	wake chan struct{}
}

// Options contains configuration for creating an Exporter.
type Options struct {
	Ledger       storage.Ledger
	Sink         storage.EventStore
	Progress     storage.ExportProgressStore
	SinkName     string        // Default: "clickhouse"
	BatchSize    int           // Default: 500
	PollInterval time.Duration // Default: 5s
	Logger       *log.Logger
}

// New creates a new Exporter.
func New(opts Options) *Exporter {
	sinkName := opts.SinkName
	if sinkName == "" {
		sinkName = "clickhouse"
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = 5 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Exporter{
		ledger:       opts.Ledger,
		sink:         opts.Sink,
		progress:     opts.Progress,
		sinkName:     sinkName,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		logger:       logger,
		wake:         make(chan struct{}, 1),
	}
}

// Publish wakes the exporter after a commit. It never blocks.
func (x *Exporter) Publish(*domain.LedgerEvent) {
	select {
	case x.wake <- struct{}{}:
	default:
	}
}

// Run exports until ctx is cancelled. Failed batches are retried on the
// next tick.
func (x *Exporter) Run(ctx context.Context) error {
	x.logger.Printf("Starting %s exporter, batch size: %d, poll interval: %v", x.sinkName, x.batchSize, x.pollInterval)

	ticker := time.NewTicker(x.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := x.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			x.logger.Printf("Export to %s failed: %v", x.sinkName, err)
		}

		select {
		case <-ctx.Done():
			x.logger.Println("Exporter stopping...")
			return ctx.Err()
		case <-ticker.C:
		case <-x.wake:
		}
	}
}

// Drain exports batches until the sink has caught up with the ledger and
// returns the number of events exported.
func (x *Exporter) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := x.ExportOnce(ctx)
		total += n
		if err != nil || n < x.batchSize {
			return total, err
		}
	}
}

// ExportOnce exports at most one batch and returns its size.
func (x *Exporter) ExportOnce(ctx context.Context) (int, error) {
	last, err := x.progress.GetLastExported(ctx, x.sinkName)
	if errors.Is(err, storage.ErrNotFound) {
		last = 0
	} else if err != nil {
		return 0, fmt.Errorf("get export progress: %w", err)
	}

	var events []*domain.LedgerEvent
	err = x.ledger.View(ctx, func(tx storage.Tx) error {
		var err error
		events, err = tx.ListEventsAfter(ctx, last, x.batchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list ledger events after %d: %w", last, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := x.insert(ctx, events); err != nil {
		observability.RecordExport(x.sinkName, 0, last, err)
		return 0, err
	}

	next := events[len(events)-1].Sequence
	if err := x.progress.SetLastExported(ctx, x.sinkName, next); err != nil {
		observability.RecordExport(x.sinkName, 0, last, err)
		return 0, fmt.Errorf("save export progress: %w", err)
	}

	observability.RecordExport(x.sinkName, len(events), next, nil)
	return len(events), nil
}

// insert writes events as one batch. A batch that partially reached the sink
// before a crash is retried event by event, skipping the ones already there.
func (x *Exporter) insert(ctx context.Context, events []*domain.LedgerEvent) error {
	err := x.sink.InsertBulk(ctx, events)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("insert events: %w", err)
	}

	for _, e := range events {
		err := x.sink.InsertBulk(ctx, []*domain.LedgerEvent{e})
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("insert event %d: %w", e.Sequence, err)
		}
	}
	return nil
}
