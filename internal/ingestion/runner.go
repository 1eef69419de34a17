package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/feed"
	"mediamix-lab/internal/observability"
	"mediamix-lab/internal/storage"
)

// Runner orchestrates continuous ingestion from the streaming feed.
type Runner struct {
	streamSource  *WSStreamSource
	spendStore    storage.SpendRecordStore
	outcomeStore  storage.OutcomeRecordStore
	progressStore storage.IngestProgressStore
	registrar     *channelRegistrar
	sourceID      string
	seqLagWindow  int64         // Number of batch sequences to buffer for ordering
	flushInterval time.Duration // Interval for periodic buffer flush
	logger        *log.Logger

	// Sequence-based buffer for deterministic ordering
	// Events are grouped by batch sequence and processed when the sequence is settled
	buffer     map[int64][]*StreamEvent
	highestSeq int64 // Highest batch sequence seen
	appliedSeq int64 // Highest batch sequence applied this run
	resumeSeq  int64 // High-water mark from a previous run; events at or below are replays

	lastPeriodStart int64

	stats RunnerStats
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	StreamSource  *WSStreamSource
	SpendStore    storage.SpendRecordStore
	OutcomeStore  storage.OutcomeRecordStore
	ChannelStore  storage.ChannelStore
	ProgressStore storage.IngestProgressStore

	// SourceID names the feed in ingest_progress and batch IDs. Default: "stream-feed".
	SourceID      string
	SeqLagWindow  int64         // Default: 5 sequences - wait this many batches before processing
	FlushInterval time.Duration // Default: 5s - force flush buffered events periodically
	Logger        *log.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	sourceID := opts.SourceID
	if sourceID == "" {
		sourceID = "stream-feed"
	}

	seqLagWindow := opts.SeqLagWindow
	if seqLagWindow == 0 {
		seqLagWindow = 5 // Wait 5 batch sequences for late envelopes
	}

	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 5 * time.Second // Force flush every 5 seconds
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		streamSource:  opts.StreamSource,
		spendStore:    opts.SpendStore,
		outcomeStore:  opts.OutcomeStore,
		progressStore: opts.ProgressStore,
		registrar:     newChannelRegistrar(opts.ChannelStore, opts.ProgressStore, domain.SourceStreamFeed),
		sourceID:      sourceID,
		seqLagWindow:  seqLagWindow,
		flushInterval: flushInterval,
		logger:        logger,
		buffer:        make(map[int64][]*StreamEvent),
	}
}

// Run starts continuous ingestion.
// It blocks until context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Println("Starting ingestion runner...")

	// Resume from the persisted high-water mark
	if r.progressStore != nil {
		progress, err := r.progressStore.GetProgress(ctx, r.sourceID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if progress != nil {
			r.resumeSeq = progress.LastBatchSeq
			r.appliedSeq = progress.LastBatchSeq
			r.lastPeriodStart = progress.LastPeriodStart
			r.logger.Printf("Resuming after batch seq %d (last period %d)", r.resumeSeq, r.lastPeriodStart)
		}
	}

	if err := r.registrar.Warm(ctx); err != nil {
		return err
	}

	// Subscribe to the feed
	var eventsCh <-chan *StreamEvent
	if r.streamSource != nil {
		var err error
		eventsCh, err = r.streamSource.Subscribe(ctx)
		if err != nil {
			return err
		}
		r.logger.Println("Subscribed to feed streams")
	}

	// Start periodic flush ticker to ensure buffered events are processed
	// even if no new higher sequences arrive (safety net for seq buffering)
	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	r.logger.Printf("Runner started, seq lag window: %d, flush interval: %v", r.seqLagWindow, r.flushInterval)

	for {
		select {
		case <-ctx.Done():
			// Flush all remaining events before shutdown
			r.flushAllSeqs(ctx)
			r.logger.Println("Runner stopping...")
			return ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				r.logger.Println("Stream events channel closed")
				return errors.New("stream events channel closed")
			}
			r.bufferEvent(ctx, event)

		case <-flushTicker.C:
			// Periodic flush: process settled sequences (respects seqLagWindow)
			// This ensures events are written even if no new sequences arrive,
			// while maintaining seq-ordering guarantees.
			// flushAllSeqs() is only used on shutdown when ordering no longer matters.
			r.processSettledSeqs(ctx)
		}
	}
}

// bufferEvent adds an event to the seq-based buffer and processes settled sequences.
func (r *Runner) bufferEvent(ctx context.Context, event *StreamEvent) {
	seq := event.Seq

	// Replay of a batch applied by a previous run
	if r.resumeSeq > 0 && seq <= r.resumeSeq {
		r.stats.ReplaysSkipped++
		return
	}

	r.buffer[seq] = append(r.buffer[seq], event)

	// Update highest seq and process settled sequences
	if seq > r.highestSeq {
		r.highestSeq = seq
		observability.UpdateHighestSeq(seq)
		r.processSettledSeqs(ctx)
	} else if seq <= r.highestSeq-r.seqLagWindow {
		// Late event for an already-settled sequence: process immediately
		r.processSeq(ctx, seq)
	}
	observability.UpdateBufferSize(len(r.buffer))
}

// processSettledSeqs processes all sequences behind the current highest by the lag window.
func (r *Runner) processSettledSeqs(ctx context.Context) {
	settledSeq := r.highestSeq - r.seqLagWindow
	if settledSeq < 0 {
		return
	}

	// Collect all sequences to process (in order)
	var seqsToProcess []int64
	for seq := range r.buffer {
		if seq <= settledSeq {
			seqsToProcess = append(seqsToProcess, seq)
		}
	}

	// Sort sequences
	sortInt64s(seqsToProcess)

	// Process each sequence in order
	for _, seq := range seqsToProcess {
		r.processSeq(ctx, seq)
	}
}

// processSeq processes all events for a single batch sequence with deterministic ordering.
func (r *Runner) processSeq(ctx context.Context, seq int64) {
	events, ok := r.buffer[seq]
	if !ok || len(events) == 0 {
		return
	}

	var spend []feed.SpendEvent
	var outcomes []feed.OutcomeEvent
	for _, event := range events {
		switch {
		case event.Spend != nil:
			spend = append(spend, *event.Spend)
		case event.Outcome != nil:
			outcomes = append(outcomes, *event.Outcome)
		}
	}

	batchID := fmt.Sprintf("%s-%d", r.sourceID, seq)

	// Sort within the sequence, then assign record indexes in sorted order
	SortSpendEvents(spend)
	for i, ev := range spend {
		r.handleSpendEvent(ctx, batchID, i, ev)
	}

	SortOutcomeEvents(outcomes)
	for i, ev := range outcomes {
		r.handleOutcomeEvent(ctx, batchID, i, ev)
	}

	delete(r.buffer, seq)

	if seq > r.appliedSeq {
		r.appliedSeq = seq
	}
	r.saveProgress(ctx)
}

// flushAllSeqs processes all remaining buffered events on shutdown.
func (r *Runner) flushAllSeqs(ctx context.Context) {
	// Collect all sequences
	var allSeqs []int64
	for seq := range r.buffer {
		allSeqs = append(allSeqs, seq)
	}

	// Sort and process
	sortInt64s(allSeqs)
	for _, seq := range allSeqs {
		r.processSeq(ctx, seq)
	}
}

// sortInt64s sorts a slice of int64 in ascending order.
func sortInt64s(s []int64) {
	for i := 0; i < len(s)-1; i++ {
		for j := i + 1; j < len(s); j++ {
			if s[i] > s[j] {
				s[i], s[j] = s[j], s[i]
			}
		}
	}
}

// handleSpendEvent stores a single spend event, registering its channel on first sight.
func (r *Runner) handleSpendEvent(ctx context.Context, batchID string, index int, ev feed.SpendEvent) {
	observability.RecordSpendProcessed()

	if err := validateSpendEvent(ev); err != nil {
		r.logger.Printf("SKIP invalid spend event (batch=%s index=%d): %v", batchID, index, err)
		r.stats.InvalidEvents++
		observability.RecordEventError("spend", "validation")
		return
	}

	channelID, created, err := r.registrar.Register(ctx, ev.Channel, ev.Medium, ev.PeriodStart)
	if err != nil {
		r.logger.Printf("Error registering channel %s/%s: %v", ev.Channel, ev.Medium, err)
		observability.RecordEventError("spend", "register")
		return
	}
	if created {
		r.logger.Printf("Channel registered: %s (%s) id=%s", ev.Channel, NormalizeMedium(ev.Medium), channelID)
		r.stats.ChannelsRegistered++
		observability.RecordChannelRegistered(string(domain.SourceStreamFeed))
	}

	if ev.PeriodStart > r.lastPeriodStart {
		r.lastPeriodStart = ev.PeriodStart
	}

	if r.spendStore == nil {
		return
	}

	record := &domain.SpendRecord{
		ChannelID:   channelID,
		BatchID:     batchID,
		RecordIndex: index,
		PeriodStart: ev.PeriodStart,
		Spend:       ev.Spend,
		Impressions: ev.Impressions,
		CreatedAt:   time.Now().UnixMilli(),
	}

	if err := r.spendStore.Insert(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Duplicate is expected after reconnects, not an error
			r.stats.DuplicatesSkipped++
			return
		}
		r.logger.Printf("Error storing spend record: %v", err)
		observability.RecordEventError("spend", "store")
		return
	}
	r.stats.SpendRecordsStored++
	observability.DefaultMetrics.SpendRecordsStored.Inc()
}

// handleOutcomeEvent stores a single outcome event.
func (r *Runner) handleOutcomeEvent(ctx context.Context, batchID string, index int, ev feed.OutcomeEvent) {
	observability.RecordOutcomeProcessed()

	if err := validateOutcomeEvent(ev); err != nil {
		r.logger.Printf("SKIP invalid outcome event (batch=%s index=%d): %v", batchID, index, err)
		r.stats.InvalidEvents++
		observability.RecordEventError("outcome", "validation")
		return
	}

	if ev.PeriodStart > r.lastPeriodStart {
		r.lastPeriodStart = ev.PeriodStart
	}

	if r.outcomeStore == nil {
		return
	}

	metric := ev.Metric
	if metric == "" {
		metric = domain.MetricConversions
	}

	record := &domain.OutcomeRecord{
		Metric:      metric,
		BatchID:     batchID,
		RecordIndex: index,
		PeriodStart: ev.PeriodStart,
		Value:       ev.Value,
		CreatedAt:   time.Now().UnixMilli(),
	}

	if err := r.outcomeStore.Insert(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			r.stats.DuplicatesSkipped++
			return
		}
		r.logger.Printf("Error storing outcome record: %v", err)
		observability.RecordEventError("outcome", "store")
		return
	}
	r.stats.OutcomeRecordsStored++
	observability.DefaultMetrics.OutcomeRecordsStored.Inc()
}

// saveProgress persists the applied high-water mark.
func (r *Runner) saveProgress(ctx context.Context) {
	if r.progressStore == nil {
		return
	}

	progress := &domain.IngestProgress{
		SourceID:        r.sourceID,
		LastBatchSeq:    r.appliedSeq,
		LastPeriodStart: r.lastPeriodStart,
		UpdatedAt:       time.Now().UnixMilli(),
	}
	if err := r.progressStore.SetProgress(ctx, progress); err != nil {
		r.logger.Printf("Error saving ingest progress: %v", err)
		return
	}
	observability.DefaultMetrics.LastSuccessfulIngestion.SetToCurrentTime()
}

// RunnerStats holds counters accumulated over a run.
type RunnerStats struct {
	SpendRecordsStored   int64
	OutcomeRecordsStored int64
	ChannelsRegistered   int64
	DuplicatesSkipped    int64
	ReplaysSkipped       int64
	InvalidEvents        int64
}

// Stats returns a snapshot of runner statistics.
// Only meaningful after Run has returned; the runner is single-goroutine.
func (r *Runner) Stats() RunnerStats {
	return r.stats
}
