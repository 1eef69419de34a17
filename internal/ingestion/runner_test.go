package ingestion

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/feed"
	"mediamix-lab/internal/feed/stub"
	"mediamix-lab/internal/idhash"
	"mediamix-lab/internal/storage/memory"
)

func spendEvent(seq int64, channel string, periodStart int64, spend float64) *StreamEvent {
	return &StreamEvent{
		Seq:   seq,
		Spend: &feed.SpendEvent{Channel: channel, Medium: "tv", PeriodStart: periodStart, Spend: spend},
	}
}

func outcomeEvent(seq int64, periodStart int64, value float64) *StreamEvent {
	return &StreamEvent{
		Seq:     seq,
		Outcome: &feed.OutcomeEvent{Metric: "conversions", PeriodStart: periodStart, Value: value},
	}
}

func TestRunner_SeqBasedOrdering(t *testing.T) {
	// Test that events are processed in batch-seq order, not arrival order
	spendStore := memory.NewSpendRecordStore()
	channelStore := memory.NewChannelStore()

	runner := NewRunner(RunnerOptions{
		SpendStore:   spendStore,
		ChannelStore: channelStore,
		SeqLagWindow: 2,
		Logger:       log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Manually buffer events out of order
	runner.bufferEvent(ctx, spendEvent(5, "TV National", 5000, 500))
	runner.bufferEvent(ctx, spendEvent(3, "TV National", 3000, 300))
	runner.bufferEvent(ctx, spendEvent(4, "TV National", 4000, 400))

	// Trigger processing by sending a higher seq
	runner.bufferEvent(ctx, spendEvent(8, "TV National", 8000, 800))

	// Seqs 3, 4, 5 should be settled (8 - 2 = 6, so seqs <= 6 are settled)
	// After processing, buffer should only contain seq 8
	assert.Len(t, runner.buffer, 1, "Only seq 8 should remain in buffer")
	assert.Contains(t, runner.buffer, int64(8))

	// Verify records were stored
	tvID := idhash.ComputeChannelID("TV National", domain.MediumTV)
	records, err := spendStore.GetByChannelID(ctx, tvID)
	require.NoError(t, err)
	assert.Len(t, records, 3, "3 records should have been processed")
}

func TestRunner_FlushOnShutdown(t *testing.T) {
	spendStore := memory.NewSpendRecordStore()

	runner := NewRunner(RunnerOptions{
		SpendStore:   spendStore,
		ChannelStore: memory.NewChannelStore(),
		SeqLagWindow: 10, // High lag so nothing auto-processes
		Logger:       log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	ctx := context.Background()

	// Buffer some events that won't auto-settle
	runner.bufferEvent(ctx, spendEvent(1, "TV National", 1000, 100))
	runner.bufferEvent(ctx, spendEvent(2, "TV National", 2000, 200))

	// Verify events are in buffer
	assert.Len(t, runner.buffer, 2)

	// Flush all on shutdown
	runner.flushAllSeqs(ctx)

	// Buffer should be empty
	assert.Empty(t, runner.buffer)

	// Records should be stored
	tvID := idhash.ComputeChannelID("TV National", domain.MediumTV)
	records, err := spendStore.GetByChannelID(ctx, tvID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRunner_LateEventProcessing(t *testing.T) {
	spendStore := memory.NewSpendRecordStore()

	runner := NewRunner(RunnerOptions{
		SpendStore:   spendStore,
		ChannelStore: memory.NewChannelStore(),
		SeqLagWindow: 3,
		Logger:       log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	ctx := context.Background()

	// First, advance the seq pointer
	runner.bufferEvent(ctx, spendEvent(10, "TV National", 10000, 100))

	// Now send a "late" event for seq 5 (which is already settled)
	// It should be processed immediately
	runner.bufferEvent(ctx, spendEvent(5, "TV National", 5000, 50))

	// Late event should have been processed immediately
	tvID := idhash.ComputeChannelID("TV National", domain.MediumTV)
	records, err := spendStore.GetByTimeRange(ctx, tvID, 0, 6000)
	require.NoError(t, err)
	assert.Len(t, records, 1, "Late event should be processed immediately")
}

func TestRunner_DeterministicOrdering(t *testing.T) {
	// Run multiple times and verify record index assignment is always the same
	for run := 0; run < 5; run++ {
		spendStore := memory.NewSpendRecordStore()

		runner := NewRunner(RunnerOptions{
			SpendStore:   spendStore,
			ChannelStore: memory.NewChannelStore(),
			SeqLagWindow: 1,
			Logger:       log.New(os.Stderr, "[test] ", log.LstdFlags),
		})

		ctx := context.Background()

		// Send events in random arrival order, but same seq and period
		runner.bufferEvent(ctx, spendEvent(1, "Charlie FM", 1000, 30))
		runner.bufferEvent(ctx, spendEvent(1, "Alpha TV", 1000, 10))
		runner.bufferEvent(ctx, spendEvent(1, "Beta Print", 1000, 20))

		// Trigger settlement
		runner.bufferEvent(ctx, spendEvent(5, "Trigger", 5000, 1))

		// Indexes should follow (period_start, channel, medium) within the seq
		expected := []struct {
			channel string
			index   int
		}{
			{"Alpha TV", 0},
			{"Beta Print", 1},
			{"Charlie FM", 2},
		}

		for _, exp := range expected {
			id := idhash.ComputeChannelID(exp.channel, domain.MediumTV)
			records, err := spendStore.GetByChannelID(ctx, id)
			require.NoError(t, err)
			require.Len(t, records, 1, "Run %d: expected 1 record for %s", run, exp.channel)
			assert.Equal(t, exp.index, records[0].RecordIndex, "Run %d: index mismatch for %s", run, exp.channel)
			assert.Equal(t, "stream-feed-1", records[0].BatchID, "Run %d: batch ID mismatch", run)
		}
	}
}

func TestRunner_MixedEventTypes(t *testing.T) {
	spendStore := memory.NewSpendRecordStore()
	outcomeStore := memory.NewOutcomeRecordStore()

	runner := NewRunner(RunnerOptions{
		SpendStore:   spendStore,
		OutcomeStore: outcomeStore,
		ChannelStore: memory.NewChannelStore(),
		SeqLagWindow: 2,
		Logger:       log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	ctx := context.Background()

	// Buffer both event types at the same seq
	runner.bufferEvent(ctx, spendEvent(3, "TV National", 3000, 300))
	runner.bufferEvent(ctx, outcomeEvent(3, 3000, 42))

	// Trigger settlement
	runner.bufferEvent(ctx, spendEvent(10, "TV National", 10000, 100))

	// Both should be processed
	tvID := idhash.ComputeChannelID("TV National", domain.MediumTV)
	spendRecords, err := spendStore.GetByTimeRange(ctx, tvID, 0, 5000)
	require.NoError(t, err)
	assert.Len(t, spendRecords, 1)

	outcomeRecords, err := outcomeStore.GetByMetric(ctx, "conversions")
	require.NoError(t, err)
	assert.Len(t, outcomeRecords, 1)
}

func TestRunner_ChannelRegistration(t *testing.T) {
	spendStore := memory.NewSpendRecordStore()
	channelStore := memory.NewChannelStore()

	runner := NewRunner(RunnerOptions{
		SpendStore:   spendStore,
		ChannelStore: channelStore,
		SeqLagWindow: 1,
		Logger:       log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	ctx := context.Background()

	// Send multiple events for the same channel
	runner.bufferEvent(ctx, spendEvent(1, "TV National", 1000, 100))
	runner.bufferEvent(ctx, spendEvent(2, "TV National", 2000, 200))
	runner.bufferEvent(ctx, spendEvent(3, "TV National", 3000, 300))

	// Trigger settlement
	runner.bufferEvent(ctx, spendEvent(10, "Trigger", 10000, 1))

	// Only one channel should be registered for the repeated name
	channels, err := channelStore.GetBySource(ctx, domain.SourceStreamFeed)
	require.NoError(t, err)
	assert.Len(t, channels, 2, "Expected TV National and Trigger only")

	tvID := idhash.ComputeChannelID("TV National", domain.MediumTV)
	tv, err := channelStore.GetByID(ctx, tvID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStreamFeed, tv.Source)
	assert.Equal(t, int64(1000), tv.FirstSeenAt, "FirstSeenAt should be the first event period")
}

func TestRunner_SkipsInvalidEvents(t *testing.T) {
	spendStore := memory.NewSpendRecordStore()

	runner := NewRunner(RunnerOptions{
		SpendStore:   spendStore,
		ChannelStore: memory.NewChannelStore(),
		SeqLagWindow: 1,
		Logger:       log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	ctx := context.Background()

	runner.bufferEvent(ctx, spendEvent(1, "TV National", 1000, -50))
	runner.bufferEvent(ctx, spendEvent(5, "TV National", 5000, 500))

	runner.flushAllSeqs(ctx)

	tvID := idhash.ComputeChannelID("TV National", domain.MediumTV)
	records, err := spendStore.GetByChannelID(ctx, tvID)
	require.NoError(t, err)
	assert.Len(t, records, 1, "Negative spend event should be skipped")
	assert.Equal(t, int64(1), runner.Stats().InvalidEvents)
}

func TestRunner_SortInt64s(t *testing.T) {
	tests := []struct {
		name  string
		input []int64
		want  []int64
	}{
		{"empty", []int64{}, []int64{}},
		{"single", []int64{5}, []int64{5}},
		{"already_sorted", []int64{1, 2, 3}, []int64{1, 2, 3}},
		{"reverse", []int64{3, 2, 1}, []int64{1, 2, 3}},
		{"random", []int64{5, 1, 3, 2, 4}, []int64{1, 2, 3, 4, 5}},
		{"duplicates", []int64{3, 1, 3, 2, 1}, []int64{1, 1, 2, 3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sortInt64s(tt.input)
			assert.Equal(t, tt.want, tt.input)
		})
	}
}

func TestRunner_ResumeSkipsAppliedSeqs(t *testing.T) {
	spendStore := memory.NewSpendRecordStore()
	channelStore := memory.NewChannelStore()
	progressStore := memory.NewIngestProgressStore()

	// Simulate a previous run that applied batches up to seq 5
	require.NoError(t, progressStore.SetProgress(context.Background(), &domain.IngestProgress{
		SourceID:        "stream-feed",
		LastBatchSeq:    5,
		LastPeriodStart: 5000,
		UpdatedAt:       time.Now().UnixMilli(),
	}))

	client := stub.NewStreamClient()
	client.Push(feed.Notification{
		Stream: feed.StreamSpend, Seq: 3,
		Record: json.RawMessage(`{"channel":"TV National","medium":"tv","period_start":3000,"spend":300}`),
	})
	client.Push(feed.Notification{
		Stream: feed.StreamSpend, Seq: 7,
		Record: json.RawMessage(`{"channel":"TV National","medium":"tv","period_start":7000,"spend":700}`),
	})
	client.Push(feed.Notification{
		Stream: feed.StreamSpend, Seq: 8,
		Record: json.RawMessage(`{"channel":"TV National","medium":"tv","period_start":8000,"spend":800}`),
	})

	runner := NewRunner(RunnerOptions{
		StreamSource:  NewWSStreamSource(client, nil),
		SpendStore:    spendStore,
		ChannelStore:  channelStore,
		ProgressStore: progressStore,
		SeqLagWindow:  1,
		Logger:        log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := runner.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Seq 3 is a replay of an applied batch and must be skipped
	tvID := idhash.ComputeChannelID("TV National", domain.MediumTV)
	records, err := spendStore.GetByChannelID(context.Background(), tvID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(7000), records[0].PeriodStart)
	assert.Equal(t, int64(8000), records[1].PeriodStart)
	assert.Equal(t, int64(1), runner.Stats().ReplaysSkipped)

	// Progress advanced past the new batches
	progress, err := progressStore.GetProgress(context.Background(), "stream-feed")
	require.NoError(t, err)
	assert.Equal(t, int64(8), progress.LastBatchSeq)
	assert.Equal(t, int64(8000), progress.LastPeriodStart)
}

func TestRunner_DefaultValues(t *testing.T) {
	runner := NewRunner(RunnerOptions{})

	assert.Equal(t, "stream-feed", runner.sourceID, "Default source ID should be stream-feed")
	assert.Equal(t, int64(5), runner.seqLagWindow, "Default seq lag window should be 5")
	assert.Equal(t, 5*time.Second, runner.flushInterval, "Default flush interval should be 5s")
	assert.NotNil(t, runner.logger, "Logger should not be nil")
}
