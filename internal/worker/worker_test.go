package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowatch/radiowatch/internal/bus"
	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/scoring"
)

type call struct {
	runID string
	ids   []string
}

// fakeRecomputer records calls and optionally blocks full runs.
type fakeRecomputer struct {
	mu          sync.Mutex
	calls       []call
	invalidated []string
	err         error
	block       chan struct{}
	entered     chan struct{}
}

func (f *fakeRecomputer) Recompute(ctx context.Context, runID string, ids []string) (*scoring.RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{runID: runID, ids: ids})
	block, entered, err := f.block, f.entered, f.err
	f.mu.Unlock()

	if len(ids) == 0 && block != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	return &scoring.RunResult{RunID: runID}, err
}

func (f *fakeRecomputer) Invalidate(ctx context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
}

func (f *fakeRecomputer) snapshot() ([]call, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call{}, f.calls...), append([]string{}, f.invalidated...)
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	rec := &fakeRecomputer{}
	w := NewWorker(eventBus, rec, Config{})
	require.NoError(t, w.Start())
	defer w.Stop()

	t.Run("Stats", func(t *testing.T) {
		stats := w.GetStats()
		assert.Equal(t, 2, stats.SubscriptionCount)
		assert.ElementsMatch(t, []string{domain.TopicTagChanged, domain.TopicScoreRecompute}, stats.Topics)
	})

	t.Run("TagChangeRescoresNetwork", func(t *testing.T) {
		require.NoError(t, bus.PublishJSON(ctx, eventBus, domain.TopicTagChanged,
			domain.TagChangedEvent{NetworkID: "AA:BB", TagType: domain.TagThreat}))

		assert.Eventually(t, func() bool {
			calls, _ := rec.snapshot()
			return len(calls) == 1
		}, time.Second, 5*time.Millisecond)

		calls, invalidated := rec.snapshot()
		assert.Equal(t, []string{"AA:BB"}, calls[0].ids)
		assert.Equal(t, []string{"AA:BB"}, invalidated)
	})

	t.Run("RecomputeRequestCarriesRunID", func(t *testing.T) {
		require.NoError(t, bus.PublishJSON(ctx, eventBus, domain.TopicScoreRecompute,
			domain.RecomputeRequest{RunID: "run-42", NetworkIDs: []string{"X", "Y"}}))

		assert.Eventually(t, func() bool {
			calls, _ := rec.snapshot()
			return len(calls) == 2
		}, time.Second, 5*time.Millisecond)

		calls, _ := rec.snapshot()
		assert.Equal(t, "run-42", calls[1].runID)
		assert.Equal(t, []string{"X", "Y"}, calls[1].ids)
	})

	t.Run("MalformedPayloadIgnored", func(t *testing.T) {
		require.NoError(t, eventBus.Publish(ctx, domain.TopicScoreRecompute, []byte("{not json")))
		time.Sleep(20 * time.Millisecond)
		calls, _ := rec.snapshot()
		assert.Len(t, calls, 2)
	})
}

func TestFullRunsDoNotOverlap(t *testing.T) {
	rec := &fakeRecomputer{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	w := NewWorker(bus.NewChannelBus(10), rec, Config{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		w.runFull(ctx, "first")
		close(done)
	}()
	<-rec.entered

	w.runFull(ctx, "second")
	assert.Equal(t, int64(1), w.GetStats().SkippedFullRuns)
	assert.True(t, w.GetStats().FullRunActive)

	close(rec.block)
	<-done

	calls, _ := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "first", calls[0].runID)
	assert.False(t, w.GetStats().FullRunActive)
}

func TestScheduledRecompute(t *testing.T) {
	rec := &fakeRecomputer{}
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, rec, Config{Interval: 10 * time.Millisecond})
	require.NoError(t, w.Start())

	assert.Eventually(t, func() bool {
		calls, _ := rec.snapshot()
		return len(calls) >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	calls, _ := rec.snapshot()
	for _, c := range calls {
		assert.Empty(t, c.ids)
	}
	assert.Equal(t, 0, w.GetStats().SubscriptionCount)
}

func TestHomeRequiredIsNotAnError(t *testing.T) {
	rec := &fakeRecomputer{err: domain.ErrHomeLocationRequired}
	w := NewWorker(bus.NewChannelBus(10), rec, Config{})

	msg := &domain.Message{Topic: domain.TopicTagChanged, Payload: []byte(`{"networkId":"AA"}`)}
	assert.NoError(t, w.handleTagChanged(context.Background(), msg))

	msg = &domain.Message{Topic: domain.TopicTagChanged, Payload: []byte(`{}`)}
	assert.Error(t, w.handleTagChanged(context.Background(), msg))
}
