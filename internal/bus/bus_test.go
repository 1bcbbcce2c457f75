package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowatch/radiowatch/internal/domain"
)

func waitFor(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func collect(ch chan *domain.Message) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	}
}

func TestChannelBus(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		sub, err := b.Subscribe(ctx, domain.TopicScoreUpdated, collect(got))
		require.NoError(t, err)
		defer sub.Unsubscribe()

		require.NoError(t, b.Publish(ctx, domain.TopicScoreUpdated, []byte("hello")))

		msg := waitFor(t, got)
		assert.Equal(t, "hello", string(msg.Payload))
		assert.Equal(t, domain.TopicScoreUpdated, msg.Topic)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, domain.TopicScoreUpdated, sub.Topic())
	})

	t.Run("TopicsAreIsolated", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		sub, err := b.Subscribe(ctx, domain.TopicThreatAlert, collect(got))
		require.NoError(t, err)
		defer sub.Unsubscribe()

		require.NoError(t, b.Publish(ctx, domain.TopicTagChanged, []byte("x")))

		select {
		case <-got:
			t.Fatal("received a message for another topic")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("WildcardSubscription", func(t *testing.T) {
		got := make(chan *domain.Message, 2)
		sub, err := b.Subscribe(ctx, "radiowatch.score.*", collect(got))
		require.NoError(t, err)
		defer sub.Unsubscribe()

		require.NoError(t, b.Publish(ctx, domain.TopicScoreRecompute, []byte("a")))
		require.NoError(t, b.Publish(ctx, domain.TopicScoreUpdated, []byte("b")))

		assert.Equal(t, "a", string(waitFor(t, got).Payload))
		assert.Equal(t, "b", string(waitFor(t, got).Payload))
	})

	t.Run("PublishJSONAndDecode", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		sub, err := b.Subscribe(ctx, domain.TopicTagChanged, collect(got))
		require.NoError(t, err)
		defer sub.Unsubscribe()

		ev := domain.TagChangedEvent{NetworkID: "AA:BB", TagType: domain.TagThreat}
		require.NoError(t, PublishJSON(ctx, b, domain.TopicTagChanged, ev))

		var decoded domain.TagChangedEvent
		require.NoError(t, Decode(waitFor(t, got), &decoded))
		assert.Equal(t, ev, decoded)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, err := b.Subscribe(ctx, "radiowatch.test.unsub", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, sub.Unsubscribe())

		assert.Eventually(t, func() bool {
			return b.SubscriptionCount() == 0
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, b.Publish(ctx, "radiowatch.test.unsub", []byte("x")))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(0), count.Load())
	})

	t.Run("RequestReply", func(t *testing.T) {
		sub, err := b.Subscribe(ctx, "radiowatch.test.echo", func(ctx context.Context, msg *domain.Message) error {
			return Respond(ctx, b, msg, append([]byte("echo:"), msg.Payload...))
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		reply, err := b.Request(reqCtx, "radiowatch.test.echo", []byte("ping"))
		require.NoError(t, err)
		assert.Equal(t, "echo:ping", string(reply))
	})

	t.Run("RespondWithoutReplyTopic", func(t *testing.T) {
		err := Respond(ctx, b, &domain.Message{ID: "m1", Metadata: map[string]string{}}, nil)
		assert.Error(t, err)
	})

	t.Run("EmptyTopicRejected", func(t *testing.T) {
		_, err := b.Subscribe(ctx, "", func(ctx context.Context, msg *domain.Message) error { return nil })
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestChannelBusPreservesOrder(t *testing.T) {
	b := NewChannelBus(1000)
	defer b.Close()
	ctx := context.Background()

	const n = 200
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})

	_, err := b.Subscribe(ctx, "radiowatch.test.order", func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(msg.Payload))
		if len(seen) == n {
			close(done)
		}
		return nil
	})
	require.NoError(t, err)

	want := make([]string, n)
	for i := 0; i < n; i++ {
		want[i] = string(rune('a' + i%26))
		require.NoError(t, b.Publish(ctx, "radiowatch.test.order", []byte(want[i])))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for messages")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, seen)
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	_, err := b.Subscribe(ctx, "radiowatch.test", func(ctx context.Context, msg *domain.Message) error { return nil })
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(ctx, "radiowatch.test", nil), ErrBusClosed)
	_, err = b.Subscribe(ctx, "radiowatch.test", func(ctx context.Context, msg *domain.Message) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.ErrorIs(t, b.Ping(ctx), ErrBusClosed)
}

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"radiowatch.tag.changed", "radiowatch.tag.changed", true},
		{"radiowatch.tag.changed", "radiowatch.tag", false},
		{"radiowatch.*.changed", "radiowatch.tag.changed", true},
		{"radiowatch.*", "radiowatch.tag.changed", false},
		{"radiowatch.>", "radiowatch.tag.changed", true},
		{"radiowatch.>", "radiowatch", false},
		{"radiowatch.score.*", "radiowatch.score.updated", true},
		{"radiowatch.score.*", "radiowatch.threat.alert", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, subjectMatches(tt.pattern, tt.subject))
		})
	}
}

func TestNewBus(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	require.NoError(t, err)
	defer b.Close()
	_, ok := b.(*ChannelBus)
	assert.True(t, ok)

	_, err = New(domain.EventBusConfig{Type: "kafka"})
	assert.Error(t, err)
}

func runNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATSBus(t *testing.T) {
	ns := runNATSServer(t)

	b, err := NewNATSBus(domain.EventBusConfig{
		Type:              "nats",
		NATSUrl:           ns.ClientURL(),
		NATSMaxReconnects: 1,
		NATSReconnectWait: 1,
	})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Ping(ctx))

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		sub, err := b.Subscribe(ctx, domain.TopicThreatAlert, collect(got))
		require.NoError(t, err)
		defer sub.Unsubscribe()
		require.NoError(t, b.conn.Flush())

		ev := domain.ScoreEvent{NetworkID: "AA:BB", FinalScore: 91, FinalLevel: domain.LevelCritical}
		require.NoError(t, PublishJSON(ctx, b, domain.TopicThreatAlert, ev))

		msg := waitFor(t, got)
		assert.Equal(t, domain.TopicThreatAlert, msg.Topic)
		assert.NotEmpty(t, msg.ID)

		var decoded domain.ScoreEvent
		require.NoError(t, Decode(msg, &decoded))
		assert.Equal(t, ev, decoded)
	})

	t.Run("RequestReply", func(t *testing.T) {
		sub, err := b.Subscribe(ctx, "radiowatch.test.echo", func(ctx context.Context, msg *domain.Message) error {
			return Respond(ctx, b, msg, append([]byte("echo:"), msg.Payload...))
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()
		require.NoError(t, b.conn.Flush())

		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		reply, err := b.Request(reqCtx, "radiowatch.test.echo", []byte("ping"))
		require.NoError(t, err)
		assert.Equal(t, "echo:ping", string(reply))
	})

	t.Run("WithoutDeadline", func(t *testing.T) {
		sub, err := b.Subscribe(ctx, "radiowatch.test.nodeadline", func(ctx context.Context, msg *domain.Message) error {
			return Respond(ctx, b, msg, []byte("ok"))
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()
		require.NoError(t, b.conn.Flush())

		_, hasDeadline := context.Background().Deadline()
		require.False(t, hasDeadline)

		assert.NoError(t, b.Ping(context.Background()))
		reply, err := b.Request(context.Background(), "radiowatch.test.nodeadline", nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(reply))
	})

	t.Run("DefaultTimeout", func(t *testing.T) {
		bounded, cancel := withDefaultTimeout(context.Background())
		defer cancel()
		deadline, ok := bounded.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(defaultRequestTimeout), deadline, time.Second)

		parent, cancelParent := context.WithTimeout(context.Background(), time.Minute)
		defer cancelParent()
		kept, cancelKept := withDefaultTimeout(parent)
		defer cancelKept()
		assert.Equal(t, parent, kept)
	})

	t.Run("Stats", func(t *testing.T) {
		var stats nats.Statistics = b.Stats()
		assert.Greater(t, stats.OutMsgs, uint64(0))
	})
}

func TestNATSBusConnectFailure(t *testing.T) {
	_, err := NewNATSBus(domain.EventBusConfig{
		NATSUrl:           "nats://127.0.0.1:1",
		NATSMaxReconnects: 1,
		NATSReconnectWait: 1,
	})
	assert.Error(t, err)
}
