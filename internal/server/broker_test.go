package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/notify"
	"github.com/radiant-ai/radiant/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func eventPayload(t *testing.T, tenant string, kind notify.Kind) string {
	t.Helper()
	b, err := json.Marshal(notify.Event{Kind: kind, TenantID: tenant, Subject: "d-1"})
	require.NoError(t, err)
	return string(b)
}

func receive(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertEmpty(t *testing.T, ch chan []byte) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected event %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerRoutesByTenant(t *testing.T) {
	b := NewBroker(nil, testLogger())
	acme1 := b.Subscribe("acme")
	acme2 := b.Subscribe("acme")
	globex := b.Subscribe("globex")

	payload := eventPayload(t, "acme", notify.CheckpointAwaitingReview)
	b.dispatch(payload)

	want := "event: checkpoint.awaiting_review\ndata: " + payload + "\n\n"
	assert.Equal(t, want, string(receive(t, acme1)))
	assert.Equal(t, want, string(receive(t, acme2)))
	assertEmpty(t, globex)

	b.Unsubscribe(acme1)
	b.dispatch(eventPayload(t, "acme", notify.OversightExpired))
	assert.Contains(t, string(receive(t, acme2)), "oversight.expired")

	b.Unsubscribe(acme2)
	b.Unsubscribe(globex)
}

func TestBrokerDropsMalformedPayload(t *testing.T) {
	b := NewBroker(nil, testLogger())
	ch := b.Subscribe("acme")
	defer b.Unsubscribe(ch)

	b.dispatch("not json")
	assertEmpty(t, ch)
}

func TestBrokerSlowSubscriber(t *testing.T) {
	b := NewBroker(nil, testLogger())
	slow := b.Subscribe("acme")
	fast := b.Subscribe("acme")

	for range 65 {
		b.broadcast("acme", formatSSE("test", "fill"))
	}
	for len(fast) > 0 {
		<-fast
	}
	b.broadcast("acme", formatSSE("test", "after-fill"))
	assert.Equal(t, "event: test\ndata: after-fill\n\n", string(receive(t, fast)))

	b.Unsubscribe(slow)
	b.Unsubscribe(fast)
}

type scriptedListener struct {
	listened []string
	payloads chan string
}

func (l *scriptedListener) Listen(_ context.Context, channel string) error {
	l.listened = append(l.listened, channel)
	return nil
}

func (l *scriptedListener) WaitForNotification(ctx context.Context) (string, string, error) {
	select {
	case p := <-l.payloads:
		return storage.ChannelCheckpoints, p, nil
	case <-ctx.Done():
		return "", "", errors.New("closed")
	}
}

func TestBrokerStart(t *testing.T) {
	l := &scriptedListener{payloads: make(chan string, 1)}
	b := NewBroker(l, testLogger())
	ch := b.Subscribe("acme")
	defer b.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	l.payloads <- eventPayload(t, "acme", notify.CheckpointEscalated)
	assert.Contains(t, string(receive(t, ch)), "checkpoint.escalated")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broker did not stop")
	}
	assert.Equal(t, Channels, l.listened)
}
