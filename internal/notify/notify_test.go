package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/notify"
)

type recordingPublisher struct {
	channel, payload string
}

func (p *recordingPublisher) Notify(_ context.Context, channel, payload string) error {
	p.channel, p.payload = channel, payload
	return nil
}

func TestPGSinkRoutesByKind(t *testing.T) {
	pub := &recordingPublisher{}
	sink := notify.NewPGSink(pub, func(k notify.Kind) string {
		if strings.HasPrefix(string(k), "oversight.") {
			return "oversight"
		}
		return "other"
	})

	require.NoError(t, sink.Notify(context.Background(), notify.Event{
		Kind: notify.OversightExpired, TenantID: "T1", Subject: "item-1",
	}))
	assert.Equal(t, "oversight", pub.channel)

	var got notify.Event
	require.NoError(t, json.Unmarshal([]byte(pub.payload), &got))
	assert.Equal(t, notify.OversightExpired, got.Kind)
	assert.Equal(t, "item-1", got.Subject)
}

func TestPGSinkDropsOversizedData(t *testing.T) {
	pub := &recordingPublisher{}
	sink := notify.NewPGSink(pub, func(notify.Kind) string { return "c" })

	require.NoError(t, sink.Notify(context.Background(), notify.Event{
		Kind: notify.CheckpointAwaitingReview, TenantID: "T1",
		Data: map[string]any{"blob": strings.Repeat("x", 9000)},
	}))
	assert.Less(t, len(pub.payload), 8000)
	assert.NotContains(t, pub.payload, "blob")
}

func TestFanoutAttemptsEverySink(t *testing.T) {
	var calls int
	failing := notify.SinkFunc(func(context.Context, notify.Event) error {
		calls++
		return errors.New("down")
	})
	counting := notify.SinkFunc(func(context.Context, notify.Event) error {
		calls++
		return nil
	})

	err := notify.Fanout{failing, counting}.Notify(context.Background(), notify.Event{Kind: notify.TierAlertRaised})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
