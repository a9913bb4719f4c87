package kafka

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/inflation-map/internal/config"
	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/reconcile"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("session-1"),
		Value:     []byte(`{"type":"recompute","start_year":2000,"end_year":2010}`),
		Topic:     "map-ui-events",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("browser")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("session-1"), raw.Key)
	assert.JSONEq(t, `{"type":"recompute","start_year":2000,"end_year":2010}`, string(raw.Value))
	assert.Equal(t, "map-ui-events", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "browser", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	center := domain.Geo{Lat: 51.497, Lon: -0.137}
	cmd := reconcile.Command{Kind: reconcile.CommandSetViewport, Center: &center, Zoom: 15}

	msg, err := serializeToMessage(cmd, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("set_viewport"), msg.Key)
	var decoded reconcile.Command
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, cmd, decoded)

	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "command", msg.Headers[0].Key)
	assert.Equal(t, []byte("set_viewport"), msg.Headers[0].Value)
	assert.Equal(t, "emitted_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestSerializeToMessage_RenderMarkers(t *testing.T) {
	markers := domain.RegionMarkers([]domain.RegionRecord{
		{RegionID: "SW1", Latitude: 51.497, Longitude: -0.137, PeriodRate: 5},
	}, 3)

	msg, err := serializeToMessage(reconcile.Command{Kind: reconcile.CommandRenderMarkers, Markers: markers}, time.Now())
	require.NoError(t, err)

	assert.Contains(t, string(msg.Value), `"key":"SW1_3"`)
	assert.Contains(t, string(msg.Value), `"kind":"render_markers"`)
}

func TestWriterMessages_StampedFromClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC))
	w := NewWriter(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaSinkTopic: "map-surface-commands"},
		clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = w.Close() })

	msgs, err := w.messages([]reconcile.Command{
		{Kind: reconcile.CommandSetStatus, Message: "Map updated with new data!"},
		{Kind: reconcile.CommandSetViewport, Center: &domain.Geo{Lat: 51.5, Lon: -0.1}, Zoom: 12},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	for _, msg := range msgs {
		require.Len(t, msg.Headers, 2)
		assert.Equal(t, "emitted_at", msg.Headers[1].Key)
		assert.Equal(t, "2024-04-26T15:10:00Z", string(msg.Headers[1].Value))
	}
	assert.Equal(t, []byte("set_viewport"), msgs[1].Key)
}
