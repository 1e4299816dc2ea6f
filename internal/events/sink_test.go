package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	logger := zerolog.Nop()
	writer := &fakeWriter{}
	sink := &KafkaSink{writer: writer, logger: &logger}

	payload := []byte(`{"booking_id":5,"status":"APPROVED"}`)
	require.NoError(t, sink.Deliver(context.Background(), EventBookingApproved, "5", payload))

	require.Len(t, writer.msgs, 1)
	msg := writer.msgs[0]
	assert.Equal(t, "5", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventBookingApproved, string(msg.Headers[0].Value))

	var env struct {
		Entity     string            `json:"entity"`
		Action     string            `json:"action"`
		ResourceID string            `json:"resourceId"`
		Metadata   map[string]string `json:"metadata"`
		Data       map[string]any    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "booking", env.Entity)
	assert.Equal(t, "approved", env.Action)
	assert.Equal(t, "5", env.ResourceID)
	assert.Equal(t, EventBookingApproved, env.Metadata["type"])
	assert.Equal(t, "APPROVED", env.Data["status"])

	writer.err = errors.New("leader not available")
	assert.Error(t, sink.Deliver(context.Background(), EventBookingApproved, "5", payload))

	require.NoError(t, sink.Close())
	assert.True(t, writer.closed)
}

func TestNewKafkaSink(t *testing.T) {
	logger := zerolog.Nop()
	sink := NewKafkaSink([]string{"localhost:9092"}, "shareit.bookings", &logger)
	w, ok := sink.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "shareit.bookings", w.Topic)
	assert.NoError(t, sink.Close())
}

func TestSplitType(t *testing.T) {
	entity, action := splitType(EventCommentAdded)
	assert.Equal(t, "comment", entity)
	assert.Equal(t, "added", action)

	entity, action = splitType("ping")
	assert.Equal(t, "ping", entity)
	assert.Equal(t, "unknown", action)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	sink := NewLogSink(&logger)

	require.NoError(t, sink.Deliver(context.Background(), EventBookingCreated, "1", []byte(`{"booking_id":1}`)))
	assert.Contains(t, buf.String(), `"type":"booking_created"`)
	assert.Contains(t, buf.String(), `"payload":{"booking_id":1}`)
	assert.NoError(t, sink.Close())
}
