package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_PublishConsume(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: "parent-notify", Body: []byte(`{"student_id":"S1"}`)}))

	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, "parent-notify", msg.Type)
		assert.JSONEq(t, `{"student_id":"S1"}`, string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("expected a message")
	}
}

func TestInMemory_PublishHonorsCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Publish(ctx, Message{Type: "a"}))

	cancel()
	err := q.Publish(ctx, Message{Type: "b"}) // buffer full, ctx done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: "parent-notify", Body: []byte(`{"x":"a|b"}`)}
	got := deserialize(serialize(msg))
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, msg.Body, got.Body)

	// No separator falls back to an untyped message.
	got = deserialize("rawbody")
	assert.Empty(t, got.Type)
	assert.Equal(t, []byte("rawbody"), got.Body)
}
