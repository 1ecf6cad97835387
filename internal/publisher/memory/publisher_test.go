package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishEncodesAndNumbersMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "harvest-runs", map[string]int{"total": 3})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
	id, err = pub.Publish(context.Background(), "audit", "done")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id)

	runs := pub.OnTopic("harvest-runs")
	require.Len(t, runs, 1)
	assert.JSONEq(t, `{"total":3}`, string(runs[0].Data))
	assert.Len(t, pub.Messages(), 2)

	msgs := pub.Messages()
	msgs[0].Topic = "changed"
	assert.Equal(t, "harvest-runs", pub.Messages()[0].Topic)
}

func TestPublishFailures(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("topic not found"))
	_, err := pub.Publish(context.Background(), "harvest-runs", "x")
	require.ErrorContains(t, err, "topic not found")

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "harvest-runs", make(chan int))
	require.ErrorContains(t, err, "encode payload")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pub.Publish(ctx, "harvest-runs", "x")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.Messages())
}
