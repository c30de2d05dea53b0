package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySinkDeduplicates(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, Envelope{ID: "1", IdempotencyKey: "k"}))
	require.NoError(t, sink.Append(ctx, Envelope{ID: "2", IdempotencyKey: "k"}))
	require.NoError(t, sink.Append(ctx, Envelope{ID: "3"}))
	require.NoError(t, sink.Append(ctx, Envelope{ID: "4"}))

	got := sink.Events()
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
	assert.Equal(t, "4", got[2].ID)

	got[0].ID = "mutated"
	assert.Equal(t, "1", sink.Events()[0].ID)
}

func TestNoOpEventSink(t *testing.T) {
	assert.NoError(t, NewNoOpEventSink().Append(context.Background(), Envelope{}))
}
