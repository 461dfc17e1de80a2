package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderKeepsOrder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	require.NoError(t, r.Publish(ctx, Event{Type: ProductCreated, ResourceID: "a"}))
	require.NoError(t, r.Publish(ctx, Event{Type: ProductSynced, ResourceID: "a"}))

	assert.Equal(t, []string{ProductCreated, ProductSynced}, r.Types())
	evs := r.Events()
	evs[0].Type = "mutated"
	assert.Equal(t, ProductCreated, r.Events()[0].Type)
}

func TestNopAcceptsEverything(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TenantCreated}))
	assert.NoError(t, p.Close())
}
