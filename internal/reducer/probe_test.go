package reducer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeReturnsMetadata(t *testing.T) {
	h := newHarness()

	meta, err := Probe(context.Background(), h.player, source(10), time.Second)
	require.NoError(t, err)
	assert.Equal(t, h.player.meta, meta)
	assert.NoError(t, h.tracker.balanced())
}

func TestProbeTimesOut(t *testing.T) {
	h := newHarness()
	h.player.blockMeta = true

	_, err := Probe(context.Background(), h.player, source(10), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrUnreadableMedia)
	assert.NoError(t, h.tracker.balanced())
}

func TestProbeHonorsCallerCancellation(t *testing.T) {
	h := newHarness()
	h.player.blockMeta = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Probe(ctx, h.player, source(10), time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, h.tracker.balanced())
}
