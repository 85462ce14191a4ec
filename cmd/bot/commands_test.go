package main

import (
	"testing"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusEmbed_HealthyChecker(t *testing.T) {
	embed := statusEmbed(90*time.Second, 45*time.Millisecond, health.StatusUp, 3)

	assert.Equal(t, 0x57f287, embed.Color)
	require.Len(t, embed.Fields, 4)
	assert.Equal(t, "1m30s", embed.Fields[0].Value)
	assert.Equal(t, "45ms", embed.Fields[1].Value)
	assert.Equal(t, "up", embed.Fields[2].Value)
	assert.Equal(t, "3", embed.Fields[3].Value)
}

func TestStatusEmbed_DegradedChecker(t *testing.T) {
	// The command reports whatever verdict the health checker reaches, so
	// it can never disagree with the /health endpoint.
	for _, status := range []health.AvailabilityStatus{health.StatusDown, health.StatusUnknown} {
		embed := statusEmbed(time.Minute, 30*time.Millisecond, status, 1)

		assert.Equal(t, 0xed4245, embed.Color)
		require.Len(t, embed.Fields, 4)
		assert.Equal(t, string(status), embed.Fields[2].Value)
	}
}
