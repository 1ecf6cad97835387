package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Specoptor/trendyol/internal/harvest"
)

func TestNowStampsUTCWallTime(t *testing.T) {
	t.Parallel()

	var clock harvest.Clock = New()
	before := time.Now()
	got := clock.Now()
	after := time.Now()

	require.Equal(t, time.UTC, got.Location())
	assert.WithinRange(t, got, before.Add(-time.Millisecond), after.Add(time.Millisecond))
}
