package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLinear(t *testing.T) {
	require.Zero(t, Linear(3, 0))
	for attempt := range 3 {
		d := Linear(attempt, time.Second)
		base := time.Duration(attempt+1) * time.Second
		require.GreaterOrEqual(t, d, base)
		require.LessOrEqual(t, d, base+base/10+1)
	}
	require.LessOrEqual(t, Linear(100, time.Second), MaxWait+MaxWait/10+1)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
	require.Less(t, time.Since(start), time.Second)

	require.NoError(t, Sleep(context.Background(), time.Millisecond))
}
