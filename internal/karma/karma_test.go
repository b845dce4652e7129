package karma_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetbot/internal/karma"
	"github.com/meetbot/internal/testutil"
)

var baseTime = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

func TestAdjustAccumulates(t *testing.T) {
	ledger := karma.NewLedger(testutil.NewTestDB(t))
	ctx := context.Background()

	deltas := []struct {
		delta int
		want  int
	}{
		{+1, 1},
		{+1, 2},
		{-1, 1},
		{-1, 0},
		{-1, -1},
	}
	for _, step := range deltas {
		got, err := ledger.Adjust(ctx, "U1", step.delta, baseTime)
		require.NoError(t, err)
		assert.Equal(t, step.want, got)
	}
}

func TestAdjustIsPerUser(t *testing.T) {
	ledger := karma.NewLedger(testutil.NewTestDB(t))
	ctx := context.Background()

	_, err := ledger.Adjust(ctx, "U1", 1, baseTime)
	require.NoError(t, err)

	got, err := ledger.Adjust(ctx, "U2", -1, baseTime)
	require.NoError(t, err)
	assert.Equal(t, -1, got)
}

func TestLeaderboardOrderAndLimit(t *testing.T) {
	ledger := karma.NewLedger(testutil.NewTestDB(t))
	ctx := context.Background()

	seed := map[string]int{"U1": 3, "U2": 5, "U3": 1, "U4": 5}
	for _, id := range []string{"U1", "U2", "U3", "U4"} {
		for i := 0; i < seed[id]; i++ {
			_, err := ledger.Adjust(ctx, id, 1, baseTime)
			require.NoError(t, err)
		}
	}

	entries, err := ledger.Leaderboard(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Ties break toward the earlier-created row, so U2 precedes U4.
	assert.Equal(t, "U2", entries[0].UserID)
	assert.Equal(t, 5, entries[0].Points)
	assert.Equal(t, "U4", entries[1].UserID)
	assert.Equal(t, "U1", entries[2].UserID)
}

func TestLeaderboardEmpty(t *testing.T) {
	ledger := karma.NewLedger(testutil.NewTestDB(t))

	entries, err := ledger.Leaderboard(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLeaderboardDefaultLimit(t *testing.T) {
	ledger := karma.NewLedger(testutil.NewTestDB(t))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := ledger.Adjust(ctx, string(rune('A'+i)), 1, baseTime)
		require.NoError(t, err)
	}

	entries, err := ledger.Leaderboard(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}
