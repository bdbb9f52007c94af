package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewItem_ClampsImportance(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	it := NewItem("hello", 1.7, TierWorking, now)
	require.Equal(t, 1.0, it.Importance)
	require.Equal(t, now, it.CreatedAt)
	require.Equal(t, now, it.LastAccessedAt)
	require.NotEmpty(t, it.ID)

	it = NewItem("hello", -0.3, TierWorking, now)
	require.Equal(t, 0.0, it.Importance)
}

func TestItem_Touch(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	it := NewItem("hello", 0.5, TierWorking, now)

	later := now.Add(time.Minute)
	it.Touch(later)
	require.Equal(t, later, it.LastAccessedAt)
	require.Equal(t, 1, it.AccessCount)

	// A touch with an earlier clock never moves LastAccessedAt backwards.
	it.Touch(now)
	require.Equal(t, later, it.LastAccessedAt)
	require.Equal(t, 2, it.AccessCount)
	require.False(t, it.LastAccessedAt.Before(it.CreatedAt))
}
