package firestore

import (
	"context"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberquest/core"
)

func TestDecodeEntry(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		want    core.Entry
		wantErr bool
	}{
		{
			name: "native integers",
			data: map[string]any{"name": "ana", "score": int64(120), "date": "2024-05-01T00:00:00Z", "timestamp": int64(1714521600000)},
			want: core.Entry{ID: "d1", Name: "ana", Score: 120, Date: "2024-05-01T00:00:00Z", Timestamp: 1714521600000},
		},
		{
			name: "doubles are floored",
			data: map[string]any{"name": "budi", "score": 99.9, "timestamp": 1714521600000.0},
			want: core.Entry{ID: "d1", Name: "budi", Score: 99, Timestamp: 1714521600000},
		},
		{name: "missing name", data: map[string]any{"score": int64(1)}, wantErr: true},
		{name: "blank name", data: map[string]any{"name": "  ", "score": int64(1)}, wantErr: true},
		{name: "score as string", data: map[string]any{"name": "ana", "score": "10"}, wantErr: true},
		{name: "negative score", data: map[string]any{"name": "ana", "score": int64(-5)}, wantErr: true},
		{name: "infinite score", data: map[string]any{"name": "ana", "score": math.Inf(1)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeEntry("d1", tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRequiresProject(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

// Runs against the Firestore emulator when FIRESTORE_EMULATOR_HOST is set.
func TestStoreAgainstEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ProjectID = "cyberquest-test"
	cfg.Collection = fmt.Sprintf("leaderboard_%d", time.Now().UnixNano())
	store, err := New(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	now := time.Now()
	for i, s := range []int64{30, 90, 60} {
		_, err := store.Insert(ctx, core.NewEntry(fmt.Sprintf("p%d", i), s, now))
		require.NoError(t, err)
	}
	top, err := store.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(90), top[0].Score)
	assert.Equal(t, int64(60), top[1].Score)
	assert.NotEmpty(t, top[0].ID)
}
