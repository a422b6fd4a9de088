package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMapStore()

	src := NewSystem()
	src.AddMemory(TypeFact, "user is hunting for software jobs", nil)
	src.StoreUserPreference("location", "India")
	src.AddWebContextMemory("linkedin.com", "clickElement", "open jobs tab", true, "")
	require.NoError(t, src.Save(ctx, store))

	dst := NewSystem()
	require.NoError(t, dst.Load(ctx, store))

	assert.Equal(t, src.RecordCount(), dst.RecordCount())

	// Records survive with their timestamps and relevance intact, so
	// recency scoring picks up where the saved session left off.
	for id, rec := range src.records {
		got, ok := dst.records[id]
		require.True(t, ok, "record %s missing after load", id)
		assert.Equal(t, rec.Type, got.Type)
		assert.Equal(t, rec.Content, got.Content)
		assert.Equal(t, rec.Relevance, got.Relevance)
		assert.True(t, got.LastAccessed.Equal(rec.LastAccessed),
			"record %s LastAccessed changed across the round-trip", id)
	}

	dm := dst.GetWebContextMemory("linkedin.com")
	require.NotNil(t, dm)
	assert.Len(t, dm.SuccessfulActions, 1)
	assert.Equal(t, "clickElement", dm.SuccessfulActions[0].Action)

	srcDM := src.GetWebContextMemory("linkedin.com")
	require.NotNil(t, srcDM)
	assert.True(t, dm.SuccessfulActions[0].Timestamp.Equal(srcDM.SuccessfulActions[0].Timestamp))

	results := dst.GetRelevantMemories("software jobs", 5)
	require.NotEmpty(t, results)
}

func TestLoadMissingSnapshot(t *testing.T) {
	sys := NewSystem()
	require.NoError(t, sys.Load(context.Background(), NewMapStore()))
	assert.Zero(t, sys.RecordCount())
}
