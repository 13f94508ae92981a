package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPartitionMetaRoundTrip(t *testing.T) {
	s, _ := fixtureStore(t)

	meta, err := s.GetPartitionMeta("static")
	require.NoError(t, err)
	require.Nil(t, meta, "unknown partition has no metadata")

	activated := time.Now().Truncate(time.Second)
	err = s.PutPartitionMeta("static", &PartitionMeta{
		Version:         "v1",
		LastActivatedAt: activated,
	})
	require.NoError(t, err)

	meta, err = s.GetPartitionMeta("static")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "v1", meta.Version)
	require.True(t, meta.LastActivatedAt.Equal(activated))
}

func TestPartitions(t *testing.T) {
	s, _ := fixtureStore(t)

	for _, name := range []string{"static", "api", "images"} {
		require.NoError(t, s.PutPartitionMeta(name, &PartitionMeta{Version: "v1"}))
	}

	names, err := s.Partitions()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"static", "api", "images"}, names)
}
