package diarization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfileStoreHasInitialSpeaker(t *testing.T) {
	s := NewProfileStore()

	require.Equal(t, 1, s.Len())
	first := s.First()
	require.NotNil(t, first)
	assert.Equal(t, 0, first.ID)
	assert.Equal(t, "Speaker 1", first.Label)
	assert.Zero(t, first.SampleCount)
}

func TestProfileStoreCapacity(t *testing.T) {
	s := NewProfileStore()
	for i := 1; i < MaxSpeakers; i++ {
		p := s.Add()
		require.NotNil(t, p)
		assert.Equal(t, i, p.ID)
	}

	assert.Equal(t, MaxSpeakers, s.Len())
	assert.Nil(t, s.Add(), "store is full")
	assert.Equal(t, MaxSpeakers, s.Len())
}

func TestProfileStoreRemoveKeepsOrderAndIDs(t *testing.T) {
	s := NewProfileStore()
	s.Add()
	s.Add()

	require.True(t, s.Remove(1))
	assert.False(t, s.Remove(1))
	assert.Nil(t, s.Get(1))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 0, snap[0].ID)
	assert.Equal(t, 2, snap[1].ID)

	p := s.Add()
	require.NotNil(t, p)
	assert.Equal(t, 3, p.ID, "ids are never reused")
}

func TestProfileStoreSnapshotIsDetached(t *testing.T) {
	s := NewProfileStore()
	f := voiced(120, -20, 0.05, 500, 0)
	f.MFCC = []float64{1, 2}
	s.Get(0).Update(f, 0)

	snap := s.Snapshot()
	snap[0].PitchMean = 999
	snap[0].MFCC[0] = 999

	assert.Equal(t, 120.0, s.Get(0).PitchMean)
	assert.Equal(t, 1.0, s.Get(0).MFCC[0])
}

func TestProfileStoreReset(t *testing.T) {
	s := NewProfileStore()
	s.Add()
	s.Get(0).Update(voiced(120, -20, 0.05, 500, 0), 0)

	s.Reset()

	require.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.First().ID)
	assert.Zero(t, s.First().SampleCount)
	assert.Equal(t, 1, s.Add().ID)
}
