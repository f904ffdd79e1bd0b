package packer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRegistryOnePerUser(t *testing.T) {
	r := NewJobRegistry()

	tr, ok := r.begin("u1", "job-a", 2, 100)
	require.True(t, ok)
	_, ok = r.begin("u1", "job-b", 1, 1)
	assert.False(t, ok)

	other, ok := r.begin("u2", "job-c", 1, 1)
	require.True(t, ok)
	assert.Equal(t, 2, r.Running())

	tr.finish()
	other.finish()
	assert.Zero(t, r.Running())
	_, ok = r.Get("u1")
	assert.False(t, ok)
}

func TestJobTrackerUpdates(t *testing.T) {
	r := NewJobRegistry()
	tr, ok := r.begin("u1", "job-a", 3, 300)
	require.True(t, ok)

	tr.stage(StagePacking)
	tr.FileAdded("a", 100)
	tr.FileSkipped("b", nil)
	tr.BytesCopied(100)
	tr.PartWritten(1, "p", 150)

	s, ok := r.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "job-a", s.JobID)
	assert.Equal(t, StagePacking, s.Stage)
	assert.Equal(t, 1, s.FilesDone)
	assert.Equal(t, 1, s.FilesSkipped)
	assert.Equal(t, int64(100), s.BytesDone)
	assert.Equal(t, 1, s.Parts)
	assert.False(t, s.StartedAt.IsZero())
}

func TestJobTrackerIgnoresReplacedJob(t *testing.T) {
	r := NewJobRegistry()
	old, _ := r.begin("u1", "old", 1, 1)
	old.finish()
	cur, ok := r.begin("u1", "new", 1, 1)
	require.True(t, ok)

	old.FileAdded("x", 1)
	old.finish()

	s, ok := r.Get("u1")
	require.True(t, ok, "finishing a stale tracker must not remove the new job")
	assert.Equal(t, "new", s.JobID)
	assert.Zero(t, s.FilesDone)
	cur.finish()
}
