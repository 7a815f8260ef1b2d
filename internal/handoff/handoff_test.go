package handoff

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-agent/internal/types"
)

func TestMemory_PutReadTake(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	got, err := m.Read(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	job := types.PendingJob{
		Job:      &types.JobDetails{Title: "SRE", Description: "On call"},
		Resume:   &types.Resume{ID: "cv-1"},
		AutoMode: true,
	}
	require.NoError(t, m.Put(ctx, "user-1", job))

	got, err = m.Read(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job, *got)

	other, err := m.Read(ctx, "user-2")
	require.NoError(t, err)
	assert.Nil(t, other)

	taken, err := m.Take(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, taken)
	assert.Equal(t, job, *taken)

	got, err = m.Read(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	taken, err = m.Take(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, taken)
}

func TestMemory_TakeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "user-1", types.PendingJob{Job: &types.JobDetails{Title: "SRE"}}))

	const callers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		start = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got, err := m.Take(ctx, "user-1")
			assert.NoError(t, err)
			if got != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	job := types.PendingJob{Job: &types.JobDetails{Title: "SRE"}}
	require.NoError(t, m.Put(ctx, "k", job))

	job.Job.Title = "changed"
	got, _ := m.Read(ctx, "k")
	got.Job.Title = "also changed"

	again, _ := m.Read(ctx, "k")
	assert.Equal(t, "SRE", again.Job.Title)
}

func TestSlot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "a", types.PendingJob{AutoMode: true}))
	require.NoError(t, m.Put(ctx, "b", types.PendingJob{}))

	slot := Slot{Store: m, Key: "a"}
	got, err := slot.TakePendingJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.AutoMode)

	got, err = slot.TakePendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Other keys are untouched
	b, _ := m.Read(ctx, "b")
	assert.NotNil(t, b)
}
