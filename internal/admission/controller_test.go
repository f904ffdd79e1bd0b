package admission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSampler struct {
	mu     sync.Mutex
	cpu    float64
	mem    float64
	cpuErr error
	memErr error
}

func (f *fakeSampler) CPUPercent(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cpu, f.cpuErr
}

func (f *fakeSampler) MemoryPercent(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mem, f.memErr
}

func (f *fakeSampler) setCPU(v float64) {
	f.mu.Lock()
	f.cpu = v
	f.mu.Unlock()
}

func TestTryAcquireGrantsUpToMax(t *testing.T) {
	c := New(Options{MaxConcurrent: 2, Sampler: &fakeSampler{cpu: 10}})

	ok, reason := c.TryAcquire()
	assert.True(t, ok)
	assert.Empty(t, reason)
	ok, _ = c.TryAcquire()
	assert.True(t, ok)

	ok, reason = c.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, ReasonBusy, reason)
	assert.Equal(t, 2, c.Active())
}

func TestTryAcquireRejectsSaturatedCPU(t *testing.T) {
	s := &fakeSampler{cpu: 95}
	c := New(Options{MaxConcurrent: 1, CPULimit: 80, Sampler: s})

	ok, reason := c.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, ReasonCPU, reason)
	assert.Equal(t, 0, c.Active())

	s.setCPU(80) // at the limit is still acceptable
	ok, _ = c.TryAcquire()
	assert.True(t, ok)
}

func TestSamplerFailureFailsOpen(t *testing.T) {
	c := New(Options{Sampler: &fakeSampler{cpuErr: errors.New("no /proc"), memErr: errors.New("no /proc")}})

	ok, reason := c.TryAcquire()
	assert.True(t, ok, "denied with reason %q", reason)

	st := c.Status()
	assert.Zero(t, st.CPUPercent)
	assert.Zero(t, st.MemPercent)
	assert.Equal(t, 1, st.Active)
	assert.False(t, st.CanAccept)
}

func TestReleaseClampsAtZero(t *testing.T) {
	c := New(Options{Sampler: &fakeSampler{}})

	c.Release()
	c.Release()
	assert.Equal(t, 0, c.Active())

	ok, _ := c.TryAcquire()
	require.True(t, ok)
	c.Release()
	c.Release()
	assert.Equal(t, 0, c.Active())
}

func TestStatus(t *testing.T) {
	c := New(Options{MaxConcurrent: 3, Sampler: &fakeSampler{cpu: 12.5, mem: 40}})
	c.TryAcquire()

	st := c.Status()
	assert.Equal(t, Status{Active: 1, Max: 3, CPUPercent: 12.5, MemPercent: 40, CanAccept: true}, st)
	// Status does not change the gate.
	assert.Equal(t, 1, c.Active())
}

func TestConcurrentTryAcquire(t *testing.T) {
	defer goleak.VerifyNone(t)

	const maxSlots = 3
	c := New(Options{MaxConcurrent: maxSlots, Sampler: &fakeSampler{}})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		busy    int
	)
	start := make(chan struct{})
	for i := 0; i < maxSlots+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, reason := c.TryAcquire()
			mu.Lock()
			defer mu.Unlock()
			if ok {
				granted++
			} else if reason == ReasonBusy {
				busy++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.LessOrEqual(t, granted, maxSlots)
	assert.GreaterOrEqual(t, busy, 1)
	assert.Equal(t, granted, c.Active())

	for i := 0; i < granted; i++ {
		c.Release()
	}
	assert.Equal(t, 0, c.Active())
}

func TestEnterReleasesOnce(t *testing.T) {
	c := New(Options{MaxConcurrent: 2, Sampler: &fakeSampler{}})

	first, err := c.Enter()
	require.NoError(t, err)
	second, err := c.Enter()
	require.NoError(t, err)

	_, err = c.Enter()
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, ReasonBusy, denied.Reason)

	first.Release()
	first.Release()
	assert.Equal(t, 1, c.Active(), "double release of one slot must not free another")

	second.Release()
	assert.Equal(t, 0, c.Active())
}
