package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpAcquire, 100*time.Millisecond)
	c.RecordTiming(OpAcquire, 300*time.Millisecond)
	c.RecordFailure(OpAcquire, 200*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Acquire)
	assert.Equal(t, int64(3), snap.Acquire.Count)
	assert.Equal(t, int64(1), snap.Acquire.Failures)
	assert.Equal(t, int64(100), snap.Acquire.MinTimeMs)
	assert.Equal(t, int64(300), snap.Acquire.MaxTimeMs)
	assert.InDelta(t, 200.0, snap.Acquire.AvgTimeMs, 0.1)
	assert.Nil(t, snap.Transcode)
}

func TestTime(t *testing.T) {
	c := NewCollector()
	boom := errors.New("boom")

	assert.NoError(t, c.Time(OpPersist, func() error { return nil }))
	assert.ErrorIs(t, c.Time(OpPersist, func() error { return boom }), boom)

	snap := c.Snapshot()
	require.NotNil(t, snap.Persist)
	assert.Equal(t, int64(2), snap.Persist.Count)
	assert.Equal(t, int64(1), snap.Persist.Failures)
}

func TestCounters(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordSegment("success")
		}()
	}
	wg.Wait()
	c.RecordSegment("no_speech")
	c.RecordJob("completed")

	snap := c.Snapshot()
	assert.Equal(t, int64(50), snap.Segments["success"])
	assert.Equal(t, int64(1), snap.Segments["no_speech"])
	assert.Equal(t, int64(1), snap.Jobs["completed"])
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpRecognize, time.Second)
	c.RecordSegment("success")
	c.RecordJob("failed")
	assert.NoError(t, c.Time(OpRecognize, func() error { return nil }))
}
