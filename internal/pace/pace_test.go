package pace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepZero(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_ = r.Sleep(context.Background(), time.Second)
	_ = r.Sleep(context.Background(), 2*time.Second)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, r.Durations)
	assert.Equal(t, 3*time.Second, r.Total())
}
