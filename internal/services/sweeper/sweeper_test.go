package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"task_manager/internal/lib/logger/handlers/slogdiscard"
	"task_manager/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockExpiredSweeper struct {
	mock.Mock
}

func (m *MockExpiredSweeper) SweepExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestRunOnce(t *testing.T) {
	target := new(MockExpiredSweeper)
	s := New(slogdiscard.NewDiscardLogger(), target, time.Hour)

	swept := testutil.ToFloat64(metrics.RefreshTokensSwept)
	failures := testutil.ToFloat64(metrics.RefreshSweepFailures)

	target.On("SweepExpired", mock.Anything).Return(int64(4), nil).Once()
	s.RunOnce(context.Background())
	assert.Equal(t, swept+4, testutil.ToFloat64(metrics.RefreshTokensSwept))

	target.On("SweepExpired", mock.Anything).Return(int64(0), errors.New("store down")).Once()
	s.RunOnce(context.Background())
	assert.Equal(t, failures+1, testutil.ToFloat64(metrics.RefreshSweepFailures))

	target.AssertExpectations(t)
}

// countingSweeper fails every other call.
type countingSweeper struct {
	calls atomic.Int64
}

func (c *countingSweeper) SweepExpired(context.Context) (int64, error) {
	if c.calls.Add(1)%2 == 0 {
		return 0, errors.New("transient")
	}

	return 1, nil
}

func TestRun_KeepsGoingAfterFailures(t *testing.T) {
	target := &countingSweeper{}
	s := New(slogdiscard.NewDiscardLogger(), target, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return target.calls.Load() >= 4 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
