package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/subtis/internal/controllers"
)

type fakeIndexer struct {
	runs int32
	err  error

	// when set, IndexCatalog blocks until it is closed or ctx is done
	gate    chan struct{}
	active  int32
	overlap int32
}

func (f *fakeIndexer) IndexCatalog(ctx context.Context) (*controllers.RunSummary, error) {
	atomic.AddInt32(&f.runs, 1)
	if atomic.AddInt32(&f.active, 1) > 1 {
		atomic.StoreInt32(&f.overlap, 1)
	}
	defer atomic.AddInt32(&f.active, -1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &controllers.RunSummary{Indexed: 3}, nil
}

type fakeSweeper struct {
	runs int32
}

func (f *fakeSweeper) Sweep(ctx context.Context) error {
	atomic.AddInt32(&f.runs, 1)
	return ctx.Err()
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := NewScheduler(&fakeIndexer{}, &fakeSweeper{}, "not a schedule", "0 * * * *", false, testLogger())
	require.Error(t, s.Start())
}

func TestCrawlOnStart(t *testing.T) {
	indexer := &fakeIndexer{}
	s := NewScheduler(indexer, &fakeSweeper{}, "0 0 1 1 *", "@every 1h", true, testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&indexer.runs) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestScheduledCrawlSkippedWhileStartupCrawlRuns(t *testing.T) {
	indexer := &fakeIndexer{gate: make(chan struct{})}
	s := NewScheduler(indexer, &fakeSweeper{}, "@every 1s", "@every 1h", true, testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&indexer.runs) == 1
	}, time.Second, 10*time.Millisecond)

	// at least one scheduled tick fires while the startup crawl is blocked
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&indexer.runs))
	assert.Zero(t, atomic.LoadInt32(&indexer.overlap))

	close(indexer.gate)
}

func TestSweepRunsOnSchedule(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := NewScheduler(&fakeIndexer{}, sweeper, "0 0 1 1 *", "@every 1s", false, testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&sweeper.runs) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRunCrawlSurvivesFailure(t *testing.T) {
	indexer := &fakeIndexer{err: errors.New("catalog down")}
	s := NewScheduler(indexer, &fakeSweeper{}, "@every 1h", "@every 1h", false, testLogger())

	s.runCrawl()
	s.runCrawl()
	assert.Equal(t, int32(2), atomic.LoadInt32(&indexer.runs))
}
