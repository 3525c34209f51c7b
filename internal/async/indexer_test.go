package async

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackgroundIndexer(t *testing.T) {
	indexer := NewBackgroundIndexer(IndexerConfig{DataDir: t.TempDir()})

	require.NotNil(t, indexer)
	assert.NotNil(t, indexer.Progress())
	assert.False(t, indexer.IsRunning())
}

func TestBackgroundIndexer_Start_RunsIndexFuncInGoroutine(t *testing.T) {
	indexer := NewBackgroundIndexer(IndexerConfig{DataDir: t.TempDir()})

	var started atomic.Bool
	indexer.IndexFunc = func(ctx context.Context, progress *IndexProgress) error {
		started.Store(true)
		return nil
	}

	indexer.Start(context.Background())
	assert.True(t, indexer.IsRunning())

	require.NoError(t, indexer.Wait())
	assert.True(t, started.Load())
	assert.False(t, indexer.IsRunning())
}

func TestBackgroundIndexer_Progress_TracksStagesAsTheyRun(t *testing.T) {
	indexer := NewBackgroundIndexer(IndexerConfig{DataDir: t.TempDir()})

	indexer.IndexFunc = func(ctx context.Context, progress *IndexProgress) error {
		progress.SetStage(StageScanning, 100)
		progress.UpdateFiles(50)
		time.Sleep(10 * time.Millisecond)
		progress.SetStage(StageChunking, 100)
		progress.UpdateFiles(100)
		return nil
	}

	indexer.Start(context.Background())
	time.Sleep(5 * time.Millisecond)
	assert.True(t, indexer.IsRunning())

	require.NoError(t, indexer.Wait())
	assert.Equal(t, "ready", indexer.Progress().Snapshot().Status)
}

func TestBackgroundIndexer_Stop_CancelsTheRunningBuild(t *testing.T) {
	indexer := NewBackgroundIndexer(IndexerConfig{DataDir: t.TempDir()})

	var canceled atomic.Bool
	indexer.IndexFunc = func(ctx context.Context, progress *IndexProgress) error {
		progress.SetStage(StageReading, 1000)
		for i := 0; i < 1000; i++ {
			select {
			case <-ctx.Done():
				canceled.Store(true)
				return ctx.Err()
			case <-time.After(time.Millisecond):
				progress.UpdateFiles(i)
			}
		}
		return nil
	}

	indexer.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	indexer.Stop()

	assert.True(t, canceled.Load())
	assert.False(t, indexer.IsRunning())
}

func TestBackgroundIndexer_Stop_FollowsParentContextCancellation(t *testing.T) {
	indexer := NewBackgroundIndexer(IndexerConfig{DataDir: t.TempDir()})

	var canceled atomic.Bool
	indexer.IndexFunc = func(ctx context.Context, progress *IndexProgress) error {
		<-ctx.Done()
		canceled.Store(true)
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	indexer.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()

	_ = indexer.Wait()
	assert.True(t, canceled.Load())
	assert.False(t, indexer.IsRunning())
}

func TestBackgroundIndexer_Wait_BlocksUntilTheBuildFinishes(t *testing.T) {
	indexer := NewBackgroundIndexer(IndexerConfig{DataDir: t.TempDir()})
	indexer.IndexFunc = func(ctx context.Context, progress *IndexProgress) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	start := time.Now()
	indexer.Start(context.Background())
	err := indexer.Wait()

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestBackgroundIndexer_WritesAndClearsIndexingLock(t *testing.T) {
	dataDir := t.TempDir()
	indexer := NewBackgroundIndexer(IndexerConfig{DataDir: dataDir})
	lockPath := filepath.Join(dataDir, "indexing.lock")

	var lockSeenDuringRun atomic.Bool
	indexer.IndexFunc = func(ctx context.Context, progress *IndexProgress) error {
		_, err := os.Stat(lockPath)
		lockSeenDuringRun.Store(err == nil)
		return nil
	}

	indexer.Start(context.Background())
	require.NoError(t, indexer.Wait())

	assert.True(t, lockSeenDuringRun.Load())
	_, err := os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err), "indexing.lock should be removed once the build completes")
}

func TestBackgroundIndexer_FailedBuildRecordsErrorInProgress(t *testing.T) {
	indexer := NewBackgroundIndexer(IndexerConfig{DataDir: t.TempDir()})

	const wantMsg = "embedding failed"
	indexer.IndexFunc = func(ctx context.Context, progress *IndexProgress) error {
		return &testError{message: wantMsg}
	}

	indexer.Start(context.Background())
	err := indexer.Wait()

	require.Error(t, err)
	snap := indexer.Progress().Snapshot()
	assert.Equal(t, "error", snap.Status)
	assert.Contains(t, snap.ErrorMessage, wantMsg)
}

func TestBackgroundIndexer_Start_IgnoresSecondCallWhileRunning(t *testing.T) {
	indexer := NewBackgroundIndexer(IndexerConfig{DataDir: t.TempDir()})

	var startCount atomic.Int32
	indexer.IndexFunc = func(ctx context.Context, progress *IndexProgress) error {
		startCount.Add(1)
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	ctx := context.Background()
	indexer.Start(ctx)
	indexer.Start(ctx)
	indexer.Start(ctx)
	_ = indexer.Wait()

	assert.Equal(t, int32(1), startCount.Load())
}

func TestHasIncompleteLock(t *testing.T) {
	tests := []struct {
		name  string
		setup func(dir string)
		want  bool
	}{
		{
			name:  "no build has run here yet",
			setup: func(dir string) {},
			want:  false,
		},
		{
			name: "a prior build left its lock behind",
			setup: func(dir string) {
				_ = os.WriteFile(filepath.Join(dir, "indexing.lock"), []byte("2026-01-01T00:00:00Z"), 0644)
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(dir)
			assert.Equal(t, tt.want, HasIncompleteLock(dir))
		})
	}
}

type testError struct {
	message string
}

func (e *testError) Error() string {
	return e.message
}
