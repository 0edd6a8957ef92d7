package rebuild_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parcad/internal/kernel/prismatic"
	"github.com/roach88/parcad/internal/rebuild"
	"github.com/roach88/parcad/internal/testutil"
)

type delivery struct {
	id  uint64
	res *rebuild.Result
}

func TestWorker_DeliversOnlyLatest(t *testing.T) {
	l := testutil.NewLayer(t)
	testutil.Box(t, l, 10, 10, 5)

	var mu sync.Mutex
	var got []delivery
	w := rebuild.NewWorker(newOrchestrator(), func(id uint64, res *rebuild.Result) {
		mu.Lock()
		got = append(got, delivery{id, res})
		mu.Unlock()
	})

	snap := l.Document().Snapshot()
	assert.Equal(t, uint64(1), w.Submit(snap, rebuild.ModeFull))
	assert.Equal(t, uint64(2), w.Submit(snap, rebuild.ModeFull))
	assert.Equal(t, uint64(3), w.Submit(snap, rebuild.ModeGated))
	w.Stop()

	require.NoError(t, w.Run(context.Background()))

	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].id)
	assert.Equal(t, rebuild.ModeGated, got[0].res.Mode)
	delivered, discarded := w.Stats()
	assert.Equal(t, uint64(1), delivered)
	assert.Equal(t, uint64(2), discarded)

	assert.Equal(t, uint64(0), w.Submit(snap, rebuild.ModeFull), "stopped workers reject requests")
}

func TestWorker_RunsUntilCancelled(t *testing.T) {
	l := testutil.NewLayer(t)
	testutil.Box(t, l, 10, 10, 5)

	results := make(chan uint64, 4)
	w := rebuild.NewWorker(newOrchestrator(), func(id uint64, _ *rebuild.Result) {
		results <- id
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	id := w.Submit(l.Document().Snapshot(), rebuild.ModeFull)
	select {
	case got := <-results:
		assert.Equal(t, id, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
	}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, uint64(1), w.Latest())
}

// blockingKernel holds its first extrude until release is closed.
type blockingKernel struct {
	rebuild.Kernel
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (k *blockingKernel) Extrude(ctx context.Context, in rebuild.ExtrudeInput) (rebuild.SolidOutput, error) {
	k.once.Do(func() {
		close(k.started)
		<-k.release
	})
	return k.Kernel.Extrude(ctx, in)
}

func TestWorker_WatchDiscardsPassOvertakenByMutation(t *testing.T) {
	l := testutil.NewLayer(t)
	_, e := testutil.Box(t, l, 10, 10, 5)

	k := &blockingKernel{Kernel: prismatic.New(), started: make(chan struct{}), release: make(chan struct{})}
	results := make(chan uint64, 4)
	w := rebuild.NewWorker(rebuild.NewOrchestrator(k, rebuild.WithLogger(testutil.DiscardLogger())), func(id uint64, _ *rebuild.Result) {
		results <- id
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	first := w.Watch(l.Document(), rebuild.ModeFull)
	assert.Equal(t, uint64(1), first)

	select {
	case <-k.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never reached the kernel")
	}
	require.NoError(t, l.RenameFeature(e, "Pad"))
	assert.Equal(t, uint64(2), w.Latest(), "the mutation queues a new pass")
	close(k.release)

	select {
	case got := <-results:
		assert.Equal(t, uint64(2), got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
	}
	delivered, discarded := w.Stats()
	assert.Equal(t, uint64(1), delivered)
	assert.Equal(t, uint64(1), discarded)
	assert.Empty(t, results, "the overtaken pass is never delivered")
}
