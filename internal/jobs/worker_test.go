package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

type MockCampaignDispatcher struct {
	mock.Mock
}

func (m *MockCampaignDispatcher) DispatchPending(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func startWorker(ctx context.Context, w *Worker) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Start(ctx)
	}()
	return &wg
}

func TestWorker_RunsImmediately(t *testing.T) {
	processor := new(MockProcessor)
	called := make(chan struct{}, 1)
	processor.On("Process", mock.Anything).Return(false, nil).Run(func(mock.Arguments) {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	worker := NewWorker(processor, time.Hour, nil)
	wg := startWorker(context.Background(), worker)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("processor was not called before the first tick")
	}
	worker.Stop()
	wg.Wait()
}

func TestWorker_DrainsWhileMore(t *testing.T) {
	processor := new(MockProcessor)
	var calls atomic.Int32
	count := func(mock.Arguments) { calls.Add(1) }
	processor.On("Process", mock.Anything).Return(true, nil).Twice().Run(count)
	processor.On("Process", mock.Anything).Return(false, nil).Once().Run(count)

	worker := NewWorker(processor, time.Hour, nil)
	wg := startWorker(context.Background(), worker)

	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)

	worker.Stop()
	wg.Wait()
	processor.AssertExpectations(t)
}

func TestWorker_ContextCancellation(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("Process", mock.Anything).Return(false, nil)

	worker := NewWorker(processor, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	wg := startWorker(ctx, worker)

	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	// Stop after Start returned must not block or panic.
	worker.Stop()
	worker.Stop()
	processor.AssertCalled(t, "Process", mock.Anything)
}

func TestWorker_ContinuesAfterError(t *testing.T) {
	processor := new(MockProcessor)
	var calls atomic.Int32
	processor.On("Process", mock.Anything).Return(true, errors.New("db down")).Run(func(mock.Arguments) { calls.Add(1) })

	worker := NewWorker(processor, 20*time.Millisecond, nil)
	wg := startWorker(context.Background(), worker)

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	worker.Stop()
	wg.Wait()
}

func TestCampaignWorker_Process(t *testing.T) {
	dispatcher := new(MockCampaignDispatcher)
	dispatcher.On("DispatchPending", mock.Anything, 3).Return(2, nil).Once()
	dispatcher.On("DispatchPending", mock.Anything, 3).Return(3, nil).Once()

	worker := NewCampaignWorker(dispatcher, 3, nil)

	more, err := worker.Process(context.Background())
	assert.NoError(t, err)
	assert.False(t, more)

	more, err = worker.Process(context.Background())
	assert.NoError(t, err)
	assert.True(t, more)
	dispatcher.AssertExpectations(t)
}

func TestCampaignWorker_DefaultBatchSize(t *testing.T) {
	dispatcher := new(MockCampaignDispatcher)
	dispatcher.On("DispatchPending", mock.Anything, DefaultBatchSize).Return(0, nil)

	worker := NewCampaignWorker(dispatcher, 0, nil)

	more, err := worker.Process(context.Background())
	assert.NoError(t, err)
	assert.False(t, more)
	dispatcher.AssertExpectations(t)
}

func TestCampaignWorker_Process_ClaimFailure(t *testing.T) {
	dispatcher := new(MockCampaignDispatcher)
	dispatcher.On("DispatchPending", mock.Anything, DefaultBatchSize).Return(0, errors.New("db down"))

	worker := NewCampaignWorker(dispatcher, 0, nil)
	_, err := worker.Process(context.Background())

	assert.ErrorContains(t, err, "failed to dispatch pending campaigns")
}
