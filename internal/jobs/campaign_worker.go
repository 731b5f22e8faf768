package jobs

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/supportdesk/internal/logger"
)

// DefaultBatchSize is how many pending campaigns one poll claims.
const DefaultBatchSize = 5

// CampaignDispatcher runs pending campaigns.
type CampaignDispatcher interface {
	DispatchPending(ctx context.Context, limit int) (int, error)
}

// CampaignWorker dispatches campaigns that were created without an immediate run.
type CampaignWorker struct {
	dispatcher CampaignDispatcher
	batchSize  int
	log        *logger.Logger
}

func NewCampaignWorker(dispatcher CampaignDispatcher, batchSize int, log *logger.Logger) *CampaignWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CampaignWorker{
		dispatcher: dispatcher,
		batchSize:  batchSize,
		log:        log,
	}
}

// Process claims and runs one batch of pending campaigns.
func (w *CampaignWorker) Process(ctx context.Context) (bool, error) {
	n, err := w.dispatcher.DispatchPending(ctx, w.batchSize)
	if err != nil {
		return false, fmt.Errorf("failed to dispatch pending campaigns: %w", err)
	}
	if n > 0 {
		w.log.Info("dispatched pending campaigns", "count", n)
	}
	return n >= w.batchSize, nil
}
