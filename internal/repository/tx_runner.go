package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/service"
	"github.com/jackc/pgx/v5"
)

// TxBeginner starts a transaction. *pgxpool.Pool and pgx.Tx (savepoints)
// both satisfy it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner hands chunk and campaign repositories bound to a single
// transaction to the callback and commits only when it returns nil.
type TxRunner struct {
	db TxBeginner
}

func NewTxRunner(db TxBeginner) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.StorageError("failed to begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if err = fn(txRepos{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.StorageError("failed to commit transaction", err)
	}
	return nil
}

type txRepos struct {
	tx pgx.Tx
}

func (r txRepos) Chunks() service.ChunkRepositoryInterface {
	return NewKnowledgeChunkRepositoryWithTx(r.tx)
}

func (r txRepos) Campaigns() service.CampaignRepositoryInterface {
	return NewCampaignRepositoryWithTx(r.tx)
}
