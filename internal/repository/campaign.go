package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const campaignColumns = `id, owner, name, from_number, template_name, template_language, template_components,
	recipients, sent_count, error_count, open_count, response_count, status, created_at, updated_at, completed_at`

type CampaignRepository struct {
	db dbtx
}

func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{db: pool}
}

func NewCampaignRepositoryWithTx(tx pgx.Tx) *CampaignRepository {
	return &CampaignRepository{db: tx}
}

func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	components := c.TemplateComponents
	if components == nil {
		components = []domain.TemplateComponent{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO campaigns (id, owner, name, from_number, template_name, template_language, template_components,
			recipients, sent_count, error_count, open_count, response_count, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.Owner, c.Name, c.FromNumber, c.TemplateName, c.TemplateLanguage, components,
		c.Recipients, c.SentCount, c.ErrorCount, c.OpenCount, c.ResponseCount, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return domain.StorageError("failed to create campaign", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCampaignNotFound
		}
		return nil, domain.StorageError("failed to load campaign", err)
	}
	return c, nil
}

// MarkInProgress claims a pending campaign for dispatch. Only one caller can
// win the claim; the others get ErrCampaignNotPending.
func (r *CampaignRepository) MarkInProgress(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRow(ctx,
		`UPDATE campaigns SET status = 'in_progress', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+campaignColumns, id))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.StorageError("failed to claim campaign", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrCampaignNotPending
}

// ClaimPending moves up to limit pending campaigns to in_progress, oldest first.
// Rows locked by a concurrent claimer are skipped.
func (r *CampaignRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := r.db.Query(ctx,
		`UPDATE campaigns SET status = 'in_progress', updated_at = NOW()
		 WHERE id IN (
			SELECT id FROM campaigns
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+campaignColumns, limit)
	if err != nil {
		return nil, domain.StorageError("failed to claim pending campaigns", err)
	}
	defer rows.Close()

	campaigns, err := scanCampaignRows(rows)
	if err != nil {
		return nil, domain.StorageError("failed to read claimed campaigns", err)
	}
	return campaigns, nil
}

// SaveRunResult writes the counters, status and completion time of a run in one statement.
func (r *CampaignRepository) SaveRunResult(ctx context.Context, id string, result domain.RunResult) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE campaigns
		 SET status = $2, sent_count = $3, error_count = $4, completed_at = $5, updated_at = $5
		 WHERE id = $1 AND status = 'in_progress'`,
		id, result.Status, result.SentCount, result.ErrorCount, result.CompletedAt,
	)
	if err != nil {
		return domain.StorageError("failed to save campaign result", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignRepository) ListByOwner(ctx context.Context, owner string, cursor *pagination.Cursor, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		rows pgx.Rows
		err  error
	)
	if cursor == nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+campaignColumns+` FROM campaigns
			 WHERE owner = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			owner, limit)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+campaignColumns+` FROM campaigns
			 WHERE owner = $1 AND (created_at, id) < ($2, $3::uuid)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			owner, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, domain.StorageError("failed to list campaigns", err)
	}
	defer rows.Close()

	campaigns, err := scanCampaignRows(rows)
	if err != nil {
		return nil, domain.StorageError("failed to read campaigns", err)
	}
	return campaigns, nil
}

// RecordResponse credits an inbound reply to the most recent finished campaign
// that targeted phone. It reports whether a campaign was updated.
func (r *CampaignRepository) RecordResponse(ctx context.Context, phone string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE campaigns SET response_count = response_count + 1, updated_at = NOW()
		 WHERE id = (
			SELECT id FROM campaigns
			WHERE recipients ? $1 AND status IN ('completed', 'partial')
			ORDER BY completed_at DESC NULLS LAST, created_at DESC
			LIMIT 1
		 )`,
		phone,
	)
	if err != nil {
		return false, domain.StorageError("failed to record campaign response", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Totals aggregates the owner's campaigns created in [from, to).
func (r *CampaignRepository) Totals(ctx context.Context, owner string, from, to time.Time) (*domain.CampaignTotals, error) {
	var t domain.CampaignTotals
	err := r.db.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status IN ('pending', 'in_progress')),
			COALESCE(SUM(sent_count), 0),
			COALESCE(SUM(open_count), 0),
			COALESCE(SUM(response_count), 0)
		 FROM campaigns
		 WHERE owner = $1 AND created_at >= $2 AND created_at < $3`,
		owner, from, to,
	).Scan(&t.Active, &t.Sent, &t.Opened, &t.Responses)
	if err != nil {
		return nil, domain.StorageError("failed to aggregate campaigns", err)
	}
	return &t, nil
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	var status string
	err := row.Scan(
		&c.ID, &c.Owner, &c.Name, &c.FromNumber, &c.TemplateName, &c.TemplateLanguage, &c.TemplateComponents,
		&c.Recipients, &c.SentCount, &c.ErrorCount, &c.OpenCount, &c.ResponseCount, &status,
		&c.CreatedAt, &c.UpdatedAt, &c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.CampaignStatus(status)
	return &c, nil
}

func scanCampaignRows(rows pgx.Rows) ([]*domain.Campaign, error) {
	campaigns := make([]*domain.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}
