package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

// ScrapeRunRepo is append-only: runs are created once and read back for
// auditing, never mutated.
type ScrapeRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *types.ScrapeRun) (*types.ScrapeRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScrapeRun, error)
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ScrapeRun, error)
}

type scrapeRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScrapeRunRepo(db *gorm.DB, baseLog *logger.Logger) ScrapeRunRepo {
	return &scrapeRunRepo{
		db:  db,
		log: baseLog.With("repo", "ScrapeRunRepo"),
	}
}

func (r *scrapeRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.ScrapeRun) (*types.ScrapeRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if run == nil {
		return nil, nil
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *scrapeRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScrapeRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.ScrapeRun
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *scrapeRunRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ScrapeRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var out []*types.ScrapeRun
	err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
