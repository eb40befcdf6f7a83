package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

// Read modes for GetStores.
const (
	StoreModeAll          = "all"
	StoreModeSingle       = "single"
	StoreModeUnsummarized = "unsummarized"
	StoreModeByState      = "by_state"
)

// ErrInvalidFilter marks caller-supplied read parameters that fail validation.
// These are never retried.
var ErrInvalidFilter = errors.New("invalid store filter")

type StoreFilter struct {
	Mode             string
	PlaceID          string
	States           []string
	OnlyUnsummarized bool
	Limit            int
	Offset           int
}

type FailedStore struct {
	PlaceID string `json:"place_id"`
	Error   string `json:"error"`
}

// UpsertResult partitions one write call's input: every valid record lands in
// Successful or Failed, and every successful record is classified new or
// updated based on whether its place_id existed before the write.
type UpsertResult struct {
	Successful    []string      `json:"successful"`
	Failed        []FailedStore `json:"failed"`
	NewStores     []string      `json:"new_stores"`
	UpdatedStores []string      `json:"updated_stores"`
	Dropped       int           `json:"dropped"`
}

type StoreSummary struct {
	PlaceID string
	Summary string
}

type SummaryWriteResult struct {
	Successful []string      `json:"successful"`
	Failed     []FailedStore `json:"failed"`
}

type StoreWithDistance struct {
	types.Store    `gorm:"embedded"`
	DistanceMeters float64 `gorm:"column:distance_meters" json:"distance_meters"`
}

type StoreRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, stores []*types.Store) (*UpsertResult, error)
	UpsertSummaries(ctx context.Context, tx *gorm.DB, summaries []StoreSummary) (*SummaryWriteResult, error)
	GetStores(ctx context.Context, tx *gorm.DB, filter StoreFilter) ([]*types.Store, error)
	FindNearby(ctx context.Context, tx *gorm.DB, lat, lng, radiusMeters float64) ([]StoreWithDistance, error)
}

type StoreRepoConfig struct {
	ChunkSize        int
	SummaryChunkSize int
	MaxChunkAttempts int
	RetryBaseDelay   time.Duration
}

func (c *StoreRepoConfig) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.SummaryChunkSize <= 0 {
		c.SummaryChunkSize = 50
	}
	if c.MaxChunkAttempts <= 0 {
		c.MaxChunkAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 1 * time.Second
	}
}

type storeRepo struct {
	db    *gorm.DB
	log   *logger.Logger
	cfg   StoreRepoConfig
	sleep func(time.Duration)
}

func NewStoreRepo(db *gorm.DB, baseLog *logger.Logger, cfg StoreRepoConfig) StoreRepo {
	cfg.applyDefaults()
	return &storeRepo{
		db:    db,
		log:   baseLog.With("repo", "StoreRepo"),
		cfg:   cfg,
		sleep: time.Sleep,
	}
}

// Columns refreshed on conflict. The surrogate id and first_scraped_at are
// deliberately absent so an update never disturbs row identity.
var storeUpdateColumns = []string{
	"name", "subtitle", "description", "category_name", "categories",
	"website", "phone", "permanently_closed", "temporarily_closed",
	"street", "city", "state", "postal_code", "country_code",
	"neighborhood", "plus_code", "latitude", "longitude",
	"total_score", "reviews_count", "reviews_distribution", "reviews",
	"reviews_tags", "questions_and_answers", "last_updated_at",
}

func (r *storeRepo) Upsert(ctx context.Context, tx *gorm.DB, stores []*types.Store) (*UpsertResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	result := &UpsertResult{
		Successful:    []string{},
		Failed:        []FailedStore{},
		NewStores:     []string{},
		UpdatedStores: []string{},
	}

	valid := make([]*types.Store, 0, len(stores))
	for _, s := range stores {
		if s == nil || s.PlaceID == "" {
			result.Dropped++
			r.log.Warn("Dropping store without place_id")
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return result, nil
	}

	existing, err := r.existingPlaceIDs(ctx, transaction, valid)
	if err != nil {
		return nil, fmt.Errorf("classify existing stores: %w", err)
	}

	now := time.Now().UTC()
	for start := 0; start < len(valid); start += r.cfg.ChunkSize {
		end := start + r.cfg.ChunkSize
		if end > len(valid) {
			end = len(valid)
		}
		chunk := valid[start:end]
		for _, s := range chunk {
			if s.ID == uuid.Nil {
				s.ID = uuid.New()
			}
			if s.FirstScrapedAt.IsZero() {
				s.FirstScrapedAt = now
			}
			s.LastUpdatedAt = now
		}

		chunkErr := r.withChunkRetry(ctx, "store upsert", start/r.cfg.ChunkSize, func() error {
			return transaction.WithContext(ctx).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "place_id"}},
					DoUpdates: clause.AssignmentColumns(storeUpdateColumns),
				}).
				Create(&chunk).Error
		})

		for _, s := range chunk {
			if chunkErr != nil {
				result.Failed = append(result.Failed, FailedStore{PlaceID: s.PlaceID, Error: chunkErr.Error()})
				continue
			}
			result.Successful = append(result.Successful, s.PlaceID)
			if existing[s.PlaceID] {
				result.UpdatedStores = append(result.UpdatedStores, s.PlaceID)
			} else {
				result.NewStores = append(result.NewStores, s.PlaceID)
			}
		}
	}

	r.log.Info("Store upsert finished",
		"input", len(stores),
		"successful", len(result.Successful),
		"failed", len(result.Failed),
		"new", len(result.NewStores),
		"updated", len(result.UpdatedStores),
		"dropped", result.Dropped,
	)
	return result, nil
}

// existingPlaceIDs reads the candidate ids ahead of the write so each
// eventual success can be labeled new or updated. Chunked and retried the
// same way the write is.
func (r *storeRepo) existingPlaceIDs(ctx context.Context, tx *gorm.DB, stores []*types.Store) (map[string]bool, error) {
	existing := make(map[string]bool, len(stores))
	for start := 0; start < len(stores); start += r.cfg.ChunkSize {
		end := start + r.cfg.ChunkSize
		if end > len(stores) {
			end = len(stores)
		}
		ids := make([]string, 0, end-start)
		for _, s := range stores[start:end] {
			ids = append(ids, s.PlaceID)
		}
		var found []string
		err := r.withChunkRetry(ctx, "existing lookup", start/r.cfg.ChunkSize, func() error {
			found = found[:0]
			return tx.WithContext(ctx).
				Model(&types.Store{}).
				Where("place_id IN ?", ids).
				Pluck("place_id", &found).Error
		})
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			existing[id] = true
		}
	}
	return existing, nil
}

func (r *storeRepo) UpsertSummaries(ctx context.Context, tx *gorm.DB, summaries []StoreSummary) (*SummaryWriteResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	result := &SummaryWriteResult{Successful: []string{}, Failed: []FailedStore{}}
	now := time.Now().UTC()

	for start := 0; start < len(summaries); start += r.cfg.SummaryChunkSize {
		end := start + r.cfg.SummaryChunkSize
		if end > len(summaries) {
			end = len(summaries)
		}
		batch := summaries[start:end]

		// Summaries only land on rows ingestion wrote. An unknown place_id is
		// a bookkeeping bug upstream and fails instead of inserting a
		// skeleton directory entry.
		ids := make([]string, 0, len(batch))
		for _, s := range batch {
			ids = append(ids, s.PlaceID)
		}
		var found []string
		if err := transaction.WithContext(ctx).
			Model(&types.Store{}).
			Where("place_id IN ?", ids).
			Pluck("place_id", &found).Error; err != nil {
			for _, s := range batch {
				result.Failed = append(result.Failed, FailedStore{PlaceID: s.PlaceID, Error: err.Error()})
			}
			r.log.Error("Summary batch lookup failed", "batch_start", start, "batch_size", len(batch), "error", err)
			continue
		}
		existing := make(map[string]bool, len(found))
		for _, id := range found {
			existing[id] = true
		}

		known := make([]StoreSummary, 0, len(batch))
		rows := make([]*types.Store, 0, len(batch))
		for _, s := range batch {
			if !existing[s.PlaceID] {
				result.Failed = append(result.Failed, FailedStore{PlaceID: s.PlaceID, Error: "store not found"})
				continue
			}
			summary := s.Summary
			ts := now
			known = append(known, s)
			rows = append(rows, &types.Store{
				ID:                 uuid.New(),
				PlaceID:            s.PlaceID,
				AISummary:          &summary,
				AISummaryUpdatedAt: &ts,
				FirstScrapedAt:     now,
				LastUpdatedAt:      now,
			})
		}
		if len(rows) == 0 {
			continue
		}

		// The batch is the unit of failure: one bad row fails its whole
		// batch, and the batch's members move to Failed together.
		err := transaction.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "place_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"ai_summary", "ai_summary_updated_at", "last_updated_at"}),
			}).
			Create(&rows).Error
		for _, s := range known {
			if err != nil {
				result.Failed = append(result.Failed, FailedStore{PlaceID: s.PlaceID, Error: err.Error()})
			} else {
				result.Successful = append(result.Successful, s.PlaceID)
			}
		}
		if err != nil {
			r.log.Error("Summary batch write failed", "batch_start", start, "batch_size", len(batch), "error", err)
		}
	}
	return result, nil
}

func (r *storeRepo) GetStores(ctx context.Context, tx *gorm.DB, filter StoreFilter) ([]*types.Store, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	q := transaction.WithContext(ctx).Model(&types.Store{})
	switch filter.Mode {
	case StoreModeSingle:
		q = q.Where("place_id = ?", filter.PlaceID)
	case StoreModeUnsummarized:
		q = q.Where("ai_summary IS NULL")
	case StoreModeByState:
		q = q.Where("state IN ?", filter.States)
		if filter.OnlyUnsummarized {
			q = q.Where("ai_summary IS NULL")
		}
	case StoreModeAll:
	}

	q = q.Limit(filter.Limit)
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var out []*types.Store
	if err := q.Order("first_scraped_at ASC, place_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func validateFilter(filter StoreFilter) error {
	switch filter.Mode {
	case StoreModeAll, StoreModeSingle, StoreModeUnsummarized, StoreModeByState:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidFilter, filter.Mode)
	}
	if filter.Mode == StoreModeSingle && filter.PlaceID == "" {
		return fmt.Errorf("%w: single mode requires a place_id", ErrInvalidFilter)
	}
	if filter.Mode == StoreModeByState && len(filter.States) == 0 {
		return fmt.Errorf("%w: by_state mode requires a non-empty state list", ErrInvalidFilter)
	}
	if filter.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidFilter)
	}
	return nil
}

// FindNearby returns rows strictly inside the radius, nearest first, with a
// computed haversine distance column.
func (r *storeRepo) FindNearby(ctx context.Context, tx *gorm.DB, lat, lng, radiusMeters float64) ([]StoreWithDistance, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if radiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", ErrInvalidFilter)
	}

	var out []StoreWithDistance
	err := transaction.WithContext(ctx).Raw(`
		SELECT * FROM (
			SELECT store.*,
				(6371000 * acos(LEAST(1.0,
					cos(radians(?)) * cos(radians(latitude)) * cos(radians(longitude) - radians(?))
					+ sin(radians(?)) * sin(radians(latitude))
				))) AS distance_meters
			FROM store
			WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		) nearby
		WHERE distance_meters < ?
		ORDER BY distance_meters ASC
	`, lat, lng, lat, radiusMeters).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *storeRepo) withChunkRetry(ctx context.Context, label string, chunkIndex int, op func() error) error {
	delay := r.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxChunkAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt < r.cfg.MaxChunkAttempts {
			r.log.Warn("Chunk attempt failed, retrying",
				"op", label,
				"chunk", chunkIndex,
				"attempt", attempt,
				"max_attempts", r.cfg.MaxChunkAttempts,
				"sleep", delay.String(),
				"error", lastErr.Error(),
			)
			r.sleep(delay)
			delay *= 2
		}
	}
	r.log.Error("Chunk exhausted retries", "op", label, "chunk", chunkIndex, "error", lastErr.Error())
	return lastErr
}
