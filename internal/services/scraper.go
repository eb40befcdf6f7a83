package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voltbase/scooterdex-backend/internal/clients/apify"
	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

// Big-box chains that match scooter-repair search terms without offering
// repair. Matched case-insensitively as substrings of the listing name.
var defaultNameDenylist = []string{
	"walmart",
	"target",
	"best buy",
	"home depot",
	"lowe's",
	"costco",
	"sam's club",
	"walgreens",
	"dick's sporting goods",
	"academy sports",
}

type ScraperConfig struct {
	MaxReviews   int
	MaxQuestions int
	// DevMode keeps the raw provider payload on the result for side-by-side
	// debugging against the transform output.
	DevMode      bool
	NameDenylist []string
}

func (c *ScraperConfig) applyDefaults() {
	if c.MaxReviews <= 0 {
		c.MaxReviews = 30
	}
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = 10
	}
	if c.NameDenylist == nil {
		c.NameDenylist = defaultNameDenylist
	}
}

type ScrapeResult struct {
	Stores             []*types.Store
	RunDraft           *types.ScrapeRun
	RawItems           []apify.RawPlace
	ValidationFailures int
	FilteredOut        int
}

type ListingScraper interface {
	Scrape(ctx context.Context, queries []string, state, city string, maxResults int) (*ScrapeResult, error)
	ScrapeDataset(ctx context.Context, datasetID string) (*ScrapeResult, error)
}

type listingScraper struct {
	log    *logger.Logger
	places apify.Client
	cfg    ScraperConfig
}

func NewListingScraper(baseLog *logger.Logger, places apify.Client, cfg ScraperConfig) ListingScraper {
	cfg.applyDefaults()
	return &listingScraper{
		log:    baseLog.With("service", "ListingScraper"),
		places: places,
		cfg:    cfg,
	}
}

func (s *listingScraper) Scrape(ctx context.Context, queries []string, state, city string, maxResults int) (*ScrapeResult, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("at least one search query required")
	}

	input := apify.RunInput{
		SearchStrings:      queries,
		MaxPlacesPerSearch: maxResults,
		CountryCode:        "us",
		State:              state,
		City:               city,
		MaxReviews:         s.cfg.MaxReviews,
		MaxQuestions:       s.cfg.MaxQuestions,
		MaxImages:          0,
		ScrapeNestedPlaces: true,
		DeepScan:           true,
		SkipClosedPlaces:   true,
	}

	s.log.Info("Starting places scrape", "state", state, "city", city, "queries", len(queries), "max_results", maxResults)
	run, err := s.places.RunSearch(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("start scrape run: %w", err)
	}
	run, err = s.places.WaitForRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("scrape run %s: %w", runID(run), err)
	}
	items, err := s.places.DatasetItems(ctx, run.DefaultDatasetID)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset %s: %w", run.DefaultDatasetID, err)
	}

	result := s.process(items)
	result.RunDraft = s.runDraft(run, input, result)
	s.log.Info("Places scrape finished",
		"state", state,
		"items", len(items),
		"stores", len(result.Stores),
		"validation_failures", result.ValidationFailures,
		"filtered_out", result.FilteredOut,
	)
	return result, nil
}

// ScrapeDataset replays the transform and filter over an already-produced
// provider dataset without paying for a new run.
func (s *listingScraper) ScrapeDataset(ctx context.Context, datasetID string) (*ScrapeResult, error) {
	items, err := s.places.DatasetItems(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset %s: %w", datasetID, err)
	}
	result := s.process(items)
	result.RunDraft = &types.ScrapeRun{
		DatasetID:          datasetID,
		Status:             "REPROCESSED",
		ResultCount:        len(result.Stores),
		ValidationFailures: result.ValidationFailures,
	}
	return result, nil
}

func (s *listingScraper) process(items []apify.RawPlace) *ScrapeResult {
	result := &ScrapeResult{Stores: []*types.Store{}}
	if s.cfg.DevMode {
		result.RawItems = items
	}
	for _, item := range items {
		store, err := s.transform(item)
		if err != nil {
			result.ValidationFailures++
			s.log.Warn("Raw place failed transform, dropping",
				"error", err.Error(),
				"raw", truncateRaw(item),
			)
			continue
		}
		if s.denied(store.Name) {
			result.FilteredOut++
			s.log.Debug("Filtered out non-target retailer", "name", store.Name, "place_id", store.PlaceID)
			continue
		}
		result.Stores = append(result.Stores, store)
	}
	return result
}

func (s *listingScraper) transform(item apify.RawPlace) (*types.Store, error) {
	if item.PlaceID == "" {
		return nil, fmt.Errorf("missing place id")
	}
	if item.Title == "" {
		return nil, fmt.Errorf("missing display name")
	}
	store := &types.Store{
		PlaceID:           item.PlaceID,
		Name:              item.Title,
		Subtitle:          item.Subtitle,
		Description:       item.Description,
		CategoryName:      item.CategoryName,
		Website:           item.Website,
		Phone:             item.Phone,
		PermanentlyClosed: item.PermanentlyClosed,
		TemporarilyClosed: item.TemporarilyClosed,
		Street:            item.Street,
		City:              item.City,
		State:             item.State,
		PostalCode:        item.PostalCode,
		CountryCode:       item.CountryCode,
		Neighborhood:      item.Neighborhood,
		PlusCode:          item.PlusCode,
		ReviewsCount:      item.ReviewsCount,
		TotalScore:        item.TotalScore,
	}
	if item.Location != nil {
		if item.Location.Lat == nil || item.Location.Lng == nil {
			return nil, fmt.Errorf("location block present without coordinates")
		}
		store.Latitude = item.Location.Lat
		store.Longitude = item.Location.Lng
	}
	if len(item.Categories) > 0 {
		if b, err := json.Marshal(item.Categories); err == nil {
			store.Categories = b
		}
	}
	store.ReviewsDistribution = []byte(item.ReviewsDist)
	store.Reviews = []byte(item.Reviews)
	store.ReviewsTags = []byte(item.ReviewsTags)
	store.QuestionsAndAnswers = []byte(item.QuestionsAnswers)
	return store, nil
}

func (s *listingScraper) denied(name string) bool {
	lower := strings.ToLower(name)
	for _, banned := range s.cfg.NameDenylist {
		if strings.Contains(lower, banned) {
			return true
		}
	}
	return false
}

func (s *listingScraper) runDraft(run *apify.Run, input apify.RunInput, result *ScrapeResult) *types.ScrapeRun {
	draft := &types.ScrapeRun{
		ActorID:            run.ActID,
		ActorRunID:         run.ID,
		DatasetID:          run.DefaultDatasetID,
		Status:             run.Status,
		State:              input.State,
		City:               input.City,
		StartedAt:          run.StartedAt,
		FinishedAt:         run.FinishedAt,
		ComputeUnits:       run.Stats.ComputeUnits,
		CostUSD:            run.UsageTotalUSD,
		ResultCount:        len(result.Stores),
		ValidationFailures: result.ValidationFailures,
	}
	if run.StartedAt != nil && run.FinishedAt != nil {
		draft.DurationMs = run.FinishedAt.Sub(*run.StartedAt).Milliseconds()
	}
	if params, err := json.Marshal(input); err == nil {
		draft.SearchParams = params
	}
	return draft
}

func runID(run *apify.Run) string {
	if run == nil {
		return "unknown"
	}
	return run.ID
}

func truncateRaw(item apify.RawPlace) string {
	b, err := json.Marshal(item)
	if err != nil {
		return "unserializable"
	}
	const maxLen = 400
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}
	return string(b)
}
