package services

import (
	"context"
	"fmt"
	"math"

	"github.com/voltbase/scooterdex-backend/internal/geo"
	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/repos"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

const metersPerMile = 1609.344

type SearchHit struct {
	Store         types.Store `json:"store"`
	DistanceMiles float64     `json:"distance_miles"`
}

type SearchService interface {
	SearchByZip(ctx context.Context, zip string, radiusMiles float64) ([]SearchHit, error)
}

type searchService struct {
	log    *logger.Logger
	stores repos.StoreRepo
	zips   *geo.ZipIndex
}

func NewSearchService(baseLog *logger.Logger, stores repos.StoreRepo, zips *geo.ZipIndex) SearchService {
	return &searchService{
		log:    baseLog.With("service", "SearchService"),
		stores: stores,
		zips:   zips,
	}
}

// SearchByZip resolves the ZIP to coordinates and returns stores inside the
// radius, nearest first, with distances in miles.
func (s *searchService) SearchByZip(ctx context.Context, zip string, radiusMiles float64) ([]SearchHit, error) {
	if radiusMiles <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %v", radiusMiles)
	}
	coords, err := s.zips.Lookup(zip)
	if err != nil {
		return nil, err
	}

	rows, err := s.stores.FindNearby(ctx, nil, coords.Latitude, coords.Longitude, radiusMiles*metersPerMile)
	if err != nil {
		return nil, fmt.Errorf("proximity lookup: %w", err)
	}

	hits := make([]SearchHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, SearchHit{
			Store:         row.Store,
			DistanceMiles: roundToTenth(row.DistanceMeters / metersPerMile),
		})
	}
	s.log.Debug("Zip search finished", "zip", zip, "radius_miles", radiusMiles, "hits", len(hits))
	return hits, nil
}

func roundToTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
